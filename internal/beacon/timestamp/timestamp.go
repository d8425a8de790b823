// Package timestamp turns instants into canonical UTC values and renders them
// in the wire format used by every beat and status response.
//
// An Instant may be naive: its clock fields are meaningful but it carries no
// zone information (a zone-less string, or a value read from a column that
// drops the offset). Naive instants are taken to already be UTC wall-clock time
// and keep their fields unchanged. Zone-aware instants are converted to UTC.
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format: second precision, T separator, literal Z.
const Layout = "2006-01-02T15:04:05Z"

// ErrUnparseable is returned by Parse for strings in no accepted layout.
var ErrUnparseable = errors.New("unparseable timestamp")

// Instant is a time value plus whether it carried zone information.
type Instant struct {
	Time  time.Time
	Naive bool
}

// Aware wraps t as a zone-aware instant.
func Aware(t time.Time) Instant { return Instant{Time: t} }

// Naive wraps t as a naive instant: only its clock fields are used.
func Naive(t time.Time) Instant { return Instant{Time: t, Naive: true} }

// Normalize returns in as a UTC time.
//
// Aware instants are converted (the clock fields may change). Naive instants
// get the UTC location attached with every field left as is.
func Normalize(in Instant) time.Time {
	if !in.Naive {
		return in.Time.UTC()
	}
	t := in.Time
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Format renders t in Layout after converting it to UTC. Sub-second digits are
// truncated, never rounded.
func Format(t time.Time) string {
	return t.UTC().Format(Layout)
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Parse reads s as an RFC 3339 instant (aware) or as a zone-less date-time
// with a T or space separator (naive).
func Parse(s string) (Instant, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Aware(t), nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Naive(t), nil
		}
	}
	return Instant{}, fmt.Errorf("%w: %q", ErrUnparseable, s)
}

// Normalizer supplies the current instant through an injectable clock.
type Normalizer struct {
	clock func() Instant
}

// New returns a Normalizer reading the system clock.
func New() *Normalizer {
	return &Normalizer{clock: func() Instant { return Aware(time.Now()) }}
}

// NewWithClock returns a Normalizer reading clock. Tests use it to pin "now",
// including to a naive instant.
func NewWithClock(clock func() Instant) *Normalizer {
	return &Normalizer{clock: clock}
}

// Now returns the current instant, normalized to UTC.
func (n *Normalizer) Now() time.Time {
	return Normalize(n.clock())
}
