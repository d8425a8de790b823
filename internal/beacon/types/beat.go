package types

// NeverSeen is the status timestamp reported for a service with no beats.
const NeverSeen = "never"

// State is the per-service liveness state. The only transition is
// StateNeverSeen -> StateSeen, on the first recorded beat.
type State string

const (
	StateNeverSeen State = "never_seen"
	StateSeen      State = "seen"
)

// BeatRequest is the optional body of a beat.
type BeatRequest struct {
	Details map[string]string `json:"details,omitempty"`
}

type BeatResponse struct {
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse carries either a formatted timestamp or NeverSeen.
// State is the typed form of the same fact and is not serialized.
type StatusResponse struct {
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
	State     State  `json:"-"`
}

// Seen reports whether at least one beat exists for the service.
func (r StatusResponse) Seen() bool { return r.State == StateSeen }

type HistoryEntry struct {
	Timestamp string            `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

type HistoryResponse struct {
	Service string         `json:"service"`
	Beats   []HistoryEntry `json:"beats"`
}

type ServicesResponse struct {
	Services []string `json:"services"`
}
