package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/timestamp"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
)

var (
	ErrInvalidServiceName = errors.New("service name is required")
	ErrServiceExists      = errors.New("service already registered")
	ErrServiceNotFound    = errors.New("service not found")
	ErrInvalidTimeout     = errors.New("timeout must be a positive duration")
)

// DefaultServiceTimeout is how old a registered service's latest beat may be
// before its health turns to fail, unless the registration sets its own.
const DefaultServiceTimeout = 24 * time.Hour

// ServiceRegistry manages service registrations. Registration is optional:
// beats never check it. Listings join each registration to its beats by name.
type ServiceRegistry struct {
	store      store.ServiceStore
	heartbeats *HeartbeatService
}

func NewServiceRegistry(st store.ServiceStore, hb *HeartbeatService) *ServiceRegistry {
	return &ServiceRegistry{store: st, heartbeats: hb}
}

func (r *ServiceRegistry) Register(ctx context.Context, req types.RegisterServiceRequest) (types.ServiceInfo, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return types.ServiceInfo{}, ErrInvalidServiceName
	}

	timeout, err := parseTimeout(req.Timeout)
	if err != nil {
		return types.ServiceInfo{}, err
	}

	rec, err := r.store.CreateService(ctx, store.ServiceRecord{
		Name:    name,
		URL:     strings.TrimSpace(req.URL),
		Timeout: timeout,
	})
	if errors.Is(err, store.ErrDuplicateService) {
		return types.ServiceInfo{}, fmt.Errorf("%w: %s", ErrServiceExists, name)
	}
	if err != nil {
		return types.ServiceInfo{}, err
	}
	return r.info(ctx, rec)
}

func (r *ServiceRegistry) List(ctx context.Context) ([]types.ServiceInfo, error) {
	recs, err := r.store.ListServices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]types.ServiceInfo, 0, len(recs))
	for _, rec := range recs {
		info, err := r.info(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, nil
}

// Delete removes a registration. Beats for the name are kept.
func (r *ServiceRegistry) Delete(ctx context.Context, name string) error {
	deleted, err := r.store.DeleteService(ctx, name)
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("%w: %s", ErrServiceNotFound, name)
	}
	return nil
}

func (r *ServiceRegistry) info(ctx context.Context, rec store.ServiceRecord) (types.ServiceInfo, error) {
	timeout := rec.Timeout
	if timeout <= 0 {
		timeout = DefaultServiceTimeout
	}
	st, health, err := r.heartbeats.Health(ctx, rec.Name, timeout)
	if err != nil {
		return types.ServiceInfo{}, err
	}
	return types.ServiceInfo{
		Name:      rec.Name,
		URL:       rec.URL,
		CreatedAt: timestamp.Format(rec.CreatedAt),
		Timestamp: st.Timestamp,
		Timeout:   timeout.String(),
		Health:    health,
	}, nil
}

// parseTimeout reads an optional duration string. Empty yields 0, which
// stores no timeout and falls back to DefaultServiceTimeout.
func parseTimeout(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, s)
	}
	return d, nil
}
