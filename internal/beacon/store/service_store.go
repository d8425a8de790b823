package store

import (
	"context"
	"errors"
	"time"
)

var ErrDuplicateService = errors.New("service already registered")

type ServiceRecord struct {
	ID        int64
	Name      string
	URL       string
	CreatedAt time.Time
	Timeout   time.Duration // 0: the registry default
}

// ServiceStore holds service registrations. It never touches beats.
type ServiceStore interface {
	CreateService(ctx context.Context, rec ServiceRecord) (ServiceRecord, error)
	ListServices(ctx context.Context) ([]ServiceRecord, error)
	// DeleteService reports whether a row was removed.
	DeleteService(ctx context.Context, name string) (bool, error)
}
