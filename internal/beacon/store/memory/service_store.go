package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
)

type ServiceStore struct {
	mu       sync.RWMutex
	nextID   int64
	services map[string]store.ServiceRecord
}

func NewServiceStore(known []string) *ServiceStore {
	s := &ServiceStore{services: make(map[string]store.ServiceRecord)}
	for _, name := range known {
		if name == "" {
			continue
		}
		_, _ = s.CreateService(context.Background(), store.ServiceRecord{Name: name})
	}
	return s
}

var _ store.ServiceStore = (*ServiceStore)(nil)

func (s *ServiceStore) CreateService(_ context.Context, rec store.ServiceRecord) (store.ServiceRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[rec.Name]; ok {
		return store.ServiceRecord{}, fmt.Errorf("CreateService %s: %w", rec.Name, store.ErrDuplicateService)
	}
	s.nextID++
	rec.ID = s.nextID
	s.services[rec.Name] = rec
	return rec, nil
}

func (s *ServiceStore) ListServices(_ context.Context) ([]store.ServiceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.ServiceRecord, 0, len(s.services))
	for _, rec := range s.services {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *ServiceStore) DeleteService(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.services[name]; !ok {
		return false, nil
	}
	delete(s.services, name)
	return true, nil
}
