package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/store"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/timestamp"
	"github.com/BrandonDHaskell/Beacon/server/internal/beacon/types"
	"github.com/BrandonDHaskell/Beacon/server/internal/observability"
)

type HeartbeatDeps struct {
	Store   store.BeatStore
	Clock   *timestamp.Normalizer  // nil: system clock
	Logger  *zap.Logger            // nil: no logging
	Metrics *observability.Metrics // nil: private, unexported metrics
	Tracer  *observability.Tracer  // nil: no-op spans
}

// HeartbeatService implements beat and status on top of a BeatStore. It keeps
// no state of its own; every status call reads the store.
type HeartbeatService struct {
	store   store.BeatStore
	clock   *timestamp.Normalizer
	logger  *zap.Logger
	metrics *observability.Metrics
	tracer  *observability.Tracer
}

func NewHeartbeatService(d HeartbeatDeps) *HeartbeatService {
	s := &HeartbeatService{
		store:   d.Store,
		clock:   d.Clock,
		logger:  d.Logger,
		metrics: d.Metrics,
		tracer:  d.Tracer,
	}
	if s.clock == nil {
		s.clock = timestamp.New()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.metrics == nil {
		s.metrics = observability.NewMetrics()
	}
	if s.tracer == nil {
		s.tracer = observability.NoopTracer()
	}
	return s
}

// Beat records one beat for serviceID at the current instant. The id is not
// validated; empty ids are stored like any other.
func (s *HeartbeatService) Beat(ctx context.Context, serviceID string, req types.BeatRequest) (types.BeatResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "heartbeat.beat", attribute.String("service.id", serviceID))
	defer span.End()

	now := s.clock.Now()
	rec := store.BeatRecord{
		Timestamp: now,
		Details:   req.Details,
	}
	if err := s.store.RecordBeat(ctx, serviceID, rec); err != nil {
		s.metrics.Beats.WithLabelValues("error").Inc()
		s.storageFailure(span, "RecordBeat", serviceID, err)
		return types.BeatResponse{}, err
	}
	s.metrics.Beats.WithLabelValues("ok").Inc()

	formatted := timestamp.Format(now)
	s.logger.Debug("beat recorded", zap.String("service", serviceID), zap.String("timestamp", formatted))

	return types.BeatResponse{
		Service:   serviceID,
		Timestamp: formatted,
	}, nil
}

// Status reports the latest beat for serviceID, or types.NeverSeen.
func (s *HeartbeatService) Status(ctx context.Context, serviceID string) (types.StatusResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "heartbeat.status", attribute.String("service.id", serviceID))
	defer span.End()

	rec, ok, err := s.store.LatestBeat(ctx, serviceID)
	if err != nil {
		s.storageFailure(span, "LatestBeat", serviceID, err)
		return types.StatusResponse{}, err
	}
	if !ok {
		s.metrics.StatusQueries.WithLabelValues(string(types.StateNeverSeen)).Inc()
		return types.StatusResponse{
			Service:   serviceID,
			Timestamp: types.NeverSeen,
			State:     types.StateNeverSeen,
		}, nil
	}

	s.metrics.StatusQueries.WithLabelValues(string(types.StateSeen)).Inc()
	return types.StatusResponse{
		Service:   serviceID,
		Timestamp: timestamp.Format(rec.Timestamp),
		State:     types.StateSeen,
	}, nil
}

// Health reports the status of serviceID together with a verdict on its latest
// beat. The verdict is HealthFail when there is no beat, when the beat is older
// than timeout, when its "error" detail is non-empty, or when its "status"
// detail is present and not "OK".
func (s *HeartbeatService) Health(ctx context.Context, serviceID string, timeout time.Duration) (types.StatusResponse, types.Health, error) {
	ctx, span := s.tracer.StartSpan(ctx, "heartbeat.health",
		attribute.String("service.id", serviceID), attribute.String("timeout", timeout.String()))
	defer span.End()

	rec, ok, err := s.store.LatestBeat(ctx, serviceID)
	if err != nil {
		s.storageFailure(span, "LatestBeat", serviceID, err)
		return types.StatusResponse{}, "", err
	}
	if !ok {
		return types.StatusResponse{
			Service:   serviceID,
			Timestamp: types.NeverSeen,
			State:     types.StateNeverSeen,
		}, types.HealthFail, nil
	}

	st := types.StatusResponse{
		Service:   serviceID,
		Timestamp: timestamp.Format(rec.Timestamp),
		State:     types.StateSeen,
	}
	health := beatHealth(rec, s.clock.Now(), timeout)
	if health == types.HealthFail {
		s.logger.Debug("service unhealthy",
			zap.String("service", serviceID),
			zap.String("last_beat", st.Timestamp),
			zap.Duration("timeout", timeout),
		)
	}
	return st, health, nil
}

func beatHealth(rec store.BeatRecord, now time.Time, timeout time.Duration) types.Health {
	if now.Sub(rec.Timestamp) > timeout {
		return types.HealthFail
	}
	if rec.Details["error"] != "" {
		return types.HealthFail
	}
	if status, ok := rec.Details["status"]; ok && status != "OK" {
		return types.HealthFail
	}
	return types.HealthOK
}

// History lists up to limit beats for serviceID, newest first.
func (s *HeartbeatService) History(ctx context.Context, serviceID string, limit int) (types.HistoryResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "heartbeat.history",
		attribute.String("service.id", serviceID), attribute.Int("limit", limit))
	defer span.End()

	recs, err := s.store.ListBeats(ctx, serviceID, limit)
	if err != nil {
		s.storageFailure(span, "ListBeats", serviceID, err)
		return types.HistoryResponse{}, err
	}

	out := types.HistoryResponse{
		Service: serviceID,
		Beats:   make([]types.HistoryEntry, 0, len(recs)),
	}
	for _, rec := range recs {
		out.Beats = append(out.Beats, types.HistoryEntry{
			Timestamp: timestamp.Format(rec.Timestamp),
			Details:   rec.Details,
		})
	}
	return out, nil
}

// Services lists every id that has beaten at least once.
func (s *HeartbeatService) Services(ctx context.Context) (types.ServicesResponse, error) {
	ctx, span := s.tracer.StartSpan(ctx, "heartbeat.services")
	defer span.End()

	ids, err := s.store.ListServiceIDs(ctx)
	if err != nil {
		s.storageFailure(span, "ListServiceIDs", "", err)
		return types.ServicesResponse{}, err
	}
	return types.ServicesResponse{Services: ids}, nil
}

func (s *HeartbeatService) storageFailure(span oteltrace.Span, op, serviceID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, op)
	if errors.Is(err, store.ErrStorageUnavailable) {
		s.metrics.StorageErrors.WithLabelValues(op).Inc()
	}
	s.logger.Warn("store operation failed",
		zap.String("op", op),
		zap.String("service", serviceID),
		zap.Error(err),
	)
}
