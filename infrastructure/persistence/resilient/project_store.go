// Package resilient guards a project store with a circuit breaker and a
// per-call timeout.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/Itzadetunji/mind-map-sub001/application/ports"
	"github.com/Itzadetunji/mind-map-sub001/domain/project"
	pkgerrors "github.com/Itzadetunji/mind-map-sub001/pkg/errors"
)

// Settings configures the breaker.
type Settings struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// Trip once at least MinRequests were seen and the failure ratio reaches
	// FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
	// CallTimeout bounds each store call. Zero means no extra bound.
	CallTimeout time.Duration
}

// DefaultSettings returns the breaker defaults for name.
func DefaultSettings(name string) Settings {
	return Settings{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// ProjectStore wraps another store.
type ProjectStore struct {
	next        ports.ProjectStore
	cb          *gobreaker.CircuitBreaker
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewProjectStore wraps next with a breaker built from settings.
func NewProjectStore(next ports.ProjectStore, settings Settings, logger *zap.Logger) *ProjectStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &ProjectStore{next: next, callTimeout: settings.CallTimeout, logger: logger}
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Caller mistakes say nothing about the health of the store.
		IsSuccessful: func(err error) bool {
			return err == nil ||
				pkgerrors.IsNotFound(err) ||
				pkgerrors.IsValidation(err) ||
				pkgerrors.IsForbidden(err) ||
				errors.Is(err, context.Canceled)
		},
	})
	return s
}

// State reports the breaker state ("closed", "half-open", "open").
func (s *ProjectStore) State() string {
	return s.cb.State().String()
}

func (s *ProjectStore) GetProject(ctx context.Context, id string) (*project.Project, error) {
	out, err := s.execute(ctx, "get project", func(ctx context.Context) (any, error) {
		return s.next.GetProject(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return out.(*project.Project), nil
}

func (s *ProjectStore) UpdateProject(ctx context.Context, update project.Update) (*project.Project, error) {
	out, err := s.execute(ctx, "update project", func(ctx context.Context) (any, error) {
		return s.next.UpdateProject(ctx, update)
	})
	if err != nil {
		return nil, err
	}
	return out.(*project.Project), nil
}

// Ping forwards to the wrapped store when it supports health checks. An open
// breaker reports unavailable without calling through.
func (s *ProjectStore) Ping(ctx context.Context) error {
	if s.cb.State() == gobreaker.StateOpen {
		return pkgerrors.NewUnavailableError("project store").WithCode(pkgerrors.CodeCircuitOpen)
	}
	if hc, ok := s.next.(ports.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

func (s *ProjectStore) execute(ctx context.Context, op string, fn func(context.Context) (any, error)) (any, error) {
	out, err := s.cb.Execute(func() (any, error) {
		callCtx := ctx
		if s.callTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, s.callTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if err == nil {
		return out, nil
	}

	switch {
	case errors.Is(err, gobreaker.ErrOpenState):
		s.logger.Warn("Circuit breaker is open, rejecting store call", zap.String("operation", op))
		return nil, pkgerrors.NewUnavailableError("project store").WithCode(pkgerrors.CodeCircuitOpen).WithCause(err)
	case errors.Is(err, gobreaker.ErrTooManyRequests):
		s.logger.Warn("Circuit breaker is half-open, too many requests", zap.String("operation", op))
		return nil, pkgerrors.NewUnavailableError("project store").WithCode(pkgerrors.CodeCircuitHalfOpen).WithCause(err)
	}
	return nil, err
}
