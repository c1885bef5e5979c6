package monobank

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliseohh/echobot/internal/log"
	"github.com/eliseohh/echobot/internal/metrics"
	"golang.org/x/sync/singleflight"
)

const FailureText = "❌ Failed to fetch rates from Monobank."

// fetchTimeout bounds a shared fetch, which outlives the caller that started it.
const fetchTimeout = 15 * time.Second

// Source is anything that can produce a rates table.
type Source interface {
	Rates(ctx context.Context) (Table, error)
}

// Outcome describes how a Service answered.
type Outcome string

const (
	OutcomeFresh  Outcome = "fresh"
	OutcomeCached Outcome = "cached"
	OutcomeStale  Outcome = "stale"
	OutcomeError  Outcome = "error"
)

// Service caches rates for ttl. The public endpoint throttles callers, so
// concurrent misses share one request and a failed refresh falls back to the
// last good table.
type Service struct {
	src Source
	ttl time.Duration
	now func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	last      Table
	fetchedAt time.Time
	hasLast   bool
}

func NewService(src Source, ttl time.Duration) *Service {
	return &Service{src: src, ttl: ttl, now: time.Now}
}

// Get returns the current table and how it was obtained.
func (s *Service) Get(ctx context.Context) (Table, Outcome, error) {
	s.mu.Lock()
	if s.hasLast && s.now().Sub(s.fetchedAt) < s.ttl {
		t := s.last
		s.mu.Unlock()
		return t, OutcomeCached, nil
	}
	s.mu.Unlock()

	ch := s.group.DoChan("rates", func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		t, err := s.src.Rates(fctx)
		if err != nil {
			return Table{}, err
		}
		s.mu.Lock()
		s.last, s.fetchedAt, s.hasLast = t, s.now(), true
		s.mu.Unlock()
		return t, nil
	})

	var err error
	select {
	case res := <-ch:
		if res.Err == nil {
			return res.Val.(Table), OutcomeFresh, nil
		}
		err = res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasLast {
		return s.last, OutcomeStale, err
	}
	return Table{}, OutcomeError, err
}

// Text returns a message ready to send to a user. It never fails: errors are
// turned into user-facing text and logged.
func (s *Service) Text(ctx context.Context) string {
	logger := log.WithComponent("monobank")
	t, outcome, err := s.Get(ctx)
	metrics.RecordRates(string(outcome))

	switch outcome {
	case OutcomeFresh, OutcomeCached:
		return t.Format()
	case OutcomeStale:
		logger.Warn().Err(err).Msg("serving stale rates")
		return t.Format()
	}

	logger.Error().Err(err).Msg("rates unavailable")
	var se *StatusError
	if errors.As(err, &se) {
		return se.Error()
	}
	return FailureText
}
