package driver

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"golang.org/x/time/rate"

	"rovergrid.ai/internal/protocol"
	"rovergrid.ai/internal/sim/mission"
	"rovergrid.ai/internal/sim/rover"
	"rovergrid.ai/internal/sim/tuning"
)

// Service runs missions submitted over the network. It owns the concurrency
// limit shared by every transport and notifies hooks after each attempt.
type Service struct {
	tune   tuning.Tuning
	rec    Recorder
	logger *log.Logger

	slots   chan struct{}
	limiter *rate.Limiter // nil when unthrottled

	mu    sync.RWMutex
	hooks []Hook
}

type RunRequest struct {
	Transport string
	Mission   protocol.MissionDoc
	MaxSteps  int
	RunID     string
	Observer  rover.StepSink
}

// Hook sees every attempt. rep is zero when the mission was rejected before running.
type Hook func(transport string, rep Report, err error)

func NewService(t tuning.Tuning, rec Recorder, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	n := t.Server.MaxConcurrentRuns
	if n <= 0 {
		n = 1
	}
	s := &Service{
		tune:   t,
		rec:    rec,
		logger: logger,
		slots:  make(chan struct{}, n),
	}
	if rps := t.Server.RunsPerSecond; rps > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(rps), max(t.Server.RunBurst, 1))
	}
	return s
}

func (s *Service) Tuning() tuning.Tuning { return s.tune }

func (s *Service) OnRun(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

func (s *Service) InFlight() int { return len(s.slots) }

func (s *Service) Run(ctx context.Context, req RunRequest) (Report, error) {
	rep, err := s.run(ctx, req)
	s.mu.RLock()
	hooks := s.hooks
	s.mu.RUnlock()
	for _, h := range hooks {
		h(req.Transport, rep, err)
	}
	return rep, err
}

func (s *Service) run(ctx context.Context, req RunRequest) (Report, error) {
	m, err := mission.DecodeDoc(req.Mission)
	if err != nil {
		return Report{}, err
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return Report{}, &mission.Error{Code: protocol.ErrRateLimited, Msg: "run rate limit exceeded"}
	}
	select {
	case s.slots <- struct{}{}:
	default:
		return Report{}, &mission.Error{Code: protocol.ErrBusy, Msg: "too many concurrent runs"}
	}
	defer func() { <-s.slots }()

	return Run(ctx, m, Options{
		Tuning:   s.tune,
		Recorder: s.rec,
		Observer: req.Observer,
		MaxSteps: req.MaxSteps,
		RunID:    req.RunID,
		Logger:   s.logger,
	})
}

// ErrorCode maps a Run/Service error to a protocol code.
func ErrorCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return protocol.ErrCanceled
	}
	return mission.CodeOf(err)
}
