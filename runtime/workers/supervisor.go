package workers

import (
	"chat-pair/contract"
	"chat-pair/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	DefaultRestartInterval    = 200 * time.Millisecond
	DefaultMaxRestartInterval = 10 * time.Second
)

// Supervisor runs the workers of one observer until its context ends.
// A worker that fails or panics is restarted with an exponential delay,
// reset once the worker stayed up longer than the maximum delay.
type Supervisor struct {
	mu          sync.Mutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	log         *slog.Logger
	workers     []contract.Worker
	initial     time.Duration
	maxInterval time.Duration
}

func NewSupervisor(log *slog.Logger) *Supervisor {
	return &Supervisor{log: log, initial: DefaultRestartInterval, maxInterval: DefaultMaxRestartInterval}
}

// WithRestartBackoff overrides the restart delays. Non-positive values keep the defaults.
func (s *Supervisor) WithRestartBackoff(initial, maxInterval time.Duration) *Supervisor {
	if initial > 0 {
		s.initial = initial
	}
	if maxInterval > 0 {
		s.maxInterval = maxInterval
	}
	return s
}

// Run starts every registered worker and blocks until all of them returned.
// If the parent cancels, every worker stops; Stop only cancels the supervised ones.
func (s *Supervisor) Run(ctx context.Context) {
	supervisedCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	workers := append([]contract.Worker(nil), s.workers...)
	s.mu.Unlock()
	defer cancel()

	for _, worker := range workers {
		s.Start(supervisedCtx, worker)
	}
	s.wg.Wait()
}

func (s *Supervisor) Add(worker ...contract.Worker) contract.ISupervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, worker...)
	return s
}

// Start runs a worker under supervision. A worker returning nil is done and never restarted.
func (s *Supervisor) Start(ctx context.Context, worker contract.Worker) {
	s.wg.Add(1)
	name := contract.GetWorkerName(worker)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.initial
	policy.MaxInterval = s.maxInterval
	policy.Reset()

	go func() {
		defer s.wg.Done()

		for ctx.Err() == nil {
			startedAt := time.Now()
			err := runProtected(ctx, worker)
			if err == nil {
				s.log.Info("Worker finished", "name", name)
				return
			}
			if ctx.Err() != nil {
				break
			}

			if time.Since(startedAt) > s.maxInterval {
				policy.Reset()
			}
			delay := policy.NextBackOff()
			s.log.Warn("Worker crashed, restarting", "name", name, "retry_in", delay, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
		s.log.Info("Worker stopped", "name", name)
	}()
}

func runProtected(ctx context.Context, worker contract.Worker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errors.ErrWorkerPanic, r)
		}
	}()
	return worker.Run(ctx)
}

// Stop cancels the supervised context. Run returns once every worker observed it.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
