package heartbeat

import (
	"context"
	"sync"
	"time"

	"coflowd/internal/agent/telemetry"
	"coflowd/internal/types"

	"go.uber.org/zap"
)

// Sink receives the rate computed by each heartbeat cycle
type Sink func(rate types.BandwidthRate)

// Scheduler drives the periodic sample-and-report cycle. It starts only
// after the agent has registered and runs until shutdown; there is no
// pause or resume. Cycles run sequentially on one goroutine, so two
// sampling calls never overlap.
type Scheduler struct {
	interval time.Duration
	sampler  *telemetry.Sampler
	sink     Sink
	logger   *zap.Logger

	startOnce sync.Once
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewScheduler creates a stopped scheduler
func NewScheduler(interval time.Duration, sampler *telemetry.Sampler, sink Sink, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		interval: interval,
		sampler:  sampler,
		sink:     sink,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start begins the tick loop. Subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.logger.Info("Starting heartbeat scheduler",
			zap.Duration("interval", s.interval))

		s.wg.Add(1)
		go s.run(ctx)
	})
}

// Stop stops the tick loop and waits for the in-flight cycle
func (s *Scheduler) Stop() error {
	close(s.stopChan)
	s.wg.Wait()
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.sink(s.sampler.Sample())
		}
	}
}
