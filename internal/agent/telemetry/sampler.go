package telemetry

import (
	"time"

	"coflowd/internal/types"

	"go.uber.org/zap"
)

// Sampler converts successive cumulative counter readings into
// instantaneous throughput. It keeps exactly one baseline: the previous
// totals, overwritten on every call.
//
// Sampler is not safe for concurrent use; Sample must only be called
// from the heartbeat cycle, which never overlaps itself.
type Sampler struct {
	source   CounterSource
	interval time.Duration
	logger   *zap.Logger

	lastRxBytes int64
	lastTxBytes int64
}

// NewSampler creates a sampler for the given counter source and
// sampling interval
func NewSampler(source CounterSource, interval time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		source:      source,
		interval:    interval,
		logger:      logger,
		lastRxBytes: -1,
		lastTxBytes: -1,
	}
}

// Sample reads current counters and returns the throughput since the
// previous call. The first call has no baseline and returns zero rates.
// A counter reset between calls yields a negative rate; it is returned
// as-is, callers tolerate transient negative values.
func (s *Sampler) Sample() types.BandwidthRate {
	var curRxBytes, curTxBytes int64

	counters, err := s.source.Counters()
	if err != nil {
		// Telemetry failure must not abort the cycle; report zero
		// current totals and keep going.
		s.logger.Warn("Failed to read interface counters", zap.Error(err))
	}

	for _, c := range counters {
		if c.RxBytes > 0 {
			curRxBytes += c.RxBytes
		}
		if c.TxBytes > 0 {
			curTxBytes += c.TxBytes
		}
	}

	var rate types.BandwidthRate
	if s.lastRxBytes >= 0 && s.lastTxBytes >= 0 {
		secs := s.interval.Seconds()
		rate.RxBps = float64(curRxBytes-s.lastRxBytes) / secs
		rate.TxBps = float64(curTxBytes-s.lastTxBytes) / secs
	}

	// The baseline moves unconditionally, including on the first call.
	s.lastRxBytes = curRxBytes
	s.lastTxBytes = curTxBytes

	return rate
}
