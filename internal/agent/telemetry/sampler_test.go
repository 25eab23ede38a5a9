package telemetry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

// fakeSource replays a scripted sequence of counter readings
type fakeSource struct {
	readings [][]InterfaceCounters
	errs     []error
	calls    int
}

func (f *fakeSource) Counters() ([]InterfaceCounters, error) {
	i := f.calls
	f.calls++
	if i >= len(f.readings) {
		return nil, errors.New("no scripted reading left")
	}
	if f.errs != nil && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.readings[i], nil
}

func reading(rx, tx int64) []InterfaceCounters {
	return []InterfaceCounters{{Name: "eth0", RxBytes: rx, TxBytes: tx}}
}

func TestSamplerRates(t *testing.T) {
	src := &fakeSource{
		readings: [][]InterfaceCounters{
			reading(100, 100),
			reading(150, 150),
			reading(225, 225),
		},
	}
	s := NewSampler(src, time.Second, zaptest.NewLogger(t))

	// Cold start has no baseline
	rate := s.Sample()
	assert.Equal(t, 0.0, rate.RxBps)
	assert.Equal(t, 0.0, rate.TxBps)

	rate = s.Sample()
	assert.Equal(t, 50.0, rate.RxBps)
	assert.Equal(t, 50.0, rate.TxBps)

	rate = s.Sample()
	assert.Equal(t, 75.0, rate.RxBps)
	assert.Equal(t, 75.0, rate.TxBps)
}

func TestSamplerCounterReset(t *testing.T) {
	src := &fakeSource{
		readings: [][]InterfaceCounters{
			reading(500, 500),
			reading(10, 10),
		},
	}
	s := NewSampler(src, time.Second, zaptest.NewLogger(t))

	s.Sample()
	rate := s.Sample()

	// A reset counter produces a negative rate; it is passed through,
	// not clamped.
	assert.Equal(t, -490.0, rate.RxBps)
	assert.Equal(t, -490.0, rate.TxBps)
}

func TestSamplerEnumerationFailure(t *testing.T) {
	src := &fakeSource{
		readings: [][]InterfaceCounters{
			reading(1000, 2000),
			nil,
			reading(1100, 2100),
		},
		errs: []error{nil, errors.New("sysfs unavailable"), nil},
	}
	s := NewSampler(src, time.Second, zaptest.NewLogger(t))

	s.Sample()

	// The failed cycle still returns a rate derived from zero current
	// bytes, and the baseline moves to zero.
	rate := s.Sample()
	assert.Equal(t, -1000.0, rate.RxBps)
	assert.Equal(t, -2000.0, rate.TxBps)

	rate = s.Sample()
	assert.Equal(t, 1100.0, rate.RxBps)
	assert.Equal(t, 2100.0, rate.TxBps)
}

func TestSamplerIgnoresInvalidReadings(t *testing.T) {
	src := &fakeSource{
		readings: [][]InterfaceCounters{
			{
				{Name: "eth0", RxBytes: 100, TxBytes: 100},
				{Name: "flaky0", RxBytes: -5, TxBytes: -5},
			},
			{
				{Name: "eth0", RxBytes: 200, TxBytes: 300},
				{Name: "flaky0", RxBytes: -5, TxBytes: -5},
			},
		},
	}
	s := NewSampler(src, time.Second, zaptest.NewLogger(t))

	s.Sample()
	rate := s.Sample()

	// Negative readings contribute zero, only eth0 counts.
	assert.Equal(t, 100.0, rate.RxBps)
	assert.Equal(t, 200.0, rate.TxBps)
}

func TestSamplerMultipleInterfaces(t *testing.T) {
	src := &fakeSource{
		readings: [][]InterfaceCounters{
			{
				{Name: "eth0", RxBytes: 100, TxBytes: 10},
				{Name: "eth1", RxBytes: 50, TxBytes: 5},
			},
			{
				{Name: "eth0", RxBytes: 160, TxBytes: 20},
				{Name: "eth1", RxBytes: 90, TxBytes: 15},
			},
		},
	}
	s := NewSampler(src, 2*time.Second, zaptest.NewLogger(t))

	s.Sample()
	rate := s.Sample()

	// Totals are summed across interfaces, divided by the interval.
	assert.Equal(t, 50.0, rate.RxBps)
	assert.Equal(t, 10.0, rate.TxBps)
}
