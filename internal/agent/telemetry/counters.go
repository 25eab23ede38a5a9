package telemetry

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// InterfaceCounters holds cumulative byte counters for one interface.
// Counters are monotonically non-decreasing while the interface is up
// but reset when the interface is replaced.
type InterfaceCounters struct {
	Name    string
	RxBytes int64
	TxBytes int64
}

// CounterSource enumerates interfaces and reads their cumulative counters
type CounterSource interface {
	Counters() ([]InterfaceCounters, error)
}

// sysfsSource reads counters from /sys/class/net on Linux
type sysfsSource struct {
	logger *zap.Logger
}

// NewSysfsSource creates a counter source backed by the OS interface table
func NewSysfsSource(logger *zap.Logger) CounterSource {
	return &sysfsSource{logger: logger}
}

// Counters implements CounterSource
func (s *sysfsSource) Counters() ([]InterfaceCounters, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate interfaces: %w", err)
	}

	counters := make([]InterfaceCounters, 0, len(interfaces))
	for _, iface := range interfaces {
		rx, err := readCounter(iface.Name, "rx_bytes")
		if err != nil {
			s.logger.Debug("Failed to read interface counter",
				zap.String("interface", iface.Name),
				zap.Error(err))
			continue
		}
		tx, err := readCounter(iface.Name, "tx_bytes")
		if err != nil {
			s.logger.Debug("Failed to read interface counter",
				zap.String("interface", iface.Name),
				zap.Error(err))
			continue
		}

		counters = append(counters, InterfaceCounters{
			Name:    iface.Name,
			RxBytes: rx,
			TxBytes: tx,
		})
	}

	return counters, nil
}

// readCounter reads a single statistic file for an interface
func readCounter(ifaceName, statName string) (int64, error) {
	path := filepath.Join("/sys/class/net", ifaceName, "statistics", statName)
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s for interface %s: %w",
			statName, ifaceName, err)
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s for interface %s: %w",
			statName, ifaceName, err)
	}

	return value, nil
}
