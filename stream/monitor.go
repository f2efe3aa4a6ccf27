package stream

import (
	"log/slog"
	"time"
)

// Monitor tracks per-connection throughput and produces the periodic
// stats report. A fresh Monitor is created for every connection so the
// rate reflects the current session only.
type Monitor struct {
	start       time.Time
	lastMessage time.Time
	count       int64

	now    func() time.Time
	logger *slog.Logger
}

// NewMonitor creates a monitor anchored at the current time
func NewMonitor(logger *slog.Logger) *Monitor {
	return newMonitorWithClock(logger, time.Now)
}

func newMonitorWithClock(logger *slog.Logger, now func() time.Time) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	start := now()
	return &Monitor{
		start:       start,
		lastMessage: start,
		now:         now,
		logger:      logger.With("component", "stream"),
	}
}

// RecordMessage counts one inbound message
func (m *Monitor) RecordMessage() {
	m.count++
	m.lastMessage = m.now()
}

// Count returns the number of messages recorded this session
func (m *Monitor) Count() int64 {
	return m.count
}

// Rate returns messages per second since the connection was
// established. Zero elapsed time reports zero instead of dividing.
func (m *Monitor) Rate() float64 {
	elapsed := m.now().Sub(m.start).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(m.count) / elapsed
}

// Report logs the periodic throughput line
func (m *Monitor) Report() {
	m.logger.Info("throughput",
		"messages", m.count,
		"rate_per_sec", m.Rate(),
		"since_last", m.now().Sub(m.lastMessage).Round(time.Millisecond).String())
}
