// Package sampler tracks memory high-water marks while a job runs.
//
// MemoryMonitor polls a Source at a fixed interval between Monitor and Stop and
// keeps the peak of each metric. Read returns the peaks in bytes keyed by metric
// name, the shape the stats formatter consumes.
package sampler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/mem"
)

// Metric keys returned by Read
const (
	ActivePeak   = "active_peak"
	ReservedPeak = "reserved_peak"
	SystemPeak   = "system_peak"
	Total        = "total"
)

// Reading maps a metric name to a byte count.
type Reading map[string]uint64

// Sample is one observation of memory usage in bytes.
type Sample struct {
	// Active is memory in use by the compute workload
	Active uint64
	// Reserved is memory held by the workload's allocator, in use or not
	Reserved uint64
	// SystemUsed is memory in use system-wide
	SystemUsed uint64
	// SystemTotal is the total system memory
	SystemTotal uint64
}

// Source produces memory samples.
type Source interface {
	Sample(ctx context.Context) (Sample, error)
}

// Reader is the read side of a sampler, as needed for stats rendering.
type Reader interface {
	Read() Reading
}

// RuntimeSource samples the Go heap for active and reserved memory and the
// operating system for system-wide figures.
type RuntimeSource struct{}

// Sample implements Source.
func (RuntimeSource) Sample(ctx context.Context) (Sample, error) {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, fmt.Errorf("failed to read system memory: %w", err)
	}

	return Sample{
		Active:      ms.HeapInuse,
		Reserved:    ms.HeapSys,
		SystemUsed:  vm.Used,
		SystemTotal: vm.Total,
	}, nil
}

// MemoryMonitor is the process-wide memory sampler. Monitor and Stop must be
// paired per job; both are safe to call redundantly.
type MemoryMonitor struct {
	source   Source
	interval time.Duration
	disabled bool
	logger   *slog.Logger

	mu    sync.Mutex
	peak  Sample
	stop  chan struct{}
	doneC chan struct{}
}

// NewMemoryMonitor creates a monitor polling source every interval. The monitor is
// disabled when interval is not positive or the first sample fails.
func NewMemoryMonitor(source Source, interval time.Duration, logger *slog.Logger) *MemoryMonitor {
	m := &MemoryMonitor{
		source:   source,
		interval: interval,
		logger:   logger.With("component", "memory_monitor"),
	}

	if interval <= 0 {
		m.disabled = true
		m.logger.Info("memory sampling disabled", "interval", interval)
		return m
	}

	if _, err := source.Sample(context.Background()); err != nil {
		m.disabled = true
		m.logger.Warn("memory sampling unavailable", "error", err)
	}

	return m
}

// Disabled reports whether the monitor cannot or should not sample.
func (m *MemoryMonitor) Disabled() bool {
	return m.disabled
}

// Monitor clears the peaks and starts polling. A monitor that is already running
// only has its peaks cleared.
func (m *MemoryMonitor) Monitor() {
	if m.disabled {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.peak = Sample{}
	if m.stop != nil {
		return
	}

	m.stop = make(chan struct{})
	m.doneC = make(chan struct{})
	go m.poll(m.stop, m.doneC)
}

// Stop ends polling and waits for the poller to exit.
func (m *MemoryMonitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.doneC
	m.stop, m.doneC = nil, nil
	m.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Read takes a final sample and returns the peaks seen since Monitor.
func (m *MemoryMonitor) Read() Reading {
	if !m.disabled {
		m.observe()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	return Reading{
		ActivePeak:   m.peak.Active,
		ReservedPeak: m.peak.Reserved,
		SystemPeak:   m.peak.SystemUsed,
		Total:        m.peak.SystemTotal,
	}
}

func (m *MemoryMonitor) poll(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.observe()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.observe()
		}
	}
}

func (m *MemoryMonitor) observe() {
	s, err := m.source.Sample(context.Background())
	if err != nil {
		m.logger.Debug("memory sample failed", "error", err)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.peak.Active = max(m.peak.Active, s.Active)
	m.peak.Reserved = max(m.peak.Reserved, s.Reserved)
	m.peak.SystemUsed = max(m.peak.SystemUsed, s.SystemUsed)
	m.peak.SystemTotal = max(m.peak.SystemTotal, s.SystemTotal)
}

// Ensure MemoryMonitor implements Reader
var _ Reader = (*MemoryMonitor)(nil)
