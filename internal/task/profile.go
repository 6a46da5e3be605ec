package task

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"runtime/pprof"
	"sort"
	"strings"
	"time"

	"github.com/google/pprof/profile"
)

// ProfileEntry is one function's share of a CPU profile.
type ProfileEntry struct {
	Function   string
	Flat       time.Duration
	Cumulative time.Duration
}

// cpuProfiler records a CPU profile for the duration of one call. The Go runtime
// allows a single CPU profile at a time; the execution slot guarantees that.
type cpuProfiler struct {
	buf     bytes.Buffer
	topN    int
	logger  *slog.Logger
	stopped bool
}

// startCPUProfiler starts profiling, or returns nil if profiling could not start.
func startCPUProfiler(topN int, logger *slog.Logger) *cpuProfiler {
	p := &cpuProfiler{topN: topN, logger: logger}
	if err := pprof.StartCPUProfile(&p.buf); err != nil {
		logger.Warn("failed to start CPU profile", "error", err)
		return nil
	}
	return p
}

// stop ends profiling and logs the top functions by cumulative time. It is safe
// to call on a nil or already stopped profiler.
func (p *cpuProfiler) stop() {
	if p == nil || p.stopped {
		return
	}
	p.stopped = true
	pprof.StopCPUProfile()

	entries, err := topCumulative(&p.buf, p.topN)
	if err != nil {
		p.logger.Warn("failed to analyze CPU profile", "error", err)
		return
	}

	p.logger.Info("profile exec",
		"top_n", p.topN,
		"report", formatProfile(entries))
}

// topCumulative parses a pprof CPU profile and returns the n functions with the
// most cumulative time.
func topCumulative(r io.Reader, n int) ([]ProfileEntry, error) {
	prof, err := profile.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse profile: %w", err)
	}

	valueIndex := len(prof.SampleType) - 1
	for i, st := range prof.SampleType {
		if st.Type == "cpu" {
			valueIndex = i
		}
	}
	if valueIndex < 0 {
		return nil, nil
	}

	flat := make(map[string]int64)
	cum := make(map[string]int64)
	for _, sample := range prof.Sample {
		v := sample.Value[valueIndex]
		seen := make(map[string]bool)
		for i, loc := range sample.Location {
			for j, line := range loc.Line {
				if line.Function == nil {
					continue
				}
				name := line.Function.Name
				if i == 0 && j == 0 {
					flat[name] += v
				}
				if !seen[name] {
					seen[name] = true
					cum[name] += v
				}
			}
		}
	}

	entries := make([]ProfileEntry, 0, len(cum))
	for name, c := range cum {
		entries = append(entries, ProfileEntry{
			Function:   name,
			Flat:       time.Duration(flat[name]),
			Cumulative: time.Duration(c),
		})
	}
	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Cumulative != entries[b].Cumulative {
			return entries[a].Cumulative > entries[b].Cumulative
		}
		return entries[a].Function < entries[b].Function
	})

	if n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	return entries, nil
}

func formatProfile(entries []ProfileEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%12s %12s  %s\n", "flat", "cum", "function")
	for _, e := range entries {
		fmt.Fprintf(&b, "%12s %12s  %s\n", e.Flat, e.Cumulative, e.Function)
	}
	return b.String()
}
