// Package stats renders the timing and memory footer appended to every job
// result's status HTML.
package stats

import (
	"fmt"
	"math"
	"time"

	"github.com/phrazzld/genqueue/internal/sampler"
)

const mebibyte = 1024 * 1024

// Formatter renders stats footers. Sampler is only consulted when the caller
// says the sampler was active for the job.
type Formatter struct {
	Sampler sampler.Reader
	Now     func() time.Time
}

// NewFormatter returns a Formatter reading from s (which may be nil when no
// memory figures are wanted). A nil now uses the wall clock.
func NewFormatter(s sampler.Reader, now func() time.Time) Formatter {
	if now == nil {
		now = time.Now
	}
	return Formatter{Sampler: s, Now: now}
}

// Format returns the stats footer for a job started at start, or "" when collect
// is false. It panics if samplerActive is set and the formatter has no sampler.
func (f Formatter) Format(collect bool, start time.Time, samplerActive bool) string {
	if !collect {
		return ""
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	elapsed := now().Sub(start)

	memory := ""
	if samplerActive {
		if f.Sampler == nil {
			panic("stats: sampler active but no sampler configured")
		}
		memory = FormatMemory(f.Sampler.Read())
	}

	return fmt.Sprintf("<div class='performance'><p class='time'>Time taken: %s</p>%s</div>",
		FormatElapsed(elapsed), memory)
}

// FormatElapsed renders d as "<m>m <s.ss>s", leaving out the minutes when zero.
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := d.Seconds()
	minutes := int(seconds / 60)
	rest := math.Mod(seconds, 60)

	if minutes > 0 {
		return fmt.Sprintf("%dm %.2fs", minutes, rest)
	}
	return fmt.Sprintf("%.2fs", rest)
}

// FormatMemory renders the memory line for a sampler reading. Every metric key
// must be present; a missing key panics.
func FormatMemory(r sampler.Reading) string {
	active := ceilMB(mustMetric(r, sampler.ActivePeak))
	reserved := ceilMB(mustMetric(r, sampler.ReservedPeak))
	sysPeak := ceilMB(mustMetric(r, sampler.SystemPeak))
	sysTotal := ceilMB(mustMetric(r, sampler.Total))

	return fmt.Sprintf(
		" | <p class='vram'>GPU active %d MB reserved %d MB | System peak %d MB total %d MB (%.2f%%)</p>",
		active, reserved, sysPeak, sysTotal, Percent(sysPeak, sysTotal))
}

// Percent returns part as a percentage of total, rounded to two decimals and
// clamped to [0, 100]. A zero total is treated as one.
func Percent(part, total uint64) float64 {
	pct := float64(part) / float64(max(total, 1)) * 100
	pct = math.Round(pct*100) / 100
	return math.Min(pct, 100)
}

func ceilMB(b uint64) uint64 {
	return (b + mebibyte - 1) / mebibyte
}

func mustMetric(r sampler.Reading, key string) uint64 {
	v, ok := r[key]
	if !ok {
		panic(fmt.Sprintf("stats: sampler reading is missing %q", key))
	}
	return v
}
