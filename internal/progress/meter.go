package progress

import (
	"fmt"
	"math"
	"time"
)

// DefaultInterval is the minimum time between two emitted download updates.
const DefaultInterval = 500 * time.Millisecond

// Meter turns raw byte counts into throttled DownloadStats.
type Meter struct {
	interval time.Duration
	now      func() time.Time
	start    time.Time
	last     time.Time
}

// NewMeter starts a meter. A nil clock uses time.Now.
func NewMeter(now func() time.Time) *Meter {
	if now == nil {
		now = time.Now
	}
	t := now()
	return &Meter{interval: DefaultInterval, now: now, start: t, last: t}
}

// Observe records progress and returns stats when at least one interval
// has passed since the previous emission (or since the start).
func (m *Meter) Observe(downloaded, total int64) (DownloadStats, bool) {
	now := m.now()
	if now.Sub(m.last) < m.interval {
		return DownloadStats{}, false
	}
	m.last = now
	return Compute(downloaded, total, now.Sub(m.start)), true
}

// Compute derives throughput and ETA. ETA is 0 when the total is unknown.
func Compute(downloaded, total int64, elapsed time.Duration) DownloadStats {
	stats := DownloadStats{DownloadedBytes: downloaded, TotalBytes: total}
	if secs := elapsed.Seconds(); secs > 0 {
		stats.BytesPerSecond = float64(downloaded) / secs
	}
	if total > 0 && stats.BytesPerSecond > 0 && downloaded < total {
		stats.ETASeconds = float64(total-downloaded) / stats.BytesPerSecond
	}
	stats.Speed = FormatSpeed(stats.BytesPerSecond)
	stats.ETA = FormatETA(stats.ETASeconds)
	return stats
}

// FormatSpeed renders bytes/second as "x.xx MB/s".
func FormatSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%.2f MB/s", bytesPerSecond/1024/1024)
}

// FormatETA renders seconds rounded up to whole seconds, e.g. "42s".
func FormatETA(seconds float64) string {
	return fmt.Sprintf("%ds", int64(math.Ceil(seconds)))
}
