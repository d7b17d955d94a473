// Package progress holds the last-known installation snapshot and pushes
// every change to subscribers.
package progress

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/renderhost/chrome-installer/internal/logging"
)

var log = logging.L("progress")

// Phase is a step of the installation state machine.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseInstallingDeps Phase = "installing-deps"
	PhaseDownloading    Phase = "downloading"
	PhaseExtracting     Phase = "extracting"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

var phaseOrder = map[Phase]int{
	PhaseIdle:           0,
	PhaseInstallingDeps: 1,
	PhaseDownloading:    2,
	PhaseExtracting:     3,
	PhaseCompleted:      4,
}

// Terminal reports whether no further transition is allowed.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseFailed
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	_, ok := phaseOrder[p]
	return ok || p == PhaseFailed
}

// CanTransition reports whether from -> to is allowed. Phases only move
// forward (skipping is allowed), a phase may update itself, failed is
// reachable from any non-terminal phase, and terminal phases are final.
func CanTransition(from, to Phase) bool {
	if !from.Valid() || !to.Valid() || from.Terminal() {
		return false
	}
	if to == PhaseFailed {
		return true
	}
	return phaseOrder[to] >= phaseOrder[from]
}

// ErrInvalidTransition is returned by Update for a disallowed phase change.
var ErrInvalidTransition = errors.New("invalid phase transition")

// DownloadStats is the telemetry attached to downloading snapshots.
type DownloadStats struct {
	DownloadedBytes int64   `json:"downloadedBytes" yaml:"downloadedBytes"`
	TotalBytes      int64   `json:"totalBytes" yaml:"totalBytes"`
	BytesPerSecond  float64 `json:"bytesPerSecond" yaml:"bytesPerSecond"`
	ETASeconds      float64 `json:"etaSeconds" yaml:"etaSeconds"`
	Speed           string  `json:"speed" yaml:"speed"` // "12.34 MB/s"
	ETA             string  `json:"eta" yaml:"eta"`     // "42s"
}

// Snapshot is an immutable view of installation progress.
type Snapshot struct {
	Phase     Phase          `json:"phase" yaml:"phase"`
	Percent   float64        `json:"percent" yaml:"percent"`
	Message   string         `json:"message" yaml:"message"`
	Error     string         `json:"error,omitempty" yaml:"error,omitempty"`
	Download  *DownloadStats `json:"download,omitempty" yaml:"download,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt" yaml:"updatedAt"`
}

func (s Snapshot) clone() Snapshot {
	if s.Download != nil {
		d := *s.Download
		s.Download = &d
	}
	return s
}

// Idle is the snapshot before any installation has started.
func Idle() Snapshot {
	return Snapshot{Phase: PhaseIdle, Message: "Waiting"}
}

// Reporter owns the current Snapshot. Writers call Update; readers get
// copies and never share memory with the Reporter.
type Reporter struct {
	mu      sync.RWMutex
	current Snapshot
	subs    map[int]chan Snapshot
	nextID  int
	now     func() time.Time
}

// NewReporter returns a Reporter in the idle phase.
func NewReporter() *Reporter {
	return &Reporter{
		current: Idle(),
		subs:    make(map[int]chan Snapshot),
		now:     time.Now,
	}
}

// WithClock overrides the clock used for UpdatedAt.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Snapshot returns a copy of the current progress.
func (r *Reporter) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.clone()
}

// Reset returns to idle for a fresh installation.
func (r *Reporter) Reset() {
	s := Idle()
	r.mu.Lock()
	defer r.mu.Unlock()
	s.UpdatedAt = r.now()
	r.current = s
	r.publishLocked(s)
}

// Update replaces the current snapshot. Percent is clamped to 0-100 and
// never decreases within a phase. The stored snapshot is returned.
func (r *Reporter) Update(next Snapshot) (Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	from := r.current.Phase
	if !CanTransition(from, next.Phase) {
		return r.current.clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, next.Phase)
	}

	next = next.clone()
	next.Percent = clampPercent(next.Percent)
	if next.Phase == from && next.Percent < r.current.Percent {
		next.Percent = r.current.Percent
	}
	next.UpdatedAt = r.now()

	if next.Phase != from {
		log.Debug("phase changed", "from", from, logging.KeyPhase, next.Phase, "percent", next.Percent)
	}

	r.current = next
	r.publishLocked(next)
	return next.clone(), nil
}

// Subscribe returns a channel receiving every snapshot published after the
// call, and a cancel func that closes it. A slow subscriber only loses
// intermediate snapshots; the latest one always replaces the oldest queued.
func (r *Reporter) Subscribe(buffer int) (<-chan Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Snapshot, buffer)

	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers returns the number of active subscriptions.
func (r *Reporter) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *Reporter) publishLocked(s Snapshot) {
	for _, ch := range r.subs {
		msg := s.clone()
		select {
		case ch <- msg:
			continue
		default:
		}
		// Full: drop the oldest queued snapshot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- msg:
		default:
		}
	}
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
