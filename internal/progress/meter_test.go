package progress

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMeterThrottles(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	m := NewMeter(clock.now)

	if _, ok := m.Observe(100, 1000); ok {
		t.Fatal("no emission before the first interval")
	}

	clock.advance(499 * time.Millisecond)
	if _, ok := m.Observe(200, 1000); ok {
		t.Fatal("emitted before 500ms")
	}

	clock.advance(time.Millisecond)
	if _, ok := m.Observe(300, 1000); !ok {
		t.Fatal("expected emission at 500ms")
	}

	emissions := 0
	for i := 0; i < 100; i++ {
		clock.advance(10 * time.Millisecond)
		if _, ok := m.Observe(int64(300+i), 1000); ok {
			emissions++
		}
	}
	// 1000ms of observations after the first emission.
	if emissions != 2 {
		t.Fatalf("emissions = %d over 1s, want 2", emissions)
	}
}

func TestComputeSpeedAndETA(t *testing.T) {
	mb := int64(1024 * 1024)
	stats := Compute(10*mb, 30*mb, 5*time.Second)

	if stats.BytesPerSecond != float64(2*mb) {
		t.Fatalf("BytesPerSecond = %v", stats.BytesPerSecond)
	}
	if stats.ETASeconds != 10 {
		t.Fatalf("ETASeconds = %v, want 10", stats.ETASeconds)
	}
	if stats.Speed != "2.00 MB/s" || stats.ETA != "10s" {
		t.Fatalf("Speed = %q ETA = %q", stats.Speed, stats.ETA)
	}
}

func TestComputeUnknownTotal(t *testing.T) {
	stats := Compute(1024, 0, time.Second)
	if stats.ETASeconds != 0 || stats.ETA != "0s" {
		t.Fatalf("ETA should be 0 without a total, got %v %q", stats.ETASeconds, stats.ETA)
	}
}

func TestComputeZeroElapsed(t *testing.T) {
	stats := Compute(1024, 2048, 0)
	if stats.BytesPerSecond != 0 || stats.ETASeconds != 0 {
		t.Fatalf("unexpected stats with zero elapsed: %+v", stats)
	}
}
