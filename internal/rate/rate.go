// Package rate measures the real sampling rate of the frame branch.
package rate

import (
	"math"
	"sync"
	"time"
)

const (
	// stddev of instantaneous FPS must stay under 15% of the mean
	fpsStabilityThreshold = 0.15
	// mean jitter must stay under 20% of the expected inter-frame interval
	jitterStabilityThreshold = 0.20

	// DefaultWindowSize is the number of frame timestamps kept by NewWindow(0)
	DefaultWindowSize = 120
)

// Stats describes frame arrival over a time span
type Stats struct {
	Frames     int           // frames observed
	Duration   time.Duration // span the frames were observed over
	FPSMean    float64       // frames / duration
	FPSStdDev  float64       // stddev of instantaneous FPS
	FPSMin     float64       // min instantaneous FPS
	FPSMax     float64       // max instantaneous FPS
	JitterMean float64       // mean |interval - expected| (seconds)
	JitterMax  float64       // max jitter (seconds)
	IsStable   bool          // FPS stddev < 15% of mean AND jitter < 20% of interval
}

// Calculate computes rate statistics from ordered frame timestamps observed
// over total. Fewer than two frames yields no instantaneous figures and
// IsStable=false.
func Calculate(times []time.Time, total time.Duration) Stats {
	n := len(times)
	st := Stats{Frames: n, Duration: total}
	if n == 0 || total <= 0 {
		return st
	}
	st.FPSMean = float64(n) / total.Seconds()

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		if d := times[i].Sub(times[i-1]).Seconds(); d > 0 {
			intervals = append(intervals, d)
		}
	}
	if len(intervals) == 0 {
		return st
	}

	st.FPSMin = math.Inf(1)
	var sumSquares float64
	for _, d := range intervals {
		fps := 1.0 / d
		st.FPSMin = math.Min(st.FPSMin, fps)
		st.FPSMax = math.Max(st.FPSMax, fps)
		diff := fps - st.FPSMean
		sumSquares += diff * diff
	}
	st.FPSStdDev = math.Sqrt(sumSquares / float64(len(intervals)))

	expected := 1.0 / st.FPSMean
	var jitterSum float64
	for _, d := range intervals {
		j := math.Abs(d - expected)
		jitterSum += j
		st.JitterMax = math.Max(st.JitterMax, j)
	}
	st.JitterMean = jitterSum / float64(len(intervals))

	st.IsStable = st.FPSStdDev < st.FPSMean*fpsStabilityThreshold &&
		st.JitterMean < expected*jitterStabilityThreshold
	return st
}

// Window keeps the most recent frame timestamps in a ring buffer.
// Safe for concurrent use.
type Window struct {
	mu    sync.Mutex
	times []time.Time
	next  int
	count int
}

// NewWindow creates a window holding size timestamps (DefaultWindowSize if size <= 0)
func NewWindow(size int) *Window {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &Window{times: make([]time.Time, size)}
}

// Record adds one frame arrival time
func (w *Window) Record(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.times[w.next] = t
	w.next = (w.next + 1) % len(w.times)
	if w.count < len(w.times) {
		w.count++
	}
}

// Reset drops every recorded timestamp
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.count = 0
}

// Snapshot returns the recorded timestamps, oldest first
func (w *Window) Snapshot() []time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]time.Time, 0, w.count)
	start := (w.next - w.count + len(w.times)) % len(w.times)
	for i := 0; i < w.count; i++ {
		out = append(out, w.times[(start+i)%len(w.times)])
	}
	return out
}

// Stats computes rate statistics over the window, measured from the oldest
// recorded frame to now.
func (w *Window) Stats(now time.Time) Stats {
	times := w.Snapshot()
	if len(times) == 0 {
		return Stats{}
	}
	return Calculate(times, now.Sub(times[0]))
}
