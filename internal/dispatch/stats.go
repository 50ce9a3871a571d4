package dispatch

import (
	"slices"
	"sync"
	"time"
)

// defaultWindowSize is the number of recent calls kept per tool.
const defaultWindowSize = 100

// ToolStats summarises the recent invocations of one tool.
type ToolStats struct {
	Name      string        `json:"name"`
	Calls     int           `json:"calls"`
	P50       time.Duration `json:"p50_ns"`
	P99       time.Duration `json:"p99_ns"`
	ErrorRate float64       `json:"error_rate"`
}

type sample struct {
	latency time.Duration
	failed  bool
}

// window keeps the last size invocations of a tool in a ring buffer. Only the
// samples still in the buffer count towards the percentiles and the error
// rate; Calls counts every invocation since start.
type window struct {
	mu      sync.Mutex
	samples []sample
	pos     int
	count   int
}

func newWindow(size int) *window {
	if size <= 0 {
		size = defaultWindowSize
	}
	return &window{samples: make([]sample, size)}
}

func (w *window) record(latency time.Duration, failed bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.pos] = sample{latency: latency, failed: failed}
	w.pos = (w.pos + 1) % len(w.samples)
	w.count++
}

func (w *window) snapshot(name string) ToolStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := ToolStats{Name: name, Calls: w.count}
	n := min(w.count, len(w.samples))
	if n == 0 {
		return st
	}

	latencies := make([]time.Duration, n)
	var failed int
	for i, s := range w.samples[:n] {
		latencies[i] = s.latency
		if s.failed {
			failed++
		}
	}
	slices.Sort(latencies)

	st.P50 = latencies[n/2]
	st.P99 = latencies[int(float64(n-1)*0.99)]
	st.ErrorRate = float64(failed) / float64(n)
	return st
}
