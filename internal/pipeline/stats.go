package pipeline

import (
	"slices"
	"sync"
	"time"
)

type latency struct {
	at time.Time
	d  time.Duration
}

// StatsSnapshot aggregates page conversion latencies (parse plus render) in
// milliseconds. Most pages convert in well under a millisecond, so values
// keep their fractional part.
type StatsSnapshot struct {
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// ConvertStats keeps the per-page conversion latencies seen within a rolling
// window. It is shared by all workers and the synchronous page endpoint.
type ConvertStats struct {
	mu     sync.Mutex
	window []latency
	maxAge time.Duration
	now    func() time.Time
}

// NewConvertStats returns a tracker that forgets samples older than maxAge
// (one hour when maxAge is not positive).
func NewConvertStats(maxAge time.Duration) *ConvertStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &ConvertStats{
		window: make([]latency, 0, 256),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Record adds the time taken to convert one page.
func (s *ConvertStats) Record(d time.Duration) {
	d = max(d, 0)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.expireLocked(now)
	s.window = append(s.window, latency{at: now, d: d})
}

func (s *ConvertStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(s.now())
	if len(s.window) == 0 {
		return StatsSnapshot{}
	}

	ms := make([]float64, len(s.window))
	var sum float64
	for i, l := range s.window {
		ms[i] = float64(l.d) / float64(time.Millisecond)
		sum += ms[i]
	}
	slices.Sort(ms)

	return StatsSnapshot{
		Count: len(ms),
		MinMs: ms[0],
		MaxMs: ms[len(ms)-1],
		AvgMs: sum / float64(len(ms)),
		P50Ms: percentile(ms, 50),
		P95Ms: percentile(ms, 95),
		P99Ms: percentile(ms, 99),
	}
}

func (s *ConvertStats) expireLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	i := 0
	for i < len(s.window) && s.window[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.window = append(s.window[:0], s.window[i:]...)
	}
}

// percentile interpolates linearly between the two nearest ranks.
func percentile(sorted []float64, pct float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case pct <= 0:
		return sorted[0]
	case pct >= 100:
		return sorted[len(sorted)-1]
	}

	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return sorted[lower]
	}
	return sorted[lower] + (sorted[lower+1]-sorted[lower])*(rank-float64(lower))
}
