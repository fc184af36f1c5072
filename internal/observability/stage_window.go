package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// stageTargets are the p95 latency goals per stage, in milliseconds.
var stageTargets = map[string]float64{
	StageNormalize:  150,
	StageTranscribe: 2500,
	StageReply:      6000,
	StageSynthesize: 3000,
	StageTurnTotal:  12000,
}

type TurnStageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	MeanMS      float64 `json:"mean_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	MaxMS       float64 `json:"max_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
	// OverTarget counts samples in the window slower than the target.
	OverTarget int `json:"over_target"`
}

type TurnCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TurnStageSnapshot is the payload of GET /v1/perf/latency.
type TurnStageSnapshot struct {
	GeneratedAt time.Time        `json:"generated_at"`
	WindowSize  int              `json:"window_size"`
	Stages      []TurnStageStats `json:"stages"`
	Outcomes    []TurnCount      `json:"outcomes,omitempty"`
	Indicators  []TurnCount      `json:"indicators,omitempty"`
}

// ring keeps the most recent len(vals) samples.
type ring struct {
	vals []float64
	head int
	n    int
	last float64
}

func (r *ring) push(v float64) {
	r.vals[r.head] = v
	r.head = (r.head + 1) % len(r.vals)
	if r.n < len(r.vals) {
		r.n++
	}
	r.last = v
}

func (r *ring) sorted() []float64 {
	out := make([]float64, r.n)
	copy(out, r.vals[:r.n])
	sort.Float64s(out)
	return out
}

// stageWindow aggregates recent per-stage latencies and turn counters.
type stageWindow struct {
	mu         sync.Mutex
	size       int
	rings      map[string]*ring
	outcomes   map[string]int
	indicators map[string]int
}

func newStageWindow(size int) *stageWindow {
	if size <= 0 {
		size = 256
	}
	w := &stageWindow{size: size}
	w.clear()
	return w
}

func (w *stageWindow) clear() {
	w.rings = make(map[string]*ring)
	w.outcomes = make(map[string]int)
	w.indicators = make(map[string]int)
}

func (w *stageWindow) observe(stage string, ms float64) {
	if stage == "" || ms < 0 || math.IsNaN(ms) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{vals: make([]float64, w.size)}
		w.rings[stage] = r
	}
	r.push(ms)
}

func (w *stageWindow) count(into func(*stageWindow) map[string]int, name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	into(w)[name]++
}

func (w *stageWindow) outcome(name string) {
	w.count(func(w *stageWindow) map[string]int { return w.outcomes }, name)
}

func (w *stageWindow) indicator(name string) {
	w.count(func(w *stageWindow) map[string]int { return w.indicators }, name)
}

func (w *stageWindow) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clear()
}

func (w *stageWindow) snapshot() TurnStageSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()

	snap := TurnStageSnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      make([]TurnStageStats, 0, len(w.rings)),
		Outcomes:    sortedCounts(w.outcomes),
		Indicators:  sortedCounts(w.indicators),
	}
	for _, stage := range sortedKeys(w.rings) {
		r := w.rings[stage]
		if r.n == 0 {
			continue
		}
		vals := r.sorted()
		target := stageTargets[stage]
		sum, over := 0.0, 0
		for _, v := range vals {
			sum += v
			if target > 0 && v > target {
				over++
			}
		}
		snap.Stages = append(snap.Stages, TurnStageStats{
			Stage:       stage,
			Samples:     len(vals),
			LastMS:      round2(r.last),
			MeanMS:      round2(sum / float64(len(vals))),
			P50MS:       round2(nearestRank(vals, 0.50)),
			P95MS:       round2(nearestRank(vals, 0.95)),
			MaxMS:       round2(vals[len(vals)-1]),
			TargetP95MS: target,
			OverTarget:  over,
		})
	}
	return snap
}

func nearestRank(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedCounts(m map[string]int) []TurnCount {
	out := make([]TurnCount, 0, len(m))
	for _, k := range sortedKeys(m) {
		out = append(out, TurnCount{Name: k, Count: m[k]})
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
