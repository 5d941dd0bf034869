package observability

import (
	"math"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// TotalPhase is the pseudo-phase that covers a whole turn.
const TotalPhase = "turn_total"

// PhaseBudgets maps a phase name to the latency its p95 is expected to stay under. Phases without
// an entry are reported without a budget.
type PhaseBudgets map[string]time.Duration

// PhaseStats summarises the recent latencies of one turn phase against its budget.
type PhaseStats struct {
	Phase      string  `json:"phase"`
	Samples    int     `json:"samples"`
	LastMS     float64 `json:"last_ms"`
	AvgMS      float64 `json:"avg_ms"`
	P50MS      float64 `json:"p50_ms"`
	P95MS      float64 `json:"p95_ms"`
	MaxMS      float64 `json:"max_ms"`
	BudgetMS   float64 `json:"budget_ms,omitempty"`
	OverBudget int     `json:"over_budget"`
	Breached   bool    `json:"breached"`
}

// Indicator counts one notable event, split by reason (e.g. intent_dropped/timeout).
type Indicator struct {
	Name   string `json:"name"`
	Reason string `json:"reason,omitempty"`
	Count  int    `json:"count"`
}

type PhaseSnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Phases      []PhaseStats `json:"phases"`
	Breached    []string     `json:"breached,omitempty"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

type indicatorKey struct{ name, reason string }

// phaseWindow keeps the most recent latencies of each phase, oldest first.
type phaseWindow struct {
	mu         sync.RWMutex
	size       int
	samples    map[string][]time.Duration
	budgets    PhaseBudgets
	indicators map[indicatorKey]int
}

func newPhaseWindow(size int) *phaseWindow {
	if size <= 0 {
		size = 256
	}
	return &phaseWindow{
		size:       size,
		samples:    make(map[string][]time.Duration),
		budgets:    PhaseBudgets{},
		indicators: make(map[indicatorKey]int),
	}
}

func (w *phaseWindow) setBudgets(b PhaseBudgets) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.budgets = make(PhaseBudgets, len(b))
	for phase, d := range b {
		if d > 0 {
			w.budgets[phase] = d
		}
	}
}

func (w *phaseWindow) observe(phase string, d time.Duration) {
	if phase == "" || d < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	s := append(w.samples[phase], d)
	if len(s) > w.size {
		s = slices.Delete(s, 0, len(s)-w.size)
	}
	w.samples[phase] = s
}

func (w *phaseWindow) count(name, reason string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[indicatorKey{name, strings.TrimSpace(reason)}]++
}

func (w *phaseWindow) snapshot() PhaseSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	snap := PhaseSnapshot{GeneratedAt: time.Now().UTC(), WindowSize: w.size, Phases: []PhaseStats{}}
	phases := make([]string, 0, len(w.samples))
	for phase := range w.samples {
		phases = append(phases, phase)
	}
	sort.Strings(phases)

	for _, phase := range phases {
		recent := w.samples[phase]
		if len(recent) == 0 {
			continue
		}
		stats := summarize(phase, recent, w.budgets[phase])
		if stats.Breached {
			snap.Breached = append(snap.Breached, phase)
		}
		snap.Phases = append(snap.Phases, stats)
	}

	for key, n := range w.indicators {
		snap.Indicators = append(snap.Indicators, Indicator{Name: key.name, Reason: key.reason, Count: n})
	}
	sort.Slice(snap.Indicators, func(i, j int) bool {
		a, b := snap.Indicators[i], snap.Indicators[j]
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Reason < b.Reason
	})
	return snap
}

func summarize(phase string, recent []time.Duration, budget time.Duration) PhaseStats {
	sorted := slices.Clone(recent)
	slices.Sort(sorted)

	var sum time.Duration
	over := 0
	for _, d := range sorted {
		sum += d
		if budget > 0 && d > budget {
			over++
		}
	}
	p95 := nearestRank(sorted, 95)
	return PhaseStats{
		Phase:      phase,
		Samples:    len(sorted),
		LastMS:     millis(recent[len(recent)-1]),
		AvgMS:      millis(sum / time.Duration(len(sorted))),
		P50MS:      millis(nearestRank(sorted, 50)),
		P95MS:      millis(p95),
		MaxMS:      millis(sorted[len(sorted)-1]),
		BudgetMS:   millis(budget),
		OverBudget: over,
		Breached:   budget > 0 && p95 > budget,
	}
}

// nearestRank returns the smallest sample that at least pct percent of sorted are <= to.
func nearestRank(sorted []time.Duration, pct int) time.Duration {
	rank := int(math.Ceil(float64(pct) / 100 * float64(len(sorted))))
	rank = max(1, min(rank, len(sorted)))
	return sorted[rank-1]
}

func millis(d time.Duration) float64 {
	return math.Round(float64(d)/float64(time.Millisecond)*100) / 100
}
