// Package memory keeps each actor's bounded recollection of what happened to it and of the other
// actors it has met, and folds oracle-written updates into it once per turn.
package memory

import (
	"math"
	"slices"
	"strings"
	"time"
)

// RecentLimit bounds every recent-events and recent-memories list.
const RecentLimit = 10

type Timeline struct {
	Self          SelfMemories            `json:"self_memories"`
	Relationships map[string]Relationship `json:"relationships"`
}

type SelfMemories struct {
	Context      string   `json:"immediate_context"`
	RecentEvents []string `json:"recent_events"`
	CoreMemories []string `json:"core_memories"`
}

type Relationship struct {
	Context         string         `json:"immediate_context"`
	RecentMemories  []Recollection `json:"recent_memories"`
	LongTermSummary string         `json:"long_term_summary"`
	CoreMemories    []string       `json:"core_memories"`
	Sentiment       float64        `json:"current_sentiment"`
	Bond            float64        `json:"overall_bond"`
}

type Recollection struct {
	Event           string    `json:"event"`
	Timestamp       time.Time `json:"timestamp"`
	EmotionalImpact string    `json:"emotional_impact"`
	Importance      float64   `json:"importance"`
}

// NewTimeline is the timeline of an actor with no history: empty context, no events, nobody met.
func NewTimeline() Timeline {
	return Timeline{
		Self: SelfMemories{
			RecentEvents: []string{},
			CoreMemories: []string{},
		},
		Relationships: map[string]Relationship{},
	}
}

func newRelationship(other string) Relationship {
	return Relationship{
		RecentMemories:  []Recollection{},
		LongTermSummary: "Just met " + other,
		CoreMemories:    []string{},
	}
}

// Clone returns a deep copy.
func (t Timeline) Clone() Timeline {
	out := Timeline{
		Self: SelfMemories{
			Context:      t.Self.Context,
			RecentEvents: append([]string{}, t.Self.RecentEvents...),
			CoreMemories: append([]string{}, t.Self.CoreMemories...),
		},
		Relationships: make(map[string]Relationship, len(t.Relationships)),
	}
	for name, r := range t.Relationships {
		r.RecentMemories = append([]Recollection{}, r.RecentMemories...)
		r.CoreMemories = append([]string{}, r.CoreMemories...)
		out.Relationships[name] = r
	}
	return out
}

func (t *Timeline) normalize() {
	if t.Self.RecentEvents == nil {
		t.Self.RecentEvents = []string{}
	}
	if t.Self.CoreMemories == nil {
		t.Self.CoreMemories = []string{}
	}
	if t.Relationships == nil {
		t.Relationships = map[string]Relationship{}
	}
}

// PushBounded appends item and, if the list then exceeds limit, drops the single oldest entry.
// At most one item is evicted per push.
func PushBounded[T any](list []T, item T, limit int) ([]T, *T) {
	list = append(list, item)
	if limit <= 0 || len(list) <= limit {
		return list, nil
	}
	evicted := list[0]
	return slices.Delete(list, 0, 1), &evicted
}

// Update is the memory change an actor's oracle proposes after a turn.
type Update struct {
	SelfContext   string                        `json:"immediate_self_context"`
	NewSelfMemory *string                       `json:"new_self_memory,omitempty"`
	Relationships map[string]RelationshipUpdate `json:"relationship_updates"`
}

type RelationshipUpdate struct {
	Context       string        `json:"immediate_context"`
	NewMemory     *Recollection `json:"new_memory,omitempty"`
	Sentiment     float64       `json:"current_sentiment"`
	BondDelta     *float64      `json:"bond_delta,omitempty"`
	SummaryUpdate *string       `json:"long_term_summary_update,omitempty"`
	CoreMemory    *string       `json:"potential_core_memory,omitempty"`
}

// Changes reports what Apply did, for logging and events.
type Changes struct {
	SelfEvicted   *string                       `json:"self_evicted,omitempty"`
	Relationships map[string]RelationshipChange `json:"relationships,omitempty"`
	Skipped       []string                      `json:"skipped,omitempty"`
}

type RelationshipChange struct {
	Created         bool          `json:"created,omitempty"`
	Evicted         *Recollection `json:"evicted,omitempty"`
	SummaryReplaced bool          `json:"summary_replaced,omitempty"`
	CoreAdded       bool          `json:"core_added,omitempty"`
}

// Apply folds u into the timeline of actor self. known reports registered actor names; updates
// about self or unregistered names are skipped. A nil known accepts every other name.
//
// The long-term summary is only replaced when the new memory pushed an old one out and the update
// carried a replacement.
func (t *Timeline) Apply(self string, u Update, now time.Time, known func(string) bool) Changes {
	t.normalize()
	ch := Changes{Relationships: map[string]RelationshipChange{}}

	t.Self.Context = u.SelfContext
	if u.NewSelfMemory != nil && strings.TrimSpace(*u.NewSelfMemory) != "" {
		t.Self.RecentEvents, ch.SelfEvicted = PushBounded(t.Self.RecentEvents, *u.NewSelfMemory, RecentLimit)
	}

	names := make([]string, 0, len(u.Relationships))
	for name := range u.Relationships {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, other := range names {
		ru := u.Relationships[other]
		if other == self || (known != nil && !known(other)) {
			ch.Skipped = append(ch.Skipped, other)
			continue
		}
		var rc RelationshipChange
		rel, ok := t.Relationships[other]
		if !ok {
			rel = newRelationship(other)
			rc.Created = true
		}

		rel.Context = ru.Context
		rel.Sentiment = clamp(ru.Sentiment, -1, 1)
		if ru.BondDelta != nil {
			rel.Bond = clamp(rel.Bond+*ru.BondDelta, -1, 1)
		}

		if ru.NewMemory != nil {
			m := *ru.NewMemory
			m.Importance = clamp(m.Importance, 0, 1)
			if m.Timestamp.IsZero() {
				m.Timestamp = now.UTC()
			}
			rel.RecentMemories, rc.Evicted = PushBounded(rel.RecentMemories, m, RecentLimit)
			if rc.Evicted != nil && ru.SummaryUpdate != nil {
				rel.LongTermSummary = *ru.SummaryUpdate
				rc.SummaryReplaced = true
			}
		}

		if ru.CoreMemory != nil && *ru.CoreMemory != "" && !slices.Contains(rel.CoreMemories, *ru.CoreMemory) {
			rel.CoreMemories = append(rel.CoreMemories, *ru.CoreMemory)
			rc.CoreAdded = true
		}

		t.Relationships[other] = rel
		ch.Relationships[other] = rc
	}
	return ch
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}
