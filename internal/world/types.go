package world

import (
	"errors"
	"sort"
)

var (
	ErrUnknownActor    = errors.New("unknown actor")
	ErrUnknownContract = errors.New("unknown contract")
	ErrInvariant       = errors.New("state invariant violation")
)

// Location is one of the roster's closed set of places.
type Location string

type Actor struct {
	Name             string   `json:"name"`
	Location         Location `json:"location"`
	Activity         string   `json:"activity"`
	ActiveContract   string   `json:"active_contract,omitempty"`
	PendingDirective *string  `json:"next_prompt,omitempty"`
}

// Contract is a multi-party interaction. Ending a contract detaches its participants; the record
// itself is never removed.
type Contract struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	TranscriptRef string   `json:"transcript_ref"`
}

// State is a deep copy of the store taken under its lock. Order lists actor names in roster order.
type State struct {
	Actors    map[string]Actor    `json:"npcs"`
	Contracts map[string]Contract `json:"contracts"`
	Order     []string            `json:"-"`
}

// OrderedActors returns actors in roster order.
func (s State) OrderedActors() []Actor {
	out := make([]Actor, 0, len(s.Order))
	for _, name := range s.Order {
		if a, ok := s.Actors[name]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ActiveContracts returns contracts that still have at least one attached participant.
func (s State) ActiveContracts() map[string]Contract {
	out := make(map[string]Contract)
	for _, a := range s.Actors {
		if a.ActiveContract == "" {
			continue
		}
		if c, ok := s.Contracts[a.ActiveContract]; ok {
			out[c.ID] = c
		}
	}
	return out
}

// CoLocated returns the other actors sharing name's location, sorted by roster order.
func (s State) CoLocated(name string) []string {
	self, ok := s.Actors[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(s.Order))
	for _, other := range s.Order {
		if other == name {
			continue
		}
		if a, ok := s.Actors[other]; ok && a.Location == self.Location {
			out = append(out, other)
		}
	}
	return out
}

// ContractIDs returns every known contract id in lexical order.
func (s State) ContractIDs() []string {
	ids := make([]string, 0, len(s.Contracts))
	for id := range s.Contracts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneActor(a *Actor) Actor {
	out := *a
	if a.PendingDirective != nil {
		d := *a.PendingDirective
		out.PendingDirective = &d
	}
	return out
}

func cloneContract(c *Contract) Contract {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	return out
}

// Intent is one actor's proposal for the current turn. It lives only for the turn.
type Intent struct {
	Actor    string  `json:"npc"`
	Thought  string  `json:"thought"`
	Action   string  `json:"action"`
	Dialogue *string `json:"dialogue"`
}
