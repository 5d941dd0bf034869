package world

import (
	"fmt"
	"strings"
	"sync"
)

// Seed describes an actor's starting position.
type Seed struct {
	Name     string
	Location Location
	Activity string
}

// Store is the single shared registry of actors and contracts. Every mutation takes the write
// lock; reads return deep copies so callers never alias live records.
type Store struct {
	mu        sync.RWMutex
	order     []string
	places    []Location
	locations map[Location]struct{}
	actors    map[string]*Actor
	contracts map[string]*Contract
}

// NewStore builds the fixed actor set. The actor set cannot change afterwards.
func NewStore(locations []Location, seeds []Seed) (*Store, error) {
	if len(locations) == 0 {
		return nil, fmt.Errorf("%w: no locations", ErrInvariant)
	}
	s := &Store{
		locations: make(map[Location]struct{}, len(locations)),
		actors:    make(map[string]*Actor, len(seeds)),
		contracts: make(map[string]*Contract),
	}
	for _, loc := range locations {
		if _, dup := s.locations[loc]; dup {
			continue
		}
		s.locations[loc] = struct{}{}
		s.places = append(s.places, loc)
	}
	for _, seed := range seeds {
		name := strings.TrimSpace(seed.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: empty actor name", ErrInvariant)
		}
		if _, dup := s.actors[name]; dup {
			return nil, fmt.Errorf("%w: duplicate actor %q", ErrInvariant, name)
		}
		if _, ok := s.locations[seed.Location]; !ok {
			return nil, fmt.Errorf("%w: actor %q at unknown location %q", ErrInvariant, name, seed.Location)
		}
		s.actors[name] = &Actor{Name: name, Location: seed.Location, Activity: seed.Activity}
		s.order = append(s.order, name)
	}
	return s, nil
}

func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := State{
		Actors:    make(map[string]Actor, len(s.actors)),
		Contracts: make(map[string]Contract, len(s.contracts)),
		Order:     append([]string(nil), s.order...),
	}
	for name, a := range s.actors {
		st.Actors[name] = cloneActor(a)
	}
	for id, c := range s.contracts {
		st.Contracts[id] = cloneContract(c)
	}
	return st
}

// Names returns actor names in roster order.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

func (s *Store) Locations() []Location {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Location(nil), s.places...)
}

func (s *Store) Actor(name string) (Actor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.actors[name]
	if !ok {
		return Actor{}, false
	}
	return cloneActor(a), true
}

func (s *Store) Contract(id string) (Contract, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return cloneContract(c), true
}

func (s *Store) HasContract(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.contracts[id]
	return ok
}

func (s *Store) SetLocationAndActivity(actor string, loc Location, activity string) error {
	return s.Apply(func(tx *Tx) error { return tx.SetLocationAndActivity(actor, loc, activity) })
}

// SetActiveContract attaches actor to contractID; an empty id detaches it.
func (s *Store) SetActiveContract(actor, contractID string) error {
	return s.Apply(func(tx *Tx) error { return tx.SetActiveContract(actor, contractID) })
}

func (s *Store) SetPendingDirective(actor, text string) error {
	return s.Apply(func(tx *Tx) error { return tx.SetPendingDirective(actor, text) })
}

func (s *Store) UpsertContract(c Contract) error {
	return s.Apply(func(tx *Tx) error { return tx.UpsertContract(c) })
}

// Apply runs fn under the write lock so a batch of mutations becomes visible all at once. fn must
// not block on external calls. Mutations made before fn returns an error are kept; callers that
// need all-or-nothing validate first.
func (s *Store) Apply(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{s: s}
	defer func() { tx.s = nil }()
	return fn(tx)
}

// Tx is a handle on the store valid only inside Apply.
type Tx struct {
	s *Store
}

func (tx *Tx) actor(name string) (*Actor, error) {
	a, ok := tx.s.actors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownActor, name)
	}
	return a, nil
}

func (tx *Tx) Actor(name string) (Actor, bool) {
	a, ok := tx.s.actors[name]
	if !ok {
		return Actor{}, false
	}
	return cloneActor(a), true
}

func (tx *Tx) Contract(id string) (Contract, bool) {
	c, ok := tx.s.contracts[id]
	if !ok {
		return Contract{}, false
	}
	return cloneContract(c), true
}

func (tx *Tx) SetLocationAndActivity(name string, loc Location, activity string) error {
	a, err := tx.actor(name)
	if err != nil {
		return err
	}
	if _, ok := tx.s.locations[loc]; !ok {
		return fmt.Errorf("%w: unknown location %q", ErrInvariant, loc)
	}
	a.Location = loc
	a.Activity = activity
	return nil
}

func (tx *Tx) SetActiveContract(name, contractID string) error {
	a, err := tx.actor(name)
	if err != nil {
		return err
	}
	if contractID != "" {
		if _, ok := tx.s.contracts[contractID]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownContract, contractID)
		}
	}
	a.ActiveContract = contractID
	return nil
}

func (tx *Tx) SetPendingDirective(name, text string) error {
	a, err := tx.actor(name)
	if err != nil {
		return err
	}
	a.PendingDirective = &text
	return nil
}

// UpsertContract records c. Every participant must be a registered actor.
func (tx *Tx) UpsertContract(c Contract) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("%w: contract without id", ErrInvariant)
	}
	for _, p := range c.Participants {
		if _, ok := tx.s.actors[p]; !ok {
			return fmt.Errorf("%w: contract %s participant %q", ErrUnknownActor, c.ID, p)
		}
	}
	stored := cloneContract(&c)
	tx.s.contracts[c.ID] = &stored
	return nil
}
