package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActorSeed is one actor entry inside roster.yaml.
type ActorSeed struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
	Activity string `yaml:"activity"`
}

// Roster models roster.yaml: the closed set of places and the actors that exist for the
// lifetime of the process.
type Roster struct {
	Version   int         `yaml:"version"`
	Locations []string    `yaml:"locations"`
	Actors    []ActorSeed `yaml:"actors"`
}

const defaultRosterYAML = `# thicket roster
version: 1

locations:
  - forest_clearing
  - deep_forest

actors:
  - name: bear
    location: forest_clearing
    activity: resting
  - name: wolf
    location: forest_clearing
    activity: patrolling
`

// DefaultRoster returns the built-in two-actor roster.
func DefaultRoster() Roster {
	r, err := ParseRoster([]byte(defaultRosterYAML))
	if err != nil {
		panic(fmt.Sprintf("config: default roster invalid: %v", err))
	}
	return r
}

// LoadRoster reads the roster file at path. A missing file yields the default roster.
func LoadRoster(path string) (Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultRoster(), nil
		}
		return Roster{}, fmt.Errorf("config: read roster: %w", err)
	}
	r, err := ParseRoster(data)
	if err != nil {
		return Roster{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return r, nil
}

// ParseRoster decodes and validates roster YAML.
func ParseRoster(data []byte) (Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Roster{}, fmt.Errorf("parse roster: %w", err)
	}
	if err := r.Validate(); err != nil {
		return Roster{}, err
	}
	return r, nil
}

// Validate checks names are unique and every actor starts at a known location.
func (r Roster) Validate() error {
	if len(r.Locations) == 0 {
		return errors.New("roster: at least one location is required")
	}
	if len(r.Actors) == 0 {
		return errors.New("roster: at least one actor is required")
	}
	locations := make(map[string]struct{}, len(r.Locations))
	for _, loc := range r.Locations {
		loc = strings.TrimSpace(loc)
		if loc == "" {
			return errors.New("roster: empty location name")
		}
		if _, dup := locations[loc]; dup {
			return fmt.Errorf("roster: duplicate location %q", loc)
		}
		locations[loc] = struct{}{}
	}
	names := make(map[string]struct{}, len(r.Actors))
	for i, a := range r.Actors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			return fmt.Errorf("roster: actor %d has no name", i)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("roster: duplicate actor %q", name)
		}
		names[name] = struct{}{}
		if _, ok := locations[strings.TrimSpace(a.Location)]; !ok {
			return fmt.Errorf("roster: actor %q starts at unknown location %q", name, a.Location)
		}
	}
	return nil
}
