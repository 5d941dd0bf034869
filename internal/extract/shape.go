package extract

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Shape is a named JSON schema describing which fields a payload must carry and their types.
type Shape struct {
	name   string
	schema *jsonschema.Schema
}

// NewShape compiles schemaJSON (draft 2020-12) under the given name.
func NewShape(name, schemaJSON string) (*Shape, error) {
	s, err := jsonschema.CompileString(name+".schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile %s schema: %w", name, err)
	}
	return &Shape{name: name, schema: s}, nil
}

// MustShape is NewShape for package-level schemas known at compile time.
func MustShape(name, schemaJSON string) *Shape {
	s, err := NewShape(name, schemaJSON)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the shape's name.
func (s *Shape) Name() string { return s.name }

func (s *Shape) validate(v any) error {
	return s.schema.Validate(v)
}
