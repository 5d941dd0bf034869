package extract

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

type sample struct {
	Name     string  `json:"name"`
	Count    int     `json:"count"`
	Dialogue *string `json:"dialogue"`
}

var sampleShape = MustShape("sample", `{
	"type": "object",
	"required": ["name", "count"],
	"properties": {
		"name": {"type": "string"},
		"count": {"type": "integer"},
		"dialogue": {"type": ["string", "null"]}
	}
}`)

func TestStripFence(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"Sure!\n```json\n{\"a\":1}\n```\nbye", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"```JSON {\"a\":1}```", `{"a":1}`},
		{"first ```json\n{\"a\":1}\n``` second ```json\n{\"b\":2}\n```", `{"a":1}`},
		{"unterminated ```json\n{\"a\":1}", `{"a":1}`},
	}
	for _, tc := range cases {
		if got := StripFence(tc.in); got != tc.want {
			t.Fatalf("StripFence(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCandidate(t *testing.T) {
	got, err := Candidate(`noise {"a":{"b":1}} trailing`)
	if err != nil {
		t.Fatalf("Candidate() error = %v", err)
	}
	if got != `{"a":{"b":1}}` {
		t.Fatalf("Candidate() = %q", got)
	}
	for _, in := range []string{"no braces at all", "} backwards {", ""} {
		if _, err := Candidate(in); err == nil {
			t.Fatalf("Candidate(%q) expected error", in)
		}
	}
}

func TestExtractIsIdempotentAcrossWrapping(t *testing.T) {
	bare := `{"name":"bear","count":2,"dialogue":"hm"}`
	wrapped := "Here you go, as requested:\n```json\n" + bare + "\n```\nLet me know if you need more."
	prose := "I think the answer is " + bare + " and that's final."

	want, err := ExtractWith[sample](bare, sampleShape)
	if err != nil {
		t.Fatalf("ExtractWith(bare) error = %v", err)
	}
	for _, raw := range []string{wrapped, prose} {
		got, err := ExtractWith[sample](raw, sampleShape)
		if err != nil {
			t.Fatalf("ExtractWith(%q) error = %v", raw, err)
		}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("ExtractWith(%q) = %+v, want %+v", raw, got, want)
		}
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	cases := []string{
		"I would rather not answer.",
		"```json\nnot even close\n```",
		`{"name": "bear", "count": }`,
		`{"name":"bear"} and {"count":1}`,
	}
	for _, raw := range cases {
		_, err := ExtractWith[sample](raw, sampleShape)
		if !errors.Is(err, ErrMalformedJSON) {
			t.Fatalf("ExtractWith(%q) error = %v, want ErrMalformedJSON", raw, err)
		}
		if errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("ExtractWith(%q) should not be a schema mismatch", raw)
		}
		got, ok := RawOf(err)
		if !ok || got != raw {
			t.Fatalf("RawOf() = %q, %v; want original raw", got, ok)
		}
	}
}

func TestExtractSchemaMismatch(t *testing.T) {
	cases := []string{
		`{"name":"bear"}`,
		`{"name":"bear","count":"two"}`,
		`{"name":"bear","count":1.5}`,
		`{"name":"bear","count":1,"dialogue":7}`,
	}
	for _, raw := range cases {
		_, err := ExtractWith[sample](raw, sampleShape)
		if !errors.Is(err, ErrSchemaMismatch) {
			t.Fatalf("ExtractWith(%q) error = %v, want ErrSchemaMismatch", raw, err)
		}
		if errors.Is(err, ErrMalformedJSON) {
			t.Fatalf("ExtractWith(%q) should not be malformed JSON", raw)
		}
		if !strings.Contains(err.Error(), "sample") {
			t.Fatalf("error %q should name the target shape", err)
		}
	}
}

func TestExtractWithoutShapeStillRejectsWrongTypes(t *testing.T) {
	_, err := Extract[sample](`{"name":"bear","count":"two"}`)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("Extract() error = %v, want ErrSchemaMismatch", err)
	}
	got, err := Extract[sample](`{"name":"wolf","count":3,"dialogue":null}`)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if got.Name != "wolf" || got.Count != 3 || got.Dialogue != nil {
		t.Fatalf("Extract() = %+v", got)
	}
}
