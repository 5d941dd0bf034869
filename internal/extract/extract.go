// Package extract turns free-form oracle replies into typed payloads.
//
// Parsing runs in two deterministic stages. The fence stage keeps only the first fenced code
// region when one exists; the candidate stage takes the span from the first '{' to the last
// '}'. The candidate is then decoded as generic JSON (failure: ErrMalformedJSON) and checked
// against the target shape (failure: ErrSchemaMismatch). Both errors carry the raw reply.
package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	ErrMalformedJSON  = errors.New("reply does not contain valid JSON")
	ErrSchemaMismatch = errors.New("reply JSON does not match the expected shape")
)

// Error describes an extraction failure. Raw is the untouched oracle reply.
type Error struct {
	Kind   error
	Target string
	Raw    string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("extract %s: %v", e.Target, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// RawOf returns the raw reply attached to an extraction failure, if any.
func RawOf(err error) (string, bool) {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Raw, true
	}
	return "", false
}

const fence = "```"

// StripFence returns the contents of the first fenced region, dropping an optional language
// tag after the opening marker. Text without a fence is returned unchanged. An unterminated
// fence runs to the end of the text.
func StripFence(text string) string {
	open := strings.Index(text, fence)
	if open < 0 {
		return text
	}
	body := text[open+len(fence):]
	body = body[languageTagLen(body):]
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func languageTagLen(s string) int {
	n := 0
	for n < len(s) {
		c := s[n]
		if c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '+' || c == '.' {
			n++
			continue
		}
		break
	}
	return n
}

// Candidate returns the span from the first '{' to the last '}' inclusive.
func Candidate(text string) (string, error) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", errors.New("no opening brace")
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return "", errors.New("no closing brace")
	}
	return text[start : end+1], nil
}

// Extract parses raw into T without schema checks beyond what decoding enforces.
func Extract[T any](raw string) (T, error) {
	return ExtractWith[T](raw, nil)
}

// ExtractWith parses raw into T and, when shape is non-nil, validates the generic JSON value
// against the shape's schema before decoding.
func ExtractWith[T any](raw string, shape *Shape) (T, error) {
	var out T
	target := targetName[T](shape)

	candidate, err := Candidate(StripFence(raw))
	if err != nil {
		return out, &Error{Kind: ErrMalformedJSON, Target: target, Raw: raw, Err: err}
	}

	var generic any
	if err := json.Unmarshal([]byte(candidate), &generic); err != nil {
		return out, &Error{Kind: ErrMalformedJSON, Target: target, Raw: raw, Err: err}
	}

	if shape != nil {
		if err := shape.validate(generic); err != nil {
			return out, &Error{Kind: ErrSchemaMismatch, Target: target, Raw: raw, Err: err}
		}
	}

	if err := json.Unmarshal([]byte(candidate), &out); err != nil {
		var zero T
		return zero, &Error{Kind: ErrSchemaMismatch, Target: target, Raw: raw, Err: err}
	}
	return out, nil
}

func targetName[T any](shape *Shape) string {
	if shape != nil && shape.name != "" {
		return shape.name
	}
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
