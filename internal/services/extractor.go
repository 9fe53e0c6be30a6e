package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is wrapped by every ExtractError
var ErrMalformed = errors.New("malformed model output")

// ExtractError carries the raw model reply that could not be parsed
type ExtractError struct {
	Raw string
	Err error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%v: %v", ErrMalformed, e.Err)
}

func (e *ExtractError) Unwrap() error { return ErrMalformed }

// JSONKind selects the delimiters the extractor looks for
type JSONKind int

const (
	KindObject JSONKind = iota
	KindArray
)

func (k JSONKind) delimiters() (string, string) {
	if k == KindArray {
		return "[", "]"
	}
	return "{", "}"
}

// ExtractJSON finds the JSON value embedded in free-form model text.
//
// The candidate is the greedy span from the first opening delimiter to the
// last closing one, which strips leading prose, trailing commentary and
// markdown fences. When there is no such span or it does not parse, the whole
// trimmed text is parsed as is. This is a heuristic, not a tokenizer: two
// separate objects in one reply make the span invalid and only the verbatim
// attempt remains.
func ExtractJSON(raw string, kind JSONKind) (interface{}, error) {
	open, closing := kind.delimiters()

	var spanErr error
	start := strings.Index(raw, open)
	end := strings.LastIndex(raw, closing)
	if start >= 0 && end > start {
		var v interface{}
		if spanErr = json.Unmarshal([]byte(raw[start:end+1]), &v); spanErr == nil {
			return v, nil
		}
	}

	var v interface{}
	err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &v)
	if err == nil {
		return v, nil
	}
	if spanErr != nil {
		err = spanErr
	}
	return nil, &ExtractError{Raw: raw, Err: err}
}

// ExtractObject is ExtractJSON for replies that must be a JSON object
func ExtractObject(raw string) (map[string]interface{}, error) {
	v, err := ExtractJSON(raw, KindObject)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil, &ExtractError{Raw: raw, Err: fmt.Errorf("expected object, got %T", v)}
	}
	return obj, nil
}
