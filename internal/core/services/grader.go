package services

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strings"

	"github.com/labelhive/labelhive/internal/core/domain"
)

// AutoGrader compares a probe submission against its known answer. It is a
// pure function of the normalized inputs: the same pair always yields the
// same verdict.
type AutoGrader struct{}

func NewAutoGrader() *AutoGrader { return &AutoGrader{} }

// Match reports whether the submitted payload matches the expected answer.
// Text answers compare case-insensitively after trimming; structured answers
// compare by canonical JSON value; file answers compare refs exactly.
// Mismatched payload kinds never match.
func (g *AutoGrader) Match(submitted, expected domain.Payload) bool {
	if submitted.Kind != expected.Kind {
		return false
	}
	switch expected.Kind {
	case domain.PayloadText:
		return strings.EqualFold(strings.TrimSpace(submitted.Text), strings.TrimSpace(expected.Text))
	case domain.PayloadStructured:
		return jsonEqual(submitted.Structured, expected.Structured)
	case domain.PayloadFile:
		return submitted.FileRef == expected.FileRef
	}
	return false
}

// Score is binary: 100 on match, 0 otherwise.
func (g *AutoGrader) Score(submitted, expected domain.Payload) int {
	if g.Match(submitted, expected) {
		return 100
	}
	return 0
}

// jsonEqual compares two raw JSON documents by value, so key order and
// whitespace differences do not fail a probe.
func jsonEqual(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	return reflect.DeepEqual(av, bv)
}
