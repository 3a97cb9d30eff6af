package services

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/labelhive/labelhive/internal/core/domain"
)

func TestAutoGraderTextNormalization(t *testing.T) {
	g := NewAutoGrader()

	// Case-insensitive match.
	assert.True(t, g.Match(domain.TextPayload("Paris"), domain.TextPayload("paris")))
	// Whitespace-trimmed.
	assert.True(t, g.Match(domain.TextPayload("  paris \n"), domain.TextPayload("Paris")))
	// Plain mismatch.
	assert.False(t, g.Match(domain.TextPayload("Rome"), domain.TextPayload("Paris")))
	// Interior whitespace is significant.
	assert.False(t, g.Match(domain.TextPayload("pa ris"), domain.TextPayload("paris")))
}

func TestAutoGraderStructuralEquality(t *testing.T) {
	g := NewAutoGrader()

	a := domain.StructuredPayload(json.RawMessage(`{"label":"cat","boxes":[1,2,3]}`))
	b := domain.StructuredPayload(json.RawMessage(`{ "boxes": [1, 2, 3], "label": "cat" }`))
	assert.True(t, g.Match(a, b), "key order and whitespace must not matter")

	c := domain.StructuredPayload(json.RawMessage(`{"label":"dog","boxes":[1,2,3]}`))
	assert.False(t, g.Match(a, c))
}

func TestAutoGraderFileRefs(t *testing.T) {
	g := NewAutoGrader()

	assert.True(t, g.Match(domain.FilePayload("s3://bucket/a.png"), domain.FilePayload("s3://bucket/a.png")))
	// File refs compare exactly, no case folding.
	assert.False(t, g.Match(domain.FilePayload("s3://bucket/A.png"), domain.FilePayload("s3://bucket/a.png")))
}

func TestAutoGraderKindMismatch(t *testing.T) {
	g := NewAutoGrader()
	assert.False(t, g.Match(domain.TextPayload(`{"x":1}`), domain.StructuredPayload(json.RawMessage(`{"x":1}`))))
}

func TestAutoGraderScoreIsBinary(t *testing.T) {
	g := NewAutoGrader()
	assert.Equal(t, 100, g.Score(domain.TextPayload("ok"), domain.TextPayload("OK")))
	assert.Equal(t, 0, g.Score(domain.TextPayload("no"), domain.TextPayload("OK")))
}

func TestAutoGraderDeterministic(t *testing.T) {
	g := NewAutoGrader()
	sub := domain.TextPayload(" Paris ")
	exp := domain.TextPayload("paris")

	first := g.Match(sub, exp)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, g.Match(sub, exp))
	}
}
