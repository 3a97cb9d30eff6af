package domain

import "encoding/json"

// PayloadKind discriminates the variants of a work payload.
type PayloadKind string

const (
	PayloadText       PayloadKind = "text"
	PayloadStructured PayloadKind = "structured"
	PayloadFile       PayloadKind = "file"
)

// Payload is the tagged union carried by work items, probe templates and
// submissions. Exactly one of the value fields is meaningful for a given Kind.
type Payload struct {
	Kind       PayloadKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
	FileRef    string          `json:"file_ref,omitempty"`
}

func TextPayload(s string) Payload {
	return Payload{Kind: PayloadText, Text: s}
}

func StructuredPayload(raw json.RawMessage) Payload {
	return Payload{Kind: PayloadStructured, Structured: raw}
}

func FilePayload(ref string) Payload {
	return Payload{Kind: PayloadFile, FileRef: ref}
}

func (p Payload) IsZero() bool {
	return p.Kind == ""
}
