// Package block defines the value types that move through the translation
// pipeline: typed text blocks produced by the parser and consumed by the
// translator and assembler. Blocks are immutable once produced; stages hand
// them off rather than sharing them.
package block

import "fmt"

// Kind classifies a contiguous span of input text.
type Kind int

const (
	// NaturalLanguage is prose that must be translated by a model backend.
	NaturalLanguage Kind = iota
	// Code is text that already parses (or is intended) as Python.
	Code
	// Mixed is a natural-language instruction followed inline by code.
	Mixed
	// Comment is a comment-only span, preserved verbatim.
	Comment
)

// String returns the lowercase name used in logs and metadata.
func (k Kind) String() string {
	switch k {
	case NaturalLanguage:
		return "natural_language"
	case Code:
		return "code"
	case Mixed:
		return "mixed"
	case Comment:
		return "comment"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// LineRange is an inclusive 1-based span of source lines.
type LineRange struct {
	Start int
	End   int
}

// Block is a contiguous span of input text of a single kind.
// Metadata carries kind-specific extras; for Mixed blocks the keys
// "instruction" and "code" hold the two halves so translation can replace
// only the natural-language portion.
type Block struct {
	Kind     Kind
	Content  string
	Lines    LineRange
	Metadata map[string]string
}

// Meta returns the metadata value for key, or "" when absent.
func (b Block) Meta(key string) string {
	if b.Metadata == nil {
		return ""
	}
	return b.Metadata[key]
}

// WithMeta returns a copy of the block with key set in a copied metadata map.
// The receiver is never mutated.
func (b Block) WithMeta(key, value string) Block {
	md := make(map[string]string, len(b.Metadata)+1)
	for k, v := range b.Metadata {
		md[k] = v
	}
	md[key] = value
	b.Metadata = md
	return b
}

// ParseError is a structured, recoverable parse failure carrying the
// offending span. The pipeline treats the span as opaque code and hands it
// to the model as-is.
type ParseError struct {
	Line   int
	Column int
	Reason string
	Span   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d, col %d: %s", e.Line, e.Column, e.Reason)
}

// Outcome is the parser result: exactly one of Blocks or Err is populated.
type Outcome struct {
	Blocks []Block
	Err    *ParseError
}

// OK reports whether the outcome carries blocks rather than an error.
func (o Outcome) OK() bool { return o.Err == nil }
