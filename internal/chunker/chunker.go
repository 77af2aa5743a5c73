// Package chunker splits document text into fixed-size spans for embedding.
//
// Splitting is a pure function of (content, span size): the same input always
// produces the same spans, and concatenating the spans in order reproduces
// the input exactly. This determinism matters because a retried ingestion run
// must write the same chunk set as the original attempt.
package chunker

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// DefaultSpanSize is the span size used by the ingestion pipeline when no
// override is configured. Counted in runes, not bytes, so multi-byte text
// never splits mid-character.
const DefaultSpanSize = 1024

// ErrDecode indicates the content is not valid UTF-8.
// This is a property of the content itself, not a transient condition;
// callers should treat it as terminal for the document.
var ErrDecode = errors.New("content is not valid UTF-8")

// Split divides content into consecutive, non-overlapping spans of at most
// size runes. The final span may be shorter. Empty content yields no spans.
//
// Returns ErrDecode if content is not valid UTF-8. Returns an error for a
// non-positive size.
func Split(content []byte, size int) ([]string, error) {
	if size <= 0 {
		return nil, fmt.Errorf("span size must be positive, got %d", size)
	}
	if !utf8.Valid(content) {
		return nil, ErrDecode
	}
	if len(content) == 0 {
		return nil, nil
	}

	text := string(content)

	// Pre-size assuming mostly single-byte text; append grows as needed.
	spans := make([]string, 0, len(text)/size+1)

	start := 0 // byte offset of the current span
	count := 0 // runes accumulated in the current span
	for i := range text {
		if count == size {
			spans = append(spans, text[start:i])
			start = i
			count = 0
		}
		count++
	}
	spans = append(spans, text[start:])

	return spans, nil
}
