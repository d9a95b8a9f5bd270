// Package chunk decodes the newline-delimited JSON chunks emitted by an
// Ollama-compatible /api/chat stream.
package chunk

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

// ThinkingDelimiter closes the reasoning preamble some models emit before the answer.
const ThinkingDelimiter = "</think>"

// ErrMalformed marks a chunk that carries nothing usable. Callers skip it.
var ErrMalformed = errors.New("malformed chunk")

// TokenEvent is one normalized piece of model output.
type TokenEvent struct {
	ContentDelta string
	IsFinal      bool
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type wireChunk struct {
	Message *wireMessage `json:"message"`
	Done    *bool        `json:"done"`
}

// Decode parses one wire chunk. A chunk with neither a message nor a done
// field, or one that is not valid JSON, yields ErrMalformed.
func Decode(raw []byte) (TokenEvent, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return TokenEvent{}, ErrMalformed
	}

	var c wireChunk
	if err := json.Unmarshal(raw, &c); err != nil {
		return TokenEvent{}, ErrMalformed
	}
	if c.Message == nil && c.Done == nil {
		return TokenEvent{}, ErrMalformed
	}

	var ev TokenEvent
	if c.Message != nil {
		ev.ContentDelta = c.Message.Content
	}
	if c.Done != nil {
		ev.IsFinal = *c.Done
	}
	return ev, nil
}

// StripThinkingPreamble returns the text after the last ThinkingDelimiter,
// or the whole answer when the delimiter never appears.
func StripThinkingPreamble(answer string) string {
	idx := strings.LastIndex(answer, ThinkingDelimiter)
	if idx < 0 {
		return answer
	}
	return answer[idx+len(ThinkingDelimiter):]
}
