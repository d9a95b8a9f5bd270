package llm

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	// ErrUpstreamUnavailable is returned when the inference backend cannot be reached
	// or does not answer with a streamable body.
	ErrUpstreamUnavailable = errors.New("upstream model unavailable")

	// ErrUpstreamTimeout is returned by Stream.Next when the backend stays silent
	// for longer than the configured idle timeout.
	ErrUpstreamTimeout = errors.New("upstream model timed out")
)

// Message represents a chat message in a provider-agnostic format
type Message struct {
	Role    string `json:"role"` // "user", "assistant", "system"
	Content string `json:"content"`
}

// Option tunes a single request. Zero values leave the backend default in place.
type Option func(*Options)

type Options struct {
	Temperature float64
	MaxTokens   int
}

func WithTemperature(temp float64) Option {
	return func(o *Options) {
		o.Temperature = temp
	}
}

func WithMaxTokens(n int) Option {
	return func(o *Options) {
		o.MaxTokens = n
	}
}

// Stream is a lazy, single-pass sequence of raw wire chunks from the backend.
//
// Next returns io.EOF once the backend has finished. Close releases the
// underlying connection; it may be called more than once and concurrently
// with a blocked Next, which then returns promptly.
type Stream interface {
	Next() ([]byte, error)
	Close() error
}

// StreamingProvider relays a backend's output incrementally.
type StreamingProvider interface {
	OpenStream(ctx context.Context, history []Message, options ...Option) (Stream, error)
}
