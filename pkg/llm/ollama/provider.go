package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"magic-collection-be/pkg/llm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const chatEndpoint = "/api/chat"

// Config carries everything the provider needs to reach one backend.
type Config struct {
	BaseURL   string
	ModelName string
	// Timeout bounds a whole streamed answer. Zero means no bound.
	Timeout time.Duration
	// IdleTimeout bounds the silence between two streamed lines. Zero means no bound.
	IdleTimeout time.Duration
}

type OllamaProvider struct {
	cfg    Config
	Client *http.Client
}

// Ensure OllamaProvider implements StreamingProvider.
var _ llm.StreamingProvider = &OllamaProvider{}

func NewOllamaProvider(cfg Config) *OllamaProvider {
	return &OllamaProvider{
		cfg: cfg,
		// No client-level timeout: it would cut long streams. Deadlines come from the context.
		Client: &http.Client{},
	}
}

// --- Request/Response structs (Internal to this package) ---

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  *ollamaOptions  `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

func (o *OllamaProvider) buildRequest(history []llm.Message, opts []llm.Option) ([]byte, error) {
	options := &llm.Options{}
	for _, opt := range opts {
		opt(options)
	}

	ollamaMessages := make([]ollamaMessage, len(history))
	for i, msg := range history {
		role := msg.Role
		if role == "model" {
			role = llm.RoleAssistant
		}
		ollamaMessages[i] = ollamaMessage{
			Role:    role,
			Content: msg.Content,
		}
	}

	reqPayload := ollamaChatRequest{
		Model:    o.cfg.ModelName,
		Messages: ollamaMessages,
		Stream:   true,
	}
	if options.Temperature > 0 || options.MaxTokens > 0 {
		reqPayload.Options = &ollamaOptions{
			Temperature: options.Temperature,
			NumPredict:  options.MaxTokens,
		}
	}

	payloadBytes, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return payloadBytes, nil
}

func (o *OllamaProvider) post(ctx context.Context, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+chatEndpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return o.Client.Do(req)
}

// OpenStream issues a streaming chat request and hands back the raw NDJSON lines.
// The returned stream owns the connection; callers must Close it.
func (o *OllamaProvider) OpenStream(ctx context.Context, history []llm.Message, opts ...llm.Option) (llm.Stream, error) {
	ctx, span := otel.Tracer("ollama").Start(ctx, "ollama.OpenStream")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", o.cfg.ModelName),
		attribute.Int("llm.messages", len(history)),
	)

	payload, err := o.buildRequest(history, opts)
	if err != nil {
		return nil, err
	}

	// The stream context outlives this call; it is cancelled by Close.
	var streamCtx context.Context
	var cancel context.CancelFunc
	if o.cfg.Timeout > 0 {
		streamCtx, cancel = context.WithTimeout(ctx, o.cfg.Timeout)
	} else {
		streamCtx, cancel = context.WithCancel(ctx)
	}

	resp, err := o.post(streamCtx, payload)
	if err != nil {
		cancel()
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%w: %v", llm.ErrUpstreamUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK || resp.Body == nil {
		var body []byte
		if resp.Body != nil {
			body, _ = io.ReadAll(io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		cancel()
		span.SetStatus(codes.Error, "bad upstream status")
		return nil, fmt.Errorf("%w: status %d, body: %s", llm.ErrUpstreamUnavailable, resp.StatusCode, string(body))
	}

	return newStream(resp.Body, cancel, o.cfg.IdleTimeout), nil
}

// stream splits the body on newlines so a JSON object delivered across two
// network reads is reassembled before it reaches the decoder.
type stream struct {
	body     io.ReadCloser
	scanner  *bufio.Scanner
	cancel   func()
	idle     time.Duration
	timer    *time.Timer
	timedOut atomic.Bool
	closed   atomic.Bool
	once     sync.Once
}

func newStream(body io.ReadCloser, cancel func(), idle time.Duration) *stream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	s := &stream{
		body:    body,
		scanner: scanner,
		cancel:  cancel,
		idle:    idle,
	}
	if idle > 0 {
		s.timer = time.AfterFunc(idle, func() {
			s.timedOut.Store(true)
			s.cancel()
		})
		s.timer.Stop()
	}
	return s
}

// Next arms the idle timer only while it waits on the backend, so time the
// caller spends delivering a line to a slow client is not counted as silence.
func (s *stream) Next() ([]byte, error) {
	if s.timer != nil {
		s.timer.Reset(s.idle)
		defer s.timer.Stop()
	}
	for s.scanner.Scan() {
		if s.timer != nil {
			s.timer.Reset(s.idle)
		}
		line := s.scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, nil
	}

	switch {
	case s.timedOut.Load(), errors.Is(s.scanner.Err(), context.DeadlineExceeded):
		return nil, llm.ErrUpstreamTimeout
	case s.closed.Load():
		return nil, io.EOF
	case s.scanner.Err() != nil:
		return nil, fmt.Errorf("read upstream stream: %w", s.scanner.Err())
	default:
		return nil, io.EOF
	}
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		if s.timer != nil {
			s.timer.Stop()
		}
		s.cancel()
		err = s.body.Close()
	})
	return err
}
