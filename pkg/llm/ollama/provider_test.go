package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"magic-collection-be/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, s llm.Stream) []string {
	t.Helper()
	var lines []string
	for {
		line, err := s.Next()
		if err == io.EOF {
			return lines
		}
		require.NoError(t, err)
		lines = append(lines, string(line))
	}
}

func TestOpenStream_SendsFullMessageList(t *testing.T) {
	received := make(chan ollamaChatRequest, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received <- req
		_, _ = io.WriteString(w, `{"message":{"role":"assistant","content":"ok"},"done":false}`+"\n")
		_, _ = io.WriteString(w, `{"done":true}`+"\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "deepseek-r1:14b"})
	s, err := p.OpenStream(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "sys"},
		{Role: llm.RoleUser, Content: "q1"},
		{Role: llm.RoleAssistant, Content: "a1"},
		{Role: llm.RoleUser, Content: "q2"},
	}, llm.WithTemperature(0.5), llm.WithMaxTokens(256))
	require.NoError(t, err)
	defer s.Close()

	lines := collect(t, s)
	assert.Len(t, lines, 2)

	got := <-received
	assert.Equal(t, "deepseek-r1:14b", got.Model)
	assert.True(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.Equal(t, 0.5, got.Options.Temperature)
	assert.Equal(t, 256, got.Options.NumPredict)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "assistant", got.Messages[2].Role)
	assert.Equal(t, "q2", got.Messages[3].Content)
}

func TestOpenStream_ReassemblesSplitLines(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		_, _ = io.WriteString(w, `{"message":{"role":"assis`)
		f.Flush()
		time.Sleep(10 * time.Millisecond)
		_, _ = io.WriteString(w, `tant","content":"Hel"}}`+"\n\n")
		f.Flush()
		_, _ = io.WriteString(w, `{"done":true}`)
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m"})
	s, err := p.OpenStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()

	lines := collect(t, s)
	assert.Equal(t, []string{
		`{"message":{"role":"assistant","content":"Hel"}}`,
		`{"done":true}`,
	}, lines)
}

func TestOpenStream_BadStatusIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m"})
	_, err := p.OpenStream(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrUpstreamUnavailable)
}

func TestOpenStream_UnreachableIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	p := NewOllamaProvider(Config{BaseURL: url, ModelName: "m"})
	_, err := p.OpenStream(context.Background(), nil)
	assert.ErrorIs(t, err, llm.ErrUpstreamUnavailable)
}

func TestStream_CloseUnblocksNext(t *testing.T) {
	released := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"partial"}}`+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m"})
	s, err := p.OpenStream(context.Background(), nil)
	require.NoError(t, err)

	_, err = s.Next()
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.Next()
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")

	select {
	case err := <-done:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Next did not return after Close")
	}

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("upstream request was not cancelled")
	}
}

func TestStream_IdleTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"a"}}`+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m", IdleTimeout: 50 * time.Millisecond})
	s, err := p.OpenStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Next()
	require.NoError(t, err)

	_, err = s.Next()
	assert.ErrorIs(t, err, llm.ErrUpstreamTimeout)
}

func TestOpenStream_NoOptionsLeavesBackendDefaults(t *testing.T) {
	received := make(chan map[string]json.RawMessage, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]json.RawMessage
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		received <- req
		_, _ = io.WriteString(w, `{"done":true}`+"\n")
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m"})
	s, err := p.OpenStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()
	collect(t, s)

	got := <-received
	_, hasOptions := got["options"]
	assert.False(t, hasOptions)
}

func TestStream_IdleTimerPausedWhileCallerIsBusy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for _, line := range []string{`{"message":{"content":"a"}}`, `{"message":{"content":"b"}}`, `{"done":true}`} {
			_, _ = io.WriteString(w, line+"\n")
			f.Flush()
			time.Sleep(20 * time.Millisecond)
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOllamaProvider(Config{BaseURL: srv.URL, ModelName: "m", IdleTimeout: 50 * time.Millisecond})
	s, err := p.OpenStream(context.Background(), nil)
	require.NoError(t, err)
	defer s.Close()

	for i := 0; i < 3; i++ {
		_, err := s.Next()
		require.NoError(t, err, "line %d", i)
		// A slow client write between two reads.
		time.Sleep(150 * time.Millisecond)
	}
}
