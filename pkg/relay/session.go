package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"magic-collection-be/pkg/llm"
	"magic-collection-be/pkg/llm/chunk"

	"github.com/google/uuid"
)

// StreamSession is one in-flight relay. It is owned by the request that started it.
type StreamSession struct {
	Id             uuid.UUID
	HistoryId      uuid.UUID
	OwnerId        uuid.UUID
	Prompt         string
	FreshlyCreated bool

	o      *Orchestrator
	stream llm.Stream
	state  atomic.Int32

	// Only the goroutine running Relay appends to answer.
	answer strings.Builder

	closeOnce sync.Once
}

func (s *StreamSession) State() State {
	return State(s.state.Load())
}

// Answer is the accumulated answer text with the thinking preamble still attached.
func (s *StreamSession) Answer() string {
	return s.answer.String()
}

func (s *StreamSession) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// Relay forwards decoded deltas to the sink in arrival order while accumulating
// the answer. It returns nil once the exchange has been handed to bookkeeping.
func (s *StreamSession) Relay(sink Sink) error {
	defer s.close()

	if s.State() != StateStreaming {
		return ErrClientDisconnected
	}

	if closed := sink.Closed(); closed != nil {
		stop := make(chan struct{})
		defer close(stop)
		go func() {
			select {
			case <-closed:
				s.Abort()
			case <-stop:
			}
		}()
	}

	if s.FreshlyCreated {
		if err := sink.Write(HistorySentinel(s.HistoryId)); err != nil {
			s.Abort()
			return ErrClientDisconnected
		}
	}

	for {
		if s.State() != StateStreaming {
			return ErrClientDisconnected
		}

		raw, err := s.stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if s.State() == StateAborted {
				return ErrClientDisconnected
			}
			s.abort("upstream", err)
			return fmt.Errorf("%w: %v", ErrUpstreamInterrupted, err)
		}

		ev, err := chunk.Decode(raw)
		if err != nil {
			s.o.logger.Debug("RELAY", "Skipping malformed chunk", map[string]interface{}{
				"session_id": s.Id.String(),
				"chunk":      string(raw),
			})
			continue
		}

		if ev.ContentDelta != "" {
			s.answer.WriteString(ev.ContentDelta)
			if err := sink.Write(ev.ContentDelta); err != nil {
				s.Abort()
				return ErrClientDisconnected
			}
		}

		if ev.IsFinal {
			break
		}
	}

	return s.finalize()
}

func (s *StreamSession) finalize() error {
	if !s.transition(StateStreaming, StateFinalizing) {
		return ErrClientDisconnected
	}
	_ = s.stream.Close()

	evt := ExchangeCompleted{
		HistoryId: s.HistoryId,
		OwnerId:   s.OwnerId,
		Prompt:    s.Prompt,
		Answer:    chunk.StripThinkingPreamble(s.answer.String()),
	}
	if err := s.o.dispatcher.DispatchCompleted(context.Background(), evt); err != nil {
		s.o.logger.Error("RELAY", "Failed to schedule exchange persistence", map[string]interface{}{
			"session_id": s.Id.String(),
			"history_id": s.HistoryId.String(),
			"error":      err.Error(),
		})
	}
	return nil
}

// Abort cancels the upstream stream and schedules cleanup of a freshly created
// history. Only the first call from STREAMING has any effect.
func (s *StreamSession) Abort() {
	s.abort("client", nil)
}

func (s *StreamSession) abort(cause string, reason error) {
	if !s.transition(StateStreaming, StateAborted) {
		return
	}
	_ = s.stream.Close()

	details := map[string]interface{}{
		"session_id": s.Id.String(),
		"history_id": s.HistoryId.String(),
		"cause":      cause,
	}
	if reason != nil {
		details["error"] = reason.Error()
	}
	s.o.logger.Info("RELAY", "Relay aborted", details)

	if s.FreshlyCreated {
		s.o.scheduleAbandoned(s.HistoryId, s.OwnerId)
	}
}

func (s *StreamSession) close() {
	s.closeOnce.Do(func() {
		_ = s.stream.Close()
		s.state.Store(int32(StateClosed))
		if s.o.registry != nil {
			s.o.registry.Remove(s.Id)
		}
	})
}
