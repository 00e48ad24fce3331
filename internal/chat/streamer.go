// Package chat implements the cancellable token-streaming completion
// protocol.
package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/starford/tiwaz/internal/llm"
)

// Event types on the completion stream.
const (
	EventToken     = "token"
	EventNodeStart = "node_start"
	EventStopped   = "stopped"
	EventError     = "error"
)

// Event is one element of a completion stream. Exactly one payload field is
// set, matching the wire shape for each type: token and node_start carry
// Data, stopped carries Message, error carries Content.
type Event struct {
	Type    string `json:"type"`
	Data    string `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Content string `json:"content,omitempty"`
}

// Streamer produces token streams for chat turns and tracks in-flight
// conversations so they can be cancelled. One stream per conversation id: a
// new Stream call for the same id cancels its predecessor.
type Streamer struct {
	gen    llm.Generator
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*stream
}

// stream identifies one in-flight completion so that a finished producer only
// deregisters itself, never a successor that replaced it under the same id.
type stream struct {
	cancel context.CancelFunc
}

// NewStreamer creates a streamer backed by the given generator.
func NewStreamer(gen llm.Generator, logger *slog.Logger) *Streamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Streamer{
		gen:    gen,
		logger: logger.With(slog.String("component", "chat")),
		active: make(map[string]*stream),
	}
}

// Stream starts a completion for message in the given conversation and
// returns the event channel. The channel is closed after the terminal event;
// the sequence is single-pass and not restartable. Callers must drain the
// channel until it is closed: the terminal event is delivered even under
// back-pressure. The producer honors both ctx and Stop for the same
// conversation id.
func (s *Streamer) Stream(ctx context.Context, conversationID, message string) <-chan Event {
	ctx, cancel := context.WithCancel(ctx)
	st := &stream{cancel: cancel}

	s.mu.Lock()
	if prev, ok := s.active[conversationID]; ok {
		prev.cancel()
	}
	s.active[conversationID] = st
	s.mu.Unlock()

	out := make(chan Event, 64)
	go s.run(ctx, st, conversationID, message, out)
	return out
}

// Stop requests early termination of the conversation's in-flight stream.
// Returns false when no stream is active for the id.
func (s *Streamer) Stop(conversationID string) bool {
	s.mu.Lock()
	st, ok := s.active[conversationID]
	s.mu.Unlock()
	if ok {
		st.cancel()
	}
	return ok
}

func (s *Streamer) run(ctx context.Context, st *stream, conversationID, message string, out chan<- Event) {
	defer close(out)
	defer func() {
		st.cancel()
		s.mu.Lock()
		if s.active[conversationID] == st {
			delete(s.active, conversationID)
		}
		s.mu.Unlock()
	}()

	emit := func(ev Event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	emit(Event{Type: EventNodeStart, Data: "generate"})

	err := s.gen.Generate(ctx, message, func(token string) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !emit(Event{Type: EventToken, Data: token}) {
			return ctx.Err()
		}
		return nil
	})

	// Terminal events block until delivered. The buffer may be full at
	// cancellation time, but the consumer keeps draining until the channel is
	// closed, so the send completes and the event is never dropped.
	terminal := func(ev Event) {
		out <- ev
	}

	switch {
	case ctx.Err() != nil:
		terminal(Event{Type: EventStopped, Message: "cancelled"})
		s.logger.Info("stream cancelled", slog.String("conversation_id", conversationID))
	case err != nil && !errors.Is(err, context.Canceled):
		terminal(Event{Type: EventError, Content: err.Error()})
		s.logger.Error("stream failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()))
	default:
		s.logger.Debug("stream complete", slog.String("conversation_id", conversationID))
	}
}
