package chat

import (
	"context"
	"errors"
	"testing"
	"time"
)

// scriptedGenerator emits a fixed token sequence, optionally blocking until
// released so callers can cancel mid-stream.
type scriptedGenerator struct {
	tokens []string
	err    error
	block  chan struct{}
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ string, onToken func(string) error) error {
	for _, tok := range g.tokens {
		if err := onToken(tok); err != nil {
			return err
		}
	}
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.err
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("stream never closed")
		}
	}
}

func TestStreamEmitsTokensInOrder(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"Hello", ", ", "world"}}
	s := NewStreamer(gen, nil)

	events := collect(t, s.Stream(context.Background(), "conv-1", "hi"))

	if len(events) != 4 {
		t.Fatalf("got %d events: %v", len(events), events)
	}
	if events[0].Type != EventNodeStart || events[0].Data != "generate" {
		t.Errorf("first event = %+v", events[0])
	}
	var text string
	for _, ev := range events[1:] {
		if ev.Type != EventToken {
			t.Fatalf("unexpected event %+v", ev)
		}
		text += ev.Data
	}
	if text != "Hello, world" {
		t.Errorf("streamed text = %q", text)
	}
}

func TestStreamReportsGeneratorError(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"partial"}, err: errors.New("model unavailable")}
	s := NewStreamer(gen, nil)

	events := collect(t, s.Stream(context.Background(), "conv-1", "hi"))

	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event = %+v", last)
	}
	if last.Content != "model unavailable" {
		t.Errorf("content = %q", last.Content)
	}
}

func TestStopCancelsStream(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"one"}, block: make(chan struct{})}
	s := NewStreamer(gen, nil)

	events := s.Stream(context.Background(), "conv-1", "hi")

	// Drain up to the point the generator blocks.
	<-events // node_start
	<-events // token

	if !s.Stop("conv-1") {
		t.Fatal("Stop returned false for an active stream")
	}

	got := collect(t, events)
	if len(got) == 0 || got[len(got)-1].Type != EventStopped {
		t.Fatalf("events after stop = %v", got)
	}
	if got[len(got)-1].Message != "cancelled" {
		t.Errorf("message = %q", got[len(got)-1].Message)
	}
}

func TestStoppedEventSurvivesFullBuffer(t *testing.T) {
	// More tokens than the channel buffer holds, and a consumer that does not
	// read until after the stop: the terminal event must still arrive.
	tokens := make([]string, 128)
	for i := range tokens {
		tokens[i] = "x"
	}
	s := NewStreamer(&scriptedGenerator{tokens: tokens}, nil)

	events := s.Stream(context.Background(), "conv-1", "hi")

	// Let the producer fill the buffer and block.
	time.Sleep(50 * time.Millisecond)
	if !s.Stop("conv-1") {
		t.Fatal("Stop returned false for an active stream")
	}

	got := collect(t, events)
	if len(got) == 0 {
		t.Fatal("no events received")
	}
	last := got[len(got)-1]
	if last.Type != EventStopped || last.Message != "cancelled" {
		t.Fatalf("last event = %+v, want stopped", last)
	}
}

func TestStopWithoutActiveStream(t *testing.T) {
	s := NewStreamer(&scriptedGenerator{}, nil)
	if s.Stop("nobody") {
		t.Error("Stop returned true with no active stream")
	}
}

func TestStopAfterCompletion(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"done"}}
	s := NewStreamer(gen, nil)

	collect(t, s.Stream(context.Background(), "conv-1", "hi"))

	if s.Stop("conv-1") {
		t.Error("Stop returned true after the stream finished")
	}
}

func TestNewStreamReplacesPredecessor(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"a"}, block: make(chan struct{})}
	s := NewStreamer(gen, nil)

	first := s.Stream(context.Background(), "conv-1", "one")
	<-first // node_start
	<-first // token

	second := s.Stream(context.Background(), "conv-1", "two")

	got := collect(t, first)
	if len(got) == 0 || got[len(got)-1].Type != EventStopped {
		t.Fatalf("predecessor events = %v", got)
	}

	// The replacement stream is the one Stop now addresses.
	if !s.Stop("conv-1") {
		t.Error("replacement stream not active")
	}
	collect(t, second)
}

func TestContextCancellationStopsStream(t *testing.T) {
	gen := &scriptedGenerator{tokens: []string{"a"}, block: make(chan struct{})}
	s := NewStreamer(gen, nil)

	ctx, cancel := context.WithCancel(context.Background())
	events := s.Stream(ctx, "conv-1", "hi")
	<-events // node_start
	<-events // token
	cancel()

	got := collect(t, events)
	if len(got) == 0 || got[len(got)-1].Type != EventStopped {
		t.Fatalf("events after ctx cancel = %v", got)
	}
}
