package history

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/loykin/drwatch/internal/logger"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
	closed bool
}

func (c *captureSink) Send(_ context.Context, e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

func (c *captureSink) Close() error {
	c.closed = true
	return nil
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	l, _ := logger.Config{Slog: logger.SlogConfig{Level: logger.LevelDebug}, Console: buf}.NewSlogger()
	return l
}

func TestRecorder_LogsAndFansOut(t *testing.T) {
	var buf bytes.Buffer
	a, b := &captureSink{}, &captureSink{err: errors.New("down")}
	rec := NewRecorder(newTestLogger(&buf), 0, a, b)

	rec.Record(context.Background(), Event{
		Type:        EventFailover,
		Severity:    SeverityCritical,
		IncidentID:  "inc-1",
		Message:     "disaster simulated",
		Source:      "primary_server.txt",
		Destination: "backup_server.txt",
	})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("each sink should receive the event, got %d and %d", len(a.events), len(b.events))
	}
	got := a.events[0]
	if got.OccurredAt.IsZero() {
		t.Fatalf("event must be timestamped")
	}
	out := buf.String()
	for _, want := range []string{"level=CRITICAL", "event=failover", "incident=inc-1", "source=primary_server.txt", "destination=backup_server.txt"} {
		if !strings.Contains(out, want) {
			t.Fatalf("log output missing %q: %s", want, out)
		}
	}
	if !strings.Contains(out, "history sink send failed") {
		t.Fatalf("sink failure should be logged at debug: %s", out)
	}
}

func TestRecorder_DefaultSeverityAndRetention(t *testing.T) {
	var buf bytes.Buffer
	rec := NewRecorder(newTestLogger(&buf), 2)
	ctx := context.Background()
	rec.Record(ctx, Event{Type: EventPoll, Message: "one"})
	rec.Record(ctx, Event{Type: EventPoll, Message: "two"})
	rec.Record(ctx, Event{Type: EventPoll, Message: "three"})

	recent := rec.Recent()
	if len(recent) != 2 || recent[0].Message != "two" || recent[1].Message != "three" {
		t.Fatalf("unexpected retained events: %+v", recent)
	}
	if recent[0].Severity != SeverityInfo {
		t.Fatalf("default severity should be INFO, got %s", recent[0].Severity)
	}
	if !strings.Contains(buf.String(), "level=INFO") {
		t.Fatalf("expected info log: %s", buf.String())
	}
}

func TestRecorder_Close(t *testing.T) {
	s := &captureSink{}
	rec := NewRecorder(nil, 0, s)
	if err := rec.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !s.closed {
		t.Fatalf("closable sinks must be closed")
	}
}

func TestRecorder_IncidentFromContext(t *testing.T) {
	var buf bytes.Buffer
	sink := &captureSink{}
	r := NewRecorder(newTestLogger(&buf), 0, sink)

	ctx := WithIncident(context.Background(), "inc-1")
	r.Record(ctx, Event{Type: EventBreach, Message: "limit"})
	r.Record(ctx, Event{Type: EventBreach, Message: "explicit", IncidentID: "inc-2"})

	if got := sink.events[0].IncidentID; got != "inc-1" {
		t.Fatalf("incident from context not applied: %q", got)
	}
	if got := sink.events[1].IncidentID; got != "inc-2" {
		t.Fatalf("explicit incident overwritten: %q", got)
	}
	if !strings.Contains(buf.String(), "incident=inc-1") {
		t.Fatalf("incident attr missing from log: %s", buf.String())
	}
}
