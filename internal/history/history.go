package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loykin/drwatch/internal/logger"
)

// EventType defines the kind of ledger event.
type EventType string

const (
	EventStarted         EventType = "started"
	EventPoll            EventType = "poll"
	EventBreach          EventType = "breach"
	EventFailover        EventType = "failover"
	EventFailoverSkipped EventType = "failover_skipped"
	EventAwaiting        EventType = "awaiting_confirmation"
	EventNotConfirmed    EventType = "not_confirmed"
	EventConfirmed       EventType = "confirmed"
	EventRestore         EventType = "restore"
	EventRestoreSkipped  EventType = "restore_skipped"
	EventBackupTrimmed   EventType = "backup_trimmed"
	EventCompleted       EventType = "completed"
	EventError           EventType = "error"
)

// Severity of an event, named the way the ledger prints it.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

func (s Severity) slogLevel() slog.Level {
	switch s {
	case SeverityWarning:
		return slog.LevelWarn
	case SeverityError:
		return slog.LevelError
	case SeverityCritical:
		return logger.LevelCritical
	}
	return slog.LevelInfo
}

// Event is one ledger entry. It is logged and exported to sinks.
type Event struct {
	Type        EventType `json:"type"`
	Severity    Severity  `json:"severity"`
	OccurredAt  time.Time `json:"occurred_at"`
	IncidentID  string    `json:"incident_id,omitempty"`
	Message     string    `json:"message"`
	Source      string    `json:"source,omitempty"`
	Destination string    `json:"destination,omitempty"`
	Reading     float64   `json:"reading,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// Sink is a destination for ledger events (analytics/audit systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Recorder writes events to the event log and fans them out to sinks.
// Sink failures are logged and never interrupt the workflow.
type Recorder struct {
	log   *slog.Logger
	sinks []Sink
	now   func() time.Time

	mu     sync.Mutex
	events []Event
	keep   int
}

// NewRecorder returns a Recorder logging through log. keep bounds the number of
// recent events retained for Recent (0 disables retention).
func NewRecorder(log *slog.Logger, keep int, sinks ...Sink) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{log: log, sinks: sinks, now: time.Now, keep: keep}
}

// Logger returns the underlying slog logger.
func (r *Recorder) Logger() *slog.Logger { return r.log }

type incidentKey struct{}

// WithIncident returns a context whose recorded events carry the incident id.
func WithIncident(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, incidentKey{}, id)
}

// IncidentFrom returns the incident id stored by WithIncident, if any.
func IncidentFrom(ctx context.Context) string {
	id, _ := ctx.Value(incidentKey{}).(string)
	return id
}

// Record stamps e (if needed), logs it at its severity and sends it to every sink.
func (r *Recorder) Record(ctx context.Context, e Event) {
	if e.IncidentID == "" {
		e.IncidentID = IncidentFrom(ctx)
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = r.now().UTC()
	}
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	attrs := []any{slog.String("event", string(e.Type))}
	if e.IncidentID != "" {
		attrs = append(attrs, slog.String("incident", e.IncidentID))
	}
	if e.Source != "" {
		attrs = append(attrs, slog.String("source", e.Source))
	}
	if e.Destination != "" {
		attrs = append(attrs, slog.String("destination", e.Destination))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	r.log.Log(ctx, e.Severity.slogLevel(), e.Message, attrs...)

	if r.keep > 0 {
		r.mu.Lock()
		r.events = append(r.events, e)
		if len(r.events) > r.keep {
			r.events = append([]Event(nil), r.events[len(r.events)-r.keep:]...)
		}
		r.mu.Unlock()
	}

	for _, s := range r.sinks {
		if err := s.Send(ctx, e); err != nil {
			r.log.Debug("history sink send failed", "event", string(e.Type), "error", err)
		}
	}
}

// Recent returns the retained events, oldest first.
func (r *Recorder) Recent() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Close closes every sink that implements io.Closer.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
