package recovery

import (
	"context"
	"fmt"

	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/metrics"
	"github.com/loykin/drwatch/internal/store"
)

// FailoverResult describes a completed failover.
type FailoverResult struct {
	Moved       bool
	Record      string // encoded record appended to the destination
	Source      string
	Destination string
}

// Failover moves the encoded content of a primary store to a backup store.
type Failover struct {
	codec  codec.Codec
	events *history.Recorder
}

func NewFailover(c codec.Codec, events *history.Recorder) *Failover {
	if c == nil {
		c = codec.ROT13{}
	}
	if events == nil {
		events = history.NewRecorder(nil, 0)
	}
	return &Failover{codec: c, events: events}
}

// Execute reads primary as one blob, appends its encoding to backup as a single
// record and clears primary. An empty primary is left untouched.
// Partial progress is not rolled back: when the clear fails after a successful
// append, primary keeps its data and backup holds the encoded copy.
func (f *Failover) Execute(ctx context.Context, primary, backup store.Store) (FailoverResult, error) {
	res := FailoverResult{Source: primary.Name(), Destination: backup.Name()}

	blob, err := primary.ReadBlob(ctx)
	if err != nil {
		return res, f.fail(ctx, res, &StoreError{Op: OpRead, Store: res.Source, Err: err})
	}
	if blob == "" {
		f.events.Record(ctx, history.Event{
			Type:    history.EventFailoverSkipped,
			Message: fmt.Sprintf("no data in %s to move", res.Source),
			Source:  res.Source,
		})
		metrics.IncFailover("skipped")
		return res, nil
	}

	encoded := f.codec.Encode(blob)
	if err := backup.AppendLine(ctx, encoded); err != nil {
		return res, f.fail(ctx, res, &StoreError{Op: OpAppend, Store: res.Destination, Err: err})
	}
	if err := primary.Clear(ctx); err != nil {
		return res, f.fail(ctx, res, &StoreError{Op: OpClear, Store: res.Source, Err: err})
	}

	res.Moved = true
	res.Record = encoded
	f.events.Record(ctx, history.Event{
		Type:        history.EventFailover,
		Severity:    history.SeverityCritical,
		Message:     fmt.Sprintf("disaster simulated: encoded data moved from %s to %s", res.Source, res.Destination),
		Source:      res.Source,
		Destination: res.Destination,
	})
	metrics.IncFailover("moved")
	return res, nil
}

func (f *Failover) fail(ctx context.Context, res FailoverResult, err error) error {
	f.events.Record(ctx, history.Event{
		Type:        history.EventError,
		Severity:    history.SeverityError,
		Message:     "error simulating disaster",
		Source:      res.Source,
		Destination: res.Destination,
		Error:       err.Error(),
	})
	metrics.IncFailover("error")
	return err
}
