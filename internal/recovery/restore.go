package recovery

import (
	"context"
	"fmt"

	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/metrics"
	"github.com/loykin/drwatch/internal/store"
)

// RestoreResult is the terminal outcome of a restore. Done is always true once
// Execute returns; the caller decides how the run ends.
type RestoreResult struct {
	Restored    bool
	Record      string // decoded text appended to the destination
	Remaining   int    // records left in the source
	Source      string
	Destination string
	Done        bool
	Err         error
}

// Restore moves the most recent backup record, decoded, back to primary.
type Restore struct {
	codec  codec.Codec
	events *history.Recorder
}

func NewRestore(c codec.Codec, events *history.Recorder) *Restore {
	if c == nil {
		c = codec.ROT13{}
	}
	if events == nil {
		events = history.NewRecorder(nil, 0)
	}
	return &Restore{codec: c, events: events}
}

// Execute restores only the last record of backup. Older records stay in backup,
// in order, for a later restore.
func (r *Restore) Execute(ctx context.Context, backup, primary store.Store) RestoreResult {
	res := RestoreResult{Source: backup.Name(), Destination: primary.Name()}
	res.Err = r.restore(ctx, backup, primary, &res)

	switch {
	case res.Err != nil:
		r.events.Record(ctx, history.Event{
			Type:        history.EventError,
			Severity:    history.SeverityError,
			Message:     "error restoring data",
			Source:      res.Source,
			Destination: res.Destination,
			Error:       res.Err.Error(),
		})
		metrics.IncRestore("error")
	case res.Restored:
		metrics.IncRestore("restored")
	default:
		metrics.IncRestore("skipped")
	}

	res.Done = true
	r.events.Record(ctx, history.Event{Type: history.EventCompleted, Message: "simulation completed"})
	return res
}

func (r *Restore) restore(ctx context.Context, backup, primary store.Store, res *RestoreResult) error {
	records, err := backup.ReadAll(ctx)
	if err != nil {
		return &StoreError{Op: OpRead, Store: res.Source, Err: err}
	}
	if len(records) == 0 {
		r.events.Record(ctx, history.Event{
			Type:    history.EventRestoreSkipped,
			Message: "no stored data to restore",
			Source:  res.Source,
		})
		return nil
	}

	last := records[len(records)-1]
	rest := records[:len(records)-1]
	decoded, err := r.codec.Decode(last)
	if err != nil {
		return fmt.Errorf("decode last record of %s: %w", res.Source, err)
	}
	if err := primary.AppendLine(ctx, decoded); err != nil {
		return &StoreError{Op: OpAppend, Store: res.Destination, Err: err}
	}
	res.Restored = true
	res.Record = decoded
	r.events.Record(ctx, history.Event{
		Type:        history.EventRestore,
		Message:     fmt.Sprintf("recovery successful: decoded data restored to %s", res.Destination),
		Source:      res.Source,
		Destination: res.Destination,
	})

	if err := backup.WriteAll(ctx, rest); err != nil {
		return &StoreError{Op: OpWrite, Store: res.Source, Err: err}
	}
	res.Remaining = len(rest)
	r.events.Record(ctx, history.Event{
		Type:    history.EventBackupTrimmed,
		Message: fmt.Sprintf("deleted restored data from %s", res.Source),
		Source:  res.Source,
	})
	return nil
}
