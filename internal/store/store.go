package store

import (
	"context"
	"errors"
	"strings"
	"unicode"
)

// Store is an ordered sequence of text records persisted under a name.
// Primary and backup are both Stores. Every call is a scoped acquisition of
// the underlying resource: it is released before the call returns, on both
// success and failure. Implementations are not required to be safe against
// concurrent writers from other workflows.
type Store interface {
	// Name identifies the store in events (a file path or logical name).
	Name() string
	// ReadAll returns the records in insertion order.
	ReadAll(ctx context.Context) ([]string, error)
	// ReadBlob returns the whole content as one string with trailing
	// whitespace trimmed.
	ReadBlob(ctx context.Context) (string, error)
	// AppendLine appends one record.
	AppendLine(ctx context.Context, record string) error
	// Clear removes every record.
	Clear(ctx context.Context) error
	// WriteAll replaces the content with records.
	WriteAll(ctx context.Context, records []string) error
	Close() error
}

var ErrClosed = errors.New("store closed")

// Blob joins records the way a line-oriented file would hold them and trims
// trailing whitespace. Backends without a native blob form use it for ReadBlob.
func Blob(records []string) string {
	return strings.TrimRightFunc(strings.Join(records, "\n"), unicode.IsSpace)
}
