package recovery

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/logger"
	"github.com/loykin/drwatch/internal/store"
)

type captureSink struct {
	mu     sync.Mutex
	events []history.Event
}

func (c *captureSink) Send(_ context.Context, e history.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) types() []history.EventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]history.EventType, 0, len(c.events))
	for _, e := range c.events {
		out = append(out, e.Type)
	}
	return out
}

func (c *captureSink) find(t history.EventType) (history.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.events {
		if e.Type == t {
			return e, true
		}
	}
	return history.Event{}, false
}

func newRecorder(t *testing.T) (*history.Recorder, *captureSink, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l, _ := logger.Config{Slog: logger.SlogConfig{Level: logger.LevelDebug}, Console: &buf}.NewSlogger()
	sink := &captureSink{}
	return history.NewRecorder(l, 0, sink), sink, &buf
}

// faultyStore fails the named operation and delegates everything else.
type faultyStore struct {
	store.Store
	failOn string
}

var errInjected = errors.New("injected failure")

func (f *faultyStore) ReadAll(ctx context.Context) ([]string, error) {
	if f.failOn == OpRead {
		return nil, errInjected
	}
	return f.Store.ReadAll(ctx)
}

func (f *faultyStore) ReadBlob(ctx context.Context) (string, error) {
	if f.failOn == OpRead {
		return "", errInjected
	}
	return f.Store.ReadBlob(ctx)
}

func (f *faultyStore) AppendLine(ctx context.Context, r string) error {
	if f.failOn == OpAppend {
		return errInjected
	}
	return f.Store.AppendLine(ctx, r)
}

func (f *faultyStore) Clear(ctx context.Context) error {
	if f.failOn == OpClear {
		return errInjected
	}
	return f.Store.Clear(ctx)
}

func (f *faultyStore) WriteAll(ctx context.Context, r []string) error {
	if f.failOn == OpWrite {
		return errInjected
	}
	return f.Store.WriteAll(ctx, r)
}

func records(t *testing.T, s store.Store) []string {
	t.Helper()
	r, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	return r
}

func TestFailover_EmptyPrimaryIsNoop(t *testing.T) {
	rec, sink, _ := newRecorder(t)
	primary := store.NewMemory("primary")
	backup := store.NewMemory("backup", "older")

	res, err := NewFailover(codec.ROT13{}, rec).Execute(context.Background(), primary, backup)
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.Empty(t, records(t, primary))
	assert.Equal(t, []string{"older"}, records(t, backup))

	e, ok := sink.find(history.EventFailoverSkipped)
	require.True(t, ok)
	assert.Equal(t, history.SeverityInfo, e.Severity)
	assert.Equal(t, "no data in primary to move", e.Message)
}

func TestFailover_WhitespaceOnlyPrimaryIsEmpty(t *testing.T) {
	rec, _, _ := newRecorder(t)
	primary := store.NewMemory("primary", "  ", "\t")
	backup := store.NewMemory("backup")

	res, err := NewFailover(codec.ROT13{}, rec).Execute(context.Background(), primary, backup)
	require.NoError(t, err)
	assert.False(t, res.Moved)
	assert.Empty(t, records(t, backup))
}

func TestFailover_MovesEncodedBlob(t *testing.T) {
	rec, sink, _ := newRecorder(t)
	primary := store.NewMemory("primary", "hello world")
	backup := store.NewMemory("backup", "previous")

	res, err := NewFailover(codec.ROT13{}, rec).Execute(context.Background(), primary, backup)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Equal(t, "uryyb jbeyq", res.Record)
	assert.Empty(t, records(t, primary))
	assert.Equal(t, []string{"previous", "uryyb jbeyq"}, records(t, backup))

	e, ok := sink.find(history.EventFailover)
	require.True(t, ok)
	assert.Equal(t, history.SeverityCritical, e.Severity)
	assert.Equal(t, "primary", e.Source)
	assert.Equal(t, "backup", e.Destination)
	assert.Contains(t, e.Message, "from primary to backup")
}

func TestFailover_MultiLinePrimaryBecomesOneRecord(t *testing.T) {
	for _, name := range codec.Names() {
		t.Run(name, func(t *testing.T) {
			c, err := codec.ByName(name)
			require.NoError(t, err)
			rec, _, _ := newRecorder(t)
			primary := store.NewMemory("primary", "line one", "line two", "")
			backup := store.NewMemory("backup")

			_, err = NewFailover(c, rec).Execute(context.Background(), primary, backup)
			require.NoError(t, err)
			got := records(t, backup)
			require.Len(t, got, 1)

			decoded, err := c.Decode(got[0])
			require.NoError(t, err)
			assert.Equal(t, "line one\nline two", decoded)
		})
	}
}

func TestFailover_Errors(t *testing.T) {
	cases := []struct {
		name       string
		primaryOp  string
		backupOp   string
		wantOp     string
		wantRead   bool
		wantBackup []string
		wantPrim   []string
	}{
		{name: "read", primaryOp: OpRead, wantOp: OpRead, wantRead: true, wantBackup: nil, wantPrim: []string{"data"}},
		{name: "append", backupOp: OpAppend, wantOp: OpAppend, wantBackup: nil, wantPrim: []string{"data"}},
		// no rollback: backup keeps the copy and primary keeps stale data
		{name: "clear", primaryOp: OpClear, wantOp: OpClear, wantBackup: []string{"qngn"}, wantPrim: []string{"data"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, sink, _ := newRecorder(t)
			pm := store.NewMemory("primary", "data")
			bm := store.NewMemory("backup")
			primary := &faultyStore{Store: pm, failOn: tc.primaryOp}
			backup := &faultyStore{Store: bm, failOn: tc.backupOp}

			res, err := NewFailover(codec.ROT13{}, rec).Execute(context.Background(), primary, backup)
			require.Error(t, err)
			assert.False(t, res.Moved)
			assert.ErrorIs(t, err, errInjected)

			var se *StoreError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, tc.wantOp, se.Op)
			assert.Equal(t, tc.wantRead, IsReadFailure(err))
			assert.Equal(t, !tc.wantRead, IsWriteFailure(err))

			if tc.wantBackup == nil {
				assert.Empty(t, records(t, bm))
			} else {
				assert.Equal(t, tc.wantBackup, records(t, bm))
			}
			assert.Equal(t, tc.wantPrim, records(t, pm))

			e, ok := sink.find(history.EventError)
			require.True(t, ok)
			assert.Equal(t, history.SeverityError, e.Severity)
			assert.Contains(t, e.Error, "injected failure")
		})
	}
}

func TestRestore_EmptyBackup(t *testing.T) {
	rec, sink, _ := newRecorder(t)
	primary := store.NewMemory("primary", "live")
	backup := store.NewMemory("backup")

	res := NewRestore(codec.ROT13{}, rec).Execute(context.Background(), backup, primary)
	assert.True(t, res.Done)
	assert.False(t, res.Restored)
	assert.NoError(t, res.Err)
	assert.Equal(t, []string{"live"}, records(t, primary))
	assert.Empty(t, records(t, backup))
	assert.Equal(t, []history.EventType{history.EventRestoreSkipped, history.EventCompleted}, sink.types())
}

func TestRestore_Session42(t *testing.T) {
	rec, sink, _ := newRecorder(t)
	c := codec.ROT13{}
	primary := store.NewMemory("primary")
	backup := store.NewMemory("backup", c.Encode("session-42"))

	res := NewRestore(c, rec).Execute(context.Background(), backup, primary)
	require.NoError(t, res.Err)
	assert.True(t, res.Done)
	assert.True(t, res.Restored)
	assert.Equal(t, "session-42", res.Record)
	assert.Equal(t, []string{"session-42"}, records(t, primary))
	assert.Empty(t, records(t, backup))
	assert.Equal(t, []history.EventType{
		history.EventRestore,
		history.EventBackupTrimmed,
		history.EventCompleted,
	}, sink.types())
}

func TestRestore_OnlyLastRecord(t *testing.T) {
	rec, _, _ := newRecorder(t)
	c := codec.ROT13{}
	primary := store.NewMemory("primary", "existing")
	backup := store.NewMemory("backup", c.Encode("r1"), c.Encode("r2"), c.Encode("r3"))

	res := NewRestore(c, rec).Execute(context.Background(), backup, primary)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, []string{"existing", "r3"}, records(t, primary))
	assert.Equal(t, []string{c.Encode("r1"), c.Encode("r2")}, records(t, backup))
}

func TestRestore_Errors(t *testing.T) {
	c := codec.ROT13{}
	t.Run("read", func(t *testing.T) {
		rec, _, _ := newRecorder(t)
		backup := &faultyStore{Store: store.NewMemory("backup", "x"), failOn: OpRead}
		res := NewRestore(c, rec).Execute(context.Background(), backup, store.NewMemory("primary"))
		assert.True(t, res.Done)
		assert.True(t, IsReadFailure(res.Err))
		assert.False(t, res.Restored)
	})
	t.Run("append", func(t *testing.T) {
		rec, _, _ := newRecorder(t)
		bm := store.NewMemory("backup", "x")
		primary := &faultyStore{Store: store.NewMemory("primary"), failOn: OpAppend}
		res := NewRestore(c, rec).Execute(context.Background(), bm, primary)
		assert.True(t, res.Done)
		assert.True(t, IsWriteFailure(res.Err))
		assert.Equal(t, []string{"x"}, records(t, bm))
	})
	t.Run("rewrite", func(t *testing.T) {
		rec, sink, _ := newRecorder(t)
		pm := store.NewMemory("primary")
		backup := &faultyStore{Store: store.NewMemory("backup", "k"), failOn: OpWrite}
		res := NewRestore(c, rec).Execute(context.Background(), backup, pm)
		assert.True(t, res.Done)
		assert.True(t, res.Restored)
		var se *StoreError
		require.ErrorAs(t, res.Err, &se)
		assert.Equal(t, OpWrite, se.Op)
		assert.Equal(t, []string{"x"}, records(t, pm))
		_, ok := sink.find(history.EventError)
		assert.True(t, ok)
	})
	t.Run("decode", func(t *testing.T) {
		rec, _, _ := newRecorder(t)
		pm := store.NewMemory("primary")
		bm := store.NewMemory("backup", `bad\`)
		res := NewRestore(c, rec).Execute(context.Background(), bm, pm)
		assert.True(t, res.Done)
		require.Error(t, res.Err)
		assert.Empty(t, records(t, pm))
		assert.Equal(t, []string{`bad\`}, records(t, bm))
	})
}

func TestFailoverThenRestore_FileStores(t *testing.T) {
	dir := t.TempDir()
	primary, err := store.NewFile(filepath.Join(dir, "primary_server.txt"))
	require.NoError(t, err)
	backup, err := store.NewFile(filepath.Join(dir, "backup_server.txt"))
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, primary.AppendLine(ctx, "hello world"))

	rec, _, _ := newRecorder(t)
	c := codec.ROT13{}
	res, err := NewFailover(c, rec).Execute(ctx, primary, backup)
	require.NoError(t, err)
	require.True(t, res.Moved)
	assert.Equal(t, []string{"uryyb jbeyq"}, records(t, backup))
	assert.Empty(t, records(t, primary))

	rr := NewRestore(c, rec).Execute(ctx, backup, primary)
	require.NoError(t, rr.Err)
	assert.Equal(t, []string{"hello world"}, records(t, primary))
	assert.Empty(t, records(t, backup))
}

func TestStoreErrorFormat(t *testing.T) {
	err := &StoreError{Op: OpClear, Store: "primary_server.txt", Err: errInjected}
	assert.Equal(t, "clear primary_server.txt: injected failure", err.Error())
	assert.False(t, IsReadFailure(errInjected))
	assert.False(t, IsWriteFailure(nil))
}
