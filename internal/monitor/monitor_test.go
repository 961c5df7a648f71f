package monitor

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/confirm"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/logger"
	"github.com/loykin/drwatch/internal/recovery"
	"github.com/loykin/drwatch/internal/store"
)

// seqProbe returns readings in order and repeats the last one.
type seqProbe struct {
	mu       sync.Mutex
	readings []float64
	errs     []error
	calls    int
}

func (p *seqProbe) Utilization(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return 0, p.errs[i]
	}
	if i >= len(p.readings) {
		i = len(p.readings) - 1
	}
	return p.readings[i], nil
}

func (p *seqProbe) Describe() string { return "memory" }

func (p *seqProbe) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

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

func (c *captureSink) ofType(t history.EventType) []history.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []history.Event
	for _, e := range c.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	m       *Monitor
	probe   *seqProbe
	primary *store.Memory
	backup  *store.Memory
	sink    *captureSink
	sleeps  int
}

func newFixture(t *testing.T, p *seqProbe, src confirm.Source, primary, backup *store.Memory) *fixture {
	t.Helper()
	var buf bytes.Buffer
	l, _ := logger.Config{Slog: logger.SlogConfig{Level: logger.LevelDebug}, Console: &buf}.NewSlogger()
	sink := &captureSink{}
	rec := history.NewRecorder(l, 0, sink)
	c := codec.ROT13{}
	gate := confirm.NewGate(src, confirm.Config{Target: primary.Name(), RetryInterval: time.Millisecond}, rec)
	m, err := New(Config{Threshold: 10, PollInterval: time.Second}, Deps{
		Probe:    p,
		Primary:  primary,
		Backup:   backup,
		Failover: recovery.NewFailover(c, rec),
		Gate:     gate,
		Restore:  recovery.NewRestore(c, rec),
		Events:   rec,
	})
	require.NoError(t, err)
	f := &fixture{m: m, probe: p, primary: primary, backup: backup, sink: sink}
	m.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		return ctx.Err()
	}
	return f
}

func read(t *testing.T, s store.Store) []string {
	t.Helper()
	r, err := s.ReadAll(context.Background())
	require.NoError(t, err)
	return r
}

func TestMonitor_NoFailoverAtOrBelowThreshold(t *testing.T) {
	p := &seqProbe{readings: []float64{5, 10, 9.99, 10}}
	f := newFixture(t, p, confirm.NewScripted("yes"), store.NewMemory("primary", "data"), store.NewMemory("backup"))

	ctx, cancel := context.WithCancel(context.Background())
	f.m.sleep = func(ctx context.Context, d time.Duration) error {
		f.sleeps++
		if f.sleeps == 4 {
			cancel()
		}
		return ctx.Err()
	}
	_, err := f.m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "state polling")

	assert.Equal(t, 4, p.Calls())
	assert.Equal(t, []string{"data"}, read(t, f.primary))
	assert.Empty(t, read(t, f.backup))
	assert.Empty(t, f.sink.ofType(history.EventBreach))
	assert.Empty(t, f.sink.ofType(history.EventFailover))
	assert.Len(t, f.sink.ofType(history.EventPoll), 4)
	assert.Equal(t, StatePolling, f.m.State())
}

func TestMonitor_FailoverOnFirstBreach(t *testing.T) {
	p := &seqProbe{readings: []float64{3, 7, 10.5, 50}}
	f := newFixture(t, p, confirm.NewScripted("yes"), store.NewMemory("primary", "data"), store.NewMemory("backup"))

	out, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, p.Calls())
	assert.Equal(t, 10.5, out.Reading)
	assert.Equal(t, 2, f.sleeps)
	assert.Len(t, f.sink.ofType(history.EventFailover), 1)
	assert.Equal(t, StateTerminated, f.m.State())
}

func TestMonitor_HelloWorldScenario(t *testing.T) {
	p := &seqProbe{readings: []float64{15}}
	ch := confirm.NewChannel(1)
	f := newFixture(t, p, ch, store.NewMemory("primary", "hello world"), store.NewMemory("backup"))

	type result struct {
		out Outcome
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := f.m.Run(context.Background())
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool {
		return f.m.State() == StateAwaitingConfirmation && ch.Pending() != ""
	}, 2*time.Second, time.Millisecond)

	// blocked awaiting confirmation: failover happened exactly once
	assert.Empty(t, read(t, f.primary))
	assert.Equal(t, []string{"uryyb jbeyq"}, read(t, f.backup))
	breach := f.sink.ofType(history.EventBreach)
	require.Len(t, breach, 1)
	assert.Equal(t, history.SeverityCritical, breach[0].Severity)
	failover := f.sink.ofType(history.EventFailover)
	require.Len(t, failover, 1)
	assert.Equal(t, history.SeverityCritical, failover[0].Severity)
	assert.NotEmpty(t, f.m.IncidentID())
	assert.Equal(t, f.m.IncidentID(), failover[0].IncidentID)
	assert.Equal(t, 15.0, f.m.LastReading())

	require.NoError(t, ch.Submit("yes"))
	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.True(t, r.out.Restore.Done)
		assert.True(t, r.out.Failover.Moved)
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not finish after confirmation")
	}
	assert.Equal(t, []string{"hello world"}, read(t, f.primary))
	assert.Empty(t, read(t, f.backup))
}

func TestMonitor_RestoresSession42(t *testing.T) {
	p := &seqProbe{readings: []float64{99}}
	encoded := codec.ROT13{}.Encode("session-42")
	f := newFixture(t, p, confirm.NewScripted("yes"), store.NewMemory("primary"), store.NewMemory("backup", encoded))

	out, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, out.Failover.Moved)
	assert.True(t, out.Restore.Restored)
	assert.True(t, out.Restore.Done)
	assert.Equal(t, []string{"session-42"}, read(t, f.primary))
	assert.Empty(t, read(t, f.backup))
	assert.Len(t, f.sink.ofType(history.EventFailoverSkipped), 1)
}

func TestMonitor_ThreeNoThenYesRestoresOnce(t *testing.T) {
	p := &seqProbe{readings: []float64{20}}
	f := newFixture(t, p, confirm.NewScripted("no", "no", "no", "yes"), store.NewMemory("primary", "payload"), store.NewMemory("backup", "nyernql"))

	out, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, out.Attempts)
	assert.Len(t, f.sink.ofType(history.EventNotConfirmed), 3)
	assert.Len(t, f.sink.ofType(history.EventRestore), 1)
	assert.Equal(t, []string{"payload"}, read(t, f.primary))
	assert.Equal(t, []string{"nyernql"}, read(t, f.backup))
}

func TestMonitor_SingleCycleOnly(t *testing.T) {
	p := &seqProbe{readings: []float64{50}}
	f := newFixture(t, p, confirm.NewScripted("yes"), store.NewMemory("primary", "a"), store.NewMemory("backup"))

	_, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Calls(), "polling must not resume after restore")

	_, err = f.m.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, p.Calls())
	assert.Len(t, f.sink.ofType(history.EventFailover), 1)
	assert.Len(t, f.sink.ofType(history.EventCompleted), 1)
}

func TestMonitor_ProbeErrorsKeepPolling(t *testing.T) {
	boom := errors.New("probe unavailable")
	p := &seqProbe{readings: []float64{0, 0, 11}, errs: []error{boom, boom}}
	f := newFixture(t, p, confirm.NewScripted("yes"), store.NewMemory("primary", "x"), store.NewMemory("backup"))

	out, err := f.m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11.0, out.Reading)
	errs := f.sink.ofType(history.EventError)
	require.Len(t, errs, 2)
	assert.Equal(t, "probe unavailable", errs[0].Error)
}

func TestMonitor_FailoverErrorStillAwaitsConfirmation(t *testing.T) {
	p := &seqProbe{readings: []float64{50}}
	primary := store.NewMemory("primary", "x")
	backup := store.NewMemory("backup")
	require.NoError(t, backup.Close())
	f := newFixture(t, p, confirm.NewScripted("yes"), primary, backup)

	out, err := f.m.Run(context.Background())
	require.NoError(t, err)
	require.Error(t, out.FailoverErr)
	assert.True(t, recovery.IsWriteFailure(out.FailoverErr))
	assert.Equal(t, 1, out.Attempts)
	assert.True(t, out.Restore.Done)
	assert.Error(t, out.Restore.Err)
	assert.Equal(t, []string{"x"}, read(t, primary))
}

func TestMonitor_SourceClosedStopsWhileAwaiting(t *testing.T) {
	p := &seqProbe{readings: []float64{50}}
	f := newFixture(t, p, confirm.NewScripted(), store.NewMemory("primary", "x"), store.NewMemory("backup"))

	out, err := f.m.Run(context.Background())
	require.ErrorIs(t, err, confirm.ErrSourceClosed)
	assert.Contains(t, err.Error(), "awaiting_confirmation")
	assert.False(t, out.Restore.Done)
	assert.Equal(t, StateAwaitingConfirmation, f.m.State())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, Deps{})
	assert.Error(t, err)

	m, err := New(Config{}, Deps{
		Probe:   &seqProbe{readings: []float64{1}},
		Primary: store.NewMemory("p"),
		Backup:  store.NewMemory("b"),
		Gate:    confirm.NewGate(confirm.NewScripted(), confirm.Config{}, nil),
	})
	require.NoError(t, err)
	assert.Equal(t, DefaultPollInterval, m.cfg.PollInterval)
	assert.Equal(t, StateIdle, m.State())
	assert.Equal(t, "", m.IncidentID())
}

func TestStateString(t *testing.T) {
	want := []string{"idle", "polling", "breached", "awaiting_confirmation", "restoring", "terminated"}
	for i, s := range States() {
		assert.Equal(t, want[i], s.String())
	}
	assert.Equal(t, "unknown", State(42).String())
}
