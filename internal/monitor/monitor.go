package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/drwatch/internal/confirm"
	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/metrics"
	"github.com/loykin/drwatch/internal/probe"
	"github.com/loykin/drwatch/internal/recovery"
	"github.com/loykin/drwatch/internal/store"
)

const (
	DefaultThreshold    = 10.0
	DefaultPollInterval = 3 * time.Second
)

// Config holds the fixed parameters of a run.
type Config struct {
	Threshold    float64 // breach when a reading is strictly above
	PollInterval time.Duration
}

// Outcome is returned once the run reaches StateTerminated.
type Outcome struct {
	IncidentID  string
	Reading     float64
	Failover    recovery.FailoverResult
	FailoverErr error
	Attempts    int
	Restore     recovery.RestoreResult
}

// Monitor polls a probe and runs one failover/confirmation/restore cycle on the
// first breach. Polling does not resume afterwards.
type Monitor struct {
	cfg      Config
	probe    probe.Probe
	primary  store.Store
	backup   store.Store
	failover *recovery.Failover
	gate     *confirm.Gate
	restore  *recovery.Restore
	events   *history.Recorder

	state    atomic.Int32
	reading  atomic.Uint64 // float64 bits of the last reading
	incident atomic.Value  // string
	started  atomic.Bool

	sleep func(ctx context.Context, d time.Duration) error
}

// Deps are the collaborators of a Monitor.
type Deps struct {
	Probe    probe.Probe
	Primary  store.Store
	Backup   store.Store
	Failover *recovery.Failover
	Gate     *confirm.Gate
	Restore  *recovery.Restore
	Events   *history.Recorder
}

func New(cfg Config, d Deps) (*Monitor, error) {
	if d.Probe == nil || d.Primary == nil || d.Backup == nil || d.Gate == nil {
		return nil, errors.New("monitor requires a probe, both stores and a confirmation gate")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if d.Events == nil {
		d.Events = history.NewRecorder(nil, 0)
	}
	if d.Failover == nil {
		d.Failover = recovery.NewFailover(nil, d.Events)
	}
	if d.Restore == nil {
		d.Restore = recovery.NewRestore(nil, d.Events)
	}
	m := &Monitor{
		cfg:      cfg,
		probe:    d.Probe,
		primary:  d.Primary,
		backup:   d.Backup,
		failover: d.Failover,
		gate:     d.Gate,
		restore:  d.Restore,
		events:   d.Events,
		sleep:    sleepCtx,
	}
	m.incident.Store("")
	return m, nil
}

// State returns the current state. Safe for concurrent use.
func (m *Monitor) State() State { return State(m.state.Load()) }

// LastReading returns the most recent successful reading.
func (m *Monitor) LastReading() float64 { return math.Float64frombits(m.reading.Load()) }

// IncidentID returns the id of the current incident, or "" before a breach.
func (m *Monitor) IncidentID() string { return m.incident.Load().(string) }

// Threshold returns the configured breach threshold.
func (m *Monitor) Threshold() float64 { return m.cfg.Threshold }

// Run executes the workflow until restore completes or ctx is done.
// A Monitor runs at most once.
func (m *Monitor) Run(ctx context.Context) (Outcome, error) {
	if !m.started.CompareAndSwap(false, true) {
		return Outcome{}, errors.New("monitor already ran")
	}
	log := m.events.Logger()
	m.transition(StatePolling)

	var reading float64
	for {
		v, err := m.probe.Utilization(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, m.stopped(ctx.Err())
			}
			metrics.IncPollError(m.probe.Describe())
			m.events.Record(ctx, history.Event{
				Type:     history.EventError,
				Severity: history.SeverityError,
				Message:  "failed to read " + m.probe.Describe() + " utilization",
				Error:    err.Error(),
			})
		} else {
			m.reading.Store(math.Float64bits(v))
			metrics.ObserveReading(m.probe.Describe(), v)
			m.events.Record(ctx, history.Event{
				Type:    history.EventPoll,
				Message: fmt.Sprintf("%s usage: %s%%", m.probe.Describe(), strconv.FormatFloat(v, 'f', -1, 64)),
				Reading: v,
			})
			if v > m.cfg.Threshold {
				reading = v
				break
			}
		}
		if err := m.sleep(ctx, m.cfg.PollInterval); err != nil {
			return Outcome{}, m.stopped(err)
		}
	}

	id := uuid.NewString()
	m.incident.Store(id)
	ctx = history.WithIncident(ctx, id)
	out := Outcome{IncidentID: id, Reading: reading}

	metrics.IncBreach()
	m.events.Record(ctx, history.Event{
		Type:     history.EventBreach,
		Severity: history.SeverityCritical,
		Message:  fmt.Sprintf("%s utilization limit exceeded (%s%% > %s%%), simulating disaster", m.probe.Describe(), strconv.FormatFloat(reading, 'f', -1, 64), strconv.FormatFloat(m.cfg.Threshold, 'f', -1, 64)),
		Reading:  reading,
	})
	m.transition(StateBreached)

	out.Failover, out.FailoverErr = m.failover.Execute(ctx, m.primary, m.backup)
	if out.FailoverErr != nil {
		log.Debug("continuing after failover error", "error", out.FailoverErr)
	}

	m.transition(StateAwaitingConfirmation)
	m.events.Record(ctx, history.Event{
		Type:    history.EventAwaiting,
		Message: "awaiting operator confirmation",
	})
	attempts, err := m.gate.WaitForConfirmation(ctx)
	out.Attempts = attempts
	if err != nil {
		return out, m.stopped(err)
	}

	m.transition(StateRestoring)
	out.Restore = m.restore.Execute(ctx, m.backup, m.primary)
	m.transition(StateTerminated)
	return out, nil
}

// stopped builds the error returned when the run ends before terminating.
func (m *Monitor) stopped(err error) error {
	return fmt.Errorf("monitor stopped in state %s: %w", m.State(), err)
}

func (m *Monitor) transition(to State) {
	from := State(m.state.Swap(int32(to)))
	if from == to {
		return
	}
	m.events.Logger().Debug("monitor state transition", "from", from.String(), "to", to.String())
	metrics.RecordStateTransition(from.String(), to.String())
	metrics.SetCurrentState(from.String(), false)
	metrics.SetCurrentState(to.String(), true)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
