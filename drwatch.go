// Package drwatch embeds the disaster-recovery watch: a monitor that polls a
// utilization probe, fails the primary store over to a backup on the first
// breach, waits for an operator and restores the most recent backup record.
package drwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/drwatch/internal/auth"
	"github.com/loykin/drwatch/internal/codec"
	"github.com/loykin/drwatch/internal/config"
	"github.com/loykin/drwatch/internal/confirm"
	"github.com/loykin/drwatch/internal/history"
	hfactory "github.com/loykin/drwatch/internal/history/factory"
	"github.com/loykin/drwatch/internal/metrics"
	"github.com/loykin/drwatch/internal/monitor"
	"github.com/loykin/drwatch/internal/probe"
	"github.com/loykin/drwatch/internal/recovery"
	"github.com/loykin/drwatch/internal/server"
	"github.com/loykin/drwatch/internal/store"
	sfactory "github.com/loykin/drwatch/internal/store/factory"
	drtls "github.com/loykin/drwatch/internal/tls"
)

// Re-export core types for external consumers.

type Config = config.Config

type Outcome = monitor.Outcome

type State = monitor.State

type Store = store.Store

type Probe = probe.Probe

type ConfirmationSource = confirm.Source

type HistorySink = history.Sink

type Event = history.Event

type FailoverResult = recovery.FailoverResult

type RestoreResult = recovery.RestoreResult

// LoadConfig reads a TOML file (optional) plus DRWATCH_* overrides.
func LoadConfig(path string) (*Config, error) { return config.Load(path) }

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config { return config.Default() }

// Options override collaborators that Config would otherwise build.
type Options struct {
	Probe      Probe              // replaces monitor.probe
	Source     ConfirmationSource // replaces confirm.source
	Primary    Store              // replaces stores.primary
	Backup     Store              // replaces stores.backup
	Sinks      []HistorySink      // added to history.sinks
	Input      io.Reader          // console answers, default os.Stdin
	Output     io.Writer          // console prompt and log, default os.Stdout
	Registerer prometheus.Registerer
}

const recentEvents = 100

// Runtime owns every resource of one drwatch run.
type Runtime struct {
	cfg       *Config
	log       *slog.Logger
	logCloser io.Closer
	events    *history.Recorder
	primary   store.Store
	backup    store.Store
	codec     codec.Codec
	probe     probe.Probe
	source    confirm.Source
	channel   *confirm.Channel
	monitor   *monitor.Monitor
	srv       *http.Server
}

// New validates cfg and builds stores, sinks, the event log and the monitor.
func New(cfg *Config, o Options) (*Runtime, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	out := o.Output
	if out == nil {
		out = os.Stdout
	}
	lc := cfg.Logger()
	lc.Console = out
	log, closer := lc.NewSlogger()

	r := &Runtime{cfg: cfg, log: log, logCloser: closer}
	if err := r.build(o, out); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) build(o Options, out io.Writer) error {
	cfg := r.cfg
	var err error
	if r.codec, err = codec.ByName(cfg.Stores.Codec); err != nil {
		return err
	}

	sinks := append([]history.Sink(nil), o.Sinks...)
	for _, dsn := range cfg.History.Sinks {
		s, err := hfactory.NewSinkFromDSN(dsn)
		if err != nil {
			closeSinks(sinks)
			return fmt.Errorf("history sink %q: %w", dsn, err)
		}
		if es, ok := s.(interface{ EnsureSchema(context.Context) error }); ok {
			if err := es.EnsureSchema(context.Background()); err != nil {
				closeSinks(append(sinks, s))
				return fmt.Errorf("history sink %q schema: %w", dsn, err)
			}
		}
		sinks = append(sinks, s)
	}
	r.events = history.NewRecorder(r.log, recentEvents, sinks...)

	if cfg.Metrics.Enabled {
		reg := o.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	r.primary = o.Primary
	if r.primary == nil {
		if r.primary, err = sfactory.NewFromDSN(cfg.Stores.Primary, "primary"); err != nil {
			return fmt.Errorf("primary store: %w", err)
		}
	}
	r.backup = o.Backup
	if r.backup == nil {
		if r.backup, err = sfactory.NewFromDSN(cfg.Stores.Backup, "backup"); err != nil {
			return fmt.Errorf("backup store: %w", err)
		}
	}

	r.probe = o.Probe
	if r.probe == nil {
		if r.probe, err = probe.Parse(cfg.Monitor.Probe); err != nil {
			return err
		}
	}

	r.source = o.Source
	if r.source == nil {
		switch cfg.Confirm.Source {
		case config.SourceHTTP:
			r.channel = confirm.NewChannel(1)
			r.source = r.channel
		default:
			in := o.Input
			if in == nil {
				in = os.Stdin
			}
			r.source = confirm.NewConsole(in, out)
		}
	} else if ch, ok := r.source.(*confirm.Channel); ok {
		r.channel = ch
	}

	gate := confirm.NewGate(r.source, confirm.Config{
		Target:        r.primary.Name(),
		Affirmative:   cfg.Confirm.Affirmative,
		RetryInterval: cfg.Confirm.RetryInterval,
		MaxAttempts:   cfg.Confirm.MaxAttempts,
	}, r.events)

	r.monitor, err = monitor.New(monitor.Config{
		Threshold:    cfg.Monitor.Threshold,
		PollInterval: cfg.Monitor.PollInterval,
	}, monitor.Deps{
		Probe:    r.probe,
		Primary:  r.primary,
		Backup:   r.backup,
		Failover: recovery.NewFailover(r.codec, r.events),
		Gate:     gate,
		Restore:  recovery.NewRestore(r.codec, r.events),
		Events:   r.events,
	})
	return err
}

func closeSinks(sinks []history.Sink) {
	_ = history.NewRecorder(nil, 0, sinks...).Close()
}

// Logger returns the event log.
func (r *Runtime) Logger() *slog.Logger { return r.log }

// State returns the monitor state.
func (r *Runtime) State() State { return r.monitor.State() }

// Events returns recently recorded ledger events.
func (r *Runtime) Events() []Event { return r.events.Recent() }

// Channel returns the HTTP confirmation channel, or nil for other sources.
func (r *Runtime) Channel() *confirm.Channel { return r.channel }

// Run starts the optional HTTP server and runs one monitor cycle. A nil error
// means the cycle reached its terminal state, whatever the restore result.
func (r *Runtime) Run(ctx context.Context) (Outcome, error) {
	if r.cfg.Server.Listen != "" {
		tlsCfg, err := drtls.Setup(r.cfg.TLS())
		if err != nil {
			return Outcome{}, fmt.Errorf("server tls: %w", err)
		}
		authSvc, err := auth.New(r.cfg.Auth())
		if err != nil {
			return Outcome{}, fmt.Errorf("server auth: %w", err)
		}
		srv, err := server.NewServer(r.cfg.Server.Listen, server.Options{
			BasePath: "/api",
			Status:   r.monitor,
			Answers:  answererOrNil(r.channel),
			Events:   r.events,
			Stores:   []store.Store{r.primary, r.backup},
			Metrics:  r.cfg.Metrics.Enabled,
			Auth:     authSvc,
			TLS:      tlsCfg,
		})
		if err != nil {
			return Outcome{}, err
		}
		r.srv = srv
		r.log.Info("http server listening", "addr", r.cfg.Server.Listen, "tls", tlsCfg != nil, "auth", authSvc != nil)
	}
	r.events.Record(ctx, history.Event{
		Type: history.EventStarted,
		Message: fmt.Sprintf("starting disaster recovery watch: %s threshold %v%%, polling every %s",
			r.probe.Describe(), r.cfg.Monitor.Threshold, r.cfg.Monitor.PollInterval),
	})
	return r.monitor.Run(ctx)
}

func answererOrNil(ch *confirm.Channel) server.Answerer {
	if ch == nil {
		return nil
	}
	return ch
}

// Failover moves the primary store to the backup once, outside the monitor.
func (r *Runtime) Failover(ctx context.Context) (FailoverResult, error) {
	return recovery.NewFailover(r.codec, r.events).Execute(ctx, r.primary, r.backup)
}

// Restore moves the most recent backup record back to the primary store.
func (r *Runtime) Restore(ctx context.Context) RestoreResult {
	return recovery.NewRestore(r.codec, r.events).Execute(ctx, r.backup, r.primary)
}

// StoreStatus is a record count per store.
type StoreStatus struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Last    string `json:"last,omitempty"`
}

// Status reports the primary and backup record counts.
func (r *Runtime) Status(ctx context.Context) ([]StoreStatus, error) {
	out := make([]StoreStatus, 0, 2)
	for _, s := range []store.Store{r.primary, r.backup} {
		recs, err := s.ReadAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", s.Name(), err)
		}
		st := StoreStatus{Name: s.Name(), Records: len(recs)}
		if len(recs) > 0 {
			st.Last = recs[len(recs)-1]
		}
		out = append(out, st)
	}
	return out, nil
}

// Seed appends a record to the primary store.
func (r *Runtime) Seed(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("seed text is empty")
	}
	if err := r.primary.AppendLine(ctx, text); err != nil {
		return fmt.Errorf("append to %s: %w", r.primary.Name(), err)
	}
	r.log.Info("seeded primary store", "store", r.primary.Name())
	return nil
}

// Close stops the HTTP server and releases stores, sinks and the ledger file.
func (r *Runtime) Close() error {
	var errs []error
	if r.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, r.srv.Shutdown(ctx))
		cancel()
	}
	if r.channel != nil {
		errs = append(errs, r.channel.Close())
	} else if c, ok := r.source.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	if r.primary != nil {
		errs = append(errs, r.primary.Close())
	}
	if r.backup != nil {
		errs = append(errs, r.backup.Close())
	}
	if r.events != nil {
		errs = append(errs, r.events.Close())
	}
	if r.logCloser != nil {
		errs = append(errs, r.logCloser.Close())
	}
	return errors.Join(errs...)
}
