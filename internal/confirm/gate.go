package confirm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/loykin/drwatch/internal/history"
	"github.com/loykin/drwatch/internal/metrics"
)

const (
	DefaultRetryInterval = 2 * time.Second
	DefaultAffirmative   = "yes"
)

// ErrMaxAttempts is returned when a bounded gate runs out of attempts.
var ErrMaxAttempts = errors.New("confirmation attempts exhausted")

// Config controls the gate. Zero values select the defaults.
type Config struct {
	Target        string // name of the store being asked about
	Affirmative   []string
	RetryInterval time.Duration
	MaxAttempts   int // 0 waits forever
}

// Gate blocks until an operator confirms the primary store is back.
type Gate struct {
	src    Source
	cfg    Config
	accept map[string]struct{}
	events *history.Recorder
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewGate(src Source, cfg Config, events *history.Recorder) *Gate {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.Target == "" {
		cfg.Target = "primary"
	}
	accept := make(map[string]struct{})
	for _, a := range cfg.Affirmative {
		if a = normalize(a); a != "" {
			accept[a] = struct{}{}
		}
	}
	if len(accept) == 0 {
		accept[DefaultAffirmative] = struct{}{}
	}
	if events == nil {
		events = history.NewRecorder(nil, 0)
	}
	return &Gate{src: src, cfg: cfg, accept: accept, events: events, sleep: sleepCtx}
}

// Prompt is the question put to the operator.
func (g *Gate) Prompt() string {
	return fmt.Sprintf("Is %s restored? (yes/no): ", g.cfg.Target)
}

// WaitForConfirmation asks until an affirmative answer arrives and returns the
// number of questions asked. Anything else, including a source error, is a
// warning followed by the retry delay.
func (g *Gate) WaitForConfirmation(ctx context.Context) (int, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		attempts++
		answer, err := g.src.Ask(ctx, g.Prompt())
		switch {
		case err == nil && g.affirmative(answer):
			metrics.IncConfirmation("affirmative")
			g.events.Record(ctx, history.Event{
				Type:    history.EventConfirmed,
				Message: fmt.Sprintf("%s restored, moving the last copied data back", g.cfg.Target),
			})
			return attempts, nil
		case errors.Is(err, ErrSourceClosed):
			metrics.IncConfirmation("error")
			return attempts, err
		case err != nil && ctx.Err() != nil:
			return attempts, ctx.Err()
		}

		e := history.Event{
			Type:     history.EventNotConfirmed,
			Severity: history.SeverityWarning,
			Message:  fmt.Sprintf("%s is still down, checking again in %s", g.cfg.Target, g.cfg.RetryInterval),
		}
		if err != nil {
			e.Error = err.Error()
			metrics.IncConfirmation("error")
		} else {
			metrics.IncConfirmation("negative")
		}
		g.events.Record(ctx, e)

		if g.cfg.MaxAttempts > 0 && attempts >= g.cfg.MaxAttempts {
			return attempts, ErrMaxAttempts
		}
		if err := g.sleep(ctx, g.cfg.RetryInterval); err != nil {
			return attempts, err
		}
	}
}

func (g *Gate) affirmative(answer string) bool {
	_, ok := g.accept[normalize(answer)]
	return ok
}

func normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

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
