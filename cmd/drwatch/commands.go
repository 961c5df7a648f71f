package main

import (
	"context"
	"fmt"
	"io"

	"github.com/loykin/drwatch"
	"github.com/loykin/drwatch/internal/config"
)

type command struct {
	in  io.Reader
	out io.Writer
}

func (c command) open(path string, apply func(*drwatch.Config)) (*drwatch.Runtime, error) {
	cfg, err := drwatch.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		apply(cfg)
	}
	return drwatch.New(cfg, drwatch.Options{Input: c.in, Output: c.out})
}

// Run executes one monitor cycle. Reaching the terminal state is success even
// when the restore itself failed; the ledger carries the error.
func (c command) Run(ctx context.Context, path string, f RunFlags, changed func(string) bool) error {
	rt, err := c.open(path, func(cfg *drwatch.Config) { applyRunFlags(cfg, f, changed) })
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	out, err := rt.Run(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(c.out, "incident %s finished: failover moved=%t, restored=%t after %d confirmation attempt(s)\n",
		out.IncidentID, out.Failover.Moved, out.Restore.Restored, out.Attempts)
	return nil
}

func applyRunFlags(cfg *config.Config, f RunFlags, changed func(string) bool) {
	if changed("threshold") {
		cfg.Monitor.Threshold = f.Threshold
	}
	if changed("interval") {
		cfg.Monitor.PollInterval = f.PollInterval
	}
	if changed("retry-interval") {
		cfg.Confirm.RetryInterval = f.RetryInterval
	}
	if changed("probe") {
		cfg.Monitor.Probe = f.Probe
	}
	if changed("source") {
		cfg.Confirm.Source = f.Source
	}
	if changed("listen") {
		cfg.Server.Listen = f.Listen
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = f.Metrics
	}
}

func (c command) Failover(ctx context.Context, path string) error {
	rt, err := c.open(path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	res, err := rt.Failover(ctx)
	if err != nil {
		return err
	}
	if res.Moved {
		_, _ = fmt.Fprintf(c.out, "moved %s to %s\n", res.Source, res.Destination)
	} else {
		_, _ = fmt.Fprintf(c.out, "%s is empty, nothing moved\n", res.Source)
	}
	return nil
}

// Restore is terminal like the restore step of a run: a failed restore is
// logged and the command still succeeds.
func (c command) Restore(ctx context.Context, path string) error {
	rt, err := c.open(path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	res := rt.Restore(ctx)
	switch {
	case res.Err != nil:
		_, _ = fmt.Fprintf(c.out, "restore failed: %v\n", res.Err)
	case res.Restored:
		_, _ = fmt.Fprintf(c.out, "restored 1 record to %s, %d left in %s\n", res.Destination, res.Remaining, res.Source)
	default:
		_, _ = fmt.Fprintf(c.out, "%s is empty, nothing restored\n", res.Source)
	}
	return nil
}

func (c command) Status(ctx context.Context, path string, f StatusFlags) error {
	cfg, err := drwatch.LoadConfig(path)
	if err != nil {
		return err
	}
	// status only reads the stores; keep the ledger and console quiet
	cfg.Log.Ledger = ""
	cfg.Log.Level = "error"
	rt, err := drwatch.New(cfg, drwatch.Options{Input: c.in, Output: io.Discard})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	st, err := rt.Status(ctx)
	if err != nil {
		return err
	}
	if f.JSON {
		printJSON(c.out, st)
		return nil
	}
	for _, s := range st {
		_, _ = fmt.Fprintf(c.out, "%-30s %d record(s)\n", s.Name, s.Records)
	}
	return nil
}

func (c command) Seed(ctx context.Context, path string, f SeedFlags) error {
	rt, err := c.open(path, nil)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return rt.Seed(ctx, f.Text)
}
