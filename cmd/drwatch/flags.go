package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
}

// RunFlags override [monitor], [confirm] and [server] settings for one run.
// Zero values keep the configured value.
type RunFlags struct {
	Threshold     float64
	PollInterval  time.Duration
	RetryInterval time.Duration
	Probe         string
	Source        string
	Listen        string
	Metrics       bool
}

type StatusFlags struct {
	JSON bool
}

type SeedFlags struct {
	Text string
}

// ConfirmFlags address a drwatch run started with --source http.
type ConfirmFlags struct {
	Server   string
	Answer   string
	Username string
	Password string
	CACert   string
	Insecure bool
	Wait     bool
}

type HashPasswordFlags struct {
	Password string
}
