package probe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Probe reports a resource utilization percentage in [0,100].
// It must be safe for concurrent use.
type Probe interface {
	// Utilization returns a fresh reading.
	Utilization(ctx context.Context) (float64, error)
	// Describe returns a human-readable description of the metric source.
	Describe() string
}

var ErrUnknownProbe = errors.New("unknown probe")

// Parse builds a probe from its configuration form:
// "memory", "cpu" or "static:<percent>".
func Parse(name string) (Probe, error) {
	s := strings.ToLower(strings.TrimSpace(name))
	switch {
	case s == "" || s == "memory" || s == "mem":
		return Memory{}, nil
	case s == "cpu":
		return CPU{}, nil
	case strings.HasPrefix(s, "static:"):
		v, err := strconv.ParseFloat(strings.TrimPrefix(s, "static:"), 64)
		if err != nil {
			return nil, fmt.Errorf("static probe value: %w", err)
		}
		st, err := NewStatic(v)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProbe, name)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
