package probe

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync/atomic"
)

// Static always reports the same value. Set changes it, so tests and demos
// can drive a breach without loading the host.
type Static struct {
	bits atomic.Uint64
}

func NewStatic(v float64) (*Static, error) {
	if math.IsNaN(v) || v < 0 || v > 100 {
		return nil, fmt.Errorf("static probe value %v out of range [0,100]", v)
	}
	s := &Static{}
	s.bits.Store(math.Float64bits(v))
	return s, nil
}

func (s *Static) Set(v float64) { s.bits.Store(math.Float64bits(clamp(v))) }

func (s *Static) Utilization(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return math.Float64frombits(s.bits.Load()), nil
}

func (s *Static) Describe() string {
	return "static:" + strconv.FormatFloat(math.Float64frombits(s.bits.Load()), 'f', -1, 64)
}
