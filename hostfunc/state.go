package hostfunc

import (
	"context"
	"fmt"
	"math"
	"sync/atomic"
)

// DefaultModuleName is the name scripts use to reach [NewStateModule].
const DefaultModuleName = "Module"

// MaxExactInt bounds values returned to scripts. Lua numbers are float64,
// so larger magnitudes would round.
const MaxExactInt = 1 << 53

// State is a process-wide integer shared between host code and script code.
type State struct {
	v atomic.Int64
}

func NewState(initial int64) *State {
	s := &State{}
	s.v.Store(initial)
	return s
}

func (s *State) Get() int64  { return s.v.Load() }
func (s *State) Set(v int64) { s.v.Store(v) }

// Increment adds one and returns the value held before the update.
func (s *State) Increment() int64 {
	return s.v.Add(1) - 1
}

// NewStateModule returns the bridge module exposing state to scripts.
//
//	Module.test(x) -> x * state, then state += 1
//
// A non-integer or missing argument, or a product outside ±MaxExactInt,
// fails with an [ArgumentError] and leaves state untouched.
func NewStateModule(state *State) *Module {
	return MustModule(DefaultModuleName,
		"Host functions that read and modify the host's shared state value.",
		Entry{
			Name:  "test",
			Arity: 1,
			Doc:   "Return a number times the host state value, then increment the state.",
			Fn: func(ctx context.Context, args Args) (any, error) {
				x, err := args.Int(0)
				if err != nil {
					return nil, err
				}
				for {
					prev := state.Get()
					product, ok := mulExact(x, prev)
					if !ok || prev == math.MaxInt64 {
						return nil, &ArgumentError{
							Index:  0,
							Reason: fmt.Sprintf("%d * %d is out of range", x, prev),
						}
					}
					if state.v.CompareAndSwap(prev, prev+1) {
						return product, nil
					}
				}
			},
		},
	)
}

// mulExact multiplies a and b, reporting false when the product overflows
// or exceeds MaxExactInt in magnitude.
func mulExact(a, b int64) (int64, bool) {
	if a > MaxExactInt || a < -MaxExactInt || b > MaxExactInt || b < -MaxExactInt {
		if a != 0 && b != 0 {
			return 0, false
		}
	}
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a || p > MaxExactInt || p < -MaxExactInt {
		return 0, false
	}
	return p, true
}
