package label

import (
	"errors"
	"fmt"
	"math"
)

// Class is the direction target for a bar.
type Class int8

const (
	Down Class = -1
	Flat Class = 0
	Up   Class = 1
)

// NumClasses is the width of a probability row: (down, flat, up).
const NumClasses = 3

// Index maps a class to its probability column.
func (c Class) Index() int { return int(c) + 1 }

// FromIndex is the inverse of Index.
func FromIndex(i int) Class { return Class(i - 1) }

func (c Class) String() string {
	switch c {
	case Down:
		return "down"
	case Up:
		return "up"
	default:
		return "flat"
	}
}

// Target is a label that may be absent. The final MaxHolding bars of a series have
// no forward window, so Defined is false there and the bar must not be trained on.
type Target struct {
	Class   Class
	Defined bool
}

// Params controls the endpoint barrier proxy.
type Params struct {
	MaxHolding int // forward horizon in bars
	MinMoveBps int // moves smaller than this (relative to close[i]) are Flat
}

func (p Params) Validate() error {
	if p.MaxHolding <= 0 {
		return errors.New("max_holding must be > 0")
	}
	if p.MinMoveBps < 0 {
		return errors.New("min_move_bps must be >= 0")
	}
	return nil
}

// Label assigns a target to every close using only the price max_holding bars ahead.
//
// This is a coarse stand-in for a full triple barrier: the path between i and
// i+MaxHolding is never inspected, only the endpoint.
func Label(closes []float64, p Params) ([]Target, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	n := len(closes)
	out := make([]Target, n)
	for i, c := range closes {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("close %d is not finite", i)
		}
	}
	bps := float64(p.MinMoveBps)
	for i := 0; i+p.MaxHolding < n; i++ {
		c0 := closes[i]
		delta := closes[i+p.MaxHolding] - c0
		switch {
		case math.Abs(delta) < c0*bps/1e4:
			out[i] = Target{Class: Flat, Defined: true}
		case delta > 0:
			out[i] = Target{Class: Up, Defined: true}
		case delta < 0:
			out[i] = Target{Class: Down, Defined: true}
		default:
			out[i] = Target{Class: Flat, Defined: true}
		}
	}
	return out, nil
}

// Counts is a histogram of defined targets indexed by Class.Index.
func Counts(targets []Target) [NumClasses]int {
	var out [NumClasses]int
	for _, t := range targets {
		if t.Defined {
			out[t.Class.Index()]++
		}
	}
	return out
}

// Defined reports how many targets carry a label.
func Defined(targets []Target) int {
	n := 0
	for _, t := range targets {
		if t.Defined {
			n++
		}
	}
	return n
}
