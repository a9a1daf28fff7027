package effects

import (
	"fmt"
	"math"
)

const twoPi = math.Pi * 2

// FilterType selects the response of a voice filter.
type FilterType int

const (
	FilterNone FilterType = iota
	FilterLowPass
	FilterHighPass
	FilterBandPass
	numFilterTypes
)

var filterTypeNames = [...]string{
	FilterNone:     "none",
	FilterLowPass:  "lowpass",
	FilterHighPass: "highpass",
	FilterBandPass: "bandpass",
}

func (t FilterType) String() string {
	if t.Valid() {
		return filterTypeNames[t]
	}
	return fmt.Sprintf("FilterType(%d)", int(t))
}

func (t FilterType) Valid() bool { return t >= 0 && t < numFilterTypes }

// ParseFilterType resolves a filter type by its String name.
func ParseFilterType(name string) (FilterType, error) {
	for i, n := range filterTypeNames {
		if n == name {
			return FilterType(i), nil
		}
	}
	return FilterNone, fmt.Errorf("effects: unknown filter type %q", name)
}

// Cutoff range covered by filter positions 0..1.
const (
	MinCutoff = 20.0
	MaxCutoff = 20000.0
)

// CutoffFromPosition maps a position in [0, 1] exponentially onto
// MinCutoff..MaxCutoff. Positions outside the range are clamped.
func CutoffFromPosition(pos float64) float64 {
	if pos < 0 || math.IsNaN(pos) {
		pos = 0
	} else if pos > 1 {
		pos = 1
	}
	return MinCutoff * math.Pow(MaxCutoff/MinCutoff, pos)
}

// Filter is a mono one-pole filter. The band-pass response cascades a second
// low-pass stage and subtracts it.
type Filter struct {
	kind       FilterType
	sampleRate float64
	cutoff     float64
	alpha      float64
	lp, bp     float64
}

// NewFilter returns a pass-through filter.
func NewFilter() *Filter {
	return &Filter{cutoff: MaxCutoff}
}

func (f *Filter) Type() FilterType { return f.kind }

func (f *Filter) SetType(t FilterType) {
	if !t.Valid() {
		panic(fmt.Sprintf("effects: invalid filter type %v", t))
	}
	if t != f.kind {
		f.kind = t
		f.Reset()
	}
}

func (f *Filter) SetSampleRate(sr float64) {
	f.sampleRate = sr
	f.SetCutoff(f.cutoff)
}

// SetCutoff sets the corner frequency, limited to just below Nyquist.
func (f *Filter) SetCutoff(hz float64) {
	f.cutoff = hz
	if f.sampleRate <= 0 {
		f.alpha = 1
		return
	}
	hz = math.Max(MinCutoff, math.Min(hz, f.sampleRate*0.49))
	rc := 1.0 / (twoPi * hz)
	dt := 1.0 / f.sampleRate
	f.alpha = dt / (rc + dt)
}

func (f *Filter) Cutoff() float64 { return f.cutoff }

// Process filters one sample.
func (f *Filter) Process(x float64) float64 {
	switch f.kind {
	case FilterNone:
		return x
	case FilterLowPass:
		f.lp += f.alpha * (x - f.lp)
		return f.lp
	case FilterHighPass:
		f.lp += f.alpha * (x - f.lp)
		return x - f.lp
	case FilterBandPass:
		f.lp += f.alpha * (x - f.lp)
		f.bp += f.alpha * (f.lp - f.bp)
		return f.lp - f.bp
	default:
		panic(fmt.Sprintf("effects: unhandled filter type %v", f.kind))
	}
}

func (f *Filter) Reset() {
	f.lp = 0
	f.bp = 0
}
