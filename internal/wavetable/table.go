// Package wavetable builds the single-cycle tables region LFOs read from:
// polarity conversion, tables derived from a region outline, preset shapes and
// hex-encoded tables.
package wavetable

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strings"
)

const twoPi = math.Pi * 2

// DefaultSize is the table length used for outlines and presets when the
// caller does not ask for a specific size.
const DefaultSize = 1024

// Polarity tells whether table values lie in [0, 1] or [-1, 1].
type Polarity int

const (
	Unipolar Polarity = iota
	Bipolar
)

func (p Polarity) String() string {
	switch p {
	case Unipolar:
		return "unipolar"
	case Bipolar:
		return "bipolar"
	default:
		return fmt.Sprintf("Polarity(%d)", int(p))
	}
}

// ToUnipolar maps bipolar samples to [0, 1].
func ToUnipolar(bipolar []float64) []float64 {
	out := make([]float64, len(bipolar))
	for i, v := range bipolar {
		out[i] = (v + 1) / 2
	}
	return out
}

// ToBipolar maps unipolar samples to [-1, 1].
func ToBipolar(unipolar []float64) []float64 {
	out := make([]float64, len(unipolar))
	for i, v := range unipolar {
		out[i] = v*2 - 1
	}
	return out
}

// Pair returns the unipolar and bipolar renditions of one cycle. Both carry
// one extra sample duplicating the first, so a reader interpolating at
// position x in [0, len(cycle)) never needs to wrap its second index.
func Pair(cycle []float64, polarity Polarity) (uni, bi []float64) {
	if len(cycle) == 0 {
		return nil, nil
	}
	src := make([]float64, len(cycle)+1)
	copy(src, cycle)
	src[len(cycle)] = cycle[0]
	switch polarity {
	case Unipolar:
		return src, ToBipolar(src)
	case Bipolar:
		return ToUnipolar(src), src
	default:
		panic(fmt.Sprintf("wavetable: unhandled polarity %v", polarity))
	}
}

// Interpolate reads a wrapped table (see Pair) at fractional position x,
// 0 <= x < len(table)-1.
func Interpolate(table []float64, x float64) float64 {
	last := len(table) - 2
	i := int(x)
	if i < 0 {
		return table[0]
	}
	frac := x - float64(i)
	if i > last {
		i, frac = last, 1
	}
	return table[i]*(1-frac) + table[i+1]*frac
}

// Point is a position in image space.
type Point struct {
	X, Y float64
}

// FromOutline samples the distance between focus and a closed outline at n
// points equally spaced along its perimeter, normalised to [0, 1]. The result
// is a unipolar cycle. An outline at constant distance from its focus yields a
// flat table at 0.5.
func FromOutline(outline []Point, focus Point, n int) ([]float64, error) {
	if n <= 0 {
		return nil, fmt.Errorf("wavetable: invalid table size %d", n)
	}
	if len(outline) < 2 {
		return nil, errors.New("wavetable: outline needs at least two points")
	}

	segLen := make([]float64, len(outline))
	var perimeter float64
	for i := range outline {
		a := outline[i]
		b := outline[(i+1)%len(outline)]
		segLen[i] = math.Hypot(b.X-a.X, b.Y-a.Y)
		perimeter += segLen[i]
	}
	if perimeter == 0 {
		return nil, errors.New("wavetable: outline has zero length")
	}

	out := make([]float64, n)
	step := perimeter / float64(n)
	seg := 0
	segStart := 0.0
	for i := range out {
		d := float64(i) * step
		for seg < len(outline)-1 && d >= segStart+segLen[seg] {
			segStart += segLen[seg]
			seg++
		}
		a := outline[seg]
		b := outline[(seg+1)%len(outline)]
		t := 0.0
		if segLen[seg] > 0 {
			t = (d - segStart) / segLen[seg]
		}
		x := a.X + (b.X-a.X)*t
		y := a.Y + (b.Y-a.Y)*t
		out[i] = math.Hypot(x-focus.X, y-focus.Y)
	}
	normalise(out)
	return out, nil
}

func normalise(v []float64) {
	lo, hi := v[0], v[0]
	for _, x := range v[1:] {
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	span := hi - lo
	if span < 1e-12 {
		for i := range v {
			v[i] = 0.5
		}
		return
	}
	for i := range v {
		v[i] = (v[i] - lo) / span
	}
}

// Shape names a preset waveform.
type Shape int

const (
	Sine Shape = iota
	Triangle
	Saw
	Square
)

var shapeNames = [...]string{
	Sine:     "sine",
	Triangle: "triangle",
	Saw:      "saw",
	Square:   "square",
}

func (s Shape) String() string {
	if s >= 0 && int(s) < len(shapeNames) {
		return shapeNames[s]
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// ParseShape resolves a preset by name.
func ParseShape(name string) (Shape, error) {
	for i, n := range shapeNames {
		if strings.EqualFold(n, name) {
			return Shape(i), nil
		}
	}
	return Sine, fmt.Errorf("wavetable: unknown shape %q", name)
}

// Preset returns one bipolar cycle of the shape, n samples long.
func Preset(s Shape, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		phase := float64(i) / float64(n)
		switch s {
		case Sine:
			out[i] = math.Sin(twoPi * phase)
		case Triangle:
			if phase < 0.5 {
				out[i] = 4.0*phase - 1.0
			} else {
				out[i] = 3.0 - 4.0*phase
			}
		case Saw:
			out[i] = 1.0 - 2.0*phase
		case Square:
			if phase < 0.5 {
				out[i] = 1.0
			} else {
				out[i] = -1.0
			}
		default:
			panic(fmt.Sprintf("wavetable: unhandled shape %v", s))
		}
	}
	return out
}

// ParseHex converts pairs of hex digits, each a signed 8-bit value, into a
// bipolar cycle normalised to [-1, 1]. Whitespace is ignored.
func ParseHex(h string) ([]float64, error) {
	h = strings.Join(strings.Fields(h), "")
	data, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("wavetable: decode hex table: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("wavetable: empty hex table")
	}
	out := make([]float64, len(data))
	for i, b := range data {
		v := float64(int8(b)) / 127.0
		if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out, nil
}

// FormatHex is the inverse of ParseHex, quantising a bipolar cycle to 8 bits.
func FormatHex(bipolar []float64) string {
	data := make([]byte, len(bipolar))
	for i, v := range bipolar {
		v = math.Max(-1, math.Min(1, v))
		data[i] = byte(int8(math.Round(v * 127)))
	}
	return hex.EncodeToString(data)
}
