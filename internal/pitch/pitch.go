// Package pitch converts semitone offsets to frequency ratios and snaps
// continuous pitch values onto musical scales.
package pitch

import (
	"fmt"
	"math"
)

// Range is the semitone span, in each direction, covered by the ratio table.
const Range = 36

// stepsPerSemitone sets the table resolution (one entry per cent).
const stepsPerSemitone = 100

var ratioTable = buildRatioTable()

func buildRatioTable() []float64 {
	n := 2*Range*stepsPerSemitone + 1
	t := make([]float64, n)
	for i := range t {
		cents := float64(i - Range*stepsPerSemitone)
		t[i] = math.Pow(2, cents/(12*stepsPerSemitone))
	}
	return t
}

// SemitoneRatio returns 2^(semitones/12). Offsets within ±Range are read from a
// precomputed table with linear interpolation; whole semitones are exact.
func SemitoneRatio(semitones float64) float64 {
	if semitones == 0 {
		return 1
	}
	x := (semitones + Range) * stepsPerSemitone
	if x < 0 || x > float64(len(ratioTable)-1) || math.IsNaN(x) {
		return math.Exp2(semitones / 12)
	}
	i := int(x)
	frac := x - float64(i)
	if frac == 0 || i == len(ratioTable)-1 {
		return ratioTable[i]
	}
	return ratioTable[i] + (ratioTable[i+1]-ratioTable[i])*frac
}

// Quantisation selects the scale a pitch is snapped to.
type Quantisation int

const (
	Continuous Quantisation = iota
	Chromatic
	Major
	NaturalMinor
	HarmonicMinor
	MelodicMinor
	MajorPentatonic
	MinorPentatonic
	WholeTone
	Blues
	numQuantisations
)

var quantisationNames = [...]string{
	Continuous:      "continuous",
	Chromatic:       "chromatic",
	Major:           "major",
	NaturalMinor:    "natural-minor",
	HarmonicMinor:   "harmonic-minor",
	MelodicMinor:    "melodic-minor",
	MajorPentatonic: "major-pentatonic",
	MinorPentatonic: "minor-pentatonic",
	WholeTone:       "whole-tone",
	Blues:           "blues",
}

func (q Quantisation) String() string {
	if q >= 0 && q < numQuantisations {
		return quantisationNames[q]
	}
	return fmt.Sprintf("Quantisation(%d)", int(q))
}

// Valid reports whether q names a known method.
func (q Quantisation) Valid() bool { return q >= 0 && q < numQuantisations }

// ParseQuantisation resolves a method by its String name.
func ParseQuantisation(name string) (Quantisation, error) {
	for i, n := range quantisationNames {
		if n == name {
			return Quantisation(i), nil
		}
	}
	return Continuous, fmt.Errorf("pitch: unknown quantisation %q", name)
}

// Scale degrees in semitones above the root, within one octave.
var scales = [numQuantisations][]float64{
	Chromatic:       {0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11},
	Major:           {0, 2, 4, 5, 7, 9, 11},
	NaturalMinor:    {0, 2, 3, 5, 7, 8, 10},
	HarmonicMinor:   {0, 2, 3, 5, 7, 8, 11},
	MelodicMinor:    {0, 2, 3, 5, 7, 9, 11},
	MajorPentatonic: {0, 2, 4, 7, 9},
	MinorPentatonic: {0, 3, 5, 7, 10},
	WholeTone:       {0, 2, 4, 6, 8, 10},
	Blues:           {0, 3, 5, 6, 7, 10},
}

// Quantise snaps semitones to the nearest degree of the scale. Continuous
// returns the input unchanged. Ties resolve towards the lower degree.
func (q Quantisation) Quantise(semitones float64) float64 {
	if q == Continuous {
		return semitones
	}
	degrees := scales[q]
	if degrees == nil {
		panic(fmt.Sprintf("pitch: unhandled quantisation %v", q))
	}
	octave := math.Floor(semitones / 12)
	within := semitones - octave*12
	best := degrees[0]
	bestDist := math.Abs(within - best)
	for _, d := range degrees[1:] {
		if dist := math.Abs(within - d); dist < bestDist {
			best, bestDist = d, dist
		}
	}
	// The next octave's root may be closer than the highest degree.
	if dist := math.Abs(within - 12); dist < bestDist {
		best = 12
	}
	return octave*12 + best
}
