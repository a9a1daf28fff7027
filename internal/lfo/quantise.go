package lfo

import (
	"fmt"
	"math"
	"sort"
)

// UpdateQuantisation snaps an LFO's update-interval factor to musical note
// lengths.
type UpdateQuantisation int

const (
	QuantiseContinuous UpdateQuantisation = iota
	QuantiseEven
	QuantiseDotted
	QuantiseTriplets
	QuantiseEvenDotted
	QuantiseEvenTriplets
	QuantiseDottedTriplets
	QuantiseAll
	numUpdateQuantisations
)

var updateQuantisationNames = [...]string{
	QuantiseContinuous:     "continuous",
	QuantiseEven:           "even",
	QuantiseDotted:         "dotted",
	QuantiseTriplets:       "triplets",
	QuantiseEvenDotted:     "even-dotted",
	QuantiseEvenTriplets:   "even-triplets",
	QuantiseDottedTriplets: "dotted-triplets",
	QuantiseAll:            "all",
}

func (q UpdateQuantisation) String() string {
	if q >= 0 && q < numUpdateQuantisations {
		return updateQuantisationNames[q]
	}
	return fmt.Sprintf("UpdateQuantisation(%d)", int(q))
}

// Valid reports whether q names a known method.
func (q UpdateQuantisation) Valid() bool { return q >= 0 && q < numUpdateQuantisations }

// ParseUpdateQuantisation resolves a method by its String name.
func ParseUpdateQuantisation(name string) (UpdateQuantisation, error) {
	for i, n := range updateQuantisationNames {
		if n == name {
			return UpdateQuantisation(i), nil
		}
	}
	return QuantiseContinuous, fmt.Errorf("lfo: unknown update quantisation %q", name)
}

// Whole note down to a sixty-fourth.
const noteLengths = 7

var quantisationTables = buildQuantisationTables()

func buildQuantisationTables() [numUpdateQuantisations][]float64 {
	var even, dotted, triplets []float64
	for i := 0; i < noteLengths; i++ {
		f := 1 / math.Exp2(float64(i))
		even = append(even, f)
		dotted = append(dotted, f*3/2)
		triplets = append(triplets, f*2/3)
	}
	join := func(parts ...[]float64) []float64 {
		var out []float64
		for _, p := range parts {
			out = append(out, p...)
		}
		sort.Float64s(out)
		return out
	}
	var t [numUpdateQuantisations][]float64
	t[QuantiseEven] = join(even)
	t[QuantiseDotted] = join(dotted)
	t[QuantiseTriplets] = join(triplets)
	t[QuantiseEvenDotted] = join(even, dotted)
	t[QuantiseEvenTriplets] = join(even, triplets)
	t[QuantiseDottedTriplets] = join(dotted, triplets)
	t[QuantiseAll] = join(even, dotted, triplets)
	return t
}

// Quantise returns the table entry nearest to factor, or factor itself for
// QuantiseContinuous.
func (q UpdateQuantisation) Quantise(factor float64) float64 {
	if q == QuantiseContinuous {
		return factor
	}
	table := quantisationTables[q]
	if table == nil {
		panic(fmt.Sprintf("lfo: unhandled update quantisation %v", q))
	}
	i := sort.SearchFloat64s(table, factor)
	switch {
	case i == 0:
		return table[0]
	case i == len(table):
		return table[len(table)-1]
	case factor-table[i-1] <= table[i]-factor:
		return table[i-1]
	default:
		return table[i]
	}
}
