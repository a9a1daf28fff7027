package lfo

import (
	"fmt"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
)

// Kind selects which parameter of a target region an LFO modulates and how its
// output is mapped onto that parameter.
type Kind int

const (
	KindVolume Kind = iota
	KindVolumeInverted
	KindPitch
	KindPitchInverted
	KindPlaybackPositionStart
	KindPlaybackPositionStartInverted
	KindPlaybackPositionInterval
	KindPlaybackPositionIntervalInverted
	KindFilterPosition
	KindFilterPositionInverted
	KindLfoRate
	KindLfoRateInverted
	KindLfoStartingPhase
	KindLfoStartingPhaseInverted
	KindLfoPhaseInterval
	KindLfoPhaseIntervalInverted
	KindLfoCurrentPhase
	KindLfoCurrentPhaseInverted
	KindLfoUpdateInterval
	KindLfoUpdateIntervalInverted
	NumKinds
)

var kindNames = [NumKinds]string{
	KindVolume:                           "volume",
	KindVolumeInverted:                   "volume-inverted",
	KindPitch:                            "pitch",
	KindPitchInverted:                    "pitch-inverted",
	KindPlaybackPositionStart:            "playback-position-start",
	KindPlaybackPositionStartInverted:    "playback-position-start-inverted",
	KindPlaybackPositionInterval:         "playback-position-interval",
	KindPlaybackPositionIntervalInverted: "playback-position-interval-inverted",
	KindFilterPosition:                   "filter-position",
	KindFilterPositionInverted:           "filter-position-inverted",
	KindLfoRate:                          "lfo-rate",
	KindLfoRateInverted:                  "lfo-rate-inverted",
	KindLfoStartingPhase:                 "lfo-starting-phase",
	KindLfoStartingPhaseInverted:         "lfo-starting-phase-inverted",
	KindLfoPhaseInterval:                 "lfo-phase-interval",
	KindLfoPhaseIntervalInverted:         "lfo-phase-interval-inverted",
	KindLfoCurrentPhase:                  "lfo-current-phase",
	KindLfoCurrentPhaseInverted:          "lfo-current-phase-inverted",
	KindLfoUpdateInterval:                "lfo-update-interval",
	KindLfoUpdateIntervalInverted:        "lfo-update-interval-inverted",
}

func (k Kind) String() string {
	if k.Valid() {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Valid reports whether k names a known kind.
func (k Kind) Valid() bool { return k >= 0 && k < NumKinds }

// ParseKind resolves a kind by its String name.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("lfo: unknown modulation kind %q", name)
}

// Inverted reports whether k is the inverted twin of a kind.
func (k Kind) Inverted() bool { return k%2 == 1 }

// Plain returns the non-inverted twin of k.
func (k Kind) Plain() Kind { return k &^ 1 }

// TargetsLfo reports whether k modulates a parameter of the target's LFO
// rather than of its voices.
func (k Kind) TargetsLfo() bool { return k.Plain() >= KindLfoRate }

// Eval returns the function mapping a source's output onto a contribution for
// parameters of this kind.
func (k Kind) Eval() modparam.EvalFunc[float64] {
	switch k {
	case KindVolume, KindPlaybackPositionInterval, KindLfoPhaseInterval, KindLfoUpdateInterval:
		return unipolarMultiplicative
	case KindVolumeInverted, KindPlaybackPositionIntervalInverted, KindLfoPhaseIntervalInverted, KindLfoUpdateIntervalInverted:
		return unipolarMultiplicativeInverted
	case KindPitch, KindLfoRate:
		return bipolarSemitones
	case KindPitchInverted, KindLfoRateInverted:
		return bipolarSemitonesInverted
	case KindPlaybackPositionStart, KindFilterPosition, KindLfoStartingPhase:
		return bipolarFraction
	case KindPlaybackPositionStartInverted, KindFilterPositionInverted, KindLfoStartingPhaseInverted:
		return bipolarFractionInverted
	case KindLfoCurrentPhase:
		return unipolarFraction
	case KindLfoCurrentPhaseInverted:
		return unipolarFractionInverted
	default:
		panic(fmt.Sprintf("lfo: unhandled modulation kind %v", k))
	}
}

func unipolarMultiplicative(s modparam.Source) float64 {
	return 1 - s.Depth()*(1-s.UnipolarValue())
}

func unipolarMultiplicativeInverted(s modparam.Source) float64 {
	return 1 - s.Depth()*s.UnipolarValue()
}

// A full-depth bipolar swing covers one octave either way.
func bipolarSemitones(s modparam.Source) float64 {
	return 12 * s.BipolarValue() * s.Depth()
}

func bipolarSemitonesInverted(s modparam.Source) float64 {
	return -12 * s.BipolarValue() * s.Depth()
}

func bipolarFraction(s modparam.Source) float64 {
	return s.BipolarValue() * s.Depth()
}

func bipolarFractionInverted(s modparam.Source) float64 {
	return -s.BipolarValue() * s.Depth()
}

func unipolarFraction(s modparam.Source) float64 {
	return s.UnipolarValue() * s.Depth()
}

func unipolarFractionInverted(s modparam.Source) float64 {
	return (1 - s.UnipolarValue()) * s.Depth()
}
