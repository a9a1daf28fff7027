package voice

import (
	"fmt"
	"math"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
)

// SetBaseLevel sets the unmodulated output gain.
func (v *Voice) SetBaseLevel(level float64) {
	v.level.SetBaseValue(math.Max(0, level))
}

// SetBasePitch sets the unmodulated pitch shift in semitones.
func (v *Voice) SetBasePitch(semitones float64) {
	v.pitchShift.SetBaseValue(semitones)
}

// SetBasePlaybackPositionStart sets where the playback range begins, as a
// fraction of the buffer. Values wrap into [0, 1).
func (v *Voice) SetBasePlaybackPositionStart(fraction float64) {
	v.playbackStart.SetBaseValue(frac(fraction))
}

// SetBasePlaybackPositionInterval sets the share of the buffer the voice loops
// over, in [MinPlaybackInterval, 1].
func (v *Voice) SetBasePlaybackPositionInterval(fraction float64) {
	if math.IsNaN(fraction) {
		fraction = 1
	}
	v.playbackInterval.SetBaseValue(math.Max(MinPlaybackInterval, math.Min(1, fraction)))
}

// SetBaseFilterPosition sets the filter cutoff as a position in [0, 1].
func (v *Voice) SetBaseFilterPosition(pos float64) {
	if math.IsNaN(pos) {
		pos = 1
	}
	v.filterPosition.SetBaseValue(math.Max(0, math.Min(1, pos)))
}

func (v *Voice) SetPitchQuantisation(q pitch.Quantisation) {
	if !q.Valid() {
		panic(fmt.Sprintf("voice: invalid pitch quantisation %v", q))
	}
	v.quantisation = q
	v.retune = true
}

func (v *Voice) SetFilterType(t effects.FilterType) {
	v.filter.SetType(t)
}

func (v *Voice) SetRestartOnNoteOn(restart bool) {
	v.restartOnNoteOn = restart
}

func (v *Voice) Level() *modparam.Parameter[float64] { return v.level }
func (v *Voice) PitchShift() *modparam.Parameter[float64] { return v.pitchShift }
func (v *Voice) PlaybackStart() *modparam.Parameter[float64] { return v.playbackStart }
func (v *Voice) PlaybackInterval() *modparam.Parameter[float64] { return v.playbackInterval }
func (v *Voice) FilterPosition() *modparam.Parameter[float64] { return v.filterPosition }

// ParametersFor returns the parameter a voice-targeting kind modulates.
func (v *Voice) ParametersFor(k lfo.Kind) []*modparam.Parameter[float64] {
	switch k.Plain() {
	case lfo.KindVolume:
		return []*modparam.Parameter[float64]{v.level}
	case lfo.KindPitch:
		return []*modparam.Parameter[float64]{v.pitchShift}
	case lfo.KindPlaybackPositionStart:
		return []*modparam.Parameter[float64]{v.playbackStart}
	case lfo.KindPlaybackPositionInterval:
		return []*modparam.Parameter[float64]{v.playbackInterval}
	case lfo.KindFilterPosition:
		return []*modparam.Parameter[float64]{v.filterPosition}
	default:
		return nil
	}
}

// Parameters returns the voice's base configuration.
func (v *Voice) Parameters() Params {
	return Params{
		Envelope:                 v.env.Params(),
		Level:                    v.level.BaseValue(),
		PitchShift:               v.pitchShift.BaseValue(),
		PitchQuantisation:        v.quantisation,
		PlaybackPositionStart:    v.playbackStart.BaseValue(),
		PlaybackPositionInterval: v.playbackInterval.BaseValue(),
		FilterType:               v.filter.Type(),
		FilterPosition:           v.filterPosition.BaseValue(),
		RestartOnNoteOn:          v.restartOnNoteOn,
	}
}

// SetParameters applies a full configuration. Modulation edges are kept.
func (v *Voice) SetParameters(p Params) {
	v.env.SetParams(p.Envelope)
	v.SetBaseLevel(p.Level)
	v.SetBasePitch(p.PitchShift)
	v.SetPitchQuantisation(p.PitchQuantisation)
	v.SetBasePlaybackPositionStart(p.PlaybackPositionStart)
	v.SetBasePlaybackPositionInterval(p.PlaybackPositionInterval)
	v.SetFilterType(p.FilterType)
	v.SetBaseFilterPosition(p.FilterPosition)
	v.SetRestartOnNoteOn(p.RestartOnNoteOn)
	if v.sampleRate > 0 {
		v.resolveState()
	}
}

// Detach unsubscribes every parameter from the LFOs modulating it.
func (v *Voice) Detach() {
	v.level.Detach()
	v.pitchShift.Detach()
	v.playbackStart.Detach()
	v.playbackInterval.Detach()
	v.filterPosition.Detach()
}
