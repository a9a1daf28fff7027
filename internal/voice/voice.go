// Package voice renders one region's audio buffer through an envelope, pitch
// and playback-range modulation and a filter, one sample at a time.
package voice

import (
	"fmt"
	"math"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/envelope"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/sample"
)

// State combines whether a buffer is loaded and playing with whether the voice
// drives an LFO.
type State int

const (
	StateUnprepared State = iota
	StateNoWavefileNoLfo
	StateNoWavefileLfo
	StateStoppedNoLfo
	StateStoppedLfo
	StatePlayableNoLfo
	StatePlayableLfo
	numStates
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StateNoWavefileNoLfo:
		return "no-wavefile"
	case StateNoWavefileLfo:
		return "no-wavefile+lfo"
	case StateStoppedNoLfo:
		return "stopped"
	case StateStoppedLfo:
		return "stopped+lfo"
	case StatePlayableNoLfo:
		return "playable"
	case StatePlayableLfo:
		return "playable+lfo"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Playable reports whether the state reads from the buffer.
func (s State) Playable() bool {
	return s == StatePlayableNoLfo || s == StatePlayableLfo
}

type renderFunc func(v *Voice, out [][]float32, index int)

// renderFuncs is filled in init because the render methods reach setState,
// which reads the table, and a package-level initialiser would form a cycle.
var renderFuncs [numStates]renderFunc

func init() {
	renderFuncs = [numStates]renderFunc{
		StateUnprepared:      (*Voice).renderSilent,
		StateNoWavefileNoLfo: (*Voice).renderSilent,
		StateNoWavefileLfo:   (*Voice).renderLfo,
		StateStoppedNoLfo:    (*Voice).renderSilent,
		StateStoppedLfo:      (*Voice).renderLfo,
		StatePlayableNoLfo:   (*Voice).renderWave,
		StatePlayableLfo:     (*Voice).renderWaveLfo,
	}
}

// MinPlaybackInterval is the smallest share of the buffer a voice loops over.
const MinPlaybackInterval = 0.001

// Params is the persistable configuration shared by all voices of a region.
type Params struct {
	Envelope                 envelope.Params
	Level                    float64
	PitchShift               float64
	PitchQuantisation        pitch.Quantisation
	PlaybackPositionStart    float64
	PlaybackPositionInterval float64
	FilterType               effects.FilterType
	FilterPosition           float64
	RestartOnNoteOn          bool
}

func DefaultParams() Params {
	return Params{
		Envelope:                 envelope.DefaultParams(),
		Level:                    1,
		PlaybackPositionInterval: 1,
		FilterType:               effects.FilterNone,
		FilterPosition:           1,
		RestartOnNoteOn:          true,
	}
}

// Voice plays a region's buffer. It is not safe for concurrent use.
type Voice struct {
	regionID int
	state    State
	render   renderFunc

	sampleRate float64
	buf        *sample.Buffer
	lfo        *lfo.Lfo
	env        *envelope.DAHDSR
	filter     *effects.Filter

	level            *modparam.Parameter[float64]
	pitchShift       *modparam.Parameter[float64]
	playbackStart    *modparam.Parameter[float64]
	playbackInterval *modparam.Parameter[float64]
	filterPosition   *modparam.Parameter[float64]

	quantisation    pitch.Quantisation
	restartOnNoteOn bool

	// offset is the read position relative to the start of the playback range.
	offset    float64
	delta     float64
	rateRatio float64
	retune    bool
}

// New returns an unprepared voice for the region with default parameters.
func New(regionID int) *Voice {
	v := &Voice{
		regionID:         regionID,
		env:              envelope.New(envelope.DefaultParams()),
		filter:           effects.NewFilter(),
		level:            modparam.NewMultiplicative(1.0),
		pitchShift:       modparam.NewAdditive(0.0),
		playbackStart:    modparam.NewAdditive(0.0),
		playbackInterval: modparam.NewCappedMultiplicative(1.0, MinPlaybackInterval),
		filterPosition:   modparam.NewAdditive(1.0),
		restartOnNoteOn:  true,
	}
	v.setState(StateUnprepared)
	return v
}

func (v *Voice) RegionID() int { return v.regionID }

func (v *Voice) State() State { return v.state }

// Playing reports whether a note is sounding.
func (v *Voice) Playing() bool { return v.state.Playable() }

func (v *Voice) Envelope() *envelope.DAHDSR { return v.env }

func (v *Voice) Lfo() *lfo.Lfo { return v.lfo }

func (v *Voice) Buffer() *sample.Buffer { return v.buf }

// Delta returns the buffer read increment per output sample. It is zero
// whenever the voice is not playable.
func (v *Voice) Delta() float64 { return v.delta }

// Prepare sets the output sample rate.
func (v *Voice) Prepare(sampleRate float64) {
	v.env.SetSampleRate(sampleRate)
	v.sampleRate = sampleRate
	v.filter.SetSampleRate(sampleRate)
	v.updateRateRatio()
	v.resolveState()
}

// SetBuffer replaces the buffer the voice plays. A sounding note is stopped.
// A nil or empty buffer leaves the voice without a wavefile.
func (v *Voice) SetBuffer(buf *sample.Buffer) {
	v.env.ForceStop()
	v.filter.Reset()
	v.buf = buf
	v.offset = 0
	v.updateRateRatio()
	v.resolveState()
}

// SetLfo associates the LFO this voice advances while rendering. Nil removes
// the association.
func (v *Voice) SetLfo(l *lfo.Lfo) {
	v.lfo = l
	v.resolveState()
}

// NoteOn starts the envelope. Without a buffer it does nothing.
func (v *Voice) NoteOn() {
	switch v.state {
	case StateUnprepared:
		panic("voice: NoteOn called before Prepare")
	case StateNoWavefileNoLfo, StateNoWavefileLfo:
		return
	}
	if v.restartOnNoteOn {
		v.offset = 0
	}
	v.env.NoteOn()
	v.resolveState()
}

// NoteOff releases the envelope.
func (v *Voice) NoteOff() {
	if !v.state.Playable() {
		return
	}
	v.env.NoteOff()
	v.resolveState()
}

// ForceStop silences the voice immediately.
func (v *Voice) ForceStop() {
	v.env.ForceStop()
	v.filter.Reset()
	v.resolveState()
}

// RenderNextSample adds the voice's next sample to every channel of out at
// index.
func (v *Voice) RenderNextSample(out [][]float32, index int) {
	v.render(v, out, index)
}

func (v *Voice) renderSilent([][]float32, int) {}

func (v *Voice) renderLfo([][]float32, int) {
	v.lfo.Advance()
}

func (v *Voice) renderWaveLfo(out [][]float32, index int) {
	v.lfo.Advance()
	v.renderWave(out, index)
}

func (v *Voice) renderWave(out [][]float32, index int) {
	if v.retune || v.pitchShift.Outdated() {
		v.updateDelta()
	}
	if v.filterPosition.Outdated() {
		v.updateCutoff()
	}

	data := v.buf.Data
	n := float64(len(data))
	start := frac(v.playbackStart.Value()) * n
	length := math.Min(v.playbackInterval.Value(), 1) * n

	x := start + v.offset
	if x >= n {
		x -= n
	}
	i := int(x)
	f := x - float64(i)
	j := i + 1
	if j >= len(data) {
		j = 0
	}
	s := data[i]*(1-f) + data[j]*f

	s *= v.env.NextSample() * v.level.Value()
	s = v.filter.Process(s)
	for _, ch := range out {
		ch[index] += float32(s)
	}

	v.offset += v.delta
	if v.offset >= length {
		v.offset = math.Mod(v.offset, length)
	}
	if !v.env.Active() {
		v.filter.Reset()
		v.resolveState()
	}
}

func (v *Voice) resolveState() {
	hasLfo := v.lfo != nil
	switch {
	case v.sampleRate <= 0:
		v.setState(StateUnprepared)
	case v.buf == nil || v.buf.Len() == 0:
		v.setState(pick(hasLfo, StateNoWavefileLfo, StateNoWavefileNoLfo))
	case v.env.Active():
		v.setState(pick(hasLfo, StatePlayableLfo, StatePlayableNoLfo))
	default:
		v.setState(pick(hasLfo, StateStoppedLfo, StateStoppedNoLfo))
	}
}

func (v *Voice) setState(s State) {
	if s.Playable() && !v.state.Playable() {
		v.retune = true
	}
	v.state = s
	v.render = renderFuncs[s]
	if !s.Playable() {
		v.delta = 0
	}
}

func pick(cond bool, yes, no State) State {
	if cond {
		return yes
	}
	return no
}

func (v *Voice) updateRateRatio() {
	if v.buf == nil || v.buf.SampleRate <= 0 || v.sampleRate <= 0 {
		v.rateRatio = 0
	} else {
		v.rateRatio = v.buf.SampleRate / v.sampleRate
	}
	v.retune = true
}

func (v *Voice) updateDelta() {
	semitones := v.quantisation.Quantise(v.pitchShift.Value())
	v.delta = v.rateRatio * pitch.SemitoneRatio(semitones)
	v.retune = false
}

func (v *Voice) updateCutoff() {
	v.filter.SetCutoff(effects.CutoffFromPosition(v.filterPosition.Value()))
}

// frac returns x - floor(x), kept strictly below 1.
func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 {
		return 0
	}
	return f
}
