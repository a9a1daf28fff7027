// Package lfo implements the region LFO: a wavetable oscillator whose rate,
// phase and update schedule are themselves modulatable, and which drives
// modulatable parameters of voices and other LFOs.
package lfo

import (
	"fmt"
	"math"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

// State is the LFO's processing state. Each state selects one advance
// variant.
type State int

const (
	StateUnprepared State = iota
	StateWithoutWaveTable
	StateMuted
	StateWithoutModulatedParameters
	StateActive
	StateActiveRealTime
	numStates
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StateWithoutWaveTable:
		return "without-wavetable"
	case StateMuted:
		return "muted"
	case StateWithoutModulatedParameters:
		return "without-modulated-parameters"
	case StateActive:
		return "active"
	case StateActiveRealTime:
		return "active-realtime"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var advanceFuncs = [numStates]func(*Lfo){
	StateUnprepared:                 (*Lfo).advanceNone,
	StateWithoutWaveTable:           (*Lfo).advanceNone,
	StateMuted:                      (*Lfo).advancePhaseOnly,
	StateWithoutModulatedParameters: (*Lfo).advancePhaseOnly,
	StateActive:                     (*Lfo).advanceScheduled,
	StateActiveRealTime:             (*Lfo).advanceRealTime,
}

const (
	DefaultFrequency = 1.0
	DefaultDepth     = 1.0
	// MinPhaseInterval keeps the active cycle from collapsing to zero length.
	MinPhaseInterval = 0.001
)

// Target is one modulation edge: the parameters of a region driven by this
// LFO under a given kind.
type Target struct {
	Kind     Kind
	RegionID int
	params   []*modparam.Parameter[float64]
}

// Lfo is a region's oscillator. It is not safe for concurrent use.
type Lfo struct {
	regionID   int
	sampleRate float64
	state      State
	advance    func(*Lfo)

	uni, bi []float64
	n       int

	pos           float64
	delta         float64
	baseFrequency float64

	frequencyMod   *modparam.Parameter[float64]
	startingPhase  *modparam.Parameter[float64]
	phaseInterval  *modparam.Parameter[float64]
	currentPhase   *modparam.Parameter[float64]
	updateInterval *modparam.Parameter[float64]

	depth              float64
	updateIntervalMs   float64
	quantisation       UpdateQuantisation
	samplesUntilUpdate int

	// phasePending is set by SetCurrentPhase and by a current-phase
	// modulator signalling; the next step jumps instead of advancing.
	phasePending bool

	latestPhase float64
	uniValue    float64
	biValue     float64

	targets []Target
}

// New returns an unprepared LFO owned by the given region.
func New(regionID int) *Lfo {
	l := &Lfo{
		regionID:       regionID,
		baseFrequency:  DefaultFrequency,
		frequencyMod:   modparam.NewAdditive(0.0),
		startingPhase:  modparam.NewAdditive(0.0),
		phaseInterval:  modparam.NewCappedMultiplicative(1.0, MinPhaseInterval),
		currentPhase:   modparam.NewAdditive(0.0),
		updateInterval: modparam.NewMultiplicative(1.0),
		depth:          DefaultDepth,
	}
	l.currentPhase.OnSignal(func() { l.phasePending = true })
	l.resolveState()
	return l
}

// RegionID implements modparam.Source.
func (l *Lfo) RegionID() int { return l.regionID }

// UnipolarValue implements modparam.Source.
func (l *Lfo) UnipolarValue() float64 { return l.uniValue }

// BipolarValue implements modparam.Source.
func (l *Lfo) BipolarValue() float64 { return l.biValue }

// Depth implements modparam.Source.
func (l *Lfo) Depth() float64 { return l.depth }

func (l *Lfo) State() State { return l.state }

// Prepare sets the sample rate. It panics on a non-positive rate.
func (l *Lfo) Prepare(sampleRate float64) {
	if sampleRate <= 0 || math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) {
		panic(fmt.Sprintf("lfo: invalid sample rate %v", sampleRate))
	}
	l.sampleRate = sampleRate
	l.updateDelta()
	l.samplesUntilUpdate = 0
	l.resolveState()
}

// SetWaveTable installs one cycle of the given polarity. The opposite polarity
// is derived from it. An empty table leaves the LFO without a wavetable.
func (l *Lfo) SetWaveTable(cycle []float64, polarity wavetable.Polarity) {
	l.uni, l.bi = wavetable.Pair(cycle, polarity)
	oldN := l.n
	l.n = len(cycle)
	if l.n > 0 && oldN > 0 {
		l.pos = l.pos / float64(oldN) * float64(l.n)
	}
	if l.n > 0 {
		l.pos = math.Mod(l.pos, float64(l.n))
		l.updateDelta()
		l.updateOutput()
	} else {
		l.pos, l.delta = 0, 0
		l.uniValue, l.biValue, l.latestPhase = 0, 0, 0
	}
	l.resolveState()
}

// WaveTable returns a copy of the current cycle in unipolar form, without the
// wrap sample.
func (l *Lfo) WaveTable() []float64 {
	if l.n == 0 {
		return nil
	}
	out := make([]float64, l.n)
	copy(out, l.uni[:l.n])
	return out
}

func (l *Lfo) BaseFrequency() float64 { return l.baseFrequency }

// SetBaseFrequency sets the unmodulated rate in Hz.
func (l *Lfo) SetBaseFrequency(hz float64) {
	if hz < 0 || math.IsNaN(hz) {
		hz = 0
	}
	l.baseFrequency = hz
	l.updateDelta()
}

// Delta returns the current table-position increment per sample.
func (l *Lfo) Delta() float64 { return l.delta }

func (l *Lfo) SetDepth(d float64) {
	l.depth = math.Max(0, math.Min(1, d))
	l.resolveState()
	// Targets re-read the source so a muted LFO leaves them at neutral values.
	l.signalTargets()
}

func (l *Lfo) UpdateIntervalMilliseconds() float64 { return l.updateIntervalMs }

// SetUpdateIntervalMilliseconds sets how often modulated parameters are
// notified. Zero notifies them every sample.
func (l *Lfo) SetUpdateIntervalMilliseconds(ms float64) {
	if ms < 0 || math.IsNaN(ms) {
		ms = 0
	}
	l.updateIntervalMs = ms
	l.samplesUntilUpdate = 0
	l.resolveState()
}

func (l *Lfo) UpdateRateQuantisation() UpdateQuantisation { return l.quantisation }

func (l *Lfo) SetUpdateRateQuantisation(q UpdateQuantisation) {
	if !q.Valid() {
		panic(fmt.Sprintf("lfo: invalid update quantisation %v", q))
	}
	l.quantisation = q
}

// SetPhaseInterval sets the fraction of the table one cycle covers, in
// [MinPhaseInterval, 1].
func (l *Lfo) SetPhaseInterval(v float64) {
	if math.IsNaN(v) {
		v = 1
	}
	l.phaseInterval.SetBaseValue(math.Max(MinPhaseInterval, math.Min(1, v)))
}

func (l *Lfo) SetStartingPhase(v float64) { l.startingPhase.SetBaseValue(v) }

// SetCurrentPhase jumps to the given phase on the next advance.
func (l *Lfo) SetCurrentPhase(v float64) {
	l.currentPhase.SetBaseValue(v)
	l.phasePending = true
}

// TablePosition returns the fractional read position in [0, table length).
func (l *Lfo) TablePosition() float64 { return l.pos }

func (l *Lfo) SetTablePosition(pos float64) {
	if l.n == 0 || pos < 0 || math.IsNaN(pos) {
		l.pos = 0
		return
	}
	l.pos = math.Mod(pos, float64(l.n))
	l.updateOutput()
}

// LatestModulatedPhase returns the phase, in [0, 1), the output was last read
// from.
func (l *Lfo) LatestModulatedPhase() float64 { return l.latestPhase }

// Parameter accessors for wiring modulation edges.

func (l *Lfo) FrequencyModulation() *modparam.Parameter[float64] { return l.frequencyMod }
func (l *Lfo) StartingPhase() *modparam.Parameter[float64] { return l.startingPhase }
func (l *Lfo) PhaseInterval() *modparam.Parameter[float64] { return l.phaseInterval }
func (l *Lfo) CurrentPhase() *modparam.Parameter[float64] { return l.currentPhase }
func (l *Lfo) UpdateInterval() *modparam.Parameter[float64] { return l.updateInterval }

// ParametersFor returns the parameters of this LFO a kind targeting LFOs
// modulates.
func (l *Lfo) ParametersFor(k Kind) []*modparam.Parameter[float64] {
	switch k.Plain() {
	case KindLfoRate:
		return []*modparam.Parameter[float64]{l.frequencyMod}
	case KindLfoStartingPhase:
		return []*modparam.Parameter[float64]{l.startingPhase}
	case KindLfoPhaseInterval:
		return []*modparam.Parameter[float64]{l.phaseInterval}
	case KindLfoCurrentPhase:
		return []*modparam.Parameter[float64]{l.currentPhase}
	case KindLfoUpdateInterval:
		return []*modparam.Parameter[float64]{l.updateInterval}
	default:
		return nil
	}
}

// Targets returns the modulation edges in insertion order.
func (l *Lfo) Targets() []Target {
	out := make([]Target, len(l.targets))
	copy(out, l.targets)
	return out
}

// AddRegionModulation subscribes params of the target region to this LFO. A
// parameter already modulated by this region is skipped. It reports whether
// any parameter was added.
func (l *Lfo) AddRegionModulation(k Kind, regionID int, params ...*modparam.Parameter[float64]) bool {
	eval := k.Eval()
	var added []*modparam.Parameter[float64]
	for _, p := range params {
		if p.AddModulator(l, eval) {
			added = append(added, p)
		}
	}
	if len(added) == 0 {
		return false
	}
	for i := range l.targets {
		if l.targets[i].Kind == k && l.targets[i].RegionID == regionID {
			l.targets[i].params = append(l.targets[i].params, added...)
			return true
		}
	}
	l.targets = append(l.targets, Target{Kind: k, RegionID: regionID, params: added})
	l.resolveState()
	return true
}

// RemoveRegionModulation drops every edge to the region.
func (l *Lfo) RemoveRegionModulation(regionID int) {
	kept := l.targets[:0]
	for _, t := range l.targets {
		if t.RegionID != regionID {
			kept = append(kept, t)
			continue
		}
		for _, p := range t.params {
			p.RemoveModulator(l.regionID)
		}
	}
	clear(l.targets[len(kept):])
	l.targets = kept
	l.resolveState()
}

// Unsubscribe implements modparam.Source. It forgets a parameter that is being
// discarded.
func (l *Lfo) Unsubscribe(listener modparam.Listener) {
	kept := l.targets[:0]
	for _, t := range l.targets {
		params := t.params[:0]
		for _, p := range t.params {
			if modparam.Listener(p) != listener {
				params = append(params, p)
			}
		}
		t.params = params
		if len(t.params) > 0 {
			kept = append(kept, t)
		}
	}
	clear(l.targets[len(kept):])
	l.targets = kept
	l.resolveState()
}

// Detach removes every edge in both directions: this LFO stops modulating its
// targets, and its own parameters stop listening to other LFOs.
func (l *Lfo) Detach() {
	for _, t := range l.targets {
		for _, p := range t.params {
			p.RemoveModulator(l.regionID)
		}
	}
	clear(l.targets)
	l.targets = l.targets[:0]
	l.frequencyMod.Detach()
	l.startingPhase.Detach()
	l.phaseInterval.Detach()
	l.currentPhase.Detach()
	l.updateInterval.Detach()
	l.resolveState()
}

// Advance moves the oscillator forward one sample.
func (l *Lfo) Advance() { l.advance(l) }

func (l *Lfo) resolveState() {
	switch {
	case l.sampleRate <= 0:
		l.state = StateUnprepared
	case l.n == 0:
		l.state = StateWithoutWaveTable
	case l.depth == 0:
		l.state = StateMuted
	case len(l.targets) == 0:
		l.state = StateWithoutModulatedParameters
	case l.updateIntervalMs == 0:
		l.state = StateActiveRealTime
	default:
		l.state = StateActive
	}
	l.advance = advanceFuncs[l.state]
}

func (l *Lfo) advanceNone() {}

func (l *Lfo) advancePhaseOnly() {
	l.step()
	if l.samplesUntilUpdate--; l.samplesUntilUpdate > 0 {
		return
	}
	l.updateOutput()
	l.samplesUntilUpdate = l.updateIntervalSamples()
}

func (l *Lfo) advanceScheduled() {
	l.step()
	if l.samplesUntilUpdate--; l.samplesUntilUpdate > 0 {
		return
	}
	l.updateOutput()
	l.signalTargets()
	l.samplesUntilUpdate = l.updateIntervalSamples()
}

func (l *Lfo) advanceRealTime() {
	l.step()
	l.updateOutput()
	l.signalTargets()
}

// step advances the table position. A pending current-phase value replaces
// the increment for this sample.
func (l *Lfo) step() {
	if l.frequencyMod.Outdated() {
		l.updateDelta()
	}
	n := float64(l.n)
	if l.phasePending {
		l.phasePending = false
		l.pos = frac(l.currentPhase.Value()) * n
		return
	}
	l.pos += l.delta
	if limit := l.phaseInterval.Value() * n; l.pos >= limit {
		l.pos = math.Mod(l.pos, limit)
	}
}

func (l *Lfo) updateOutput() {
	n := float64(l.n)
	l.latestPhase = frac(math.Mod(l.pos/n, l.phaseInterval.Value()) + l.startingPhase.Value())
	x := l.latestPhase * n
	l.uniValue = wavetable.Interpolate(l.uni, x)
	l.biValue = wavetable.Interpolate(l.bi, x)
}

func (l *Lfo) signalTargets() {
	for i := range l.targets {
		for _, p := range l.targets[i].params {
			p.SignalModulatorUpdated()
		}
	}
}

func (l *Lfo) updateDelta() {
	if l.sampleRate <= 0 || l.n == 0 {
		l.delta = 0
		return
	}
	l.delta = float64(l.n) * l.baseFrequency / l.sampleRate * pitch.SemitoneRatio(l.frequencyMod.Value())
}

func (l *Lfo) updateIntervalSamples() int {
	if l.updateIntervalMs == 0 {
		return 1
	}
	samples := l.updateIntervalMs * l.sampleRate / 1000
	n := int(math.Round(samples * l.quantisation.Quantise(l.updateInterval.Value())))
	if n < 1 {
		n = 1
	}
	return n
}

// frac returns x - floor(x), kept strictly below 1.
func frac(x float64) float64 {
	f := x - math.Floor(x)
	if f >= 1 {
		return 0
	}
	return f
}
