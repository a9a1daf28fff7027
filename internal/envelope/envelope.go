// Package envelope provides the DAHDSR (delay, attack, hold, decay, sustain,
// release) amplitude envelope used by voices.
package envelope

import (
	"fmt"
	"math"
)

// State is the current envelope stage.
type State int

const (
	StateUnprepared State = iota
	StateIdle
	StateDelay
	StateAttack
	StateHold
	StateDecay
	StateSustain
	StateRelease
)

func (s State) String() string {
	switch s {
	case StateUnprepared:
		return "unprepared"
	case StateIdle:
		return "idle"
	case StateDelay:
		return "delay"
	case StateAttack:
		return "attack"
	case StateHold:
		return "hold"
	case StateDecay:
		return "decay"
	case StateSustain:
		return "sustain"
	case StateRelease:
		return "release"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Params holds the eight envelope parameters. Times are in seconds, levels in
// [0, 1].
type Params struct {
	DelaySec     float64
	AttackSec    float64
	InitialLevel float64
	PeakLevel    float64
	HoldSec      float64
	DecaySec     float64
	SustainLevel float64
	ReleaseSec   float64
}

// DefaultParams returns the envelope a new voice starts with.
func DefaultParams() Params {
	return Params{
		DelaySec:     0,
		AttackSec:    0.1,
		InitialLevel: 0,
		PeakLevel:    1,
		HoldSec:      0,
		DecaySec:     0.1,
		SustainLevel: 0.5,
		ReleaseSec:   0.2,
	}
}

// Stage indices into DAHDSR.stages. Sustain has no duration and is not stored.
const (
	delayStage = iota
	attackStage
	holdStage
	decayStage
	releaseStage
	numStages
)

type stage struct {
	seconds   float64
	start     float64
	end       float64
	samples   int
	current   int
	increment float64
}

func (st *stage) derive(sampleRate float64) {
	st.samples = int(math.Round(st.seconds * sampleRate))
	if st.samples < 0 {
		st.samples = 0
	}
	st.deriveIncrement()
}

func (st *stage) deriveIncrement() {
	if st.samples > 0 {
		st.increment = (st.end - st.start) / float64(st.samples)
	} else {
		st.increment = 0
	}
}

// DAHDSR is a linear-segment envelope. It must be given a sample rate with
// SetSampleRate before NoteOn, NoteOff or NextSample are called.
type DAHDSR struct {
	sampleRate float64
	params     Params
	stages     [numStages]stage
	state      State
	level      float64
}

// New returns an unprepared envelope with the given parameters.
func New(params Params) *DAHDSR {
	e := &DAHDSR{state: StateUnprepared}
	e.params = sanitize(params)
	e.loadStages()
	return e
}

// State returns the current stage.
func (e *DAHDSR) State() State { return e.state }

// Level returns the most recently produced sample.
func (e *DAHDSR) Level() float64 { return e.level }

// Active reports whether the envelope is producing a note (any stage but idle).
func (e *DAHDSR) Active() bool {
	return e.state != StateIdle && e.state != StateUnprepared
}

// SampleRate returns the rate the stage lengths are derived from.
func (e *DAHDSR) SampleRate() float64 { return e.sampleRate }

// Params returns the current parameters.
func (e *DAHDSR) Params() Params { return e.params }

// SetParams replaces all parameters at once.
func (e *DAHDSR) SetParams(p Params) {
	e.params = sanitize(p)
	e.reconfigure(1)
}

func (e *DAHDSR) SetDelay(seconds float64) {
	e.params.DelaySec = nonNegative(seconds)
	e.reconfigure(1)
}

func (e *DAHDSR) SetAttack(seconds float64) {
	e.params.AttackSec = nonNegative(seconds)
	e.reconfigure(1)
}

func (e *DAHDSR) SetInitialLevel(level float64) {
	e.params.InitialLevel = unit(level)
	e.reconfigure(1)
}

func (e *DAHDSR) SetPeakLevel(level float64) {
	e.params.PeakLevel = unit(level)
	e.reconfigure(1)
}

func (e *DAHDSR) SetHold(seconds float64) {
	e.params.HoldSec = nonNegative(seconds)
	e.reconfigure(1)
}

func (e *DAHDSR) SetDecay(seconds float64) {
	e.params.DecaySec = nonNegative(seconds)
	e.reconfigure(1)
}

func (e *DAHDSR) SetSustainLevel(level float64) {
	e.params.SustainLevel = unit(level)
	e.reconfigure(1)
}

func (e *DAHDSR) SetRelease(seconds float64) {
	e.params.ReleaseSec = nonNegative(seconds)
	e.reconfigure(1)
}

// SetSampleRate re-derives every stage length. An unprepared or idle envelope
// becomes idle; an envelope inside a stage stays there with its position
// rescaled, and leaves the stage at once if its new length is zero.
func (e *DAHDSR) SetSampleRate(rate float64) {
	if rate <= 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
		panic(fmt.Sprintf("envelope: invalid sample rate %v", rate))
	}
	scale := 1.0
	if e.sampleRate > 0 {
		scale = rate / e.sampleRate
	}
	e.sampleRate = rate
	if e.state == StateUnprepared {
		e.state = StateIdle
		e.level = 0
	}
	e.reconfigure(scale)
}

// NoteOn enters the delay stage, or the first stage with a non-zero duration.
func (e *DAHDSR) NoteOn() {
	e.mustBePrepared("NoteOn")
	e.enter(StateDelay)
}

// NoteOff jumps to the release stage, starting from the current level.
func (e *DAHDSR) NoteOff() {
	e.mustBePrepared("NoteOff")
	switch e.state {
	case StateIdle, StateRelease:
		return
	}
	rel := &e.stages[releaseStage]
	rel.start = e.level
	rel.deriveIncrement()
	e.enter(StateRelease)
}

// ForceStop silences the envelope immediately.
func (e *DAHDSR) ForceStop() {
	if e.state == StateUnprepared {
		return
	}
	e.state = StateIdle
	e.level = 0
}

// NextSample returns the next envelope value and advances by one sample.
func (e *DAHDSR) NextSample() float64 {
	switch e.state {
	case StateUnprepared:
		panic("envelope: NextSample called before SetSampleRate")
	case StateIdle:
		e.level = 0
		return 0
	case StateSustain:
		e.level = e.params.SustainLevel
		return e.level
	case StateDelay, StateAttack, StateHold, StateDecay, StateRelease:
		st := &e.stages[stageIndex(e.state)]
		v := st.start + st.increment*float64(st.current)
		st.current++
		if st.current >= st.samples {
			e.enter(nextState(e.state))
		}
		e.level = v
		return v
	default:
		panic(fmt.Sprintf("envelope: unhandled state %v", e.state))
	}
}

// enter transitions to s, skipping forward through every stage that would
// last zero samples.
func (e *DAHDSR) enter(s State) {
	for {
		switch s {
		case StateDelay, StateAttack, StateHold, StateDecay, StateRelease:
			st := &e.stages[stageIndex(s)]
			st.current = 0
			if st.samples == 0 {
				s = nextState(s)
				continue
			}
		case StateSustain:
			if e.params.SustainLevel <= 0 {
				s = StateIdle
				continue
			}
		case StateIdle:
			e.level = 0
		default:
			panic(fmt.Sprintf("envelope: cannot enter state %v", s))
		}
		e.state = s
		return
	}
}

func (e *DAHDSR) loadStages() {
	p := e.params
	e.stages[delayStage] = stage{seconds: p.DelaySec, start: p.InitialLevel, end: p.InitialLevel}
	e.stages[attackStage] = stage{seconds: p.AttackSec, start: p.InitialLevel, end: p.PeakLevel}
	e.stages[holdStage] = stage{seconds: p.HoldSec, start: p.PeakLevel, end: p.PeakLevel}
	e.stages[decayStage] = stage{seconds: p.DecaySec, start: p.PeakLevel, end: p.SustainLevel}
	e.stages[releaseStage] = stage{seconds: p.ReleaseSec, start: p.SustainLevel, end: 0}
}

// reconfigure reloads stage definitions from the parameters, keeping each
// stage's position (scaled by posScale) and the captured release start, then
// resolves the current state against the new lengths.
func (e *DAHDSR) reconfigure(posScale float64) {
	var pos [numStages]int
	for i := range e.stages {
		pos[i] = e.stages[i].current
	}
	releaseStart := e.stages[releaseStage].start
	e.loadStages()
	if e.state == StateRelease {
		e.stages[releaseStage].start = releaseStart
	}
	if e.sampleRate <= 0 {
		return
	}
	for i := range e.stages {
		st := &e.stages[i]
		st.derive(e.sampleRate)
		st.current = int(math.Round(float64(pos[i]) * posScale))
	}

	switch e.state {
	case StateDelay, StateAttack, StateHold, StateDecay, StateRelease:
		st := &e.stages[stageIndex(e.state)]
		if st.current >= st.samples {
			e.enter(nextState(e.state))
		}
	case StateSustain:
		if e.params.SustainLevel <= 0 {
			e.enter(StateIdle)
		}
	}
}

func (e *DAHDSR) mustBePrepared(op string) {
	if e.state == StateUnprepared {
		panic("envelope: " + op + " called before SetSampleRate")
	}
}

func stageIndex(s State) int {
	switch s {
	case StateDelay:
		return delayStage
	case StateAttack:
		return attackStage
	case StateHold:
		return holdStage
	case StateDecay:
		return decayStage
	case StateRelease:
		return releaseStage
	default:
		panic(fmt.Sprintf("envelope: state %v has no stage", s))
	}
}

func nextState(s State) State {
	switch s {
	case StateDelay:
		return StateAttack
	case StateAttack:
		return StateHold
	case StateHold:
		return StateDecay
	case StateDecay:
		return StateSustain
	case StateRelease:
		return StateIdle
	default:
		panic(fmt.Sprintf("envelope: state %v has no successor", s))
	}
}

func sanitize(p Params) Params {
	return Params{
		DelaySec:     nonNegative(p.DelaySec),
		AttackSec:    nonNegative(p.AttackSec),
		InitialLevel: unit(p.InitialLevel),
		PeakLevel:    unit(p.PeakLevel),
		HoldSec:      nonNegative(p.HoldSec),
		DecaySec:     nonNegative(p.DecaySec),
		SustainLevel: unit(p.SustainLevel),
		ReleaseSec:   nonNegative(p.ReleaseSec),
	}
}

func nonNegative(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	return v
}

func unit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
