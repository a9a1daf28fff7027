package engine

import (
	"errors"
	"fmt"
	"image/color"
	"math"

	"github.com/sirupsen/logrus"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/voice"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

// ErrInconsistentState wraps every problem Deserialise recovered from.
var ErrInconsistentState = errors.New("engine: inconsistent state")

// State is the persisted shape of the whole region graph.
type State struct {
	NextRegionID int
	Regions      []RegionState
}

type RegionState struct {
	ID        int
	Colour    color.NRGBA
	AudioFile string
	Lfo       *LfoState
	Voice     *VoiceState
}

// LfoState holds a region's oscillator settings. ModulatedParameters and
// AffectedRegions are parallel lists describing its outgoing edges.
type LfoState struct {
	TablePosition       float64
	Depth               float64
	UpdateIntervalMs    float64
	Quantisation        lfo.UpdateQuantisation
	BaseFrequency       float64
	PhaseInterval       float64
	StartingPhase       float64
	WaveTable           []float64
	ModulatedParameters []lfo.Kind
	AffectedRegions     []int
}

// VoiceState is shared by all voices of a region.
type VoiceState = voice.Params

// Serialise captures every region, its LFO, its voice parameters and the
// modulation edges. The table position is the one published by the last
// rendered block.
func (e *Engine) Serialise() State {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	s := State{NextRegionID: e.nextID, Regions: make([]RegionState, 0, len(e.order))}
	for _, id := range e.order {
		r := e.regions[id]
		l := r.lfoSettings
		ls := &LfoState{
			TablePosition:    math.Float64frombits(r.position.Load()),
			Depth:            l.Depth(),
			UpdateIntervalMs: l.UpdateIntervalMilliseconds(),
			Quantisation:     l.UpdateRateQuantisation(),
			BaseFrequency:    l.BaseFrequency(),
			PhaseInterval:    l.PhaseInterval().BaseValue(),
			StartingPhase:    l.StartingPhase().BaseValue(),
			WaveTable:        l.WaveTable(),
		}
		for _, m := range edges(r) {
			ls.ModulatedParameters = append(ls.ModulatedParameters, m.Kind)
			ls.AffectedRegions = append(ls.AffectedRegions, m.Target)
		}
		vs := r.voiceSettings.Parameters()
		s.Regions = append(s.Regions, RegionState{
			ID:        r.id,
			Colour:    r.colour,
			AudioFile: r.audioFile,
			Lfo:       ls,
			Voice:     &vs,
		})
	}
	return s
}

// Deserialise replaces the whole graph with s. Regions, their LFOs and voices
// are restored first and modulation edges last. Audio buffers are not part of
// the state; regions come back silent until SetRegionBuffer is called for
// their AudioFile.
//
// Inconsistencies are recovered locally and logged: a missing record leaves
// defaults, mismatched edge lists keep only the matched pairs, and edges to
// unknown regions are skipped. The returned error joins every recovery, each
// wrapping ErrInconsistentState; the restored graph is usable either way.
func (e *Engine) Deserialise(s State) error {
	e.lockGraph()
	defer e.unlockGraph()

	for _, id := range append([]int(nil), e.order...) {
		e.removeRegion(e.regions[id])
	}

	var errs []error
	warn := func(log logrus.FieldLogger, format string, args ...any) {
		err := fmt.Errorf("%w: %s", ErrInconsistentState, fmt.Sprintf(format, args...))
		log.Warn(err.Error())
		errs = append(errs, err)
	}

	maxID := -1
	for _, rs := range s.Regions {
		log := e.log.WithField("region", rs.ID)
		if _, ok := e.regions[rs.ID]; ok || rs.ID < 0 {
			warn(log, "region id %d invalid or duplicated, skipped", rs.ID)
			continue
		}
		params := voice.DefaultParams()
		switch {
		case rs.Voice == nil:
			warn(log, "region %d has no voice record, using defaults", rs.ID)
		case validateVoiceParams(*rs.Voice) != nil:
			warn(log, "region %d voice record: %v, using defaults", rs.ID, validateVoiceParams(*rs.Voice))
		default:
			params = *rs.Voice
		}
		r := e.addRegion(rs.ID, rs.Colour, params)
		r.audioFile = rs.AudioFile
		if rs.Lfo == nil {
			warn(log, "region %d has no LFO record, using defaults", rs.ID)
		} else {
			restoreLfo(r.lfo, rs.Lfo, func(format string, args ...any) {
				warn(log, "region %d: "+format, append([]any{rs.ID}, args...)...)
			})
			restoreLfo(r.lfoSettings, rs.Lfo, func(string, ...any) {})
		}
		maxID = max(maxID, rs.ID)
	}
	e.nextID = max(s.NextRegionID, maxID+1)

	for _, rs := range s.Regions {
		if rs.Lfo == nil {
			continue
		}
		if _, ok := e.regions[rs.ID]; !ok {
			continue
		}
		log := e.log.WithField("region", rs.ID)
		kinds, targets := rs.Lfo.ModulatedParameters, rs.Lfo.AffectedRegions
		if len(kinds) != len(targets) {
			warn(log, "region %d lists %d modulated parameters for %d regions", rs.ID, len(kinds), len(targets))
		}
		for i := 0; i < min(len(kinds), len(targets)); i++ {
			if err := e.addModulation(rs.ID, kinds[i], targets[i]); err != nil {
				warn(log, "edge %d -> %d skipped: %v", rs.ID, targets[i], err)
			}
		}
	}

	e.log.WithFields(logrus.Fields{
		"regions":    len(e.order),
		"recoveries": len(errs),
	}).Info("engine state restored")
	return errors.Join(errs...)
}

func restoreLfo(l *lfo.Lfo, s *LfoState, warn func(format string, args ...any)) {
	if len(s.WaveTable) > 0 {
		l.SetWaveTable(s.WaveTable, wavetable.Unipolar)
	}
	l.SetTablePosition(s.TablePosition)
	l.SetDepth(s.Depth)
	l.SetUpdateIntervalMilliseconds(s.UpdateIntervalMs)
	if s.Quantisation.Valid() {
		l.SetUpdateRateQuantisation(s.Quantisation)
	} else {
		warn("update quantisation %d unknown, using continuous", int(s.Quantisation))
	}
	l.SetBaseFrequency(s.BaseFrequency)
	l.SetPhaseInterval(s.PhaseInterval)
	l.SetStartingPhase(s.StartingPhase)
}
