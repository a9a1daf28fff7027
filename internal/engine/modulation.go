package engine

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
)

// Modulation is one edge of the cross-modulation graph.
type Modulation struct {
	Source int
	Kind   lfo.Kind
	Target int
}

// AddModulation makes the LFO of region src modulate a parameter of region
// target. Kinds targeting LFOs bind the target's LFO parameters; the rest bind
// the parameters of every voice of the target region. Cycles are allowed.
func (e *Engine) AddModulation(src int, kind lfo.Kind, target int) error {
	e.lockGraph()
	defer e.unlockGraph()
	if err := e.addModulation(src, kind, target); err != nil {
		return err
	}
	e.log.WithFields(logrus.Fields{"source": src, "kind": kind, "target": target}).Info("modulation added")
	return nil
}

func (e *Engine) addModulation(src int, kind lfo.Kind, target int) error {
	if !kind.Valid() {
		return fmt.Errorf("engine: kind %d: %w", int(kind), ErrInvalidKind)
	}
	s, err := e.region(src)
	if err != nil {
		return err
	}
	t, err := e.region(target)
	if err != nil {
		return err
	}
	var params []*modparam.Parameter[float64]
	if kind.TargetsLfo() {
		params = t.lfo.ParametersFor(kind)
	} else {
		for _, v := range t.voices {
			params = append(params, v.ParametersFor(kind)...)
		}
	}
	if !s.lfo.AddRegionModulation(kind, target, params...) {
		return fmt.Errorf("engine: %d -> %d (%v): %w", src, target, kind, ErrDuplicateModulation)
	}
	return nil
}

// RemoveModulation drops every edge from the LFO of src to region target.
func (e *Engine) RemoveModulation(src, target int) error {
	e.lockGraph()
	defer e.unlockGraph()
	s, err := e.region(src)
	if err != nil {
		return err
	}
	if _, err := e.region(target); err != nil {
		return err
	}
	s.lfo.RemoveRegionModulation(target)
	e.log.WithFields(logrus.Fields{"source": src, "target": target}).Info("modulation removed")
	return nil
}

// Modulations returns the edges leaving the LFO of src.
func (e *Engine) Modulations(src int) ([]Modulation, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	s, err := e.region(src)
	if err != nil {
		return nil, err
	}
	return edges(s), nil
}

func edges(r *region) []Modulation {
	targets := r.lfo.Targets()
	out := make([]Modulation, len(targets))
	for i, t := range targets {
		out[i] = Modulation{Source: r.id, Kind: t.Kind, Target: t.RegionID}
	}
	return out
}
