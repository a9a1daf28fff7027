package modparam

import (
	"math"
	"testing"
)

type fakeSource struct {
	id           int
	uni, bi      float64
	depth        float64
	unsubscribed []Listener
}

func (s *fakeSource) RegionID() int { return s.id }
func (s *fakeSource) UnipolarValue() float64 { return s.uni }
func (s *fakeSource) BipolarValue() float64 { return s.bi }
func (s *fakeSource) Depth() float64 { return s.depth }
func (s *fakeSource) Unsubscribe(l Listener) { s.unsubscribed = append(s.unsubscribed, l) }

func constant(v float64, calls *int) EvalFunc[float64] {
	return func(Source) float64 {
		*calls++
		return v
	}
}

func TestMultiplicativeCachesUntilSignalled(t *testing.T) {
	p := NewMultiplicative(2.0)
	var calls int
	a := &fakeSource{id: 1}
	b := &fakeSource{id: 2}
	p.AddModulator(a, constant(0.5, &calls))
	p.AddModulator(b, constant(0.5, &calls))

	for i := 0; i < 3; i++ {
		if got := p.Value(); got != 0.5 {
			t.Fatalf("Value() = %v, want 0.5", got)
		}
	}
	if calls != 2 {
		t.Fatalf("expected one recompute (2 evaluations), got %d evaluations", calls)
	}

	p.SignalModulatorUpdated()
	p.SignalModulatorUpdated()
	p.Value()
	p.Value()
	if calls != 4 {
		t.Fatalf("expected exactly one more recompute, got %d evaluations", calls)
	}
}

func TestAdditiveSumsContributions(t *testing.T) {
	p := NewAdditive(1.0)
	var calls int
	p.AddModulator(&fakeSource{id: 3}, constant(2, &calls))
	p.AddModulator(&fakeSource{id: 4}, constant(-0.5, &calls))
	if got := p.Value(); got != 2.5 {
		t.Fatalf("Value() = %v, want 2.5", got)
	}
	p.SetBaseValue(0)
	if !p.Outdated() {
		t.Fatal("SetBaseValue should mark the parameter outdated")
	}
	if got := p.Value(); got != 1.5 {
		t.Fatalf("Value() = %v, want 1.5", got)
	}
}

func TestCappedMultiplicativeFloor(t *testing.T) {
	p := NewCappedMultiplicative(1.0, 0.01)
	var calls int
	p.AddModulator(&fakeSource{id: 1}, constant(0, &calls))
	if got := p.Value(); got != 0.01 {
		t.Fatalf("Value() = %v, want floor 0.01", got)
	}
	p.RemoveModulator(1)
	if got := p.Value(); got != 1 {
		t.Fatalf("Value() = %v, want 1 after removing modulator", got)
	}
}

func TestAddModulatorIsUniquePerRegion(t *testing.T) {
	p := NewAdditive(0.0)
	var calls int
	if !p.AddModulator(&fakeSource{id: 7}, constant(1, &calls)) {
		t.Fatal("first AddModulator should succeed")
	}
	if p.AddModulator(&fakeSource{id: 7}, constant(5, &calls)) {
		t.Fatal("second AddModulator for the same region should be a no-op")
	}
	if p.ModulatorCount() != 1 {
		t.Fatalf("ModulatorCount() = %d, want 1", p.ModulatorCount())
	}
	if got := p.Value(); got != 1 {
		t.Fatalf("Value() = %v, want 1", got)
	}
	if p.RemoveModulator(8) {
		t.Fatal("removing an unknown region should report false")
	}
}

func TestDetachUnsubscribesFromAllSources(t *testing.T) {
	p := NewMultiplicative(1.0)
	a := &fakeSource{id: 1}
	b := &fakeSource{id: 2}
	var calls int
	p.AddModulator(a, constant(0.5, &calls))
	p.AddModulator(b, constant(0.5, &calls))
	p.Detach()
	if len(a.unsubscribed) != 1 || len(b.unsubscribed) != 1 {
		t.Fatalf("expected each source to be unsubscribed once, got %d and %d", len(a.unsubscribed), len(b.unsubscribed))
	}
	if a.unsubscribed[0] != Listener(p) {
		t.Fatal("source received the wrong listener")
	}
	if p.ModulatorCount() != 0 {
		t.Fatalf("ModulatorCount() = %d after Detach", p.ModulatorCount())
	}
	if got := p.Value(); got != 1 {
		t.Fatalf("Value() = %v, want base 1", got)
	}
}

func TestEvalFuncReceivesSource(t *testing.T) {
	p := NewAdditive(0.0)
	src := &fakeSource{id: 1, bi: 0.5, depth: 0.5}
	p.AddModulator(src, func(s Source) float64 { return 12 * s.BipolarValue() * s.Depth() })
	if got := p.Value(); math.Abs(got-3) > 1e-12 {
		t.Fatalf("Value() = %v, want 3", got)
	}
	src.bi = -1
	if got := p.Value(); math.Abs(got-3) > 1e-12 {
		t.Fatalf("cached Value() = %v, want 3 until signalled", got)
	}
	p.SignalModulatorUpdated()
	if got := p.Value(); math.Abs(got+6) > 1e-12 {
		t.Fatalf("Value() = %v, want -6", got)
	}
}

func TestFloat32Parameter(t *testing.T) {
	p := NewMultiplicative[float32](4)
	p.AddModulator(&fakeSource{id: 1}, func(Source) float32 { return 0.25 })
	if got := p.Value(); got != 1 {
		t.Fatalf("Value() = %v, want 1", got)
	}
}

func TestOnSignalOnlyFiresForSignals(t *testing.T) {
	p := NewAdditive(0.0)
	signals := 0
	p.OnSignal(func() { signals++ })
	var calls int
	p.AddModulator(&fakeSource{id: 1}, constant(0.25, &calls))
	p.SetBaseValue(0.5)
	p.RemoveModulator(1)
	p.Detach()
	if signals != 0 {
		t.Fatalf("edge and base value changes fired OnSignal %d times", signals)
	}
	p.SignalModulatorUpdated()
	p.SignalModulatorUpdated()
	if signals != 2 {
		t.Fatalf("OnSignal fired %d times for 2 signals", signals)
	}
}
