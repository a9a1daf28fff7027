package lfo

import (
	"math"
	"testing"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/modparam"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

func newPrepared(regionID int, cycle []float64, sampleRate float64) *Lfo {
	l := New(regionID)
	l.SetWaveTable(cycle, wavetable.Bipolar)
	l.Prepare(sampleRate)
	return l
}

func TestStateResolution(t *testing.T) {
	l := New(0)
	if l.State() != StateUnprepared {
		t.Fatalf("new LFO state = %v, want unprepared", l.State())
	}
	l.Advance()

	l.Prepare(44100)
	if l.State() != StateWithoutWaveTable {
		t.Fatalf("state = %v, want without-wavetable", l.State())
	}
	l.SetWaveTable(wavetable.Preset(wavetable.Sine, 64), wavetable.Bipolar)
	if l.State() != StateWithoutModulatedParameters {
		t.Fatalf("state = %v, want without-modulated-parameters", l.State())
	}

	p := modparam.NewMultiplicative(1.0)
	l.AddRegionModulation(KindVolume, 1, p)
	if l.State() != StateActiveRealTime {
		t.Fatalf("state = %v, want active-realtime", l.State())
	}
	l.SetUpdateIntervalMilliseconds(5)
	if l.State() != StateActive {
		t.Fatalf("state = %v, want active", l.State())
	}
	l.SetDepth(0)
	if l.State() != StateMuted {
		t.Fatalf("state = %v, want muted", l.State())
	}
	if got := p.Value(); got != 1 {
		t.Fatalf("muted LFO should leave volume at 1, got %v", got)
	}
	l.SetDepth(0.5)
	l.RemoveRegionModulation(1)
	if l.State() != StateWithoutModulatedParameters {
		t.Fatalf("state = %v after removing the only edge", l.State())
	}
	if p.ModulatorCount() != 0 {
		t.Fatalf("parameter still has %d modulators", p.ModulatorCount())
	}
}

func TestPhaseWrapsWithinInterval(t *testing.T) {
	l := newPrepared(0, wavetable.Preset(wavetable.Sine, 100), 1000)
	l.SetBaseFrequency(10)
	l.SetPhaseInterval(0.5)
	l.SetStartingPhase(0.25)

	prev := 0.0
	wraps := 0
	for i := 0; i < 200; i++ {
		l.Advance()
		ph := l.LatestModulatedPhase()
		if ph < 0.25 || ph >= 0.75 {
			t.Fatalf("sample %d: phase %v outside [0.25, 0.75)", i, ph)
		}
		if i > 0 && ph < prev {
			wraps++
			if math.Abs(ph-0.25) > 1e-9 {
				t.Fatalf("sample %d: phase decreased to %v, expected a wrap to 0.25", i, ph)
			}
		}
		prev = ph
	}
	if wraps != 4 {
		t.Fatalf("observed %d wraps over 200 samples, want 4", wraps)
	}
}

func TestCrossModulationRateOctave(t *testing.T) {
	for _, tc := range []struct {
		kind  Kind
		ratio float64
	}{
		{KindLfoRate, 2},
		{KindLfoRateInverted, 0.5},
	} {
		t.Run(tc.kind.String(), func(t *testing.T) {
			a := newPrepared(0, []float64{1, 1, 1, 1}, 1000)
			b := newPrepared(1, wavetable.Preset(wavetable.Sine, 64), 1000)
			b.SetBaseFrequency(5)
			before := b.Delta()

			if !a.AddRegionModulation(tc.kind, b.RegionID(), b.ParametersFor(tc.kind)...) {
				t.Fatal("AddRegionModulation failed")
			}
			a.Advance()
			if a.BipolarValue() != 1 {
				t.Fatalf("A bipolar output = %v, want 1", a.BipolarValue())
			}
			b.Advance()
			if got := b.Delta(); got != before*tc.ratio {
				t.Fatalf("B delta = %v, want %v", got, before*tc.ratio)
			}
		})
	}
}

func TestScheduledUpdates(t *testing.T) {
	l := newPrepared(0, wavetable.Preset(wavetable.Triangle, 32), 1000)
	l.SetUpdateIntervalMilliseconds(10)
	p := modparam.NewMultiplicative(1.0)
	l.AddRegionModulation(KindVolume, 3, p)
	p.Value()

	updates := 0
	for i := 0; i < 100; i++ {
		l.Advance()
		if p.Outdated() {
			updates++
			p.Value()
		}
	}
	if updates != 10 {
		t.Fatalf("parameter signalled %d times in 100 samples, want 10", updates)
	}
}

func updatePeriods(l *Lfo, p *modparam.Parameter[float64], samples int) []int {
	var periods []int
	last := -1
	for i := 0; i < samples; i++ {
		l.Advance()
		if !p.Outdated() {
			continue
		}
		p.Value()
		if last >= 0 {
			periods = append(periods, i-last)
		}
		last = i
	}
	return periods
}

func TestScheduledUpdatesQuantised(t *testing.T) {
	for _, tc := range []struct {
		q      UpdateQuantisation
		period int
	}{
		{QuantiseContinuous, 10},
		{QuantiseEven, 10},
		{QuantiseDotted, 8},
		{QuantiseTriplets, 7},
		{QuantiseAll, 10},
	} {
		t.Run(tc.q.String(), func(t *testing.T) {
			l := newPrepared(0, wavetable.Preset(wavetable.Triangle, 32), 1000)
			l.SetUpdateIntervalMilliseconds(10)
			l.SetUpdateRateQuantisation(tc.q)
			p := modparam.NewMultiplicative(1.0)
			l.AddRegionModulation(KindVolume, 3, p)
			p.Value()

			periods := updatePeriods(l, p, 210)
			for i, got := range periods {
				if got != tc.period {
					t.Fatalf("update %d came after %d samples, want %d", i+1, got, tc.period)
				}
			}
			if want := 210/tc.period - 1; len(periods) < want {
				t.Fatalf("observed %d periods, want at least %d", len(periods), want)
			}
		})
	}
}

func TestUpdateIntervalModulationChangesPeriod(t *testing.T) {
	for _, tc := range []struct {
		q      UpdateQuantisation
		period int
	}{
		{QuantiseContinuous, 5},
		{QuantiseEven, 5},
		{QuantiseDotted, 4},
	} {
		t.Run(tc.q.String(), func(t *testing.T) {
			// A flat bipolar 0 reads as unipolar 0.5, halving the interval.
			src := newPrepared(2, []float64{0, 0}, 1000)
			l := newPrepared(0, wavetable.Preset(wavetable.Triangle, 32), 1000)
			l.SetUpdateIntervalMilliseconds(10)
			l.SetUpdateRateQuantisation(tc.q)
			if !src.AddRegionModulation(KindLfoUpdateInterval, 0, l.UpdateInterval()) {
				t.Fatal("AddRegionModulation failed")
			}
			p := modparam.NewMultiplicative(1.0)
			l.AddRegionModulation(KindVolume, 3, p)
			p.Value()

			periods := updatePeriods(l, p, 100)
			if len(periods) == 0 {
				t.Fatal("no updates observed")
			}
			for i, got := range periods {
				if got != tc.period {
					t.Fatalf("update %d came after %d samples, want %d", i+1, got, tc.period)
				}
			}
		})
	}
}

func TestCurrentPhaseOverride(t *testing.T) {
	l := newPrepared(0, wavetable.Preset(wavetable.Saw, 100), 1000)
	l.SetBaseFrequency(10)
	l.Advance()
	if got := l.TablePosition(); math.Abs(got-1) > 1e-9 {
		t.Fatalf("position = %v, want 1", got)
	}
	l.SetCurrentPhase(1.5)
	l.Advance()
	if got := l.TablePosition(); math.Abs(got-50) > 1e-9 {
		t.Fatalf("position after override = %v, want 50", got)
	}
	l.Advance()
	if got := l.TablePosition(); math.Abs(got-51) > 1e-9 {
		t.Fatalf("position = %v, want 51", got)
	}
}

func TestCurrentPhaseFollowsModulatorSignals(t *testing.T) {
	a := newPrepared(0, []float64{0.5, 0.5}, 1000)
	b := newPrepared(1, wavetable.Preset(wavetable.Saw, 100), 1000)
	b.SetBaseFrequency(10)
	a.AddRegionModulation(KindLfoCurrentPhase, 1, b.CurrentPhase())

	// A bipolar 0.5 reads as unipolar 0.75 at full depth.
	a.Advance()
	b.Advance()
	if got := b.TablePosition(); math.Abs(got-75) > 1e-9 {
		t.Fatalf("position after signal = %v, want 75", got)
	}
	b.Advance()
	if got := b.TablePosition(); math.Abs(got-76) > 1e-9 {
		t.Fatalf("position without a new signal = %v, want 76", got)
	}
}

func TestRemovingCurrentPhaseEdgeKeepsPosition(t *testing.T) {
	for _, tc := range []struct {
		name   string
		remove func(a, b *Lfo)
	}{
		{"remove-edge", func(a, b *Lfo) { a.RemoveRegionModulation(1) }},
		{"detach-source", func(a, b *Lfo) { a.Detach() }},
		{"detach-target", func(a, b *Lfo) { b.Detach() }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := newPrepared(0, wavetable.Preset(wavetable.Sine, 16), 1000)
			a.SetDepth(0)
			b := newPrepared(1, wavetable.Preset(wavetable.Saw, 100), 1000)
			b.SetBaseFrequency(10)
			a.AddRegionModulation(KindLfoCurrentPhase, 1, b.CurrentPhase())

			for i := 0; i < 30; i++ {
				a.Advance()
				b.Advance()
			}
			if got := b.TablePosition(); math.Abs(got-30) > 1e-9 {
				t.Fatalf("position = %v, want 30", got)
			}
			tc.remove(a, b)
			b.Advance()
			if got := b.TablePosition(); math.Abs(got-31) > 1e-9 {
				t.Fatalf("position after removing the edge = %v, want 31", got)
			}
		})
	}
}

func TestDetachRemovesEdgesBothWays(t *testing.T) {
	a := newPrepared(0, wavetable.Preset(wavetable.Sine, 16), 1000)
	b := newPrepared(1, wavetable.Preset(wavetable.Sine, 16), 1000)
	a.AddRegionModulation(KindLfoRate, 1, b.FrequencyModulation())
	b.AddRegionModulation(KindLfoPhaseInterval, 0, a.PhaseInterval())
	if b.State() != StateActiveRealTime {
		t.Fatalf("B state = %v", b.State())
	}

	a.Detach()
	if n := b.FrequencyModulation().ModulatorCount(); n != 0 {
		t.Fatalf("B rate still has %d modulators", n)
	}
	if n := a.PhaseInterval().ModulatorCount(); n != 0 {
		t.Fatalf("A phase interval still has %d modulators", n)
	}
	if len(b.Targets()) != 0 || b.State() != StateWithoutModulatedParameters {
		t.Fatalf("B should have dropped its edge to A: targets %v state %v", b.Targets(), b.State())
	}
}

func TestAddRegionModulationIsUniquePerRegion(t *testing.T) {
	l := newPrepared(2, wavetable.Preset(wavetable.Sine, 16), 1000)
	p := modparam.NewAdditive(0.0)
	if !l.AddRegionModulation(KindPitch, 1, p) {
		t.Fatal("first edge should be added")
	}
	if l.AddRegionModulation(KindPitchInverted, 1, p) {
		t.Fatal("a parameter takes one edge per source region")
	}
	if len(l.Targets()) != 1 {
		t.Fatalf("targets = %d, want 1", len(l.Targets()))
	}
}

func TestEvalFunctions(t *testing.T) {
	src := newPrepared(0, []float64{0.5, 0.5}, 1000)
	src.SetDepth(0.5)
	// u = 0.75, b = 0.5
	for _, tc := range []struct {
		kind Kind
		want float64
	}{
		{KindVolume, 1 - 0.5*0.25},
		{KindVolumeInverted, 1 - 0.5*0.75},
		{KindPitch, 12 * 0.5 * 0.5},
		{KindPitchInverted, -12 * 0.5 * 0.5},
		{KindFilterPosition, 0.25},
		{KindPlaybackPositionStartInverted, -0.25},
		{KindLfoCurrentPhase, 0.375},
		{KindLfoCurrentPhaseInverted, 0.125},
		{KindLfoUpdateInterval, 0.875},
	} {
		if got := tc.kind.Eval()(src); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%v: %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestKindNames(t *testing.T) {
	for k := Kind(0); k < NumKinds; k++ {
		got, err := ParseKind(k.String())
		if err != nil || got != k {
			t.Fatalf("ParseKind(%q) = %v, %v", k.String(), got, err)
		}
		if k.Inverted() != (k != k.Plain()) {
			t.Fatalf("%v: Inverted and Plain disagree", k)
		}
	}
	if !KindLfoRate.TargetsLfo() || KindFilterPositionInverted.TargetsLfo() {
		t.Fatal("TargetsLfo misclassifies kinds")
	}
}

func TestUpdateQuantisation(t *testing.T) {
	for _, tc := range []struct {
		q    UpdateQuantisation
		in   float64
		want float64
	}{
		{QuantiseContinuous, 0.3, 0.3},
		{QuantiseEven, 0.3, 0.25},
		{QuantiseEven, 0.9, 1},
		{QuantiseDotted, 0.3, 0.375},
		{QuantiseTriplets, 0.3, 1.0 / 3},
		{QuantiseAll, 0.7, 2.0 / 3},
		{QuantiseEven, 0.001, 1.0 / 64},
	} {
		if got := tc.q.Quantise(tc.in); math.Abs(got-tc.want) > 1e-12 {
			t.Errorf("%v.Quantise(%v) = %v, want %v", tc.q, tc.in, got, tc.want)
		}
	}
}

func BenchmarkAdvanceRealTime(b *testing.B) {
	l := newPrepared(0, wavetable.Preset(wavetable.Sine, 1024), 48000)
	for i := 0; i < 8; i++ {
		l.AddRegionModulation(KindPitch, i+1, modparam.NewAdditive(0.0))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.Advance()
	}
}
