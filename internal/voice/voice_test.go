package voice

import (
	"testing"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/envelope"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/sample"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

// gate is an envelope that jumps straight to full level.
var gate = envelope.Params{PeakLevel: 1, SustainLevel: 1, ReleaseSec: 0.01}

func ramp(n int, sampleRate float64) *sample.Buffer {
	data := make([]float64, n)
	for i := range data {
		data[i] = float64(i)
	}
	return sample.New("ramp", sampleRate, data)
}

func newGatedVoice(buf *sample.Buffer, sampleRate float64) *Voice {
	v := New(0)
	p := DefaultParams()
	p.Envelope = gate
	v.SetParameters(p)
	v.Prepare(sampleRate)
	v.SetBuffer(buf)
	return v
}

func render(v *Voice, n int) []float32 {
	out := make([]float32, n)
	buf := [][]float32{out}
	for i := range out {
		v.RenderNextSample(buf, i)
	}
	return out
}

func equal(a []float32, b ...float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestUnpreparedAndEmptyVoicesAreSilent(t *testing.T) {
	v := New(0)
	if out := render(v, 8); !equal(out, 0, 0, 0, 0, 0, 0, 0, 0) {
		t.Fatalf("unprepared voice rendered %v", out)
	}
	v.Prepare(1000)
	if v.State() != StateNoWavefileNoLfo {
		t.Fatalf("state = %v, want no-wavefile", v.State())
	}
	v.NoteOn()
	if out := render(v, 4); !equal(out, 0, 0, 0, 0) {
		t.Fatalf("voice without buffer rendered %v", out)
	}
}

func TestNoteOnBeforePreparePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NoteOn on an unprepared voice should panic")
		}
	}()
	New(0).NoteOn()
}

func TestPlaybackRange(t *testing.T) {
	for _, tc := range []struct {
		name            string
		start, interval float64
		pitch           float64
		want            []float32
	}{
		{"full buffer", 0, 1, 0, []float32{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0}},
		{"sub range", 0.5, 0.3, 0, []float32{5, 6, 7, 5, 6, 7}},
		{"wraps buffer end", 0.8, 0.5, 0, []float32{8, 9, 0, 1, 2, 8}},
		{"octave up", 0, 1, 12, []float32{0, 2, 4, 6, 8, 0}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := newGatedVoice(ramp(10, 1000), 1000)
			v.SetBasePlaybackPositionStart(tc.start)
			v.SetBasePlaybackPositionInterval(tc.interval)
			v.SetBasePitch(tc.pitch)
			v.NoteOn()
			if out := render(v, len(tc.want)); !equal(out, tc.want...) {
				t.Fatalf("rendered %v, want %v", out, tc.want)
			}
		})
	}
}

func TestBufferRateSetsDelta(t *testing.T) {
	v := newGatedVoice(ramp(100, 22050), 44100)
	v.NoteOn()
	render(v, 1)
	if v.Delta() != 0.5 {
		t.Fatalf("delta = %v, want 0.5", v.Delta())
	}
}

func TestPitchQuantisation(t *testing.T) {
	v := newGatedVoice(ramp(10, 1000), 1000)
	v.SetBasePitch(11.8)
	v.SetPitchQuantisation(pitch.Major)
	v.NoteOn()
	render(v, 1)
	if v.Delta() != 2 {
		t.Fatalf("delta = %v, want 2 after snapping to the octave", v.Delta())
	}
	v.SetPitchQuantisation(pitch.Continuous)
	render(v, 1)
	if want := pitch.SemitoneRatio(11.8); v.Delta() != want {
		t.Fatalf("delta = %v, want %v", v.Delta(), want)
	}
}

func TestAttackIsMonotonic(t *testing.T) {
	data := make([]float64, 44100)
	for i := range data {
		data[i] = 1
	}
	v := New(1)
	v.Prepare(44100)
	v.SetBuffer(sample.New("dc", 44100, data))
	v.NoteOn()
	out := render(v, 4410)
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("output decreased at sample %d: %v < %v", i, out[i], out[i-1])
		}
	}
	if out[len(out)-1] < 0.99 {
		t.Fatalf("attack should approach full level, got %v", out[len(out)-1])
	}
}

func TestReleaseEndsInStoppedState(t *testing.T) {
	v := newGatedVoice(ramp(10, 1000), 1000)
	v.NoteOn()
	if v.State() != StatePlayableNoLfo {
		t.Fatalf("state = %v, want playable", v.State())
	}
	render(v, 5)
	v.NoteOff()
	render(v, 10)
	if v.State() != StateStoppedNoLfo {
		t.Fatalf("state = %v, want stopped", v.State())
	}
	if v.Delta() != 0 {
		t.Fatalf("delta = %v, want 0 while stopped", v.Delta())
	}
	if out := render(v, 3); !equal(out, 0, 0, 0) {
		t.Fatalf("stopped voice rendered %v", out)
	}
}

func TestRestartOnNoteOn(t *testing.T) {
	v := newGatedVoice(ramp(10, 1000), 1000)
	v.NoteOn()
	render(v, 3)
	v.NoteOn()
	if out := render(v, 1); out[0] != 0 {
		t.Fatalf("restarting voice read %v, want 0", out[0])
	}

	v.SetRestartOnNoteOn(false)
	render(v, 2)
	v.NoteOn()
	if out := render(v, 1); out[0] != 3 {
		t.Fatalf("continuing voice read %v, want 3", out[0])
	}
}

func TestForceStop(t *testing.T) {
	v := newGatedVoice(ramp(10, 1000), 1000)
	v.NoteOn()
	render(v, 2)
	v.ForceStop()
	if v.Playing() {
		t.Fatal("voice still playing after ForceStop")
	}
}

func TestLfoAdvancesWithoutBuffer(t *testing.T) {
	l := lfo.New(0)
	l.SetWaveTable(wavetable.Preset(wavetable.Sine, 100), wavetable.Bipolar)
	l.Prepare(1000)
	l.SetBaseFrequency(10)

	v := New(0)
	v.Prepare(1000)
	v.SetLfo(l)
	if v.State() != StateNoWavefileLfo {
		t.Fatalf("state = %v, want no-wavefile+lfo", v.State())
	}
	render(v, 10)
	if l.TablePosition() != 10 {
		t.Fatalf("LFO position = %v, want 10", l.TablePosition())
	}
}

func TestLfoModulatesPitch(t *testing.T) {
	l := lfo.New(0)
	l.SetWaveTable([]float64{1, 1}, wavetable.Bipolar)
	l.Prepare(1000)

	v := newGatedVoice(ramp(10, 1000), 1000)
	v.SetLfo(l)
	if !l.AddRegionModulation(lfo.KindPitch, v.RegionID(), v.ParametersFor(lfo.KindPitch)...) {
		t.Fatal("AddRegionModulation failed")
	}
	v.NoteOn()
	if v.State() != StatePlayableLfo {
		t.Fatalf("state = %v, want playable+lfo", v.State())
	}
	render(v, 1)
	if v.Delta() != 2 {
		t.Fatalf("delta = %v, want 2 with a full-depth positive pitch LFO", v.Delta())
	}

	v.Detach()
	if len(l.Targets()) != 0 {
		t.Fatal("Detach should unsubscribe the voice from its LFO")
	}
}

func TestParametersRoundTrip(t *testing.T) {
	p := Params{
		Envelope:                 envelope.Params{DelaySec: 0.1, AttackSec: 0.2, InitialLevel: 0.1, PeakLevel: 0.9, HoldSec: 0.3, DecaySec: 0.4, SustainLevel: 0.6, ReleaseSec: 0.7},
		Level:                    0.8,
		PitchShift:               -3,
		PitchQuantisation:        pitch.MinorPentatonic,
		PlaybackPositionStart:    0.25,
		PlaybackPositionInterval: 0.5,
		FilterType:               effects.FilterBandPass,
		FilterPosition:           0.3,
		RestartOnNoteOn:          false,
	}
	v := New(0)
	v.SetParameters(p)
	if got := v.Parameters(); got != p {
		t.Fatalf("Parameters() = %+v, want %+v", got, p)
	}
}

func BenchmarkRenderWaveLfo(b *testing.B) {
	l := lfo.New(0)
	l.SetWaveTable(wavetable.Preset(wavetable.Sine, 1024), wavetable.Bipolar)
	l.Prepare(48000)
	v := newGatedVoice(ramp(48000, 48000), 48000)
	v.SetFilterType(effects.FilterLowPass)
	v.SetLfo(l)
	l.AddRegionModulation(lfo.KindPitch, 0, v.PitchShift())
	l.AddRegionModulation(lfo.KindFilterPosition, 0, v.FilterPosition())
	v.NoteOn()
	out := [][]float32{make([]float32, 512), make([]float32, 512)}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		v.RenderNextSample(out, i%512)
	}
}
