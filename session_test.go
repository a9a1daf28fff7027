package imagine

import (
	"bytes"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/engine"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/sample"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

func buildSession(t *testing.T, pl *Player, dir string) (a, b int) {
	t.Helper()
	path := filepath.Join(dir, "tone.wav")
	if err := WriteWAVFile(path, []float32{0.25, 0.5, 0.25, 0}, 1000, 1); err != nil {
		t.Fatal(err)
	}
	buf, err := sample.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	e := pl.Engine()
	a = e.AddNewRegion(color.NRGBA{R: 12, G: 34, B: 56, A: 255})
	b = e.AddNewRegion(red)
	e.SetRegionBuffer(b, buf, "tone.wav")
	e.SetLfoWaveTable(a, wavetable.Preset(wavetable.Saw, 32), wavetable.Bipolar)
	e.SetLfoFrequency(a, 0.5)
	e.SetLfoDepth(a, 0.6)
	e.SetLfoUpdateInterval(a, 12.5)
	e.SetLfoQuantisation(a, lfo.QuantiseTriplets)
	e.SetLfoPhaseInterval(a, 0.75)
	e.SetLfoStartingPhase(a, 0.1)
	p := gateParams()
	p.PitchShift = 7
	p.PitchQuantisation = pitch.Chromatic
	p.FilterType = effects.FilterHighPass
	p.FilterPosition = 0.2
	p.RestartOnNoteOn = false
	e.SetVoiceParameters(b, p)
	if err := e.AddModulation(a, lfo.KindPitchInverted, b); err != nil {
		t.Fatal(err)
	}
	if err := e.AddModulation(b, lfo.KindLfoRate, a); err != nil {
		t.Fatal(err)
	}
	return a, b
}

func TestSessionRoundTrip(t *testing.T) {
	dir := t.TempDir()
	pl := newTestPlayer(t, WithSampleRate(1000))
	_, b := buildSession(t, pl, dir)
	pl.RenderOffline(0.05)

	path := filepath.Join(dir, "session.xml")
	if err := pl.SaveSession(path); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	restored := newTestPlayer(t, WithSampleRate(1000))
	if err := restored.LoadSession(path); err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if got, want := restored.Engine().Serialise(), pl.Engine().Serialise(); !reflect.DeepEqual(got, want) {
		t.Fatalf("restored state differs:\n got %+v\nwant %+v", got, want)
	}

	restored.Engine().NoteOn(b)
	out := restored.RenderOffline(0.004)
	if out[0] == 0 && out[2] == 0 && out[4] == 0 {
		t.Fatal("restored region did not reload its audio file")
	}
}

func TestLoadSessionKeepsGoingWithoutAudio(t *testing.T) {
	dir := t.TempDir()
	pl := newTestPlayer(t, WithSampleRate(1000))
	a, b := buildSession(t, pl, dir)
	path := filepath.Join(dir, "session.xml")
	if err := pl.SaveSession(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(filepath.Join(dir, "tone.wav")); err != nil {
		t.Fatal(err)
	}

	restored := newTestPlayer(t, WithSampleRate(1000))
	err := restored.LoadSession(path)
	if !errors.Is(err, ErrPartialSession) {
		t.Fatalf("LoadSession = %v, want ErrPartialSession", err)
	}
	if ids := restored.Engine().RegionIDs(); !reflect.DeepEqual(ids, []int{a, b}) {
		t.Fatalf("regions = %v", ids)
	}
	mods, _ := restored.Engine().Modulations(a)
	if len(mods) != 1 {
		t.Fatalf("edges of region %d = %v", a, mods)
	}
}

func TestReadSessionSkipsUnknownNames(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>
<imagine version="1" nextRegionId="5">
  <region id="0" colour="#ff0000ff">
    <lfo tablePosition="0" depth="1" updateIntervalMs="0" updateQuantisation="sometimes" baseFrequency="2" phaseInterval="1" startingPhase="0">
      <modulatedParameters>pitch wobble volume</modulatedParameters>
      <affectedRegions>1 1 x</affectedRegions>
    </lfo>
    <voice filterType="comb" pitchQuantisation="major" level="1" peakLevel="1" sustainLevel="1" playbackPositionInterval="1" filterPosition="1"/>
  </region>
  <region id="1" colour="oops"/>
</imagine>`
	s, warnings, err := ReadSession(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadSession: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("warnings = %v, want one for the colour", warnings)
	}
	if s.NextRegionID != 5 || len(s.Regions) != 2 {
		t.Fatalf("state = %+v", s)
	}
	if s.Regions[1].Colour != (color.NRGBA{A: 255}) {
		t.Fatalf("invalid colour decoded to %v", s.Regions[1].Colour)
	}

	log, _ := test.NewNullLogger()
	e := engine.New(engine.WithLogger(log))
	if err := e.Deserialise(s); !errors.Is(err, engine.ErrInconsistentState) {
		t.Fatalf("Deserialise = %v", err)
	}
	mods, _ := e.Modulations(0)
	if want := []engine.Modulation{{Source: 0, Kind: lfo.KindPitch, Target: 1}}; !reflect.DeepEqual(mods, want) {
		t.Fatalf("edges = %v, want %v", mods, want)
	}
	p, _ := e.VoiceParameters(0)
	if p.FilterType != effects.FilterNone {
		t.Fatalf("unknown filter type restored as %v", p.FilterType)
	}
	if id := e.AddNewRegion(red); id != 5 {
		t.Fatalf("next id = %d, want 5", id)
	}
}

func TestWriteSessionIsXML(t *testing.T) {
	var buf bytes.Buffer
	s := engine.State{Regions: []engine.RegionState{{ID: 3, Colour: red}}}
	if err := WriteSession(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{`<?xml`, `<imagine version="1"`, `<region id="3" colour="#ff0000ff">`} {
		if !strings.Contains(out, want) {
			t.Fatalf("session missing %q:\n%s", want, out)
		}
	}
}
