package main

import (
	"flag"
	"fmt"
	"image/color"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	imagine "github.com/RonaldIaxaduv/ImagINe-sub000"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/engine"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

type listFlag []string

func (l *listFlag) String() string { return strings.Join(*l, ",") }

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

var palette = []color.NRGBA{
	{R: 230, G: 80, B: 80, A: 255},
	{R: 80, G: 180, B: 90, A: 255},
	{R: 70, G: 110, B: 220, A: 255},
	{R: 220, G: 180, B: 60, A: 255},
}

func main() {
	var (
		files, mods, fx listFlag

		sampleRate = flag.Int("sample-rate", imagine.DefaultSampleRate, "output sample rate")
		blockSize  = flag.Int("block-size", imagine.DefaultBlockSize, "frames rendered per engine call")
		voices     = flag.Int("voices", engine.DefaultVoicesPerRegion, "voices per region")
		shape      = flag.String("shape", "sine", "LFO shape for new regions: sine|triangle|saw|square")
		hexTable   = flag.String("table", "", "LFO wavetable for new regions as signed 8-bit hex, overrides -shape")
		lfoRate    = flag.Float64("lfo-rate", lfo.DefaultFrequency, "LFO frequency in Hz for new regions")
		lfoDepth   = flag.Float64("lfo-depth", lfo.DefaultDepth, "LFO depth for new regions")
		session    = flag.String("session", "", "session file to load before playing")
		save       = flag.String("save", "", "write the session to this file before playing")
		render     = flag.String("render", "", "render offline to this WAV file instead of playing")
		seconds    = flag.Float64("seconds", 5, "how long to play or render")
		volume     = flag.Float64("volume", 1.0, "master volume scalar")
		logLevel   = flag.String("log-level", "info", "log level: debug|info|warn|error")
	)
	flag.Var(&files, "file", "audio file for a new region (repeatable)")
	flag.Var(&mods, "mod", "modulation edge source:kind:target, e.g. 0:pitch:1 (repeatable)")
	flag.Var(&fx, "fx", `master effect, e.g. "delay 250,0.35,0.5,0.25" or "reverb" (repeatable)`)
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)
	log := logrus.StandardLogger()

	opts := []imagine.PlayerOption{
		imagine.WithSampleRate(*sampleRate),
		imagine.WithBlockSize(*blockSize),
		imagine.WithVoicesPerRegion(*voices),
		imagine.WithLogger(log),
		imagine.WithMasterGain(*volume),
	}
	for _, desc := range fx {
		opts = append(opts, imagine.WithEffect(desc))
	}
	pl, err := imagine.NewPlayer(opts...)
	if err != nil {
		logrus.Fatal(err)
	}
	e := pl.Engine()

	if *session != "" {
		if err := pl.LoadSession(*session); err != nil {
			log.WithError(err).Warn("session loaded with problems")
		}
	}

	table, err := lfoTable(*shape, *hexTable)
	if err != nil {
		logrus.Fatal(err)
	}
	for i, path := range files {
		id := e.AddNewRegion(palette[i%len(palette)])
		// A region without audio still drives modulation through its LFO.
		if err := setupLfo(e, id, table, *lfoRate, *lfoDepth); err != nil {
			logrus.Fatal(err)
		}
		if err := pl.LoadRegionFile(id, path); err != nil {
			log.WithField("region", id).Warn("region left silent")
		}
	}
	for _, m := range mods {
		src, kind, dst, err := parseModulation(m)
		if err != nil {
			logrus.Fatal(err)
		}
		if err := e.AddModulation(src, kind, dst); err != nil {
			logrus.Fatal(err)
		}
	}
	if *save != "" {
		if err := pl.SaveSession(*save); err != nil {
			logrus.Fatal(err)
		}
	}

	ids := e.RegionIDs()
	if len(ids) == 0 {
		logrus.Fatal("nothing to play: pass -file or -session")
	}
	for _, id := range ids {
		if err := e.NoteOn(id); err != nil {
			logrus.Fatal(err)
		}
	}

	if *render != "" {
		samples := pl.RenderOffline(*seconds)
		if err := imagine.WriteWAVFile(*render, samples, *sampleRate, 2); err != nil {
			logrus.Fatal(err)
		}
		log.WithFields(logrus.Fields{"path": *render, "seconds": *seconds}).Info("rendered")
		return
	}

	if err := pl.Start(); err != nil {
		logrus.Fatal(err)
	}
	time.Sleep(time.Duration(*seconds * float64(time.Second)))
	if err := pl.Stop(); err != nil {
		logrus.Fatal(err)
	}
	fmt.Println("playback completed")
}

func setupLfo(e *engine.Engine, id int, table []float64, hz, depth float64) error {
	if err := e.SetLfoWaveTable(id, table, wavetable.Bipolar); err != nil {
		return err
	}
	if err := e.SetLfoFrequency(id, hz); err != nil {
		return err
	}
	return e.SetLfoDepth(id, depth)
}

func lfoTable(shape, hexTable string) ([]float64, error) {
	if strings.TrimSpace(hexTable) != "" {
		return wavetable.ParseHex(hexTable)
	}
	s, err := wavetable.ParseShape(shape)
	if err != nil {
		return nil, err
	}
	return wavetable.Preset(s, wavetable.DefaultSize), nil
}

func parseModulation(s string) (src int, kind lfo.Kind, dst int, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("invalid -mod %q (expected source:kind:target)", s)
	}
	if src, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid -mod source %q: %w", parts[0], err)
	}
	if kind, err = lfo.ParseKind(strings.ToLower(parts[1])); err != nil {
		return 0, 0, 0, err
	}
	if dst, err = strconv.Atoi(parts[2]); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid -mod target %q: %w", parts[2], err)
	}
	return src, kind, dst, nil
}
