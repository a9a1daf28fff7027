package imagine

import (
	"encoding/xml"
	"errors"
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/engine"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/envelope"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/pitch"
)

// SessionVersion is written to every session file.
const SessionVersion = 1

// ErrPartialSession is returned when a session loaded but parts of it had to
// be skipped or defaulted.
var ErrPartialSession = errors.New("imagine: session partially restored")

type sessionXML struct {
	XMLName      xml.Name    `xml:"imagine"`
	Version      int         `xml:"version,attr"`
	NextRegionID int         `xml:"nextRegionId,attr"`
	Regions      []regionXML `xml:"region"`
}

type regionXML struct {
	ID        int       `xml:"id,attr"`
	Colour    string    `xml:"colour,attr"`
	AudioFile string    `xml:"audioFile,attr,omitempty"`
	Lfo       *lfoXML   `xml:"lfo"`
	Voice     *voiceXML `xml:"voice"`
}

type lfoXML struct {
	TablePosition       float64 `xml:"tablePosition,attr"`
	Depth               float64 `xml:"depth,attr"`
	UpdateIntervalMs    float64 `xml:"updateIntervalMs,attr"`
	Quantisation        string  `xml:"updateQuantisation,attr"`
	BaseFrequency       float64 `xml:"baseFrequency,attr"`
	PhaseInterval       float64 `xml:"phaseInterval,attr"`
	StartingPhase       float64 `xml:"startingPhase,attr"`
	WaveTable           string  `xml:"waveTable,omitempty"`
	ModulatedParameters string  `xml:"modulatedParameters,omitempty"`
	AffectedRegions     string  `xml:"affectedRegions,omitempty"`
}

type voiceXML struct {
	Delay                    float64 `xml:"delay,attr"`
	Attack                   float64 `xml:"attack,attr"`
	InitialLevel             float64 `xml:"initialLevel,attr"`
	PeakLevel                float64 `xml:"peakLevel,attr"`
	Hold                     float64 `xml:"hold,attr"`
	Decay                    float64 `xml:"decay,attr"`
	SustainLevel             float64 `xml:"sustainLevel,attr"`
	Release                  float64 `xml:"release,attr"`
	Level                    float64 `xml:"level,attr"`
	PitchShift               float64 `xml:"pitchShift,attr"`
	PitchQuantisation        string  `xml:"pitchQuantisation,attr"`
	PlaybackPositionStart    float64 `xml:"playbackPositionStart,attr"`
	PlaybackPositionInterval float64 `xml:"playbackPositionInterval,attr"`
	FilterType               string  `xml:"filterType,attr"`
	FilterPosition           float64 `xml:"filterPosition,attr"`
	RestartOnNoteOn          bool    `xml:"restartOnNoteOn,attr"`
}

// WriteSession encodes s as an XML session document.
func WriteSession(w io.Writer, s engine.State) error {
	doc := sessionXML{Version: SessionVersion, NextRegionID: s.NextRegionID}
	for _, rs := range s.Regions {
		r := regionXML{ID: rs.ID, Colour: formatColour(rs.Colour), AudioFile: rs.AudioFile}
		if l := rs.Lfo; l != nil {
			kinds := make([]string, len(l.ModulatedParameters))
			for i, k := range l.ModulatedParameters {
				kinds[i] = k.String()
			}
			regions := make([]string, len(l.AffectedRegions))
			for i, id := range l.AffectedRegions {
				regions[i] = strconv.Itoa(id)
			}
			r.Lfo = &lfoXML{
				TablePosition:       l.TablePosition,
				Depth:               l.Depth,
				UpdateIntervalMs:    l.UpdateIntervalMs,
				Quantisation:        l.Quantisation.String(),
				BaseFrequency:       l.BaseFrequency,
				PhaseInterval:       l.PhaseInterval,
				StartingPhase:       l.StartingPhase,
				WaveTable:           formatFloats(l.WaveTable),
				ModulatedParameters: strings.Join(kinds, " "),
				AffectedRegions:     strings.Join(regions, " "),
			}
		}
		if v := rs.Voice; v != nil {
			r.Voice = &voiceXML{
				Delay:                    v.Envelope.DelaySec,
				Attack:                   v.Envelope.AttackSec,
				InitialLevel:             v.Envelope.InitialLevel,
				PeakLevel:                v.Envelope.PeakLevel,
				Hold:                     v.Envelope.HoldSec,
				Decay:                    v.Envelope.DecaySec,
				SustainLevel:             v.Envelope.SustainLevel,
				Release:                  v.Envelope.ReleaseSec,
				Level:                    v.Level,
				PitchShift:               v.PitchShift,
				PitchQuantisation:        v.PitchQuantisation.String(),
				PlaybackPositionStart:    v.PlaybackPositionStart,
				PlaybackPositionInterval: v.PlaybackPositionInterval,
				FilterType:               v.FilterType.String(),
				FilterPosition:           v.FilterPosition,
				RestartOnNoteOn:          v.RestartOnNoteOn,
			}
		}
		doc.Regions = append(doc.Regions, r)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return enc.Close()
}

// ReadSession decodes an XML session document. Unknown enum names decode to
// invalid values so that engine.Deserialise skips or defaults them; values
// that cannot be parsed at all are reported through the returned warnings.
func ReadSession(r io.Reader) (engine.State, []error, error) {
	var doc sessionXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return engine.State{}, nil, fmt.Errorf("read session: %w", err)
	}
	if doc.Version > SessionVersion {
		return engine.State{}, nil, fmt.Errorf("read session: version %d is newer than %d", doc.Version, SessionVersion)
	}
	var warnings []error
	s := engine.State{NextRegionID: doc.NextRegionID}
	for _, r := range doc.Regions {
		rs := engine.RegionState{ID: r.ID, AudioFile: r.AudioFile}
		c, err := parseColour(r.Colour)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("region %d: %w", r.ID, err))
		}
		rs.Colour = c
		if l := r.Lfo; l != nil {
			ls := &engine.LfoState{
				TablePosition:    l.TablePosition,
				Depth:            l.Depth,
				UpdateIntervalMs: l.UpdateIntervalMs,
				Quantisation:     lfo.UpdateQuantisation(-1),
				BaseFrequency:    l.BaseFrequency,
				PhaseInterval:    l.PhaseInterval,
				StartingPhase:    l.StartingPhase,
			}
			if q, err := lfo.ParseUpdateQuantisation(l.Quantisation); err == nil {
				ls.Quantisation = q
			}
			if ls.WaveTable, err = parseFloats(l.WaveTable); err != nil {
				warnings = append(warnings, fmt.Errorf("region %d wavetable: %w", r.ID, err))
			}
			for _, name := range strings.Fields(l.ModulatedParameters) {
				k, err := lfo.ParseKind(name)
				if err != nil {
					k = lfo.Kind(-1)
				}
				ls.ModulatedParameters = append(ls.ModulatedParameters, k)
			}
			for _, f := range strings.Fields(l.AffectedRegions) {
				id, err := strconv.Atoi(f)
				if err != nil {
					id = -1
				}
				ls.AffectedRegions = append(ls.AffectedRegions, id)
			}
			rs.Lfo = ls
		}
		if v := r.Voice; v != nil {
			vs := engine.VoiceState{
				Envelope: envelope.Params{
					DelaySec:     v.Delay,
					AttackSec:    v.Attack,
					InitialLevel: v.InitialLevel,
					PeakLevel:    v.PeakLevel,
					HoldSec:      v.Hold,
					DecaySec:     v.Decay,
					SustainLevel: v.SustainLevel,
					ReleaseSec:   v.Release,
				},
				Level:                    v.Level,
				PitchShift:               v.PitchShift,
				PitchQuantisation:        pitch.Quantisation(-1),
				PlaybackPositionStart:    v.PlaybackPositionStart,
				PlaybackPositionInterval: v.PlaybackPositionInterval,
				FilterType:               effects.FilterType(-1),
				FilterPosition:           v.FilterPosition,
				RestartOnNoteOn:          v.RestartOnNoteOn,
			}
			if q, err := pitch.ParseQuantisation(v.PitchQuantisation); err == nil {
				vs.PitchQuantisation = q
			}
			if ft, err := effects.ParseFilterType(v.FilterType); err == nil {
				vs.FilterType = ft
			}
			rs.Voice = &vs
		}
		s.Regions = append(s.Regions, rs)
	}
	return s, warnings, nil
}

// SaveSession writes the engine state to path.
func (p *Player) SaveSession(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSession(f, p.engine.Serialise()); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	p.log.WithField("path", path).Info("session saved")
	return nil
}

// LoadSession replaces the engine state with the session at path and reloads
// every region's audio file. Relative audio paths resolve against the
// session's directory. A file that fails to load leaves its region silent and
// loading continues; such problems are returned wrapped in ErrPartialSession.
func (p *Player) LoadSession(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	s, problems, err := ReadSession(f)
	if err != nil {
		return err
	}
	if err := p.engine.Deserialise(s); err != nil {
		problems = append(problems, err)
	}
	dir := filepath.Dir(path)
	for _, rs := range s.Regions {
		if rs.AudioFile == "" {
			continue
		}
		file := rs.AudioFile
		if !filepath.IsAbs(file) {
			file = filepath.Join(dir, file)
		}
		buf, err := p.loader.Load(file)
		if err != nil {
			p.log.WithError(err).WithFields(logrus.Fields{"region": rs.ID, "path": file}).Warn("region audio file not restored")
			problems = append(problems, err)
			continue
		}
		if err := p.engine.SetRegionBuffer(rs.ID, buf, rs.AudioFile); err != nil {
			problems = append(problems, err)
		}
	}
	p.log.WithFields(logrus.Fields{"path": path, "regions": len(s.Regions), "problems": len(problems)}).Info("session loaded")
	if len(problems) > 0 {
		return fmt.Errorf("%w: %w", ErrPartialSession, errors.Join(problems...))
	}
	return nil
}

func formatColour(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

func parseColour(s string) (color.NRGBA, error) {
	var c color.NRGBA
	if len(s) != 9 || s[0] != '#' {
		return color.NRGBA{A: 255}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.NRGBA{A: 255}, fmt.Errorf("invalid colour %q", s)
	}
	c.R, c.G, c.B, c.A = uint8(v>>24), uint8(v>>16), uint8(v>>8), uint8(v)
	return c, nil
}

func formatFloats(v []float64) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return strings.Join(parts, " ")
}

func parseFloats(s string) ([]float64, error) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return nil, nil
	}
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
