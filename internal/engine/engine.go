// Package engine composes regions, voices and LFOs into the renderable synth.
//
// Structural changes (adding or removing regions or modulation edges, loading
// buffers, restoring state) hold the render lock, and a block rendered while
// one is in progress is silent. Parameter setters and note events are queued
// and applied at the top of the next block. Getters read control-side copies
// and values published at the end of each block, so neither ever silences
// the output. RenderNextBlock never blocks.
package engine

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/lfo"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/sample"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/voice"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/wavetable"
)

var (
	ErrUnknownRegion       = errors.New("engine: unknown region")
	ErrNotPrepared         = errors.New("engine: not prepared")
	ErrInvalidKind         = errors.New("engine: invalid modulation kind")
	ErrInvalidParameter    = errors.New("engine: invalid parameter")
	ErrDuplicateModulation = errors.New("engine: modulation already exists")
)

const DefaultVoicesPerRegion = 1

type Option func(*Engine)

// WithVoicesPerRegion sets how many voices each new region gets.
func WithVoicesPerRegion(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.voicesPerRegion = n
		}
	}
}

// WithLogger sets the logger for control operations. Rendering never logs.
func WithLogger(log logrus.FieldLogger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

type region struct {
	id        int
	colour    color.NRGBA
	audioFile string
	buf       *sample.Buffer
	lfo       *lfo.Lfo
	voices    []*voice.Voice

	// lfoSettings and voiceSettings receive every setter synchronously and
	// answer control-side reads. They are never prepared or rendered.
	lfoSettings   *lfo.Lfo
	voiceSettings *voice.Voice

	// Published by the render goroutine at the end of each block.
	phase    atomic.Uint64
	position atomic.Uint64
	playing  atomic.Bool
}

// Engine owns every region. Create it with New.
type Engine struct {
	// ctl serialises control calls. mu guards everything the render
	// goroutine touches; structural changes take ctl, then mu.
	ctl    sync.Mutex
	mu     sync.Mutex
	paused atomic.Bool
	log    logrus.FieldLogger

	queueMu sync.Mutex
	pending []func()
	spare   []func()

	voicesPerRegion int
	sampleRate      float64
	blockSize       int

	// voices is the render order.
	voices  []*voice.Voice
	regions map[int]*region
	order   []int
	nextID  int
}

func New(opts ...Option) *Engine {
	e := &Engine{
		log:             logrus.StandardLogger(),
		voicesPerRegion: DefaultVoicesPerRegion,
		regions:         make(map[int]*region),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// PrepareToPlay sets the output sample rate and the largest block the host
// will render, and prepares every voice and LFO.
func (e *Engine) PrepareToPlay(sampleRate float64, blockSize int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("engine: sample rate %v: %w", sampleRate, ErrInvalidParameter)
	}
	e.lockGraph()
	defer e.unlockGraph()
	e.sampleRate = sampleRate
	e.blockSize = blockSize
	for _, id := range e.order {
		r := e.regions[id]
		r.lfo.Prepare(sampleRate)
		for _, v := range r.voices {
			v.Prepare(sampleRate)
		}
	}
	e.log.WithFields(logrus.Fields{
		"sampleRate": sampleRate,
		"blockSize":  blockSize,
		"regions":    len(e.order),
	}).Info("engine prepared")
	return nil
}

func (e *Engine) SampleRate() float64 {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return e.sampleRate
}

func (e *Engine) BlockSize() int {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return e.blockSize
}

// Suspend silences RenderNextBlock until Resume.
func (e *Engine) Suspend() { e.paused.Store(true) }

func (e *Engine) Resume() { e.paused.Store(false) }

func (e *Engine) Suspended() bool { return e.paused.Load() }

// RenderNextBlock overwrites every channel of out with the next len(out[0])
// samples. Queued commands are applied first. For each sample index every
// voice renders once, in pool order.
func (e *Engine) RenderNextBlock(out [][]float32) {
	for _, ch := range out {
		clear(ch)
	}
	if len(out) == 0 || e.paused.Load() || !e.mu.TryLock() {
		return
	}
	defer e.mu.Unlock()
	e.drain(false)
	frames := len(out[0])
	for i := 0; i < frames; i++ {
		for _, v := range e.voices {
			v.RenderNextSample(out, i)
		}
	}
	e.publish()
}

// enqueue schedules fn to run on the render goroutine, or under the next
// structural change, whichever comes first.
func (e *Engine) enqueue(fn func()) {
	e.queueMu.Lock()
	e.pending = append(e.pending, fn)
	e.queueMu.Unlock()
}

// drain runs the queued commands in order. mu must be held. Unless wait is
// set it gives up when a control call is appending.
func (e *Engine) drain(wait bool) {
	if wait {
		e.queueMu.Lock()
	} else if !e.queueMu.TryLock() {
		return
	}
	cmds := e.pending
	e.pending = e.spare[:0]
	e.queueMu.Unlock()
	for i, fn := range cmds {
		fn()
		cmds[i] = nil
	}
	e.spare = cmds[:0]
}

// publish stores what getters report about the rendered objects. mu must be
// held.
func (e *Engine) publish() {
	for _, id := range e.order {
		r := e.regions[id]
		r.phase.Store(math.Float64bits(r.lfo.LatestModulatedPhase()))
		r.position.Store(math.Float64bits(r.lfo.TablePosition()))
		playing := false
		for _, v := range r.voices {
			playing = playing || v.Playing()
		}
		r.playing.Store(playing)
	}
}

// lockGraph stops rendering for a structural change and applies every queued
// command first.
func (e *Engine) lockGraph() {
	e.ctl.Lock()
	e.mu.Lock()
	e.drain(true)
}

func (e *Engine) unlockGraph() {
	e.publish()
	e.mu.Unlock()
	e.ctl.Unlock()
}

// AddNewRegion creates a region with its voices and LFO and returns its id.
// Ids are never reused.
func (e *Engine) AddNewRegion(colour color.NRGBA) int {
	e.lockGraph()
	defer e.unlockGraph()
	id := e.nextID
	e.nextID++
	e.addRegion(id, colour, voice.DefaultParams())
	e.log.WithFields(logrus.Fields{"region": id, "voices": e.voicesPerRegion}).Info("region added")
	return id
}

func (e *Engine) addRegion(id int, colour color.NRGBA, params voice.Params) *region {
	r := &region{
		id:            id,
		colour:        colour,
		lfo:           lfo.New(id),
		voices:        make([]*voice.Voice, e.voicesPerRegion),
		lfoSettings:   lfo.New(id),
		voiceSettings: voice.New(id),
	}
	r.voiceSettings.SetParameters(params)
	if e.sampleRate > 0 {
		r.lfo.Prepare(e.sampleRate)
	}
	for i := range r.voices {
		v := voice.New(id)
		v.SetParameters(params)
		if e.sampleRate > 0 {
			v.Prepare(e.sampleRate)
		}
		r.voices[i] = v
	}
	// Only the first voice advances the LFO, so it moves once per sample.
	r.voices[0].SetLfo(r.lfo)
	e.voices = append(e.voices, r.voices...)
	e.regions[id] = r
	e.order = append(e.order, id)
	return r
}

// RemoveRegion stops the region's voices and removes it together with every
// modulation edge from or to it.
func (e *Engine) RemoveRegion(id int) error {
	e.lockGraph()
	defer e.unlockGraph()
	r, err := e.region(id)
	if err != nil {
		return err
	}
	e.removeRegion(r)
	e.log.WithField("region", id).Info("region removed")
	return nil
}

func (e *Engine) removeRegion(r *region) {
	for _, v := range r.voices {
		v.ForceStop()
		v.Detach()
	}
	r.lfo.Detach()

	kept := e.voices[:0]
	for _, v := range e.voices {
		if v.RegionID() != r.id {
			kept = append(kept, v)
		}
	}
	clear(e.voices[len(kept):])
	e.voices = kept

	delete(e.regions, r.id)
	for i, id := range e.order {
		if id == r.id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// RegionIDs returns the ids of all regions in creation order.
func (e *Engine) RegionIDs() []int {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	out := make([]int, len(e.order))
	copy(out, e.order)
	return out
}

func (e *Engine) RegionColour(id int) (color.NRGBA, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	r, err := e.region(id)
	if err != nil {
		return color.NRGBA{}, err
	}
	return r.colour, nil
}

func (e *Engine) SetRegionColour(id int, colour color.NRGBA) error {
	return e.withRegion(id, func(r *region) error {
		r.colour = colour
		return nil
	})
}

// RegionAudioFile returns the name of the buffer loaded into the region.
func (e *Engine) RegionAudioFile(id int) (string, error) {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	r, err := e.region(id)
	if err != nil {
		return "", err
	}
	return r.audioFile, nil
}

// NoteOn starts a note on the region's first idle voice, or steals the voice
// with the lowest envelope level. The voice is picked when the command is
// applied.
func (e *Engine) NoteOn(id int) error {
	return e.withPreparedRegion(id, func(r *region) error {
		if r.buffered() {
			r.playing.Store(true)
		}
		e.enqueue(func() {
			pick := r.voices[0]
			for _, v := range r.voices {
				if !v.Playing() {
					pick = v
					break
				}
				if v.Envelope().Level() < pick.Envelope().Level() {
					pick = v
				}
			}
			pick.NoteOn()
		})
		return nil
	})
}

// NoteOff releases every sounding voice of the region.
func (e *Engine) NoteOff(id int) error {
	return e.withPreparedRegion(id, func(r *region) error {
		e.enqueue(func() {
			for _, v := range r.voices {
				v.NoteOff()
			}
		})
		return nil
	})
}

func (e *Engine) ForceStop(id int) error {
	return e.withRegion(id, func(r *region) error {
		r.playing.Store(false)
		e.enqueue(func() {
			for _, v := range r.voices {
				v.ForceStop()
			}
		})
		return nil
	})
}

// Playing reports whether any voice of the region was sounding at the end of
// the last rendered block. NoteOn and ForceStop update it immediately.
func (e *Engine) Playing(id int) (bool, error) {
	var playing bool
	err := e.withRegion(id, func(r *region) error {
		playing = r.playing.Load()
		return nil
	})
	return playing, err
}

// buffered reports whether the region has audio to play. ctl must be held.
func (r *region) buffered() bool {
	return r.buf != nil && r.buf.Len() > 0
}

// SetRegionBuffer loads buf into every voice of the region. name is recorded
// for sessions. A nil buffer leaves the region silent.
func (e *Engine) SetRegionBuffer(id int, buf *sample.Buffer, name string) error {
	e.lockGraph()
	defer e.unlockGraph()
	return e.inRegion(id, func(r *region) error {
		r.audioFile = name
		r.buf = buf
		for _, v := range r.voices {
			v.SetBuffer(buf)
		}
		frames := 0
		if buf != nil {
			frames = buf.Len()
		}
		e.log.WithFields(logrus.Fields{"region": id, "file": name, "frames": frames}).Info("region buffer set")
		return nil
	})
}

// SetRegionOutline derives the region's LFO wavetable from its outline.
func (e *Engine) SetRegionOutline(id int, outline []wavetable.Point, focus wavetable.Point) error {
	table, err := wavetable.FromOutline(outline, focus, wavetable.DefaultSize)
	if err != nil {
		return fmt.Errorf("engine: region %d outline: %w", id, err)
	}
	return e.SetLfoWaveTable(id, table, wavetable.Unipolar)
}

func (e *Engine) SetLfoWaveTable(id int, cycle []float64, polarity wavetable.Polarity) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetWaveTable(cycle, polarity)
		e.enqueue(func() { r.lfo.SetWaveTable(cycle, polarity) })
		return nil
	})
}

func (e *Engine) SetLfoFrequency(id int, hz float64) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetBaseFrequency(hz)
		e.enqueue(func() { r.lfo.SetBaseFrequency(hz) })
		return nil
	})
}

func (e *Engine) SetLfoDepth(id int, depth float64) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetDepth(depth)
		e.enqueue(func() { r.lfo.SetDepth(depth) })
		return nil
	})
}

func (e *Engine) SetLfoUpdateInterval(id int, ms float64) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetUpdateIntervalMilliseconds(ms)
		e.enqueue(func() { r.lfo.SetUpdateIntervalMilliseconds(ms) })
		return nil
	})
}

func (e *Engine) SetLfoQuantisation(id int, q lfo.UpdateQuantisation) error {
	if !q.Valid() {
		return fmt.Errorf("engine: update quantisation %v: %w", q, ErrInvalidParameter)
	}
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetUpdateRateQuantisation(q)
		e.enqueue(func() { r.lfo.SetUpdateRateQuantisation(q) })
		return nil
	})
}

func (e *Engine) SetLfoPhaseInterval(id int, interval float64) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetPhaseInterval(interval)
		e.enqueue(func() { r.lfo.SetPhaseInterval(interval) })
		return nil
	})
}

func (e *Engine) SetLfoStartingPhase(id int, phase float64) error {
	return e.withRegion(id, func(r *region) error {
		r.lfoSettings.SetStartingPhase(phase)
		e.enqueue(func() { r.lfo.SetStartingPhase(phase) })
		return nil
	})
}

// LfoPhase returns the phase the region's LFO read its output from at the end
// of the last rendered block.
func (e *Engine) LfoPhase(id int) (float64, error) {
	var phase float64
	err := e.withRegion(id, func(r *region) error {
		phase = math.Float64frombits(r.phase.Load())
		return nil
	})
	return phase, err
}

// SetVoiceParameters applies p to every voice of the region.
func (e *Engine) SetVoiceParameters(id int, p voice.Params) error {
	if err := validateVoiceParams(p); err != nil {
		return err
	}
	return e.withRegion(id, func(r *region) error {
		r.voiceSettings.SetParameters(p)
		e.enqueue(func() {
			for _, v := range r.voices {
				v.SetParameters(p)
			}
		})
		return nil
	})
}

func (e *Engine) VoiceParameters(id int) (voice.Params, error) {
	var p voice.Params
	err := e.withRegion(id, func(r *region) error {
		p = r.voiceSettings.Parameters()
		return nil
	})
	return p, err
}

func validateVoiceParams(p voice.Params) error {
	if !p.PitchQuantisation.Valid() {
		return fmt.Errorf("engine: pitch quantisation %v: %w", p.PitchQuantisation, ErrInvalidParameter)
	}
	if !p.FilterType.Valid() {
		return fmt.Errorf("engine: filter type %v: %w", p.FilterType, ErrInvalidParameter)
	}
	return nil
}

func (e *Engine) region(id int) (*region, error) {
	r, ok := e.regions[id]
	if !ok {
		return nil, fmt.Errorf("engine: region %d: %w", id, ErrUnknownRegion)
	}
	return r, nil
}

// withRegion runs fn under the control lock only. fn must not touch the
// rendered objects directly; it queues changes with enqueue.
func (e *Engine) withRegion(id int, fn func(r *region) error) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	return e.inRegion(id, fn)
}

func (e *Engine) inRegion(id int, fn func(r *region) error) error {
	r, err := e.region(id)
	if err != nil {
		return err
	}
	return fn(r)
}

func (e *Engine) withPreparedRegion(id int, fn func(r *region) error) error {
	e.ctl.Lock()
	defer e.ctl.Unlock()
	r, err := e.region(id)
	if err != nil {
		return err
	}
	if e.sampleRate <= 0 {
		return fmt.Errorf("engine: region %d: %w", id, ErrNotPrepared)
	}
	return fn(r)
}
