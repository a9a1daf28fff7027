package imagine

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	intaudio "github.com/RonaldIaxaduv/ImagINe-sub000/internal/audio"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/effects"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/engine"
	"github.com/RonaldIaxaduv/ImagINe-sub000/internal/sample"
)

const (
	DefaultSampleRate = 48000
	DefaultBlockSize  = 512
)

type PlayerOption func(*playerConfig)

type effectFactory func(sampleRate float64) (effects.Effector, error)

type playerConfig struct {
	sampleRate      int
	blockSize       int
	voicesPerRegion int
	log             logrus.FieldLogger
	sampleTap       func([]float32)
	effects         []effectFactory
	masterGain      float64
}

func defaultPlayerConfig() playerConfig {
	return playerConfig{
		sampleRate:      DefaultSampleRate,
		blockSize:       DefaultBlockSize,
		voicesPerRegion: engine.DefaultVoicesPerRegion,
		log:             logrus.StandardLogger(),
		masterGain:      1,
	}
}

func WithSampleRate(sampleRate int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleRate = sampleRate
	}
}

// WithBlockSize sets the largest number of frames rendered per engine call.
func WithBlockSize(frames int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.blockSize = frames
	}
}

func WithVoicesPerRegion(n int) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.voicesPerRegion = n
	}
}

func WithLogger(log logrus.FieldLogger) PlayerOption {
	return func(cfg *playerConfig) {
		if log != nil {
			cfg.log = log
		}
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.sampleTap = tap
	}
}

// WithDelay appends a stereo delay to the master bus.
func WithDelay(p effects.DelayParams) PlayerOption {
	return withEffect(func(sr float64) (effects.Effector, error) {
		return effects.NewDelay(sr, p), nil
	})
}

// WithReverb appends a reverb to the master bus.
func WithReverb(p effects.ReverbParams) PlayerOption {
	return withEffect(func(sr float64) (effects.Effector, error) {
		return effects.NewReverb(sr, p), nil
	})
}

// WithCompressor appends a compressor to the master bus.
func WithCompressor(p effects.CompressorParams) PlayerOption {
	return withEffect(func(sr float64) (effects.Effector, error) {
		return effects.NewCompressor(sr, p), nil
	})
}

// WithEffect appends a master bus effect described by desc, as accepted by
// ParseEffect. NewPlayer fails if desc is invalid.
func WithEffect(desc string) PlayerOption {
	return withEffect(func(sr float64) (effects.Effector, error) {
		return ParseEffect(desc, sr)
	})
}

func withEffect(f effectFactory) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.effects = append(cfg.effects, f)
	}
}

// WithMasterGain sets the initial master volume scalar.
func WithMasterGain(gain float64) PlayerOption {
	return func(cfg *playerConfig) {
		cfg.masterGain = gain
	}
}

// Player owns an engine, its master bus and the realtime output.
type Player struct {
	mu         sync.Mutex
	engine     *engine.Engine
	bus        *masterBus
	audio      *intaudio.Player
	loader     *sample.Loader
	log        logrus.FieldLogger
	sampleRate int
	blockSize  int
}

// masterBus renders the engine, runs the master effects and applies the
// master gain. It implements intaudio.BlockRenderer.
type masterBus struct {
	engine     *engine.Engine
	effects    *effects.Chain
	gain       atomic.Uint64
	sampleTap  func([]float32)
	interleave []float32
}

func newMasterBus(e *engine.Engine, chain *effects.Chain, tap func([]float32), blockSize int) *masterBus {
	b := &masterBus{engine: e, effects: chain, sampleTap: tap}
	if tap != nil {
		b.interleave = make([]float32, 0, blockSize*intaudio.Channels)
	}
	b.setGain(1)
	return b
}

func (b *masterBus) setGain(g float64) { b.gain.Store(math.Float64bits(g)) }

func (b *masterBus) loadGain() float64 { return math.Float64frombits(b.gain.Load()) }

func (b *masterBus) RenderNextBlock(out [][]float32) {
	b.engine.RenderNextBlock(out)
	b.effects.ProcessBuffer(out)
	if g := float32(b.loadGain()); g != 1 {
		for _, ch := range out {
			for i := range ch {
				ch[i] *= g
			}
		}
	}
	if b.sampleTap == nil || len(out) == 0 {
		return
	}
	buf := b.interleave[:0]
	for i := range out[0] {
		for _, ch := range out {
			buf = append(buf, ch[i])
		}
	}
	b.interleave = buf
	b.sampleTap(buf)
}

// NewPlayer builds and prepares an engine. Audio output starts with Start.
func NewPlayer(opts ...PlayerOption) (*Player, error) {
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if cfg.blockSize <= 0 {
		return nil, errors.New("blockSize must be positive")
	}
	e := engine.New(engine.WithVoicesPerRegion(cfg.voicesPerRegion), engine.WithLogger(cfg.log))
	if err := e.PrepareToPlay(float64(cfg.sampleRate), cfg.blockSize); err != nil {
		return nil, err
	}
	chain := effects.NewChain()
	for _, f := range cfg.effects {
		fx, err := f(float64(cfg.sampleRate))
		if err != nil {
			return nil, err
		}
		chain.Add(fx)
	}
	p := &Player{
		engine:     e,
		bus:        newMasterBus(e, chain, cfg.sampleTap, cfg.blockSize),
		loader:     sample.NewLoader(cfg.log),
		log:        cfg.log,
		sampleRate: cfg.sampleRate,
		blockSize:  cfg.blockSize,
	}
	p.SetMasterVolume(cfg.masterGain)
	return p, nil
}

// Engine exposes the region graph for commands.
func (p *Player) Engine() *engine.Engine { return p.engine }

func (p *Player) SampleRate() int { return p.sampleRate }

func (p *Player) BlockSize() int { return p.blockSize }

// Start opens the audio output and begins playback.
func (p *Player) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
		return nil
	}
	backend, err := intaudio.NewPlayer(p.sampleRate, p.blockSize, p.bus)
	if err != nil {
		return err
	}
	p.audio = backend
	p.audio.Play()
	p.log.WithFields(logrus.Fields{"sampleRate": p.sampleRate, "blockSize": p.blockSize}).Info("audio output started")
	return nil
}

// Pause suspends rendering and the output stream.
func (p *Player) Pause() {
	p.engine.Suspend()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Pause()
	}
}

func (p *Player) Resume() {
	p.engine.Resume()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio != nil {
		p.audio.Play()
	}
}

func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.audio == nil {
		return nil
	}
	err := p.audio.Stop()
	p.audio = nil
	p.bus.effects.Reset()
	return err
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (p *Player) SetMasterVolume(volume float64) {
	if volume < 0 || math.IsNaN(volume) {
		volume = 0
	}
	p.bus.setGain(volume)
}

func (p *Player) MasterVolume() float64 { return p.bus.loadGain() }

// LoadRegionFile decodes the audio file at path into the region. On failure
// the region keeps its previous buffer and the error is returned.
func (p *Player) LoadRegionFile(id int, path string) error {
	buf, err := p.loader.Load(path)
	if err != nil {
		p.log.WithError(err).WithFields(logrus.Fields{"region": id, "path": path}).Error("failed to load audio file")
		return err
	}
	return p.engine.SetRegionBuffer(id, buf, path)
}

// PlaybackPosition returns the current output position of the audio driver in
// frames. Returns 0 if not playing.
func (p *Player) PlaybackPosition() int64 {
	p.mu.Lock()
	a := p.audio
	p.mu.Unlock()
	if a == nil {
		return 0
	}
	return int64(a.Position().Seconds() * float64(p.sampleRate))
}
