// Package audio streams rendered blocks to the system output through ebiten.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// Channels is the output channel count. ebiten plays interleaved stereo.
const Channels = 2

// BlockRenderer fills every channel of out with the next len(out[0]) frames.
type BlockRenderer interface {
	RenderNextBlock(out [][]float32)
}

// StreamReader turns a BlockRenderer into the 32-bit float little-endian
// stereo byte stream ebiten consumes. Reads are split into blocks of at most
// blockSize frames.
type StreamReader struct {
	mu        sync.Mutex
	source    BlockRenderer
	blockSize int
	planar    [][]float32
}

func NewStreamReader(source BlockRenderer, blockSize int) *StreamReader {
	if blockSize <= 0 {
		blockSize = 512
	}
	r := &StreamReader{source: source, blockSize: blockSize}
	r.planar = make([][]float32, Channels)
	for i := range r.planar {
		r.planar[i] = make([]float32, blockSize)
	}
	return r
}

func (r *StreamReader) BlockSize() int { return r.blockSize }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / (4 * Channels)
	done := 0
	for done < frames {
		n := min(r.blockSize, frames-done)
		block := r.planar
		for c := range block {
			block[c] = block[c][:n]
		}
		r.source.RenderNextBlock(block)
		for i := 0; i < n; i++ {
			for c := 0; c < Channels; c++ {
				off := ((done+i)*Channels + c) * 4
				binary.LittleEndian.PutUint32(p[off:], math.Float32bits(block[c][i]))
			}
		}
		done += n
	}
	return frames * 4 * Channels, nil
}

func (r *StreamReader) Close() error { return nil }

// Player is a realtime output stream.
type Player struct {
	player *ebitaudio.Player
	reader io.ReadCloser
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// ebiten allows one context per process, so every Player shares it.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// NewPlayer opens an output stream at sampleRate pulling blocks from source.
// The device buffer is sized to roughly two blocks.
func NewPlayer(sampleRate, blockSize int, source BlockRenderer) (*Player, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d", sampleRate)
	}
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(source, blockSize)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, err
	}
	pl.SetBufferSize(BufferDuration(sampleRate, reader.BlockSize()))
	return &Player{
		player: pl,
		reader: reader,
	}, nil
}

// BufferDuration is the device buffer length used for a block size.
func BufferDuration(sampleRate, blockSize int) time.Duration {
	return time.Duration(2*blockSize) * time.Second / time.Duration(sampleRate)
}

func (p *Player) Play()  { p.player.Play() }
func (p *Player) Pause() { p.player.Pause() }
func (p *Player) IsPlaying() bool {
	return p.player.IsPlaying()
}

// Position returns the current playback position (what the listener actually hears).
func (p *Player) Position() time.Duration {
	return p.player.Position()
}

func (p *Player) SetVolume(v float64) { p.player.SetVolume(v) }

func (p *Player) Stop() error {
	p.player.Pause()
	p.player.Close()
	return p.reader.Close()
}
