package imagine

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	intaudio "github.com/RonaldIaxaduv/ImagINe-sub000/internal/audio"
)

// RenderSamples pulls frames stereo frames from r in blocks of blockSize and
// returns them interleaved.
func RenderSamples(r intaudio.BlockRenderer, frames, blockSize int) []float32 {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	out := make([]float32, 0, frames*intaudio.Channels)
	planar := make([][]float32, intaudio.Channels)
	for c := range planar {
		planar[c] = make([]float32, blockSize)
	}
	for done := 0; done < frames; {
		n := min(blockSize, frames-done)
		for c := range planar {
			planar[c] = planar[c][:n]
		}
		r.RenderNextBlock(planar)
		for i := 0; i < n; i++ {
			for c := range planar {
				out = append(out, planar[c][i])
			}
		}
		done += n
	}
	return out
}

// RenderOffline renders seconds of the player's master bus without opening
// the audio output. Rendering advances the same engine state playback uses.
func (p *Player) RenderOffline(seconds float64) []float32 {
	frames := int(float64(p.sampleRate) * seconds)
	return RenderSamples(p.bus, frames, p.blockSize)
}

// WriteWAV encodes interleaved float samples as 16-bit PCM.
func WriteWAV(w io.WriteSeeker, samples []float32, sampleRate, channels int) error {
	if channels <= 0 || sampleRate <= 0 {
		return fmt.Errorf("write wav: invalid format %d Hz, %d channels", sampleRate, channels)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, channels, 1)
	data := make([]int, len(samples))
	for i, s := range samples {
		v := math.Max(-1, math.Min(1, float64(s)))
		data[i] = int(math.Round(v * 32767))
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// WriteWAVFile renders to a new file at path.
func WriteWAVFile(path string, samples []float32, sampleRate, channels int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples, sampleRate, channels); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
