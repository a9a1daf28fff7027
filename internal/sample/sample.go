// Package sample decodes audio files into the mono buffers voices play back.
package sample

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/go-mp3"
	"github.com/sirupsen/logrus"
)

// ErrUnsupportedFormat is returned for files whose format cannot be decoded.
var ErrUnsupportedFormat = errors.New("sample: unsupported format")

// Buffer is a decoded mono sample buffer at its native rate.
type Buffer struct {
	Name       string
	SampleRate float64
	Data       []float64
}

// New wraps already decoded samples.
func New(name string, sampleRate float64, data []float64) *Buffer {
	return &Buffer{Name: name, SampleRate: sampleRate, Data: data}
}

func (b *Buffer) Len() int { return len(b.Data) }

func (b *Buffer) Duration() time.Duration {
	if b.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(len(b.Data)) / b.SampleRate * float64(time.Second))
}

// Format identifies a container/codec.
type Format int

const (
	FormatWAV Format = iota
	FormatMP3
	FormatOgg
)

func (f Format) String() string {
	switch f {
	case FormatWAV:
		return "wav"
	case FormatMP3:
		return "mp3"
	case FormatOgg:
		return "ogg"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return FormatWAV, nil
	case ".mp3":
		return FormatMP3, nil
	case ".ogg", ".oga":
		return FormatOgg, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Loader decodes files, logging each step at debug level.
type Loader struct {
	Log logrus.FieldLogger
}

// NewLoader returns a loader logging to log, or to the standard logger if log
// is nil.
func NewLoader(log logrus.FieldLogger) *Loader {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Loader{Log: log}
}

// Load decodes the file at path with the standard logger.
func Load(path string) (*Buffer, error) {
	return NewLoader(nil).Load(path)
}

// Load opens and decodes the file at path. The buffer is named after the path.
func (l *Loader) Load(path string) (*Buffer, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sample: open %s: %w", path, err)
	}
	defer f.Close()

	start := time.Now()
	buf, err := l.Decode(f, format, path)
	if err != nil {
		return nil, fmt.Errorf("sample: decode %s: %w", path, err)
	}
	l.Log.WithFields(logrus.Fields{
		"path":       path,
		"format":     format,
		"sampleRate": buf.SampleRate,
		"frames":     buf.Len(),
		"elapsed":    time.Since(start),
	}).Debug("decoded audio file")
	return buf, nil
}

// Decode reads a whole stream of the given format and downmixes it to mono.
func (l *Loader) Decode(r io.ReadSeeker, format Format, name string) (*Buffer, error) {
	var (
		buf *Buffer
		err error
	)
	switch format {
	case FormatWAV:
		buf, err = l.decodeWAV(r)
	case FormatMP3:
		buf, err = l.decodeMP3(r)
	case FormatOgg:
		buf, err = l.decodeOgg(r)
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, err
	}
	buf.Name = name
	return buf, nil
}

func (l *Loader) decodeWAV(r io.ReadSeeker) (*Buffer, error) {
	d := wav.NewDecoder(r)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: invalid WAV data", ErrUnsupportedFormat)
	}
	pcm, err := d.FullPCMBuffer()
	if err != nil {
		return nil, err
	}
	bitDepth := int(d.BitDepth)
	if bitDepth == 0 {
		return nil, fmt.Errorf("%w: unknown WAV bit depth", ErrUnsupportedFormat)
	}
	channels := pcm.Format.NumChannels
	if channels <= 0 {
		return nil, fmt.Errorf("%w: WAV without channels", ErrUnsupportedFormat)
	}
	l.Log.WithFields(logrus.Fields{
		"sampleRate": pcm.Format.SampleRate,
		"channels":   channels,
		"bitDepth":   bitDepth,
	}).Debug("decoding wav data")

	scale := 1 / math.Pow(2, float64(bitDepth-1))
	if bitDepth == 8 {
		// 8-bit WAV is unsigned.
		for i, v := range pcm.Data {
			pcm.Data[i] = v - 128
		}
	}
	frames := len(pcm.Data) / channels
	data := make([]float64, frames)
	for i := range data {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(pcm.Data[i*channels+c])
		}
		data[i] = sum / float64(channels) * scale
	}
	return &Buffer{SampleRate: float64(pcm.Format.SampleRate), Data: data}, nil
}

func (l *Loader) decodeMP3(r io.Reader) (*Buffer, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	l.Log.WithFields(logrus.Fields{
		"sampleRate": d.SampleRate(),
		"bytes":      d.Length(),
	}).Debug("decoding mp3 data")
	data, err := readStereo16(d)
	if err != nil {
		return nil, err
	}
	return &Buffer{SampleRate: float64(d.SampleRate()), Data: data}, nil
}

func (l *Loader) decodeOgg(r io.Reader) (*Buffer, error) {
	s, err := vorbis.DecodeWithoutResampling(r)
	if err != nil {
		return nil, err
	}
	l.Log.WithFields(logrus.Fields{
		"sampleRate": s.SampleRate(),
		"bytes":      s.Length(),
	}).Debug("decoding ogg data")
	data, err := readStereo16(s)
	if err != nil {
		return nil, err
	}
	return &Buffer{SampleRate: float64(s.SampleRate()), Data: data}, nil
}

// readStereo16 drains a stream of interleaved signed 16-bit little-endian
// stereo frames into a mono buffer.
func readStereo16(r io.Reader) ([]float64, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	frames := len(raw) / 4
	data := make([]float64, frames)
	for i := range data {
		left := int16(binary.LittleEndian.Uint16(raw[i*4:]))
		right := int16(binary.LittleEndian.Uint16(raw[i*4+2:]))
		data[i] = (float64(left) + float64(right)) / 2 / 32768
	}
	return data, nil
}
