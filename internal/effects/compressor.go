package effects

import "math"

// CompressorParams configures the master bus compressor.
type CompressorParams struct {
	ThresholdDB float64
	Ratio       float64
	AttackMs    float64
	ReleaseMs   float64
	MakeupDB    float64
}

// DefaultCompressorParams returns a gentle bus limiter that keeps many
// overlapping voices out of clipping.
func DefaultCompressorParams() CompressorParams {
	return CompressorParams{ThresholdDB: -6, Ratio: 8, AttackMs: 2, ReleaseMs: 120}
}

// Compressor is a stereo-linked feed-forward compressor. Both channels follow
// one envelope so the stereo image does not shift under gain reduction.
type Compressor struct {
	threshold float64
	slope     float64
	attack    float64
	release   float64
	makeup    float64
	env       float64
}

func NewCompressor(sampleRate float64, p CompressorParams) *Compressor {
	ratio := p.Ratio
	if ratio < 1 {
		ratio = 1
	}
	return &Compressor{
		threshold: dbToGain(p.ThresholdDB),
		slope:     1/ratio - 1,
		attack:    timeCoefficient(p.AttackMs, sampleRate),
		release:   timeCoefficient(p.ReleaseMs, sampleRate),
		makeup:    dbToGain(p.MakeupDB),
	}
}

func (c *Compressor) Process(l, r float32) (float32, float32) {
	peak := math.Max(math.Abs(float64(l)), math.Abs(float64(r)))
	if peak > c.env {
		c.env += c.attack * (peak - c.env)
	} else {
		c.env += c.release * (peak - c.env)
	}
	g := c.makeup
	if c.env > c.threshold {
		g *= math.Pow(c.env/c.threshold, c.slope)
	}
	return float32(float64(l) * g), float32(float64(r) * g)
}

func (c *Compressor) Reset() { c.env = 0 }

func dbToGain(db float64) float64 {
	return math.Pow(10, db/20)
}

// timeCoefficient returns the one-pole smoothing factor for a time constant.
// Zero time follows the input immediately.
func timeCoefficient(ms, sampleRate float64) float64 {
	if ms <= 0 {
		return 1
	}
	return 1 - math.Exp(-1/(ms*sampleRate/1000))
}
