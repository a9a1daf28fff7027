package effects

import "math"

// DelayParams configures the master delay.
type DelayParams struct {
	TimeMs   float64
	Feedback float32 // 0..0.95
	Cross    float32 // share of the feedback sent to the other channel
	Wet      float32
	// ToneHz lowpasses the repeats so each echo is darker. Zero leaves them
	// unfiltered.
	ToneHz float64
}

// DefaultDelayParams returns a short ping-pong echo.
func DefaultDelayParams() DelayParams {
	return DelayParams{TimeMs: 250, Feedback: 0.35, Cross: 0.5, Wet: 0.25}
}

// Delay is a stereo feedback delay with cross-channel feedback.
type Delay struct {
	left, right delayLine
	feedback    float32
	cross       float32
	wet         float32
}

// NewDelay allocates the delay lines for the given sample rate.
func NewDelay(sampleRate float64, p DelayParams) *Delay {
	samples := max(int(p.TimeMs*sampleRate/1000.0), 1)
	var damp float32
	if p.ToneHz > 0 {
		damp = float32(math.Exp(-2 * math.Pi * p.ToneHz / sampleRate))
	}
	return &Delay{
		left:     delayLine{buf: make([]float32, samples), damp: damp},
		right:    delayLine{buf: make([]float32, samples), damp: damp},
		feedback: clamp(p.Feedback, 0, 0.95),
		cross:    clamp(p.Cross, 0, 1),
		wet:      clamp(p.Wet, 0, 1),
	}
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	outL, outR := d.left.tap(), d.right.tap()
	straight := d.feedback * (1 - d.cross)
	crossed := d.feedback * d.cross
	d.left.feed(l, outL*straight+outR*crossed)
	d.right.feed(r, outR*straight+outL*crossed)
	return l*(1-d.wet) + outL*d.wet, r*(1-d.wet) + outR*d.wet
}

func (d *Delay) Reset() {
	d.left.reset()
	d.right.reset()
}
