package effects

import "math"

// ReverbParams configures the master reverb.
type ReverbParams struct {
	RoomSize float32 // 0..1, scales the comb lengths
	DecaySec float64 // time for the tail to fall by 60 dB
	Damping  float32 // 0..0.99, high-frequency loss per comb pass
	Wet      float32
}

func DefaultReverbParams() ReverbParams {
	return ReverbParams{RoomSize: 0.5, DecaySec: 1.5, Damping: 0.3, Wet: 0.2}
}

// Reverb is a stereo Schroeder reverb: per channel, four damped parallel
// combs into two allpasses. The right channel's lines are longer by a fixed
// spread so the tails decorrelate.
type Reverb struct {
	left, right reverbChannel
	wet         float32
}

type reverbChannel struct {
	combs   [4]delayLine
	allpass [2]delayLine
}

// Comb and allpass lengths relative to the base length.
var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

const (
	// Longest base line, in seconds, at RoomSize 1.
	maxRoomSec = 0.05
	// Right channel offset, in seconds.
	stereoSpreadSec = 0.0005
)

func NewReverb(sampleRate float64, p ReverbParams) *Reverb {
	base := max(int(sampleRate*float64(clamp(p.RoomSize, 0, 1))*maxRoomSec), 10)
	spread := int(sampleRate * stereoSpreadSec)
	decay := p.DecaySec
	if decay <= 0 || math.IsNaN(decay) {
		decay = DefaultReverbParams().DecaySec
	}
	damp := clamp(p.Damping, 0, 0.99)
	return &Reverb{
		left:  newReverbChannel(base, 0, sampleRate, decay, damp),
		right: newReverbChannel(base, spread, sampleRate, decay, damp),
		wet:   clamp(p.Wet, 0, 1),
	}
}

func newReverbChannel(base, spread int, sampleRate, decay float64, damp float32) reverbChannel {
	var c reverbChannel
	for i := range c.combs {
		n := base*combRatios[i]/1000 + spread
		c.combs[i] = delayLine{buf: make([]float32, n), fb: combFeedback(n, sampleRate, decay), damp: damp}
	}
	for i := range c.allpass {
		c.allpass[i] = delayLine{buf: make([]float32, max(base*allpassRatios[i]/1000+spread, 1)), fb: 0.5}
	}
	return c
}

// combFeedback returns the gain that makes a comb of n samples decay by 60 dB
// in decay seconds.
func combFeedback(n int, sampleRate, decay float64) float32 {
	return float32(math.Pow(10, -3*float64(n)/(sampleRate*decay)))
}

func (r *Reverb) Process(l, rr float32) (float32, float32) {
	mono := (l + rr) * 0.5
	outL := r.left.process(mono)
	outR := r.right.process(mono)
	return l*(1-r.wet) + outL*r.wet, rr*(1-r.wet) + outR*r.wet
}

func (r *Reverb) Reset() {
	r.left.reset()
	r.right.reset()
}

func (c *reverbChannel) process(in float32) float32 {
	var out float32
	for i := range c.combs {
		out += c.combs[i].comb(in)
	}
	out *= 0.25
	for i := range c.allpass {
		out = c.allpass[i].allpass(out)
	}
	return out
}

func (c *reverbChannel) reset() {
	for i := range c.combs {
		c.combs[i].reset()
	}
	for i := range c.allpass {
		c.allpass[i].reset()
	}
}

// delayLine is a circular buffer shared by the reverb's combs and allpasses
// and the delay's channels. damp lowpasses the fed-back signal.
type delayLine struct {
	buf  []float32
	pos  int
	fb   float32
	damp float32
	lp   float32
}

func (d *delayLine) comb(in float32) float32 {
	out := d.buf[d.pos]
	d.lp = out*(1-d.damp) + d.lp*d.damp
	d.buf[d.pos] = in + d.lp*d.fb
	d.advance()
	return out
}

func (d *delayLine) allpass(in float32) float32 {
	delayed := d.buf[d.pos]
	d.buf[d.pos] = in + delayed*d.fb
	d.advance()
	return delayed - in
}

// tap returns the oldest sample without advancing.
func (d *delayLine) tap() float32 { return d.buf[d.pos] }

// feed writes in plus the damped feedback of fbIn, then advances.
func (d *delayLine) feed(in, fbIn float32) {
	d.lp = fbIn*(1-d.damp) + d.lp*d.damp
	d.buf[d.pos] = in + d.lp
	d.advance()
}

func (d *delayLine) advance() {
	if d.pos++; d.pos >= len(d.buf) {
		d.pos = 0
	}
}

func (d *delayLine) reset() {
	clear(d.buf)
	d.pos = 0
	d.lp = 0
}
