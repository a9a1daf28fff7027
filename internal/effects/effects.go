// Package effects holds the per-sample processors of the synth: the one-pole
// filter every voice runs its output through, and the master bus effects
// applied to the mixed engine output.
package effects

// Effector processes one stereo frame of the master bus.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

// ProcessBuffer runs the chain over planar channels frame by frame. A mono
// buffer is fed to both inputs and receives the left output.
func (c *Chain) ProcessBuffer(channels [][]float32) {
	if len(c.effects) == 0 || len(channels) == 0 {
		return
	}
	left := channels[0]
	right := left
	if len(channels) > 1 {
		right = channels[1]
	}
	stereo := len(channels) > 1
	for i := range left {
		l, r := c.Process(left[i], right[i])
		left[i] = l
		if stereo {
			right[i] = r
		}
	}
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

// Len returns the number of effects in the chain.
func (c *Chain) Len() int { return len(c.effects) }

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
