// Package modparam implements parameters whose effective value is a base value
// combined with the contributions of any number of modulation sources.
//
// A Parameter caches its combined value. Sources only mark it outdated; the
// combination is evaluated lazily on the next read, so a parameter modulated by
// several LFOs is recomputed at most once per read cycle no matter how many of
// them signalled in between. Reading never recurses into a source's own
// modulation, which keeps cyclic graphs (A modulates B modulates A) finite.
package modparam

import "fmt"

// Number is the value type a Parameter can carry.
type Number interface {
	~float32 | ~float64
}

// Source produces modulation values. Region LFOs implement it.
type Source interface {
	// RegionID identifies the region owning the source. A parameter holds at
	// most one modulation entry per region id.
	RegionID() int
	UnipolarValue() float64
	BipolarValue() float64
	Depth() float64
	// Unsubscribe drops l from the source's notification targets.
	Unsubscribe(l Listener)
}

// Listener is notified when one of its sources has a new value.
type Listener interface {
	SignalModulatorUpdated()
}

// EvalFunc maps a source's current output to a parameter contribution. Polarity,
// inversion and scaling live here so Parameter stays generic.
type EvalFunc[T Number] func(src Source) T

// Rule selects how modulator contributions are combined with the base value.
type Rule int

const (
	// Additive sums the base value and all contributions.
	Additive Rule = iota
	// Multiplicative multiplies the base value by all contributions.
	Multiplicative
	// CappedMultiplicative is Multiplicative with a lower bound on the result.
	CappedMultiplicative
)

func (r Rule) String() string {
	switch r {
	case Additive:
		return "additive"
	case Multiplicative:
		return "multiplicative"
	case CappedMultiplicative:
		return "capped-multiplicative"
	default:
		return fmt.Sprintf("Rule(%d)", int(r))
	}
}

type cacheState int

const (
	outdated cacheState = iota
	upToDate
)

type modulation[T Number] struct {
	src      Source
	regionID int
	eval     EvalFunc[T]
}

// Parameter is a modulatable value. It is not safe for concurrent use; the
// engine confines all access to the render goroutine or to callers holding the
// engine lock.
type Parameter[T Number] struct {
	rule  Rule
	floor T
	base  T
	value T
	state cacheState
	mods  []modulation[T]

	onSignal func()
}

// NewAdditive returns a parameter combining contributions by addition.
func NewAdditive[T Number](base T) *Parameter[T] {
	return &Parameter[T]{rule: Additive, base: base}
}

// NewMultiplicative returns a parameter combining contributions by product.
func NewMultiplicative[T Number](base T) *Parameter[T] {
	return &Parameter[T]{rule: Multiplicative, base: base}
}

// NewCappedMultiplicative returns a multiplicative parameter whose combined
// value never drops below floor.
func NewCappedMultiplicative[T Number](base, floor T) *Parameter[T] {
	return &Parameter[T]{rule: CappedMultiplicative, base: base, floor: floor}
}

// Rule returns the combination rule.
func (p *Parameter[T]) Rule() Rule { return p.rule }

// BaseValue returns the unmodulated value.
func (p *Parameter[T]) BaseValue() T { return p.base }

// SetBaseValue replaces the base value and marks the cache outdated.
func (p *Parameter[T]) SetBaseValue(v T) {
	p.base = v
	p.state = outdated
}

// Value returns the combined value, recomputing it only when outdated.
func (p *Parameter[T]) Value() T {
	switch p.state {
	case upToDate:
		return p.value
	case outdated:
		p.value = p.combine()
		p.state = upToDate
		return p.value
	default:
		panic(fmt.Sprintf("modparam: unhandled cache state %d", p.state))
	}
}

// Outdated reports whether the next Value call will recompute.
func (p *Parameter[T]) Outdated() bool {
	return p.state == outdated
}

// OnSignal installs fn to run whenever a source signals a new value. Base
// value changes and edge removal do not call it.
func (p *Parameter[T]) OnSignal(fn func()) { p.onSignal = fn }

// SignalModulatorUpdated marks the cached value outdated.
func (p *Parameter[T]) SignalModulatorUpdated() {
	if p.onSignal != nil {
		p.onSignal()
	}
	if p.state == outdated {
		return
	}
	p.state = outdated
}

// AddModulator registers src with the given evaluation function. It returns
// false, leaving the parameter unchanged, if a source of the same region is
// already registered.
func (p *Parameter[T]) AddModulator(src Source, eval EvalFunc[T]) bool {
	id := src.RegionID()
	for i := range p.mods {
		if p.mods[i].regionID == id {
			return false
		}
	}
	p.mods = append(p.mods, modulation[T]{src: src, regionID: id, eval: eval})
	p.state = outdated
	return true
}

// RemoveModulator drops the entry of the given region. It reports whether an
// entry was removed.
func (p *Parameter[T]) RemoveModulator(regionID int) bool {
	for i := range p.mods {
		if p.mods[i].regionID != regionID {
			continue
		}
		copy(p.mods[i:], p.mods[i+1:])
		p.mods[len(p.mods)-1] = modulation[T]{}
		p.mods = p.mods[:len(p.mods)-1]
		p.state = outdated
		return true
	}
	return false
}

// HasModulator reports whether the region modulates this parameter.
func (p *Parameter[T]) HasModulator(regionID int) bool {
	for i := range p.mods {
		if p.mods[i].regionID == regionID {
			return true
		}
	}
	return false
}

// ModulatorCount returns the number of registered sources.
func (p *Parameter[T]) ModulatorCount() int { return len(p.mods) }

// Detach unsubscribes the parameter from every source and clears its entries.
// Call it before discarding a parameter that may still be modulated.
func (p *Parameter[T]) Detach() {
	for i := range p.mods {
		p.mods[i].src.Unsubscribe(p)
		p.mods[i] = modulation[T]{}
	}
	p.mods = p.mods[:0]
	p.state = outdated
}

func (p *Parameter[T]) combine() T {
	v := p.base
	switch p.rule {
	case Additive:
		for i := range p.mods {
			v += p.mods[i].eval(p.mods[i].src)
		}
	case Multiplicative:
		for i := range p.mods {
			v *= p.mods[i].eval(p.mods[i].src)
		}
	case CappedMultiplicative:
		for i := range p.mods {
			v *= p.mods[i].eval(p.mods[i].src)
		}
		if v < p.floor {
			v = p.floor
		}
	default:
		panic(fmt.Sprintf("modparam: unhandled rule %v", p.rule))
	}
	return v
}
