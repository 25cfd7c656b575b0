package personality

import (
	"voyager.com/tiltengine/util"
)

// Resolve recomputes Current from the elastic state:
//
//	current = clamp(anchor + elasticity*pressure, min, max)
//
// It is pure and safe to call any number of times. Effective is reset to
// Current; modifiers are overlaid separately.
func Resolve(t Trait) Trait {
	if t.IsInert() {
		t.Current = t.Min
		t.Effective = t.Min
		return t
	}
	raw := t.Anchor + t.Elasticity*t.Pressure
	if !util.IsFinite(raw) {
		raw = t.Anchor
	}
	t.Current = util.Clamp(raw, t.Min, t.Max)
	t.Effective = t.Current
	return t
}

// ResolveAll resolves every trait of the state. Traits are independent so
// the order does not matter.
func ResolveAll(state *PersonalityState) {
	for i := range state.Traits {
		state.Traits[i] = Resolve(state.Traits[i])
	}
}
