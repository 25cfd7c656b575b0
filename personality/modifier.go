package personality

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"voyager.com/tiltengine/util"
)

// Modifier is a temporary overlay on top of a resolved trait value. A
// modifier with an Override is always exclusive. ExpiresAfterHands counts
// down the remaining hands; zero means the modifier is only time scoped.
type Modifier struct {
	ID                string     `json:"id"`
	TraitName         string     `json:"trait_name"`
	Delta             float64    `json:"delta"`
	Override          *float64   `json:"override,omitempty"`
	Exclusive         bool       `json:"exclusive"`
	ExpiresAfterHands uint32     `json:"expires_after_hands,omitempty"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	SourceEvent       string     `json:"source_event,omitempty"`
	PushedAtHand      uint32     `json:"pushed_at_hand"`
	Seq               uint64     `json:"seq"`
}

func (m Modifier) clone() Modifier {
	c := m
	if m.Override != nil {
		o := *m.Override
		c.Override = &o
	}
	if m.ExpiresAt != nil {
		at := *m.ExpiresAt
		c.ExpiresAt = &at
	}
	return c
}

func cloneModifiers(mods []Modifier) []Modifier {
	if mods == nil {
		return nil
	}
	c := make([]Modifier, len(mods))
	for i, m := range mods {
		c[i] = m.clone()
	}
	return c
}

func (m Modifier) validate(now time.Time) error {
	if m.TraitName == "" {
		return InvalidModifierError{Msg: "trait name is empty"}
	}
	if !util.IsFinite(m.Delta) {
		return InvalidModifierError{TraitName: m.TraitName, Msg: "delta is not finite"}
	}
	if m.Override != nil && !util.IsFinite(*m.Override) {
		return InvalidModifierError{TraitName: m.TraitName, Msg: "override is not finite"}
	}
	// a hand scope alone is enough, a time scope alone must lie ahead
	if m.ExpiresAfterHands > 0 {
		return nil
	}
	if m.ExpiresAt == nil {
		return InvalidModifierError{TraitName: m.TraitName, Msg: "modifier has no scope"}
	}
	if !m.ExpiresAt.After(now) {
		return InvalidModifierError{TraitName: m.TraitName, Msg: fmt.Sprintf("expiry %s is not in the future", m.ExpiresAt.Format(time.RFC3339))}
	}
	return nil
}

// ModifierStack holds the active modifiers of one player, per trait.
type ModifierStack struct {
	maxDepth int
	traits   map[string][]Modifier
	seq      uint64
}

// NewModifierStack creates a stack allowing at most maxDepth modifiers per
// trait. maxDepth <= 0 disables the bound.
func NewModifierStack(maxDepth int) *ModifierStack {
	return &ModifierStack{
		maxDepth: maxDepth,
		traits:   make(map[string][]Modifier),
	}
}

// Push validates and appends a modifier. A full stack is never evicted
// silently; the caller decides whether to drop the new modifier or call
// ExpireOldest and retry.
func (s *ModifierStack) Push(m Modifier, now time.Time) (Modifier, error) {
	if err := m.validate(now); err != nil {
		return Modifier{}, err
	}
	if s.maxDepth > 0 && len(s.traits[m.TraitName]) >= s.maxDepth {
		return Modifier{}, ModifierStackFullError{TraitName: m.TraitName, MaxDepth: s.maxDepth}
	}
	m = m.clone()
	if m.Override != nil {
		m.Exclusive = true
	}
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	s.seq++
	m.Seq = s.seq
	s.traits[m.TraitName] = append(s.traits[m.TraitName], m)
	return m.clone(), nil
}

func (s *ModifierStack) Len(traitName string) int {
	return len(s.traits[traitName])
}

// Active returns a copy of the modifiers on a trait in push order.
func (s *ModifierStack) Active(traitName string) []Modifier {
	return cloneModifiers(s.traits[traitName])
}

// All returns a copy of every active modifier in push order.
func (s *ModifierStack) All() []Modifier {
	all := []Modifier{}
	for _, mods := range s.traits {
		all = append(all, cloneModifiers(mods)...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Seq < all[j].Seq })
	return all
}

// Tick consumes handsElapsed hands from every hand-scoped modifier and
// drops the modifiers whose scope has run out (hands or time). The removed
// modifiers are returned.
func (s *ModifierStack) Tick(handsElapsed uint32, now time.Time) []Modifier {
	var expired []Modifier
	for name, mods := range s.traits {
		kept := make([]Modifier, 0, len(mods))
		for _, m := range mods {
			done := false
			if m.ExpiresAfterHands > 0 {
				if handsElapsed >= m.ExpiresAfterHands {
					done = true
				} else {
					m.ExpiresAfterHands -= handsElapsed
				}
			}
			if m.ExpiresAt != nil && !now.Before(*m.ExpiresAt) {
				done = true
			}
			if done {
				expired = append(expired, m)
			} else {
				kept = append(kept, m)
			}
		}
		if len(kept) == 0 {
			delete(s.traits, name)
		} else {
			s.traits[name] = kept
		}
	}
	return expired
}

// ExpireOldest force-expires the oldest modifier on a trait.
func (s *ModifierStack) ExpireOldest(traitName string) (Modifier, bool) {
	mods := s.traits[traitName]
	if len(mods) == 0 {
		return Modifier{}, false
	}
	oldest := mods[0]
	rest := append([]Modifier(nil), mods[1:]...)
	if len(rest) == 0 {
		delete(s.traits, traitName)
	} else {
		s.traits[traitName] = rest
	}
	return oldest, true
}

// Restore replaces the content of the stack with previously persisted
// modifiers. Capacity is not enforced on restore.
func (s *ModifierStack) Restore(mods []Modifier) {
	s.traits = make(map[string][]Modifier)
	s.seq = 0
	sorted := cloneModifiers(mods)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })
	for _, m := range sorted {
		if m.Seq > s.seq {
			s.seq = m.Seq
		}
		s.traits[m.TraitName] = append(s.traits[m.TraitName], m)
	}
}

// Overlay sets Effective on every trait of the state from its modifiers.
func (s *ModifierStack) Overlay(state *PersonalityState) {
	for i := range state.Traits {
		t := &state.Traits[i]
		t.Effective = ApplyModifiers(t.Current, s.traits[t.Name], t.Min, t.Max)
	}
}

// ApplyModifiers folds the additive modifiers into current, then applies the
// most recently pushed exclusive modifier, then clamps to [min, max].
func ApplyModifiers(current float64, modifiers []Modifier, min float64, max float64) float64 {
	if min == max {
		return min
	}
	value := current
	var exclusive *Modifier
	for i := range modifiers {
		m := &modifiers[i]
		if m.Exclusive || m.Override != nil {
			if exclusive == nil || m.Seq >= exclusive.Seq {
				exclusive = m
			}
			continue
		}
		value += m.Delta
	}
	if exclusive != nil {
		if exclusive.Override != nil {
			value = *exclusive.Override
		} else {
			value += exclusive.Delta
		}
	}
	return util.Clamp(value, min, max)
}
