package personality

import (
	"fmt"
	"math"

	"voyager.com/tiltengine/util"
)

// Trait is one behavioral dial of a player. Current is always derived from
// (Anchor, Elasticity, Pressure) by Resolve and is never written directly.
// Effective is Current with the active modifiers overlaid.
type Trait struct {
	Name        string   `json:"name"`
	Anchor      float64  `json:"anchor"`
	Elasticity  float64  `json:"elasticity"`
	Pressure    float64  `json:"pressure"`
	// share of Pressure received since the last hand boundary
	Fresh       float64  `json:"fresh,omitempty"`
	Min         float64  `json:"min"`
	Max         float64  `json:"max"`
	DecayFactor *float64 `json:"decay_factor,omitempty"`
	Current     float64  `json:"current"`
	Effective   float64  `json:"effective"`
}

// IsInert is true for traits pinned to a single value (min == max).
func (t Trait) IsInert() bool {
	return t.Min == t.Max
}

// Deviation is the signed distance of the effective value from the anchor.
func (t Trait) Deviation() float64 {
	return t.Effective - t.Anchor
}

func (t Trait) clone() Trait {
	c := t
	if t.DecayFactor != nil {
		d := *t.DecayFactor
		c.DecayFactor = &d
	}
	return c
}

func (t Trait) validate() error {
	for _, v := range []float64{t.Anchor, t.Elasticity, t.Pressure, t.Fresh, t.Min, t.Max} {
		if !util.IsFinite(v) {
			return fmt.Errorf("trait [%s] has a non-finite value", t.Name)
		}
	}
	if t.Name == "" {
		return fmt.Errorf("trait name is empty")
	}
	if t.Min > t.Max {
		return fmt.Errorf("trait [%s] min %f > max %f", t.Name, t.Min, t.Max)
	}
	if t.Anchor < t.Min || t.Anchor > t.Max {
		return fmt.Errorf("trait [%s] anchor %f is outside [%f, %f]", t.Name, t.Anchor, t.Min, t.Max)
	}
	if t.Elasticity < 0 {
		return fmt.Errorf("trait [%s] elasticity %f is negative", t.Name, t.Elasticity)
	}
	if t.DecayFactor != nil && (math.IsNaN(*t.DecayFactor) || *t.DecayFactor < 0 || *t.DecayFactor > 1) {
		return fmt.Errorf("trait [%s] decay factor %f is outside [0, 1]", t.Name, *t.DecayFactor)
	}
	return nil
}
