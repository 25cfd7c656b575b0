package personality

import (
	"fmt"
	"math"

	"voyager.com/tiltengine/util"
)

// PressureLedger turns game events into trait pressure and decays pressure
// at hand boundaries.
type PressureLedger struct {
	weights      map[string]map[string]float64
	decayFactor  float64
	maxMagnitude float64
}

func NewPressureLedger(config *Config) *PressureLedger {
	return &PressureLedger{
		weights:      config.Events,
		decayFactor:  config.DecayFactor,
		maxMagnitude: config.MaxEventMagnitude,
	}
}

// ValidateEvent rejects non-finite and out-of-range magnitudes.
func (l *PressureLedger) ValidateEvent(event PressureEvent) error {
	if !util.IsFinite(event.Magnitude) {
		return InvalidEventError{EventType: event.EventType, Msg: fmt.Sprintf("magnitude %f is not finite", event.Magnitude)}
	}
	if l.maxMagnitude > 0 && math.Abs(event.Magnitude) > l.maxMagnitude {
		return InvalidEventError{EventType: event.EventType, Msg: fmt.Sprintf("magnitude %f exceeds %f", event.Magnitude, l.maxMagnitude)}
	}
	return nil
}

// Apply adds magnitude*weight to the pressure of every trait the event type
// is weighted for. Unknown event types are ignored. Invalid events leave the
// state untouched.
func (l *PressureLedger) Apply(event PressureEvent, state *PersonalityState) error {
	if err := l.ValidateEvent(event); err != nil {
		return err
	}
	weights, ok := l.weights[event.EventType]
	if !ok {
		return nil
	}

	// compute everything before touching the state
	updated := make(map[int][2]float64, len(weights))
	for i, t := range state.Traits {
		w, ok := weights[t.Name]
		if !ok {
			continue
		}
		p := t.Pressure + event.Magnitude*w
		fresh := t.Fresh + event.Magnitude*w
		if !util.IsFinite(p) || !util.IsFinite(fresh) {
			return InvalidEventError{EventType: event.EventType, Msg: fmt.Sprintf("pressure on [%s] would become non-finite", t.Name)}
		}
		updated[i] = [2]float64{p, fresh}
	}
	for i, p := range updated {
		state.Traits[i].Pressure = p[0]
		state.Traits[i].Fresh = p[1]
	}
	return nil
}

// Decay runs at a hand boundary. The pressure that was already there at the
// previous boundary is multiplied by decayFactor^handsElapsed; pressure
// received since then is kept whole and becomes settled.
func (l *PressureLedger) Decay(state *PersonalityState, handsElapsed uint32) {
	for i := range state.Traits {
		t := &state.Traits[i]
		if handsElapsed > 0 {
			settled := t.Pressure - t.Fresh
			factor := math.Pow(l.decayFactorFor(t), float64(handsElapsed))
			t.Pressure = settled*factor + t.Fresh
		}
		t.Fresh = 0
	}
}

func (l *PressureLedger) decayFactorFor(t *Trait) float64 {
	if t.DecayFactor != nil {
		return *t.DecayFactor
	}
	return l.decayFactor
}
