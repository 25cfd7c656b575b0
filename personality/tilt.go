package personality

import (
	"math"

	"voyager.com/tiltengine/util"
)

// TiltClassifier maintains the cumulative tilt level and reduces a state to
// a mood label and a tilt category. Classification never mutates the state.
type TiltClassifier struct {
	eventWeights map[string]float64
	decayFactor  float64
	thresholds   TiltThresholds
	moods        MoodTable
}

func NewTiltClassifier(config *Config) *TiltClassifier {
	return &TiltClassifier{
		eventWeights: config.Tilt.Events,
		decayFactor:  config.Tilt.DecayFactor,
		thresholds:   config.Tilt.Thresholds,
		moods:        config.Moods,
	}
}

// IsTiltRelevant reports whether the event type moves the tilt level.
func (c *TiltClassifier) IsTiltRelevant(eventType string) bool {
	_, ok := c.eventWeights[eventType]
	return ok
}

// UpdateTilt moves the tilt level for tilt-relevant events and keeps it in
// [0, 1]. The event must already be validated.
func (c *TiltClassifier) UpdateTilt(state *PersonalityState, event PressureEvent) bool {
	w, ok := c.eventWeights[event.EventType]
	if !ok {
		return false
	}
	level := state.TiltLevel + event.Magnitude*w
	if !util.IsFinite(level) {
		return false
	}
	state.TiltLevel = util.Clamp(level, 0, 1)
	return true
}

// DecayTilt runs at a hand boundary. Only the tilt level settled at the
// previous boundary decays, by the tilt decay factor per hand; what events
// added since then is kept whole.
func (c *TiltClassifier) DecayTilt(state *PersonalityState, handsElapsed uint32) {
	if handsElapsed > 0 {
		fresh := state.TiltLevel - state.SettledTilt
		level := state.SettledTilt*math.Pow(c.decayFactor, float64(handsElapsed)) + fresh
		state.TiltLevel = util.Clamp(level, 0, 1)
	}
	state.SettledTilt = state.TiltLevel
}

func (c *TiltClassifier) Category(tiltLevel float64) TiltCategory {
	switch {
	case tiltLevel >= c.thresholds.Severe:
		return TiltSevere
	case tiltLevel >= c.thresholds.Moderate:
		return TiltModerate
	case tiltLevel >= c.thresholds.Mild:
		return TiltMild
	default:
		return TiltNone
	}
}

// Classify returns the mood and tilt category of the state.
func (c *TiltClassifier) Classify(state *PersonalityState) (Mood, TiltCategory) {
	return c.Mood(state), c.Category(state.TiltLevel)
}

// Mood picks the mood rule that matches the effective trait deviations with
// the largest total deviation. Ties go to the rule listed first.
func (c *TiltClassifier) Mood(state *PersonalityState) Mood {
	deviations := make(map[string]float64, len(state.Traits))
	calm := true
	for _, t := range state.Traits {
		d := t.Deviation()
		deviations[t.Name] = d
		if math.Abs(d) >= c.moods.NeutralBand {
			calm = false
		}
	}
	if calm {
		return c.moods.Baseline
	}

	best := c.moods.Fallback
	bestScore := -1.0
	for _, rule := range c.moods.Rules {
		score, ok := ruleScore(rule, deviations)
		if ok && score > bestScore {
			best = rule.Mood
			bestScore = score
		}
	}
	return best
}

func ruleScore(rule MoodRule, deviations map[string]float64) (float64, bool) {
	score := 0.0
	for _, cond := range rule.When {
		d, ok := deviations[cond.Trait]
		if !ok {
			return 0, false
		}
		switch cond.Direction {
		case DirectionUp:
			if d <= 0 || d < cond.MinDeviation {
				return 0, false
			}
		case DirectionDown:
			if d >= 0 || -d < cond.MinDeviation {
				return 0, false
			}
		default:
			return 0, false
		}
		score += math.Abs(d)
	}
	return score, true
}
