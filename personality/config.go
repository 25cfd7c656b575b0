package personality

import (
	"fmt"
	"io/ioutil"
	"math"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"voyager.com/tiltengine/util"
)

const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

type TraitConfig struct {
	Name        string   `yaml:"name"`
	Anchor      float64  `yaml:"anchor"`
	Elasticity  float64  `yaml:"elasticity"`
	Min         float64  `yaml:"min"`
	Max         float64  `yaml:"max"`
	DecayFactor *float64 `yaml:"decayFactor,omitempty"`
}

// TraitOverride changes selected fields of a default trait for one character.
type TraitOverride struct {
	Anchor      *float64 `yaml:"anchor,omitempty"`
	Elasticity  *float64 `yaml:"elasticity,omitempty"`
	Min         *float64 `yaml:"min,omitempty"`
	Max         *float64 `yaml:"max,omitempty"`
	DecayFactor *float64 `yaml:"decayFactor,omitempty"`
}

type CharacterConfig struct {
	Traits map[string]TraitOverride `yaml:"traits"`
}

// ModifierTemplate describes a modifier pushed automatically when a tilt
// category is reached.
type ModifierTemplate struct {
	Trait     string   `yaml:"trait"`
	Delta     float64  `yaml:"delta"`
	Override  *float64 `yaml:"override,omitempty"`
	Exclusive bool     `yaml:"exclusive"`
	Hands     uint32   `yaml:"hands"`
}

type TiltThresholds struct {
	Mild     float64 `yaml:"mild"`
	Moderate float64 `yaml:"moderate"`
	Severe   float64 `yaml:"severe"`
}

type TiltConfig struct {
	DecayFactor float64                             `yaml:"decayFactor"`
	Events      map[string]float64                  `yaml:"events"`
	Thresholds  TiltThresholds                      `yaml:"thresholds"`
	Modifiers   map[TiltCategory][]ModifierTemplate `yaml:"modifiers"`
}

type MoodCondition struct {
	Trait        string  `yaml:"trait"`
	Direction    string  `yaml:"direction"`
	MinDeviation float64 `yaml:"minDeviation"`
}

type MoodRule struct {
	Mood Mood            `yaml:"mood"`
	When []MoodCondition `yaml:"when"`
}

type MoodTable struct {
	Baseline    Mood       `yaml:"baseline"`
	Fallback    Mood       `yaml:"fallback"`
	NeutralBand float64    `yaml:"neutralBand"`
	Rules       []MoodRule `yaml:"rules"`
}

// Config holds the swappable tables that drive the engine: trait defaults,
// per-character overrides, event weights, tilt and mood rules.
type Config struct {
	DecayFactor          float64                       `yaml:"decayFactor"`
	MaxEventMagnitude    float64                       `yaml:"maxEventMagnitude"`
	MaxModifiersPerTrait int                           `yaml:"maxModifiersPerTrait"`
	SnapshotEveryHands   uint32                        `yaml:"snapshotEveryHands"`
	MaxTriggerHistory    int                           `yaml:"maxTriggerHistory"`
	Traits               []TraitConfig                 `yaml:"traits"`
	Characters           map[string]CharacterConfig    `yaml:"characters"`
	Events               map[string]map[string]float64 `yaml:"events"`
	Tilt                 TiltConfig                    `yaml:"tilt"`
	Moods                MoodTable                     `yaml:"moods"`
}

func ParseConfig(configFile string) (*Config, error) {
	bytes, err := ioutil.ReadFile(configFile)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Error reading personality config file [%s]", configFile))
	}
	config, err := LoadConfig(bytes)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("Error parsing personality config file [%s]", configFile))
	}
	return config, nil
}

func LoadConfig(data []byte) (*Config, error) {
	var config Config
	err := yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.MaxModifiersPerTrait == 0 {
		c.MaxModifiersPerTrait = 8
	}
	if c.SnapshotEveryHands == 0 {
		c.SnapshotEveryHands = 1
	}
	if c.MaxTriggerHistory == 0 {
		c.MaxTriggerHistory = 20
	}
	if c.Moods.Baseline == "" {
		c.Moods.Baseline = "neutral"
	}
	if c.Moods.Fallback == "" {
		c.Moods.Fallback = c.Moods.Baseline
	}
}

func validFactor(f float64) bool {
	return !math.IsNaN(f) && f >= 0 && f <= 1
}

func (c *Config) Validate() error {
	if !validFactor(c.DecayFactor) {
		return InvalidConfigError{Msg: fmt.Sprintf("decayFactor %f is outside [0, 1]", c.DecayFactor)}
	}
	if !validFactor(c.Tilt.DecayFactor) {
		return InvalidConfigError{Msg: fmt.Sprintf("tilt decayFactor %f is outside [0, 1]", c.Tilt.DecayFactor)}
	}
	if !util.IsFinite(c.MaxEventMagnitude) || c.MaxEventMagnitude < 0 {
		return InvalidConfigError{Msg: fmt.Sprintf("maxEventMagnitude %f is invalid", c.MaxEventMagnitude)}
	}
	if c.MaxModifiersPerTrait < 0 {
		return InvalidConfigError{Msg: "maxModifiersPerTrait is negative"}
	}
	if len(c.Traits) == 0 {
		return InvalidConfigError{Msg: "no traits are defined"}
	}

	known := make(map[string]bool)
	for _, tc := range c.Traits {
		if known[tc.Name] {
			return InvalidConfigError{Msg: fmt.Sprintf("trait [%s] is defined twice", tc.Name)}
		}
		known[tc.Name] = true
		if err := tc.trait().validate(); err != nil {
			return InvalidConfigError{Msg: err.Error()}
		}
	}

	for name := range c.Characters {
		if _, err := c.TraitsFor(name); err != nil {
			return err
		}
	}

	for eventType, weights := range c.Events {
		for trait, w := range weights {
			if !known[trait] {
				return InvalidConfigError{Msg: fmt.Sprintf("event [%s] refers to unknown trait [%s]", eventType, trait)}
			}
			if !util.IsFinite(w) {
				return InvalidConfigError{Msg: fmt.Sprintf("event [%s] weight for [%s] is not finite", eventType, trait)}
			}
		}
	}

	for eventType, w := range c.Tilt.Events {
		if !util.IsFinite(w) {
			return InvalidConfigError{Msg: fmt.Sprintf("tilt weight for [%s] is not finite", eventType)}
		}
	}
	th := c.Tilt.Thresholds
	if !(0 < th.Mild && th.Mild <= th.Moderate && th.Moderate <= th.Severe && th.Severe <= 1) {
		return InvalidConfigError{Msg: fmt.Sprintf("tilt thresholds %+v must be ascending within (0, 1]", th)}
	}
	for category, templates := range c.Tilt.Modifiers {
		if category.Rank() == 0 {
			return InvalidConfigError{Msg: fmt.Sprintf("tilt modifiers for unsupported category [%s]", category)}
		}
		for _, m := range templates {
			if !known[m.Trait] {
				return InvalidConfigError{Msg: fmt.Sprintf("tilt modifier refers to unknown trait [%s]", m.Trait)}
			}
			if m.Hands == 0 {
				return InvalidConfigError{Msg: fmt.Sprintf("tilt modifier for [%s] has no hand scope", m.Trait)}
			}
		}
	}

	if !util.IsFinite(c.Moods.NeutralBand) || c.Moods.NeutralBand < 0 {
		return InvalidConfigError{Msg: "mood neutralBand is invalid"}
	}
	for _, rule := range c.Moods.Rules {
		if rule.Mood == "" || len(rule.When) == 0 {
			return InvalidConfigError{Msg: fmt.Sprintf("mood rule [%s] needs a name and at least one condition", rule.Mood)}
		}
		for _, cond := range rule.When {
			if !known[cond.Trait] {
				return InvalidConfigError{Msg: fmt.Sprintf("mood [%s] refers to unknown trait [%s]", rule.Mood, cond.Trait)}
			}
			if cond.Direction != DirectionUp && cond.Direction != DirectionDown {
				return InvalidConfigError{Msg: fmt.Sprintf("mood [%s] has invalid direction [%s]", rule.Mood, cond.Direction)}
			}
		}
	}
	return nil
}

func (tc TraitConfig) trait() Trait {
	t := Trait{
		Name:       tc.Name,
		Anchor:     tc.Anchor,
		Elasticity: tc.Elasticity,
		Min:        tc.Min,
		Max:        tc.Max,
	}
	if tc.DecayFactor != nil {
		d := *tc.DecayFactor
		t.DecayFactor = &d
	}
	return t
}

// TraitsFor returns the resolved starting traits for a character. Unknown
// characters get the defaults.
func (c *Config) TraitsFor(character string) ([]Trait, error) {
	overrides := c.Characters[character].Traits
	for name := range overrides {
		found := false
		for _, tc := range c.Traits {
			if tc.Name == name {
				found = true
				break
			}
		}
		if !found {
			return nil, InvalidConfigError{Msg: fmt.Sprintf("character [%s] overrides unknown trait [%s]", character, name)}
		}
	}

	traits := make([]Trait, 0, len(c.Traits))
	for _, tc := range c.Traits {
		t := tc.trait()
		if o, ok := overrides[tc.Name]; ok {
			if o.Anchor != nil {
				t.Anchor = *o.Anchor
			}
			if o.Elasticity != nil {
				t.Elasticity = *o.Elasticity
			}
			if o.Min != nil {
				t.Min = *o.Min
			}
			if o.Max != nil {
				t.Max = *o.Max
			}
			if o.DecayFactor != nil {
				d := *o.DecayFactor
				t.DecayFactor = &d
			}
		}
		if err := t.validate(); err != nil {
			return nil, InvalidConfigError{Msg: fmt.Sprintf("character [%s]: %s", character, err)}
		}
		traits = append(traits, Resolve(t))
	}
	return traits, nil
}

// DefaultConfig mirrors the personality.yaml shipped with the service.
func DefaultConfig() *Config {
	c := &Config{
		DecayFactor:          0.8,
		MaxEventMagnitude:    10,
		MaxModifiersPerTrait: 8,
		SnapshotEveryHands:   1,
		MaxTriggerHistory:    20,
		Traits: []TraitConfig{
			{Name: "aggression", Anchor: 0.5, Elasticity: 0.4, Min: 0.1, Max: 0.9},
			{Name: "bluff_tendency", Anchor: 0.3, Elasticity: 0.3, Min: 0.0, Max: 0.8},
			{Name: "tightness", Anchor: 0.5, Elasticity: 0.3, Min: 0.1, Max: 0.9},
			{Name: "chattiness", Anchor: 0.5, Elasticity: 0.5, Min: 0.0, Max: 1.0},
			{Name: "emoji_usage", Anchor: 0.3, Elasticity: 0.4, Min: 0.0, Max: 1.0},
		},
		Characters: map[string]CharacterConfig{
			"mime": {Traits: map[string]TraitOverride{
				"chattiness":  {Anchor: f64(0), Min: f64(0), Max: f64(0)},
				"emoji_usage": {Anchor: f64(0.6), Elasticity: f64(0.6)},
			}},
			"rock": {Traits: map[string]TraitOverride{
				"tightness":  {Anchor: f64(0.8), Elasticity: f64(0.1)},
				"aggression": {Anchor: f64(0.3)},
			}},
			"maniac": {Traits: map[string]TraitOverride{
				"aggression":     {Anchor: f64(0.8), Elasticity: f64(0.6)},
				"bluff_tendency": {Anchor: f64(0.6)},
				"tightness":      {Anchor: f64(0.2)},
			}},
		},
		Events: map[string]map[string]float64{
			"bad_beat":       {"aggression": 0.5, "bluff_tendency": 0.2, "tightness": -0.2, "chattiness": 0.3},
			"big_win":        {"aggression": 0.2, "tightness": -0.1, "chattiness": 0.4, "emoji_usage": 0.4},
			"big_loss":       {"aggression": 0.3, "tightness": -0.3, "chattiness": -0.2},
			"bluff_caught":   {"bluff_tendency": -0.4, "chattiness": -0.2},
			"bluffed":        {"aggression": 0.3, "bluff_tendency": 0.2},
			"elimination":    {"aggression": -0.3, "chattiness": 0.3},
			"taunt_received": {"aggression": 0.3, "chattiness": 0.4, "emoji_usage": 0.2},
			"winning_streak": {"aggression": 0.2, "bluff_tendency": 0.3, "emoji_usage": 0.3},
			"losing_streak":  {"tightness": 0.3, "chattiness": -0.3},
			"friendly_chat":  {"aggression": -0.1, "chattiness": 0.3, "emoji_usage": 0.3},
		},
		Tilt: TiltConfig{
			DecayFactor: 0.85,
			Events: map[string]float64{
				"bad_beat":       0.25,
				"big_loss":       0.2,
				"bluffed":        0.15,
				"losing_streak":  0.15,
				"taunt_received": 0.1,
				"big_win":        -0.15,
				"winning_streak": -0.1,
				"friendly_chat":  -0.05,
			},
			Thresholds: TiltThresholds{Mild: 0.2, Moderate: 0.45, Severe: 0.7},
			Modifiers: map[TiltCategory][]ModifierTemplate{
				TiltModerate: {
					{Trait: "aggression", Delta: 0.1, Hands: 2},
				},
				TiltSevere: {
					{Trait: "aggression", Delta: 0.2, Hands: 3},
					{Trait: "tightness", Delta: -0.15, Hands: 3},
					{Trait: "chattiness", Delta: 0.2, Hands: 3},
				},
			},
		},
		Moods: MoodTable{
			Baseline:    "composed",
			Fallback:    "unsettled",
			NeutralBand: 0.05,
			Rules: []MoodRule{
				{Mood: "intense", When: []MoodCondition{
					{Trait: "aggression", Direction: DirectionUp, MinDeviation: 0.05},
					{Trait: "bluff_tendency", Direction: DirectionDown},
				}},
				{Mood: "reckless", When: []MoodCondition{
					{Trait: "aggression", Direction: DirectionUp, MinDeviation: 0.05},
					{Trait: "bluff_tendency", Direction: DirectionUp, MinDeviation: 0.05},
				}},
				{Mood: "confident", When: []MoodCondition{
					{Trait: "bluff_tendency", Direction: DirectionUp, MinDeviation: 0.05},
					{Trait: "tightness", Direction: DirectionDown},
				}},
				{Mood: "playful", When: []MoodCondition{
					{Trait: "chattiness", Direction: DirectionUp, MinDeviation: 0.05},
					{Trait: "emoji_usage", Direction: DirectionUp, MinDeviation: 0.05},
				}},
				{Mood: "cautious", When: []MoodCondition{
					{Trait: "tightness", Direction: DirectionUp, MinDeviation: 0.05},
					{Trait: "aggression", Direction: DirectionDown},
				}},
				{Mood: "withdrawn", When: []MoodCondition{
					{Trait: "chattiness", Direction: DirectionDown, MinDeviation: 0.05},
				}},
				{Mood: "aggressive", When: []MoodCondition{
					{Trait: "aggression", Direction: DirectionUp, MinDeviation: 0.1},
				}},
			},
		},
	}
	return c
}

func f64(v float64) *float64 {
	return &v
}
