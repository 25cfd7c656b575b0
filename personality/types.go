package personality

import (
	"time"
)

// Mood is the label derived from the direction of a player's trait deviations.
type Mood string

// TiltCategory buckets the cumulative tilt level.
type TiltCategory string

const (
	TiltNone     TiltCategory = "none"
	TiltMild     TiltCategory = "mild"
	TiltModerate TiltCategory = "moderate"
	TiltSevere   TiltCategory = "severe"
)

// Rank orders tilt categories from calm (0) to severe (3).
func (c TiltCategory) Rank() int {
	switch c {
	case TiltMild:
		return 1
	case TiltModerate:
		return 2
	case TiltSevere:
		return 3
	default:
		return 0
	}
}

// PressureEvent is produced by the game engine after a hand or notable action.
// The engine does not deduplicate events; callers that may redeliver must
// de-duplicate by ID.
type PressureEvent struct {
	ID         string                 `json:"id"`
	GameID     uint64                 `json:"game_id"`
	PlayerName string                 `json:"player_name"`
	EventType  string                 `json:"event_type"`
	Magnitude  float64                `json:"magnitude"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HandNumber uint32                 `json:"hand_number"`
	Timestamp  time.Time              `json:"timestamp"`
}

// TiltTrigger records a tilt category escalation and the modifiers it pushed.
type TiltTrigger struct {
	HandNumber uint32       `json:"hand_number"`
	From       TiltCategory `json:"from"`
	To         TiltCategory `json:"to"`
	TiltLevel  float64      `json:"tilt_level"`
	Modifiers  []string     `json:"modifiers,omitempty"`
	At         time.Time    `json:"at"`
}

// PersonalityState is the live state of one player in one game. It is owned
// by exactly one Engine; everything handed out to readers is a copy.
type PersonalityState struct {
	GameID       uint64        `json:"game_id"`
	PlayerName   string        `json:"player_name"`
	Character    string        `json:"character"`
	Traits       []Trait       `json:"traits"`
	Mood         Mood          `json:"mood"`
	TiltLevel    float64       `json:"tilt_level"`
	SettledTilt  float64       `json:"settled_tilt"`
	TiltCategory TiltCategory  `json:"tilt_category"`
	Triggers     []TiltTrigger `json:"triggers,omitempty"`
	LastTickHand uint32        `json:"last_tick_hand"`
	Ticks        uint64        `json:"ticks"`
}

// Trait returns a pointer to the named trait, or nil.
func (s *PersonalityState) Trait(name string) *Trait {
	for i := range s.Traits {
		if s.Traits[i].Name == name {
			return &s.Traits[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the state.
func (s *PersonalityState) Clone() *PersonalityState {
	c := *s
	c.Traits = make([]Trait, len(s.Traits))
	for i, t := range s.Traits {
		c.Traits[i] = t.clone()
	}
	if s.Triggers != nil {
		c.Triggers = make([]TiltTrigger, len(s.Triggers))
		for i, tr := range s.Triggers {
			c.Triggers[i] = tr
			c.Triggers[i].Modifiers = append([]string(nil), tr.Modifiers...)
		}
	}
	return &c
}

func (s *PersonalityState) addTrigger(tr TiltTrigger, limit int) {
	s.Triggers = append(s.Triggers, tr)
	if limit > 0 && len(s.Triggers) > limit {
		s.Triggers = append([]TiltTrigger(nil), s.Triggers[len(s.Triggers)-limit:]...)
	}
}

// EmotionalSummary is the persisted tilt/mood record of a player.
type EmotionalSummary struct {
	GameID       uint64        `json:"game_id"`
	PlayerName   string        `json:"player_name"`
	TiltLevel    float64       `json:"tilt_level"`
	TiltCategory TiltCategory  `json:"tilt_category"`
	Mood         Mood          `json:"mood"`
	Triggers     []TiltTrigger `json:"triggers,omitempty"`
	Modifiers    []Modifier    `json:"modifiers,omitempty"`
}

// TraitView is the read-only projection of a trait handed to collaborators.
// Decision logic reads Effective.
type TraitView struct {
	Current    float64 `json:"current"`
	Effective  float64 `json:"effective"`
	Anchor     float64 `json:"anchor"`
	Elasticity float64 `json:"elasticity"`
	Pressure   float64 `json:"pressure"`
	Min        float64 `json:"min"`
	Max        float64 `json:"max"`
}

// PersonalityView is the immutable copy published after every resolution.
type PersonalityView struct {
	GameID       uint64               `json:"game_id"`
	PlayerName   string               `json:"player_name"`
	Character    string               `json:"character"`
	HandNumber   uint32               `json:"hand_number"`
	TraitOrder   []string             `json:"trait_order"`
	Traits       map[string]TraitView `json:"traits"`
	Mood         Mood                 `json:"mood"`
	TiltLevel    float64              `json:"tilt_level"`
	TiltCategory TiltCategory         `json:"tilt_category"`
	Modifiers    []Modifier           `json:"modifiers,omitempty"`
}

// Clone returns a deep copy of the view.
func (v PersonalityView) Clone() PersonalityView {
	c := v
	c.TraitOrder = append([]string(nil), v.TraitOrder...)
	c.Traits = make(map[string]TraitView, len(v.Traits))
	for k, t := range v.Traits {
		c.Traits[k] = t
	}
	c.Modifiers = cloneModifiers(v.Modifiers)
	return c
}

func newView(s *PersonalityState, mods []Modifier) PersonalityView {
	v := PersonalityView{
		GameID:       s.GameID,
		PlayerName:   s.PlayerName,
		Character:    s.Character,
		HandNumber:   s.LastTickHand,
		TraitOrder:   make([]string, 0, len(s.Traits)),
		Traits:       make(map[string]TraitView, len(s.Traits)),
		Mood:         s.Mood,
		TiltLevel:    s.TiltLevel,
		TiltCategory: s.TiltCategory,
		Modifiers:    cloneModifiers(mods),
	}
	for _, t := range s.Traits {
		v.TraitOrder = append(v.TraitOrder, t.Name)
		v.Traits[t.Name] = TraitView{
			Current:    t.Current,
			Effective:  t.Effective,
			Anchor:     t.Anchor,
			Elasticity: t.Elasticity,
			Pressure:   t.Pressure,
			Min:        t.Min,
			Max:        t.Max,
		}
	}
	return v
}

// StatePublisher pushes resolved views to observers (UI, prompt builder).
type StatePublisher interface {
	PublishState(view PersonalityView) error
}

// ViewArchive keeps the final views of games that have ended.
type ViewArchive interface {
	Add(view PersonalityView)
	Get(gameID uint64, playerName string) (PersonalityView, bool)
}
