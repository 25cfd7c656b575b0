package personality

import (
	"context"

	jsoniter "github.com/json-iterator/go"
)

const (
	StateTypeController = "controller"
	StateTypeEmotional  = "emotional"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// PersistedPersonality is the live-state record of one (game, player):
// the elastic controller state and the emotional summary.
type PersistedPersonality struct {
	Controller PersonalityState
	Emotional  EmotionalSummary
}

// Store persists live state (unique per game and player), the append-only
// pressure event log and the append-only snapshot history.
type Store interface {
	SnapshotSink
	Load(ctx context.Context, gameID uint64, playerName string) (*PersistedPersonality, error)
	Save(ctx context.Context, p *PersistedPersonality) error
	AppendEvents(ctx context.Context, events []PressureEvent) error
	ListSnapshots(ctx context.Context, gameID uint64, playerName string) ([]Snapshot, error)
}

func newPersisted(state *PersonalityState, modifiers []Modifier) *PersistedPersonality {
	s := state.Clone()
	return &PersistedPersonality{
		Controller: *s,
		Emotional: EmotionalSummary{
			GameID:       s.GameID,
			PlayerName:   s.PlayerName,
			TiltLevel:    s.TiltLevel,
			TiltCategory: s.TiltCategory,
			Mood:         s.Mood,
			Triggers:     s.Triggers,
			Modifiers:    cloneModifiers(modifiers),
		},
	}
}
