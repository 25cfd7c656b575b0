package personality

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Snapshot is an immutable point-in-time copy of a player's personality.
type Snapshot struct {
	ID           string       `json:"id"`
	GameID       uint64       `json:"game_id"`
	PlayerName   string       `json:"player_name"`
	Character    string       `json:"character"`
	HandNumber   uint32       `json:"hand_number"`
	RecordedAt   time.Time    `json:"recorded_at"`
	Traits       []Trait      `json:"traits"`
	TiltLevel    float64      `json:"tilt_level"`
	TiltCategory TiltCategory `json:"tilt_category"`
	Mood         Mood         `json:"mood"`
	Modifiers    []Modifier   `json:"modifiers,omitempty"`
}

// SnapshotSink is the append-only destination of snapshots.
type SnapshotSink interface {
	AppendSnapshot(ctx context.Context, snapshot Snapshot) error
}

type SnapshotRecorder struct {
	sink SnapshotSink
	now  func() time.Time
}

func NewSnapshotRecorder(sink SnapshotSink, now func() time.Time) *SnapshotRecorder {
	if now == nil {
		now = time.Now
	}
	return &SnapshotRecorder{sink: sink, now: now}
}

// Record captures a deep copy of the state and appends it to the sink. A
// failed append is returned to the caller and not retried; the snapshot is
// returned either way.
func (r *SnapshotRecorder) Record(ctx context.Context, state *PersonalityState, modifiers []Modifier, handNumber uint32) (Snapshot, error) {
	copied := state.Clone()
	snapshot := Snapshot{
		ID:           uuid.New().String(),
		GameID:       copied.GameID,
		PlayerName:   copied.PlayerName,
		Character:    copied.Character,
		HandNumber:   handNumber,
		RecordedAt:   r.now(),
		Traits:       copied.Traits,
		TiltLevel:    copied.TiltLevel,
		TiltCategory: copied.TiltCategory,
		Mood:         copied.Mood,
		Modifiers:    cloneModifiers(modifiers),
	}
	if r.sink == nil {
		return snapshot, nil
	}
	// the sink gets its own copy
	stored := snapshot
	stored.Traits = state.Clone().Traits
	stored.Modifiers = cloneModifiers(modifiers)
	if err := r.sink.AppendSnapshot(ctx, stored); err != nil {
		return snapshot, errors.Wrapf(err, "Unable to store snapshot for player %s hand %d", snapshot.PlayerName, handNumber)
	}
	return snapshot, nil
}
