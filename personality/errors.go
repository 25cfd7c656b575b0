package personality

import "fmt"

type InvalidEventError struct {
	EventType string
	Msg       string
}

func (e InvalidEventError) Error() string {
	return fmt.Sprintf("Invalid pressure event [%s]: %s", e.EventType, e.Msg)
}

type InvalidModifierError struct {
	TraitName string
	Msg       string
}

func (e InvalidModifierError) Error() string {
	return fmt.Sprintf("Invalid modifier for trait [%s]: %s", e.TraitName, e.Msg)
}

type ModifierStackFullError struct {
	TraitName string
	MaxDepth  int
}

func (e ModifierStackFullError) Error() string {
	return fmt.Sprintf("Modifier stack for trait [%s] is full (max %d)", e.TraitName, e.MaxDepth)
}

// PersistenceUnavailableError is returned when loading or flushing state
// failed. The engine keeps running from its in-memory state.
type PersistenceUnavailableError struct {
	GameID  uint64
	Players []string
	Err     error
}

func (e PersistenceUnavailableError) Error() string {
	return fmt.Sprintf("Personality persistence unavailable for game %d players %v: %v", e.GameID, e.Players, e.Err)
}

func (e PersistenceUnavailableError) Unwrap() error {
	return e.Err
}

type PlayerNotFoundError struct {
	GameID     uint64
	PlayerName string
}

func (e PlayerNotFoundError) Error() string {
	return fmt.Sprintf("Player [%s] has not joined game %d", e.PlayerName, e.GameID)
}

type StateNotFoundError struct {
	GameID     uint64
	PlayerName string
}

func (e StateNotFoundError) Error() string {
	return fmt.Sprintf("Personality state for game %d player [%s] is not found", e.GameID, e.PlayerName)
}

type InvalidConfigError struct {
	Msg string
}

func (e InvalidConfigError) Error() string {
	return "Invalid personality config: " + e.Msg
}
