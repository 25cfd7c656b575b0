package personality

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voyager.com/tiltengine/logging"
	"voyager.com/tiltengine/util"
)

var engineLogger = log.With().Str("logger_name", "personality::engine").Logger()

type playerEntry struct {
	state     *PersonalityState
	modifiers *ModifierStack
	// accepted events not yet written to the event log
	pending []PressureEvent
}

// TickResult is the outcome of one resolution tick for one player.
type TickResult struct {
	PlayerName  string
	View        PersonalityView
	Expired     []Modifier
	Triggered   *TiltTrigger
	Snapshot    *Snapshot
	PersistErr  error
	SnapshotErr error
}

type EngineOption func(*Engine)

func WithPublisher(publisher StatePublisher) EngineOption {
	return func(e *Engine) {
		e.publisher = publisher
	}
}

func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine owns the personality state of every AI player of one game. All
// mutations are serialized by the engine; readers only ever get copies of
// the last published views.
type Engine struct {
	gameID     uint64
	config     *Config
	ledger     *PressureLedger
	classifier *TiltClassifier
	recorder   *SnapshotRecorder
	store      Store
	publisher  StatePublisher
	now        func() time.Time
	logger     zerolog.Logger

	lock    sync.Mutex
	players map[string]*playerEntry

	viewLock sync.RWMutex
	views    map[string]PersonalityView

	degraded int32
}

func NewEngine(gameID uint64, config *Config, store Store, opts ...EngineOption) *Engine {
	if store == nil {
		store = NewMemoryStore()
	}
	e := &Engine{
		gameID:     gameID,
		config:     config,
		ledger:     NewPressureLedger(config),
		classifier: NewTiltClassifier(config),
		store:      store,
		now:        time.Now,
		logger:     engineLogger.With().Uint64(logging.GameIDKey, gameID).Logger(),
		players:    make(map[string]*playerEntry),
		views:      make(map[string]PersonalityView),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.recorder = NewSnapshotRecorder(store, e.now)
	return e
}

func (e *Engine) GameID() uint64 {
	return e.gameID
}

// Degraded is true while the last flush failed.
func (e *Engine) Degraded() bool {
	return atomic.LoadInt32(&e.degraded) == 1
}

// Join loads the persisted state of a player, or seeds it from the
// character profile when nothing is persisted. If the store is unavailable
// the player still joins from the seeded state and a
// PersistenceUnavailableError is returned along with the view.
func (e *Engine) Join(ctx context.Context, playerName string, character string) (PersonalityView, error) {
	if playerName == "" {
		return PersonalityView{}, errors.New("player name is empty")
	}
	e.lock.Lock()
	defer e.lock.Unlock()

	if entry, ok := e.players[playerName]; ok {
		return newView(entry.state, entry.modifiers.All()), nil
	}

	entry := &playerEntry{modifiers: NewModifierStack(e.config.MaxModifiersPerTrait)}
	var loadErr error
	persisted, err := e.store.Load(ctx, e.gameID, playerName)
	if err == nil {
		state := persisted.Controller
		state.GameID = e.gameID
		state.PlayerName = playerName
		entry.state = &state
		entry.modifiers.Restore(persisted.Emotional.Modifiers)
		e.logger.Info().Str(logging.PlayerNameKey, playerName).
			Uint32(logging.HandNumKey, state.LastTickHand).
			Msg("Restored personality state")
	} else {
		var notFound StateNotFoundError
		if !errors.As(err, &notFound) {
			util.Metrics.PersistenceFailed()
			atomic.StoreInt32(&e.degraded, 1)
			loadErr = PersistenceUnavailableError{GameID: e.gameID, Players: []string{playerName}, Err: err}
			e.logger.Error().Err(err).Str(logging.PlayerNameKey, playerName).
				Msg("Unable to load personality state. Starting from the character profile.")
		}
		traits, err := e.config.TraitsFor(character)
		if err != nil {
			return PersonalityView{}, err
		}
		entry.state = &PersonalityState{
			GameID:       e.gameID,
			PlayerName:   playerName,
			Character:    character,
			Traits:       traits,
			TiltCategory: TiltNone,
		}
	}

	state := entry.state
	ResolveAll(state)
	if state.TiltCategory == "" {
		state.TiltCategory = e.classifier.Category(state.TiltLevel)
	}
	entry.modifiers.Overlay(state)
	state.Mood = e.classifier.Mood(state)
	e.players[playerName] = entry
	return e.publish(entry, entry.modifiers.All()), loadErr
}

// Leave flushes the player's state and forgets it. When the flush fails the
// player and its unlogged events are kept and a PersistenceUnavailableError
// is returned.
func (e *Engine) Leave(ctx context.Context, playerName string) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[playerName]
	if !ok {
		return PlayerNotFoundError{GameID: e.gameID, PlayerName: playerName}
	}
	if err := e.flush(ctx, entry, entry.modifiers.All()); err != nil {
		// the player stays so that Leave can be retried
		atomic.StoreInt32(&e.degraded, 1)
		return PersistenceUnavailableError{GameID: e.gameID, Players: []string{playerName}, Err: err}
	}
	delete(e.players, playerName)
	e.viewLock.Lock()
	delete(e.views, playerName)
	e.viewLock.Unlock()
	return nil
}

// ApplyEvent feeds one pressure event into the ledger and the tilt level.
// The resolved values only change at the next Tick.
func (e *Engine) ApplyEvent(event PressureEvent) error {
	if event.GameID == 0 {
		event.GameID = e.gameID
	} else if event.GameID != e.gameID {
		util.Metrics.EventRejected()
		return InvalidEventError{EventType: event.EventType, Msg: "event belongs to another game"}
	}

	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[event.PlayerName]
	if !ok {
		util.Metrics.EventRejected()
		return PlayerNotFoundError{GameID: e.gameID, PlayerName: event.PlayerName}
	}
	if err := e.ledger.Apply(event, entry.state); err != nil {
		util.Metrics.EventRejected()
		e.logger.Warn().Str(logging.PlayerNameKey, event.PlayerName).
			Str(logging.EventTypeKey, event.EventType).
			Msgf("Rejected pressure event: %s", err)
		return err
	}
	e.classifier.UpdateTilt(entry.state, event)

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	entry.pending = append(entry.pending, event)
	util.Metrics.EventApplied()
	e.logger.Debug().Str(logging.PlayerNameKey, event.PlayerName).
		Str(logging.EventTypeKey, event.EventType).
		Uint32(logging.HandNumKey, event.HandNumber).
		Float64("magnitude", event.Magnitude).
		Float64("tiltLevel", entry.state.TiltLevel).
		Msg("Applied pressure event")
	return nil
}

// PushModifier adds a caller-defined overlay to one of the player's traits.
func (e *Engine) PushModifier(playerName string, m Modifier) (Modifier, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[playerName]
	if !ok {
		return Modifier{}, PlayerNotFoundError{GameID: e.gameID, PlayerName: playerName}
	}
	if entry.state.Trait(m.TraitName) == nil {
		util.Metrics.ModifierRejected()
		return Modifier{}, InvalidModifierError{TraitName: m.TraitName, Msg: "unknown trait"}
	}
	m.PushedAtHand = entry.state.LastTickHand
	pushed, err := entry.modifiers.Push(m, e.now())
	if err != nil {
		util.Metrics.ModifierRejected()
		return Modifier{}, err
	}
	util.Metrics.ModifierPushed()
	e.refresh(entry)
	return pushed, nil
}

// ExpireOldestModifier drops the oldest modifier of a trait, for callers
// that prefer evicting over rejecting when a stack is full.
func (e *Engine) ExpireOldestModifier(playerName string, traitName string) (Modifier, bool, error) {
	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[playerName]
	if !ok {
		return Modifier{}, false, PlayerNotFoundError{GameID: e.gameID, PlayerName: playerName}
	}
	m, ok := entry.modifiers.ExpireOldest(traitName)
	if ok {
		e.refresh(entry)
	}
	return m, ok, nil
}

// Tick runs one resolution for every player at a hand boundary. Ticks always
// complete; persistence failures are reported per player and summarized in
// a PersistenceUnavailableError.
func (e *Engine) Tick(ctx context.Context, handNumber uint32) ([]TickResult, error) {
	e.lock.Lock()
	defer e.lock.Unlock()

	names := make([]string, 0, len(e.players))
	for name := range e.players {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make([]TickResult, 0, len(names))
	var failed []string
	var firstErr error
	for _, name := range names {
		result := e.tickPlayer(ctx, e.players[name], handNumber)
		if result.PersistErr != nil {
			failed = append(failed, name)
			if firstErr == nil {
				firstErr = result.PersistErr
			}
		}
		results = append(results, result)
	}

	if len(failed) > 0 {
		atomic.StoreInt32(&e.degraded, 1)
		return results, PersistenceUnavailableError{GameID: e.gameID, Players: failed, Err: firstErr}
	}
	atomic.StoreInt32(&e.degraded, 0)
	return results, nil
}

func (e *Engine) tickPlayer(ctx context.Context, entry *playerEntry, handNumber uint32) TickResult {
	state := entry.state
	now := e.now()
	elapsed := e.handsElapsed(state, handNumber)

	// events of the hand that just ended are resolved in full
	e.ledger.Decay(state, elapsed)
	e.classifier.DecayTilt(state, elapsed)
	result := TickResult{PlayerName: state.PlayerName}
	result.Expired = entry.modifiers.Tick(elapsed, now)
	ResolveAll(state)

	category := e.classifier.Category(state.TiltLevel)
	if category.Rank() > state.TiltCategory.Rank() {
		trigger := e.triggerTilt(entry, state.TiltCategory, category, handNumber, now)
		result.Triggered = &trigger
	}
	state.TiltCategory = category
	entry.modifiers.Overlay(state)
	state.Mood = e.classifier.Mood(state)
	state.LastTickHand = handNumber
	state.Ticks++
	util.Metrics.ResolutionTick()

	mods := entry.modifiers.All()
	result.PersistErr = e.flush(ctx, entry, mods)

	if e.config.SnapshotEveryHands > 0 && handNumber%e.config.SnapshotEveryHands == 0 {
		snapshot, err := e.recorder.Record(ctx, state, mods, handNumber)
		if err != nil {
			util.Metrics.SnapshotFailed()
			result.SnapshotErr = err
			e.logger.Warn().Err(err).Str(logging.PlayerNameKey, state.PlayerName).
				Uint32(logging.HandNumKey, handNumber).Msg("Snapshot was not stored")
		} else {
			util.Metrics.SnapshotRecorded()
			result.Snapshot = &snapshot
		}
	}

	result.View = e.publish(entry, mods)
	return result
}

// handsElapsed is the number of hands since the player's previous boundary.
// A player's first boundary counts as one hand.
func (e *Engine) handsElapsed(state *PersonalityState, handNumber uint32) uint32 {
	switch {
	case state.Ticks == 0:
		return 1
	case handNumber > state.LastTickHand:
		return handNumber - state.LastTickHand
	case handNumber < state.LastTickHand:
		e.logger.Warn().Str(logging.PlayerNameKey, state.PlayerName).
			Uint32(logging.HandNumKey, handNumber).
			Msgf("Hand number went backwards (last tick %d)", state.LastTickHand)
	}
	return 0
}

func (e *Engine) triggerTilt(entry *playerEntry, from TiltCategory, to TiltCategory, handNumber uint32, now time.Time) TiltTrigger {
	state := entry.state
	trigger := TiltTrigger{
		HandNumber: handNumber,
		From:       from,
		To:         to,
		TiltLevel:  state.TiltLevel,
		At:         now,
	}
	for _, template := range e.config.Tilt.Modifiers[to] {
		if state.Trait(template.Trait) == nil {
			continue
		}
		m := Modifier{
			TraitName:         template.Trait,
			Delta:             template.Delta,
			Exclusive:         template.Exclusive,
			ExpiresAfterHands: template.Hands,
			SourceEvent:       "tilt_" + string(to),
			PushedAtHand:      handNumber,
		}
		if template.Override != nil {
			o := *template.Override
			m.Override = &o
		}
		pushed, err := entry.modifiers.Push(m, now)
		if err != nil {
			// the new modifier is dropped, active ones are kept
			util.Metrics.ModifierRejected()
			e.logger.Warn().Str(logging.PlayerNameKey, state.PlayerName).
				Str(logging.TraitKey, template.Trait).
				Msgf("Tilt modifier not pushed: %s", err)
			continue
		}
		util.Metrics.ModifierPushed()
		trigger.Modifiers = append(trigger.Modifiers, pushed.ID)
	}
	state.addTrigger(trigger, e.config.MaxTriggerHistory)
	e.logger.Info().Str(logging.PlayerNameKey, state.PlayerName).
		Uint32(logging.HandNumKey, handNumber).
		Float64("tiltLevel", state.TiltLevel).
		Msgf("Tilt escalated from %s to %s", from, to)
	return trigger
}

// refresh re-applies modifiers after a stack change outside of a tick.
func (e *Engine) refresh(entry *playerEntry) {
	entry.modifiers.Overlay(entry.state)
	entry.state.Mood = e.classifier.Mood(entry.state)
	e.publish(entry, entry.modifiers.All())
}

func (e *Engine) flush(ctx context.Context, entry *playerEntry, mods []Modifier) error {
	if len(entry.pending) > 0 {
		if err := e.store.AppendEvents(ctx, entry.pending); err != nil {
			util.Metrics.PersistenceFailed()
			e.logger.Error().Err(err).Str(logging.PlayerNameKey, entry.state.PlayerName).
				Msgf("Unable to log %d pressure events", len(entry.pending))
			return err
		}
		entry.pending = nil
	}
	if err := e.store.Save(ctx, newPersisted(entry.state, mods)); err != nil {
		util.Metrics.PersistenceFailed()
		e.logger.Error().Err(err).Str(logging.PlayerNameKey, entry.state.PlayerName).
			Msg("Unable to flush personality state")
		return err
	}
	return nil
}

// Flush writes every player's state to the store.
func (e *Engine) Flush(ctx context.Context) error {
	e.lock.Lock()
	defer e.lock.Unlock()
	var failed []string
	var firstErr error
	for name, entry := range e.players {
		if err := e.flush(ctx, entry, entry.modifiers.All()); err != nil {
			failed = append(failed, name)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if len(failed) > 0 {
		sort.Strings(failed)
		atomic.StoreInt32(&e.degraded, 1)
		return PersistenceUnavailableError{GameID: e.gameID, Players: failed, Err: firstErr}
	}
	atomic.StoreInt32(&e.degraded, 0)
	return nil
}

func (e *Engine) publish(entry *playerEntry, mods []Modifier) PersonalityView {
	view := newView(entry.state, mods)
	e.viewLock.Lock()
	e.views[view.PlayerName] = view
	e.viewLock.Unlock()
	if e.publisher != nil {
		if err := e.publisher.PublishState(view.Clone()); err != nil {
			e.logger.Warn().Err(err).Str(logging.PlayerNameKey, view.PlayerName).Msg("Unable to publish personality state")
		}
	}
	return view.Clone()
}

// View returns a copy of the last published view of a player.
func (e *Engine) View(playerName string) (PersonalityView, bool) {
	e.viewLock.RLock()
	defer e.viewLock.RUnlock()
	v, ok := e.views[playerName]
	if !ok {
		return PersonalityView{}, false
	}
	return v.Clone(), true
}

// Views returns copies of all published views ordered by player name.
func (e *Engine) Views() []PersonalityView {
	e.viewLock.RLock()
	defer e.viewLock.RUnlock()
	views := make([]PersonalityView, 0, len(e.views))
	for _, v := range e.views {
		views = append(views, v.Clone())
	}
	sort.Slice(views, func(i, j int) bool { return views[i].PlayerName < views[j].PlayerName })
	return views
}

// State returns a deep copy of the live state of a player.
func (e *Engine) State(playerName string) (*PersonalityState, bool) {
	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[playerName]
	if !ok {
		return nil, false
	}
	return entry.state.Clone(), true
}

// Modifiers returns a copy of the active modifiers of a player.
func (e *Engine) Modifiers(playerName string) []Modifier {
	e.lock.Lock()
	defer e.lock.Unlock()
	entry, ok := e.players[playerName]
	if !ok {
		return nil
	}
	return entry.modifiers.All()
}

func (e *Engine) Players() []string {
	e.lock.Lock()
	defer e.lock.Unlock()
	names := make([]string, 0, len(e.players))
	for name := range e.players {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
