package personality

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	cmap "github.com/orcaman/concurrent-map"
	"github.com/rs/zerolog/log"

	"voyager.com/tiltengine/logging"
	"voyager.com/tiltengine/util"
)

var managerLogger = log.With().Str("logger_name", "personality::manager").Logger()

type ManagerOption func(*Manager)

func WithStatePublisher(publisher StatePublisher) ManagerOption {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, WithPublisher(publisher))
	}
}

func WithViewArchive(archive ViewArchive) ManagerOption {
	return func(m *Manager) {
		m.archive = archive
	}
}

func WithEngineOptions(opts ...EngineOption) ManagerOption {
	return func(m *Manager) {
		m.engineOpts = append(m.engineOpts, opts...)
	}
}

// Manager holds one Engine per running game. Games never share state.
type Manager struct {
	config     *Config
	store      Store
	archive    ViewArchive
	engineOpts []EngineOption
	engines    cmap.ConcurrentMap
}

func NewManager(config *Config, store Store, opts ...ManagerOption) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	m := &Manager{
		config:  config,
		store:   store,
		engines: cmap.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func gameKey(gameID uint64) string {
	return fmt.Sprintf("%d", gameID)
}

func (m *Manager) Store() Store {
	return m.store
}

func (m *Manager) Config() *Config {
	return m.config
}

// Engine returns the engine of a game, creating it on first use.
func (m *Manager) Engine(gameID uint64) *Engine {
	key := gameKey(gameID)
	if e, ok := m.engines.Get(key); ok {
		return e.(*Engine)
	}
	engine := NewEngine(gameID, m.config, m.store, m.engineOpts...)
	if m.engines.SetIfAbsent(key, engine) {
		util.Metrics.SetActiveEngines(m.engines.Count())
		managerLogger.Info().Uint64(logging.GameIDKey, gameID).Msg("Personality engine created")
		return engine
	}
	e, _ := m.engines.Get(key)
	return e.(*Engine)
}

func (m *Manager) GetEngine(gameID uint64) (*Engine, bool) {
	e, ok := m.engines.Get(gameKey(gameID))
	if !ok {
		return nil, false
	}
	return e.(*Engine), true
}

// EndGame flushes the game's engine and removes it. The final views stay
// readable through the view archive. If the flush fails the engine is kept
// with its unlogged events and EndGame can be called again.
func (m *Manager) EndGame(ctx context.Context, gameID uint64) error {
	key := gameKey(gameID)
	e, ok := m.engines.Get(key)
	if !ok {
		return nil
	}
	engine := e.(*Engine)
	if err := engine.Flush(ctx); err != nil {
		managerLogger.Error().Err(err).Uint64(logging.GameIDKey, gameID).Msg("Final flush failed. Keeping the engine.")
		return err
	}
	if m.archive != nil {
		for _, view := range engine.Views() {
			m.archive.Add(view)
		}
	}
	m.engines.Remove(key)
	util.Metrics.SetActiveEngines(m.engines.Count())
	managerLogger.Info().Uint64(logging.GameIDKey, gameID).Msg("Personality engine removed")
	return nil
}

// View returns the latest view of a player, falling back to the archive for
// games that have ended.
func (m *Manager) View(gameID uint64, playerName string) (PersonalityView, bool) {
	if engine, ok := m.GetEngine(gameID); ok {
		if v, ok := engine.View(playerName); ok {
			return v, true
		}
	}
	if m.archive != nil {
		return m.archive.Get(gameID, playerName)
	}
	return PersonalityView{}, false
}

func (m *Manager) GameIDs() []uint64 {
	keys := m.engines.Keys()
	ids := make([]uint64, 0, len(keys))
	for _, key := range keys {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
