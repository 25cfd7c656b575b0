package personality

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyStore struct {
	*MemoryStore
	failSaves     bool
	failSnapshots bool
	failLoads     bool
}

var errStoreDown = errors.New("store is down")

func (f *flakyStore) Load(ctx context.Context, gameID uint64, playerName string) (*PersistedPersonality, error) {
	if f.failLoads {
		return nil, errStoreDown
	}
	return f.MemoryStore.Load(ctx, gameID, playerName)
}

func (f *flakyStore) Save(ctx context.Context, p *PersistedPersonality) error {
	if f.failSaves {
		return errStoreDown
	}
	return f.MemoryStore.Save(ctx, p)
}

func (f *flakyStore) AppendEvents(ctx context.Context, events []PressureEvent) error {
	if f.failSaves {
		return errStoreDown
	}
	return f.MemoryStore.AppendEvents(ctx, events)
}

func (f *flakyStore) AppendSnapshot(ctx context.Context, snapshot Snapshot) error {
	if f.failSnapshots {
		return errStoreDown
	}
	return f.MemoryStore.AppendSnapshot(ctx, snapshot)
}

type recordingPublisher struct {
	lock  sync.Mutex
	views []PersonalityView
}

func (p *recordingPublisher) PublishState(view PersonalityView) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.views = append(p.views, view)
	return nil
}

func batmanConfig(t *testing.T) *Config {
	config, err := ParseConfig("testdata/batman.yaml")
	require.NoError(t, err)
	return config
}

func newTestEngine(t *testing.T, config *Config, store Store, opts ...EngineOption) *Engine {
	opts = append([]EngineOption{WithClock(func() time.Time { return testNow })}, opts...)
	return NewEngine(1, config, store, opts...)
}

func badBeat(player string, magnitude float64, hand uint32) PressureEvent {
	return PressureEvent{PlayerName: player, EventType: "bad_beat", Magnitude: magnitude, HandNumber: hand}
}

func TestBatmanBadBeat(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, batmanConfig(t), nil)

	view, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, view.Traits["aggression"].Current, 1e-9)

	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 1)))

	// nothing changes until the tick
	view, _ = e.View("batman")
	assert.InDelta(t, 0.5, view.Traits["aggression"].Current, 1e-9)

	results, err := e.Tick(ctx, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	aggression := results[0].View.Traits["aggression"]
	assert.InDelta(t, 0.5, aggression.Pressure, 1e-9)
	assert.InDelta(t, 0.7, aggression.Current, 1e-9)
	assert.InDelta(t, 0.7, aggression.Effective, 1e-9)
	assert.Equal(t, Mood("aggressive"), results[0].View.Mood)

	// chattiness is pinned
	assert.Equal(t, 0.2, results[0].View.Traits["chattiness"].Current)

	results, err = e.Tick(ctx, 2)
	require.NoError(t, err)
	aggression = results[0].View.Traits["aggression"]
	assert.InDelta(t, 0.25, aggression.Pressure, 1e-9)
	assert.InDelta(t, 0.6, aggression.Current, 1e-9)
	assert.Equal(t, uint32(2), results[0].View.HandNumber)
}

func TestEventsOfTheEndingHandAreNotDecayed(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, batmanConfig(t), nil)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)

	_, err = e.Tick(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 2)))

	results, err := e.Tick(ctx, 2)
	require.NoError(t, err)
	view := results[0].View
	assert.InDelta(t, 0.5, view.Traits["aggression"].Pressure, 1e-9)
	assert.InDelta(t, 0.7, view.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.3, view.TiltLevel, 1e-9)
	assert.Equal(t, TiltMild, view.TiltCategory)

	results, err = e.Tick(ctx, 3)
	require.NoError(t, err)
	view = results[0].View
	assert.InDelta(t, 0.25, view.Traits["aggression"].Pressure, 1e-9)
	assert.InDelta(t, 0.6, view.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.27, view.TiltLevel, 1e-9)

	// settled pressure decays over the skipped hands, the new event does not
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 4)))
	results, err = e.Tick(ctx, 5)
	require.NoError(t, err)
	view = results[0].View
	assert.InDelta(t, 0.5625, view.Traits["aggression"].Pressure, 1e-9)
	assert.InDelta(t, 0.725, view.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.27*0.81+0.3, view.TiltLevel, 1e-9)
	assert.Equal(t, TiltModerate, view.TiltCategory)
}

func TestSkippedHandsDecayAtOnce(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, batmanConfig(t), nil)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 40)))

	results, err := e.Tick(ctx, 40)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, results[0].View.Traits["aggression"].Pressure, 1e-9)

	results, err = e.Tick(ctx, 43)
	require.NoError(t, err)
	assert.InDelta(t, 0.0625, results[0].View.Traits["aggression"].Pressure, 1e-9)
}

func TestApplyEventErrors(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, batmanConfig(t), nil)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)

	var notFound PlayerNotFoundError
	assert.ErrorAs(t, e.ApplyEvent(badBeat("robin", 1, 1)), &notFound)

	var invalid InvalidEventError
	other := badBeat("batman", 1, 1)
	other.GameID = 2
	assert.ErrorAs(t, e.ApplyEvent(other), &invalid)
	assert.ErrorAs(t, e.ApplyEvent(badBeat("batman", 6, 1)), &invalid)

	state, ok := e.State("batman")
	require.True(t, ok)
	assert.Equal(t, 0.0, state.Trait("aggression").Pressure)
	assert.Equal(t, 0.0, state.TiltLevel)
}

func TestWriteThrough(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(t, batmanConfig(t), store)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 1)))

	results, err := e.Tick(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, results[0].Snapshot)

	persisted, err := store.Load(ctx, 1, "batman")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, persisted.Controller.Trait("aggression").Current, 1e-9)
	assert.Equal(t, uint32(1), persisted.Controller.LastTickHand)
	assert.InDelta(t, 0.3, persisted.Emotional.TiltLevel, 1e-9)
	assert.Equal(t, TiltMild, persisted.Emotional.TiltCategory)

	events, err := store.Events(1, "batman")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, uint64(1), events[0].GameID)
	assert.True(t, testNow.Equal(events[0].Timestamp))

	snapshots, err := store.ListSnapshots(ctx, 1, "batman")
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, results[0].Snapshot.ID, snapshots[0].ID)
}

func TestPersistenceFailureDegrades(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	e := newTestEngine(t, batmanConfig(t), store)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 1)))

	store.failSaves = true
	results, err := e.Tick(ctx, 1)
	var unavailable PersistenceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []string{"batman"}, unavailable.Players)
	assert.True(t, e.Degraded())
	require.Len(t, results, 1)
	assert.Error(t, results[0].PersistErr)

	// the tick still resolved and published
	assert.InDelta(t, 0.7, results[0].View.Traits["aggression"].Current, 1e-9)
	view, ok := e.View("batman")
	require.True(t, ok)
	assert.InDelta(t, 0.7, view.Traits["aggression"].Current, 1e-9)

	store.failSaves = false
	_, err = e.Tick(ctx, 2)
	require.NoError(t, err)
	assert.False(t, e.Degraded())

	// the queued event was written on the retry
	events, err := store.Events(1, "batman")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSnapshotFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failSnapshots: true}
	e := newTestEngine(t, batmanConfig(t), store)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)

	results, err := e.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Error(t, results[0].SnapshotErr)
	assert.Nil(t, results[0].Snapshot)
	assert.False(t, e.Degraded())
}

func TestJoinWithUnavailableStore(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failLoads: true}
	e := newTestEngine(t, batmanConfig(t), store)

	view, err := e.Join(ctx, "batman", "")
	var unavailable PersistenceUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "batman", view.PlayerName)
	assert.True(t, e.Degraded())
	assert.Equal(t, []string{"batman"}, e.Players())
}

func TestJoinRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	config := batmanConfig(t)

	first := newTestEngine(t, config, store)
	_, err := first.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, first.ApplyEvent(badBeat("batman", 1.0, 1)))
	_, err = first.PushModifier("batman", Modifier{TraitName: "aggression", Delta: -0.2, ExpiresAfterHands: 5})
	require.NoError(t, err)
	_, err = first.Tick(ctx, 1)
	require.NoError(t, err)

	second := newTestEngine(t, config, store)
	view, err := second.Join(ctx, "batman", "")
	require.NoError(t, err)
	assert.InDelta(t, 0.7, view.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.5, view.Traits["aggression"].Effective, 1e-9)
	assert.Equal(t, uint32(1), view.HandNumber)
	require.Len(t, view.Modifiers, 1)

	results, err := second.Tick(ctx, 2)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, results[0].View.Traits["aggression"].Current, 1e-9)

	// a new event after the restore counts in full at its own boundary
	require.NoError(t, second.ApplyEvent(badBeat("batman", 1.0, 3)))
	results, err = second.Tick(ctx, 3)
	require.NoError(t, err)
	assert.InDelta(t, 0.625, results[0].View.Traits["aggression"].Pressure, 1e-9)
	assert.InDelta(t, 0.75, results[0].View.Traits["aggression"].Current, 1e-9)
}

func TestTiltTrigger(t *testing.T) {
	ctx := context.Background()
	config := batmanConfig(t)
	config.Traits[0].Elasticity = 0.1
	e := newTestEngine(t, config, nil)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)

	require.NoError(t, e.ApplyEvent(badBeat("batman", 2.0, 1)))
	results, err := e.Tick(ctx, 1)
	require.NoError(t, err)
	r := results[0]
	require.NotNil(t, r.Triggered)
	assert.Equal(t, TiltNone, r.Triggered.From)
	assert.Equal(t, TiltModerate, r.Triggered.To)
	require.Len(t, r.Triggered.Modifiers, 1)
	assert.Equal(t, TiltModerate, r.View.TiltCategory)
	assert.InDelta(t, 0.6, r.View.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.7, r.View.Traits["aggression"].Effective, 1e-9)

	results, err = e.Tick(ctx, 2)
	require.NoError(t, err)
	r = results[0]
	assert.Nil(t, r.Triggered, "staying in the same category does not trigger again")
	assert.InDelta(t, 0.55, r.View.Traits["aggression"].Current, 1e-9)
	assert.InDelta(t, 0.65, r.View.Traits["aggression"].Effective, 1e-9)

	results, err = e.Tick(ctx, 3)
	require.NoError(t, err)
	r = results[0]
	require.Len(t, r.Expired, 1)
	assert.InDelta(t, 0.525, r.View.Traits["aggression"].Effective, 1e-9)
	assert.Equal(t, TiltMild, r.View.TiltCategory)

	state, _ := e.State("batman")
	require.Len(t, state.Triggers, 1)
}

func TestPushModifier(t *testing.T) {
	ctx := context.Background()
	config := batmanConfig(t)
	config.MaxModifiersPerTrait = 2
	e := newTestEngine(t, config, nil)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)

	var invalid InvalidModifierError
	_, err = e.PushModifier("batman", Modifier{TraitName: "luck", Delta: 0.1, ExpiresAfterHands: 1})
	assert.ErrorAs(t, err, &invalid)

	var notFound PlayerNotFoundError
	_, err = e.PushModifier("robin", Modifier{TraitName: "aggression", Delta: 0.1, ExpiresAfterHands: 1})
	assert.ErrorAs(t, err, &notFound)

	m, err := e.PushModifier("batman", Modifier{TraitName: "aggression", Override: f64(0.2), ExpiresAfterHands: 2})
	require.NoError(t, err)
	assert.True(t, m.Exclusive)
	view, _ := e.View("batman")
	assert.InDelta(t, 0.2, view.Traits["aggression"].Effective, 1e-9)
	assert.InDelta(t, 0.5, view.Traits["aggression"].Current, 1e-9)

	_, err = e.PushModifier("batman", Modifier{TraitName: "aggression", Delta: 0.1, ExpiresAfterHands: 2})
	require.NoError(t, err)
	var full ModifierStackFullError
	_, err = e.PushModifier("batman", Modifier{TraitName: "aggression", Delta: 0.1, ExpiresAfterHands: 2})
	require.ErrorAs(t, err, &full)
	assert.Len(t, e.Modifiers("batman"), 2)

	oldest, ok, err := e.ExpireOldestModifier("batman", "aggression")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, m.ID, oldest.ID)
	view, _ = e.View("batman")
	assert.InDelta(t, 0.6, view.Traits["aggression"].Effective, 1e-9)
}

func TestViewsAreCopies(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	e := newTestEngine(t, batmanConfig(t), nil, WithPublisher(publisher))
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	_, err = e.Join(ctx, "alfred", "")
	require.NoError(t, err)

	view, ok := e.View("batman")
	require.True(t, ok)
	view.Traits["aggression"] = TraitView{Current: 0.01}
	view.TraitOrder[0] = "mutated"

	again, _ := e.View("batman")
	assert.InDelta(t, 0.5, again.Traits["aggression"].Current, 1e-9)
	assert.Equal(t, "aggression", again.TraitOrder[0])

	views := e.Views()
	require.Len(t, views, 2)
	assert.Equal(t, "alfred", views[0].PlayerName)

	_, err = e.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, publisher.views, 4)
}

func TestLeave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := newTestEngine(t, batmanConfig(t), store)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 1)))

	require.NoError(t, e.Leave(ctx, "batman"))
	_, ok := e.View("batman")
	assert.False(t, ok)
	assert.Empty(t, e.Players())

	events, err := store.Events(1, "batman")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	persisted, err := store.Load(ctx, 1, "batman")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, persisted.Controller.Trait("aggression").Pressure, 1e-9)

	var notFound PlayerNotFoundError
	assert.ErrorAs(t, e.Leave(ctx, "batman"), &notFound)
}

func TestLeaveKeepsStateWhenStoreIsDown(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore()}
	e := newTestEngine(t, batmanConfig(t), store)
	_, err := e.Join(ctx, "batman", "")
	require.NoError(t, err)
	require.NoError(t, e.ApplyEvent(badBeat("batman", 1.0, 1)))

	store.failSaves = true
	var unavailable PersistenceUnavailableError
	require.ErrorAs(t, e.Leave(ctx, "batman"), &unavailable)
	assert.Equal(t, []string{"batman"}, unavailable.Players)
	assert.True(t, e.Degraded())
	assert.Equal(t, []string{"batman"}, e.Players())
	_, ok := e.View("batman")
	assert.True(t, ok)
	state, ok := e.State("batman")
	require.True(t, ok)
	assert.InDelta(t, 0.5, state.Trait("aggression").Pressure, 1e-9)

	store.failSaves = false
	require.NoError(t, e.Leave(ctx, "batman"))
	assert.Empty(t, e.Players())

	events, err := store.Events(1, "batman")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	persisted, err := store.Load(ctx, 1, "batman")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, persisted.Controller.Trait("aggression").Pressure, 1e-9)
}

func TestCharacterProfile(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, DefaultConfig(), nil)
	view, err := e.Join(ctx, "marcel", "mime")
	require.NoError(t, err)
	assert.Equal(t, "mime", view.Character)
	require.NoError(t, e.ApplyEvent(PressureEvent{PlayerName: "marcel", EventType: "taunt_received", Magnitude: 3, HandNumber: 1}))
	results, err := e.Tick(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, results[0].View.Traits["chattiness"].Effective)
	assert.Greater(t, results[0].View.Traits["emoji_usage"].Current, 0.6)
}

func TestConcurrentGamesAreIndependent(t *testing.T) {
	ctx := context.Background()
	config := batmanConfig(t)
	store := NewMemoryStore()
	var wg sync.WaitGroup
	engines := make([]*Engine, 4)
	for i := range engines {
		engines[i] = NewEngine(uint64(i+1), config, store)
		_, err := engines[i].Join(ctx, "batman", "")
		require.NoError(t, err)
	}
	for i, e := range engines {
		wg.Add(1)
		go func(e *Engine, n int) {
			defer wg.Done()
			for hand := uint32(1); hand <= 10; hand++ {
				if n%2 == 0 {
					e.ApplyEvent(badBeat("batman", 1.0, hand))
				}
				e.Tick(ctx, hand)
			}
		}(e, i)
	}
	wg.Wait()
	calm, _ := engines[1].View("batman")
	tilted, _ := engines[0].View("batman")
	assert.InDelta(t, 0.5, calm.Traits["aggression"].Current, 1e-9)
	assert.Greater(t, tilted.Traits["aggression"].Current, 0.5)
}
