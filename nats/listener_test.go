package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voyager.com/tiltengine/personality"
)

func newTestListener() (*Listener, *personality.Manager) {
	manager := personality.NewManager(personality.DefaultConfig(), personality.NewMemoryStore())
	return NewListener(nil, manager), manager
}

func TestListenerJoinEventTick(t *testing.T) {
	l, manager := newTestListener()

	resp := l.Handle(GameSubject(7, JoinAction), []byte(`{"player_name":"batman","character":""}`))
	require.Equal(t, StatusOk, resp.Status, resp.Error)
	require.Len(t, resp.Views, 1)
	assert.Equal(t, "batman", resp.Views[0].PlayerName)

	resp = l.Handle(GameSubject(7, EventAction),
		[]byte(`{"player_name":"batman","event_type":"bad_beat","magnitude":1.0,"hand_number":1}`))
	require.Equal(t, StatusOk, resp.Status, resp.Error)

	resp = l.Handle(GameSubject(7, TickAction), []byte(`{"hand_number":1}`))
	require.Equal(t, StatusOk, resp.Status, resp.Error)
	require.Len(t, resp.Views, 1)
	assert.InDelta(t, 0.7, resp.Views[0].Traits["aggression"].Current, 1e-9)

	view, ok := manager.View(7, "batman")
	require.True(t, ok)
	assert.InDelta(t, 0.7, view.Traits["aggression"].Current, 1e-9)
}

func TestListenerRejects(t *testing.T) {
	l, _ := newTestListener()

	resp := l.Handle("personality.x.event", []byte(`{}`))
	assert.Equal(t, StatusFailed, resp.Status)

	resp = l.Handle(GameSubject(7, EventAction), []byte(`{"player_name":"batman","event_type":"bad_beat","magnitude":1}`))
	assert.Equal(t, StatusFailed, resp.Status, "no engine for the game yet")

	l.Handle(GameSubject(7, JoinAction), []byte(`{"player_name":"batman"}`))
	resp = l.Handle(GameSubject(7, EventAction), []byte(`{"player_name":"robin","event_type":"bad_beat","magnitude":1}`))
	assert.Equal(t, StatusFailed, resp.Status, "player never joined")

	resp = l.Handle(GameSubject(7, EventAction), []byte(`not json`))
	assert.Equal(t, StatusFailed, resp.Status)

	resp = l.Handle(GameSubject(7, "shuffle"), []byte(`{}`))
	assert.Equal(t, StatusFailed, resp.Status)
}

func TestListenerLeaveAndEnd(t *testing.T) {
	l, manager := newTestListener()
	l.Handle(GameSubject(7, JoinAction), []byte(`{"player_name":"batman"}`))
	l.Handle(GameSubject(7, JoinAction), []byte(`{"player_name":"joker"}`))

	resp := l.Handle(GameSubject(7, LeaveAction), []byte(`{"player_name":"joker"}`))
	require.Equal(t, StatusOk, resp.Status, resp.Error)
	engine, ok := manager.GetEngine(7)
	require.True(t, ok)
	assert.Equal(t, []string{"batman"}, engine.Players())

	resp = l.Handle(GameSubject(7, EndAction), []byte(`{}`))
	require.Equal(t, StatusOk, resp.Status, resp.Error)
	_, ok = manager.GetEngine(7)
	assert.False(t, ok)
}
