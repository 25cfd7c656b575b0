package personality

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type MemoryStore struct {
	lock      sync.Mutex
	states    map[string][]byte
	events    map[string][][]byte
	snapshots map[string][][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:    make(map[string][]byte),
		events:    make(map[string][][]byte),
		snapshots: make(map[string][][]byte),
	}
}

func memoryKey(gameID uint64, playerName string) string {
	return fmt.Sprintf("%d:%s", gameID, playerName)
}

func (m *MemoryStore) Load(ctx context.Context, gameID uint64, playerName string) (*PersistedPersonality, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	key := memoryKey(gameID, playerName)
	controllerBytes, ok := m.states[key+":"+StateTypeController]
	if !ok {
		return nil, StateNotFoundError{GameID: gameID, PlayerName: playerName}
	}
	p := &PersistedPersonality{}
	if err := json.Unmarshal(controllerBytes, &p.Controller); err != nil {
		return nil, err
	}
	if emotionalBytes, ok := m.states[key+":"+StateTypeEmotional]; ok {
		if err := json.Unmarshal(emotionalBytes, &p.Emotional); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (m *MemoryStore) Save(ctx context.Context, p *PersistedPersonality) error {
	controllerBytes, err := json.Marshal(p.Controller)
	if err != nil {
		return err
	}
	emotionalBytes, err := json.Marshal(p.Emotional)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	key := memoryKey(p.Controller.GameID, p.Controller.PlayerName)
	m.states[key+":"+StateTypeController] = controllerBytes
	m.states[key+":"+StateTypeEmotional] = emotionalBytes
	return nil
}

func (m *MemoryStore) AppendEvents(ctx context.Context, events []PressureEvent) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, event := range events {
		eventBytes, err := json.Marshal(event)
		if err != nil {
			return err
		}
		key := memoryKey(event.GameID, event.PlayerName)
		m.events[key] = append(m.events[key], eventBytes)
	}
	return nil
}

// Events returns the logged events of a player.
func (m *MemoryStore) Events(gameID uint64, playerName string) ([]PressureEvent, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	var events []PressureEvent
	for _, eventBytes := range m.events[memoryKey(gameID, playerName)] {
		var event PressureEvent
		if err := json.Unmarshal(eventBytes, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (m *MemoryStore) AppendSnapshot(ctx context.Context, snapshot Snapshot) error {
	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	key := memoryKey(snapshot.GameID, snapshot.PlayerName)
	m.snapshots[key] = append(m.snapshots[key], snapshotBytes)
	return nil
}

func (m *MemoryStore) ListSnapshots(ctx context.Context, gameID uint64, playerName string) ([]Snapshot, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	snapshots := []Snapshot{}
	for _, snapshotBytes := range m.snapshots[memoryKey(gameID, playerName)] {
		var snapshot Snapshot
		if err := json.Unmarshal(snapshotBytes, &snapshot); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.SliceStable(snapshots, func(i, j int) bool { return snapshots[i].HandNumber < snapshots[j].HandNumber })
	return snapshots, nil
}
