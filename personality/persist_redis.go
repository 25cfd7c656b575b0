package personality

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

type RedisStore struct {
	rdclient *redis.Client
}

func NewRedisStore(redisURL string, redisPW string, redisDB int) *RedisStore {
	rdclient := redis.NewClient(&redis.Options{
		Addr:     redisURL,
		Password: redisPW,
		DB:       redisDB,
	})
	return &RedisStore{
		rdclient: rdclient,
	}
}

func (r *RedisStore) Close() error {
	return r.rdclient.Close()
}

func (r *RedisStore) getKey(gameID uint64, playerName string, suffix string) string {
	return fmt.Sprintf("personality:%d:%s:%s", gameID, playerName, suffix)
}

func (r *RedisStore) Load(ctx context.Context, gameID uint64, playerName string) (*PersistedPersonality, error) {
	controllerKey := r.getKey(gameID, playerName, StateTypeController)
	emotionalKey := r.getKey(gameID, playerName, StateTypeEmotional)
	values, err := r.rdclient.MGet(ctx, controllerKey, emotionalKey).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to load personality state from redis key %s", controllerKey)
	}
	if values[0] == nil {
		return nil, StateNotFoundError{GameID: gameID, PlayerName: playerName}
	}
	p := &PersistedPersonality{}
	if err := json.UnmarshalFromString(values[0].(string), &p.Controller); err != nil {
		return nil, err
	}
	if values[1] != nil {
		if err := json.UnmarshalFromString(values[1].(string), &p.Emotional); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (r *RedisStore) Save(ctx context.Context, p *PersistedPersonality) error {
	controllerBytes, err := json.Marshal(p.Controller)
	if err != nil {
		return err
	}
	emotionalBytes, err := json.Marshal(p.Emotional)
	if err != nil {
		return err
	}
	gameID, playerName := p.Controller.GameID, p.Controller.PlayerName
	pipe := r.rdclient.TxPipeline()
	pipe.Set(ctx, r.getKey(gameID, playerName, StateTypeController), controllerBytes, 0)
	pipe.Set(ctx, r.getKey(gameID, playerName, StateTypeEmotional), emotionalBytes, 0)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return errors.Wrapf(err, "Unable to save personality state for game %d player %s", gameID, playerName)
	}
	return nil
}

func (r *RedisStore) AppendEvents(ctx context.Context, events []PressureEvent) error {
	if len(events) == 0 {
		return nil
	}
	pipe := r.rdclient.Pipeline()
	for _, event := range events {
		eventBytes, err := json.Marshal(event)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, r.getKey(event.GameID, event.PlayerName, "events"), eventBytes)
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "Unable to append pressure events")
	}
	return nil
}

// Events returns the logged pressure events of a player in append order.
func (r *RedisStore) Events(ctx context.Context, gameID uint64, playerName string) ([]PressureEvent, error) {
	key := r.getKey(gameID, playerName, "events")
	values, err := r.rdclient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read pressure events from redis key %s", key)
	}
	events := make([]PressureEvent, 0, len(values))
	for _, v := range values {
		var event PressureEvent
		if err := json.UnmarshalFromString(v, &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func (r *RedisStore) AppendSnapshot(ctx context.Context, snapshot Snapshot) error {
	snapshotBytes, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	key := r.getKey(snapshot.GameID, snapshot.PlayerName, "snapshots")
	err = r.rdclient.RPush(ctx, key, snapshotBytes).Err()
	if err != nil {
		return errors.Wrapf(err, "Unable to append snapshot to redis key %s", key)
	}
	return nil
}

func (r *RedisStore) ListSnapshots(ctx context.Context, gameID uint64, playerName string) ([]Snapshot, error) {
	key := r.getKey(gameID, playerName, "snapshots")
	values, err := r.rdclient.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to read snapshots from redis key %s", key)
	}
	snapshots := make([]Snapshot, 0, len(values))
	for _, v := range values {
		var snapshot Snapshot
		if err := json.UnmarshalFromString(v, &snapshot); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	sort.SliceStable(snapshots, func(i, j int) bool { return snapshots[i].HandNumber < snapshots[j].HandNumber })
	return snapshots, nil
}
