package personality

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

var sqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS personality_state (
		game_id BIGINT NOT NULL,
		player_name TEXT NOT NULL,
		state_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (game_id, player_name, state_type)
	)`,
	`CREATE TABLE IF NOT EXISTS pressure_events (
		id TEXT NOT NULL,
		game_id BIGINT NOT NULL,
		player_name TEXT NOT NULL,
		event_type TEXT NOT NULL,
		magnitude DOUBLE PRECISION NOT NULL,
		details TEXT,
		hand_number BIGINT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS pressure_events_player ON pressure_events (game_id, player_name)`,
	`CREATE TABLE IF NOT EXISTS personality_snapshots (
		id TEXT PRIMARY KEY,
		game_id BIGINT NOT NULL,
		player_name TEXT NOT NULL,
		hand_number BIGINT NOT NULL,
		payload TEXT NOT NULL,
		recorded_at BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS personality_snapshots_player ON personality_snapshots (game_id, player_name, hand_number)`,
}

// SQLStore keeps personality records in Postgres (lib/pq) or SQLite
// (modernc.org/sqlite). Queries are written with ? placeholders and rebound
// for the driver.
type SQLStore struct {
	db *sqlx.DB
}

// OpenSQLStore connects to the database and makes sure the tables exist.
func OpenSQLStore(ctx context.Context, driver string, dsn string) (*SQLStore, error) {
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to connect to %s database", driver)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
	}
	store, err := NewSQLStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func NewSQLStore(ctx context.Context, db *sqlx.DB) (*SQLStore, error) {
	for _, stmt := range sqlSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, errors.Wrap(err, "Unable to create personality tables")
		}
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type stateRow struct {
	StateType string `db:"state_type"`
	Payload   string `db:"payload"`
}

func (s *SQLStore) Load(ctx context.Context, gameID uint64, playerName string) (*PersistedPersonality, error) {
	var rows []stateRow
	query := s.db.Rebind(`SELECT state_type, payload FROM personality_state WHERE game_id = ? AND player_name = ?`)
	err := s.db.SelectContext(ctx, &rows, query, int64(gameID), playerName)
	if err != nil {
		return nil, errors.Wrapf(err, "Unable to load personality state for game %d player %s", gameID, playerName)
	}

	p := &PersistedPersonality{}
	found := false
	for _, row := range rows {
		switch row.StateType {
		case StateTypeController:
			found = true
			if err := json.UnmarshalFromString(row.Payload, &p.Controller); err != nil {
				return nil, err
			}
		case StateTypeEmotional:
			if err := json.UnmarshalFromString(row.Payload, &p.Emotional); err != nil {
				return nil, err
			}
		}
	}
	if !found {
		return nil, StateNotFoundError{GameID: gameID, PlayerName: playerName}
	}
	return p, nil
}

func (s *SQLStore) Save(ctx context.Context, p *PersistedPersonality) error {
	controller, err := json.MarshalToString(p.Controller)
	if err != nil {
		return err
	}
	emotional, err := json.MarshalToString(p.Emotional)
	if err != nil {
		return err
	}

	gameID, playerName := int64(p.Controller.GameID), p.Controller.PlayerName
	now := time.Now().UnixNano() / int64(time.Millisecond)
	upsert := s.db.Rebind(`INSERT INTO personality_state (game_id, player_name, state_type, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (game_id, player_name, state_type)
		DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`)

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}
	if _, err := tx.ExecContext(ctx, upsert, gameID, playerName, StateTypeController, controller, now); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to save controller state for player %s", playerName)
	}
	if _, err := tx.ExecContext(ctx, upsert, gameID, playerName, StateTypeEmotional, emotional, now); err != nil {
		tx.Rollback()
		return errors.Wrapf(err, "Unable to save emotional state for player %s", playerName)
	}
	return errors.Wrap(tx.Commit(), "Unable to commit personality state")
}

func (s *SQLStore) AppendEvents(ctx context.Context, events []PressureEvent) error {
	if len(events) == 0 {
		return nil
	}
	insert := s.db.Rebind(`INSERT INTO pressure_events (id, game_id, player_name, event_type, magnitude, details, hand_number, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "Unable to begin transaction")
	}
	for _, event := range events {
		details := ""
		if len(event.Details) > 0 {
			details, err = json.MarshalToString(event.Details)
			if err != nil {
				tx.Rollback()
				return err
			}
		}
		_, err = tx.ExecContext(ctx, insert,
			event.ID,
			int64(event.GameID),
			event.PlayerName,
			event.EventType,
			event.Magnitude,
			details,
			int64(event.HandNumber),
			event.Timestamp.UnixNano()/int64(time.Millisecond))
		if err != nil {
			tx.Rollback()
			return errors.Wrapf(err, "Unable to insert pressure event %s", event.ID)
		}
	}
	return errors.Wrap(tx.Commit(), "Unable to commit pressure events")
}

type eventRow struct {
	ID         string  `db:"id"`
	GameID     int64   `db:"game_id"`
	PlayerName string  `db:"player_name"`
	EventType  string  `db:"event_type"`
	Magnitude  float64 `db:"magnitude"`
	Details    string  `db:"details"`
	HandNumber int64   `db:"hand_number"`
	CreatedAt  int64   `db:"created_at"`
}

// Events returns the logged events of a player ordered by time.
func (s *SQLStore) Events(ctx context.Context, gameID uint64, playerName string) ([]PressureEvent, error) {
	var rows []eventRow
	query := s.db.Rebind(`SELECT id, game_id, player_name, event_type, magnitude, COALESCE(details, '') AS details, hand_number, created_at
		FROM pressure_events WHERE game_id = ? AND player_name = ? ORDER BY created_at, hand_number`)
	if err := s.db.SelectContext(ctx, &rows, query, int64(gameID), playerName); err != nil {
		return nil, errors.Wrapf(err, "Unable to read pressure events for player %s", playerName)
	}
	events := make([]PressureEvent, 0, len(rows))
	for _, row := range rows {
		event := PressureEvent{
			ID:         row.ID,
			GameID:     uint64(row.GameID),
			PlayerName: row.PlayerName,
			EventType:  row.EventType,
			Magnitude:  row.Magnitude,
			HandNumber: uint32(row.HandNumber),
			Timestamp:  time.Unix(0, row.CreatedAt*int64(time.Millisecond)),
		}
		if row.Details != "" {
			if err := json.UnmarshalFromString(row.Details, &event.Details); err != nil {
				return nil, err
			}
		}
		events = append(events, event)
	}
	return events, nil
}

func (s *SQLStore) AppendSnapshot(ctx context.Context, snapshot Snapshot) error {
	payload, err := json.MarshalToString(snapshot)
	if err != nil {
		return err
	}
	insert := s.db.Rebind(`INSERT INTO personality_snapshots (id, game_id, player_name, hand_number, payload, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err = s.db.ExecContext(ctx, insert,
		snapshot.ID,
		int64(snapshot.GameID),
		snapshot.PlayerName,
		int64(snapshot.HandNumber),
		payload,
		snapshot.RecordedAt.UnixNano()/int64(time.Millisecond))
	if err != nil {
		return errors.Wrapf(err, "Unable to insert snapshot for player %s hand %d", snapshot.PlayerName, snapshot.HandNumber)
	}
	return nil
}

func (s *SQLStore) ListSnapshots(ctx context.Context, gameID uint64, playerName string) ([]Snapshot, error) {
	var payloads []string
	query := s.db.Rebind(`SELECT payload FROM personality_snapshots
		WHERE game_id = ? AND player_name = ? ORDER BY hand_number, recorded_at`)
	if err := s.db.SelectContext(ctx, &payloads, query, int64(gameID), playerName); err != nil {
		return nil, errors.Wrapf(err, "Unable to read snapshots for player %s", playerName)
	}
	snapshots := make([]Snapshot, 0, len(payloads))
	for _, payload := range payloads {
		var snapshot Snapshot
		if err := json.UnmarshalFromString(payload, &snapshot); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}
