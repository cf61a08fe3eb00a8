package sys

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/quaverbot/quaver/player"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS player_sessions (
			node_name TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			saved_at DATETIME NOT NULL,
			PRIMARY KEY (node_name, guild_id)
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogStore(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// StateStore persists player session snapshots, keyed by relay node name
// so that sessions only get restored onto the node that was playing them.
type StateStore struct {
	db *sql.DB
}

func NewStateStore(db *sql.DB) *StateStore {
	return &StateStore{db: db}
}

var _ player.SnapshotStore = (*StateStore)(nil)

func (s *StateStore) Save(ctx context.Context, nodeName string, snapshots []player.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, snap := range snapshots {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO player_sessions (node_name, guild_id, payload, saved_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(node_name, guild_id) DO UPDATE SET payload = excluded.payload, saved_at = excluded.saved_at
		`, nodeName, snap.GuildID.String(), string(snap.Payload), snap.SavedAt.UTC())
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	LogStore("Saved %d sessions for node %s", len(snapshots), nodeName)
	return nil
}

func (s *StateStore) Load(ctx context.Context, nodeName string) ([]player.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT guild_id, payload, saved_at FROM player_sessions WHERE node_name = ?
	`, nodeName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []player.Snapshot
	for rows.Next() {
		var gid, payload string
		var savedAt time.Time
		if err := rows.Scan(&gid, &payload, &savedAt); err != nil {
			return nil, err
		}
		guildID, _ := snowflake.Parse(gid)
		snapshots = append(snapshots, player.Snapshot{
			GuildID: guildID,
			Payload: []byte(payload),
			SavedAt: savedAt,
		})
	}
	return snapshots, rows.Err()
}

func (s *StateStore) Delete(ctx context.Context, nodeName string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM player_sessions WHERE node_name = ?", nodeName)
	return err
}
