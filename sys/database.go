package sys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/mattn/go-sqlite3"
)

const (
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "failed to create table: %w"
	MsgDatabasePragmaError = "failed to set pragma %s: %w"
	MsgDatabaseNotReady    = "database is not initialized"
	MsgDBScanHistoryFail   = "failed to scan track history: %w"
	MsgDBParseHistoryFail  = "failed to parse requester ID '%s' in track history: %w"
)

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	_ = sqlite3.SQLiteDriver{}

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
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS track_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			guild_id TEXT NOT NULL,
			url TEXT NOT NULL,
			title TEXT NOT NULL,
			artist TEXT,
			requester_id TEXT,
			requester_name TEXT,
			played_at DATETIME NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_track_history_guild ON track_history(guild_id, played_at)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		_ = DB.Close()
	}
}

// BotConfig helpers are used by the loader for registration bookkeeping.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	if DB == nil {
		return "", errors.New(MsgDatabaseNotReady)
	}
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	if DB == nil {
		return errors.New(MsgDatabaseNotReady)
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// HistoryEntry is one played track as recorded by the player.
type HistoryEntry struct {
	GuildID       snowflake.ID
	URL           string
	Title         string
	Artist        string
	RequesterID   snowflake.ID
	RequesterName string
	PlayedAt      time.Time
}

func AddTrackHistory(ctx context.Context, e *HistoryEntry) error {
	if DB == nil {
		return errors.New(MsgDatabaseNotReady)
	}
	if e.PlayedAt.IsZero() {
		e.PlayedAt = time.Now()
	}
	_, err := DB.ExecContext(ctx, `
		INSERT INTO track_history (guild_id, url, title, artist, requester_id, requester_name, played_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.GuildID.String(), e.URL, e.Title, e.Artist, e.RequesterID.String(), e.RequesterName, e.PlayedAt.UTC())
	return err
}

// GetTrackHistory returns the most recent plays for a guild, newest first.
func GetTrackHistory(ctx context.Context, guildID snowflake.ID, limit int) ([]*HistoryEntry, error) {
	if DB == nil {
		return nil, errors.New(MsgDatabaseNotReady)
	}
	rows, err := DB.QueryContext(ctx, `
		SELECT url, title, COALESCE(artist, ''), COALESCE(requester_id, ''), COALESCE(requester_name, ''), played_at
		FROM track_history WHERE guild_id = ?
		ORDER BY played_at DESC, id DESC LIMIT ?
	`, guildID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*HistoryEntry
	for rows.Next() {
		e := &HistoryEntry{GuildID: guildID}
		var requesterID string
		if err := rows.Scan(&e.URL, &e.Title, &e.Artist, &requesterID, &e.RequesterName, &e.PlayedAt); err != nil {
			return nil, fmt.Errorf(MsgDBScanHistoryFail, err)
		}
		if requesterID != "" && requesterID != "0" {
			id, err := snowflake.Parse(requesterID)
			if err != nil {
				return nil, fmt.Errorf(MsgDBParseHistoryFail, requesterID, err)
			}
			e.RequesterID = id
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
