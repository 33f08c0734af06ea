package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = errors.New("not found")

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// In-memory databases have no directory
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows one writer; a single connection also keeps :memory: shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			voice_category_id VARCHAR(20) NOT NULL DEFAULT '',
			moderator_role_id VARCHAR(20) NOT NULL DEFAULT '',
			ping_role_id VARCHAR(20) NOT NULL DEFAULT '',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS session_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id VARCHAR(20) NOT NULL,
			match_id VARCHAR(36) NOT NULL,
			guild_id VARCHAR(20) NOT NULL,
			channel_id VARCHAR(20) NOT NULL,
			kind VARCHAR(32) NOT NULL,
			actor_id VARCHAR(20) NOT NULL DEFAULT '',
			participants TEXT NOT NULL DEFAULT '',
			detail TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_match ON session_events(match_id)`,
		`CREATE INDEX IF NOT EXISTS idx_session_events_guild ON session_events(guild_id, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Guild settings operations

// UpsertGuildSettings creates or updates guild settings
func (r *Repository) UpsertGuildSettings(settings *GuildSettings) error {
	_, err := r.db.Exec(
		`INSERT INTO guild_settings (guild_id, voice_category_id, moderator_role_id, ping_role_id) VALUES (?, ?, ?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET
			voice_category_id = excluded.voice_category_id,
			moderator_role_id = excluded.moderator_role_id,
			ping_role_id = excluded.ping_role_id`,
		settings.GuildID, settings.VoiceCategoryID, settings.ModeratorRoleID, settings.PingRoleID,
	)
	return err
}

// GetGuildSettings retrieves guild settings
func (r *Repository) GetGuildSettings(guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{}
	err := r.db.QueryRow(
		`SELECT guild_id, voice_category_id, moderator_role_id, ping_role_id, created_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.GuildID, &settings.VoiceCategoryID, &settings.ModeratorRoleID, &settings.PingRoleID, &settings.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// Session event operations

// CreateSessionEvent inserts a lifecycle event
func (r *Repository) CreateSessionEvent(ctx context.Context, e *SessionEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, match_id, guild_id, channel_id, kind, actor_id, participants, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SessionID, e.MatchID, e.GuildID, e.ChannelID, e.Kind, e.ActorID,
		strings.Join(e.Participants, ","), e.Detail, e.CreatedAt.UTC(),
	)
	if err != nil {
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

// GetEventsByMatch returns the events of one session in insertion order
func (r *Repository) GetEventsByMatch(ctx context.Context, matchID string) ([]*SessionEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, match_id, guild_id, channel_id, kind, actor_id, participants, detail, created_at
		 FROM session_events WHERE match_id = ? ORDER BY id`,
		matchID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*SessionEvent
	for rows.Next() {
		e := &SessionEvent{}
		var participants string
		if err := rows.Scan(&e.ID, &e.SessionID, &e.MatchID, &e.GuildID, &e.ChannelID, &e.Kind, &e.ActorID, &participants, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Participants = splitIDs(participants)
		events = append(events, e)
	}

	return events, rows.Err()
}

// GetRecentMatches returns the latest terminal events of a guild, newest first
func (r *Repository) GetRecentMatches(ctx context.Context, guildID string, limit int) ([]*MatchSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT match_id, kind, participants, created_at FROM session_events
		 WHERE guild_id = ? AND kind IN (?, ?, ?, ?)
		 ORDER BY created_at DESC, id DESC LIMIT ?`,
		guildID,
		string(telemetry.EventFinished), string(telemetry.EventCancelled),
		string(telemetry.EventExpired), string(telemetry.EventShutdown),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []*MatchSummary
	for rows.Next() {
		m := &MatchSummary{}
		var participants string
		if err := rows.Scan(&m.MatchID, &m.Outcome, &participants, &m.EndedAt); err != nil {
			return nil, err
		}
		m.Participants = splitIDs(participants)
		matches = append(matches, m)
	}

	return matches, rows.Err()
}

// Name identifies the repository as a telemetry sink
func (r *Repository) Name() string { return "sqlite" }

// Record persists a telemetry event
func (r *Repository) Record(ctx context.Context, e telemetry.Event) error {
	return r.CreateSessionEvent(ctx, &SessionEvent{
		SessionID:    e.SessionID,
		MatchID:      e.MatchID,
		GuildID:      e.GuildID,
		ChannelID:    e.ChannelID,
		Kind:         string(e.Kind),
		ActorID:      e.ActorID,
		Participants: e.Participants,
		Detail:       e.Detail,
		CreatedAt:    e.At,
	})
}

func splitIDs(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
