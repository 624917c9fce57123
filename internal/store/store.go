// Package store persists sessions, commands, and events in SQLite and serves
// the read queries consumed by the query layer. The SQLite file is the single
// authoritative copy; an optional Postgres mirror receives best-effort
// duplicate writes (see mirror.go).
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"shellscribe/pkg/models"
)

// Store wraps the authoritative SQLite database. Writes are serialized behind
// mu; reads take the shared lock and may run concurrently.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	mirror *Mirror
	logger *zap.Logger
}

// Open initializes the SQLite database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set journal_mode=WAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set synchronous=NORMAL", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logger.Debug("failed to enable foreign_keys", zap.Error(err))
	}

	s := &Store{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logger.Debug("store opened", zap.String("path", path))
	return s, nil
}

// AttachMirror enables best-effort mirrored writes. Safe to call once before
// the store is shared; a nil mirror leaves mirroring disabled.
func (s *Store) AttachMirror(m *Mirror) {
	s.mirror = m
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s.mirror != nil {
		s.mirror.Close()
	}
	return s.db.Close()
}

func (s *Store) initialize() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			duration INTEGER NOT NULL DEFAULT 0,
			command_count INTEGER NOT NULL DEFAULT 0,
			user_name TEXT NOT NULL DEFAULT '',
			working_directory TEXT NOT NULL DEFAULT '',
			environment TEXT NOT NULL DEFAULT '{}',
			metadata TEXT NOT NULL DEFAULT '{}',
			source TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS commands (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			sequence_number INTEGER NOT NULL,
			timestamp DATETIME NOT NULL,
			command TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			exit_code INTEGER NOT NULL DEFAULT 0,
			duration INTEGER NOT NULL DEFAULT 0,
			working_directory TEXT NOT NULL DEFAULT '',
			environment_vars TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (session_id, sequence_number)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_session ON commands(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_commands_timestamp ON commands(timestamp)`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL REFERENCES sessions(id),
			timestamp DATETIME NOT NULL,
			event_type TEXT NOT NULL,
			event_data TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// UpsertSession writes a session row, replacing any prior row with the same
// id. The authoritative write must succeed; the mirror write is best-effort.
func (s *Store) UpsertSession(session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, err := json.Marshal(orEmptyStr(session.Environment))
	if err != nil {
		return fmt.Errorf("failed to encode environment: %w", err)
	}
	meta, err := json.Marshal(orEmptyAny(session.Metadata))
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO sessions (id, start_time, end_time, duration, command_count, user_name, working_directory, environment, metadata, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			start_time = excluded.start_time,
			end_time = excluded.end_time,
			duration = excluded.duration,
			command_count = excluded.command_count,
			user_name = excluded.user_name,
			working_directory = excluded.working_directory,
			environment = excluded.environment,
			metadata = excluded.metadata,
			source = excluded.source`,
		session.ID, session.StartTime, session.EndTime, session.DurationMs,
		session.CommandCount, session.UserName, session.WorkingDirectory,
		string(env), string(meta), session.Source,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert session %s: %w", session.ID, err)
	}

	if s.mirror != nil {
		if merr := s.mirror.UpsertSession(session); merr != nil {
			s.logger.Warn("mirror session write failed",
				zap.String("session", session.ID), zap.Error(merr))
		}
	}
	return nil
}

// UpsertCommands writes command rows, replacing slots that share a
// (session_id, sequence_number) key. Rows are written in one transaction so a
// partial batch never becomes visible.
func (s *Store) UpsertCommands(commands []models.Command) error {
	if len(commands) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(
		`INSERT INTO commands (session_id, sequence_number, timestamp, command, output, exit_code, duration, working_directory, environment_vars)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, sequence_number) DO UPDATE SET
			timestamp = excluded.timestamp,
			command = excluded.command,
			output = excluded.output,
			exit_code = excluded.exit_code,
			duration = excluded.duration,
			working_directory = excluded.working_directory,
			environment_vars = excluded.environment_vars`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare command upsert: %w", err)
	}
	defer stmt.Close()

	for _, cmd := range commands {
		envVars, err := json.Marshal(orEmptyStr(cmd.EnvironmentVars))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to encode environment_vars: %w", err)
		}
		if _, err := stmt.Exec(
			cmd.SessionID, cmd.SequenceNumber, cmd.Timestamp, cmd.Command,
			cmd.Output, cmd.ExitCode, cmd.DurationMs, cmd.WorkingDirectory,
			string(envVars),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert command %s/%d: %w", cmd.SessionID, cmd.SequenceNumber, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit commands: %w", err)
	}

	if s.mirror != nil {
		if merr := s.mirror.UpsertCommands(commands); merr != nil {
			s.logger.Warn("mirror command write failed",
				zap.String("session", commands[0].SessionID),
				zap.Int("count", len(commands)), zap.Error(merr))
		}
	}
	return nil
}

// PruneCommands deletes the session's command rows above maxSeq. A record
// file can be rewritten with fewer commands than before; without the prune
// those stale slots would survive the upsert and disagree with the session's
// command_count. maxSeq of -1 removes every command row for the session.
func (s *Store) PruneCommands(sessionID string, maxSeq int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM commands WHERE session_id = ? AND sequence_number > ?`,
		sessionID, maxSeq,
	)
	if err != nil {
		return fmt.Errorf("failed to prune commands for %s: %w", sessionID, err)
	}

	if s.mirror != nil {
		if merr := s.mirror.PruneCommands(sessionID, maxSeq); merr != nil {
			s.logger.Warn("mirror command prune failed",
				zap.String("session", sessionID), zap.Error(merr))
		}
	}
	return nil
}

// AppendEvent records a non-command occurrence. Events are append-only.
func (s *Store) AppendEvent(ev *models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(orEmptyAny(ev.EventData))
	if err != nil {
		return fmt.Errorf("failed to encode event data: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO events (session_id, timestamp, event_type, event_data) VALUES (?, ?, ?, ?)`,
		ev.SessionID, ev.Timestamp, ev.EventType, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to append event for %s: %w", ev.SessionID, err)
	}

	if s.mirror != nil {
		if merr := s.mirror.AppendEvent(ev); merr != nil {
			s.logger.Warn("mirror event write failed",
				zap.String("session", ev.SessionID), zap.Error(merr))
		}
	}
	return nil
}

func orEmptyStr(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyAny(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
