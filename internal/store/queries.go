package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"shellscribe/pkg/models"
)

// searchResultCap bounds SearchCommands result size regardless of filters.
const searchResultCap = 200

// SearchFilters narrows a command search. Nil/zero fields are ignored.
type SearchFilters struct {
	SessionID string
	ExitCode  *int
	From      time.Time
	To        time.Time
}

// CommandFrequency is one entry of the top-commands ranking.
type CommandFrequency struct {
	Command string `json:"command"`
	Count   int    `json:"count"`
}

// DailyActivity is one day of the 30-day activity histogram.
type DailyActivity struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// Statistics aggregates the whole store for the stats endpoint.
type Statistics struct {
	TotalSessions      int                `json:"total_sessions"`
	TotalCommands      int                `json:"total_commands"`
	AvgCommandsPerSess float64            `json:"avg_commands_per_session"`
	TopCommands        []CommandFrequency `json:"top_commands"`
	DailyActivity      []DailyActivity    `json:"daily_activity"`
}

// GetSession returns the session row, or (nil, nil) when the id is unknown.
func (s *Store) GetSession(id string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(
		`SELECT id, start_time, end_time, duration, command_count, user_name, working_directory, environment, metadata, source
		 FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return session, nil
}

// ListSessions returns sessions ordered by start time, newest first.
func (s *Store) ListSessions(limit int) ([]models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, start_time, end_time, duration, command_count, user_name, working_directory, environment, metadata, source
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *session)
	}
	return sessions, rows.Err()
}

// GetSessionCommands returns the session's commands in sequence order. A
// limit of zero or less returns every command; exports and analysis need the
// full list, not a page of it.
func (s *Store) GetSessionCommands(sessionID string, limit int) ([]models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT session_id, sequence_number, timestamp, command, output, exit_code, duration, working_directory, environment_vars
		 FROM commands WHERE session_id = ? ORDER BY sequence_number ASC`
	args := []interface{}{sessionID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get commands for %s: %w", sessionID, err)
	}
	defer rows.Close()
	return collectCommands(rows)
}

// AllCommands returns every command row in session/sequence order, for
// store-wide pattern mining.
func (s *Store) AllCommands(limit int) ([]models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10000
	}
	rows, err := s.db.Query(
		`SELECT session_id, sequence_number, timestamp, command, output, exit_code, duration, working_directory, environment_vars
		 FROM commands ORDER BY session_id, sequence_number LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list commands: %w", err)
	}
	defer rows.Close()
	return collectCommands(rows)
}

// GetSessionTimeline merges the session's commands and events into one list
// ordered by timestamp, each entry tagged with its type.
func (s *Store) GetSessionTimeline(sessionID string) ([]models.TimelineEntry, error) {
	commands, err := s.GetSessionCommands(sessionID, 0)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	rows, err := s.db.Query(
		`SELECT session_id, timestamp, event_type, event_data
		 FROM events WHERE session_id = ? ORDER BY timestamp ASC`, sessionID)
	if err != nil {
		s.mu.RUnlock()
		return nil, fmt.Errorf("failed to get events for %s: %w", sessionID, err)
	}

	var entries []models.TimelineEntry
	for rows.Next() {
		var ev models.Event
		var data string
		if err := rows.Scan(&ev.SessionID, &ev.Timestamp, &ev.EventType, &data); err != nil {
			rows.Close()
			s.mu.RUnlock()
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		_ = json.Unmarshal([]byte(data), &ev.EventData)
		entries = append(entries, models.TimelineEntry{
			Type:      ev.EventType,
			Timestamp: ev.Timestamp,
			EventData: ev.EventData,
		})
	}
	rows.Close()
	s.mu.RUnlock()

	for i := range commands {
		cmd := commands[i]
		entries = append(entries, models.TimelineEntry{
			Type:      "command",
			Timestamp: cmd.Timestamp,
			Command:   &cmd,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// SearchCommands finds commands whose text or output contains query,
// case-insensitively, most recent first, capped at searchResultCap rows.
func (s *Store) SearchCommands(query string, filters SearchFilters) ([]models.Command, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"(LOWER(command) LIKE ? OR LOWER(output) LIKE ?)"}
	pattern := "%" + strings.ToLower(query) + "%"
	args := []interface{}{pattern, pattern}

	if filters.SessionID != "" {
		where = append(where, "session_id = ?")
		args = append(args, filters.SessionID)
	}
	if filters.ExitCode != nil {
		where = append(where, "exit_code = ?")
		args = append(args, *filters.ExitCode)
	}
	if !filters.From.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filters.From)
	}
	if !filters.To.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, filters.To)
	}
	args = append(args, searchResultCap)

	rows, err := s.db.Query(
		`SELECT session_id, sequence_number, timestamp, command, output, exit_code, duration, working_directory, environment_vars
		 FROM commands WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY timestamp DESC LIMIT ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search commands: %w", err)
	}
	defer rows.Close()
	return collectCommands(rows)
}

// GetStatistics aggregates session/command counts, the top base commands, and
// a 30-day daily activity histogram.
func (s *Store) GetStatistics() (*Statistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Statistics{}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&stats.TotalSessions); err != nil {
		return nil, fmt.Errorf("failed to count sessions: %w", err)
	}
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM commands`).Scan(&stats.TotalCommands); err != nil {
		return nil, fmt.Errorf("failed to count commands: %w", err)
	}
	if stats.TotalSessions > 0 {
		stats.AvgCommandsPerSess = float64(stats.TotalCommands) / float64(stats.TotalSessions)
	}

	// Base-command frequency is computed here rather than in SQL: the base
	// token is the first whitespace-separated field, which SQLite cannot
	// split portably.
	rows, err := s.db.Query(`SELECT command FROM commands`)
	if err != nil {
		return nil, fmt.Errorf("failed to read commands for frequency: %w", err)
	}
	freq := make(map[string]int)
	for rows.Next() {
		var cmd string
		if err := rows.Scan(&cmd); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		if base := baseToken(cmd); base != "" {
			freq[base]++
		}
	}
	rows.Close()
	for cmd, count := range freq {
		stats.TopCommands = append(stats.TopCommands, CommandFrequency{Command: cmd, Count: count})
	}
	sort.Slice(stats.TopCommands, func(i, j int) bool {
		if stats.TopCommands[i].Count != stats.TopCommands[j].Count {
			return stats.TopCommands[i].Count > stats.TopCommands[j].Count
		}
		return stats.TopCommands[i].Command < stats.TopCommands[j].Command
	})
	if len(stats.TopCommands) > 10 {
		stats.TopCommands = stats.TopCommands[:10]
	}

	rows, err = s.db.Query(
		`SELECT date(timestamp) AS day, COUNT(*)
		 FROM commands
		 WHERE timestamp >= datetime('now', '-30 days')
		 GROUP BY day ORDER BY day ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to build activity histogram: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var day DailyActivity
		if err := rows.Scan(&day.Date, &day.Count); err != nil {
			return nil, fmt.Errorf("failed to scan histogram row: %w", err)
		}
		stats.DailyActivity = append(stats.DailyActivity, day)
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	var session models.Session
	var endTime sql.NullTime
	var env, meta string
	if err := row.Scan(&session.ID, &session.StartTime, &endTime, &session.DurationMs,
		&session.CommandCount, &session.UserName, &session.WorkingDirectory,
		&env, &meta, &session.Source); err != nil {
		return nil, err
	}
	if endTime.Valid {
		t := endTime.Time
		session.EndTime = &t
	}
	_ = json.Unmarshal([]byte(env), &session.Environment)
	_ = json.Unmarshal([]byte(meta), &session.Metadata)
	return &session, nil
}

func collectCommands(rows *sql.Rows) ([]models.Command, error) {
	var commands []models.Command
	for rows.Next() {
		var cmd models.Command
		var envVars string
		if err := rows.Scan(&cmd.SessionID, &cmd.SequenceNumber, &cmd.Timestamp,
			&cmd.Command, &cmd.Output, &cmd.ExitCode, &cmd.DurationMs,
			&cmd.WorkingDirectory, &envVars); err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		_ = json.Unmarshal([]byte(envVars), &cmd.EnvironmentVars)
		commands = append(commands, cmd)
	}
	return commands, rows.Err()
}

func baseToken(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
