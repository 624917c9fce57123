// Package query is the read surface consumed by the presentation layer:
// session listings, timelines, text search, statistics, pattern mining, and
// export. It never mutates the store.
package query

import (
	"fmt"

	"shellscribe/internal/analysis"
	"shellscribe/internal/store"
	"shellscribe/pkg/models"
)

// Service wraps the store and the analysis engine behind fixed-signature
// query functions.
type Service struct {
	store *store.Store
}

// NewService builds the read service over s.
func NewService(s *store.Store) *Service {
	return &Service{store: s}
}

// SessionDetail is one session with its ordered commands.
type SessionDetail struct {
	Session  *models.Session  `json:"session"`
	Commands []models.Command `json:"commands"`
}

// CommandInsight is the analysis view of one command.
type CommandInsight struct {
	SequenceNumber int    `json:"sequence_number"`
	Command        string `json:"command"`
	Category       string `json:"category"`
	Interactive    bool   `json:"interactive"`
	Destructive    bool   `json:"destructive"`
	Complexity     int    `json:"complexity"`
	ComplexityBand string `json:"complexity_band"`
	ErrorCategory  string `json:"error_category,omitempty"`
}

// ListSessions lists sessions, newest first.
func (s *Service) ListSessions(limit int) ([]models.Session, error) {
	return s.store.ListSessions(limit)
}

// GetSession returns a session with its commands, or (nil, nil) when the id
// is unknown.
func (s *Service) GetSession(id string) (*SessionDetail, error) {
	session, err := s.store.GetSession(id)
	if err != nil || session == nil {
		return nil, err
	}
	commands, err := s.store.GetSessionCommands(id, 0)
	if err != nil {
		return nil, err
	}
	return &SessionDetail{Session: session, Commands: commands}, nil
}

// Timeline returns the merged command/event view of one session.
func (s *Service) Timeline(id string) ([]models.TimelineEntry, error) {
	return s.store.GetSessionTimeline(id)
}

// Search finds commands by case-insensitive substring over text and output.
func (s *Service) Search(query string, filters store.SearchFilters) ([]models.Command, error) {
	return s.store.SearchCommands(query, filters)
}

// Statistics returns store-wide aggregates.
func (s *Service) Statistics() (*store.Statistics, error) {
	return s.store.GetStatistics()
}

// Patterns mines patterns over one session, or over the whole store when
// sessionID is empty.
func (s *Service) Patterns(sessionID string) (*analysis.PatternReport, error) {
	var commands []models.Command
	var err error
	if sessionID == "" {
		commands, err = s.store.AllCommands(0)
	} else {
		commands, err = s.store.GetSessionCommands(sessionID, 0)
	}
	if err != nil {
		return nil, err
	}
	return analysis.MinePatterns(commands), nil
}

// Insights computes the per-command analysis view for one session.
func (s *Service) Insights(sessionID string) ([]CommandInsight, error) {
	commands, err := s.store.GetSessionCommands(sessionID, 0)
	if err != nil {
		return nil, err
	}
	insights := make([]CommandInsight, 0, len(commands))
	for _, cmd := range commands {
		score := analysis.ComplexityScore(cmd.Command)
		insight := CommandInsight{
			SequenceNumber: cmd.SequenceNumber,
			Command:        cmd.Command,
			Category:       analysis.Categorize(cmd.Command),
			Interactive:    analysis.IsInteractive(cmd.Command),
			Destructive:    analysis.IsDestructive(cmd.Command),
			Complexity:     score,
			ComplexityBand: analysis.ComplexityBand(score),
		}
		if cmd.ExitCode != 0 {
			insight.ErrorCategory = analysis.CategorizeError(cmd.Output)
		}
		insights = append(insights, insight)
	}
	return insights, nil
}

// ErrNotFound marks an export request for an unknown session.
var ErrNotFound = fmt.Errorf("session not found")
