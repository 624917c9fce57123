package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"shellscribe/pkg/models"
)

// Mirror duplicates authoritative writes into a remote Postgres database via
// GORM. Every method returns its error to the caller, which logs and moves
// on: a mirror failure never fails the authoritative call.
type Mirror struct {
	db *gorm.DB
}

// mirrorSession is the GORM row shape for the remote sessions table.
type mirrorSession struct {
	ID               string     `gorm:"primaryKey;column:id"`
	StartTime        time.Time  `gorm:"column:start_time"`
	EndTime          *time.Time `gorm:"column:end_time"`
	Duration         int64      `gorm:"column:duration"`
	CommandCount     int        `gorm:"column:command_count"`
	UserName         string     `gorm:"column:user_name"`
	WorkingDirectory string     `gorm:"column:working_directory"`
	Environment      string     `gorm:"column:environment;type:jsonb"`
	Metadata         string     `gorm:"column:metadata;type:jsonb"`
	Source           string     `gorm:"column:source"`
}

func (mirrorSession) TableName() string { return "sessions" }

type mirrorCommand struct {
	SessionID        string    `gorm:"primaryKey;column:session_id"`
	SequenceNumber   int       `gorm:"primaryKey;column:sequence_number"`
	Timestamp        time.Time `gorm:"column:timestamp;index"`
	Command          string    `gorm:"column:command"`
	Output           string    `gorm:"column:output"`
	ExitCode         int       `gorm:"column:exit_code"`
	Duration         int64     `gorm:"column:duration"`
	WorkingDirectory string    `gorm:"column:working_directory"`
	EnvironmentVars  string    `gorm:"column:environment_vars;type:jsonb"`
}

func (mirrorCommand) TableName() string { return "commands" }

type mirrorEvent struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id"`
	SessionID string    `gorm:"column:session_id;index"`
	Timestamp time.Time `gorm:"column:timestamp"`
	EventType string    `gorm:"column:event_type"`
	EventData string    `gorm:"column:event_data;type:jsonb"`
}

func (mirrorEvent) TableName() string { return "events" }

// OpenMirror connects to the remote Postgres store and migrates the schema.
func OpenMirror(dsn string) (*Mirror, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect mirror: %w", err)
	}
	if err := db.AutoMigrate(&mirrorSession{}, &mirrorCommand{}, &mirrorEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate mirror schema: %w", err)
	}
	return &Mirror{db: db}, nil
}

// UpsertSession mirrors one session row.
func (m *Mirror) UpsertSession(session *models.Session) error {
	env, _ := json.Marshal(orEmptyStr(session.Environment))
	meta, _ := json.Marshal(orEmptyAny(session.Metadata))
	row := mirrorSession{
		ID:               session.ID,
		StartTime:        session.StartTime,
		EndTime:          session.EndTime,
		Duration:         session.DurationMs,
		CommandCount:     session.CommandCount,
		UserName:         session.UserName,
		WorkingDirectory: session.WorkingDirectory,
		Environment:      string(env),
		Metadata:         string(meta),
		Source:           session.Source,
	}
	return m.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error
}

// UpsertCommands mirrors a batch of command rows.
func (m *Mirror) UpsertCommands(commands []models.Command) error {
	rows := make([]mirrorCommand, 0, len(commands))
	for _, cmd := range commands {
		envVars, _ := json.Marshal(orEmptyStr(cmd.EnvironmentVars))
		rows = append(rows, mirrorCommand{
			SessionID:        cmd.SessionID,
			SequenceNumber:   cmd.SequenceNumber,
			Timestamp:        cmd.Timestamp,
			Command:          cmd.Command,
			Output:           cmd.Output,
			ExitCode:         cmd.ExitCode,
			Duration:         cmd.DurationMs,
			WorkingDirectory: cmd.WorkingDirectory,
			EnvironmentVars:  string(envVars),
		})
	}
	return m.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error
}

// PruneCommands mirrors the deletion of command rows above maxSeq.
func (m *Mirror) PruneCommands(sessionID string, maxSeq int) error {
	return m.db.Where("session_id = ? AND sequence_number > ?", sessionID, maxSeq).
		Delete(&mirrorCommand{}).Error
}

// AppendEvent mirrors one event row.
func (m *Mirror) AppendEvent(ev *models.Event) error {
	data, _ := json.Marshal(orEmptyAny(ev.EventData))
	row := mirrorEvent{
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
		EventType: ev.EventType,
		EventData: string(data),
	}
	return m.db.Create(&row).Error
}

// Close releases the underlying connection pool.
func (m *Mirror) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
