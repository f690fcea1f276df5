package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/t77yq/mission-control/internal/model"
)

// MissionArchive defines the interface for persisting finished missions
type MissionArchive interface {
	// Store persists a terminal mission and its task outcomes
	Store(ctx context.Context, mission *model.Mission) error

	// Get retrieves an archived mission by id; nil when unknown
	Get(ctx context.Context, id string) (*model.Mission, error)

	// List retrieves archived missions, newest first
	List(ctx context.Context, status model.MissionStatus, offset, limit int) ([]*model.Mission, error)

	// DeleteBefore removes missions completed before the given time
	DeleteBefore(ctx context.Context, before time.Time) error

	// Close releases the underlying store
	Close() error
}

// SQLiteMissionArchive implements MissionArchive using SQLite
type SQLiteMissionArchive struct {
	logger *zap.Logger
	db     *sql.DB
}

// NewSQLiteMissionArchive opens (or creates) the archive database.
func NewSQLiteMissionArchive(logger *zap.Logger, dbPath string) (*SQLiteMissionArchive, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	archive := &SQLiteMissionArchive{
		logger: logger.Named("mission-archive"),
		db:     db,
	}

	if err := archive.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return archive, nil
}

// initialize creates the necessary tables if they don't exist
func (s *SQLiteMissionArchive) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS missions (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			priority INTEGER NOT NULL,
			status TEXT NOT NULL,
			progress REAL NOT NULL,
			created_at DATETIME NOT NULL,
			started_at DATETIME,
			completed_at DATETIME,
			results TEXT,
			metrics TEXT
		);
		CREATE TABLE IF NOT EXISTS mission_tasks (
			id TEXT PRIMARY KEY,
			mission_id TEXT NOT NULL,
			name TEXT NOT NULL,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			priority INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			assigned_agent TEXT,
			error TEXT,
			result TEXT,
			started_at DATETIME,
			completed_at DATETIME,
			FOREIGN KEY (mission_id) REFERENCES missions(id)
		);
		CREATE INDEX IF NOT EXISTS idx_missions_status ON missions(status);
		CREATE INDEX IF NOT EXISTS idx_missions_completed_at ON missions(completed_at);
		CREATE INDEX IF NOT EXISTS idx_mission_tasks_mission_id ON mission_tasks(mission_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	return nil
}

// Store implements MissionArchive.Store
func (s *SQLiteMissionArchive) Store(ctx context.Context, mission *model.Mission) error {
	resultsJSON, err := json.Marshal(mission.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	metricsJSON, err := json.Marshal(mission.Metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO missions (
			id, description, priority, status, progress,
			created_at, started_at, completed_at, results, metrics
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		mission.ID,
		mission.Description,
		int(mission.Priority),
		string(mission.Status),
		mission.ProgressPercentage,
		mission.CreatedAt,
		nullTime(mission.StartedAt),
		nullTime(mission.CompletedAt),
		string(resultsJSON),
		string(metricsJSON),
	)
	if err != nil {
		return fmt.Errorf("failed to store mission: %w", err)
	}

	for _, task := range mission.Tasks {
		taskResult, err := json.Marshal(task.Result)
		if err != nil {
			return fmt.Errorf("failed to marshal task result: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO mission_tasks (
				id, mission_id, name, type, status, priority, seq,
				assigned_agent, error, result, started_at, completed_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			mission.ID,
			task.Name,
			task.Type,
			string(task.Status),
			int(task.Priority),
			task.Seq,
			sql.NullString{String: task.AssignedAgent, Valid: task.AssignedAgent != ""},
			sql.NullString{String: task.ErrorMessage, Valid: task.ErrorMessage != ""},
			string(taskResult),
			nullTime(task.StartedAt),
			nullTime(task.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to store mission task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	s.logger.Debug("Mission archived",
		zap.String("mission_id", mission.ID),
		zap.String("status", string(mission.Status)),
		zap.Int("tasks", len(mission.Tasks)))

	return nil
}

// Get implements MissionArchive.Get
func (s *SQLiteMissionArchive) Get(ctx context.Context, id string) (*model.Mission, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, priority, status, progress,
			created_at, started_at, completed_at, results, metrics
		FROM missions
		WHERE id = ?`, id)

	mission, err := scanMission(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	tasks, err := s.missionTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	mission.Tasks = tasks

	return mission, nil
}

// List implements MissionArchive.List
func (s *SQLiteMissionArchive) List(ctx context.Context, status model.MissionStatus, offset, limit int) ([]*model.Mission, error) {
	query := `
		SELECT id, description, priority, status, progress,
			created_at, started_at, completed_at, results, metrics
		FROM missions`
	args := make([]interface{}, 0, 3)

	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY completed_at DESC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list missions: %w", err)
	}
	defer rows.Close()

	var missions []*model.Mission
	for rows.Next() {
		mission, err := scanMission(rows)
		if err != nil {
			return nil, err
		}
		missions = append(missions, mission)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return missions, nil
}

// DeleteBefore implements MissionArchive.DeleteBefore
func (s *SQLiteMissionArchive) DeleteBefore(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM mission_tasks WHERE mission_id IN
			(SELECT id FROM missions WHERE completed_at < ?)`, before)
	if err != nil {
		return fmt.Errorf("failed to delete mission tasks: %w", err)
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM missions WHERE completed_at < ?", before)
	if err != nil {
		return fmt.Errorf("failed to delete missions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	s.logger.Info("Deleted old archived missions",
		zap.Time("before", before),
		zap.Int64("deleted", affected))

	return nil
}

// Close closes the database connection
func (s *SQLiteMissionArchive) Close() error {
	return s.db.Close()
}

func (s *SQLiteMissionArchive) missionTasks(ctx context.Context, missionID string) ([]*model.Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, type, status, priority, seq,
			assigned_agent, error, result, started_at, completed_at
		FROM mission_tasks
		WHERE mission_id = ?
		ORDER BY seq ASC`, missionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query mission tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{MissionID: missionID}
		var priority int
		var assignedAgent, errMsg, result sql.NullString
		var startedAt, completedAt sql.NullTime

		err := rows.Scan(
			&task.ID,
			&task.Name,
			&task.Type,
			&task.Status,
			&priority,
			&task.Seq,
			&assignedAgent,
			&errMsg,
			&result,
			&startedAt,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission task: %w", err)
		}

		task.Priority = model.TaskPriority(priority)
		if assignedAgent.Valid {
			task.AssignedAgent = assignedAgent.String
		}
		if errMsg.Valid {
			task.ErrorMessage = errMsg.String
		}
		if result.Valid && result.String != "" && result.String != "null" {
			if err := json.Unmarshal([]byte(result.String), &task.Result); err != nil {
				return nil, fmt.Errorf("failed to unmarshal task result: %w", err)
			}
		}
		if startedAt.Valid {
			task.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			task.CompletedAt = &completedAt.Time
		}

		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return tasks, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMission(row rowScanner) (*model.Mission, error) {
	mission := &model.Mission{}
	var priority int
	var status string
	var startedAt, completedAt sql.NullTime
	var results, metrics sql.NullString

	err := row.Scan(
		&mission.ID,
		&mission.Description,
		&priority,
		&status,
		&mission.ProgressPercentage,
		&mission.CreatedAt,
		&startedAt,
		&completedAt,
		&results,
		&metrics,
	)
	if err != nil {
		return nil, err
	}

	mission.Priority = model.TaskPriority(priority)
	mission.Status = model.MissionStatus(status)
	if startedAt.Valid {
		mission.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		mission.CompletedAt = &completedAt.Time
	}
	if results.Valid && results.String != "" && results.String != "null" {
		if err := json.Unmarshal([]byte(results.String), &mission.Results); err != nil {
			return nil, fmt.Errorf("failed to unmarshal results: %w", err)
		}
	}
	if metrics.Valid && metrics.String != "" {
		if err := json.Unmarshal([]byte(metrics.String), &mission.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return mission, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
