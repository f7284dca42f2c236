package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// ErrJobNotFound is returned when no job has the requested ID.
var ErrJobNotFound = errors.New("job not found")

type Job struct {
	ID         uuid.UUID       `json:"id"`
	Seed       string          `json:"seed"`
	Status     string          `json:"status"`
	Reason     *string         `json:"termination_reason,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Report     json.RawMessage `json:"report,omitempty"`
	Error      *string         `json:"error,omitempty"`
	Config     json.RawMessage `json:"config"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type IterationRecord struct {
	Iteration  int             `json:"iteration"`
	Confidence float64         `json:"confidence"`
	Retained   int             `json:"retained"`
	Result     json.RawMessage `json:"result"`
	CreatedAt  time.Time       `json:"created_at"`
}

type LogEntry struct {
	ID        int             `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Level     string          `json:"level"`
	Message   string          `json:"message"`
	Metadata  json.RawMessage `json:"metadata"`
}

const jobColumns = `id, seed, status, reason, confidence, report, error, config, created_at, updated_at`

func scanJob(row pgx.Row) (*Job, error) {
	job := &Job{}
	err := row.Scan(&job.ID, &job.Seed, &job.Status, &job.Reason, &job.Confidence,
		&job.Report, &job.Error, &job.Config, &job.CreatedAt, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return job, err
}

func (db *PostgresDB) CreateJob(ctx context.Context, seed string, config any) (*Job, error) {
	configJSON, err := json.Marshal(config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job config: %w", err)
	}

	query := `
		INSERT INTO research_jobs (id, seed, status, config)
		VALUES ($1, $2, 'pending', $3)
		RETURNING ` + jobColumns

	job, err := scanJob(db.Pool.QueryRow(ctx, query, uuid.New(), seed, configJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (db *PostgresDB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	job, err := scanJob(db.Pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM research_jobs WHERE id = $1`, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (db *PostgresDB) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := db.Pool.Query(ctx, `SELECT `+jobColumns+` FROM research_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func (db *PostgresDB) SetJobStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE research_jobs SET status = $2, updated_at = NOW() WHERE id = $1", id, status)
	return err
}

// SaveIteration stores one iteration and mirrors its confidence on the job.
func (db *PostgresDB) SaveIteration(ctx context.Context, jobID uuid.UUID, iteration int, confidence float64, retained int, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal iteration: %w", err)
	}

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO research_iterations (job_id, iteration, confidence, retained, result)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, iteration) DO UPDATE
		SET confidence = EXCLUDED.confidence, retained = EXCLUDED.retained, result = EXCLUDED.result
	`, jobID, iteration, confidence, retained, resultJSON)
	if err != nil {
		return fmt.Errorf("failed to save iteration: %w", err)
	}

	if _, err := tx.Exec(ctx, "UPDATE research_jobs SET confidence = $2, updated_at = NOW() WHERE id = $1", jobID, confidence); err != nil {
		return fmt.Errorf("failed to update job confidence: %w", err)
	}
	return tx.Commit(ctx)
}

func (db *PostgresDB) ListIterations(ctx context.Context, jobID uuid.UUID) ([]IterationRecord, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT iteration, confidence, retained, result, created_at
		FROM research_iterations
		WHERE job_id = $1
		ORDER BY iteration ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list iterations: %w", err)
	}
	defer rows.Close()

	var records []IterationRecord
	for rows.Next() {
		var r IterationRecord
		if err := rows.Scan(&r.Iteration, &r.Confidence, &r.Retained, &r.Result, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// FinishJob stores the final report. status is completed or failed depending
// on how the session ended.
func (db *PostgresDB) FinishJob(ctx context.Context, id uuid.UUID, status, reason string, confidence float64, report any, errMsg string) error {
	reportJSON, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	var errCol *string
	if errMsg != "" {
		errCol = &errMsg
	}

	_, err = db.Pool.Exec(ctx, `
		UPDATE research_jobs
		SET status = $2, reason = $3, confidence = $4, report = $5, error = $6, updated_at = NOW()
		WHERE id = $1
	`, id, status, reason, confidence, reportJSON, errCol)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// FailJob marks a job as failed before a report exists.
func (db *PostgresDB) FailJob(ctx context.Context, id uuid.UUID, errMsg string) error {
	_, err := db.Pool.Exec(ctx,
		"UPDATE research_jobs SET status = 'failed', error = $2, updated_at = NOW() WHERE id = $1", id, errMsg)
	return err
}

func (db *PostgresDB) InsertLog(ctx context.Context, jobID uuid.UUID, ts time.Time, level, message string, metadata []byte) error {
	_, err := db.Pool.Exec(ctx, `
		INSERT INTO research_logs (job_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, jobID, ts, level, message, metadata)
	return err
}

func (db *PostgresDB) GetJobLogs(ctx context.Context, jobID uuid.UUID) ([]LogEntry, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, timestamp, level, message, metadata
		FROM research_logs
		WHERE job_id = $1
		ORDER BY id ASC
	`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get logs: %w", err)
	}
	defer rows.Close()

	var logs []LogEntry
	for rows.Next() {
		var l LogEntry
		if err := rows.Scan(&l.ID, &l.Timestamp, &l.Level, &l.Message, &l.Metadata); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
