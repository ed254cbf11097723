// Package history persists pipeline run records in a local SQLite database so
// operators can answer "what did build N publish" without digging through CI
// logs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/lodestar-cd/lodestar/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	pipeline     TEXT NOT NULL,
	commit_hash  TEXT NOT NULL,
	branch       TEXT NOT NULL,
	build_number INTEGER NOT NULL,
	image_ref    TEXT NOT NULL,
	status       TEXT NOT NULL,
	failed_stage TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS run_stages (
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	status      TEXT NOT NULL,
	duration_ms INTEGER NOT NULL,
	detail      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (run_id, position)
);
`

// Run is one recorded pipeline execution.
type Run struct {
	ID          int64
	Pipeline    string
	CommitHash  string
	Branch      string
	BuildNumber int
	ImageRef    string
	Status      string
	FailedStage string
	CreatedAt   time.Time
	Stages      []StageRecord
}

type StageRecord struct {
	Name     string
	Status   string
	Duration time.Duration
	Detail   string
}

// Store wraps the SQLite database holding run history.
type Store struct {
	db  *sql.DB
	log *logging.Logger
}

// Open opens (and if necessary creates) the history database at path.
func Open(path string, log *logging.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts a run and its stage results, returning the run id.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO runs (pipeline, commit_hash, branch, build_number, image_ref, status, failed_stage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Pipeline, run.CommitHash, run.Branch, run.BuildNumber, run.ImageRef, run.Status, run.FailedStage, run.CreatedAt)
	if err != nil {
		return 0, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for i, stage := range run.Stages {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, position, name, status, duration_ms, detail)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, stage.Name, stage.Status, stage.Duration.Milliseconds(), stage.Detail); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	s.log.Debugf("recorded run #%d for build %d", id, run.BuildNumber)
	return id, nil
}

// Recent returns up to limit runs, newest first, with their stage results.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pipeline, commit_hash, branch, build_number, image_ref, status, failed_stage, created_at
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Pipeline, &run.CommitHash, &run.Branch, &run.BuildNumber,
			&run.ImageRef, &run.Status, &run.FailedStage, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range runs {
		if runs[i].Stages, err = s.stages(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}

	return runs, nil
}

func (s *Store) stages(ctx context.Context, runID int64) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, duration_ms, detail FROM run_stages WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []StageRecord
	for rows.Next() {
		var stage StageRecord
		var ms int64
		if err := rows.Scan(&stage.Name, &stage.Status, &ms, &stage.Detail); err != nil {
			return nil, err
		}
		stage.Duration = time.Duration(ms) * time.Millisecond
		stages = append(stages, stage)
	}

	return stages, rows.Err()
}
