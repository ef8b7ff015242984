package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// Run is a completed training run.
type Run struct {
	ID            string       `db:"id" json:"id"`
	Timestamp     string       `db:"timestamp" json:"timestamp"`
	ModelPath     string       `db:"model_path" json:"model_path"`
	EncoderPath   string       `db:"encoder_path" json:"encoder_path"`
	HistoryPath   string       `db:"history_path" json:"history_path"`
	Samples       int          `db:"samples" json:"samples"`
	Epochs        int          `db:"epochs" json:"epochs"`
	TrainAccuracy float64      `db:"train_accuracy" json:"train_accuracy"`
	TestAccuracy  float64      `db:"test_accuracy" json:"test_accuracy"`
	TestLoss      float64      `db:"test_loss" json:"test_loss"`
	DurationMS    int64        `db:"duration_ms" json:"duration_ms"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	Classes       []ClassCount `db:"-" json:"classes"`
}

// ClassCount is the number of samples of one label in a run.
type ClassCount struct {
	Label   string `db:"label" json:"label"`
	Samples int    `db:"samples" json:"samples"`
}

const (
	queryInsertRun = `INSERT INTO training_runs
		(id, timestamp, model_path, encoder_path, history_path, samples, epochs,
		 train_accuracy, test_accuracy, test_loss, duration_ms, created_at)
		VALUES
		(:id, :timestamp, :model_path, :encoder_path, :history_path, :samples, :epochs,
		 :train_accuracy, :test_accuracy, :test_loss, :duration_ms, :created_at)`

	queryInsertClass = `INSERT INTO run_classes (run_id, label, samples) VALUES (?, ?, ?)`

	querySelectRuns = `SELECT id, timestamp, model_path, encoder_path, history_path, samples, epochs,
		train_accuracy, test_accuracy, test_loss, duration_ms, created_at
		FROM training_runs`

	querySelectClasses = `SELECT label, samples FROM run_classes WHERE run_id = ? ORDER BY label`
)

// RunRepository provides access to training runs.
type RunRepository struct {
	db *sqlx.DB
}

// Runs returns the training run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

// Create inserts a run and its class counts. An empty ID is filled with a
// new UUID.
func (r *RunRepository) Create(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, queryInsertRun, run); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, c := range run.Classes {
		if _, err := tx.ExecContext(ctx, queryInsertClass, run.ID, c.Label, c.Samples); err != nil {
			return fmt.Errorf("insert class %q: %w", c.Label, err)
		}
	}

	return tx.Commit()
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*Run, error) {
	return r.getOne(ctx, querySelectRuns+` WHERE id = ?`, id)
}

// GetByTimestamp retrieves the run that produced the artifact with the
// given timestamp.
func (r *RunRepository) GetByTimestamp(ctx context.Context, ts string) (*Run, error) {
	return r.getOne(ctx, querySelectRuns+` WHERE timestamp = ?`, ts)
}

// Latest retrieves the most recent run.
func (r *RunRepository) Latest(ctx context.Context) (*Run, error) {
	return r.getOne(ctx, querySelectRuns+` ORDER BY created_at DESC, timestamp DESC LIMIT 1`)
}

// List retrieves all runs, newest first.
func (r *RunRepository) List(ctx context.Context) ([]*Run, error) {
	var runs []*Run
	if err := r.db.SelectContext(ctx, &runs, querySelectRuns+` ORDER BY created_at DESC, timestamp DESC`); err != nil {
		return nil, err
	}

	for _, run := range runs {
		if err := r.loadClasses(ctx, run); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Delete removes a run and its class counts.
func (r *RunRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM training_runs WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *RunRepository) getOne(ctx context.Context, query string, args ...any) (*Run, error) {
	run := &Run{}
	if err := r.db.GetContext(ctx, run, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := r.loadClasses(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *RunRepository) loadClasses(ctx context.Context, run *Run) error {
	var classes []ClassCount
	if err := r.db.SelectContext(ctx, &classes, querySelectClasses, run.ID); err != nil {
		return fmt.Errorf("load classes for run %s: %w", run.ID, err)
	}
	run.Classes = classes
	return nil
}
