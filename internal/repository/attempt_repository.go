package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// AttemptRepository handles attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

const attemptColumns = `id, test_id, user_id, started_at, finished_at, status,
	 score, correct, incorrect, skipped, percentage, accuracy, elapsed_seconds, topic_breakdown`

func scanAttempt(row interface{ Scan(...any) error }) (*model.Attempt, error) {
	a := &model.Attempt{}
	var breakdown []byte
	err := row.Scan(&a.ID, &a.TestID, &a.UserID, &a.StartedAt, &a.FinishedAt, &a.Status,
		&a.Score, &a.Correct, &a.Incorrect, &a.Skipped, &a.Percentage, &a.Accuracy, &a.ElapsedSeconds, &breakdown)
	if err != nil {
		return nil, err
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &a.TopicBreakdown); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// GetByTestAndUser retrieves the attempt for a test-user combination.
// One row per pair: starting is idempotent.
func (r *AttemptRepository) GetByTestAndUser(ctx context.Context, testID uuid.UUID, userID int) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE test_id = $1 AND user_id = $2`, testID, userID))
}

// GetByID retrieves an attempt by its UUID.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(r.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE id = $1`, id))
}

// Create inserts a new in-progress attempt. ON CONFLICT DO NOTHING keeps a
// concurrent double-start from creating two rows; the caller detects the
// no-row case and re-fetches.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (test_id, user_id, status)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (test_id, user_id) DO NOTHING
		 RETURNING id, started_at`,
		a.TestID, a.UserID, model.AttemptStatusInProgress,
	).Scan(&a.ID, &a.StartedAt)
}

// Complete marks an attempt COMPLETED with its graded summary. Used as the
// synchronous fallback when the result worker is unavailable.
func (r *AttemptRepository) Complete(ctx context.Context, attemptID uuid.UUID, summary scoring.Summary, elapsedSeconds int) error {
	breakdown, err := json.Marshal(summary.TopicBreakdown)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, score = $2, correct = $3, incorrect = $4, skipped = $5,
		     percentage = $6, accuracy = $7, elapsed_seconds = $8, topic_breakdown = $9,
		     finished_at = $10
		 WHERE id = $11`,
		model.AttemptStatusCompleted, summary.Score, summary.Correct, summary.Incorrect, summary.Skipped,
		summary.Percentage, summary.Accuracy, elapsedSeconds, breakdown, time.Now(), attemptID)
	return err
}

// Abandon marks an attempt ABANDONED without result data.
func (r *AttemptRepository) Abandon(ctx context.Context, attemptID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET status = $1, finished_at = $2
		 WHERE id = $3 AND status = $4`,
		model.AttemptStatusAbandoned, time.Now(), attemptID, model.AttemptStatusInProgress)
	return err
}

// ListByUser retrieves a user's attempt history with pagination, newest first.
func (r *AttemptRepository) ListByUser(ctx context.Context, userID, limit, offset int) ([]model.Attempt, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+attemptColumns+`
		 FROM attempts
		 WHERE user_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, userID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, total, rows.Err()
}
