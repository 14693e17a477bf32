package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prepstack/prepstack-backend/internal/model"
)

// MockTestRepository handles mock test and question data access.
type MockTestRepository struct {
	pool *pgxpool.Pool
}

// NewMockTestRepository creates a new MockTestRepository.
func NewMockTestRepository(pool *pgxpool.Pool) *MockTestRepository {
	return &MockTestRepository{pool: pool}
}

// Create inserts a test and its question set in one transaction.
func (r *MockTestRepository) Create(ctx context.Context, t *model.MockTest, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO mock_tests (owner_id, title, subject, duration_minutes, marks_per_question, negative_marking, question_count)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		t.OwnerID, t.Title, t.Subject, t.DurationMinutes, t.MarksPerQuestion, t.NegativeMarking, len(questions),
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert test: %w", err)
	}
	t.QuestionCount = len(questions)

	for i := range questions {
		q := &questions[i]
		q.TestID = t.ID
		q.OrderNum = i

		opts, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("marshal options: %w", err)
		}

		err = tx.QueryRow(ctx,
			`INSERT INTO questions (test_id, text, options, correct_answer, explanation, topic, difficulty, order_num)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 RETURNING id`,
			q.TestID, q.Text, opts, q.CorrectAnswer, q.Explanation, q.Topic, q.Difficulty, q.OrderNum,
		).Scan(&q.ID)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a test by its UUID.
func (r *MockTestRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.MockTest, error) {
	t := &model.MockTest{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, subject, duration_minutes, marks_per_question, negative_marking, question_count, created_at, updated_at
		 FROM mock_tests WHERE id = $1`, id,
	).Scan(&t.ID, &t.OwnerID, &t.Title, &t.Subject, &t.DurationMinutes, &t.MarksPerQuestion, &t.NegativeMarking, &t.QuestionCount, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// ListByOwner retrieves a user's tests with pagination, newest first.
func (r *MockTestRepository) ListByOwner(ctx context.Context, ownerID, limit, offset int) ([]model.MockTest, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM mock_tests WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, title, subject, duration_minutes, marks_per_question, negative_marking, question_count, created_at, updated_at
		 FROM mock_tests
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var tests []model.MockTest
	for rows.Next() {
		var t model.MockTest
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Subject, &t.DurationMinutes, &t.MarksPerQuestion, &t.NegativeMarking, &t.QuestionCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, 0, err
		}
		tests = append(tests, t)
	}
	return tests, total, rows.Err()
}

// ListQuestions retrieves all questions for a test, ordered by position.
func (r *MockTestRepository) ListQuestions(ctx context.Context, testID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, test_id, text, options, correct_answer, explanation, topic, difficulty, order_num
		 FROM questions WHERE test_id = $1
		 ORDER BY order_num`, testID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var opts []byte
		if err := rows.Scan(&q.ID, &q.TestID, &q.Text, &opts, &q.CorrectAnswer, &q.Explanation, &q.Topic, &q.Difficulty, &q.OrderNum); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(opts, &q.Options); err != nil {
			return nil, fmt.Errorf("unmarshal options: %w", err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Delete removes a test and, via FK cascade, its questions and attempts.
func (r *MockTestRepository) Delete(ctx context.Context, id uuid.UUID, ownerID int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM mock_tests WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
