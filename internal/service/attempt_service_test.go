package service

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/model"
)

func newResumeFixture(t *testing.T) (*AttemptService, *miniredis.Miniredis, *model.Attempt) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	svc := NewAttemptService(nil, nil, rdb, zerolog.Nop())
	attempt := &model.Attempt{
		ID:        uuid.New(),
		TestID:    uuid.New(),
		UserID:    3,
		StartedAt: time.Now().Add(-5 * time.Minute),
		Status:    model.AttemptStatusInProgress,
	}
	return svc, mr, attempt
}

func TestAttemptService_ResumeSeed(t *testing.T) {
	svc, mr, attempt := newResumeFixture(t)
	ctx := context.Background()

	mr.Set(
		config.CacheKey.AttemptStartKey(attempt.TestID.String(), attempt.UserID),
		strconv.FormatInt(attempt.StartedAt.Unix(), 10),
	)
	answersKey := config.CacheKey.AttemptAnswersKey(attempt.TestID.String(), attempt.UserID)
	mr.HSet(answersKey, "0", "A) one")
	mr.HSet(answersKey, "2", "C) three")
	mr.HSet(answersKey, "junk", "ignored")

	elapsed, answers, err := svc.ResumeSeed(ctx, attempt)
	if err != nil {
		t.Fatalf("ResumeSeed: %v", err)
	}

	if elapsed < 299 || elapsed > 302 {
		t.Errorf("elapsed = %d, want about 300 (anchored to started_at)", elapsed)
	}
	if len(answers) != 2 {
		t.Errorf("answers = %v, want the two numeric-field entries", answers)
	}
	if answers[0] != "A) one" || answers[2] != "C) three" {
		t.Errorf("autosaved answers lost: %v", answers)
	}
}

func TestAttemptService_ResumeSeed_SelfHealsStartKey(t *testing.T) {
	svc, mr, attempt := newResumeFixture(t)
	ctx := context.Background()

	// Start key expired: the clock falls back to the database row and the
	// cache is repopulated.
	elapsed, answers, err := svc.ResumeSeed(ctx, attempt)
	if err != nil {
		t.Fatalf("ResumeSeed: %v", err)
	}

	if elapsed < 299 || elapsed > 302 {
		t.Errorf("elapsed = %d, want about 300 from the stored row", elapsed)
	}
	if len(answers) != 0 {
		t.Errorf("answers = %v, want none", answers)
	}

	startKey := config.CacheKey.AttemptStartKey(attempt.TestID.String(), attempt.UserID)
	if !mr.Exists(startKey) {
		t.Error("start key was not re-cached from the attempt row")
	}
}
