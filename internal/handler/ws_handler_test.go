package handler

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepstack/prepstack-backend/internal/config"
	"github.com/prepstack/prepstack-backend/internal/model"
	"github.com/prepstack/prepstack-backend/internal/scoring"
	"github.com/prepstack/prepstack-backend/internal/session"
	"github.com/prepstack/prepstack-backend/internal/worker"
)

func TestWSHandler_HandleSubmissionQueuesGradedResult(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := &WSHandler{
		rdb:      rdb,
		registry: session.NewRegistry(),
		log:      zerolog.Nop(),
	}

	attempt := &model.Attempt{
		ID:     uuid.New(),
		TestID: uuid.New(),
		UserID: 5,
		Status: model.AttemptStatusInProgress,
	}
	questions := []scoring.Question{
		{
			Text:          "What is 2 + 2?",
			Options:       []string{"A) 3", "B) 4"},
			CorrectAnswer: "B",
			Topic:         "Arithmetic",
		},
		{
			Text:          "Solve x: 2x = 10",
			Options:       []string{"A) 5", "B) 10"},
			CorrectAnswer: "A",
			Topic:         "Algebra",
		},
	}

	h.handleSubmission(attempt, questions, scoring.DefaultMarkingScheme(), scoring.AnswerMap{
		0: "B) 4",
		1: "B) 10",
	}, 42)

	raw, err := rdb.LPop(context.Background(), config.WorkerKey.PersistResultsQueue).Bytes()
	if err != nil {
		t.Fatalf("graded result never reached the persist queue: %v", err)
	}

	var p worker.ResultPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("queued payload is not valid JSON: %v", err)
	}

	if p.AttemptID != attempt.ID || p.TestID != attempt.TestID || p.UserID != 5 {
		t.Errorf("payload identity mismatch: %+v", p)
	}
	if p.Correct != 1 || p.Incorrect != 1 || p.Skipped != 0 {
		t.Errorf("partition = %d/%d/%d, want 1/1/0", p.Correct, p.Incorrect, p.Skipped)
	}
	if p.ElapsedSeconds != 42 {
		t.Errorf("ElapsedSeconds = %d, want 42", p.ElapsedSeconds)
	}
	if len(p.TopicBreakdown) != 2 || p.TopicBreakdown[0].Topic != "Arithmetic" {
		t.Errorf("topic breakdown = %+v, want Arithmetic first", p.TopicBreakdown)
	}
}
