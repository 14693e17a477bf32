package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// AttemptStatus enumerates attempt states.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusAbandoned  AttemptStatus = "ABANDONED"
)

// Attempt represents a user's run at a mock test. Result columns are nil
// until the result worker persists the graded summary.
type Attempt struct {
	ID             uuid.UUID           `json:"id"`
	TestID         uuid.UUID           `json:"test_id"`
	UserID         int                 `json:"user_id"`
	StartedAt      time.Time           `json:"started_at"`
	FinishedAt     *time.Time          `json:"finished_at,omitempty"`
	Status         AttemptStatus       `json:"status"`
	Score          *float64            `json:"score,omitempty"`
	Correct        *int                `json:"correct,omitempty"`
	Incorrect      *int                `json:"incorrect,omitempty"`
	Skipped        *int                `json:"skipped,omitempty"`
	Percentage     *float64            `json:"percentage,omitempty"`
	Accuracy       *float64            `json:"accuracy,omitempty"`
	ElapsedSeconds *int                `json:"elapsed_seconds,omitempty"`
	TopicBreakdown []scoring.TopicStat `json:"topic_breakdown,omitempty"`
}

// AttemptState is what a reloading client needs to resume an in-progress
// attempt: the committed answers and the authoritative remaining time.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	TestID           uuid.UUID         `json:"test_id"`
	UserID           int               `json:"user_id"`
	SavedAnswers     map[string]string `json:"saved_answers"`
	RemainingSeconds float64           `json:"remaining_seconds"`
}
