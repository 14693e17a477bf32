package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// MockTest represents one generated practice test owned by a user.
type MockTest struct {
	ID               uuid.UUID `json:"id"`
	OwnerID          int       `json:"owner_id"`
	Title            string    `json:"title"`
	Subject          string    `json:"subject"`
	DurationMinutes  int       `json:"duration_minutes"`
	MarksPerQuestion float64   `json:"marks_per_question"`
	NegativeMarking  float64   `json:"negative_marking"`
	QuestionCount    int       `json:"question_count"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Scheme returns the test's marking scheme.
func (t MockTest) Scheme() scoring.MarkingScheme {
	return scoring.MarkingScheme{
		MarksPerQuestion: t.MarksPerQuestion,
		NegativeMarking:  t.NegativeMarking,
	}
}

// CreateTestRequest is the payload for registering a generated test. The
// question set arrives fully formed from the generation pipeline.
type CreateTestRequest struct {
	Title            string               `json:"title" binding:"required,min=3,max=255"`
	Subject          string               `json:"subject" binding:"max=120"`
	DurationMinutes  int                  `json:"duration_minutes" binding:"required,min=1,max=480"`
	MarksPerQuestion *float64             `json:"marks_per_question" binding:"omitempty,gt=0,lte=10"`
	NegativeMarking  *float64             `json:"negative_marking" binding:"omitempty,gte=0,lte=2"`
	Questions        []AddQuestionRequest `json:"questions" binding:"required,min=1,dive"`
}

// TestPayload is the Redis-cached bundle sent to a player at attempt start.
// Never contains correct answers.
type TestPayload struct {
	TestID          uuid.UUID             `json:"test_id"`
	Title           string                `json:"title"`
	DurationMinutes int                   `json:"duration_minutes"`
	Scheme          scoring.MarkingScheme `json:"scheme"`
	Questions       []QuestionForPlayer   `json:"questions"`
}
