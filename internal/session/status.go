package session

// QuestionStatus enumerates the per-question palette states. The five states
// stay distinct internally; UI summaries may fold the two answered variants
// into a single "answered" total via StatusCounts.Attempted.
type QuestionStatus string

const (
	StatusNotVisited     QuestionStatus = "not-visited"
	StatusNotAnswered    QuestionStatus = "not-answered"
	StatusAnswered       QuestionStatus = "answered"
	StatusMarkedReview   QuestionStatus = "marked-review"
	StatusAnsweredMarked QuestionStatus = "answered-marked"
)

// hasAnswer reports whether a status carries a committed answer.
func (s QuestionStatus) hasAnswer() bool {
	return s == StatusAnswered || s == StatusAnsweredMarked
}

// marked reports whether the review flag is set.
func (s QuestionStatus) marked() bool {
	return s == StatusMarkedReview || s == StatusAnsweredMarked
}

// open reports whether the question is still available for answering in the
// skip wrap-around search.
func (s QuestionStatus) open() bool {
	return s == StatusNotVisited || s == StatusNotAnswered
}

// StatusCounts aggregates palette states across all questions.
type StatusCounts struct {
	NotVisited     int `json:"not_visited"`
	NotAnswered    int `json:"not_answered"`
	Answered       int `json:"answered"`
	MarkedReview   int `json:"marked_review"`
	AnsweredMarked int `json:"answered_marked"`
}

// Attempted returns the binary "answered" total shown in UI legends:
// answered plus answered-marked.
func (c StatusCounts) Attempted() int {
	return c.Answered + c.AnsweredMarked
}
