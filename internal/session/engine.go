package session

import (
	"errors"
	"sync"
	"time"

	"github.com/prepstack/prepstack-backend/internal/scoring"
)

// Engine errors. ErrNoSelection is the one soft validation in the whole
// machine: surfaced to the user, action simply not performed.
var (
	ErrNoQuestions   = errors.New("question set is empty")
	ErrBadDuration   = errors.New("duration must be a positive number of minutes")
	ErrNoSelection   = errors.New("no option selected")
	ErrSessionClosed = errors.New("session already finished")
	ErrIndexRange    = errors.New("question index out of range")
)

// SubmitReason records which path ended the attempt.
type SubmitReason string

const (
	SubmitManual  SubmitReason = "manual"
	SubmitTimeout SubmitReason = "timeout"
)

// Config constructs an Engine.
type Config struct {
	Questions       []scoring.Question
	DurationMinutes int
	// Scheme is only carried for live marking display; the engine never
	// scores mid-test. Zero value falls back to the default scheme.
	Scheme scoring.MarkingScheme

	// ElapsedSeconds is time already consumed before construction. The
	// attempt clock starts at the stored start timestamp, not at the first
	// connection, so a late or rebuilt engine opens with a shortened
	// countdown. Values at or past the budget leave zero remaining and the
	// first tick forces the timeout submission.
	ElapsedSeconds int
	// SavedAnswers re-seeds committed answers after a reconnect or process
	// restart. Seeded indexes start as answered; out-of-range entries are
	// ignored.
	SavedAnswers scoring.AnswerMap

	// OnSubmit receives the frozen answer map and elapsed seconds. Called
	// exactly once per session, on manual confirm or timer expiry.
	OnSubmit func(answers scoring.AnswerMap, elapsedSeconds int)
	// OnExit is called when the user abandons the attempt. No answer data
	// is passed and OnSubmit will never fire afterwards.
	OnExit func()

	// TickInterval overrides the 1s timer tick. Tests shorten it; the
	// remaining-seconds bookkeeping is interval-agnostic.
	TickInterval time.Duration
}

// Engine is the test-taking state machine: one question displayed at a time,
// per-question palette status, a countdown owned by the engine, and a single
// guaranteed submission. All methods are serialized by an internal mutex, so
// a race between a user action and a timer tick can never double-submit.
type Engine struct {
	mu sync.Mutex

	questions []scoring.Question
	scheme    scoring.MarkingScheme
	onSubmit  func(scoring.AnswerMap, int)
	onExit    func()

	totalSeconds int
	remaining    int
	current      int
	pending      string
	answers      scoring.AnswerMap
	statuses     []QuestionStatus
	closed       bool
	endReason    SubmitReason

	stop     chan struct{}
	stopOnce sync.Once
}

// Snapshot is a consistent read-only view for rendering the question screen
// and palette.
type Snapshot struct {
	CurrentIndex     int                   `json:"current_index"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	TotalSeconds     int                   `json:"total_seconds"`
	Pending          string                `json:"pending,omitempty"`
	Statuses         []QuestionStatus      `json:"statuses"`
	Answers          map[int]string        `json:"answers"`
	Counts           StatusCounts          `json:"counts"`
	Scheme           scoring.MarkingScheme `json:"scheme"`
	Finished         bool                  `json:"finished"`
}

// New validates the inputs, starts the countdown and returns a live engine.
// Question 0 is visible immediately, so its status starts as not-answered
// rather than not-visited.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Questions) == 0 {
		return nil, ErrNoQuestions
	}
	if cfg.DurationMinutes <= 0 {
		return nil, ErrBadDuration
	}

	scheme := cfg.Scheme
	if scheme == (scoring.MarkingScheme{}) {
		scheme = scoring.DefaultMarkingScheme()
	}

	interval := cfg.TickInterval
	if interval <= 0 {
		interval = time.Second
	}

	statuses := make([]QuestionStatus, len(cfg.Questions))
	for i := range statuses {
		statuses[i] = StatusNotVisited
	}
	statuses[0] = StatusNotAnswered

	answers := make(scoring.AnswerMap, len(cfg.SavedAnswers))
	for i, a := range cfg.SavedAnswers {
		if i < 0 || i >= len(cfg.Questions) || a == "" {
			continue
		}
		answers[i] = a
		statuses[i] = StatusAnswered
	}

	remaining := cfg.DurationMinutes*60 - cfg.ElapsedSeconds
	if remaining < 0 {
		remaining = 0
	}

	e := &Engine{
		questions:    cfg.Questions,
		scheme:       scheme,
		onSubmit:     cfg.OnSubmit,
		onExit:       cfg.OnExit,
		totalSeconds: cfg.DurationMinutes * 60,
		remaining:    remaining,
		answers:      answers,
		statuses:     statuses,
		stop:         make(chan struct{}),
	}

	go e.run(interval)
	return e, nil
}

// run is the countdown loop. One decrement per tick; reaching zero forces a
// timeout submission. The stop channel is closed the instant any submission
// or exit path executes, so a delayed tick can never fire a second one.
func (e *Engine) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.mu.Lock()
			if e.closed {
				e.mu.Unlock()
				return
			}
			e.remaining--
			var fire func()
			if e.remaining <= 0 {
				e.remaining = 0
				e.endReason = SubmitTimeout
				fire = e.finishLocked()
			}
			e.mu.Unlock()

			if fire != nil {
				fire()
				return
			}
		}
	}
}

// SelectOption records a pending, uncommitted choice for the current
// question. Nothing reaches the answer map or the palette until a commit
// action (save or mark) is taken.
func (e *Engine) SelectOption(option string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	e.pending = option
	return nil
}

// SaveAndNext commits the pending selection and advances. Without a pending
// selection it returns ErrNoSelection and changes nothing; this is the only
// blocking validation in the machine. On the last question it reports
// whether every question is now answered, so the host can auto-surface the
// submit confirmation.
func (e *Engine) SaveAndNext() (allAnswered bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrSessionClosed
	}
	if e.pending == "" {
		return false, ErrNoSelection
	}

	e.answers[e.current] = e.pending
	if e.statuses[e.current].marked() {
		e.statuses[e.current] = StatusAnsweredMarked
	} else {
		e.statuses[e.current] = StatusAnswered
	}
	e.pending = ""

	if e.current == len(e.questions)-1 {
		return e.allAnsweredLocked(), nil
	}

	e.current++
	e.visitLocked(e.current)
	return false, nil
}

// ClearResponse removes the committed answer for the current question and
// resets the pending selection. Review intent is sticky: answered-marked
// falls back to marked-review, not not-answered. Does not navigate.
func (e *Engine) ClearResponse() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}

	delete(e.answers, e.current)
	e.pending = ""
	if e.statuses[e.current] == StatusAnsweredMarked {
		e.statuses[e.current] = StatusMarkedReview
	} else {
		e.statuses[e.current] = StatusNotAnswered
	}
	return nil
}

// MarkForReviewAndNext flags the current question for review and advances.
// A pending selection is committed alongside the flag; marking without an
// answer is allowed but reported back (warned=true) so the host can show a
// non-blocking notice.
func (e *Engine) MarkForReviewAndNext() (warned bool, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false, ErrSessionClosed
	}

	if e.pending != "" {
		e.answers[e.current] = e.pending
		e.statuses[e.current] = StatusAnsweredMarked
		e.pending = ""
	} else {
		e.statuses[e.current] = StatusMarkedReview
		warned = true
	}

	if e.current < len(e.questions)-1 {
		e.current++
		e.visitLocked(e.current)
	}
	return warned, nil
}

// Skip leaves the current question without committing anything. It never
// un-answers: an answered question keeps its status. From the last index it
// wraps around to the first still-open question, or stays put if none.
func (e *Engine) Skip() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}

	if !e.statuses[e.current].hasAnswer() {
		e.statuses[e.current] = StatusNotAnswered
	}
	e.pending = ""

	if e.current < len(e.questions)-1 {
		e.current++
		e.visitLocked(e.current)
		return nil
	}

	for i := range e.statuses {
		if e.statuses[i].open() {
			e.current = i
			e.visitLocked(i)
			return nil
		}
	}
	return nil
}

// GoToQuestion jumps directly via the palette. The pending selection of the
// question being left is silently discarded; this is deliberate, palette
// navigation never commits.
func (e *Engine) GoToQuestion(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrSessionClosed
	}
	if index < 0 || index >= len(e.questions) {
		return ErrIndexRange
	}

	e.pending = ""
	e.current = index
	e.visitLocked(index)
	return nil
}

// Submit freezes the session and hands the answer map plus elapsed seconds
// to OnSubmit. Idempotent: the second and later calls, from any path, are
// no-ops.
func (e *Engine) Submit(reason SubmitReason) {
	e.mu.Lock()
	if !e.closed {
		e.endReason = reason
	}
	fire := e.finishLocked()
	e.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// EndReason reports which path closed the session; empty while running or
// after Exit.
func (e *Engine) EndReason() SubmitReason {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endReason
}

// Exit abandons the attempt: the timer stops, in-flight state is discarded
// and OnExit fires instead of OnSubmit. No-op after submission.
func (e *Engine) Exit() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.stopTimer()
	onExit := e.onExit
	e.mu.Unlock()

	if onExit != nil {
		onExit()
	}
}

// Snapshot returns a consistent copy of the visible state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	statuses := make([]QuestionStatus, len(e.statuses))
	copy(statuses, e.statuses)

	answers := make(map[int]string, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}

	return Snapshot{
		CurrentIndex:     e.current,
		RemainingSeconds: e.remaining,
		TotalSeconds:     e.totalSeconds,
		Pending:          e.pending,
		Statuses:         statuses,
		Answers:          answers,
		Counts:           e.countsLocked(),
		Scheme:           e.scheme,
		Finished:         e.closed,
	}
}

// StatusCounts aggregates the five palette states.
func (e *Engine) StatusCounts() StatusCounts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.countsLocked()
}

// Question returns the question at the given index for rendering.
func (e *Engine) Question(index int) (scoring.Question, bool) {
	if index < 0 || index >= len(e.questions) {
		return scoring.Question{}, false
	}
	return e.questions[index], true
}

// QuestionCount returns the size of the fixed question set.
func (e *Engine) QuestionCount() int {
	return len(e.questions)
}

// Scheme returns the marking scheme for live penalty display.
func (e *Engine) Scheme() scoring.MarkingScheme {
	return e.scheme
}

// finishLocked transitions to the submitted state and returns the OnSubmit
// invocation to run outside the lock, or nil if the session was already
// closed. Both the manual path and the timer path funnel through here.
func (e *Engine) finishLocked() func() {
	if e.closed {
		return nil
	}
	e.closed = true
	e.stopTimer()

	elapsed := e.totalSeconds - e.remaining
	answers := make(scoring.AnswerMap, len(e.answers))
	for k, v := range e.answers {
		answers[k] = v
	}

	onSubmit := e.onSubmit
	if onSubmit == nil {
		return nil
	}
	return func() { onSubmit(answers, elapsed) }
}

func (e *Engine) stopTimer() {
	e.stopOnce.Do(func() { close(e.stop) })
}

// visitLocked flips not-visited to not-answered: displaying a question
// counts as visiting it.
func (e *Engine) visitLocked(index int) {
	if e.statuses[index] == StatusNotVisited {
		e.statuses[index] = StatusNotAnswered
	}
}

func (e *Engine) allAnsweredLocked() bool {
	for _, s := range e.statuses {
		if !s.hasAnswer() {
			return false
		}
	}
	return true
}

func (e *Engine) countsLocked() StatusCounts {
	var c StatusCounts
	for _, s := range e.statuses {
		switch s {
		case StatusNotVisited:
			c.NotVisited++
		case StatusNotAnswered:
			c.NotAnswered++
		case StatusAnswered:
			c.Answered++
		case StatusMarkedReview:
			c.MarkedReview++
		case StatusAnsweredMarked:
			c.AnsweredMarked++
		}
	}
	return c
}
