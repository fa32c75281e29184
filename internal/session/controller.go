package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/provafacil/simulado-backend/internal/model"
	"github.com/rs/zerolog"
)

// Status is the controller's lifecycle state.
type Status string

const (
	StatusLoading    Status = "LOADING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusSubmitting Status = "SUBMITTING"
	StatusFinished   Status = "FINISHED"
	// StatusRedirected means the attempt was already finished at load time;
	// the caller must send the participant to the results view.
	StatusRedirected Status = "REDIRECTED"
	// StatusFailed means loading failed; Retry is available. A silent
	// forever-spinner is not an acceptable rendering of this state.
	StatusFailed Status = "FAILED"
)

// Snapshot is the state exposed to the rendering collaborator.
type Snapshot struct {
	Status           Status  `json:"status"`
	FormattedTime    string  `json:"formatted_time"`
	IsWarning        bool    `json:"is_warning"`
	RemainingSeconds int     `json:"remaining_seconds"`
	CurrentIndex     int     `json:"current_index"`
	CurrentQuestion  *string `json:"current_question_id,omitempty"`
	AnsweredCount    int     `json:"answered_count"`
	TotalQuestions   int     `json:"total_questions"`
	ConfirmingFinish bool    `json:"confirming_finish"`
	UnansweredCount  int     `json:"unanswered_count"`
	Score            *int    `json:"score,omitempty"`
}

// Controller orchestrates one attempt for one rendering surface: navigation,
// the finish confirmation gate, and auto-submit on expiry. State machine:
// Loading → InProgress → Submitting → Finished, with Loading → Redirected
// when the attempt already finished and Loading → Failed (retryable) on load
// errors. Nothing leaves Finished.
type Controller struct {
	store     *Store
	countdown *Countdown
	clock     Clock
	log       zerolog.Logger

	examID        uuid.UUID
	participantID int
	questions     []model.Question

	mu         sync.Mutex
	status     Status
	index      int
	answers    map[uuid.UUID]string
	confirming bool
	startedAt  time.Time
	lastTick   Tick
	session    *model.AttemptSession
	submitting bool

	listeners    map[int]func(Snapshot)
	nextListener int

	cancelTicks context.CancelFunc
	ticksDone   chan struct{}
}

// NewController creates a controller for one (exam, participant) pair over an
// ordered question list. Call Start to load, Close to tear down.
func NewController(store *Store, countdown *Countdown, clock Clock, log zerolog.Logger, examID uuid.UUID, participantID int, questions []model.Question) *Controller {
	return &Controller{
		store:         store,
		countdown:     countdown,
		clock:         clock,
		log:           log.With().Str("component", "session_controller").Str("exam_id", examID.String()).Int("participant_id", participantID).Logger(),
		examID:        examID,
		participantID: participantID,
		questions:     questions,
		status:        StatusLoading,
		answers:       make(map[uuid.UUID]string),
		listeners:     make(map[int]func(Snapshot)),
	}
}

// Start resumes or creates the attempt, loads recorded answers, and begins
// the countdown. Safe to call again after a Failed load (retry affordance).
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusLoading && c.status != StatusFailed {
		c.mu.Unlock()
		return errors.New("controller already started")
	}
	c.status = StatusLoading
	c.mu.Unlock()
	c.notify()

	attempt, err := c.store.ResumeOrStart(ctx, c.examID, c.participantID)
	if errors.Is(err, ErrAlreadyFinished) {
		c.mu.Lock()
		c.session = attempt
		c.status = StatusRedirected
		c.mu.Unlock()
		c.notify()
		return nil
	}
	if err != nil {
		c.fail(err)
		return err
	}

	answers, err := c.store.LoadAnswers(ctx, c.examID, c.participantID)
	if err != nil {
		c.fail(err)
		return err
	}

	c.mu.Lock()
	c.session = attempt
	c.startedAt = attempt.StartedAt
	c.answers = answers
	c.lastTick = c.countdown.At(attempt.StartedAt, c.clock.Now())
	c.status = StatusInProgress

	tickCtx, cancel := context.WithCancel(context.Background())
	c.cancelTicks = cancel
	c.ticksDone = make(chan struct{})
	startedAt := c.startedAt
	c.mu.Unlock()
	c.notify()

	go func() {
		defer close(c.ticksDone)
		c.countdown.Run(tickCtx, startedAt, c.onTick)
	}()
	return nil
}

// Retry re-runs Start after a failed load.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.status != StatusFailed {
		c.mu.Unlock()
		return errors.New("retry only applies to a failed load")
	}
	c.mu.Unlock()
	return c.Start(ctx)
}

// Subscribe registers a listener notified on every state transition and tick.
// The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.mu.Lock()
	id := c.nextListener
	c.nextListener++
	c.listeners[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// SelectAnswer applies the selection optimistically to the local mirror, then
// persists it. On persistence failure the mirror rolls back and the error
// propagates for the surface to display.
func (c *Controller) SelectAnswer(ctx context.Context, questionID uuid.UUID, label string) error {
	c.mu.Lock()
	if c.status != StatusInProgress {
		c.mu.Unlock()
		return errors.New("attempt is not in progress")
	}
	prev, had := c.answers[questionID]
	c.answers[questionID] = label
	c.mu.Unlock()
	c.notify()

	if _, err := c.store.RecordAnswer(ctx, c.examID, c.participantID, questionID, label); err != nil {
		c.mu.Lock()
		if had {
			c.answers[questionID] = prev
		} else {
			delete(c.answers, questionID)
		}
		c.mu.Unlock()
		c.notify()
		return err
	}
	return nil
}

// Navigate moves the current question index, clamped to the question list.
// Never wraps.
func (c *Controller) Navigate(index int) {
	c.mu.Lock()
	if index < 0 {
		index = 0
	}
	if max := len(c.questions) - 1; index > max {
		index = max
	}
	if index < 0 {
		index = 0
	}
	c.index = index
	c.mu.Unlock()
	c.notify()
}

// RequestFinish opens the confirmation gate and returns how many questions
// are still unanswered, for the confirmation prompt.
func (c *Controller) RequestFinish() int {
	c.mu.Lock()
	unanswered := len(c.questions) - c.answeredLocked()
	if c.status == StatusInProgress {
		c.confirming = true
	}
	c.mu.Unlock()
	c.notify()
	return unanswered
}

// CancelFinish closes the confirmation gate without submitting.
func (c *Controller) CancelFinish() {
	c.mu.Lock()
	c.confirming = false
	c.mu.Unlock()
	c.notify()
}

// ConfirmFinish submits the attempt after the confirmation gate.
func (c *Controller) ConfirmFinish(ctx context.Context) error {
	c.mu.Lock()
	if !c.confirming {
		c.mu.Unlock()
		return errors.New("finish was not requested")
	}
	c.confirming = false
	c.mu.Unlock()
	return c.finish(ctx)
}

// Snapshot returns the current state for the rendering surface.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Session returns the attempt state, terminal after Finished/Redirected.
func (c *Controller) Session() *model.AttemptSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Close stops the countdown and drops all listeners. Mandatory on teardown:
// a stale ticker callback must never fire a duplicate submit after the
// surface navigated away.
func (c *Controller) Close() {
	c.mu.Lock()
	cancel := c.cancelTicks
	done := c.ticksDone
	c.cancelTicks = nil
	c.listeners = make(map[int]func(Snapshot))
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// ─── internals ──────────────────────────────────────────────────────

// onTick runs on the countdown goroutine. Expiry triggers the submit; a
// failed auto-submit leaves the state InProgress so the next tick retries
// instead of leaving the attempt permanently unfinished.
func (c *Controller) onTick(t Tick) {
	c.mu.Lock()
	c.lastTick = t
	shouldSubmit := c.status == StatusInProgress && t.Remaining == 0 && !c.submitting
	c.mu.Unlock()
	c.notify()

	if shouldSubmit {
		if err := c.finish(context.Background()); err != nil {
			c.log.Warn().Err(err).Msg("Auto-submit failed, will retry on next tick")
		}
	}
}

// finish performs the one submit of the attempt's lifetime. The store's
// idempotency guard backs this up: even if two paths race in here, only one
// terminal write lands.
func (c *Controller) finish(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusFinished || c.status == StatusRedirected {
		c.mu.Unlock()
		return nil
	}
	if c.submitting {
		c.mu.Unlock()
		return nil
	}
	c.submitting = true
	c.status = StatusSubmitting
	answers := make(map[uuid.UUID]string, len(c.answers))
	for k, v := range c.answers {
		answers[k] = v
	}
	c.mu.Unlock()
	c.notify()

	attempt, err := c.store.Submit(ctx, c.examID, c.participantID, c.questions, answers)

	c.mu.Lock()
	c.submitting = false
	if err != nil {
		c.status = StatusInProgress
		c.mu.Unlock()
		c.notify()
		return err
	}
	c.session = attempt
	c.status = StatusFinished
	cancel := c.cancelTicks
	c.cancelTicks = nil
	c.mu.Unlock()
	c.notify()

	// Calling from the tick goroutine itself: cancel without waiting, the
	// goroutine exits once this callback returns.
	if cancel != nil {
		cancel()
	}
	return nil
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	c.status = StatusFailed
	c.mu.Unlock()
	c.log.Error().Err(err).Msg("Attempt load failed")
	c.notify()
}

func (c *Controller) answeredLocked() int {
	count := 0
	for _, q := range c.questions {
		if _, ok := c.answers[q.ID]; ok {
			count++
		}
	}
	return count
}

func (c *Controller) snapshotLocked() Snapshot {
	answered := c.answeredLocked()
	snap := Snapshot{
		Status:           c.status,
		FormattedTime:    c.lastTick.Formatted,
		IsWarning:        c.lastTick.Warning,
		RemainingSeconds: int(c.lastTick.Remaining / time.Second),
		CurrentIndex:     c.index,
		AnsweredCount:    answered,
		TotalQuestions:   len(c.questions),
		ConfirmingFinish: c.confirming,
		UnansweredCount:  len(c.questions) - answered,
	}
	if c.index >= 0 && c.index < len(c.questions) {
		id := c.questions[c.index].ID.String()
		snap.CurrentQuestion = &id
	}
	if c.session != nil && c.session.Finished() {
		score := c.session.Score
		snap.Score = &score
	}
	return snap
}

func (c *Controller) notify() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}
