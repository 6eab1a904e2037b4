// Package pipeline runs acquisition jobs from selection to delivery.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/artur/tubegate/internal/delivery"
	"github.com/artur/tubegate/internal/downloader"
	"github.com/artur/tubegate/internal/media"
	"github.com/google/uuid"
)

// State is a job's position in the pipeline.
type State string

const (
	StateCreated         State = "created"
	StateFormatsResolved State = "formats_resolved"
	StateAcquiring       State = "acquiring"
	StateAcquired        State = "acquired"
	StateDelivering      State = "delivering"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// ErrIllegalTransition marks a programming error in the state machine.
var ErrIllegalTransition = errors.New("illegal job state transition")

var transitions = map[State]State{
	StateCreated:         StateFormatsResolved,
	StateFormatsResolved: StateAcquiring,
	StateAcquiring:       StateAcquired,
	StateAcquired:        StateDelivering,
	StateDelivering:      StateCompleted,
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// Job is one request's trip through the pipeline. It is never persisted.
type Job struct {
	ID       string
	Request  Request
	Path     string
	Size     int64
	Decision delivery.Decision

	mu    sync.Mutex
	state State
	err   error
}

// NewJob creates a job in StateCreated.
func NewJob(req Request) *Job {
	return &Job{ID: uuid.NewString(), Request: req, state: StateCreated}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure cause of a failed job.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// advance moves to the next state; only the single forward edge is legal.
func (j *Job) advance(to State) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if next, ok := transitions[j.state]; !ok || next != to {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, to)
	}
	j.state = to
	return nil
}

// fail moves any non-terminal job to StateFailed.
func (j *Job) fail(err error) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.state, StateFailed)
	}
	j.state = StateFailed
	j.err = err
	return nil
}

// Request is a resolved selection ready to acquire.
type Request struct {
	UserID   int64
	ChatID   int64
	URL      string
	Kind     media.Kind
	MediaID  string
	Quality  string
	Selector string
	Audio    bool
}

// FromToken turns a pressed quality button into a request.
func FromToken(tok media.Token, userID, chatID int64) (Request, error) {
	link, err := media.CanonicalURL(tok.Kind, tok.MediaID)
	if err != nil {
		return Request{}, err
	}
	req := Request{
		UserID:  userID,
		ChatID:  chatID,
		URL:     link,
		Kind:    tok.Kind,
		MediaID: tok.MediaID,
		Quality: tok.Quality,
		Audio:   tok.Audio(),
	}
	if req.Audio {
		req.Selector = downloader.SelectorAudio
	} else {
		req.Selector = downloader.VideoSelector(tok.FormatID)
	}
	return req, nil
}
