package chat

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
	"github.com/zhengjr9/admin-chat/internal/stream"
)

// MaxMessageRunes is the default upper bound on a message length.
const MaxMessageRunes = 4000

// TurnRequest is one message to send. SessionID may be empty to let the
// backend open a new session.
type TurnRequest struct {
	SessionID string
	Message   string
	Token     string
}

// Validate checks everything that must hold before any network activity.
func (r TurnRequest) Validate(maxRunes int) error {
	if maxRunes <= 0 {
		maxRunes = MaxMessageRunes
	}
	if strings.TrimSpace(r.Token) == "" {
		return apierrors.Validation(apierrors.ErrMissingToken)
	}
	if strings.TrimSpace(r.Message) == "" {
		return apierrors.Validation(apierrors.ErrEmptyMessage)
	}
	if !utf8.ValidString(r.Message) {
		return apierrors.Validation(fmt.Errorf("%w: message is not valid UTF-8", apierrors.ErrMalformedBody))
	}
	if n := utf8.RuneCountInString(r.Message); n > maxRunes {
		return apierrors.Validation(fmt.Errorf("%w: %d characters, limit %d", apierrors.ErrMessageTooLong, n, maxRunes))
	}
	return nil
}

// Event is either a fragment or, last, the outcome of a turn.
type Event struct {
	Fragment string
	Outcome  *stream.Outcome
}

// IsOutcome reports whether e is the terminal event.
func (e Event) IsOutcome() bool {
	return e.Outcome != nil
}

// Turn is a running chat turn. Fragments arrive on Fragments in network
// order; the channel is closed after the last one, and only then does the
// outcome become available.
type Turn struct {
	id        string
	sessionID string
	fragments chan string
	done      chan struct{}
	outcome   stream.Outcome
	cancel    context.CancelFunc
}

func newTurn(id, sessionID string, cancel context.CancelFunc) *Turn {
	return &Turn{
		id:        id,
		sessionID: sessionID,
		fragments: make(chan string),
		done:      make(chan struct{}),
		cancel:    cancel,
	}
}

// finish publishes the outcome. It must be called exactly once.
func (t *Turn) finish(out stream.Outcome) {
	close(t.fragments)
	t.outcome = out
	close(t.done)
	t.cancel()
}

func (t *Turn) ID() string        { return t.id }
func (t *Turn) SessionID() string { return t.sessionID }

// Fragments yields decoded text in arrival order.
func (t *Turn) Fragments() <-chan string {
	return t.fragments
}

// Done is closed once the outcome is set.
func (t *Turn) Done() <-chan struct{} {
	return t.done
}

// Outcome blocks until the turn ends. Callers that stop draining Fragments
// must Cancel first, or Outcome waits for the turn timeout.
func (t *Turn) Outcome() stream.Outcome {
	<-t.done
	return t.outcome
}

// Cancel abandons the turn. The outcome becomes Cancelled unless the turn
// already finished.
func (t *Turn) Cancel() {
	t.cancel()
}

// Events yields every fragment and then exactly one outcome event.
// Breaking out of the loop early cancels the turn.
func (t *Turn) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for f := range t.fragments {
			if !yield(Event{Fragment: f}) {
				t.Cancel()
				return
			}
		}
		out := t.Outcome()
		yield(Event{Outcome: &out})
	}
}

// Collect drains the turn and returns the full reply with its outcome.
func (t *Turn) Collect() (string, stream.Outcome) {
	var sb strings.Builder
	for f := range t.fragments {
		sb.WriteString(f)
	}
	return sb.String(), t.Outcome()
}
