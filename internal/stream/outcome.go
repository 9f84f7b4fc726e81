// Package stream reads a chat reply body incrementally and decodes it into
// text fragments as bytes arrive.
package stream

import (
	"errors"
	"fmt"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

// Status is the terminal state of a turn.
type Status int

const (
	StatusCompleted Status = iota + 1
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// MarshalText lets Status appear as a string in JSON payloads.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Outcome ends a turn. Err is set only when Status is StatusFailed.
type Outcome struct {
	Status    Status
	Err       error
	Fragments int
	Bytes     int64
}

func (o Outcome) Completed() bool { return o.Status == StatusCompleted }
func (o Outcome) Failed() bool    { return o.Status == StatusFailed }
func (o Outcome) Cancelled() bool { return o.Status == StatusCancelled }

// Truncated reports a failure that happened after part of the reply was shown.
func (o Outcome) Truncated() bool {
	return o.Failed() && o.Fragments > 0
}

// Reason is a short user-facing description of a failed outcome.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	switch {
	case apierrors.IsAuth(o.Err):
		return "authentication failed"
	case apierrors.IsTimeout(o.Err):
		return "timed out"
	case errors.Is(o.Err, apierrors.ErrMalformedText):
		return "reply could not be decoded"
	}
	return o.Err.Error()
}

func completed(o Outcome) Outcome {
	o.Status = StatusCompleted
	o.Err = nil
	return o
}

func failed(o Outcome, err error) Outcome {
	o.Status = StatusFailed
	o.Err = err
	return o
}

func cancelled(o Outcome) Outcome {
	o.Status = StatusCancelled
	o.Err = nil
	return o
}

// Fail builds a failed outcome with no fragments delivered.
func Fail(err error) Outcome {
	return failed(Outcome{}, err)
}
