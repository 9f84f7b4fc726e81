package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingToken     = errors.New("missing access token")
	ErrNotLoggedIn      = errors.New("not logged in")
	ErrEmptyMessage     = errors.New("message must not be empty")
	ErrMessageTooLong   = errors.New("message too long")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidTitle     = errors.New("invalid session title")
	ErrMalformedBody    = errors.New("malformed request body")
	ErrUnexpectedStatus = errors.New("backend returned non-success status")
	ErrMalformedText    = errors.New("stream contains malformed UTF-8")
	ErrIdleTimeout      = errors.New("stream idle timeout")
	ErrTurnTimeout      = errors.New("turn timed out")
)

// Kind classifies a turn failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindConnection
	KindProtocol
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConnection:
		return "connection"
	case KindProtocol:
		return "protocol"
	case KindTimeout:
		return "timeout"
	}
	return "unknown"
}

// TurnError is the error carried by a Failed outcome and by facade calls.
type TurnError struct {
	Kind Kind
	// StatusCode is the HTTP status returned by the backend, when there was one.
	StatusCode int
	Err        error
}

func (e *TurnError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *TurnError) Unwrap() error {
	return e.Err
}

func Validation(err error) error { return &TurnError{Kind: KindValidation, Err: err} }
func Connection(err error) error { return &TurnError{Kind: KindConnection, Err: err} }
func Protocol(err error) error   { return &TurnError{Kind: KindProtocol, Err: err} }
func Timeout(err error) error    { return &TurnError{Kind: KindTimeout, Err: err} }

// Status wraps a non-success backend status as a protocol error.
func Status(code int, body string) error {
	err := fmt.Errorf("%w: %d %s", ErrUnexpectedStatus, code, http.StatusText(code))
	if body != "" {
		err = fmt.Errorf("%w: %s", err, body)
	}
	return &TurnError{Kind: KindProtocol, StatusCode: code, Err: err}
}

// KindOf returns the Kind of the first TurnError in err's chain.
func KindOf(err error) Kind {
	var te *TurnError
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// StatusCodeOf returns the backend status code recorded in err, or 0.
func StatusCodeOf(err error) int {
	var te *TurnError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	return 0
}

func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// IsAuth reports whether the backend rejected the credential.
func IsAuth(err error) bool {
	code := StatusCodeOf(err)
	return code == http.StatusUnauthorized || code == http.StatusForbidden ||
		errors.Is(err, ErrMissingToken) || errors.Is(err, ErrNotLoggedIn)
}

type jsonError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func WriteJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	body := jsonError{
		Error:   http.StatusText(statusCode),
		Message: message,
	}
	_ = json.NewEncoder(w).Encode(body)
}

// WriteError maps err to an HTTP status and writes it as JSON.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSONError(w, HTTPStatus(err), err.Error())
}

// HTTPStatus picks the status a gateway should answer with for err.
func HTTPStatus(err error) int {
	if IsAuth(err) {
		return http.StatusUnauthorized
	}
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindConnection, KindProtocol:
		if StatusCodeOf(err) == http.StatusNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadGateway
	}
	if errors.Is(err, ErrMalformedBody) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}
