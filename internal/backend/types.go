package backend

import "time"

// MessageRequest is sent to POST /messages.
type MessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// Envelope wraps every non-streaming backend response.
type Envelope[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// OK reports whether the backend signalled success.
func (e Envelope[T]) OK() bool {
	return e.Code == 0 || e.Code == 200
}

// Session is one chat session as the backend stores it.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SessionPage is one page of GET /sessions.
type SessionPage struct {
	Items []Session `json:"items"`
	Total int       `json:"total"`
	Page  int       `json:"page"`
	Size  int       `json:"size"`
}

type renameRequest struct {
	Title string `json:"title"`
}
