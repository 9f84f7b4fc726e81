// Package session is the entry point the rest of the application uses for
// chat: session listing and maintenance plus the streaming send.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/zhengjr9/admin-chat/internal/auth"
	"github.com/zhengjr9/admin-chat/internal/backend"
	"github.com/zhengjr9/admin-chat/internal/chat"
	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxTitleRunes   = 100
	maxIDLen        = 128
)

// Backend is the subset of *backend.Client used for session resources.
type Backend interface {
	ListSessions(ctx context.Context, token string, page, size int) (*backend.SessionPage, error)
	GetSession(ctx context.Context, token, id string) (*backend.Session, error)
	RenameSession(ctx context.Context, token, id, title string) (*backend.Session, error)
	DeleteSession(ctx context.Context, token, id string) error
}

// TurnStarter starts chat turns. *chat.Orchestrator implements it.
type TurnStarter interface {
	Start(ctx context.Context, req chat.TurnRequest) *chat.Turn
}

// Service validates input and dispatches to the backend or the orchestrator.
type Service struct {
	backend  Backend
	turns    TurnStarter
	tokens   auth.TokenProvider
	maxRunes int
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMaxMessageRunes overrides the message length limit.
func WithMaxMessageRunes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRunes = n
		}
	}
}

func NewService(b Backend, turns TurnStarter, tokens auth.TokenProvider, opts ...Option) *Service {
	s := &Service{
		backend:  b,
		turns:    turns,
		tokens:   tokens,
		maxRunes: chat.MaxMessageRunes,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SendMessage starts a streaming turn. Input errors are returned before any
// turn exists; everything after that is reported through the turn outcome.
// sessionID may be empty to start a new session.
func (s *Service) SendMessage(ctx context.Context, sessionID, message string) (*chat.Turn, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if sessionID != "" {
		if err := validateID(sessionID); err != nil {
			return nil, err
		}
	}
	req := chat.TurnRequest{SessionID: sessionID, Message: message, Token: token}
	if err := req.Validate(s.maxRunes); err != nil {
		return nil, err
	}
	return s.turns.Start(ctx, req), nil
}

// ListSessions returns one page of sessions. page starts at 1; zero values
// pick the defaults.
func (s *Service) ListSessions(ctx context.Context, page, size int) (*backend.SessionPage, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if page <= 0 {
		page = 1
	}
	switch {
	case size <= 0:
		size = DefaultPageSize
	case size > MaxPageSize:
		size = MaxPageSize
	}
	return s.backend.ListSessions(ctx, token, page, size)
}

func (s *Service) GetSession(ctx context.Context, id string) (*backend.Session, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.backend.GetSession(ctx, token, id)
}

// RenameSession sets a new title, trimmed of surrounding space.
func (s *Service) RenameSession(ctx context.Context, id, title string) (*backend.Session, error) {
	token, err := s.token(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateID(id); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if n := utf8.RuneCountInString(title); n == 0 || n > MaxTitleRunes {
		return nil, apierrors.Validation(fmt.Errorf("%w: length must be 1-%d", apierrors.ErrInvalidTitle, MaxTitleRunes))
	}
	sess, err := s.backend.RenameSession(ctx, token, id, title)
	if err != nil {
		return nil, err
	}
	s.logger.Info("session renamed", "session_id", id)
	return sess, nil
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	token, err := s.token(ctx)
	if err != nil {
		return err
	}
	if err := validateID(id); err != nil {
		return err
	}
	if err := s.backend.DeleteSession(ctx, token, id); err != nil {
		return err
	}
	s.logger.Info("session deleted", "session_id", id)
	return nil
}

func (s *Service) token(ctx context.Context) (string, error) {
	if s.tokens == nil || !s.tokens.IsLoggedIn(ctx) {
		return "", apierrors.Validation(apierrors.ErrNotLoggedIn)
	}
	token, ok := s.tokens.AccessToken(ctx)
	if !ok {
		return "", apierrors.Validation(apierrors.ErrMissingToken)
	}
	return token, nil
}

func validateID(id string) error {
	if id == "" || len(id) > maxIDLen || strings.ContainsAny(id, "/?# \t\r\n") {
		return apierrors.Validation(fmt.Errorf("%w: %q", apierrors.ErrInvalidSessionID, id))
	}
	return nil
}
