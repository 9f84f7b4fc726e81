package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/admin-chat/internal/auth"
	"github.com/zhengjr9/admin-chat/internal/backend"
	"github.com/zhengjr9/admin-chat/internal/chat"
	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
	"github.com/zhengjr9/admin-chat/internal/session"
	"github.com/zhengjr9/admin-chat/test/testutil"
)

const testToken = "svc-token"

type recordingStarter struct {
	reqs []chat.TurnRequest
	next *chat.Orchestrator
}

func (r *recordingStarter) Start(ctx context.Context, req chat.TurnRequest) *chat.Turn {
	r.reqs = append(r.reqs, req)
	return r.next.Start(ctx, req)
}

func newService(t *testing.T, mock *testutil.MockBackend, tokens auth.TokenProvider) (*session.Service, *recordingStarter) {
	t.Helper()
	client := backend.NewClient(mock.URL(), 5*time.Second, "")
	t.Cleanup(client.Close)
	starter := &recordingStarter{next: chat.NewOrchestrator(client, chat.DefaultConfig())}
	return session.NewService(client, starter, tokens), starter
}

func TestSendMessage_StreamsReply(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "Hello", " admin")
	defer mock.Close()
	svc, starter := newService(t, mock, auth.NewStaticToken(testToken))

	turn, err := svc.SendMessage(context.Background(), "s-1", "hi")
	require.NoError(t, err)
	reply, out := turn.Collect()

	assert.Equal(t, "Hello admin", reply)
	assert.True(t, out.Completed())
	require.Len(t, starter.reqs, 1)
	assert.Equal(t, testToken, starter.reqs[0].Token)
	assert.Equal(t, "s-1", mock.Request()["session_id"])
}

func TestSendMessage_RejectsBeforeStarting(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "x")
	defer mock.Close()

	cases := []struct {
		name    string
		tokens  auth.TokenProvider
		session string
		message string
		want    error
	}{
		{"logged out", auth.NewStaticToken(""), "", "hi", apierrors.ErrNotLoggedIn},
		{"empty", auth.NewStaticToken(testToken), "", "", apierrors.ErrEmptyMessage},
		{"too long", auth.NewStaticToken(testToken), "", strings.Repeat("a", 4001), apierrors.ErrMessageTooLong},
		{"bad session", auth.NewStaticToken(testToken), "a/b", "hi", apierrors.ErrInvalidSessionID},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, starter := newService(t, mock, tc.tokens)
			turn, err := svc.SendMessage(context.Background(), tc.session, tc.message)
			require.ErrorIs(t, err, tc.want)
			assert.Nil(t, turn)
			assert.Equal(t, apierrors.KindValidation, apierrors.KindOf(err))
			assert.Empty(t, starter.reqs)
		})
	}
	assert.Zero(t, mock.Calls())
}

func TestSendMessage_CustomLimit(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "x")
	defer mock.Close()
	client := backend.NewClient(mock.URL(), 5*time.Second, "")
	svc := session.NewService(client, chat.NewOrchestrator(client, chat.DefaultConfig()),
		auth.NewStaticToken(testToken), session.WithMaxMessageRunes(3))

	_, err := svc.SendMessage(context.Background(), "", "four")
	require.ErrorIs(t, err, apierrors.ErrMessageTooLong)
}

func TestSessionOperations(t *testing.T) {
	mock := testutil.NewMockBackend(testToken)
	defer mock.Close()
	mock.AddSession("s1", "Enrollment questions")
	mock.AddSession("s2", "Payroll")
	svc, _ := newService(t, mock, auth.NewStaticToken(testToken))
	ctx := context.Background()

	page, err := svc.ListSessions(ctx, 0, 500)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, session.MaxPageSize, page.Size)
	assert.Len(t, page.Items, 2)

	s, err := svc.RenameSession(ctx, "s2", "  Payroll 2026  ")
	require.NoError(t, err)
	assert.Equal(t, "Payroll 2026", s.Title)

	s, err = svc.GetSession(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, "Payroll 2026", s.Title)

	require.NoError(t, svc.DeleteSession(ctx, "s1"))
	err = svc.DeleteSession(ctx, "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, apierrors.ErrUnexpectedStatus)
}

func TestSessionOperations_Validation(t *testing.T) {
	mock := testutil.NewMockBackend(testToken)
	defer mock.Close()
	svc, _ := newService(t, mock, auth.NewStaticToken(testToken))
	ctx := context.Background()

	_, err := svc.GetSession(ctx, "")
	assert.ErrorIs(t, err, apierrors.ErrInvalidSessionID)

	_, err = svc.RenameSession(ctx, "s1", "   ")
	assert.ErrorIs(t, err, apierrors.ErrInvalidTitle)

	_, err = svc.RenameSession(ctx, "s1", strings.Repeat("t", session.MaxTitleRunes+1))
	assert.ErrorIs(t, err, apierrors.ErrInvalidTitle)

	err = svc.DeleteSession(ctx, "x y")
	assert.ErrorIs(t, err, apierrors.ErrInvalidSessionID)

	loggedOut, _ := newService(t, mock, auth.NewStaticToken(""))
	_, err = loggedOut.ListSessions(ctx, 1, 10)
	assert.ErrorIs(t, err, apierrors.ErrNotLoggedIn)
}
