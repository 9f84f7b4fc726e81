package backend_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/admin-chat/internal/backend"
	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
	"github.com/zhengjr9/admin-chat/test/testutil"
)

const testToken = "tok-123"

func newClient(url string) *backend.Client {
	return backend.NewClient(url, 5*time.Second, "")
}

func TestOpenStream_SendsStreamingHeaders(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "Hi", " there")
	defer mock.Close()

	c := newClient(mock.URL())
	defer c.Close()

	body, err := c.OpenStream(context.Background(), testToken, &backend.MessageRequest{Message: "hi", SessionID: "s1"})
	require.NoError(t, err)
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "Hi there", string(raw))

	h := mock.Header()
	assert.Equal(t, "Bearer "+testToken, h.Get("Authorization"))
	assert.Equal(t, "text/plain, text/event-stream, */*", h.Get("Accept"))
	assert.Equal(t, "identity", h.Get("Accept-Encoding"))
	assert.Equal(t, "no-cache", h.Get("Cache-Control"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))

	req := mock.Request()
	assert.Equal(t, "hi", req["message"])
	assert.Equal(t, "s1", req["session_id"])
}

func TestOpenStream_OmitsEmptySessionID(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "x")
	defer mock.Close()

	body, err := newClient(mock.URL()).OpenStream(context.Background(), testToken, &backend.MessageRequest{Message: "hi"})
	require.NoError(t, err)
	_ = body.Close()

	_, present := mock.Request()["session_id"]
	assert.False(t, present)
}

func TestOpenStream_Unauthorized(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "never")
	defer mock.Close()

	body, err := newClient(mock.URL()).OpenStream(context.Background(), "wrong", &backend.MessageRequest{Message: "hi"})
	require.Error(t, err)
	assert.Nil(t, body)
	assert.Equal(t, apierrors.KindProtocol, apierrors.KindOf(err))
	assert.Equal(t, http.StatusUnauthorized, apierrors.StatusCodeOf(err))
	assert.True(t, apierrors.IsAuth(err))
}

func TestOpenStream_ServerError(t *testing.T) {
	mock := testutil.NewMockBackend(testToken, "never")
	defer mock.Close()
	mock.Configure(func(m *testutil.MockBackend) { m.Status = http.StatusServiceUnavailable })

	_, err := newClient(mock.URL()).OpenStream(context.Background(), testToken, &backend.MessageRequest{Message: "hi"})
	require.ErrorIs(t, err, apierrors.ErrUnexpectedStatus)
	assert.Equal(t, http.StatusServiceUnavailable, apierrors.StatusCodeOf(err))
}

func TestOpenStream_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := newClient(url).OpenStream(context.Background(), testToken, &backend.MessageRequest{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConnection, apierrors.KindOf(err))
}

func TestSessions_CRUD(t *testing.T) {
	mock := testutil.NewMockBackend(testToken)
	defer mock.Close()
	mock.AddSession("a", "First")
	mock.AddSession("b", "Second")

	c := newClient(mock.URL())
	ctx := context.Background()

	page, err := c.ListSessions(ctx, testToken, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "a", page.Items[0].ID)
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 20, page.Size)

	s, err := c.GetSession(ctx, testToken, "b")
	require.NoError(t, err)
	assert.Equal(t, "Second", s.Title)

	s, err = c.RenameSession(ctx, testToken, "b", "Renamed")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", s.Title)

	require.NoError(t, c.DeleteSession(ctx, testToken, "a"))
	page, err = c.ListSessions(ctx, testToken, 1, 20)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestSessions_EnvelopeError(t *testing.T) {
	mock := testutil.NewMockBackend(testToken)
	defer mock.Close()

	_, err := newClient(mock.URL()).GetSession(context.Background(), testToken, "missing")
	require.ErrorIs(t, err, apierrors.ErrUnexpectedStatus)
	assert.Equal(t, http.StatusNotFound, apierrors.StatusCodeOf(err))
	assert.Equal(t, http.StatusNotFound, apierrors.HTTPStatus(err))
}

func TestSessions_BadToken(t *testing.T) {
	mock := testutil.NewMockBackend(testToken)
	defer mock.Close()

	_, err := newClient(mock.URL()).ListSessions(context.Background(), "nope", 1, 10)
	require.Error(t, err)
	assert.True(t, apierrors.IsAuth(err))
}
