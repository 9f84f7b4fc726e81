package main

import (
	"bytes"
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhengjr9/admin-chat/internal/auth"
	"github.com/zhengjr9/admin-chat/internal/backend"
	"github.com/zhengjr9/admin-chat/internal/chat"
	"github.com/zhengjr9/admin-chat/internal/session"
	"github.com/zhengjr9/admin-chat/test/testutil"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func newService(t *testing.T, mock *testutil.MockBackend) *session.Service {
	t.Helper()
	client := backend.NewClient(mock.URL(), 5*time.Second, "")
	t.Cleanup(client.Close)
	return session.NewService(client, chat.NewOrchestrator(client, chat.DefaultConfig()), auth.NewStaticToken("tok"))
}

func TestSend_PrintsReply(t *testing.T) {
	mock := testutil.NewMockBackend("tok", "Hel", "lo")
	defer mock.Close()

	var out, errOut bytes.Buffer
	err := send(context.Background(), newService(t, mock), &out, &errOut, "", "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out.String())
	assert.Empty(t, errOut.String())
}

func TestSend_BackendFailure(t *testing.T) {
	mock := testutil.NewMockBackend("tok", "never")
	defer mock.Close()
	mock.Configure(func(m *testutil.MockBackend) { m.Status = http.StatusServiceUnavailable })

	var out, errOut bytes.Buffer
	err := send(context.Background(), newService(t, mock), &out, &errOut, "", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send failed")
	assert.Empty(t, out.String())
}

func TestSend_TruncatedReply(t *testing.T) {
	mock := testutil.NewMockBackend("tok")
	defer mock.Close()
	mock.SetReply([]byte("partial "), []byte{0xff})

	var out, errOut bytes.Buffer
	err := send(context.Background(), newService(t, mock), &out, &errOut, "", "hi")
	require.Error(t, err)
	assert.Equal(t, "partial \n", out.String())
	assert.Contains(t, errOut.String(), "reply interrupted")
}

func TestSend_ValidationError(t *testing.T) {
	mock := testutil.NewMockBackend("tok")
	defer mock.Close()

	var out, errOut bytes.Buffer
	err := send(context.Background(), newService(t, mock), &out, &errOut, "", "   ")
	require.Error(t, err)
	assert.Zero(t, mock.Calls())
}

func TestCLI_SessionsListUsesFlagsOverEnv(t *testing.T) {
	mock := testutil.NewMockBackend("tok")
	defer mock.Close()
	mock.AddSession("s1", "Budget review")

	t.Setenv("BACKEND_BASE_URL", "http://unused.invalid")
	t.Setenv("ACCESS_TOKEN", "tok")

	out, err := runCLI(t, "sessions", "list", "--backend-base-url", mock.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "s1")
	assert.Contains(t, out, "Budget review")
}

func TestCLI_SessionsRenameAndDelete(t *testing.T) {
	mock := testutil.NewMockBackend("tok")
	defer mock.Close()
	mock.AddSession("s1", "Old")
	t.Setenv("ACCESS_TOKEN", "tok")

	out, err := runCLI(t, "sessions", "rename", "s1", "New", "title", "--backend-base-url", mock.URL())
	require.NoError(t, err)
	assert.Contains(t, out, `"New title"`)

	out, err = runCLI(t, "sessions", "delete", "s1", "--backend-base-url", mock.URL())
	require.NoError(t, err)
	assert.Contains(t, out, "deleted s1")

	_, err = runCLI(t, "sessions", "get", "s1", "--backend-base-url", mock.URL())
	assert.Error(t, err)
}

func TestCLI_InvalidConfig(t *testing.T) {
	_, err := runCLI(t, "sessions", "list", "--backend-base-url", "not a url")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestCLI_Version(t *testing.T) {
	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "adminchat dev\n", out)
}
