package backend

import (
	"bytes"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_ProxyURL(t *testing.T) {
	c := NewClient("http://backend.internal", time.Second, "http://proxy.internal:3128")
	defer c.Close()

	req, err := http.NewRequest(http.MethodGet, "http://backend.internal/sessions", nil)
	require.NoError(t, err)
	require.NotNil(t, c.transport.Proxy)
	proxy, err := c.transport.Proxy(req)
	require.NoError(t, err)
	assert.Equal(t, "proxy.internal:3128", proxy.Host)
}

func TestNewClient_InvalidProxyFallsBackToEnvironment(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	c := NewClient("http://127.0.0.1:8000", time.Second, "http://[::1", WithLogger(logger))
	defer c.Close()

	require.NotNil(t, c.transport.Proxy)
	req, err := http.NewRequest(http.MethodGet, "http://127.0.0.1:8000/sessions", nil)
	require.NoError(t, err)
	// the environment proxy never applies to loopback
	proxy, err := c.transport.Proxy(req)
	require.NoError(t, err)
	assert.Nil(t, proxy)
	assert.Contains(t, logs.String(), "invalid proxy URL")
}
