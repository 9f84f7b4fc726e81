// Package backend talks to the administrative REST backend: the streaming
// chat endpoint and the session resources.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

// maxErrorBody bounds how much of a failed response is kept as the reason.
const maxErrorBody = 4 << 10

// Client sends requests to the backend. It is safe for concurrent use; all
// turns share its connection pool.
type Client struct {
	baseURL    string
	httpClient *http.Client
	// streamClient shares the transport but has no overall timeout; the
	// turn context and the read loop bound streaming calls instead.
	streamClient *http.Client
	transport    *http.Transport
	logger       *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a Client for baseURL. timeout bounds non-streaming
// calls and the wait for response headers. proxyURL may be empty to use the
// environment proxy.
func NewClient(baseURL string, timeout time.Duration, proxyURL string, opts ...Option) *Client {
	transport := &http.Transport{
		// compressed bodies would be buffered by the decompressor
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		streamClient: &http.Client{Transport: transport},
		transport:    transport,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	transport.Proxy = http.ProxyFromEnvironment
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err != nil {
			c.logger.Warn("invalid proxy URL, using environment proxy", "proxy_url", proxyURL, "error", err)
		} else {
			transport.Proxy = http.ProxyURL(parsed)
		}
	}
	return c
}

// Close releases idle pooled connections.
func (c *Client) Close() {
	c.transport.CloseIdleConnections()
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OpenStream posts a chat message and returns the open reply body. A status
// other than 200 is returned as a protocol error and the body is closed.
// The caller must close the returned body.
func (c *Client) OpenStream(ctx context.Context, token string, req *MessageRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, apierrors.Validation(fmt.Errorf("marshal request: %w", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, apierrors.Validation(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "text/plain, text/event-stream, */*")
	httpReq.Header.Set("Accept-Encoding", "identity")
	httpReq.Header.Set("Cache-Control", "no-cache")
	httpReq.Header.Set("Connection", "keep-alive")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("chat stream rejected", "status", resp.StatusCode)
		return nil, apierrors.Status(resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return resp.Body, nil
}

// ListSessions fetches one page of sessions.
func (c *Client) ListSessions(ctx context.Context, token string, page, size int) (*SessionPage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	return call[*SessionPage](ctx, c, http.MethodGet, "/sessions?"+q.Encode(), token, nil)
}

// GetSession fetches a single session.
func (c *Client) GetSession(ctx context.Context, token, id string) (*Session, error) {
	return call[*Session](ctx, c, http.MethodGet, "/sessions/"+url.PathEscape(id), token, nil)
}

// RenameSession changes a session title and returns the updated session.
func (c *Client) RenameSession(ctx context.Context, token, id, title string) (*Session, error) {
	return call[*Session](ctx, c, http.MethodPut, "/sessions/"+url.PathEscape(id), token, renameRequest{Title: title})
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, token, id string) error {
	_, err := call[json.RawMessage](ctx, c, http.MethodDelete, "/sessions/"+url.PathEscape(id), token, nil)
	return err
}

// call performs one request/response exchange and unwraps the envelope.
func call[T any](ctx context.Context, c *Client, method, path, token string, in any) (T, error) {
	var zero T

	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return zero, apierrors.Validation(fmt.Errorf("marshal request: %w", err))
		}
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return zero, apierrors.Validation(fmt.Errorf("build request: %w", err))
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return zero, transportError(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return zero, apierrors.Status(resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var env Envelope[T]
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return zero, apierrors.Protocol(fmt.Errorf("decode response: %w", err))
	}
	if !env.OK() {
		return zero, &apierrors.TurnError{
			Kind:       apierrors.KindProtocol,
			StatusCode: envelopeStatus(env.Code),
			Err:        fmt.Errorf("%w: code %d: %s", apierrors.ErrUnexpectedStatus, env.Code, env.Message),
		}
	}
	return env.Data, nil
}

// envelopeStatus keeps envelope codes that look like HTTP statuses so auth
// and not-found failures are classified the same way as real statuses.
func envelopeStatus(code int) int {
	if code >= 400 && code < 600 {
		return code
	}
	return 0
}

func transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(context.Cause(ctx), apierrors.ErrTurnTimeout) || errors.Is(ctxErr, context.DeadlineExceeded) {
			return apierrors.Timeout(fmt.Errorf("backend request: %w", context.Cause(ctx)))
		}
		return fmt.Errorf("backend request: %w", ctxErr)
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apierrors.Timeout(fmt.Errorf("backend request: %w", err))
	}
	return apierrors.Connection(fmt.Errorf("backend request: %w", err))
}
