// Package chat runs chat turns: it opens the streaming request, relays
// decoded fragments to the caller and closes the turn with one outcome.
package chat

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zhengjr9/admin-chat/internal/backend"
	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
	"github.com/zhengjr9/admin-chat/internal/metrics"
	"github.com/zhengjr9/admin-chat/internal/stream"
)

const DefaultTurnTimeout = 5 * time.Minute

// Streamer opens the reply stream for one message.
// *backend.Client implements it.
type Streamer interface {
	OpenStream(ctx context.Context, token string, req *backend.MessageRequest) (io.ReadCloser, error)
}

// Config bounds every turn started by an Orchestrator.
type Config struct {
	Reader          stream.ReaderConfig
	TurnTimeout     time.Duration
	MaxMessageRunes int
}

func DefaultConfig() Config {
	return Config{
		Reader:          stream.DefaultReaderConfig(),
		TurnTimeout:     DefaultTurnTimeout,
		MaxMessageRunes: MaxMessageRunes,
	}
}

// Orchestrator starts turns. It is safe for concurrent use; turns share
// nothing but the Streamer's connection pool.
type Orchestrator struct {
	client  Streamer
	reader  *stream.Reader
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Recorder
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func NewOrchestrator(client Streamer, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		client: client,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.reader = stream.NewReader(cfg.Reader, o.logger)
	return o
}

// Start validates req and runs the turn in its own goroutine. It never
// blocks on the network. An invalid request yields a turn that has already
// failed with a validation error.
func (o *Orchestrator) Start(ctx context.Context, req TurnRequest) *Turn {
	var (
		turnCtx context.Context
		cancel  context.CancelFunc
	)
	if o.cfg.TurnTimeout > 0 {
		turnCtx, cancel = context.WithTimeoutCause(ctx, o.cfg.TurnTimeout, apierrors.ErrTurnTimeout)
	} else {
		turnCtx, cancel = context.WithCancel(ctx)
	}
	t := newTurn(uuid.NewString(), req.SessionID, cancel)
	start := time.Now()
	o.metrics.TurnStarted()

	if err := req.Validate(o.cfg.MaxMessageRunes); err != nil {
		o.finish(t, stream.Fail(err), start)
		return t
	}

	go func() {
		o.finish(t, o.run(turnCtx, t, req, start), start)
	}()
	return t
}

func (o *Orchestrator) run(ctx context.Context, t *Turn, req TurnRequest, start time.Time) stream.Outcome {
	logger := o.logger.With("turn_id", t.id, "session_id", req.SessionID)
	logger.Debug("turn started", "message_len", len(req.Message))

	body, err := o.client.OpenStream(ctx, req.Token, &backend.MessageRequest{
		Message:   req.Message,
		SessionID: req.SessionID,
	})
	if err != nil {
		if apierrors.KindOf(err) == apierrors.KindUnknown && ctx.Err() != nil {
			return stream.Outcome{Status: stream.StatusCancelled}
		}
		return stream.Fail(err)
	}

	first := true
	return o.reader.ReadLoop(ctx, body, func(text string) error {
		if first {
			first = false
			o.metrics.FirstFragment(time.Since(start))
		}
		select {
		case t.fragments <- text:
			return nil
		case <-ctx.Done():
			return context.Cause(ctx)
		}
	})
}

func (o *Orchestrator) finish(t *Turn, out stream.Outcome, start time.Time) {
	t.finish(out)

	elapsed := time.Since(start)
	kind := ""
	if out.Err != nil {
		kind = apierrors.KindOf(out.Err).String()
	}
	o.metrics.TurnFinished(out.Status.String(), kind, out.Fragments, out.Bytes, elapsed)

	attrs := []any{
		"turn_id", t.id,
		"session_id", t.sessionID,
		"outcome", out.Status.String(),
		"fragments", out.Fragments,
		"bytes", out.Bytes,
		"duration", elapsed.String(),
	}
	if out.Failed() {
		o.logger.Warn("turn failed", append(attrs, "kind", kind, "error", out.Err)...)
		return
	}
	o.logger.Info("turn finished", attrs...)
}
