package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	apierrors "github.com/zhengjr9/admin-chat/internal/errors"
)

const (
	DefaultBufferSize  = 1024
	DefaultIdleTimeout = 30 * time.Second
	DefaultCancelGrace = 2 * time.Second
)

// ReaderConfig bounds a read loop.
type ReaderConfig struct {
	// BufferSize is the size of each read. Small reads keep token latency low.
	BufferSize int
	// IdleTimeout fails the turn when no bytes arrive for this long.
	// Zero disables it.
	IdleTimeout time.Duration
	// CancelGrace caps how long an in-flight read may delay cancellation.
	CancelGrace time.Duration
}

func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		BufferSize:  DefaultBufferSize,
		IdleTimeout: DefaultIdleTimeout,
		CancelGrace: DefaultCancelGrace,
	}
}

// Reader drives the read loop over one response body at a time.
// A Reader holds no per-turn state and may be shared by concurrent turns.
type Reader struct {
	cfg    ReaderConfig
	logger *slog.Logger
}

// NewReader constructs a Reader. Non-positive sizes fall back to defaults.
func NewReader(cfg ReaderConfig, logger *slog.Logger) *Reader {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.CancelGrace <= 0 {
		cfg.CancelGrace = DefaultCancelGrace
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{cfg: cfg, logger: logger}
}

type readResult struct {
	n   int
	err error
}

// ReadLoop reads body until EOF, error, idle timeout or cancellation and
// returns the outcome. Each decoded fragment is handed to onFragment before
// the next read is issued. If onFragment returns an error the loop stops as
// cancelled. body is always closed on return.
//
// When ctx ends by deadline (including cause ErrTurnTimeout) the outcome is a
// timeout failure, otherwise it is Cancelled.
func (r *Reader) ReadLoop(ctx context.Context, body io.ReadCloser, onFragment func(string) error) Outcome {
	var (
		out       Outcome
		dec       Decoder
		closeOnce sync.Once
	)
	closeBody := func() {
		closeOnce.Do(func() { _ = body.Close() })
	}
	defer closeBody()

	buf := make([]byte, r.cfg.BufferSize)
	next := make(chan struct{})
	results := make(chan readResult, 1)
	go func() {
		for range next {
			n, err := body.Read(buf)
			results <- readResult{n: n, err: err}
		}
	}()
	defer close(next)

	var idle <-chan time.Time
	var idleTimer *time.Timer
	if r.cfg.IdleTimeout > 0 {
		idleTimer = time.NewTimer(r.cfg.IdleTimeout)
		defer idleTimer.Stop()
		idle = idleTimer.C
	}

	for {
		if ctx.Err() != nil {
			return r.stopped(ctx, out)
		}
		next <- struct{}{}

		var res readResult
		select {
		case res = <-results:
		case <-ctx.Done():
			closeBody()
			r.awaitRead(results)
			return r.stopped(ctx, out)
		case <-idle:
			closeBody()
			r.awaitRead(results)
			return failed(out, apierrors.Timeout(fmt.Errorf("%w: no data for %s", apierrors.ErrIdleTimeout, r.cfg.IdleTimeout)))
		}

		if res.n > 0 {
			// the idle bound measures time since the last byte, not the last read
			if idleTimer != nil {
				idleTimer.Reset(r.cfg.IdleTimeout)
			}
			out.Bytes += int64(res.n)
			text, decodeErr := dec.Decode(buf[:res.n])
			if text != "" {
				if err := onFragment(text); err != nil {
					r.logger.Debug("fragment consumer stopped", "error", err)
					return r.stopped(ctx, out)
				}
				out.Fragments++
			}
			if decodeErr != nil {
				return failed(out, apierrors.Protocol(decodeErr))
			}
		}

		switch {
		case errors.Is(res.err, io.EOF):
			if err := dec.Flush(); err != nil {
				return failed(out, apierrors.Protocol(err))
			}
			return completed(out)
		case res.err != nil:
			if ctx.Err() != nil {
				return r.stopped(ctx, out)
			}
			return failed(out, apierrors.Connection(fmt.Errorf("read stream: %w", res.err)))
		}
	}
}

// awaitRead waits for the in-flight read to return after the body was
// closed, but never longer than CancelGrace.
func (r *Reader) awaitRead(results <-chan readResult) {
	grace := time.NewTimer(r.cfg.CancelGrace)
	defer grace.Stop()
	select {
	case <-results:
	case <-grace.C:
		r.logger.Warn("read did not return after close, abandoning it", "grace", r.cfg.CancelGrace.String())
	}
}

func (r *Reader) stopped(ctx context.Context, out Outcome) Outcome {
	switch cause := context.Cause(ctx); {
	case errors.Is(cause, apierrors.ErrTurnTimeout):
		return failed(out, apierrors.Timeout(apierrors.ErrTurnTimeout))
	case errors.Is(cause, context.DeadlineExceeded):
		return failed(out, apierrors.Timeout(cause))
	}
	return cancelled(out)
}
