package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhengjr9/admin-chat/internal/a2a"
	"github.com/zhengjr9/admin-chat/internal/gateway"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway (and the A2A server with --a2a)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.serve(ctx)
		},
	}
}

func (c *cli) serve(ctx context.Context) error {
	cfg := c.cfg
	st := c.newStack()
	defer st.client.Close()

	c.logger.Info("starting adminchat",
		"version", version,
		"listen", cfg.ListenAddr,
		"backend_base_url", cfg.BackendBaseURL,
		"a2a_enabled", cfg.A2AEnabled,
	)

	srv := gateway.New(cfg, st.service, st.metrics, c.logger)
	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		c.logger.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	if cfg.A2AEnabled {
		ag, err := a2a.New(a2a.AgentConfig{
			Name:        cfg.AgentName,
			Description: cfg.AgentDesc,
			Sender:      st.service,
		})
		if err != nil {
			return err
		}
		c.logger.Info("starting A2A server", "port", cfg.A2APort, "agent_name", cfg.AgentName)
		eg.Go(func() error { return a2a.Serve(ctx, cfg.A2APort, ag) })
	}

	if err := eg.Wait(); err != nil {
		return err
	}
	c.logger.Info("server stopped")
	return nil
}
