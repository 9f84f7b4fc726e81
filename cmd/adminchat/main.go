// Command adminchat runs the admin chat gateway and offers a terminal
// client for the same backend.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/zhengjr9/admin-chat/internal/auth"
	"github.com/zhengjr9/admin-chat/internal/backend"
	"github.com/zhengjr9/admin-chat/internal/chat"
	"github.com/zhengjr9/admin-chat/internal/config"
	"github.com/zhengjr9/admin-chat/internal/metrics"
	"github.com/zhengjr9/admin-chat/internal/session"
	"github.com/zhengjr9/admin-chat/internal/stream"
)

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries state shared by all subcommands once flags are parsed.
type cli struct {
	configPath string
	flags      *config.Config // flag defaults only; see load
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{flags: config.Default()}

	root := &cobra.Command{
		Use:           "adminchat",
		Short:         "Streaming chat for the admin assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.load(cmd)
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML config file")
	c.flags.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newServeCmd(c),
		newSendCmd(c),
		newSessionsCmd(c),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			// skip config loading
			PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "adminchat %s\n", version)
			},
		},
	)
	return root
}

// load resolves the effective config: file, .env and environment first,
// then only the flags the user actually set.
func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}

	fs := pflag.NewFlagSet("effective", pflag.ContinueOnError)
	cfg.RegisterFlags(fs)
	var setErr error
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if fs.Lookup(f.Name) == nil || setErr != nil {
			return
		}
		setErr = fs.Set(f.Name, f.Value.String())
	})
	if setErr != nil {
		return setErr
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	c.cfg = cfg
	c.logger = newLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(c.logger)
	return nil
}

func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// stack is the wired chat core.
type stack struct {
	client  *backend.Client
	metrics *metrics.Recorder
	service *session.Service
}

func (c *cli) newStack() *stack {
	cfg := c.cfg
	client := backend.NewClient(cfg.BackendBaseURL, cfg.RequestTimeout, cfg.BackendProxyURL,
		backend.WithLogger(c.logger))
	rec := metrics.New()
	orch := chat.NewOrchestrator(client, chat.Config{
		Reader: stream.ReaderConfig{
			BufferSize:  cfg.ReadBufferSize,
			IdleTimeout: cfg.IdleTimeout,
			CancelGrace: cfg.CancelGrace,
		},
		TurnTimeout:     cfg.TurnTimeout,
		MaxMessageRunes: cfg.MaxMessageRunes,
	}, chat.WithLogger(c.logger), chat.WithMetrics(rec))

	tokens := auth.WithContextOverride(auth.NewStaticToken(cfg.AccessToken))
	svc := session.NewService(client, orch, tokens,
		session.WithLogger(c.logger),
		session.WithMaxMessageRunes(cfg.MaxMessageRunes))

	return &stack{client: client, metrics: rec, service: svc}
}
