package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zhengjr9/admin-chat/internal/chat"
)

var errCancelled = errors.New("cancelled")

type sender interface {
	SendMessage(ctx context.Context, sessionID, message string) (*chat.Turn, error)
}

func newSendCmd(c *cli) *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send one message and print the reply as it streams",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st := c.newStack()
			defer st.client.Close()
			return send(ctx, st.service, cmd.OutOrStdout(), cmd.ErrOrStderr(), sessionID, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Continue this session instead of starting a new one")
	return cmd
}

// send streams one turn to out. A reply cut short is reported on errOut
// after the partial text, so the text already shown stays readable.
func send(ctx context.Context, s sender, out, errOut io.Writer, sessionID, message string) error {
	turn, err := s.SendMessage(ctx, sessionID, message)
	if err != nil {
		return err
	}

	for ev := range turn.Events() {
		if !ev.IsOutcome() {
			if _, err := io.WriteString(out, ev.Fragment); err != nil {
				return err
			}
			continue
		}

		o := *ev.Outcome
		if o.Fragments > 0 {
			fmt.Fprintln(out)
		}
		switch {
		case o.Completed():
			return nil
		case o.Cancelled():
			return errCancelled
		case o.Truncated():
			fmt.Fprintf(errOut, "reply interrupted: %s\n", o.Reason())
			return o.Err
		default:
			return fmt.Errorf("send failed: %s: %w", o.Reason(), o.Err)
		}
	}
	return nil
}
