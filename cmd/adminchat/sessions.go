package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zhengjr9/admin-chat/internal/backend"
)

func newSessionsCmd(c *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List and manage chat sessions",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print raw JSON")

	var page, size int
	list := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st := c.newStack()
			defer st.client.Close()
			res, err := st.service.ListSessions(cmd.Context(), page, size)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			return printSessions(cmd.OutOrStdout(), res.Items)
		},
	}
	list.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	list.Flags().IntVar(&size, "size", 0, "Page size (0 for the default)")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.newStack()
			defer st.client.Close()
			sess, err := st.service.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sess)
			}
			return printSessions(cmd.OutOrStdout(), []backend.Session{*sess})
		},
	}

	rename := &cobra.Command{
		Use:   "rename ID TITLE...",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.newStack()
			defer st.client.Close()
			sess, err := st.service.RenameSession(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), sess)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %q\n", sess.ID, sess.Title)
			return err
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st := c.newStack()
			defer st.client.Close()
			if err := st.service.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return err
		},
	}

	cmd.AddCommand(list, get, rename, del)
	return cmd
}

func printSessions(w io.Writer, items []backend.Session) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tUPDATED")
	for _, s := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
