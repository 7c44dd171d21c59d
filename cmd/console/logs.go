package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/bcnelson/autoreply-console/internal/activity"
	"github.com/bcnelson/autoreply-console/internal/tui"
)

func newLogsCmd(a *app) *cobra.Command {
	var (
		once bool
		tab  string
		skip int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Browse comment and DM activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}

			view := activity.NewView(a.cfg.LogPageSize)
			view.SetTab(activity.ParseTab(tab))
			view.SetSkip(skip)

			if !once {
				err := tui.Run(cmd.Context(), view, a.client)
				if errors.Is(err, tui.ErrSessionExpired) {
					return errNotLoggedIn
				}
				return err
			}

			res := view.Load(cmd.Context(), a.client)
			if res.Unauthorized() {
				return errNotLoggedIn
			}
			if err := res.Err(); err != nil {
				return err
			}
			printTable(cmd.OutOrStdout(), view.Active())
			return nil
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "print the table once instead of starting the viewer")
	cmd.Flags().StringVar(&tab, "tab", string(activity.TabComments), "stream to show: comments or dms")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of newest entries to skip")
	return cmd
}

// printTable writes t as a plain bordered table.
func printTable(w io.Writer, t activity.Table) {
	headers := make([]string, len(t.Headers))
	for i, h := range t.Headers {
		headers[i] = h.Label
		if h.Indicator != "" {
			headers[i] += " " + h.Indicator
		}
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	if t.Empty {
		tbl.Row(activity.Placeholder)
	}
	for _, r := range t.Rows {
		tbl.Row(r...)
	}
	fmt.Fprintln(w, tbl.Render())
}
