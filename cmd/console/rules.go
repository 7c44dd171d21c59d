package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/bcnelson/autoreply-console/internal/domain"
	"github.com/bcnelson/autoreply-console/internal/gateway"
	"github.com/bcnelson/autoreply-console/internal/rules"
)

func newRulesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect and delete automation rules",
	}
	cmd.AddCommand(newRulesListCmd(a), newRulesDeleteCmd(a))
	return cmd
}

// authError turns a 401 into the login hint.
func authError(err error) error {
	if gateway.IsUnauthorized(err) {
		return errNotLoggedIn
	}
	return err
}

func newRulesListCmd(a *app) *cobra.Command {
	var filter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			f := domain.ParseActivationFilter(filter)
			if string(f) != filter {
				return fmt.Errorf("unknown filter %q, use all, active or inactive", filter)
			}

			coll := rules.New(a.client)
			if err := coll.FetchAll(cmd.Context()); err != nil {
				return authError(err)
			}
			coll.SetFilter(f)

			tbl := table.New().
				Border(lipgloss.NormalBorder()).
				Headers("ID", "NAME", "KEYWORDS", "MODE", "ACTIVE")
			for _, r := range coll.Visible() {
				active := "no"
				if r.IsActive {
					active = "yes"
				}
				tbl.Row(r.ID, r.RuleName, strings.Join(r.Keywords, ", "), r.Mode().Label(), active)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl.Render())
			return nil
		},
	}

	cmd.Flags().StringVar(&filter, "filter", string(domain.FilterAll), "all, active or inactive")
	return cmd
}

func newRulesDeleteCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a rule after confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.requireSession(); err != nil {
				return err
			}
			id := args[0]

			coll := rules.New(a.client)
			if err := coll.FetchAll(cmd.Context()); err != nil {
				return authError(err)
			}
			rule, ok := coll.Find(id)
			if !ok {
				return fmt.Errorf("rule %s: %w", id, domain.ErrNotFound)
			}

			coll.RequestDelete(id)
			if !yes {
				fmt.Fprintf(cmd.OutOrStdout(), "Delete rule %q? This cannot be undone. [y/N]: ", rule.RuleName)
				answer, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if reply := strings.ToLower(strings.TrimSpace(answer)); reply != "y" && reply != "yes" {
					coll.CancelDelete()
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			err := coll.ConfirmDelete(cmd.Context(), id)
			switch {
			case err == nil:
			case errors.Is(err, rules.ErrRefetchFailed) && !gateway.IsUnauthorized(err):
				a.logger.Warn("rule deleted but the list could not be reloaded", "error", err)
			case errors.Is(err, rules.ErrNotConfirmed):
				return err
			default:
				return authError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", rule.RuleName)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}
