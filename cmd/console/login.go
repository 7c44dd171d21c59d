package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bcnelson/autoreply-console/internal/gateway"
)

func newLoginCmd(a *app) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store an API key for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Attach(token); err != nil {
				return err
			}
			// Any authenticated call verifies the token; a 401 clears it.
			if _, err := a.client.ListRules(cmd.Context()); err != nil {
				if gateway.IsUnauthorized(err) {
					return errors.New("the backend rejected this API key")
				}
				return fmt.Errorf("verifying API key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged in.")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "API key issued by the backend")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored API key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.session.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
