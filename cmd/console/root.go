package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/bcnelson/autoreply-console/internal/config"
	"github.com/bcnelson/autoreply-console/internal/gateway"
)

var errNotLoggedIn = errors.New("not logged in, run \"console login --token <api key>\" first")

// app holds what every subcommand needs. It is built before any subcommand
// runs.
type app struct {
	cfg     *config.ConsoleConfig
	logger  *log.Logger
	session *gateway.Session
	client  *gateway.Client
}

// requireSession fails when no token is stored.
func (a *app) requireSession() error {
	if !a.session.Authenticated() {
		return errNotLoggedIn
	}
	return nil
}

// expandHome resolves a leading ~ in path.
func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "console",
		Short:        "Operator console for the comment and DM auto-responder",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConsole()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			a.cfg = cfg
			a.logger = cfg.Log.NewLogger(cmd.ErrOrStderr())
			log.SetDefault(a.logger)

			session, err := gateway.LoadSession(gateway.FileStore{Path: expandHome(cfg.SessionFile)})
			if err != nil {
				return err
			}
			a.session = session
			a.client = gateway.New(cfg.APIURL, session,
				gateway.WithTimeout(cfg.APITimeout),
				gateway.WithLogger(a.logger),
			)
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newLogsCmd(a),
		newLoginCmd(a),
		newLogoutCmd(a),
		newRulesCmd(a),
	)

	return root
}
