package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/research-chat/internal/render"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List research discussions",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		r, err := render.New(app.Store.Locale(), 0, plain)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), r.SessionList(app.Store.ListSessions(), app.Store.ActiveSessionID()))
		return nil
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new discussion",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		sess := app.Store.CreateSession(cmd.Context())
		fmt.Fprintln(cmd.OutOrStdout(), sess.ID)
		return nil
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Print one discussion",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer app.Close()

		sess, ok := app.Store.Session(args[0])
		if !ok {
			return fmt.Errorf("session %s not found", args[0])
		}
		r, err := render.New(app.Store.Locale(), 0, plain)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), r.Thread(sess))
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsNewCmd, sessionsShowCmd)
}
