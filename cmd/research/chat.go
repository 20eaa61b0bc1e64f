package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/suPer8Hu/research-chat/internal/bootstrap"
	"github.com/suPer8Hu/research-chat/internal/chat"
	"github.com/suPer8Hu/research-chat/internal/render"
)

var (
	askSession string
	askStream  bool
	plain      bool
)

var askCmd = &cobra.Command{
	Use:   "ask [prompt]",
	Short: "Send one prompt and print the parsed reply",
	Args:  cobra.MinimumNArgs(1),
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

		sessionID := askSession
		if sessionID == "" {
			sessionID = app.Store.ActiveSessionID()
		}
		return send(cmd.Context(), app, r, cmd.OutOrStdout(), cmd.ErrOrStderr(), sessionID, strings.Join(args, " "), askStream)
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive research chat on the active session",
	Long: `Reads prompts from stdin and sends them to the active session.

Commands:
  /new            start a new discussion
  /list           list discussions
  /select <id>    switch discussion
  /show           print the current discussion
  /quit           exit`,
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
		return repl(cmd.Context(), app, r, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	askCmd.Flags().StringVar(&askSession, "session", "", "session id (default: active session)")
	askCmd.Flags().BoolVar(&askStream, "stream", false, "print reply text as it arrives")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "disable colours and markdown styling")
}

func repl(ctx context.Context, app *bootstrap.App, r *render.Renderer, in io.Reader, out, errOut io.Writer) error {
	sc := bufio.NewScanner(in)
	prompt := func() {
		sess, _ := app.Store.ActiveSession()
		fmt.Fprintf(out, "\n[%s] > ", sess.Title)
	}

	prompt()
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		cmd, arg, _ := strings.Cut(line, " ")
		switch cmd {
		case "/quit", "/exit":
			return nil
		case "/new":
			sess := app.Store.CreateSession(ctx)
			fmt.Fprintf(out, "started %s\n", sess.ID)
		case "/list":
			fmt.Fprint(out, r.SessionList(app.Store.ListSessions(), app.Store.ActiveSessionID()))
		case "/select":
			if !app.Store.SelectSession(strings.TrimSpace(arg)) {
				fmt.Fprintln(out, "no such session")
			}
		case "/show":
			sess, _ := app.Store.ActiveSession()
			fmt.Fprintln(out, r.Thread(sess))
		default:
			if err := send(ctx, app, r, out, errOut, app.Store.ActiveSessionID(), line, true); err != nil {
				return err
			}
		}
		prompt()
	}
	return sc.Err()
}

func send(ctx context.Context, app *bootstrap.App, r *render.Renderer, out, errOut io.Writer, sessionID, text string, stream bool) error {
	var opts []chat.SendOption
	if stream {
		opts = append(opts, chat.WithOnChunk(func(delta string) {
			fmt.Fprint(out, delta)
		}))
	}

	res, err := app.Service.SendTo(ctx, sessionID, text, opts...)
	if err != nil {
		return err
	}
	if stream {
		fmt.Fprintln(out)
	}

	switch res.State {
	case chat.StateIgnored:
		if res.Reason == chat.ReasonInFlight {
			fmt.Fprintln(errOut, "a request is already in flight for this session")
		}
		return nil
	default:
		fmt.Fprintln(out, r.Message(*res.Reply))
		return nil
	}
}
