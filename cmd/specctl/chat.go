package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/app"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/config"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/conversation"
	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

const chatHelp = `Type a message and press enter. Append extracted fields after "::",
e.g. "36 by 48 please :: width=36 height=48".
Commands: /resume  /spec  /reset  /quit`

// ChatCmd runs an interactive conversation against the configured store.
func ChatCmd() *cobra.Command {
	var (
		userID  string
		asJSON  bool
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the conversation engine from the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.FromEnv(chatEnv)
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			a, err := app.New(cmd.Context(), cfg, slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			if err != nil {
				return err
			}
			defer a.Close()

			s := &chatSession{flow: a.Flow, userID: userID, out: cmd.OutOrStdout(), asJSON: asJSON}
			return s.run(cmd, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringVar(&userID, "user", "local-user", "Conversation user ID")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print full outcomes as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log engine activity to stderr")
	return cmd
}

// chatEnv serves the process environment. A chat session never issues or
// checks tokens, so a missing JWT_SECRET gets a throwaway value.
func chatEnv(key string) string {
	v := getenv(key)
	if key == "JWT_SECRET" && v == "" {
		return uuid.NewString()
	}
	return v
}

type chatSession struct {
	flow   *conversation.FlowService
	userID string
	out    io.Writer
	asJSON bool
}

func (s *chatSession) run(cmd *cobra.Command, in io.Reader) error {
	ctx := cmd.Context()
	fmt.Fprintln(s.out, chatHelp)
	s.print(s.flow.HandleReturningUser(ctx, s.userID))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(s.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(s.out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/resume":
			s.print(s.flow.HandleReturningUser(ctx, s.userID))
			continue
		case "/reset":
			if err := s.flow.Reset(ctx, s.userID); err != nil {
				fmt.Fprintf(s.out, "reset failed: %v\n", err)
				continue
			}
			fmt.Fprintln(s.out, "conversation cleared")
			continue
		case "/spec":
			spec, result, err := s.flow.Summary(ctx, s.userID)
			if err != nil {
				fmt.Fprintf(s.out, "no specification: %v\n", err)
				continue
			}
			fmt.Fprintf(s.out, "%d%% complete, quotable=%t\n", result.CompletionPercentage, result.CanGenerateQuote)
			for _, key := range spec.Keys() {
				fmt.Fprintf(s.out, "  %s = %v\n", key, spec[key])
			}
			continue
		}

		message, fields := parseChatLine(line)
		s.print(s.flow.ProcessUserMessage(ctx, s.userID, message, fields))
	}
}

func (s *chatSession) print(out conversation.Outcome) {
	if s.asJSON {
		raw, err := json.MarshalIndent(out, "", "  ")
		if err == nil {
			fmt.Fprintln(s.out, string(raw))
			return
		}
	}
	fmt.Fprintf(s.out, "[%s %d%%] %s\n", out.Type, out.Completion, out.Message)
}

// parseChatLine splits "message :: k=v k=v" into the message and its
// extracted fields. Values become numbers or booleans when they parse as one.
func parseChatLine(line string) (string, specification.Specification) {
	message, rest, found := strings.Cut(line, "::")
	message = strings.TrimSpace(message)
	if !found {
		return message, nil
	}

	fields := specification.Specification{}
	for _, pair := range strings.Fields(rest) {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			continue
		}
		fields[key] = parseValue(raw)
	}
	if message == "" {
		message = strings.TrimSpace(rest)
	}
	return message, fields
}

func parseValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}
