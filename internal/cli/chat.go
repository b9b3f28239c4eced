package cli

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/portfolio-assistant/internal/conversation"
	"github.com/ashureev/portfolio-assistant/internal/domain"
	"github.com/ashureev/portfolio-assistant/internal/intent"
)

func newChatCmd() *cobra.Command {
	cfg := conversation.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant in the terminal",
		Long:  "Chat with the assistant. Type /clear to restart the conversation and /quit to leave. Speech capture is not available here.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			lib, err := loadLibrary()
			if err != nil {
				return err
			}
			return runChat(cmd.InOrStdin(), cmd.OutOrStdout(), intent.NewEngine(lib), cfg)
		},
	}
	cmd.Flags().DurationVar(&cfg.ThinkMin, "think-min", cfg.ThinkMin, "Shortest reply delay")
	cmd.Flags().DurationVar(&cfg.ThinkMax, "think-max", cfg.ThinkMax, "Longest reply delay")
	return cmd
}

func runChat(in io.Reader, out io.Writer, engine *intent.Engine, cfg conversation.Config) error {
	replies := make(chan domain.Turn, 1)
	s := conversation.NewSession(engine, cfg,
		conversation.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		conversation.WithObserver(func(ev conversation.Event) {
			if ev.Kind == conversation.EventTurn && !ev.Turn.IsUser() {
				select {
				case replies <- *ev.Turn:
				default:
				}
			}
		}),
	)
	defer s.Close()

	printTurns(out, s.Turns())
	fmt.Fprintf(out, "  try: %s\n", strings.Join(s.QuickActions(), " | "))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			s.Clear()
			printTurns(out, s.Turns())
			continue
		}

		if !s.Submit(line) {
			continue
		}
		if st := s.Status(); st.Celebrating {
			fmt.Fprintln(out, "  🎉")
		}
		fmt.Fprint(out, "  …\r")
		printTurns(out, []domain.Turn{waitReply(replies, cfg.ThinkMax)})
	}
}

// waitReply blocks until the scheduled reply arrives. The session always
// answers within ThinkMax, so the extra margin only covers scheduling.
func waitReply(replies <-chan domain.Turn, limit time.Duration) domain.Turn {
	select {
	case t := <-replies:
		return t
	case <-time.After(limit + 5*time.Second):
		return domain.Turn{Speaker: domain.SpeakerAssistant, Text: "(no reply)"}
	}
}

func printTurns(out io.Writer, turns []domain.Turn) {
	for _, t := range turns {
		if t.IsUser() {
			continue
		}
		fmt.Fprintf(out, "assistant: %s\n", t.Text)
	}
}
