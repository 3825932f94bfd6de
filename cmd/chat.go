package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/risk-cli/internal/chat"
	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/internal/server"
	"github.com/sells-group/risk-cli/pkg/anthropic"
)

// chatGreeting opens an interactive session.
const chatGreeting = "Hello! I'm your credit risk assistant. Ask me about high-risk clients, overdue accounts, credit utilization, or why a client has a specific score. Type 'exit' to quit."

var (
	chatInput   inputFlags
	chatOffline bool
	chatFormat  string
)

var chatCmd = &cobra.Command{
	Use:   "chat [question]",
	Short: "Ask questions about the portfolio",
	Long: `Answer free-text questions about scored records. Only the records relevant
to each question are sent to the model, together with a portfolio summary.
With a question argument, one answer is printed; otherwise an interactive
session reads questions from stdin.

--offline (or chat.offline in config) answers common questions locally
without calling the model. --format json or yaml waits for the complete
answer and prints it with the records the question was routed to.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		responder, err := newResponder(chatOffline || cfg.Chat.Offline)
		if err != nil {
			return err
		}
		b, err := chatInput.load(ctx)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if chatFormat != formatTable && chatFormat != "" {
			if len(args) == 0 {
				return eris.Errorf("--format %s requires a question argument", chatFormat)
			}
			return askStructured(ctx, out, responder, strings.Join(args, " "), b.Records)
		}
		if len(args) > 0 {
			_, err := askAndPrint(ctx, out, responder, nil, strings.Join(args, " "), b.Records)
			return err
		}
		return chatLoop(ctx, cmd.InOrStdin(), out, responder, b.Records)
	},
}

func init() {
	addInputFlags(chatCmd, &chatInput)
	chatCmd.Flags().BoolVar(&chatOffline, "offline", false, "answer locally without calling the model")
	chatCmd.Flags().StringVar(&chatFormat, "format", formatTable, "output format: table (streamed), json or yaml")
	rootCmd.AddCommand(chatCmd)
}

// newResponder returns the local responder when offline, otherwise a
// model-backed assistant configured from cfg.
func newResponder(offline bool) (chat.Responder, error) {
	if offline {
		return chat.LocalResponder{}, nil
	}
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic key is required (RISK_ANTHROPIC_KEY or ANTHROPIC_API_KEY); use --offline to answer locally")
	}

	var opts []option.RequestOption
	if cfg.Anthropic.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.Anthropic.BaseURL))
	}
	return &chat.Assistant{
		Client:       anthropic.NewClient(cfg.Anthropic.Key, opts...),
		Model:        cfg.Anthropic.Model,
		MaxTokens:    cfg.Anthropic.MaxTokens,
		HistoryLimit: cfg.Chat.HistoryLimit,
		Filter:       relevance.Filterer{MaxRecords: cfg.Filter.MaxRecords},
		Breaker: chat.NewModelBreaker(resilience.BreakerFor(
			cfg.Anthropic.BreakerThreshold,
			time.Duration(cfg.Anthropic.BreakerResetSecs)*time.Second,
		)),
	}, nil
}

// askAndPrint streams one answer to out and returns the full text.
func askAndPrint(ctx context.Context, out io.Writer, r chat.Responder, history []anthropic.Message, question string, records []model.ClientRecord) (string, error) {
	answer, err := r.Ask(ctx, history, question, records, func(text string) error {
		_, err := io.WriteString(out, text)
		return err
	})
	_, _ = fmt.Fprintln(out)
	if err != nil {
		return "", eris.Wrap(err, "chat")
	}
	return answer, nil
}

type chatAnswer struct {
	Question    string         `json:"question" yaml:"question"`
	Answer      string         `json:"answer" yaml:"answer"`
	Rule        relevance.Rule `json:"rule" yaml:"rule"`
	Description string         `json:"description" yaml:"description"`
	ClientIDs   []string       `json:"client_ids" yaml:"client_ids"`
}

// askStructured answers one question without streaming and writes it in
// chatFormat together with the routing the relevance filter chose.
func askStructured(ctx context.Context, out io.Writer, r chat.Responder, question string, records []model.ClientRecord) error {
	answer, err := r.Ask(ctx, nil, question, records, nil)
	if err != nil {
		return eris.Wrap(err, "chat")
	}

	res := relevance.Filterer{MaxRecords: cfg.Filter.MaxRecords}.Filter(question, records)
	ids := make([]string, 0, len(res.Clients))
	for _, c := range res.Clients {
		ids = append(ids, c.ID)
	}
	return writeFormatted(out, chatFormat, chatAnswer{
		Question:    question,
		Answer:      answer,
		Rule:        res.Rule,
		Description: res.Description,
		ClientIDs:   ids,
	}, func(io.Writer) {})
}

// chatLoop runs an interactive session until EOF or "exit". Provider
// errors are printed and the session continues.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, r chat.Responder, records []model.ClientRecord) error {
	_, _ = fmt.Fprintln(out, chatGreeting)
	history := []anthropic.Message{{Role: "assistant", Content: chatGreeting}}

	scanner := bufio.NewScanner(in)
	for {
		_, _ = fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			_, _ = fmt.Fprintln(out)
			return eris.Wrap(scanner.Err(), "chat: read input")
		}
		question := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(question) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := askAndPrint(ctx, out, r, history, question, records)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			_, _ = fmt.Fprintf(out, "error: %s\n", chatErrorMessage(err))
			continue
		}
		history = append(history,
			anthropic.Message{Role: "user", Content: question},
			anthropic.Message{Role: "assistant", Content: answer},
		)
	}
}

func chatErrorMessage(err error) string {
	switch {
	case errors.Is(err, chat.ErrRateLimited):
		return server.MsgRateLimited
	case errors.Is(err, chat.ErrUsageLimit):
		return server.MsgUsageLimit
	}
	return server.MsgUnavailable
}
