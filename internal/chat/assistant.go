package chat

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/risk-cli/internal/model"
	"github.com/sells-group/risk-cli/internal/relevance"
	"github.com/sells-group/risk-cli/internal/resilience"
	"github.com/sells-group/risk-cli/pkg/anthropic"
)

// Errors surfaced to callers when the model provider refuses a request.
var (
	ErrRateLimited = eris.New("chat: model rate limit exceeded")
	ErrUsageLimit  = eris.New("chat: model usage limit reached")
)

// DefaultHistoryLimit is the number of prior messages kept when the
// Assistant has no explicit limit.
const DefaultHistoryLimit = 20

// Responder answers a question about records. onToken receives the answer
// incrementally and may be nil, in which case the answer is only returned.
type Responder interface {
	Ask(ctx context.Context, history []anthropic.Message, question string, records []model.ClientRecord, onToken func(string) error) (string, error)
}

// Assistant answers questions with a hosted model, sending only the
// records the relevance filter selects for the question.
type Assistant struct {
	Client       anthropic.Client
	Model        string
	MaxTokens    int64
	HistoryLimit int
	Filter       relevance.Filterer

	// Breaker, if set, stops calling the model after repeated server-side
	// failures.
	Breaker *resilience.CircuitBreaker
}

// NewModelBreaker returns a circuit breaker that trips on model server
// errors and transient network failures, not on client errors such as
// rate limits.
func NewModelBreaker(cfg resilience.CircuitBreakerConfig) *resilience.CircuitBreaker {
	cfg.ShouldTrip = func(err error) bool {
		return anthropic.StatusCode(err) >= http.StatusInternalServerError || resilience.IsTransient(err)
	}
	return resilience.NewCircuitBreaker(cfg)
}

// Ask answers question given the prior conversation. With onToken set the
// answer is streamed; otherwise one non-streaming request is made.
func (a *Assistant) Ask(ctx context.Context, history []anthropic.Message, question string, records []model.ClientRecord, onToken func(string) error) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", eris.New("chat: empty question")
	}

	res := a.Filter.Filter(question, records)
	log := zap.L().With(
		zap.String("rule", string(res.Rule)),
		zap.Int("selected", len(res.Clients)),
		zap.Int("total", len(records)),
	)
	log.Debug("chat: records selected", zap.String("description", res.Description))

	msgs := append(TrimHistory(history, a.historyLimit()), anthropic.Message{Role: "user", Content: question})
	req := anthropic.MessageRequest{
		Model:     a.Model,
		MaxTokens: a.MaxTokens,
		System:    anthropic.BuildCachedSystemBlocks(SystemPrompt(BuildContext(records, res)), ""),
		Messages:  msgs,
	}

	var answer strings.Builder
	call := func(ctx context.Context) (*anthropic.MessageResponse, error) {
		if onToken == nil {
			resp, err := a.Client.CreateMessage(ctx, req)
			if err != nil {
				return nil, err
			}
			answer.WriteString(resp.Text())
			return resp, nil
		}
		return a.Client.StreamMessage(ctx, req, func(text string) error {
			answer.WriteString(text)
			return onToken(text)
		})
	}

	var resp *anthropic.MessageResponse
	var err error
	if a.Breaker != nil {
		resp, err = resilience.ExecuteVal(ctx, a.Breaker, call)
	} else {
		resp, err = call(ctx)
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return "", eris.Wrap(err, "chat: model unavailable")
	}
	if err != nil {
		switch anthropic.StatusCode(err) {
		case http.StatusTooManyRequests:
			return "", ErrRateLimited
		case http.StatusPaymentRequired:
			return "", ErrUsageLimit
		}
		log.Error("chat: model request failed", zap.Error(err))
		return "", eris.Wrap(err, "chat: ask")
	}

	resp.Usage.LogCost(a.Model, "chat")
	return answer.String(), nil
}

func (a *Assistant) historyLimit() int {
	if a.HistoryLimit <= 0 {
		return DefaultHistoryLimit
	}
	return a.HistoryLimit
}

// TrimHistory keeps at most limit of the most recent non-empty messages
// and drops leading assistant turns so the conversation starts with the
// user.
func TrimHistory(history []anthropic.Message, limit int) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(history))
	for _, m := range history {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := m.Role
		if role != "assistant" {
			role = "user"
		}
		out = append(out, anthropic.Message{Role: role, Content: m.Content})
	}
	if limit >= 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	for len(out) > 0 && out[0].Role == "assistant" {
		out = out[1:]
	}
	return out
}
