// Package intent classifies caller utterances into "wants to end the
// call" or "wants to continue" using an OpenAI-compatible chat
// completions endpoint (Groq by default).
package intent

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// Verdict is the classifier's binary decision for a caller utterance.
type Verdict string

const (
	// VerdictContinue keeps the dialog going. It is also the fail-open
	// value: classifier unavailability must never terminate a call.
	VerdictContinue Verdict = "CALL_CONTINUE"

	// VerdictEnd ends the call with a spoken goodbye.
	VerdictEnd Verdict = "CALL_END"
)

// systemPrompt pins the model to a two-string output. Anything else is
// treated as VerdictContinue by the caller-side parse.
const systemPrompt = "You are a call routing assistant. Your ONLY job is to classify the user's intent. " +
	"If the user says 'no', 'no thanks', 'bye', 'goodbye', 'nothing', 'that is all', or indicates they are done, output 'CALL_END'. " +
	"If the user asks a question, says 'yes', or wants information, output 'CALL_CONTINUE'. " +
	"Output ONLY one of these two strings. Do not add punctuation."

// Config holds classifier settings.
type Config struct {
	// APIKey authenticates against the completions endpoint.
	APIKey string

	// BaseURL is the OpenAI-compatible API root
	// (e.g. "https://api.groq.com/openai/v1").
	BaseURL string

	// Model is the completion model used for classification.
	Model string

	// Timeout bounds each classification request. Classification sits
	// on the caller's critical path, so it is kept short (default 10s).
	Timeout time.Duration
}

// Classifier asks a chat model whether the caller wants to hang up.
type Classifier struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewClassifier creates a classifier. Logger and metrics may be nil.
func NewClassifier(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Classifier {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Classifier{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Classify returns the verdict for the caller's transcript. Transport
// errors, non-success statuses, timeouts and unexpected completions all
// collapse to VerdictContinue so a flaky classifier can only ever keep a
// call alive, never drop one.
func (c *Classifier) Classify(ctx context.Context, text string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		// The SDK drops an exact zero from the request body, and the
		// classification must not sample.
		Temperature: 1e-8,
	})
	elapsed := time.Since(start)

	if err != nil {
		c.fallback(ctx, elapsed, "request failed", err)
		return VerdictContinue
	}
	if len(resp.Choices) == 0 {
		c.fallback(ctx, elapsed, "empty choices", nil)
		return VerdictContinue
	}

	verdict := strings.TrimSpace(resp.Choices[0].Message.Content)
	if verdict != string(VerdictEnd) && verdict != string(VerdictContinue) {
		c.fallback(ctx, elapsed, "unexpected completion", nil)
		return VerdictContinue
	}

	if c.metrics != nil {
		c.metrics.RecordDependency("classifier", "success", elapsed)
	}
	if c.logger != nil {
		c.logger.Debug(ctx, "intent classified", "verdict", verdict)
	}
	return Verdict(verdict)
}

func (c *Classifier) fallback(ctx context.Context, elapsed time.Duration, reason string, err error) {
	if c.metrics != nil {
		c.metrics.RecordDependency("classifier", "fallback", elapsed)
	}
	if c.logger != nil {
		args := []any{"reason", reason}
		if err != nil {
			args = append(args, "error", err)
		}
		c.logger.Warn(ctx, "intent classification failed open", args...)
	}
}
