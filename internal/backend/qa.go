// Package backend calls the question-answering service that produces
// spoken replies for caller questions.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/callbridge/internal/observability"
)

// Fallback lines spoken when the backend cannot produce an answer. The
// caller always hears a human-readable apology, never an error.
const (
	FallbackUnavailable = "Sorry, I am unable to connect to the server."
	FallbackErrored     = "I am having trouble accessing the database right now."
	FallbackNoAnswer    = "I didn't find an answer for that."
)

// endMarker is the single detection rule for a backend-initiated
// hangup: the answer text contains the token "[end_call]", matched
// case-insensitively. The marker is never spoken to the caller.
const endMarker = "[end_call]"

const maxResponseBytes = 1 << 20

// Answer is the structured result of one backend lookup.
type Answer struct {
	// Text is what gets spoken to the caller.
	Text string

	// RequestsEnd is set when the backend embedded an end-of-call
	// signal in its reply; the dialog should say goodbye and hang up
	// instead of reopening a listen window.
	RequestsEnd bool
}

// Config holds backend client settings.
type Config struct {
	// URL is the chat endpoint answering POST {"question": ...}.
	URL string

	// Timeout bounds each lookup. Answer generation is slower than
	// classification, so the default is 20s.
	Timeout time.Duration
}

// Client fetches answers from the QA backend.
type Client struct {
	url     string
	client  *http.Client
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewClient creates a backend client. Logger and metrics may be nil.
func NewClient(cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{
		url:     cfg.URL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
		metrics: metrics,
	}
}

// Ask fetches the answer for a caller question. Every failure mode maps
// to a spoken fallback; the error never reaches the dialog.
func (c *Client) Ask(ctx context.Context, question string) Answer {
	start := time.Now()

	answer, status := c.ask(ctx, question)
	elapsed := time.Since(start)

	if c.metrics != nil {
		c.metrics.RecordDependency("backend", status, elapsed)
	}
	if status != "success" && c.logger != nil {
		c.logger.Warn(ctx, "backend lookup substituted fallback answer", "fallback", answer.Text)
	}
	return answer
}

func (c *Client) ask(ctx context.Context, question string) (Answer, string) {
	payload, err := json.Marshal(map[string]string{"question": question})
	if err != nil {
		return Answer{Text: FallbackUnavailable}, "fallback"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Answer{Text: FallbackUnavailable}, "fallback"
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Answer{Text: FallbackUnavailable}, "fallback"
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Answer{Text: FallbackErrored}, "fallback"
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Answer{Text: FallbackUnavailable}, "fallback"
	}

	var parsed struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Answer{Text: FallbackErrored}, "fallback"
	}
	if strings.TrimSpace(parsed.Answer) == "" {
		return Answer{Text: FallbackNoAnswer}, "success"
	}

	return detectEndSignal(parsed.Answer), "success"
}

// detectEndSignal strips the end-of-call marker from an answer and
// reports whether it was present. Kept separate from the dialog logic so
// the marker convention lives in exactly one place.
func detectEndSignal(text string) Answer {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, endMarker)
	if idx < 0 {
		return Answer{Text: text}
	}

	remainder := strings.TrimSpace(text[:idx] + text[idx+len(endMarker):])
	return Answer{Text: remainder, RequestsEnd: true}
}
