// Package dialog implements the call-session state machine. Each inbound
// webhook is one isolated event for an ongoing call; the machine looks up
// the call's counters, optionally consults the intent classifier and the
// QA backend, and renders the TwiML that drives the next leg of the call.
package dialog

import (
	"context"
	"strings"

	"github.com/haasonsaas/callbridge/internal/backend"
	"github.com/haasonsaas/callbridge/internal/intent"
	"github.com/haasonsaas/callbridge/internal/observability"
	"github.com/haasonsaas/callbridge/internal/sessions"
	"github.com/haasonsaas/callbridge/internal/twiml"
)

// End reasons recorded when a call reaches a terminal transition.
const (
	EndReasonGoodbye        = "goodbye"
	EndReasonSilence        = "silence"
	EndReasonBackendRequest = "backend-request"
)

// Classifier decides whether the caller wants to end the call.
// Implementations must fail open: a broken classifier returns
// VerdictContinue, never an error.
type Classifier interface {
	Classify(ctx context.Context, text string) intent.Verdict
}

// AnswerFetcher produces the spoken reply for a caller question.
// Implementations normalize their own failures into apology answers.
type AnswerFetcher interface {
	Ask(ctx context.Context, question string) backend.Answer
}

// Config holds the machine's prompts and listen-window settings.
type Config struct {
	// WelcomePrompt greets the caller on first contact.
	WelcomePrompt string

	// FollowUpPrompt is spoken after each answer to invite the next
	// question.
	FollowUpPrompt string

	// RetryPrompt is spoken when a listen window closes without speech
	// and the call still has silence strikes left.
	RetryPrompt string

	// Goodbye is spoken when the caller (or the backend) ends the call.
	Goodbye string

	// InactivityGoodbye is spoken before disconnecting a silent call.
	InactivityGoodbye string

	// MaxSilence is the number of consecutive empty listen windows
	// tolerated before the call is terminated (default 2).
	MaxSilence int

	// TurnAction and WaitAction are the absolute callback URLs speech
	// results and listen-window expiries post to.
	TurnAction string
	WaitAction string

	// ListenTimeoutSeconds is the Gather timeout.
	ListenTimeoutSeconds int

	// SpeechTimeout is "auto" or a fixed trailing-silence duration in
	// seconds.
	SpeechTimeout string

	// Language is the speech recognition language tag.
	Language string
}

// Machine drives one dialog transition per inbound webhook. All state
// lives in the injected session store, so concurrent events for distinct
// calls never interact and duplicate deliveries only re-read counters.
type Machine struct {
	cfg        Config
	store      sessions.Store
	classifier Classifier
	fetcher    AnswerFetcher
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewMachine creates a dialog machine. Logger and metrics may be nil.
func NewMachine(cfg Config, store sessions.Store, classifier Classifier, fetcher AnswerFetcher,
	logger *observability.Logger, metrics *observability.Metrics) *Machine {
	if cfg.MaxSilence <= 0 {
		cfg.MaxSilence = 2
	}
	return &Machine{
		cfg:        cfg,
		store:      store,
		classifier: classifier,
		fetcher:    fetcher,
		logger:     logger,
		metrics:    metrics,
	}
}

// Answer handles first contact for a call: create the session and greet
// the caller inside a barge-in listen window. A duplicate delivery finds
// the session already present and renders the same greeting again.
func (m *Machine) Answer(ctx context.Context, callID string) *twiml.Response {
	_, created := m.store.GetOrCreate(callID)
	if created {
		if m.metrics != nil {
			m.metrics.CallStarted()
		}
		if m.logger != nil {
			m.logger.Info(ctx, "call session created", "call_id", callID)
		}
	}

	gather := m.newGather(m.cfg.TurnAction)
	gather.Append(&twiml.Say{Text: m.cfg.WelcomePrompt, Language: m.cfg.Language})

	resp := &twiml.Response{}
	resp.Append(&twiml.Pause{Length: 1}, gather, m.waitRedirect())
	return resp
}

// Turn handles a speech-result webhook. An empty or whitespace-only
// transcript is a silence event, never sent to classification. Otherwise
// the silence counter resets, intent is classified first (an end verdict
// skips the backend entirely), and the answer is spoken inside a
// reopened listen window.
func (m *Machine) Turn(ctx context.Context, callID, transcript string) *twiml.Response {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return m.Wait(ctx, callID)
	}

	// A transcript can arrive for a call the store no longer knows,
	// e.g. after an idle sweep; treat it as a live call again.
	if _, created := m.store.GetOrCreate(callID); created && m.metrics != nil {
		m.metrics.CallStarted()
	}
	m.store.Update(callID, func(s *sessions.Session) {
		s.SilenceCount = 0
	})

	if m.logger != nil {
		m.logger.Info(ctx, "caller transcript received", "call_id", callID, "transcript", transcript)
	}

	if m.classifier.Classify(ctx, transcript) == intent.VerdictEnd {
		if m.metrics != nil {
			m.metrics.TurnsProcessed.WithLabelValues("ended").Inc()
		}
		return m.terminate(ctx, callID, EndReasonGoodbye, m.cfg.Goodbye)
	}

	answer := m.fetcher.Ask(ctx, transcript)
	if answer.RequestsEnd {
		goodbye := answer.Text
		if goodbye == "" {
			goodbye = m.cfg.Goodbye
		}
		if m.metrics != nil {
			m.metrics.TurnsProcessed.WithLabelValues("ended").Inc()
		}
		return m.terminate(ctx, callID, EndReasonBackendRequest, goodbye)
	}

	m.store.Update(callID, func(s *sessions.Session) {
		s.TurnCount++
	})
	if m.metrics != nil {
		m.metrics.TurnsProcessed.WithLabelValues("answered").Inc()
	}

	gather := m.newGather(m.cfg.TurnAction)
	gather.Append(
		&twiml.Say{Text: answer.Text, Language: m.cfg.Language},
		&twiml.Pause{Length: 1},
		&twiml.Say{Text: m.cfg.FollowUpPrompt, Language: m.cfg.Language},
	)

	resp := &twiml.Response{}
	resp.Append(gather, m.waitRedirect())
	return resp
}

// Wait handles a listen window that closed without speech: one silence
// strike. At the configured maximum the call is disconnected with a
// spoken goodbye; below it the caller is re-prompted.
func (m *Machine) Wait(ctx context.Context, callID string) *twiml.Response {
	if _, created := m.store.GetOrCreate(callID); created && m.metrics != nil {
		m.metrics.CallStarted()
	}
	s, _ := m.store.Update(callID, func(s *sessions.Session) {
		s.SilenceCount++
	})

	if m.metrics != nil {
		m.metrics.SilenceStrikes.Inc()
		m.metrics.TurnsProcessed.WithLabelValues("silence").Inc()
	}
	if m.logger != nil {
		m.logger.Info(ctx, "silence strike", "call_id", callID, "silence_count", s.SilenceCount)
	}

	if s.SilenceCount >= m.cfg.MaxSilence {
		return m.terminate(ctx, callID, EndReasonSilence, m.cfg.InactivityGoodbye)
	}

	gather := m.newGather(m.cfg.TurnAction)
	gather.Append(&twiml.Say{Text: m.cfg.RetryPrompt, Language: m.cfg.Language})

	resp := &twiml.Response{}
	resp.Append(gather, m.waitRedirect())
	return resp
}

// terminate renders the spoken closing line plus a hangup and removes
// the session. A duplicate terminal event finds no session and only
// re-renders the goodbye.
func (m *Machine) terminate(ctx context.Context, callID, reason, farewell string) *twiml.Response {
	var turns int
	if s, ok := m.store.Update(callID, func(s *sessions.Session) {}); ok {
		turns = s.TurnCount
	}

	if m.store.Remove(callID) {
		if m.metrics != nil {
			m.metrics.CallEnded(reason, turns)
		}
		if m.logger != nil {
			m.logger.Info(ctx, "call ended", "call_id", callID, "reason", reason, "turns", turns)
		}
	}

	resp := &twiml.Response{}
	if farewell != "" {
		resp.Append(&twiml.Say{Text: farewell, Language: m.cfg.Language})
	}
	resp.Append(&twiml.Hangup{})
	return resp
}

func (m *Machine) newGather(action string) *twiml.Gather {
	return twiml.NewGather(twiml.GatherParams{
		Action:         action,
		TimeoutSeconds: m.cfg.ListenTimeoutSeconds,
		SpeechTimeout:  m.cfg.SpeechTimeout,
		Language:       m.cfg.Language,
	})
}

func (m *Machine) waitRedirect() *twiml.Redirect {
	return &twiml.Redirect{Method: "POST", URL: m.cfg.WaitAction}
}
