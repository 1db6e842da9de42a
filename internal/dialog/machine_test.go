package dialog

import (
	"context"
	"strings"
	"testing"

	"github.com/haasonsaas/callbridge/internal/backend"
	"github.com/haasonsaas/callbridge/internal/intent"
	"github.com/haasonsaas/callbridge/internal/sessions"
)

// stubClassifier implements Classifier with a fixed verdict.
type stubClassifier struct {
	verdict intent.Verdict
	calls   int
}

func (s *stubClassifier) Classify(_ context.Context, _ string) intent.Verdict {
	s.calls++
	return s.verdict
}

// stubFetcher implements AnswerFetcher with a fixed answer.
type stubFetcher struct {
	answer backend.Answer
	calls  int
}

func (s *stubFetcher) Ask(_ context.Context, _ string) backend.Answer {
	s.calls++
	return s.answer
}

func testConfig() Config {
	return Config{
		WelcomePrompt:        "Welcome to LIC customer support. How can I help you today?",
		FollowUpPrompt:       "Do you have any other questions?",
		RetryPrompt:          "Are you still there?",
		Goodbye:              "Thank you for calling. Have a wonderful day. Goodbye.",
		InactivityGoodbye:    "I am disconnecting due to inactivity. Goodbye.",
		MaxSilence:           2,
		TurnAction:           "https://bot.example.com/voice/turn",
		WaitAction:           "https://bot.example.com/voice/wait",
		ListenTimeoutSeconds: 60,
		SpeechTimeout:        "auto",
		Language:             "en-US",
	}
}

func newTestMachine(classifier Classifier, fetcher AnswerFetcher) (*Machine, *sessions.MemoryStore) {
	store := sessions.NewMemoryStore()
	if classifier == nil {
		classifier = &stubClassifier{verdict: intent.VerdictContinue}
	}
	if fetcher == nil {
		fetcher = &stubFetcher{answer: backend.Answer{Text: "An answer."}}
	}
	return NewMachine(testConfig(), store, classifier, fetcher, nil, nil), store
}

func TestAnswer_FirstContactGreetsAndListens(t *testing.T) {
	m, store := newTestMachine(nil, nil)

	doc := string(m.Answer(context.Background(), "CA1").MustRender())

	if !strings.Contains(doc, "Welcome to LIC customer support") {
		t.Errorf("missing welcome prompt: %s", doc)
	}
	if !strings.Contains(doc, `input="speech"`) {
		t.Errorf("missing listen directive: %s", doc)
	}
	if strings.Contains(doc, "<Hangup") {
		t.Errorf("first contact must never hang up: %s", doc)
	}

	s, created := store.GetOrCreate("CA1")
	if created {
		t.Fatal("session should exist after first contact")
	}
	if s.SilenceCount != 0 {
		t.Errorf("greeting is not a silence event; silence_count = %d", s.SilenceCount)
	}
}

func TestAnswer_DuplicateDeliveryIsIdempotent(t *testing.T) {
	m, store := newTestMachine(nil, nil)

	first := string(m.Answer(context.Background(), "CA1").MustRender())
	second := string(m.Answer(context.Background(), "CA1").MustRender())

	if first != second {
		t.Error("duplicate first-contact events must render identically")
	}
	if store.Len() != 1 {
		t.Errorf("expected a single session, got %d", store.Len())
	}
}

func TestTurn_AnswersQuestion(t *testing.T) {
	classifier := &stubClassifier{verdict: intent.VerdictContinue}
	fetcher := &stubFetcher{answer: backend.Answer{Text: "Your premium is due on the 5th."}}
	m, store := newTestMachine(classifier, fetcher)

	m.Answer(context.Background(), "CA1")
	store.Update("CA1", func(s *sessions.Session) { s.SilenceCount = 1 })

	doc := string(m.Turn(context.Background(), "CA1", "what is my premium due date").MustRender())

	if !strings.Contains(doc, "Your premium is due on the 5th.") {
		t.Errorf("answer text not spoken: %s", doc)
	}
	if !strings.Contains(doc, "Do you have any other questions?") {
		t.Errorf("follow-up prompt missing: %s", doc)
	}
	if !strings.Contains(doc, `input="speech"`) {
		t.Errorf("listen window not reopened: %s", doc)
	}

	// The answer must precede the follow-up prompt.
	if strings.Index(doc, "Your premium") > strings.Index(doc, "any other questions") {
		t.Errorf("answer and follow-up out of order: %s", doc)
	}

	s, _ := store.GetOrCreate("CA1")
	if s.SilenceCount != 0 {
		t.Errorf("transcript must reset silence_count, got %d", s.SilenceCount)
	}
	if s.TurnCount != 1 {
		t.Errorf("expected 1 completed exchange, got %d", s.TurnCount)
	}
}

func TestTurn_EndVerdictSkipsBackend(t *testing.T) {
	classifier := &stubClassifier{verdict: intent.VerdictEnd}
	fetcher := &stubFetcher{answer: backend.Answer{Text: "should never be spoken"}}
	m, store := newTestMachine(classifier, fetcher)

	m.Answer(context.Background(), "CA2")
	doc := string(m.Turn(context.Background(), "CA2", "no thanks").MustRender())

	if !strings.Contains(doc, "Thank you for calling") {
		t.Errorf("goodbye missing: %s", doc)
	}
	if !strings.Contains(doc, "<Hangup") {
		t.Errorf("hangup missing: %s", doc)
	}
	if fetcher.calls != 0 {
		t.Errorf("backend must not be invoked on an end verdict, got %d calls", fetcher.calls)
	}
	if store.Len() != 0 {
		t.Error("terminal transition must remove the session")
	}
}

func TestTurn_WhitespaceTranscriptIsSilence(t *testing.T) {
	classifier := &stubClassifier{verdict: intent.VerdictContinue}
	m, store := newTestMachine(classifier, nil)

	m.Answer(context.Background(), "CA1")
	doc := string(m.Turn(context.Background(), "CA1", "   \t ").MustRender())

	if classifier.calls != 0 {
		t.Error("whitespace-only transcript must not reach the classifier")
	}
	s, _ := store.GetOrCreate("CA1")
	if s.SilenceCount != 1 {
		t.Errorf("expected silence strike, got %d", s.SilenceCount)
	}
	if !strings.Contains(doc, `input="speech"`) {
		t.Errorf("first silence must reopen the listen window: %s", doc)
	}
}

func TestWait_TwoStrikesTerminates(t *testing.T) {
	m, store := newTestMachine(nil, nil)
	m.Answer(context.Background(), "CA1")

	first := string(m.Wait(context.Background(), "CA1").MustRender())
	if strings.Contains(first, "<Hangup") {
		t.Errorf("first silence strike must not disconnect: %s", first)
	}
	if !strings.Contains(first, "Are you still there?") {
		t.Errorf("re-prompt missing on first strike: %s", first)
	}

	second := string(m.Wait(context.Background(), "CA1").MustRender())
	if !strings.Contains(second, "I am disconnecting due to inactivity") {
		t.Errorf("inactivity goodbye missing: %s", second)
	}
	if !strings.Contains(second, "<Hangup") {
		t.Errorf("second strike must disconnect: %s", second)
	}
	if strings.Contains(second, "<Gather") {
		t.Errorf("no third listen window after two strikes: %s", second)
	}
	if store.Len() != 0 {
		t.Error("silence termination must remove the session")
	}
}

func TestWait_SilenceResetByTranscript(t *testing.T) {
	m, store := newTestMachine(nil, nil)
	m.Answer(context.Background(), "CA1")

	m.Wait(context.Background(), "CA1")
	m.Turn(context.Background(), "CA1", "a question")
	m.Wait(context.Background(), "CA1")

	s, _ := store.GetOrCreate("CA1")
	if s.SilenceCount != 1 {
		t.Errorf("silence_count should be 1 after reset and one strike, got %d", s.SilenceCount)
	}
}

func TestTurn_ClassifierFailOpen(t *testing.T) {
	// A failing classifier is simulated by the fail-open verdict its
	// client contract guarantees.
	classifier := &stubClassifier{verdict: intent.VerdictContinue}
	fetcher := &stubFetcher{answer: backend.Answer{Text: "Still here to help."}}
	m, _ := newTestMachine(classifier, fetcher)

	m.Answer(context.Background(), "CA3")
	doc := string(m.Turn(context.Background(), "CA3", "anything").MustRender())

	if fetcher.calls != 1 {
		t.Errorf("continue verdict must reach the backend, got %d calls", fetcher.calls)
	}
	if strings.Contains(doc, "<Hangup") {
		t.Errorf("dependency failure must not drop the call: %s", doc)
	}
}

func TestTurn_BackendFallbackKeepsCallAlive(t *testing.T) {
	fetcher := &stubFetcher{answer: backend.Answer{Text: backend.FallbackErrored}}
	m, _ := newTestMachine(nil, fetcher)

	m.Answer(context.Background(), "CA3")
	doc := string(m.Turn(context.Background(), "CA3", "what about my policy").MustRender())

	if !strings.Contains(doc, backend.FallbackErrored) {
		t.Errorf("apology answer not spoken: %s", doc)
	}
	if strings.Contains(doc, "<Hangup") {
		t.Errorf("backend failure must not disconnect: %s", doc)
	}
	if !strings.Contains(doc, `input="speech"`) {
		t.Errorf("listen window must reopen after fallback answer: %s", doc)
	}
}

func TestTurn_BackendRequestsEnd(t *testing.T) {
	fetcher := &stubFetcher{answer: backend.Answer{Text: "Transferring you now, goodbye.", RequestsEnd: true}}
	m, store := newTestMachine(nil, fetcher)

	m.Answer(context.Background(), "CA4")
	doc := string(m.Turn(context.Background(), "CA4", "please end the call").MustRender())

	if !strings.Contains(doc, "Transferring you now, goodbye.") {
		t.Errorf("backend farewell not spoken: %s", doc)
	}
	if !strings.Contains(doc, "<Hangup") {
		t.Errorf("backend end request must disconnect: %s", doc)
	}
	if store.Len() != 0 {
		t.Error("backend-requested end must remove the session")
	}
}

func TestTurn_DuplicateDeliveryDoesNotCorrupt(t *testing.T) {
	classifier := &stubClassifier{verdict: intent.VerdictContinue}
	m, store := newTestMachine(classifier, nil)

	m.Answer(context.Background(), "CA1")
	first := string(m.Turn(context.Background(), "CA1", "what is covered").MustRender())
	second := string(m.Turn(context.Background(), "CA1", "what is covered").MustRender())

	if first != second {
		t.Error("replayed event must render identically")
	}
	s, _ := store.GetOrCreate("CA1")
	if s.SilenceCount != 0 {
		t.Errorf("replay corrupted silence_count: %d", s.SilenceCount)
	}
}

func TestTerminate_DuplicateTerminalEvent(t *testing.T) {
	classifier := &stubClassifier{verdict: intent.VerdictEnd}
	m, store := newTestMachine(classifier, nil)

	m.Answer(context.Background(), "CA2")
	m.Turn(context.Background(), "CA2", "goodbye")
	// Provider retries the same webhook after the session is gone.
	doc := string(m.Turn(context.Background(), "CA2", "goodbye").MustRender())

	if !strings.Contains(doc, "<Hangup") {
		t.Errorf("duplicate terminal event should still render a hangup: %s", doc)
	}
	if store.Len() != 0 {
		t.Errorf("expected empty store, got %d sessions", store.Len())
	}
}

func TestTurn_AfterSweepRecreatesSession(t *testing.T) {
	m, store := newTestMachine(nil, nil)

	// No Answer webhook seen (session swept or lost); a transcript
	// still gets a usable dialog turn.
	doc := string(m.Turn(context.Background(), "CA9", "is my policy active").MustRender())

	if !strings.Contains(doc, `input="speech"`) {
		t.Errorf("expected a live dialog render: %s", doc)
	}
	if store.Len() != 1 {
		t.Errorf("expected session to be recreated, got %d", store.Len())
	}
}
