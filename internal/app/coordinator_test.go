package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"lecture-quiz-service/internal/domain"
	"lecture-quiz-service/internal/enrich"
	"lecture-quiz-service/internal/infra/memory"
)

func TestCreateSessionValidation(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	if _, err := c.CreateSession(ctx, "", "Physics", 30); !errors.Is(err, domain.ErrMissingField) {
		t.Fatalf("expected missing field error, got %v", err)
	}
	if _, err := c.CreateSession(ctx, "Alice", "Physics", 2); !errors.Is(err, domain.ErrInvalidTimeLimit) {
		t.Fatalf("expected time limit error for 2s, got %v", err)
	}
	if _, err := c.CreateSession(ctx, "Alice", "Physics", 1000); !errors.Is(err, domain.ErrInvalidTimeLimit) {
		t.Fatalf("expected time limit error for 1000s, got %v", err)
	}

	session, err := c.CreateSession(ctx, "Alice", "Physics", 30)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Status != domain.SessionWaiting {
		t.Fatalf("new session must be waiting, got %s", session.Status)
	}
	if len(session.JoinCode) != joinCodeLength {
		t.Fatalf("expected %d-char join code, got %q", joinCodeLength, session.JoinCode)
	}
}

func TestJoinSessionNormalizesCode(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, err := c.CreateSession(ctx, "Alice", "Physics", 30)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	first, err := c.JoinSession(ctx, "  "+strings.ToLower(session.JoinCode)+" ", "Bob")
	if err != nil {
		t.Fatalf("join with lowercase code: %v", err)
	}
	second, err := c.JoinSession(ctx, session.JoinCode, "Cara")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if first.ParticipantID == second.ParticipantID {
		t.Fatalf("participants must get distinct ids")
	}

	if _, err := c.JoinSession(ctx, "NOPE42", "Dave"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found for unknown code, got %v", err)
	}
}

func TestJoinAfterEndFails(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	if _, err := c.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := c.JoinSession(ctx, session.JoinCode, "Bob"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("join after end must fail with not found, got %v", err)
	}
}

func TestLateJoinSeesTrueRemainingTime(t *testing.T) {
	ctx := context.Background()
	c, clock, _ := newTestCoordinator(t, quizEnricher("B"))

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	c.processFragment(ctx, session.ID, "What is the speed of light?")

	clock.Advance(7 * time.Second)

	joined, err := c.JoinSession(ctx, session.JoinCode, "Latecomer")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.CurrentTimer == nil {
		t.Fatalf("expected an active timer snapshot")
	}
	if joined.CurrentTimer.TimeRemainingSec != 23 {
		t.Fatalf("expected 23s remaining, got %f", joined.CurrentTimer.TimeRemainingSec)
	}
	if len(joined.Quizzes) != 1 {
		t.Fatalf("expected the quiz in the snapshot, got %d", len(joined.Quizzes))
	}
}

func TestSupersededTimerCallbackIsInert(t *testing.T) {
	ctx := context.Background()
	c, _, sched := newTestCoordinator(t, quizEnricher("B"))

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	events, cancel := c.broker.Subscribe(session.ID, RoleParticipant, "p0")
	defer cancel()

	c.processFragment(ctx, session.ID, "What is question one?")
	c.processFragment(ctx, session.ID, "What is question two?")

	if entries := sched.pending(); entries != 2 {
		t.Fatalf("expected 2 scheduled callbacks, got %d", entries)
	}

	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	if len(quizzes) != 2 {
		t.Fatalf("expected 2 persisted quizzes, got %d", len(quizzes))
	}
	entry, ok := c.registry.Current(session.ID)
	if !ok || entry.QuizID != quizzes[1].ID {
		t.Fatalf("registry must reference the second quiz, got %+v", entry)
	}

	// Quiz A's deadline passes: its callback must find itself superseded.
	sched.fire(0)
	for _, ev := range drainEvents(events) {
		if ev.Type == EventQuizResults {
			t.Fatalf("superseded quiz must not produce a reveal: %+v", ev)
		}
	}

	// Quiz B's callback still reveals normally.
	sched.fire(1)
	if ev, ok := findEvent(drainEvents(events), EventQuizResults); !ok {
		t.Fatalf("expected reveal for the current quiz")
	} else if ev.Payload.(quizResultsPayload).QuizID != quizzes[1].ID {
		t.Fatalf("reveal must reference quiz B")
	}
}

func TestManualEndSharesRevealPath(t *testing.T) {
	ctx := context.Background()
	c, _, sched := newTestCoordinator(t, quizEnricher("C"))

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	events, cancel := c.broker.Subscribe(session.ID, RoleParticipant, "p0")
	defer cancel()

	c.processFragment(ctx, session.ID, "Manual end question?")
	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)

	if err := c.EndQuiz(ctx, session.ID, quizzes[0].ID); err != nil {
		t.Fatalf("manual end: %v", err)
	}
	ev, ok := findEvent(drainEvents(events), EventQuizResults)
	if !ok {
		t.Fatalf("expected reveal broadcast")
	}
	payload := ev.Payload.(quizResultsPayload)
	if payload.CorrectAnswer != "C" || payload.Reason != RevealManual {
		t.Fatalf("unexpected reveal payload: %+v", payload)
	}

	// Second manual end and the late timer callback are both silent no-ops.
	if err := c.EndQuiz(ctx, session.ID, quizzes[0].ID); err != nil {
		t.Fatalf("repeat manual end must be a no-op, got %v", err)
	}
	sched.fire(0)
	for _, ev := range drainEvents(events) {
		if ev.Type == EventQuizResults {
			t.Fatalf("already-revealed quiz must not reveal again")
		}
	}
}

func TestSubmitAnswerRules(t *testing.T) {
	ctx := context.Background()
	c, _, sched := newTestCoordinator(t, quizEnricher("B"))

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	joined, _ := c.JoinSession(ctx, session.JoinCode, "Bob")
	c.processFragment(ctx, session.ID, "A question?")
	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	quizID := quizzes[0].ID

	if _, err := c.SubmitAnswer(ctx, quizID, joined.ParticipantID, "E"); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid option, got %v", err)
	}

	answer, err := c.SubmitAnswer(ctx, quizID, joined.ParticipantID, "b")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if answer.Selected != "B" || answer.Late {
		t.Fatalf("expected normalized on-time answer, got %+v", answer)
	}

	if _, err := c.SubmitAnswer(ctx, quizID, joined.ParticipantID, "A"); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("duplicate must be rejected, got %v", err)
	}

	// After the reveal, a second participant's answer is recorded but late.
	other, _ := c.JoinSession(ctx, session.JoinCode, "Cara")
	sched.fire(0)
	late, err := c.SubmitAnswer(ctx, quizID, other.ParticipantID, "B")
	if err != nil {
		t.Fatalf("late submit: %v", err)
	}
	if !late.Late {
		t.Fatalf("answer after reveal must be marked late")
	}
}

func TestEndSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, quizEnricher("B"))

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	presenterEvents, cancel := c.broker.Subscribe(session.ID, RolePresenter, "")
	defer cancel()

	joined, _ := c.JoinSession(ctx, session.JoinCode, "Bob")
	c.processFragment(ctx, session.ID, "A question?")
	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	if _, err := c.SubmitAnswer(ctx, quizzes[0].ID, joined.ParticipantID, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	first, err := c.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	second, err := c.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("second end: %v", err)
	}
	if first.TotalAnswers != second.TotalAnswers || first.Signal != second.Signal {
		t.Fatalf("repeated end must return the same report: %+v vs %+v", first, second)
	}

	ends := 0
	for _, ev := range drainEvents(presenterEvents) {
		if ev.Type == EventSessionEnded {
			ends++
		}
	}
	if ends != 1 {
		t.Fatalf("session end must be pushed exactly once, got %d", ends)
	}

	if _, ok := c.registry.Current(session.ID); ok {
		t.Fatalf("registry entry must be cleared at session end")
	}
}

func TestEnricherFailuresAreSwallowed(t *testing.T) {
	ctx := context.Background()
	failing := &stubEnricher{
		detect: func(string) (enrich.Detection, error) {
			return enrich.Detection{}, errors.New("model unavailable")
		},
	}
	c, _, _ := newTestCoordinator(t, failing)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	c.processFragment(ctx, session.ID, "Does this break anything?")

	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	if len(quizzes) != 0 {
		t.Fatalf("failed enrichment must not create quizzes")
	}
	// The session keeps working for the next fragment.
	if _, err := c.IngestFragment(ctx, session.ID, "next fragment"); err != nil {
		t.Fatalf("ingest after enricher failure: %v", err)
	}
}

func TestEnrichmentAfterSessionEndIsDiscarded(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)

	// The enricher outlives the session: end it between detect and generate.
	c.enricher = &stubEnricher{
		detect: func(text string) (enrich.Detection, error) {
			return enrich.Detection{HasQuestion: true, Question: text}, nil
		},
		generate: func(string) (*enrich.GeneratedQuiz, error) {
			if _, err := c.EndSession(ctx, session.ID); err != nil {
				t.Errorf("end during enrichment: %v", err)
			}
			return &enrich.GeneratedQuiz{OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", CorrectAnswer: "A"}, nil
		},
	}

	c.processFragment(ctx, session.ID, "Too slow?")

	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	if len(quizzes) != 0 {
		t.Fatalf("quiz completed after session end must be discarded")
	}
}

func TestSessionReportSummarizesTranscript(t *testing.T) {
	ctx := context.Background()
	enricher := &stubEnricher{
		summarize: func(text string) (string, error) {
			if !strings.Contains(text, "speed of light") || !strings.Contains(text, "refraction") {
				t.Errorf("summary input missing fragment text: %q", text)
			}
			return "covered light speed and refraction", nil
		},
	}
	c, _, _ := newTestCoordinator(t, enricher)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	for _, text := range []string{
		"The speed of light is constant in vacuum.",
		"Refraction bends light at a boundary.",
	} {
		if _, err := c.IngestFragment(ctx, session.ID, text); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	report, err := c.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if report.Summary != "covered light speed and refraction" {
		t.Fatalf("expected transcript summary on the report, got %q", report.Summary)
	}
}

func TestSessionReportSummaryIsBestEffort(t *testing.T) {
	ctx := context.Background()
	enricher := &stubEnricher{
		summarize: func(string) (string, error) {
			return "", errors.New("model unavailable")
		},
	}
	c, _, _ := newTestCoordinator(t, enricher)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	if _, err := c.IngestFragment(ctx, session.ID, "Some lecture content."); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	report, err := c.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("summarizer failure must not fail the report: %v", err)
	}
	if report.Summary != "" {
		t.Fatalf("expected no summary on failure, got %q", report.Summary)
	}

	// No fragments at all: the summarizer isn't even consulted.
	other, _ := c.CreateSession(ctx, "Alice", "Chemistry", 30)
	report, err = c.EndSession(ctx, other.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if report.Summary != "" {
		t.Fatalf("expected no summary without fragments, got %q", report.Summary)
	}
}

func TestJoinCountZeroWhenRosterUnavailable(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	events, cancel := c.broker.Subscribe(session.ID, RolePresenter, "")
	defer cancel()

	c.store = rosterFailStore{Store: c.store}
	if _, err := c.JoinSession(ctx, session.JoinCode, "Bob"); err != nil {
		t.Fatalf("join must survive a roster load failure: %v", err)
	}

	ev, ok := findEvent(drainEvents(events), EventParticipantJoined)
	if !ok {
		t.Fatalf("expected participantJoined broadcast")
	}
	if got := ev.Payload.(participantJoinedPayload).Count; got != 0 {
		t.Fatalf("count must be 0 when the roster is unavailable, got %d", got)
	}
}

type rosterFailStore struct {
	Store
}

func (rosterFailStore) ListParticipants(context.Context, string) ([]domain.Participant, error) {
	return nil, errors.New("backend unavailable")
}

func TestIngestFragmentRejectsEndedSession(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	if _, err := c.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if _, err := c.IngestFragment(ctx, session.ID, "hello"); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("expected session ended error, got %v", err)
	}
}

func TestRecordingLifecycle(t *testing.T) {
	ctx := context.Background()
	c, _, _ := newTestCoordinator(t, nil)

	session, _ := c.CreateSession(ctx, "Alice", "Physics", 30)
	if err := c.StartRecording(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	got, _ := c.GetSession(ctx, session.ID)
	if got.Status != domain.SessionActive {
		t.Fatalf("expected active after start, got %s", got.Status)
	}
	// Repeated start and stop are idempotent; the session stays active.
	if err := c.StartRecording(ctx, session.ID); err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	if err := c.StopRecording(ctx, session.ID); err != nil {
		t.Fatalf("stop: %v", err)
	}
	got, _ = c.GetSession(ctx, session.ID)
	if got.Status != domain.SessionActive {
		t.Fatalf("stop recording must not end the session, got %s", got.Status)
	}

	if _, err := c.EndSession(ctx, session.ID); err != nil {
		t.Fatalf("end: %v", err)
	}
	if err := c.StartRecording(ctx, session.ID); !errors.Is(err, domain.ErrSessionEnded) {
		t.Fatalf("start after end must fail, got %v", err)
	}
}

// The full classroom scenario: create, two joins, one fragment, one answer,
// timeout reveal, end with report.
func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	c, clock, sched := newTestCoordinator(t, quizEnricher("B"))

	session, err := c.CreateSession(ctx, "Alice", "Physics", 10)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	p1, err := c.JoinSession(ctx, session.JoinCode, "Student One")
	if err != nil {
		t.Fatalf("join 1: %v", err)
	}
	p2, err := c.JoinSession(ctx, session.JoinCode, "Student Two")
	if err != nil {
		t.Fatalf("join 2: %v", err)
	}

	p1Events, cancel1 := c.broker.Subscribe(session.ID, RoleParticipant, p1.ParticipantID)
	defer cancel1()
	p2Events, cancel2 := c.broker.Subscribe(session.ID, RoleParticipant, p2.ParticipantID)
	defer cancel2()

	if err := c.StartRecording(ctx, session.ID); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	c.processFragment(ctx, session.ID, "What is the speed of light?")

	for _, events := range []<-chan Event{p1Events, p2Events} {
		ev, ok := findEvent(drainEvents(events), EventNewQuiz)
		if !ok {
			t.Fatalf("both participants must receive the quiz")
		}
		quiz := ev.Payload.(newQuizPayload).Quiz
		if quiz.TimeLimit != 10 {
			t.Fatalf("expected frozen 10s limit, got %d", quiz.TimeLimit)
		}
	}

	quizzes, _ := c.store.ListQuizzes(ctx, session.ID)
	clock.Advance(3 * time.Second)
	if _, err := c.SubmitAnswer(ctx, quizzes[0].ID, p1.ParticipantID, "B"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	clock.Advance(7 * time.Second)
	sched.fire(0)

	for _, events := range []<-chan Event{p1Events, p2Events} {
		ev, ok := findEvent(drainEvents(events), EventQuizResults)
		if !ok {
			t.Fatalf("both participants must receive the reveal")
		}
		if ev.Payload.(quizResultsPayload).CorrectAnswer != "B" {
			t.Fatalf("reveal must carry the correct answer")
		}
	}

	report, err := c.EndSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if report.TotalQuizzes != 1 || report.TotalParticipants != 2 || report.TotalAnswers != 1 {
		t.Fatalf("unexpected totals: %+v", report)
	}
	if report.ParticipationRate != 0.5 {
		t.Fatalf("expected 50%% participation, got %f", report.ParticipationRate)
	}
	if report.Quizzes[0].Accuracy != 1 {
		t.Fatalf("expected 100%% accuracy on the answered quiz, got %f", report.Quizzes[0].Accuracy)
	}
	// 100% accuracy excludes the quiz from "most problematic"; low
	// participation is reported separately and does not conflict.
	if report.Signal != domain.SignalPerfect || report.MostProblematic != nil {
		t.Fatalf("expected perfect signal, got %s %+v", report.Signal, report.MostProblematic)
	}

	personal, err := c.ParticipantReport(ctx, session.ID, p2.ParticipantID)
	if err != nil {
		t.Fatalf("participant report: %v", err)
	}
	if personal.Answered != 0 || personal.Results[0].Result != domain.ResultUnanswered {
		t.Fatalf("silent participant must show unanswered: %+v", personal)
	}
}

// --- helpers ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// manualScheduler records deferred callbacks so tests control virtual time.
type manualScheduler struct {
	mu   sync.Mutex
	jobs []func()
}

func (s *manualScheduler) schedule(_ time.Duration, f func()) {
	s.mu.Lock()
	s.jobs = append(s.jobs, f)
	s.mu.Unlock()
}

func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	f := s.jobs[i]
	s.mu.Unlock()
	f()
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

type stubEnricher struct {
	detect    func(string) (enrich.Detection, error)
	generate  func(string) (*enrich.GeneratedQuiz, error)
	summarize func(string) (string, error)
}

func (s *stubEnricher) Detect(_ context.Context, text string) (enrich.Detection, error) {
	if s.detect == nil {
		return enrich.Detection{}, nil
	}
	return s.detect(text)
}

func (s *stubEnricher) GenerateQuiz(_ context.Context, question string) (*enrich.GeneratedQuiz, error) {
	if s.generate == nil {
		return nil, nil
	}
	return s.generate(question)
}

func (s *stubEnricher) Summarize(_ context.Context, text string) (string, error) {
	if s.summarize == nil {
		return "", nil
	}
	return s.summarize(text)
}

// quizEnricher detects any text ending in "?" and always generates the same
// four options with the given correct label.
func quizEnricher(correct string) *stubEnricher {
	return &stubEnricher{
		detect: func(text string) (enrich.Detection, error) {
			if strings.Contains(text, "?") {
				return enrich.Detection{HasQuestion: true, Question: text}, nil
			}
			return enrich.Detection{}, nil
		},
		generate: func(string) (*enrich.GeneratedQuiz, error) {
			return &enrich.GeneratedQuiz{
				OptionA:       "first",
				OptionB:       "second",
				OptionC:       "third",
				OptionD:       "fourth",
				CorrectAnswer: correct,
			}, nil
		},
	}
}

func newTestCoordinator(t *testing.T, enricher enrich.Enricher) (*Coordinator, *fakeClock, *manualScheduler) {
	t.Helper()
	if enricher == nil {
		enricher = &stubEnricher{}
	}
	clock := newFakeClock()
	sched := &manualScheduler{}
	c := NewCoordinator(memory.NewStore(), memory.NewJoinCodeIndex(), enricher, NewBroker(), NewTimerRegistry()).
		WithClock(clock.Now, sched.schedule)
	return c, clock, sched
}

func drainEvents(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func findEvent(events []Event, eventType string) (Event, bool) {
	for _, ev := range events {
		if ev.Type == eventType {
			return ev, true
		}
	}
	return Event{}, false
}
