package app

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"lecture-quiz-service/internal/domain"
	"lecture-quiz-service/internal/enrich"
)

// Join codes avoid 0/O/1/I lookalikes so they survive being read off a slide.
const (
	joinCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	joinCodeLength   = 6
	joinCodeAttempts = 10
)

// Coordinator owns session lifecycle, the single-active-quiz countdown per
// session, answer collection, and end-of-session reporting. It is the only
// component that touches the TimerRegistry.
type Coordinator struct {
	store    Store
	codes    JoinCodeIndex
	enricher enrich.Enricher
	broker   *Broker
	registry *TimerRegistry

	now      func() time.Time
	schedule func(time.Duration, func())

	rndMu sync.Mutex
	rnd   *rand.Rand

	reportMu sync.Mutex
	reports  map[string]domain.SessionReport
	sf       singleflight.Group
}

func NewCoordinator(store Store, codes JoinCodeIndex, enricher enrich.Enricher, broker *Broker, registry *TimerRegistry) *Coordinator {
	return &Coordinator{
		store:    store,
		codes:    codes,
		enricher: enricher,
		broker:   broker,
		registry: registry,
		now:      time.Now,
		schedule: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		rnd:      rand.New(rand.NewSource(time.Now().UnixNano())),
		reports:  make(map[string]domain.SessionReport),
	}
}

// WithClock overrides the time source and the one-shot scheduler for
// deterministic tests.
func (c *Coordinator) WithClock(now func() time.Time, schedule func(time.Duration, func())) *Coordinator {
	c.now = now
	c.schedule = schedule
	return c
}

// Broker exposes the session channel for transports to subscribe on.
func (c *Coordinator) Broker() *Broker {
	return c.broker
}

// CreateSession registers a new session in waiting status and reserves a join
// code unique among live sessions.
func (c *Coordinator) CreateSession(ctx context.Context, presenterName, title string, timeLimit int) (domain.Session, error) {
	presenterName = strings.TrimSpace(presenterName)
	title = strings.TrimSpace(title)
	if presenterName == "" || title == "" {
		return domain.Session{}, domain.ErrMissingField
	}
	if timeLimit < domain.MinTimeLimit || timeLimit > domain.MaxTimeLimit {
		return domain.Session{}, domain.ErrInvalidTimeLimit
	}

	session := domain.Session{
		ID:            uuid.NewString(),
		PresenterName: presenterName,
		Title:         title,
		Status:        domain.SessionWaiting,
		TimeLimit:     timeLimit,
		CreatedAt:     c.now(),
	}

	code, err := c.reserveJoinCode(ctx, session.ID)
	if err != nil {
		return domain.Session{}, err
	}
	session.JoinCode = code

	if err := c.store.CreateSession(ctx, session); err != nil {
		_ = c.codes.Release(ctx, code)
		return domain.Session{}, err
	}
	return session, nil
}

func (c *Coordinator) reserveJoinCode(ctx context.Context, sessionID string) (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code := c.randomJoinCode()
		ok, err := c.codes.Reserve(ctx, code, sessionID)
		if err != nil {
			return "", err
		}
		if ok {
			return code, nil
		}
	}
	return "", domain.ErrJoinCodeTaken
}

func (c *Coordinator) randomJoinCode() string {
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	b := make([]byte, joinCodeLength)
	for i := range b {
		b[i] = joinCodeAlphabet[c.rnd.Intn(len(joinCodeAlphabet))]
	}
	return string(b)
}

// JoinSession registers a participant against a live session and builds the
// late-join snapshot: every prior quiz without its answer key, plus the true
// remaining countdown when a quiz is mid-flight.
func (c *Coordinator) JoinSession(ctx context.Context, joinCode, displayName string) (JoinResult, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return JoinResult{}, domain.ErrMissingField
	}

	code := NormalizeJoinCode(joinCode)
	sessionID, ok, err := c.codes.Resolve(ctx, code)
	if err != nil {
		return JoinResult{}, err
	}
	if !ok {
		return JoinResult{}, domain.ErrSessionNotFound
	}
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return JoinResult{}, err
	}
	if session.Status == domain.SessionEnded {
		return JoinResult{}, domain.ErrSessionNotFound
	}

	participant := domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   session.ID,
		DisplayName: displayName,
		JoinedAt:    c.now(),
	}
	if err := c.store.AddParticipant(ctx, participant); err != nil {
		return JoinResult{}, err
	}

	quizzes, err := c.store.ListQuizzes(ctx, session.ID)
	if err != nil {
		return JoinResult{}, err
	}
	views := make([]QuizView, 0, len(quizzes))
	for _, q := range quizzes {
		views = append(views, viewOf(q))
	}

	result := JoinResult{
		ParticipantID: participant.ID,
		SessionID:     session.ID,
		Title:         session.Title,
		Quizzes:       views,
	}
	if entry, ok := c.registry.Current(session.ID); ok {
		remaining, _ := c.registry.Remaining(session.ID, c.now())
		result.CurrentTimer = &TimerSnapshot{
			QuizID:           entry.QuizID,
			TimeLimit:        int(entry.Duration / time.Second),
			TimeRemainingSec: remaining.Seconds(),
		}
	}

	// Count 0 when the roster can't be loaded; better than a made-up number.
	count := 0
	if participants, err := c.store.ListParticipants(ctx, session.ID); err == nil {
		count = len(participants)
	}
	c.broker.PublishRole(session.ID, RolePresenter, c.event(EventParticipantJoined, participantJoinedPayload{
		ParticipantID: participant.ID,
		DisplayName:   participant.DisplayName,
		Count:         count,
	}))
	return result, nil
}

// NormalizeJoinCode uppercases and trims a user-typed join code.
func NormalizeJoinCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// StartRecording moves the session to active and tells participants the
// stream is live. Repeated starts are idempotent.
func (c *Coordinator) StartRecording(ctx context.Context, sessionID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.SessionEnded {
		return domain.ErrSessionEnded
	}
	if session.Status == domain.SessionWaiting {
		if err := c.store.SetSessionStatus(ctx, sessionID, domain.SessionActive, nil); err != nil {
			return err
		}
	}
	c.broker.Publish(sessionID, c.event(EventRecordingStarted, recordingPayload{SessionID: sessionID}))
	return nil
}

// StopRecording pauses the transcript substream. The session itself stays
// active: quizzes remain queryable and answerable until EndSession.
func (c *Coordinator) StopRecording(ctx context.Context, sessionID string) error {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status == domain.SessionEnded {
		return domain.ErrSessionEnded
	}
	c.broker.Publish(sessionID, c.event(EventRecordingStopped, recordingPayload{SessionID: sessionID}))
	return nil
}

// IngestFragment persists a transcript fragment and kicks off enrichment in
// the background. The returned fragment acknowledges only the persist; quiz
// creation, if any, arrives later as a broadcast.
func (c *Coordinator) IngestFragment(ctx context.Context, sessionID, text string) (domain.TranscriptFragment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.TranscriptFragment{}, domain.ErrMissingField
	}
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.TranscriptFragment{}, err
	}
	if session.Status == domain.SessionEnded {
		return domain.TranscriptFragment{}, domain.ErrSessionEnded
	}

	fragment := domain.TranscriptFragment{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Text:      text,
		CreatedAt: c.now(),
	}
	if err := c.store.AddFragment(ctx, fragment); err != nil {
		return domain.TranscriptFragment{}, err
	}

	// Detached context: enrichment outlives the ingest request.
	go c.processFragment(context.Background(), sessionID, text)
	return fragment, nil
}

// processFragment is the fire-and-forget enrichment pipeline. Every failure
// here is swallowed: the presenter only ever observes the absence of a quiz.
func (c *Coordinator) processFragment(ctx context.Context, sessionID, text string) {
	detection, err := c.enricher.Detect(ctx, text)
	if err != nil {
		log.Printf("enrich detect failed for session %s: %v", sessionID, err)
		return
	}
	if !detection.HasQuestion {
		return
	}

	// Early progress signal, before generation finishes.
	c.broker.PublishRole(sessionID, RolePresenter, c.event(EventQuestionDetected, questionDetectedPayload{
		SessionID: sessionID,
		Question:  detection.Question,
	}))

	generated, err := c.enricher.GenerateQuiz(ctx, detection.Question)
	if err != nil {
		log.Printf("enrich generate failed for session %s: %v", sessionID, err)
		return
	}
	if generated == nil {
		return
	}

	// The session may have ended while the enricher was out. Discard rather
	// than write into an ended session.
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil || session.Status == domain.SessionEnded {
		return
	}
	c.emitQuiz(ctx, session, text, detection.Question, *generated)
}

// emitQuiz persists the quiz, arms the countdown (superseding any active
// quiz), broadcasts it, and schedules the timeout reveal. The registry entry
// exists before the deferred callback is scheduled, so the callback's
// re-check always observes either this entry or a newer one.
func (c *Coordinator) emitQuiz(ctx context.Context, session domain.Session, sourceText, question string, generated enrich.GeneratedQuiz) {
	quiz := domain.Quiz{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		SourceText:    sourceText,
		Question:      question,
		OptionA:       generated.OptionA,
		OptionB:       generated.OptionB,
		OptionC:       generated.OptionC,
		OptionD:       generated.OptionD,
		CorrectAnswer: generated.CorrectAnswer,
		TimeLimit:     session.TimeLimit,
		CreatedAt:     c.now(),
	}
	if err := c.store.AddQuiz(ctx, quiz); err != nil {
		log.Printf("persist quiz failed for session %s: %v", session.ID, err)
		return
	}

	startedAt := c.now()
	duration := time.Duration(quiz.TimeLimit) * time.Second
	c.registry.Arm(session.ID, quiz.ID, startedAt, duration)

	c.broker.PublishRole(session.ID, RolePresenter, c.event(EventQuizCreated, quizCreatedPayload{Quiz: quiz, StartedAt: startedAt}))
	c.broker.PublishRole(session.ID, RoleParticipant, c.event(EventNewQuiz, newQuizPayload{Quiz: viewOf(quiz), StartedAt: startedAt}))

	c.schedule(duration, func() {
		c.reveal(quiz, RevealTimeout)
	})
}

// reveal discloses the correct answer, shared by the timeout callback and
// EndQuiz. The ClearIf guard makes superseded or already-revealed quizzes a
// silent no-op.
func (c *Coordinator) reveal(quiz domain.Quiz, reason string) {
	if !c.registry.ClearIf(quiz.SessionID, quiz.ID) {
		return
	}
	c.broker.Publish(quiz.SessionID, c.event(EventQuizResults, quizResultsPayload{
		QuizID:        quiz.ID,
		Question:      quiz.Question,
		CorrectAnswer: quiz.CorrectAnswer,
		CorrectText:   quiz.Option(quiz.CorrectAnswer),
		Reason:        reason,
	}))
}

// EndQuiz is the presenter-triggered early reveal.
func (c *Coordinator) EndQuiz(ctx context.Context, sessionID, quizID string) error {
	quiz, err := c.store.GetQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if quiz.SessionID != sessionID {
		return domain.ErrQuizNotFound
	}
	c.reveal(quiz, RevealManual)
	return nil
}

// SubmitAnswer records a participant's selection. Correctness is not
// returned; it reaches clients only through the reveal broadcast. Answers
// arriving after the reveal are kept but marked late.
func (c *Coordinator) SubmitAnswer(ctx context.Context, quizID, participantID, selected string) (domain.Answer, error) {
	selected = strings.ToUpper(strings.TrimSpace(selected))
	if !domain.ValidOption(selected) {
		return domain.Answer{}, domain.ErrInvalidOption
	}
	quiz, err := c.store.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Answer{}, err
	}
	participant, err := c.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.Answer{}, err
	}
	if participant.SessionID != quiz.SessionID {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}

	late := true
	if entry, ok := c.registry.Current(quiz.SessionID); ok && entry.QuizID == quizID {
		late = false
	}

	answer := domain.Answer{
		ID:            uuid.NewString(),
		QuizID:        quizID,
		ParticipantID: participantID,
		Selected:      selected,
		Late:          late,
		CreatedAt:     c.now(),
	}
	if err := c.store.AddAnswer(ctx, answer); err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// EndSession closes the session, abandons any in-flight quiz, computes the
// session report, and pushes it (personalized per participant). Repeated
// calls return the cached report without re-pushing.
func (c *Coordinator) EndSession(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	v, err, _ := c.sf.Do("end:"+sessionID, func() (any, error) {
		if report, ok := c.cachedReport(sessionID); ok {
			return report, nil
		}

		session, err := c.store.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.Status == domain.SessionEnded {
			// Ended before this process saw it (restart): recompute, cache,
			// but push nothing a second time.
			report, err := c.buildSessionReport(ctx, session)
			if err != nil {
				return nil, err
			}
			c.cacheReport(sessionID, report)
			return report, nil
		}

		endedAt := c.now()
		if err := c.store.SetSessionStatus(ctx, sessionID, domain.SessionEnded, &endedAt); err != nil {
			return nil, err
		}
		session.Status = domain.SessionEnded
		session.EndedAt = &endedAt

		// In-flight quiz is abandoned, not force-revealed; its collected
		// answers stay valid data.
		c.registry.Clear(sessionID)
		if err := c.codes.Release(ctx, session.JoinCode); err != nil {
			log.Printf("release join code %s: %v", session.JoinCode, err)
		}

		report, err := c.buildSessionReport(ctx, session)
		if err != nil {
			return nil, err
		}
		c.cacheReport(sessionID, report)

		c.broker.PublishRole(sessionID, RolePresenter, c.event(EventSessionEnded, sessionEndedPayload{
			SessionID: sessionID,
			Report:    &report,
		}))
		c.pushPersonalReports(ctx, session)
		return report, nil
	})
	if err != nil {
		return domain.SessionReport{}, err
	}
	return v.(domain.SessionReport), nil
}

func (c *Coordinator) pushPersonalReports(ctx context.Context, session domain.Session) {
	participants, err := c.store.ListParticipants(ctx, session.ID)
	if err != nil {
		log.Printf("list participants for session %s: %v", session.ID, err)
		return
	}
	for _, p := range participants {
		report, err := c.ParticipantReport(ctx, session.ID, p.ID)
		if err != nil {
			log.Printf("participant report %s: %v", p.ID, err)
			continue
		}
		c.broker.PublishTo(session.ID, p.ID, c.event(EventSessionEnded, sessionEndedPayload{
			SessionID: session.ID,
			Personal:  &report,
		}))
	}
}

// GetSession fetches session metadata by id.
func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return c.store.GetSession(ctx, sessionID)
}

// ListQuizzes returns all quizzes of a session in creation order, formatted
// without answer keys (late-join fallback for non-realtime clients).
func (c *Coordinator) ListQuizzes(ctx context.Context, sessionID string) ([]QuizView, error) {
	if _, err := c.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	quizzes, err := c.store.ListQuizzes(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	views := make([]QuizView, 0, len(quizzes))
	for _, q := range quizzes {
		views = append(views, viewOf(q))
	}
	return views, nil
}

// SessionReport computes the session-wide aggregate on demand. For ended
// sessions the end-of-session result is served from cache; otherwise the
// report reflects data so far.
func (c *Coordinator) SessionReport(ctx context.Context, sessionID string) (domain.SessionReport, error) {
	if report, ok := c.cachedReport(sessionID); ok {
		return report, nil
	}
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	return c.buildSessionReport(ctx, session)
}

func (c *Coordinator) buildSessionReport(ctx context.Context, session domain.Session) (domain.SessionReport, error) {
	quizzes, err := c.store.ListQuizzes(ctx, session.ID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	participants, err := c.store.ListParticipants(ctx, session.ID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	answers, err := c.store.ListAnswersBySession(ctx, session.ID)
	if err != nil {
		return domain.SessionReport{}, err
	}
	report := ComputeSessionReport(session, quizzes, participants, answers)
	if summary := c.summarizeLecture(ctx, session.ID); summary != "" {
		report.Summary = summary
	}
	return report, nil
}

// summarizeLecture condenses the stored transcript into a short recap for the
// session report. Best-effort like the participant review: failures are logged
// and the report ships without a summary.
func (c *Coordinator) summarizeLecture(ctx context.Context, sessionID string) string {
	fragments, err := c.store.ListFragments(ctx, sessionID)
	if err != nil {
		log.Printf("list fragments for session %s: %v", sessionID, err)
		return ""
	}
	if len(fragments) == 0 {
		return ""
	}
	texts := make([]string, 0, len(fragments))
	for _, f := range fragments {
		texts = append(texts, f.Text)
	}
	summary, err := c.enricher.Summarize(ctx, strings.Join(texts, "\n"))
	if err != nil {
		log.Printf("lecture summarize failed for session %s: %v", sessionID, err)
		return ""
	}
	return summary
}

// ParticipantReport computes one participant's personalized aggregate,
// attaching a best-effort natural-language review of the missed questions.
func (c *Coordinator) ParticipantReport(ctx context.Context, sessionID, participantID string) (domain.ParticipantReport, error) {
	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.ParticipantReport{}, err
	}
	participant, err := c.store.GetParticipant(ctx, participantID)
	if err != nil {
		return domain.ParticipantReport{}, err
	}
	if participant.SessionID != sessionID {
		return domain.ParticipantReport{}, domain.ErrParticipantNotFound
	}
	quizzes, err := c.store.ListQuizzes(ctx, sessionID)
	if err != nil {
		return domain.ParticipantReport{}, err
	}
	answers, err := c.store.ListAnswersBySession(ctx, sessionID)
	if err != nil {
		return domain.ParticipantReport{}, err
	}

	report := ComputeParticipantReport(session, participant, quizzes, answers)
	if review := c.reviewForMissed(ctx, report); review != "" {
		report.Review = review
	}
	return report, nil
}

func (c *Coordinator) reviewForMissed(ctx context.Context, report domain.ParticipantReport) string {
	var missed []string
	for _, r := range report.Results {
		if r.Result != domain.ResultCorrect {
			missed = append(missed, r.Question)
		}
	}
	if len(missed) == 0 {
		return ""
	}
	review, err := c.enricher.Summarize(ctx,
		"Write a short study review for a student who missed these questions:\n"+strings.Join(missed, "\n"))
	if err != nil {
		log.Printf("review summarize failed: %v", err)
		return ""
	}
	return review
}

func (c *Coordinator) cachedReport(sessionID string) (domain.SessionReport, bool) {
	c.reportMu.Lock()
	defer c.reportMu.Unlock()
	report, ok := c.reports[sessionID]
	return report, ok
}

func (c *Coordinator) cacheReport(sessionID string, report domain.SessionReport) {
	c.reportMu.Lock()
	c.reports[sessionID] = report
	c.reportMu.Unlock()
}

func (c *Coordinator) event(eventType string, payload any) Event {
	return Event{Type: eventType, Timestamp: c.now(), Payload: payload}
}
