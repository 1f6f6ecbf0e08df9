package domain

import "time"

// SessionStatus tracks where a session is in its lifecycle.
// Transitions: waiting -> active -> ended; ended is terminal.
type SessionStatus string

const (
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionEnded   SessionStatus = "ended"
)

// Bounds for the per-question time limit, in seconds.
const (
	MinTimeLimit = 5
	MaxTimeLimit = 300
)

// Session is one lecture instance with its own join code and quiz history.
type Session struct {
	ID            string        `json:"id"`
	PresenterName string        `json:"presenterName"`
	Title         string        `json:"title"`
	JoinCode      string        `json:"joinCode"`
	Status        SessionStatus `json:"status"`
	TimeLimit     int           `json:"timeLimit"` // seconds per quiz
	CreatedAt     time.Time     `json:"createdAt"`
	EndedAt       *time.Time    `json:"endedAt,omitempty"`
}

// Participant is an anonymous attendee, identified only by its session-scoped token.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	JoinedAt    time.Time `json:"joinedAt"`
}

// TranscriptFragment is one finalized chunk of presenter speech. Append-only.
type TranscriptFragment struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option labels for the four quiz choices.
const (
	OptionA = "A"
	OptionB = "B"
	OptionC = "C"
	OptionD = "D"
)

// OptionLabels in display order.
var OptionLabels = []string{OptionA, OptionB, OptionC, OptionD}

// Quiz is one auto-generated multiple-choice question. TimeLimit is frozen
// from the session at creation time so later session edits don't shift an
// already-running countdown.
type Quiz struct {
	ID            string    `json:"id"`
	SessionID     string    `json:"sessionId"`
	SourceText    string    `json:"sourceText"`
	Question      string    `json:"question"`
	OptionA       string    `json:"optionA"`
	OptionB       string    `json:"optionB"`
	OptionC       string    `json:"optionC"`
	OptionD       string    `json:"optionD"`
	CorrectAnswer string    `json:"correctAnswer"` // one of A/B/C/D
	TimeLimit     int       `json:"timeLimit"`     // seconds
	CreatedAt     time.Time `json:"createdAt"`
}

// Option returns the text for a label, or "" for an unknown label.
func (q Quiz) Option(label string) string {
	switch label {
	case OptionA:
		return q.OptionA
	case OptionB:
		return q.OptionB
	case OptionC:
		return q.OptionC
	case OptionD:
		return q.OptionD
	}
	return ""
}

// ValidOption reports whether label is one of A/B/C/D.
func ValidOption(label string) bool {
	switch label {
	case OptionA, OptionB, OptionC, OptionD:
		return true
	}
	return false
}

// Answer records a participant's selection for one quiz. At most one answer
// per (quiz, participant) is stored; duplicates are rejected at write time.
// Late marks answers that arrived after the reveal; they are kept as data but
// excluded from accuracy and participation figures.
type Answer struct {
	ID            string    `json:"id"`
	QuizID        string    `json:"quizId"`
	ParticipantID string    `json:"participantId"`
	Selected      string    `json:"selected"` // one of A/B/C/D
	Late          bool      `json:"late"`
	CreatedAt     time.Time `json:"createdAt"`
}

// QuizStats is the per-quiz slice of a session report. Distribution counts
// on-time answers per option label; Accuracy is Correct/Total and is 0 when
// Total is 0.
type QuizStats struct {
	QuizID       string         `json:"quizId"`
	Question     string         `json:"question"`
	Total        int            `json:"total"`
	Correct      int            `json:"correct"`
	LateAnswers  int            `json:"lateAnswers"`
	Distribution map[string]int `json:"distribution"`
	Accuracy     float64        `json:"accuracy"`
	CreatedAt    time.Time      `json:"createdAt"`
}

// Signals for the most-problematic-question field of a session report.
// Exactly one of the three outcomes holds: no answered quizzes at all,
// every answered quiz at 100%, or a lowest-accuracy quiz identified.
const (
	SignalNoData  = "no_data"
	SignalPerfect = "perfect_performance"
	SignalProblem = "problem_found"
)

// SessionReport is the session-wide aggregate computed at session end (and on
// demand). MostProblematic is nil unless Signal is SignalProblem. Summary is a
// best-effort recap of the lecture transcript, empty when no fragments exist
// or the enricher fails.
type SessionReport struct {
	SessionID         string      `json:"sessionId"`
	Title             string      `json:"title"`
	Summary           string      `json:"summary,omitempty"`
	TotalQuizzes      int         `json:"totalQuizzes"`
	TotalParticipants int         `json:"totalParticipants"`
	TotalAnswers      int         `json:"totalAnswers"`
	ParticipationRate float64     `json:"participationRate"`
	DurationMinutes   *int        `json:"durationMinutes,omitempty"`
	Quizzes           []QuizStats `json:"quizzes"`
	Signal            string      `json:"signal"`
	MostProblematic   *QuizStats  `json:"mostProblematic,omitempty"`
}

// Per-quiz outcomes in a participant report.
const (
	ResultCorrect    = "correct"
	ResultIncorrect  = "incorrect"
	ResultUnanswered = "unanswered"
)

// ParticipantResult classifies one participant's outcome on one quiz.
type ParticipantResult struct {
	QuizID        string `json:"quizId"`
	Question      string `json:"question"`
	Result        string `json:"result"`
	Selected      string `json:"selected,omitempty"`
	CorrectAnswer string `json:"correctAnswer"`
}

// ParticipantReport is the personalized aggregate pushed to each participant
// at session end. Accuracy is computed over answered quizzes only, which is
// deliberately different from the session-wide rate.
type ParticipantReport struct {
	SessionID     string              `json:"sessionId"`
	ParticipantID string              `json:"participantId"`
	DisplayName   string              `json:"displayName"`
	Answered      int                 `json:"answered"`
	Correct       int                 `json:"correct"`
	Accuracy      float64             `json:"accuracy"`
	Results       []ParticipantResult `json:"results"`
	Review        string              `json:"review,omitempty"` // best-effort, absent on enricher failure
}
