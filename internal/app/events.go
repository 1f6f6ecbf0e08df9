package app

import (
	"time"

	"lecture-quiz-service/internal/domain"
)

// Event types delivered over the session broadcast channel.
const (
	EventSessionCreated    = "sessionCreated"
	EventSessionJoined     = "sessionJoined"
	EventParticipantJoined = "participantJoined"
	EventRecordingStarted  = "recordingStarted"
	EventRecordingStopped  = "recordingStopped"
	EventQuestionDetected  = "questionDetected"
	EventQuizCreated       = "quizCreated"
	EventNewQuiz           = "newQuiz"
	EventQuizResults       = "quizResults"
	EventSessionEnded      = "sessionEnded"
)

// Reveal reasons carried on quizResults events.
const (
	RevealTimeout = "timeout"
	RevealManual  = "manual"
)

// Event is one message on a session channel. Payload is a JSON-serializable
// struct from this file.
type Event struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// QuizView is a quiz formatted for participants: no correct answer.
type QuizView struct {
	ID        string    `json:"id"`
	Question  string    `json:"question"`
	OptionA   string    `json:"optionA"`
	OptionB   string    `json:"optionB"`
	OptionC   string    `json:"optionC"`
	OptionD   string    `json:"optionD"`
	TimeLimit int       `json:"timeLimit"`
	CreatedAt time.Time `json:"createdAt"`
}

func viewOf(q domain.Quiz) QuizView {
	return QuizView{
		ID:        q.ID,
		Question:  q.Question,
		OptionA:   q.OptionA,
		OptionB:   q.OptionB,
		OptionC:   q.OptionC,
		OptionD:   q.OptionD,
		TimeLimit: q.TimeLimit,
		CreatedAt: q.CreatedAt,
	}
}

// TimerSnapshot is the late-join countdown state: the remaining time is the
// server's, never a restarted client-side countdown.
type TimerSnapshot struct {
	QuizID           string  `json:"quizId"`
	TimeLimit        int     `json:"timeLimit"`
	TimeRemainingSec float64 `json:"timeRemaining"`
}

// JoinResult is the payload a participant receives on sessionJoined.
type JoinResult struct {
	ParticipantID string         `json:"participantId"`
	SessionID     string         `json:"sessionId"`
	Title         string         `json:"title"`
	Quizzes       []QuizView     `json:"quizzes"`
	CurrentTimer  *TimerSnapshot `json:"currentTimer,omitempty"`
}

type participantJoinedPayload struct {
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"displayName"`
	Count         int    `json:"count"`
}

type recordingPayload struct {
	SessionID string `json:"sessionId"`
}

type questionDetectedPayload struct {
	SessionID string `json:"sessionId"`
	Question  string `json:"question"`
}

// newQuizPayload goes to participants; startedAt lets clients render the
// countdown relative to server time.
type newQuizPayload struct {
	Quiz      QuizView  `json:"quiz"`
	StartedAt time.Time `json:"startedAt"`
}

// quizCreatedPayload goes to the presenter only and includes the answer key.
type quizCreatedPayload struct {
	Quiz      domain.Quiz `json:"quiz"`
	StartedAt time.Time   `json:"startedAt"`
}

type quizResultsPayload struct {
	QuizID        string `json:"quizId"`
	Question      string `json:"question"`
	CorrectAnswer string `json:"correctAnswer"`
	CorrectText   string `json:"correctText"`
	Reason        string `json:"reason"`
}

type sessionEndedPayload struct {
	SessionID string                    `json:"sessionId"`
	Report    *domain.SessionReport     `json:"report,omitempty"`
	Personal  *domain.ParticipantReport `json:"personalReport,omitempty"`
}
