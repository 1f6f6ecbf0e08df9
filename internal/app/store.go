package app

import (
	"context"
	"time"

	"lecture-quiz-service/internal/domain"
)

// Store abstracts how session records are persisted (in-memory, Postgres).
// Writes referencing a nonexistent quiz or participant must fail with the
// matching domain sentinel; AddAnswer must reject duplicates per
// (quiz, participant) with domain.ErrAlreadyAnswered.
type Store interface {
	CreateSession(ctx context.Context, s domain.Session) error
	GetSession(ctx context.Context, id string) (domain.Session, error)
	SetSessionStatus(ctx context.Context, id string, status domain.SessionStatus, endedAt *time.Time) error

	AddParticipant(ctx context.Context, p domain.Participant) error
	GetParticipant(ctx context.Context, id string) (domain.Participant, error)
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)

	AddFragment(ctx context.Context, f domain.TranscriptFragment) error
	ListFragments(ctx context.Context, sessionID string) ([]domain.TranscriptFragment, error)

	AddQuiz(ctx context.Context, q domain.Quiz) error
	GetQuiz(ctx context.Context, id string) (domain.Quiz, error)
	ListQuizzes(ctx context.Context, sessionID string) ([]domain.Quiz, error)

	AddAnswer(ctx context.Context, a domain.Answer) error
	ListAnswersBySession(ctx context.Context, sessionID string) ([]domain.Answer, error)
}

// JoinCodeIndex reserves join codes for live sessions. Uniqueness holds only
// among non-ended sessions: Release on session end frees the code for reuse.
type JoinCodeIndex interface {
	// Reserve claims code for sessionID; false means the code is taken.
	Reserve(ctx context.Context, code, sessionID string) (bool, error)
	// Resolve returns the session holding code, if any.
	Resolve(ctx context.Context, code string) (string, bool, error)
	// Release frees the code.
	Release(ctx context.Context, code string) error
}
