package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id or join code matches nothing live.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionEnded is returned when an operation targets a session that already ended.
	ErrSessionEnded = errors.New("session already ended")
	// ErrParticipantNotFound is returned when a participant token is unknown.
	ErrParticipantNotFound = errors.New("participant not found")
	// ErrQuizNotFound indicates the quiz record could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAlreadyAnswered rejects a second submission for the same (quiz, participant).
	ErrAlreadyAnswered = errors.New("participant already answered this quiz")
	// ErrInvalidOption rejects a selected option outside A-D.
	ErrInvalidOption = errors.New("selected option must be one of A, B, C, D")
	// ErrInvalidTimeLimit rejects a per-question time limit outside the configured bounds.
	ErrInvalidTimeLimit = errors.New("time limit out of range")
	// ErrMissingField rejects empty required input such as names and titles.
	ErrMissingField = errors.New("required field is empty")
	// ErrJoinCodeTaken indicates a join code collision during reservation.
	ErrJoinCodeTaken = errors.New("join code already in use")
)
