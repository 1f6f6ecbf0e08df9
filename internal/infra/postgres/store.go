package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"lecture-quiz-service/internal/domain"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Store is the Postgres implementation of app.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, presenter_name, title, join_code, status, time_limit, created_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		session.ID, session.PresenterName, session.Title, session.JoinCode,
		string(session.Status), session.TimeLimit, session.CreatedAt, session.EndedAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id string) (domain.Session, error) {
	var session domain.Session
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, presenter_name, title, join_code, status, time_limit, created_at, ended_at
		FROM sessions WHERE id=$1`, id).
		Scan(&session.ID, &session.PresenterName, &session.Title, &session.JoinCode,
			&status, &session.TimeLimit, &session.CreatedAt, &session.EndedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	return session, nil
}

func (s *Store) SetSessionStatus(ctx context.Context, id string, status domain.SessionStatus, endedAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status=$2, ended_at=COALESCE($3, ended_at) WHERE id=$1`,
		id, string(status), endedAt)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO participants (id, session_id, display_name, joined_at)
		VALUES ($1, $2, $3, $4)`,
		p.ID, p.SessionID, p.DisplayName, p.JoinedAt)
	if isFKViolation(err) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("insert participant: %w", err)
	}
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, id string) (domain.Participant, error) {
	var p domain.Participant
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, display_name, joined_at FROM participants WHERE id=$1`, id).
		Scan(&p.ID, &p.SessionID, &p.DisplayName, &p.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return p, nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, display_name, joined_at
		FROM participants WHERE session_id=$1 ORDER BY joined_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select participants: %w", err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		var p domain.Participant
		if err := rows.Scan(&p.ID, &p.SessionID, &p.DisplayName, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) AddFragment(ctx context.Context, f domain.TranscriptFragment) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transcript_fragments (id, session_id, text, created_at)
		VALUES ($1, $2, $3, $4)`,
		f.ID, f.SessionID, f.Text, f.CreatedAt)
	if isFKViolation(err) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("insert fragment: %w", err)
	}
	return nil
}

func (s *Store) ListFragments(ctx context.Context, sessionID string) ([]domain.TranscriptFragment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, text, created_at
		FROM transcript_fragments WHERE session_id=$1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select fragments: %w", err)
	}
	defer rows.Close()

	var out []domain.TranscriptFragment
	for rows.Next() {
		var f domain.TranscriptFragment
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Text, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fragment: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *Store) AddQuiz(ctx context.Context, q domain.Quiz) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO quizzes (id, session_id, source_text, question, option_a, option_b, option_c, option_d, correct_answer, time_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.SessionID, q.SourceText, q.Question,
		q.OptionA, q.OptionB, q.OptionC, q.OptionD,
		q.CorrectAnswer, q.TimeLimit, q.CreatedAt)
	if isFKViolation(err) {
		return domain.ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("insert quiz: %w", err)
	}
	return nil
}

func (s *Store) GetQuiz(ctx context.Context, id string) (domain.Quiz, error) {
	var q domain.Quiz
	err := s.pool.QueryRow(ctx, `
		SELECT id, session_id, source_text, question, option_a, option_b, option_c, option_d, correct_answer, time_limit, created_at
		FROM quizzes WHERE id=$1`, id).
		Scan(&q.ID, &q.SessionID, &q.SourceText, &q.Question,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectAnswer, &q.TimeLimit, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("select quiz: %w", err)
	}
	return q, nil
}

func (s *Store) ListQuizzes(ctx context.Context, sessionID string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, source_text, question, option_a, option_b, option_c, option_d, correct_answer, time_limit, created_at
		FROM quizzes WHERE session_id=$1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select quizzes: %w", err)
	}
	defer rows.Close()

	var out []domain.Quiz
	for rows.Next() {
		var q domain.Quiz
		if err := rows.Scan(&q.ID, &q.SessionID, &q.SourceText, &q.Question,
			&q.OptionA, &q.OptionB, &q.OptionC, &q.OptionD,
			&q.CorrectAnswer, &q.TimeLimit, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *Store) AddAnswer(ctx context.Context, a domain.Answer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO answers (id, quiz_id, participant_id, selected, late, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.QuizID, a.ParticipantID, a.Selected, a.Late, a.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return domain.ErrAlreadyAnswered
		case pgForeignKeyViolation:
			if strings.Contains(pgErr.ConstraintName, "participant") {
				return domain.ErrParticipantNotFound
			}
			return domain.ErrQuizNotFound
		}
	}
	if err != nil {
		return fmt.Errorf("insert answer: %w", err)
	}
	return nil
}

func (s *Store) ListAnswersBySession(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.quiz_id, a.participant_id, a.selected, a.late, a.created_at
		FROM answers a JOIN quizzes q ON q.id = a.quiz_id
		WHERE q.session_id=$1 ORDER BY a.created_at, a.id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	defer rows.Close()

	var out []domain.Answer
	for rows.Next() {
		var a domain.Answer
		if err := rows.Scan(&a.ID, &a.QuizID, &a.ParticipantID, &a.Selected, &a.Late, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func isFKViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation
}
