package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"lecture-quiz-service/internal/domain"
)

// Store is the in-memory implementation of app.Store, used when no Postgres
// URL is configured and throughout the unit tests.
type Store struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	participants map[string]domain.Participant
	fragments    map[string][]domain.TranscriptFragment // by session, arrival order
	quizzes      map[string]domain.Quiz
	quizOrder    map[string][]string // session -> quiz ids, creation order
	answers      map[string][]domain.Answer
	answered     map[string]map[string]struct{} // quizID -> participantID set
}

func NewStore() *Store {
	return &Store{
		sessions:     make(map[string]domain.Session),
		participants: make(map[string]domain.Participant),
		fragments:    make(map[string][]domain.TranscriptFragment),
		quizzes:      make(map[string]domain.Quiz),
		quizOrder:    make(map[string][]string),
		answers:      make(map[string][]domain.Answer),
		answered:     make(map[string]map[string]struct{}),
	}
}

func (s *Store) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *Store) SetSessionStatus(_ context.Context, id string, status domain.SessionStatus, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Status = status
	if endedAt != nil {
		t := *endedAt
		session.EndedAt = &t
	}
	s.sessions[id] = session
	return nil
}

func (s *Store) AddParticipant(_ context.Context, p domain.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[p.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.participants[p.ID] = p
	return nil
}

func (s *Store) GetParticipant(_ context.Context, id string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[id]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *Store) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if p.SessionID == sessionID {
			out = append(out, p)
		}
	}
	// Stable order for deterministic reports.
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) AddFragment(_ context.Context, f domain.TranscriptFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[f.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.fragments[f.SessionID] = append(s.fragments[f.SessionID], f)
	return nil
}

func (s *Store) ListFragments(_ context.Context, sessionID string) ([]domain.TranscriptFragment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.TranscriptFragment, len(s.fragments[sessionID]))
	copy(out, s.fragments[sessionID])
	return out, nil
}

func (s *Store) AddQuiz(_ context.Context, q domain.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[q.SessionID]; !ok {
		return domain.ErrSessionNotFound
	}
	s.quizzes[q.ID] = q
	s.quizOrder[q.SessionID] = append(s.quizOrder[q.SessionID], q.ID)
	return nil
}

func (s *Store) GetQuiz(_ context.Context, id string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}

func (s *Store) ListQuizzes(_ context.Context, sessionID string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.quizOrder[sessionID]
	out := make([]domain.Quiz, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.quizzes[id])
	}
	return out, nil
}

func (s *Store) AddAnswer(_ context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[a.QuizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	if _, ok := s.participants[a.ParticipantID]; !ok {
		return domain.ErrParticipantNotFound
	}
	if s.answered[a.QuizID] == nil {
		s.answered[a.QuizID] = make(map[string]struct{})
	}
	if _, dup := s.answered[a.QuizID][a.ParticipantID]; dup {
		return domain.ErrAlreadyAnswered
	}
	s.answered[a.QuizID][a.ParticipantID] = struct{}{}
	s.answers[quiz.SessionID] = append(s.answers[quiz.SessionID], a)
	return nil
}

func (s *Store) ListAnswersBySession(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Answer, len(s.answers[sessionID]))
	copy(out, s.answers[sessionID])
	return out, nil
}
