package app

import (
	"hash/fnv"
	"sync"
	"time"
)

const timerShards = 16

// TimerEntry identifies the quiz currently counting down for a session.
// It lives only in memory; the session store remains the source of truth
// for the quiz itself.
type TimerEntry struct {
	QuizID    string
	StartedAt time.Time
	Duration  time.Duration
}

// TimerRegistry maps session id to its single active quiz countdown.
// Entries are overwritten on supersession and removed on reveal; they are
// never merged. Shards keep unrelated sessions off the same lock.
type TimerRegistry struct {
	shards [timerShards]timerShard
}

type timerShard struct {
	mu      sync.Mutex
	entries map[string]TimerEntry
}

func NewTimerRegistry() *TimerRegistry {
	r := &TimerRegistry{}
	for i := range r.shards {
		r.shards[i].entries = make(map[string]TimerEntry)
	}
	return r
}

func (r *TimerRegistry) shard(sessionID string) *timerShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &r.shards[h.Sum32()%timerShards]
}

// Arm installs the countdown for sessionID, replacing any previous entry.
// The replacement is what makes a superseded quiz's deferred callback inert:
// its later ClearIf no longer matches.
func (r *TimerRegistry) Arm(sessionID, quizID string, startedAt time.Time, duration time.Duration) {
	s := r.shard(sessionID)
	s.mu.Lock()
	s.entries[sessionID] = TimerEntry{QuizID: quizID, StartedAt: startedAt, Duration: duration}
	s.mu.Unlock()
}

// Current returns the active entry for sessionID, if any.
func (r *TimerRegistry) Current(sessionID string) (TimerEntry, bool) {
	s := r.shard(sessionID)
	s.mu.Lock()
	entry, ok := s.entries[sessionID]
	s.mu.Unlock()
	return entry, ok
}

// Remaining reports how much countdown is left for sessionID at the given
// instant, clamped at zero. The second return is false when no quiz is active.
func (r *TimerRegistry) Remaining(sessionID string, now time.Time) (time.Duration, bool) {
	entry, ok := r.Current(sessionID)
	if !ok {
		return 0, false
	}
	left := entry.Duration - now.Sub(entry.StartedAt)
	if left < 0 {
		left = 0
	}
	return left, true
}

// ClearIf removes the entry for sessionID only if it still references quizID,
// reporting whether it did. This is the still-current check both the timeout
// callback and the manual-end path go through before revealing.
func (r *TimerRegistry) ClearIf(sessionID, quizID string) bool {
	s := r.shard(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[sessionID]
	if !ok || entry.QuizID != quizID {
		return false
	}
	delete(s.entries, sessionID)
	return true
}

// Clear drops any entry for sessionID unconditionally (session end).
func (r *TimerRegistry) Clear(sessionID string) {
	s := r.shard(sessionID)
	s.mu.Lock()
	delete(s.entries, sessionID)
	s.mu.Unlock()
}
