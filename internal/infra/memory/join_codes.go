package memory

import (
	"context"
	"sync"
)

// JoinCodeIndex is the in-memory implementation of app.JoinCodeIndex.
type JoinCodeIndex struct {
	mu    sync.Mutex
	codes map[string]string // code -> session id
}

func NewJoinCodeIndex() *JoinCodeIndex {
	return &JoinCodeIndex{codes: make(map[string]string)}
}

func (i *JoinCodeIndex) Reserve(_ context.Context, code, sessionID string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, taken := i.codes[code]; taken {
		return false, nil
	}
	i.codes[code] = sessionID
	return true, nil
}

func (i *JoinCodeIndex) Resolve(_ context.Context, code string) (string, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	sessionID, ok := i.codes[code]
	return sessionID, ok, nil
}

func (i *JoinCodeIndex) Release(_ context.Context, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.codes, code)
	return nil
}
