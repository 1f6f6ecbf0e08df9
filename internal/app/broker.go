package app

import (
	"sync"
)

// Role distinguishes the two audiences on a session channel. Presenter events
// may carry the answer key; participant events never do.
type Role int

const (
	RolePresenter Role = iota
	RoleParticipant
)

// Broker is a session-scoped publish/subscribe fan-out. Join and leave are
// first-class: subscribers register against a session id with a role and an
// optional subscriber id (the participant token) for targeted pushes.
type Broker struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

type room struct {
	mu   sync.Mutex
	subs map[chan Event]subscriber
}

type subscriber struct {
	role Role
	id   string // participant id, "" for the presenter
}

func NewBroker() *Broker {
	return &Broker{rooms: make(map[string]*room)}
}

// Subscribe registers a channel on the session. The caller must invoke the
// returned cancel function to avoid leaks.
func (b *Broker) Subscribe(sessionID string, role Role, subscriberID string) (<-chan Event, func()) {
	b.mu.Lock()
	rm, ok := b.rooms[sessionID]
	if !ok {
		rm = &room{subs: make(map[chan Event]subscriber)}
		b.rooms[sessionID] = rm
	}
	b.mu.Unlock()

	ch := make(chan Event, 16)
	rm.mu.Lock()
	rm.subs[ch] = subscriber{role: role, id: subscriberID}
	rm.mu.Unlock()

	cancel := func() {
		rm.mu.Lock()
		if _, ok := rm.subs[ch]; ok {
			delete(rm.subs, ch)
			close(ch)
		}
		empty := len(rm.subs) == 0
		rm.mu.Unlock()
		if empty {
			b.dropIfEmpty(sessionID, rm)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber on the session.
func (b *Broker) Publish(sessionID string, ev Event) {
	b.publish(sessionID, ev, func(subscriber) bool { return true })
}

// PublishRole delivers an event to subscribers with the given role only.
func (b *Broker) PublishRole(sessionID string, role Role, ev Event) {
	b.publish(sessionID, ev, func(s subscriber) bool { return s.role == role })
}

// PublishTo delivers an event to the single subscriber with the given id.
func (b *Broker) PublishTo(sessionID, subscriberID string, ev Event) {
	b.publish(sessionID, ev, func(s subscriber) bool { return s.id == subscriberID })
}

func (b *Broker) publish(sessionID string, ev Event, match func(subscriber) bool) {
	b.mu.RLock()
	rm, ok := b.rooms[sessionID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	for ch, sub := range rm.subs {
		if !match(sub) {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Slow client: drop its oldest pending event rather than block
			// the whole session's fan-out.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- ev:
			default:
			}
		}
	}
}

func (b *Broker) dropIfEmpty(sessionID string, rm *room) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rm.mu.Lock()
	empty := len(rm.subs) == 0
	rm.mu.Unlock()
	if empty && b.rooms[sessionID] == rm {
		delete(b.rooms, sessionID)
	}
}
