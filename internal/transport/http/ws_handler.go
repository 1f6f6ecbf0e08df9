package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"lecture-quiz-service/internal/app"
)

// WSHandler upgrades presenter and participant connections and wires them
// into the coordinator's use cases.
type WSHandler struct {
	coordinator *app.Coordinator
	upgrader    websocket.Upgrader
}

func NewWSHandler(coordinator *app.Coordinator) *WSHandler {
	return &WSHandler{
		coordinator: coordinator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type transcriptPayload struct {
	Text string `json:"text"`
}

type endQuizPayload struct {
	QuizID string `json:"quizId"`
}

type answerPayload struct {
	QuizID   string `json:"quizId"`
	Selected string `json:"selected"`
}

type answerAck struct {
	QuizID string `json:"quizId"`
	Late   bool   `json:"late"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServePresenter handles the presenter socket: the connection creates the
// session and drives recording, transcript ingestion, manual quiz end, and
// session end. Dropping the connection ends the session.
func (h *WSHandler) ServePresenter(w http.ResponseWriter, r *http.Request) {
	presenterName := r.URL.Query().Get("presenterName")
	title := r.URL.Query().Get("title")
	timeLimit, err := strconv.Atoi(r.URL.Query().Get("timeLimit"))
	if presenterName == "" || title == "" || err != nil {
		http.Error(w, "missing presenterName, title, or timeLimit", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	session, err := h.coordinator.CreateSession(r.Context(), presenterName, title, timeLimit)
	if err != nil {
		_ = conn.WriteJSON(errEvent(err.Error()))
		return
	}

	events, cancel := h.coordinator.Broker().Subscribe(session.ID, app.RolePresenter, "")
	defer cancel()

	// Presenter gone means the lecture is over; EndSession is idempotent, so
	// an explicit endSession message followed by this defer is harmless.
	defer func() {
		if _, err := h.coordinator.EndSession(context.Background(), session.ID); err != nil {
			log.Printf("end session %s on disconnect: %v", session.ID, err)
		}
	}()

	pipe := startPipe(conn, events)
	defer pipe.shutdown()

	pipe.send <- app.Event{Type: app.EventSessionCreated, Timestamp: session.CreatedAt, Payload: session}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "startRecording":
			pipe.replyErr(h.coordinator.StartRecording(r.Context(), session.ID))
		case "stopRecording":
			pipe.replyErr(h.coordinator.StopRecording(r.Context(), session.ID))
		case "transcript":
			var payload transcriptPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pipe.send <- errEvent("invalid transcript payload")
				continue
			}
			_, err := h.coordinator.IngestFragment(r.Context(), session.ID, payload.Text)
			pipe.replyErr(err)
		case "endQuiz":
			var payload endQuizPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pipe.send <- errEvent("invalid endQuiz payload")
				continue
			}
			pipe.replyErr(h.coordinator.EndQuiz(r.Context(), session.ID, payload.QuizID))
		case "endSession":
			_, err := h.coordinator.EndSession(r.Context(), session.ID)
			pipe.replyErr(err)
		default:
			pipe.send <- errEvent("unsupported message type")
		}
	}
}

// ServeParticipant handles a participant socket: join by code, receive the
// late-join snapshot, then answer quizzes as they arrive.
func (h *WSHandler) ServeParticipant(w http.ResponseWriter, r *http.Request) {
	joinCode := r.URL.Query().Get("joinCode")
	name := r.URL.Query().Get("name")
	if joinCode == "" || name == "" {
		http.Error(w, "missing joinCode or name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	joined, err := h.coordinator.JoinSession(r.Context(), joinCode, name)
	if err != nil {
		_ = conn.WriteJSON(errEvent(err.Error()))
		return
	}

	events, cancel := h.coordinator.Broker().Subscribe(joined.SessionID, app.RoleParticipant, joined.ParticipantID)
	defer cancel()

	pipe := startPipe(conn, events)
	defer pipe.shutdown()

	pipe.send <- app.Event{Type: app.EventSessionJoined, Payload: joined}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			return
		}
		switch inbound.Type {
		case "answer":
			var payload answerPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				pipe.send <- errEvent("invalid answer payload")
				continue
			}
			answer, err := h.coordinator.SubmitAnswer(r.Context(), payload.QuizID, joined.ParticipantID, payload.Selected)
			if err != nil {
				pipe.send <- errEvent(err.Error())
				continue
			}
			// No correctness in the ack; that only arrives with the reveal.
			pipe.send <- app.Event{Type: "answerAccepted", Payload: answerAck{QuizID: answer.QuizID, Late: answer.Late}}
		default:
			pipe.send <- errEvent("unsupported message type")
		}
	}
}

func errEvent(message string) app.Event {
	return app.Event{Type: "error", Payload: errorPayload{Message: message}}
}

// connPipe owns the single writer goroutine (gorilla connections forbid
// concurrent writes) and the pump forwarding broker events into it.
type connPipe struct {
	send         chan app.Event
	closeSignals chan struct{}
	writerDone   chan struct{}
	updatesDone  chan struct{}
}

func startPipe(conn *websocket.Conn, events <-chan app.Event) *connPipe {
	p := &connPipe{
		send:         make(chan app.Event, 16),
		closeSignals: make(chan struct{}),
		writerDone:   make(chan struct{}),
		updatesDone:  make(chan struct{}),
	}

	go func() {
		defer close(p.writerDone)
		for msg := range p.send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// Keep draining so senders never block on a dead socket.
				for range p.send {
				}
				return
			}
		}
	}()

	go func() {
		defer close(p.updatesDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				select {
				case p.send <- ev:
				case <-p.closeSignals:
					return
				}
			case <-p.closeSignals:
				return
			}
		}
	}()

	return p
}

func (p *connPipe) replyErr(err error) {
	if err != nil {
		p.send <- errEvent(err.Error())
	}
}

// shutdown stops the pump before closing send, so the pump can never write
// to a closed channel.
func (p *connPipe) shutdown() {
	close(p.closeSignals)
	<-p.updatesDone
	close(p.send)
	<-p.writerDone
}
