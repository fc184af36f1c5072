package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/mbtivoice/internal/protocol"
	"github.com/ent0n29/mbtivoice/internal/session"
	"github.com/ent0n29/mbtivoice/internal/voice"
)

func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondSessionError(w, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan any, 16)
	outbound := make(chan any, 256)
	runDone := make(chan struct{})

	go func() {
		defer close(runDone)
		s.runConnection(ctx, sessionID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-outbound:
				_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
				if t, ok := messageTypeOf(msg); ok {
					s.metrics.ObserveWSMessage("outbound", string(t))
				}
			}
		}
	}()

	conn.SetReadLimit(maxAudioUploadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(ctx, outbound, errorEvent(sessionID, "invalid_client_message", err))
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- parsed:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

// runConnection executes inbound messages one at a time, in arrival order.
func (s *Server) runConnection(ctx context.Context, sessionID string, inbound <-chan any, outbound chan<- any) {
	onUpdate := func(u voice.DisplayUpdate) {
		send(ctx, outbound, protocol.DisplayUpdate{
			Type:      protocol.TypeDisplayUpdate,
			SessionID: u.SessionID,
			Stage:     u.Stage,
			Entry:     u.Entry,
		})
	}

	for msg := range inbound {
		switch m := msg.(type) {
		case protocol.TurnText:
			turn := turnRequest(m.TurnOptions)
			turn.Text = m.Text
			s.runTurn(ctx, sessionID, turn, onUpdate, outbound)
		case protocol.TurnAudio:
			turn, err := audioTurnRequest(m)
			if err != nil {
				send(ctx, outbound, errorEvent(sessionID, "invalid_client_message", err))
				continue
			}
			s.runTurn(ctx, sessionID, turn, onUpdate, outbound)
		case protocol.Clear:
			if err := s.turns.Clear(ctx, sessionID); err != nil {
				send(ctx, outbound, errorEvent(sessionID, sessionErrorCode(err), err))
				continue
			}
			send(ctx, outbound, protocol.Cleared{Type: protocol.TypeCleared, SessionID: sessionID})
		}
	}
}

func (s *Server) runTurn(ctx context.Context, sessionID string, turn voice.TurnRequest, onUpdate func(voice.DisplayUpdate), outbound chan<- any) {
	res, err := s.turns.Submit(ctx, sessionID, turn, onUpdate)
	if err != nil {
		send(ctx, outbound, errorEvent(sessionID, sessionErrorCode(err), err))
		return
	}
	send(ctx, outbound, protocol.TurnResult{Type: protocol.TypeTurnResult, Result: res})
}

func send(ctx context.Context, outbound chan<- any, msg any) {
	select {
	case <-ctx.Done():
	case outbound <- msg:
	}
}

func errorEvent(sessionID, code string, err error) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    "gateway",
		Retryable: code == "turn_cancelled",
		Detail:    err.Error(),
	}
}

func sessionErrorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "session_not_found"
	case errors.Is(err, session.ErrEnded):
		return "session_ended"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "turn_cancelled"
	default:
		return "internal_error"
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.TurnText:
		return m.Type, true
	case protocol.TurnAudio:
		return m.Type, true
	case protocol.Clear:
		return m.Type, true
	case protocol.DisplayUpdate:
		return m.Type, true
	case protocol.TurnResult:
		return m.Type, true
	case protocol.Cleared:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
