package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmarchetti/streamrec/internal/broadcast"
	"github.com/dmarchetti/streamrec/internal/protocol"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

// handleWS is the push channel: a client subscribes with a session id and
// receives params_update events until the socket closes. Writes stay
// single-threaded through the outbound queue.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.SessionEvents.WithLabelValues("ws_connected").Inc()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	outbound := make(chan any, 64)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(msg); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	send := func(msg any, msgType protocol.MessageType) {
		select {
		case outbound <- msg:
			s.metrics.WSMessages.WithLabelValues("outbound", string(msgType)).Inc()
		default:
			// Writes stay single-threaded; drop when the queue is saturated.
		}
	}

	var sub *broadcast.Subscriber
	forwarderDone := make(chan struct{})
	close(forwarderDone)

	unsubscribe := func() {
		if sub == nil {
			return
		}
		s.hub.Unsubscribe(sub)
		<-forwarderDone
		sub = nil
	}
	defer unsubscribe()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			send(protocol.ErrorEvent{
				Type:   protocol.TypeErrorEvent,
				Code:   "invalid_client_message",
				Detail: err.Error(),
			}, protocol.TypeErrorEvent)
			continue
		}

		switch msg := parsed.(type) {
		case protocol.Subscribe:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeSubscribe)).Inc()
			unsubscribe()
			newSub, err := s.hub.Subscribe(msg.SessionID)
			if err != nil {
				send(protocol.ErrorEvent{
					Type:   protocol.TypeErrorEvent,
					Code:   "session_not_found",
					Detail: err.Error(),
				}, protocol.TypeErrorEvent)
				continue
			}
			sub = newSub
			done := make(chan struct{})
			forwarderDone = done
			go func() {
				defer close(done)
				for snap := range newSub.Updates() {
					send(protocol.ParamsUpdate{
						Type:    protocol.TypeParamsUpdate,
						Params:  snap.Parameters,
						Version: snap.Version,
					}, protocol.TypeParamsUpdate)
				}
			}()
			send(protocol.SubscribeAck{
				Type:      protocol.TypeSubscribeAck,
				SessionID: msg.SessionID,
				Params:    s.params.Get(),
			}, protocol.TypeSubscribeAck)

		case protocol.UpdateParams:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypeUpdateParams)).Inc()
			applied, err := s.params.Update(msg.Params)
			if err != nil {
				s.metrics.ParamUpdates.WithLabelValues("invalid").Inc()
				send(protocol.ErrorEvent{
					Type:   protocol.TypeErrorEvent,
					Code:   "invalid_params",
					Detail: err.Error(),
				}, protocol.TypeErrorEvent)
				continue
			}
			s.metrics.ParamUpdates.WithLabelValues("applied").Inc()
			s.hub.NotifyAll(applied)

		case protocol.Ping:
			s.metrics.WSMessages.WithLabelValues("inbound", string(protocol.TypePing)).Inc()
			send(protocol.Pong{Type: protocol.TypePong}, protocol.TypePong)
		}
	}

	cancel()
	<-writerDone
	s.metrics.SessionEvents.WithLabelValues("ws_disconnected").Inc()
}
