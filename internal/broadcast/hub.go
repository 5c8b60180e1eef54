// Package broadcast pushes parameter changes to live sessions. Delivery is
// best effort and last-write-wins; a session with no connected subscriber
// picks the new version up on its next drain.
package broadcast

import (
	"sync"

	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/session"
)

const subscriberQueue = 8

// Subscriber is one push-channel binding between a connection and a session.
type Subscriber struct {
	sessionID string
	ch        chan params.Snapshot
}

// Updates delivers pushed parameter snapshots. The channel is closed on
// unsubscribe.
func (s *Subscriber) Updates() <-chan params.Snapshot { return s.ch }

// SessionID returns the session this subscriber is bound to.
func (s *Subscriber) SessionID() string { return s.sessionID }

// Hub fans parameter updates out to subscribed sessions.
type Hub struct {
	mu       sync.Mutex
	subs     map[string]map[*Subscriber]struct{}
	registry *session.Registry
}

func NewHub(registry *session.Registry) *Hub {
	return &Hub{
		subs:     make(map[string]map[*Subscriber]struct{}),
		registry: registry,
	}
}

// Subscribe binds a new push channel to sessionID. The session must exist.
func (h *Hub) Subscribe(sessionID string) (*Subscriber, error) {
	if _, err := h.registry.Get(sessionID); err != nil {
		return nil, err
	}
	sub := &Subscriber{sessionID: sessionID, ch: make(chan params.Snapshot, subscriberQueue)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

// Unsubscribe removes the binding and closes the update channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
	close(sub.ch)
}

// NotifyAll pushes the snapshot to every subscriber whose session is still
// negotiating or streaming. A saturated subscriber queue drops the push for
// that subscriber only; the drain-time read is the consistency backstop.
// Returns the number of deliveries that were queued.
func (h *Hub) NotifyAll(snap params.Snapshot) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for sessionID, set := range h.subs {
		s, err := h.registry.Get(sessionID)
		if err != nil {
			continue
		}
		switch s.State() {
		case session.StateNegotiating, session.StateStreaming:
		default:
			continue
		}
		for sub := range set {
			select {
			case sub.ch <- snap:
				delivered++
				s.ObserveParamsVersion(snap.Version)
			default:
			}
		}
	}
	return delivered
}

// SubscriberCount reports active subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[sessionID])
}
