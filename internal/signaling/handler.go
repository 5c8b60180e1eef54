// Package signaling processes session-establishment messages. Offer and
// candidate payloads are opaque: they are stored and relayed, never parsed
// beyond the JSON envelope.
package signaling

import (
	"encoding/json"
	"errors"

	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/session"
)

var ErrBadRequest = errors.New("malformed signaling payload")

// Handler binds offers and candidates to registry sessions.
type Handler struct {
	registry *session.Registry
	store    *params.Store
}

func New(registry *session.Registry, store *params.Store) *Handler {
	return &Handler{registry: registry, store: store}
}

// OfferResult is what a client needs to continue negotiation.
type OfferResult struct {
	SessionID string          `json:"session_id"`
	Answer    json.RawMessage `json:"answer"`
	Params    params.Snapshot `json:"params"`
}

// HandleOffer stores the offer against an existing session when the hint
// matches, otherwise creates a new one. The answer echoes the offer payload
// back; producing a real SDP answer is the transport's concern, not ours.
func (h *Handler) HandleOffer(sessionHint string, offer json.RawMessage) (OfferResult, error) {
	if len(offer) == 0 {
		return OfferResult{}, ErrBadRequest
	}

	var s *session.Session
	if sessionHint != "" {
		if existing, err := h.registry.Get(sessionHint); err == nil {
			s = existing
		}
	}
	if s == nil {
		s = h.registry.Create()
	}
	s.SetOffer(offer)

	return OfferResult{
		SessionID: s.ID,
		Answer:    offer,
		Params:    h.store.Get(),
	}, nil
}

// HandleCandidate appends the candidate payload to the session's negotiation
// record. Unknown sessions report ErrNotFound; candidate content is not
// validated beyond being present.
func (h *Handler) HandleCandidate(sessionID string, candidate json.RawMessage) error {
	if len(candidate) == 0 {
		return ErrBadRequest
	}
	s, err := h.registry.Get(sessionID)
	if err != nil {
		return err
	}
	s.AddCandidate(candidate)
	return nil
}
