package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmarchetti/streamrec/internal/params"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSubscribe    MessageType = "subscribe"
	TypeSubscribeAck MessageType = "subscribe_ack"
	TypeUpdateParams MessageType = "update_params"
	TypeParamsUpdate MessageType = "params_update"
	TypePing         MessageType = "ping"
	TypePong         MessageType = "pong"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Subscribe binds the websocket connection to a session for push delivery.
type Subscribe struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

// SubscribeAck confirms the binding and carries the current parameter set so
// a fresh subscriber never starts stale.
type SubscribeAck struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	Params    params.Snapshot `json:"params"`
}

// UpdateParams applies a parameter change over the push channel, the same
// operation as POST /update_params.
type UpdateParams struct {
	Type   MessageType       `json:"type"`
	Params params.Parameters `json:"params"`
}

// ParamsUpdate is the server push sent after every successful parameter
// change.
type ParamsUpdate struct {
	Type    MessageType       `json:"type"`
	Params  params.Parameters `json:"params"`
	Version uint64            `json:"version"`
}

type Ping struct {
	Type MessageType `json:"type"`
}

type Pong struct {
	Type MessageType `json:"type"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

// ParseClientMessage decodes an inbound websocket frame into its typed form.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSubscribe:
		var msg Subscribe
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid subscribe: missing session_id")
		}
		return msg, nil
	case TypeUpdateParams:
		var msg UpdateParams
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case TypePing:
		return Ping{Type: TypePing}, nil
	default:
		return nil, ErrUnsupportedType
	}
}
