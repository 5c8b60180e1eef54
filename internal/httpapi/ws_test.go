package httpapi

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dmarchetti/streamrec/internal/params"
	"github.com/dmarchetti/streamrec/internal/protocol"
)

func dialWS(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read ws message error = %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode ws message: %v", err)
	}
	return msg
}

func TestWSSubscribeReceivesParamsUpdate(t *testing.T) {
	ts, registry, store, _ := newTestServer(t)
	s := registry.Create()
	conn := dialWS(t, ts.URL)

	if err := conn.WriteJSON(protocol.Subscribe{Type: protocol.TypeSubscribe, SessionID: s.ID}); err != nil {
		t.Fatalf("write subscribe error = %v", err)
	}
	ack := readMessage(t, conn)
	if ack["type"] != string(protocol.TypeSubscribeAck) {
		t.Fatalf("first message = %+v, want subscribe_ack", ack)
	}

	res, body := postJSON(t, ts.URL+"/update_params", map[string]any{
		"fps": 10, "batch_size": 32, "sample_rate": 8000, "channels": 1,
	})
	if res.StatusCode != 200 {
		t.Fatalf("update status = %d, body = %+v", res.StatusCode, body)
	}

	push := readMessage(t, conn)
	if push["type"] != string(protocol.TypeParamsUpdate) {
		t.Fatalf("push = %+v, want params_update", push)
	}
	pushed := push["params"].(map[string]any)
	if pushed["fps"].(float64) != 10 || pushed["batch_size"].(float64) != 32 {
		t.Fatalf("pushed params = %+v", pushed)
	}
	if push["version"].(float64) != float64(store.Get().Version) {
		t.Fatalf("pushed version = %v, want %d", push["version"], store.Get().Version)
	}
}

func TestWSPushIsolationBetweenSessions(t *testing.T) {
	ts, registry, _, _ := newTestServer(t)
	a := registry.Create()
	registry.Create() // second live session, never subscribed on this conn

	conn := dialWS(t, ts.URL)
	if err := conn.WriteJSON(protocol.Subscribe{Type: protocol.TypeSubscribe, SessionID: a.ID}); err != nil {
		t.Fatalf("write subscribe error = %v", err)
	}
	readMessage(t, conn) // ack

	// Discard A: the hub must stop pushing to its subscribers.
	res, _ := postJSON(t, ts.URL+"/sessions/"+a.ID+"/discard", nil)
	if res.StatusCode != 200 {
		t.Fatalf("discard status = %d", res.StatusCode)
	}
	res, _ = postJSON(t, ts.URL+"/update_params", map[string]any{
		"fps": 5, "batch_size": 16, "sample_rate": 8000, "channels": 1,
	})
	if res.StatusCode != 200 {
		t.Fatalf("update status = %d", res.StatusCode)
	}

	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected push after discard: %s", data)
	}
}

func TestWSPingPong(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	conn := dialWS(t, ts.URL)

	if err := conn.WriteJSON(protocol.Ping{Type: protocol.TypePing}); err != nil {
		t.Fatalf("write ping error = %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != string(protocol.TypePong) {
		t.Fatalf("response = %+v, want pong", msg)
	}
}

func TestWSSubscribeUnknownSession(t *testing.T) {
	ts, _, _, _ := newTestServer(t)
	conn := dialWS(t, ts.URL)

	if err := conn.WriteJSON(protocol.Subscribe{Type: protocol.TypeSubscribe, SessionID: "missing"}); err != nil {
		t.Fatalf("write subscribe error = %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != string(protocol.TypeErrorEvent) || msg["code"] != "session_not_found" {
		t.Fatalf("response = %+v, want session_not_found error event", msg)
	}
}

func TestWSUpdateParams(t *testing.T) {
	ts, registry, store, _ := newTestServer(t)
	s := registry.Create()

	conn := dialWS(t, ts.URL)
	if err := conn.WriteJSON(protocol.Subscribe{Type: protocol.TypeSubscribe, SessionID: s.ID}); err != nil {
		t.Fatalf("write subscribe error = %v", err)
	}
	readMessage(t, conn) // ack

	next := params.Parameters{FPS: 12, BatchSize: 32, SampleRate: 16000, Channels: 1}
	if err := conn.WriteJSON(protocol.UpdateParams{Type: protocol.TypeUpdateParams, Params: next}); err != nil {
		t.Fatalf("write update_params error = %v", err)
	}

	// The update applies and broadcasts to subscribers like the HTTP path.
	push := readMessage(t, conn)
	if push["type"] != string(protocol.TypeParamsUpdate) {
		t.Fatalf("response = %+v, want params_update", push)
	}
	pushed := push["params"].(map[string]any)
	if pushed["fps"].(float64) != 12 || pushed["batch_size"].(float64) != 32 {
		t.Fatalf("pushed params = %+v", pushed)
	}
	if got := store.Get(); got.Parameters != next {
		t.Fatalf("store params = %+v, want %+v", got.Parameters, next)
	}
}

func TestWSUpdateParamsInvalid(t *testing.T) {
	ts, _, store, _ := newTestServer(t)
	before := store.Get()

	conn := dialWS(t, ts.URL)
	bad := params.Parameters{FPS: 0, BatchSize: 32, SampleRate: 16000, Channels: 1}
	if err := conn.WriteJSON(protocol.UpdateParams{Type: protocol.TypeUpdateParams, Params: bad}); err != nil {
		t.Fatalf("write update_params error = %v", err)
	}
	msg := readMessage(t, conn)
	if msg["type"] != string(protocol.TypeErrorEvent) || msg["code"] != "invalid_params" {
		t.Fatalf("response = %+v, want invalid_params error event", msg)
	}
	if store.Get() != before {
		t.Fatalf("failed update must not change the store")
	}
}

func TestWSAckCarriesCurrentParams(t *testing.T) {
	ts, registry, store, _ := newTestServer(t)
	if _, err := store.Update(params.Parameters{FPS: 20, BatchSize: 48, SampleRate: 22050, Channels: 2}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	s := registry.Create()

	conn := dialWS(t, ts.URL)
	if err := conn.WriteJSON(protocol.Subscribe{Type: protocol.TypeSubscribe, SessionID: s.ID}); err != nil {
		t.Fatalf("write subscribe error = %v", err)
	}
	ack := readMessage(t, conn)
	p := ack["params"].(map[string]any)
	if p["fps"].(float64) != 20 || p["sample_rate"].(float64) != 22050 {
		t.Fatalf("ack params = %+v", p)
	}
}
