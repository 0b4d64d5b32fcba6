package server

import (
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"OnAirFM/core/radio"
	"OnAirFM/model"

	"github.com/gorilla/websocket"
)

func dialRadio(t *testing.T, env *testEnv) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/ws/radio"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) radio.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg radio.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

// readUntil skips messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) radio.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		if msg := readMessage(t, conn); msg.Type == msgType {
			return msg
		}
	}
	t.Fatalf("no %q message received", msgType)
	return radio.Message{}
}

func TestWebSocketSyncOnJoin(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()

	if _, err := env.radio.AddTrack(ctx, model.TrackInput{Title: "Summer Vibes", Artist: "DJ Cool", Duration: 180}); err != nil {
		t.Fatalf("AddTrack: %v", err)
	}
	if err := env.radio.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn := dialRadio(t, env)
	msg := readMessage(t, conn)
	if msg.Type != radio.MsgTypeSync {
		t.Fatalf("first message type = %q, want %q", msg.Type, radio.MsgTypeSync)
	}
	status, err := msg.DecodeStatus()
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if !status.IsPlaying || status.CurrentTrack == nil || status.CurrentTrack.Title != "Summer Vibes" {
		t.Errorf("sync status = %+v", status)
	}
}

func TestWebSocketReceivesUpdates(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	ctx := context.Background()
	for _, title := range []string{"Night Drive", "Morning Coffee"} {
		if _, err := env.radio.AddTrack(ctx, model.TrackInput{Title: title, Artist: "Chill Beats", Duration: 200}); err != nil {
			t.Fatalf("AddTrack: %v", err)
		}
	}

	conn := dialRadio(t, env)
	first := readMessage(t, conn)
	if first.Type != radio.MsgTypeSync {
		t.Fatalf("first message type = %q", first.Type)
	}
	if s, _ := first.DecodeStatus(); !s.Idle() {
		t.Errorf("expected idle snapshot, got %+v", s)
	}

	if err := env.radio.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	msg := readUntil(t, conn, radio.MsgTypeUpdate)
	status, err := msg.DecodeStatus()
	if err != nil {
		t.Fatalf("DecodeStatus: %v", err)
	}
	if !status.IsPlaying || status.CurrentTrack == nil {
		t.Errorf("update status = %+v", status)
	}
}

func TestWebSocketRequests(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	conn := dialRadio(t, env)
	readMessage(t, conn) // 初始快照

	if err := conn.WriteJSON(radio.Message{Type: radio.MsgTypePing}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != radio.MsgTypePong {
		t.Errorf("reply to ping = %q", msg.Type)
	}

	if err := conn.WriteJSON(radio.Message{Type: radio.MsgTypeSync}); err != nil {
		t.Fatalf("write sync: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != radio.MsgTypeSync {
		t.Errorf("reply to sync = %q", msg.Type)
	}

	if err := conn.WriteJSON(radio.Message{Type: "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != radio.MsgTypeError {
		t.Errorf("reply to unknown = %q", msg.Type)
	}
}

func TestWebSocketClosedOnShutdown(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	conn := dialRadio(t, env)
	readMessage(t, conn)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.radio.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("read after shutdown = %v, want going away close", err)
	}
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://radio.example"})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://radio.example", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		r, _ := http.NewRequest(http.MethodGet, "/ws/radio", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := check(r); got != tt.want {
			t.Errorf("origin %q: got %v, want %v", tt.origin, got, tt.want)
		}
	}

	if !originChecker(nil)(&http.Request{Header: http.Header{"Origin": {"http://any"}}}) {
		t.Errorf("empty allow list should accept any origin")
	}
}
