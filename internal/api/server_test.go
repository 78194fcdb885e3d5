package api

import (
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"aicoach/internal/config"
	"aicoach/session"
)

func testServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	cfg := &config.Config{Port: "0", SampleRate: 16000}
	mgr := session.NewManager(session.Backends{}, nil)
	s := NewServer(cfg, mgr)

	ts := httptest.NewServer(http.HandlerFunc(s.handleWebSocket))
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	return ts, url
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestWebSocketSessionLifecycle(t *testing.T) {
	ts, url := testServer(t)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: "start_session", SessionID: "s1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "session_started" || msg.SessionID != "s1" {
		t.Fatalf("expected session_started, got %+v", msg)
	}
	if msg.SampleRate != 16000 {
		t.Errorf("expected configured sample rate fallback, got %d", msg.SampleRate)
	}

	// Бинарный чанк: 8 байт стартового семпла + PCM16 тишина
	chunk := make([]byte, 8+3200)
	binary.LittleEndian.PutUint64(chunk[:8], 0)
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		t.Fatalf("write chunk: %v", err)
	}

	if err := conn.WriteJSON(Message{Type: "stop_session"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	msg = readMessage(t, conn)
	if msg.Type != "session_stopped" || msg.SessionID != "s1" {
		t.Fatalf("expected session_stopped, got %+v", msg)
	}
}

func TestWebSocketAudioWithoutSession(t *testing.T) {
	ts, url := testServer(t)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	chunk := make([]byte, 8+320)
	if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
	msg := readMessage(t, conn)
	if msg.Type != "error" {
		t.Fatalf("expected error for audio without session, got %+v", msg)
	}
}

func TestWebSocketStartRequiresID(t *testing.T) {
	ts, url := testServer(t)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(Message{Type: "start_session"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != "error" {
		t.Fatalf("expected error without sessionId, got %+v", msg)
	}
}
