package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/internal/protocol"
)

// fakeRealtimeServer accepts one websocket session and exposes the raw
// client messages it reads.
type fakeRealtimeServer struct {
	ts       *httptest.Server
	received chan map[string]any
	conns    chan *websocket.Conn
}

func newFakeRealtimeServer(t *testing.T) *fakeRealtimeServer {
	t.Helper()
	f := &fakeRealtimeServer{
		received: make(chan map[string]any, 64),
		conns:    make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	f.ts = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("OpenAI-Beta"); got != "realtime=v1" {
			t.Errorf("OpenAI-Beta = %q", got)
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		f.conns <- conn
		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.received <- msg
		}
	}))
	t.Cleanup(f.ts.Close)
	return f
}

func (f *fakeRealtimeServer) url() string {
	return "ws" + strings.TrimPrefix(f.ts.URL, "http")
}

func (f *fakeRealtimeServer) next(t *testing.T) map[string]any {
	t.Helper()
	select {
	case msg := <-f.received:
		return msg
	case <-time.After(time.Second):
		t.Fatalf("no client message received")
		return nil
	}
}

func dialTestClient(t *testing.T, f *fakeRealtimeServer) *Client {
	t.Helper()
	c, err := Dial(context.Background(), Config{
		URL:    f.url(),
		Model:  "gpt-4o-realtime-preview",
		APIKey: "sk-test",
		Session: protocol.SessionConfig{
			Instructions: "be brief",
			Voice:        "alloy",
			Temperature:  0.8,
		},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestDialSendsSessionUpdateFirst(t *testing.T) {
	f := newFakeRealtimeServer(t)
	c := dialTestClient(t, f)

	first := f.next(t)
	if first["type"] != "session.update" {
		t.Fatalf("first message type = %v, want session.update", first["type"])
	}
	session, _ := first["session"].(map[string]any)
	if session["instructions"] != "be brief" {
		t.Fatalf("instructions = %v", session["instructions"])
	}

	if err := c.AppendAudio("AQID"); err != nil {
		t.Fatalf("AppendAudio() error = %v", err)
	}
	second := f.next(t)
	if second["type"] != "input_audio_buffer.append" || second["audio"] != "AQID" {
		t.Fatalf("unexpected append message: %v", second)
	}
}

func TestTruncateMessage(t *testing.T) {
	f := newFakeRealtimeServer(t)
	c := dialTestClient(t, f)
	f.next(t) // session.update

	if err := c.Truncate("item_1", 400); err != nil {
		t.Fatalf("Truncate() error = %v", err)
	}
	msg := f.next(t)
	if msg["type"] != "conversation.item.truncate" {
		t.Fatalf("type = %v", msg["type"])
	}
	if msg["item_id"] != "item_1" || msg["audio_end_ms"] != float64(400) {
		t.Fatalf("unexpected truncate message: %v", msg)
	}
}

func TestClientParsesServerEvents(t *testing.T) {
	f := newFakeRealtimeServer(t)
	c := dialTestClient(t, f)

	var conn *websocket.Conn
	select {
	case conn = <-f.conns:
	case <-time.After(time.Second):
		t.Fatalf("server connection not captured")
	}

	events := []string{
		`{"type":"response.audio.delta","item_id":"X","delta":"c3ludGg="}`,
		`{"type":"input_audio_buffer.speech_started"}`,
		`{"type":"response.done","response":{"id":"resp_1"}}`,
		`not json`,
		`{"type":"session.created"}`,
	}
	for _, raw := range events {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatalf("server write: %v", err)
		}
	}

	expect := func() any {
		select {
		case evt, ok := <-c.Events():
			if !ok {
				t.Fatalf("events channel closed early")
			}
			return evt
		case <-time.After(time.Second):
			t.Fatalf("no event")
			return nil
		}
	}

	if delta, ok := expect().(protocol.AIAudioDelta); !ok || delta.ItemID != "X" {
		t.Fatalf("expected audio delta for item X")
	}
	if _, ok := expect().(protocol.AISpeechStarted); !ok {
		t.Fatalf("expected speech started")
	}
	done, ok := expect().(protocol.AIResponseDone)
	if !ok || done.ResponseID != "resp_1" {
		t.Fatalf("expected response done for resp_1")
	}
	var raw map[string]any
	if err := json.Unmarshal(done.Raw, &raw); err != nil {
		t.Fatalf("response done raw is not json: %v", err)
	}
	// The malformed frame is dropped; the unknown event still flows through.
	if unknown, ok := expect().(protocol.AIUnknown); !ok || unknown.Type != "session.created" {
		t.Fatalf("expected unknown event session.created")
	}
}

func TestClientEventsCloseOnServerDrop(t *testing.T) {
	f := newFakeRealtimeServer(t)
	c := dialTestClient(t, f)

	var conn *websocket.Conn
	select {
	case conn = <-f.conns:
	case <-time.After(time.Second):
		t.Fatalf("server connection not captured")
	}
	conn.Close()

	select {
	case _, ok := <-c.Events():
		if ok {
			for range c.Events() {
			}
		}
	case <-time.After(time.Second):
		t.Fatalf("events channel did not close after server drop")
	}
}

func TestDialRequiresAPIKey(t *testing.T) {
	if _, err := Dial(context.Background(), Config{URL: "ws://localhost:0"}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
