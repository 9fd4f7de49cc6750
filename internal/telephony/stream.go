package telephony

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/internal/protocol"
)

// Stream owns one Media Streams websocket for the duration of a call.
// Inbound messages are parsed into protocol variants and delivered on Events;
// the channel closes when the connection drops. Outbound writes are
// serialized on a single mutex.
type Stream struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan any
	done      chan struct{}

	mu        sync.Mutex
	streamSID string
}

// NewStream wraps an upgraded websocket connection and starts its read loop.
func NewStream(conn *websocket.Conn) *Stream {
	conn.SetReadLimit(2 << 20)
	s := &Stream{conn: conn, events: make(chan any, 256), done: make(chan struct{})}
	go s.readLoop()
	return s
}

// Events delivers parsed inbound messages. Closed when the stream ends.
func (s *Stream) Events() <-chan any { return s.events }

// StreamSID returns the identifier Twilio assigned in the start message,
// empty before then.
func (s *Stream) StreamSID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSID
}

// SendAudio pushes one outbound audio frame; submission order is preserved
// by the write mutex.
func (s *Stream) SendAudio(payload string) error {
	return s.writeJSON(protocol.NewOutboundMedia(s.StreamSID(), payload))
}

// SendMark pushes a playback marker; Twilio echoes it back once audio up to
// this point has rendered to the caller.
func (s *Stream) SendMark(name string) error {
	return s.writeJSON(protocol.NewOutboundMark(s.StreamSID(), name))
}

// SendClear flushes Twilio's buffered, not-yet-played outbound audio.
func (s *Stream) SendClear() error {
	return s.writeJSON(protocol.NewOutboundClear(s.StreamSID()))
}

func (s *Stream) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		close(s.done)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *Stream) writeJSON(payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *Stream) readLoop() {
	defer close(s.events)
	defer s.Close()
	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg, err := protocol.ParseTwilioMessage(data)
		if err != nil {
			// Malformed or unsupported frames are dropped; the call continues.
			log.Printf("telephony: dropping message: %v", err)
			continue
		}
		if start, ok := msg.(protocol.StreamStart); ok {
			s.mu.Lock()
			s.streamSID = start.StreamSID
			s.mu.Unlock()
		}
		select {
		case s.events <- msg:
		case <-s.done:
			return
		}
	}
}
