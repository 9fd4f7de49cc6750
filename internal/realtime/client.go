package realtime

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/internal/protocol"
)

// Config describes one outbound realtime session.
type Config struct {
	URL     string
	Model   string
	APIKey  string
	Session protocol.SessionConfig
}

// Client owns one websocket session with the realtime API. Events are parsed
// into protocol variants and delivered on Events; the channel closes when the
// transport drops.
type Client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
	events    chan any
	done      chan struct{}
}

// Dial connects, sends the session configuration, and starts the read loop.
// Audio must not be appended before Dial returns.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}

	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("realtime url: %w", err)
	}
	q := u.Query()
	if strings.TrimSpace(cfg.Model) != "" {
		q.Set("model", cfg.Model)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+cfg.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), headers)
	if err != nil {
		return nil, fmt.Errorf("dial realtime websocket: %w", err)
	}

	c := &Client{conn: conn, events: make(chan any, 256), done: make(chan struct{})}
	if err := c.writeJSON(protocol.NewSessionUpdate(cfg.Session)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send session.update: %w", err)
	}

	go c.readLoop()
	return c, nil
}

// Events delivers parsed server events. Closed on transport loss or Close.
func (c *Client) Events() <-chan any { return c.events }

// AppendAudio streams one audio chunk; fire-and-forget, ordered.
func (c *Client) AppendAudio(payload string) error {
	return c.writeJSON(protocol.NewAudioAppend(payload))
}

// Truncate cuts the named in-flight item at audioEndMS of heard audio.
func (c *Client) Truncate(itemID string, audioEndMS int64) error {
	return c.writeJSON(protocol.NewItemTruncate(itemID, audioEndMS))
}

// Close tears the transport down. The events channel is closed by the read
// loop once the connection unwinds, keeping the channel single-owner.
func (c *Client) Close() error {
	var retErr error
	c.closeOnce.Do(func() {
		close(c.done)
		retErr = c.conn.Close()
	})
	return retErr
}

func (c *Client) writeJSON(payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(payload)
}

func (c *Client) readLoop() {
	defer close(c.events)
	defer c.Close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		evt, err := protocol.ParseRealtimeEvent(data)
		if err != nil {
			// Malformed frames are dropped; the session continues.
			log.Printf("realtime: dropping malformed event: %v", err)
			continue
		}
		select {
		case c.events <- evt:
		case <-c.done:
			return
		}
	}
}
