package protocol

import (
	"encoding/json"
	"fmt"
)

// Realtime server event types the bridge discriminates. Everything else is
// surfaced as AIUnknown and ignored upstream.
const (
	realtimeTypeAudioDelta       = "response.audio.delta"
	realtimeTypeOutputAudioDelta = "response.output_audio.delta"
	realtimeTypeSpeechStarted    = "input_audio_buffer.speech_started"
	realtimeTypeResponseDone     = "response.done"
	realtimeTypeError            = "error"
)

// AIAudioDelta is a chunk of synthesized assistant audio for one content item.
type AIAudioDelta struct {
	ItemID  string
	Payload string // base64 audio, opaque to the bridge
}

// AISpeechStarted reports server-side VAD detecting the caller speaking.
type AISpeechStarted struct{}

// AIResponseDone marks natural completion of an assistant response. Raw holds
// the full event payload for persistence.
type AIResponseDone struct {
	ResponseID string
	Raw        json.RawMessage
}

// AIError is a realtime error event; non-fatal unless the transport drops.
type AIError struct {
	Code    string
	Message string
}

// AIUnknown wraps any event type the bridge does not act on.
type AIUnknown struct {
	Type string
}

type realtimeServerEvent struct {
	Type     string `json:"type"`
	ItemID   string `json:"item_id"`
	Delta    string `json:"delta"`
	Response struct {
		ID string `json:"id"`
	} `json:"response"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseRealtimeEvent decodes one realtime server event into a tagged variant.
func ParseRealtimeEvent(raw []byte) (any, error) {
	var evt realtimeServerEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		return nil, fmt.Errorf("invalid realtime event: %w", err)
	}

	switch evt.Type {
	case realtimeTypeAudioDelta, realtimeTypeOutputAudioDelta:
		return AIAudioDelta{ItemID: evt.ItemID, Payload: evt.Delta}, nil
	case realtimeTypeSpeechStarted:
		return AISpeechStarted{}, nil
	case realtimeTypeResponseDone:
		return AIResponseDone{ResponseID: evt.Response.ID, Raw: json.RawMessage(append([]byte(nil), raw...))}, nil
	case realtimeTypeError:
		return AIError{Code: evt.Error.Code, Message: evt.Error.Message}, nil
	default:
		return AIUnknown{Type: evt.Type}, nil
	}
}

// Realtime client events.

// SessionConfig is the session.update payload sent once after connect.
type SessionConfig struct {
	Instructions string
	Voice        string
	Temperature  float64
}

type sessionUpdateMessage struct {
	Type    string `json:"type"`
	Session struct {
		TurnDetection struct {
			Type string `json:"type"`
		} `json:"turn_detection"`
		InputAudioFormat  string   `json:"input_audio_format"`
		OutputAudioFormat string   `json:"output_audio_format"`
		Voice             string   `json:"voice"`
		Instructions      string   `json:"instructions"`
		Modalities        []string `json:"modalities"`
		Temperature       float64  `json:"temperature"`
	} `json:"session"`
}

type audioAppendMessage struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type itemTruncateMessage struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMS   int64  `json:"audio_end_ms"`
}

// NewSessionUpdate builds the configuration message. Audio runs g711_ulaw in
// both directions so telephony frames pass through without transcoding, and
// turn detection is server VAD so barge-in surfaces as speech_started.
func NewSessionUpdate(cfg SessionConfig) any {
	msg := sessionUpdateMessage{Type: "session.update"}
	msg.Session.TurnDetection.Type = "server_vad"
	msg.Session.InputAudioFormat = "g711_ulaw"
	msg.Session.OutputAudioFormat = "g711_ulaw"
	msg.Session.Voice = cfg.Voice
	msg.Session.Instructions = cfg.Instructions
	msg.Session.Modalities = []string{"text", "audio"}
	msg.Session.Temperature = cfg.Temperature
	return msg
}

// NewAudioAppend builds an input_audio_buffer.append message.
func NewAudioAppend(payload string) any {
	return audioAppendMessage{Type: "input_audio_buffer.append", Audio: payload}
}

// NewItemTruncate builds a conversation.item.truncate message cutting the
// named item at audioEndMS of heard audio.
func NewItemTruncate(itemID string, audioEndMS int64) any {
	return itemTruncateMessage{
		Type:       "conversation.item.truncate",
		ItemID:     itemID,
		AudioEndMS: audioEndMS,
	}
}
