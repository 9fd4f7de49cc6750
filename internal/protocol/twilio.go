package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// TwilioEvent identifies Media Streams payload variants.
type TwilioEvent string

const (
	TwilioEventConnected TwilioEvent = "connected"
	TwilioEventStart     TwilioEvent = "start"
	TwilioEventMedia     TwilioEvent = "media"
	TwilioEventMark      TwilioEvent = "mark"
	TwilioEventStop      TwilioEvent = "stop"
)

var ErrUnsupportedTwilioEvent = errors.New("unsupported twilio event")

type twilioEnvelope struct {
	Event TwilioEvent `json:"event"`
}

// StreamStart carries the stream identifiers Twilio assigns once media begins.
type StreamStart struct {
	StreamSID  string            `json:"streamSid"`
	CallSID    string            `json:"callSid"`
	AccountSID string            `json:"accountSid"`
	Tracks     []string          `json:"tracks"`
	Custom     map[string]string `json:"customParameters"`
}

// MediaFrame is one inbound audio chunk with its media-clock timestamp.
type MediaFrame struct {
	Track       string
	Chunk       string
	TimestampMS int64
	Payload     string // base64 audio, opaque to the bridge
}

// MarkAck is the echo of a previously sent playback marker.
type MarkAck struct {
	Name string
}

// StreamStop signals the telephony side ended the stream.
type StreamStop struct {
	CallSID string `json:"callSid"`
}

// Connected is the protocol handshake message; carries no session state.
type Connected struct{}

type twilioStartMessage struct {
	Event     TwilioEvent `json:"event"`
	StreamSID string      `json:"streamSid"`
	Start     StreamStart `json:"start"`
}

type twilioMediaMessage struct {
	Event TwilioEvent `json:"event"`
	Media struct {
		Track     string `json:"track"`
		Chunk     string `json:"chunk"`
		Timestamp string `json:"timestamp"`
		Payload   string `json:"payload"`
	} `json:"media"`
}

type twilioMarkMessage struct {
	Event TwilioEvent `json:"event"`
	Mark  struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type twilioStopMessage struct {
	Event TwilioEvent `json:"event"`
	Stop  StreamStop  `json:"stop"`
}

// ParseTwilioMessage decodes one inbound Media Streams message into a tagged
// variant. Unknown events return ErrUnsupportedTwilioEvent so callers can
// drop them without tearing the stream down.
func ParseTwilioMessage(raw []byte) (any, error) {
	var env twilioEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Event {
	case TwilioEventConnected:
		return Connected{}, nil
	case TwilioEventStart:
		var msg twilioStartMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		start := msg.Start
		if start.StreamSID == "" {
			start.StreamSID = msg.StreamSID
		}
		if start.StreamSID == "" {
			return nil, errors.New("start without streamSid")
		}
		return start, nil
	case TwilioEventMedia:
		var msg twilioMediaMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Media.Payload == "" {
			return nil, errors.New("media without payload")
		}
		ts, err := strconv.ParseInt(msg.Media.Timestamp, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("media timestamp %q: %w", msg.Media.Timestamp, err)
		}
		return MediaFrame{
			Track:       msg.Media.Track,
			Chunk:       msg.Media.Chunk,
			TimestampMS: ts,
			Payload:     msg.Media.Payload,
		}, nil
	case TwilioEventMark:
		var msg twilioMarkMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Mark.Name == "" {
			return nil, errors.New("mark without name")
		}
		return MarkAck{Name: msg.Mark.Name}, nil
	case TwilioEventStop:
		var msg twilioStopMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg.Stop, nil
	default:
		return nil, ErrUnsupportedTwilioEvent
	}
}

// Outbound Media Streams messages.

type outboundMedia struct {
	Event     TwilioEvent `json:"event"`
	StreamSID string      `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

type outboundMark struct {
	Event     TwilioEvent `json:"event"`
	StreamSID string      `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

type outboundClear struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

// NewOutboundMedia builds a media message carrying assistant audio.
func NewOutboundMedia(streamSID, payload string) any {
	msg := outboundMedia{Event: TwilioEventMedia, StreamSID: streamSID}
	msg.Media.Payload = payload
	return msg
}

// NewOutboundMark builds a playback-marker message.
func NewOutboundMark(streamSID, name string) any {
	msg := outboundMark{Event: TwilioEventMark, StreamSID: streamSID}
	msg.Mark.Name = name
	return msg
}

// NewOutboundClear builds a clear message that flushes Twilio's buffered,
// not-yet-played outbound audio.
func NewOutboundClear(streamSID string) any {
	return outboundClear{Event: "clear", StreamSID: streamSID}
}
