// Package bridge relays audio between one telephony media stream and one AI
// realtime session, tracking playback in the caller's media clock so an
// in-flight assistant response can be truncated the moment the caller starts
// speaking again.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxline/voxline/internal/observability"
	"github.com/voxline/voxline/internal/persist"
	"github.com/voxline/voxline/internal/protocol"
)

// TelephonyStream is the caller-side adapter. Events deliver parsed inbound
// messages; the channel closes when the telephony connection ends.
type TelephonyStream interface {
	Events() <-chan any
	SendAudio(payload string) error
	SendMark(name string) error
	SendClear() error
	Close() error
}

// AIClient is the realtime-session adapter. Events closes when the AI
// transport drops, which is fatal to the call.
type AIClient interface {
	Events() <-chan any
	AppendAudio(payload string) error
	Truncate(itemID string, audioEndMS int64) error
	Close() error
}

// AIDialer establishes the realtime session once the telephony stream has
// started and the call SID is known. It must not return before the session
// is ready to accept audio.
type AIDialer func(ctx context.Context, callSID string) (AIClient, error)

// ErrAITransport reports the realtime connection dropping mid-call. The
// bridge does not reconnect; a live two-way stream cannot resume
// mid-utterance without audible discontinuity.
var ErrAITransport = errors.New("ai transport closed")

const persistTimeout = 5 * time.Second

// Bridge is the per-call orchestrator. All state below is mutated only by
// the single goroutine running Run, which consumes both adapters' events in
// arrival order.
type Bridge struct {
	stream  TelephonyStream
	dialAI  AIDialer
	sink    persist.Sink
	metrics *observability.Metrics

	// OnStreamStart, when set, is notified once the telephony stream has
	// identified itself. Must be set before Run.
	OnStreamStart func(callSID, streamSID string)

	ai        AIClient
	persistWG sync.WaitGroup

	streamSID     string
	callSID       string
	latestMediaTS int64

	// responseActive guards both fields below: a response is in flight
	// exactly when responseStartTS and lastAssistantItem are populated.
	responseActive    bool
	responseStartTS   int64
	lastAssistantItem string

	// markQueue holds playback markers sent but not yet echoed, FIFO.
	markQueue []string
}

func New(stream TelephonyStream, dialAI AIDialer, sink persist.Sink, metrics *observability.Metrics) *Bridge {
	return &Bridge{
		stream:  stream,
		dialAI:  dialAI,
		sink:    sink,
		metrics: metrics,
	}
}

// Run processes events until the telephony stream ends, the AI transport
// drops, or ctx is cancelled. It owns the AI client lifecycle: the session
// is dialed on stream start and closed exactly once on the way out.
func (b *Bridge) Run(ctx context.Context) error {
	defer b.persistWG.Wait()
	defer b.closeAI()

	var aiEvents <-chan any
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-b.stream.Events():
			if !ok {
				return nil
			}
			done, err := b.handleTelephonyEvent(ctx, evt)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			if b.ai != nil && aiEvents == nil {
				aiEvents = b.ai.Events()
			}
		case evt, ok := <-aiEvents:
			if !ok {
				return ErrAITransport
			}
			b.handleAIEvent(evt)
		}
	}
}

func (b *Bridge) handleTelephonyEvent(ctx context.Context, evt any) (done bool, err error) {
	switch msg := evt.(type) {
	case protocol.Connected:
		b.metrics.WSMessages.WithLabelValues("inbound", "connected").Inc()
	case protocol.StreamStart:
		b.metrics.WSMessages.WithLabelValues("inbound", "start").Inc()
		b.streamSID = msg.StreamSID
		b.callSID = msg.CallSID
		ai, dialErr := b.dialAI(ctx, msg.CallSID)
		if dialErr != nil {
			return false, fmt.Errorf("connect ai session: %w", dialErr)
		}
		b.ai = ai
		if b.OnStreamStart != nil {
			b.OnStreamStart(msg.CallSID, msg.StreamSID)
		}
		b.metrics.CallEvents.WithLabelValues("stream_started").Inc()
		log.Printf("bridge: stream %s started for call %s", b.streamSID, b.callSID)
	case protocol.MediaFrame:
		b.metrics.WSMessages.WithLabelValues("inbound", "media").Inc()
		if msg.TimestampMS >= b.latestMediaTS {
			b.latestMediaTS = msg.TimestampMS
		} else {
			b.anomaly("media_timestamp_regression", "stream %s: media timestamp went backwards (%d < %d)", b.streamSID, msg.TimestampMS, b.latestMediaTS)
		}
		if b.ai == nil {
			b.anomaly("media_before_start", "stream %s: media frame before start", b.streamSID)
			return false, nil
		}
		// Caller audio is always forwarded, speaking or not; server-side
		// VAD depends on hearing it promptly.
		if appendErr := b.ai.AppendAudio(msg.Payload); appendErr != nil {
			return false, fmt.Errorf("append audio: %w", appendErr)
		}
	case protocol.MarkAck:
		b.metrics.WSMessages.WithLabelValues("inbound", "mark").Inc()
		b.handleMarkAck(msg.Name)
	case protocol.StreamStop:
		b.metrics.WSMessages.WithLabelValues("inbound", "stop").Inc()
		b.metrics.CallEvents.WithLabelValues("stream_stopped").Inc()
		log.Printf("bridge: stream %s stopped", b.streamSID)
		return true, nil
	default:
		b.anomaly("unexpected_telephony_event", "stream %s: unexpected event %T", b.streamSID, evt)
	}
	return false, nil
}

func (b *Bridge) handleMarkAck(name string) {
	if len(b.markQueue) == 0 {
		b.anomaly("unexpected_mark_ack", "stream %s: mark ack %q with empty queue", b.streamSID, name)
		return
	}
	head := b.markQueue[0]
	b.markQueue = b.markQueue[1:]
	if head != name {
		// Bookkeeping only; a reordered ack cannot corrupt playback.
		b.anomaly("mark_ack_out_of_order", "stream %s: mark ack %q, expected %q", b.streamSID, name, head)
	}
}

func (b *Bridge) handleAIEvent(evt any) {
	switch msg := evt.(type) {
	case protocol.AIAudioDelta:
		b.metrics.AIEvents.WithLabelValues("audio_delta").Inc()
		b.handleAudioDelta(msg)
	case protocol.AISpeechStarted:
		b.metrics.AIEvents.WithLabelValues("speech_started").Inc()
		b.handleSpeechStarted()
	case protocol.AIResponseDone:
		b.metrics.AIEvents.WithLabelValues("response_done").Inc()
		b.handleResponseDone(msg)
	case protocol.AIError:
		b.metrics.AIEvents.WithLabelValues("error").Inc()
		log.Printf("bridge: stream %s: ai error %s: %s", b.streamSID, msg.Code, msg.Message)
	case protocol.AIUnknown:
		b.metrics.AIEvents.WithLabelValues("other").Inc()
	}
}

func (b *Bridge) handleAudioDelta(msg protocol.AIAudioDelta) {
	if msg.Payload == "" {
		return
	}
	if !b.responseActive {
		// Anchor when, in caller-clock time, this response started being
		// heard. Only the inbound media timestamp can answer that.
		b.responseActive = true
		b.responseStartTS = b.latestMediaTS
	}
	b.lastAssistantItem = msg.ItemID

	if err := b.stream.SendAudio(msg.Payload); err != nil {
		log.Printf("bridge: stream %s: send audio: %v", b.streamSID, err)
		return
	}
	b.metrics.WSMessages.WithLabelValues("outbound", "media").Inc()

	name := uuid.NewString()
	if err := b.stream.SendMark(name); err != nil {
		log.Printf("bridge: stream %s: send mark: %v", b.streamSID, err)
		return
	}
	b.metrics.WSMessages.WithLabelValues("outbound", "mark").Inc()
	b.markQueue = append(b.markQueue, name)
}

func (b *Bridge) handleSpeechStarted() {
	if !b.responseActive {
		// Nothing in flight to truncate.
		b.anomaly("speech_started_idle", "stream %s: speech started while idle", b.streamSID)
		return
	}

	elapsed := b.latestMediaTS - b.responseStartTS
	if err := b.ai.Truncate(b.lastAssistantItem, elapsed); err != nil {
		log.Printf("bridge: stream %s: truncate %s: %v", b.streamSID, b.lastAssistantItem, err)
	}
	if err := b.stream.SendClear(); err != nil {
		log.Printf("bridge: stream %s: send clear: %v", b.streamSID, err)
	} else {
		b.metrics.WSMessages.WithLabelValues("outbound", "clear").Inc()
	}

	b.markQueue = nil
	b.clearResponse()
	b.metrics.Interruptions.Inc()
	b.metrics.TruncateOffsetMS.Observe(float64(elapsed))
	b.metrics.CallEvents.WithLabelValues("interrupted").Inc()
	log.Printf("bridge: stream %s: truncated response at %dms", b.streamSID, elapsed)
}

func (b *Bridge) handleResponseDone(msg protocol.AIResponseDone) {
	itemID := b.lastAssistantItem
	if itemID == "" {
		itemID = msg.ResponseID
	}
	b.persistResponse(itemID, msg.Raw)
	b.clearResponse()
	b.metrics.CallEvents.WithLabelValues("response_done").Inc()
}

// persistResponse dispatches both sink writes off the hot path. Failures are
// logged and counted, never surfaced to the call.
func (b *Bridge) persistResponse(itemID string, payload json.RawMessage) {
	callSID := b.callSID
	b.persistWG.Add(1)
	// Each write gets its own budget so a slow transcript write cannot
	// starve the update write.
	go func() {
		defer b.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.sink.SaveTranscript(ctx, persist.TranscriptRecord{
			CallSID: callSID,
			ItemID:  itemID,
			Payload: payload,
		}); err != nil {
			b.metrics.PersistenceFailures.WithLabelValues("transcript").Inc()
			log.Printf("bridge: call %s: save transcript: %v", callSID, err)
		}
	}()

	b.persistWG.Add(1)
	go func() {
		defer b.persistWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := b.sink.SaveUpdate(ctx, persist.UpdateRecord{
			CallSID:   callSID,
			EventType: "response.done",
			Payload:   payload,
		}); err != nil {
			b.metrics.PersistenceFailures.WithLabelValues("update").Inc()
			log.Printf("bridge: call %s: save update: %v", callSID, err)
		}
	}()
}

func (b *Bridge) clearResponse() {
	b.responseActive = false
	b.responseStartTS = 0
	b.lastAssistantItem = ""
}

func (b *Bridge) closeAI() {
	if b.ai != nil {
		_ = b.ai.Close()
	}
}

func (b *Bridge) anomaly(kind, format string, args ...any) {
	b.metrics.ProtocolAnomalies.WithLabelValues(kind).Inc()
	log.Printf("bridge: %s", fmt.Sprintf(format, args...))
}
