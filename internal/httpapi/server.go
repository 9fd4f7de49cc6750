package httpapi

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxline/voxline/internal/bridge"
	"github.com/voxline/voxline/internal/calls"
	"github.com/voxline/voxline/internal/config"
	"github.com/voxline/voxline/internal/observability"
	"github.com/voxline/voxline/internal/persist"
	"github.com/voxline/voxline/internal/telephony"
)

// CallOriginator places outbound calls that land in this service's
// media-stream listener.
type CallOriginator interface {
	Call(ctx context.Context, to, twiml string) (string, error)
}

type Server struct {
	cfg        config.Config
	registry   *calls.Registry
	metrics    *observability.Metrics
	sink       persist.Sink
	dialAI     bridge.AIDialer
	originator CallOriginator
	upgrader   websocket.Upgrader
}

func New(cfg config.Config, registry *calls.Registry, metrics *observability.Metrics, sink persist.Sink, dialAI bridge.AIDialer, originator CallOriginator) *Server {
	return &Server{
		cfg:        cfg,
		registry:   registry,
		metrics:    metrics,
		sink:       sink,
		dialAI:     dialAI,
		originator: originator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Twilio connects without an Origin header. Browsers are
				// held to same-origin so a third-party page cannot attach
				// to the media listener.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/incoming-call", s.handleIncomingCall)
	r.Post("/incoming-call", s.handleIncomingCall)
	r.Get("/media-stream", s.handleMediaStream)
	r.Post("/v1/calls", s.handleOriginateCall)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ready",
		"active_calls": s.registry.ActiveCount(),
	})
}

// TwiML document returned to Twilio when a call arrives.

type twimlResponse struct {
	XMLName xml.Name      `xml:"Response"`
	Say     string        `xml:"Say,omitempty"`
	Connect *twimlConnect `xml:"Connect,omitempty"`
}

type twimlConnect struct {
	Stream twimlStream `xml:"Stream"`
}

type twimlStream struct {
	URL string `xml:"url,attr"`
}

// streamHost picks the publicly reachable host for the stream URL. The URL
// handed to Twilio must point back at this listener, so the configured
// public host wins over whatever host header the request carried.
func (s *Server) streamHost(r *http.Request) string {
	if h := strings.TrimSpace(s.cfg.PublicHost); h != "" {
		return h
	}
	if r != nil {
		return r.Host
	}
	return ""
}

func (s *Server) twimlDocument(host string) ([]byte, error) {
	doc := twimlResponse{
		Say: s.cfg.GreetingText,
		Connect: &twimlConnect{
			Stream: twimlStream{URL: "wss://" + host + "/media-stream"},
		},
	}
	body, err := xml.Marshal(doc)
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	host := s.streamHost(r)
	if host == "" {
		respondError(w, http.StatusInternalServerError, "no_public_host", "public host is not configured")
		return
	}
	body, err := s.twimlDocument(host)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "twiml_failed", err.Error())
		return
	}
	s.metrics.CallEvents.WithLabelValues("incoming_call").Inc()
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

type originateRequest struct {
	To string `json:"to"`
}

type originateResponse struct {
	CallSID string `json:"call_sid"`
}

func (s *Server) handleOriginateCall(w http.ResponseWriter, r *http.Request) {
	if s.originator == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "call origination is not configured")
		return
	}

	var req originateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.To) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "destination number is required")
		return
	}

	host := s.streamHost(r)
	if host == "" {
		respondError(w, http.StatusInternalServerError, "no_public_host", "public host is not configured")
		return
	}
	twiml, err := s.twimlDocument(host)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "twiml_failed", err.Error())
		return
	}

	sid, err := s.originator.Call(r.Context(), req.To, string(twiml))
	if err != nil {
		var apiErr *telephony.OriginateError
		if errors.As(err, &apiErr) {
			respondError(w, http.StatusBadGateway, "originate_failed", apiErr.Message)
			return
		}
		respondError(w, http.StatusInternalServerError, "originate_failed", err.Error())
		return
	}

	s.metrics.CallEvents.WithLabelValues("outbound_call").Inc()
	respondJSON(w, http.StatusCreated, originateResponse{CallSID: sid})
}

func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	call := s.registry.Register()
	s.metrics.ActiveCalls.Set(float64(s.registry.ActiveCount()))
	s.metrics.CallEvents.WithLabelValues("ws_connected").Inc()

	stream := telephony.NewStream(conn)
	b := bridge.New(stream, s.dialAI, s.sink, s.metrics)
	b.OnStreamStart = func(callSID, streamSID string) {
		_ = s.registry.SetStream(call.ID, callSID, streamSID)
	}

	if err := b.Run(r.Context()); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("httpapi: call %s ended: %v", call.ID, err)
	}
	_ = stream.Close()
	_, _ = s.registry.End(call.ID)
	s.metrics.ActiveCalls.Set(float64(s.registry.ActiveCount()))
	s.metrics.CallEvents.WithLabelValues("ws_disconnected").Inc()
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(out)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
