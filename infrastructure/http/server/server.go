// Package server exposes the pairing and chat operations over HTTP,
// and streams the events of a participant over a websocket.
package server

import (
	"chat-pair/domain"
	"chat-pair/errors"
	"chat-pair/infrastructure/http/api"
	"chat-pair/observability"
	"chat-pair/services"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gorilla/mux"
	"github.com/samber/lo"
)

const (
	DefaultConnectionBufferSize = 64
	DefaultWriteTimeout         = 5 * time.Second
	maxBodySize                 = 1 << 16
)

type Config struct {
	ConnectionBufferSize int
	WriteTimeout         time.Duration
	// AllowedOrigins lists the origin patterns accepted on the event stream, all when empty.
	AllowedOrigins []string
}

type Server struct {
	router      *mux.Router
	log         *slog.Logger
	chatService services.IChatService
	monitoring  *observability.MonitoringManager
	config      Config
	server      *http.Server
}

// NewServer builds the API. monitoring may be nil, /health then only reports the queue size.
func NewServer(log *slog.Logger, chatService services.IChatService, monitoring *observability.MonitoringManager, config Config) *Server {
	config.ConnectionBufferSize = lo.CoalesceOrEmpty(config.ConnectionBufferSize, DefaultConnectionBufferSize)
	config.WriteTimeout = lo.CoalesceOrEmpty(config.WriteTimeout, DefaultWriteTimeout)
	s := &Server{
		router:      mux.NewRouter(),
		log:         log,
		chatService: chatService,
		monitoring:  monitoring,
		config:      config,
	}
	s.setupRoutes()
	return s
}

// Handle mounts an extra handler, the coordination relay for instance.
func (s *Server) Handle(path string, handler http.Handler) {
	s.router.Handle(path, handler)
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()

	queue := v1.PathPrefix("/queue").Subrouter()
	queue.HandleFunc("", s.handleJoin()).Methods(http.MethodPost)
	queue.HandleFunc("/size", s.handleQueueSize()).Methods(http.MethodGet)
	queue.HandleFunc("/{participantID}", s.handleLeave()).Methods(http.MethodDelete)
	queue.HandleFunc("/{participantID}/retry", s.handleRetry()).Methods(http.MethodPost)

	sessions := v1.PathPrefix("/sessions/{sessionID}").Subrouter()
	sessions.HandleFunc("", s.handleGetSession()).Methods(http.MethodGet)
	sessions.HandleFunc("", s.handleCloseSession()).Methods(http.MethodDelete)
	sessions.HandleFunc("/messages", s.handleSendMessage()).Methods(http.MethodPost)
	sessions.HandleFunc("/messages", s.handleGetMessages()).Methods(http.MethodGet)
	sessions.HandleFunc("/leave", s.handleLeaveSession()).Methods(http.MethodPost)
	sessions.HandleFunc("/typing", s.handleTyping()).Methods(http.MethodPost)

	v1.HandleFunc("/events/{participantID}", s.handleEvents()).Methods(http.MethodGet)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	s.log.Info("Starting HTTP server", "addr", addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.monitoring == nil {
			writeJSON(w, http.StatusOK, api.QueueSizeResponse{Size: s.chatService.QueueSize()})
			return
		}
		writeJSON(w, http.StatusOK, s.monitoring.Refresh(s.chatService.QueueSize()))
	}
}

func (s *Server) handleJoin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.JoinRequest
		if !s.decode(w, r, &req) {
			return
		}
		participant, result, err := s.chatService.Join(r.Context(), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		response := api.JoinResponse{Participant: api.FromParticipant(participant), Position: result.Position}
		if result.Paired() {
			response.Session = lo.ToPtr(api.FromSession(*result.Session))
		}
		writeJSON(w, http.StatusCreated, response)
	}
}

func (s *Server) handleQueueSize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.QueueSizeResponse{Size: s.chatService.QueueSize()})
	}
}

func (s *Server) handleLeave() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.chatService.Leave(r.Context(), mux.Vars(r)["participantID"])
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleRetry() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.chatService.Retry(r.Context(), mux.Vars(r)["participantID"])
		if err != nil {
			s.writeError(w, err)
			return
		}
		response := api.JoinResponse{Position: result.Position}
		if result.Paired() {
			response.Session = lo.ToPtr(api.FromSession(*result.Session))
		}
		writeJSON(w, http.StatusOK, response)
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.chatService.Session(sessionID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromSession(session))
	}
}

func (s *Server) handleCloseSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := s.chatService.CloseSession(r.Context(), sessionID(r))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromSession(session))
	}
}

func (s *Server) handleSendMessage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req services.SendMessageRequest
		if !s.decode(w, r, &req) {
			return
		}
		message, err := s.chatService.SendMessage(r.Context(), sessionID(r), req)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, api.FromMessage(message))
	}
}

func (s *Server) handleGetMessages() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messages, err := s.chatService.Messages(sessionID(r), r.URL.Query().Get("participantId"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromMessages(messages))
	}
}

func (s *Server) handleLeaveSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ParticipantID string `json:"participantId"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		session, err := s.chatService.LeaveSession(r.Context(), sessionID(r), req.ParticipantID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.FromSession(session))
	}
}

func (s *Server) handleTyping() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ParticipantID string `json:"participantId"`
		}
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.chatService.Typing(r.Context(), sessionID(r), req.ParticipantID); err != nil {
			s.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleEvents upgrades to a websocket and streams the events of a participant until it disconnects.
// Proper cleanup is ensured via deferred disconnection so that the registry never keeps a dead sink.
func (s *Server) handleEvents() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		participantID := mux.Vars(r)["participantID"]
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns:     s.config.AllowedOrigins,
			InsecureSkipVerify: len(s.config.AllowedOrigins) == 0,
		})
		if err != nil {
			s.log.Warn("Event stream handshake failed", "participant_id", participantID, "error", err)
			return
		}
		defer conn.CloseNow()

		sink := NewConnectionSink(s.log, participantID, s.config.ConnectionBufferSize)
		s.chatService.Connect(r.Context(), participantID, sink)
		defer s.chatService.Disconnect(participantID, sink)

		// The client never writes: CloseRead reports its departure through ctx.
		ctx := conn.CloseRead(r.Context())
		for {
			select {
			case <-ctx.Done():
				s.log.Debug("Participant disconnected from event stream", "participant_id", participantID)
				return
			case evt := <-sink.ConnectedUserEvent:
				frame, ok := api.FromEvent(evt)
				if !ok {
					continue
				}
				writeCtx, cancel := context.WithTimeout(ctx, s.config.WriteTimeout)
				err := wsjson.Write(writeCtx, conn, frame)
				cancel()
				if err != nil {
					s.log.Error("failed to push event to stream",
						"participant_id", participantID, "type", frame.Type, "error", err)
					return
				}
			}
		}
	}
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err := decoder.Decode(v); err != nil {
		s.writeError(w, errors.ErrInvalidRequest)
		return false
	}
	return true
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errors.MapToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	writeJSON(w, status, api.ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func sessionID(r *http.Request) domain.SessionID {
	return domain.SessionID(mux.Vars(r)["sessionID"])
}
