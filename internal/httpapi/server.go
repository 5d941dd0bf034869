package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/thicket/internal/config"
	"github.com/antoniostano/thicket/internal/contracts"
	"github.com/antoniostano/thicket/internal/journal"
	"github.com/antoniostano/thicket/internal/memory"
	"github.com/antoniostano/thicket/internal/observability"
	"github.com/antoniostano/thicket/internal/oracle"
	"github.com/antoniostano/thicket/internal/protocol"
	"github.com/antoniostano/thicket/internal/turn"
	"github.com/antoniostano/thicket/internal/world"
)

// Turns is the slice of the orchestrator the API drives.
type Turns interface {
	ExecuteTurn(ctx context.Context) (turn.Result, error)
	CollectIntents(ctx context.Context) []turn.Intent
	Run(ctx context.Context, req turn.RunRequest) turn.RunReport
	Phase() turn.Phase
}

// History serves recorded turns. It is optional.
type History interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
	Get(ctx context.Context, turnID string) (turn.Result, error)
}

type Deps struct {
	Store    *world.Store
	Ledger   *contracts.Ledger
	Memories memory.Store
	Turns    Turns
	History  History
	Oracle   oracle.Oracle
	Hub      *Hub
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

type Server struct {
	cfg      config.Config
	store    *world.Store
	ledger   *contracts.Ledger
	memories memory.Store
	turns    Turns
	history  History
	oracle   oracle.Oracle
	hub      *Hub
	metrics  *observability.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	static   http.Handler

	// base outlives requests; background runs use it.
	base context.Context

	runMu   sync.Mutex
	stopRun context.CancelFunc
}

func New(ctx context.Context, cfg config.Config, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Hub == nil {
		deps.Hub = NewHub(deps.Metrics)
	}
	return &Server{
		cfg:      cfg,
		store:    deps.Store,
		ledger:   deps.Ledger,
		memories: deps.Memories,
		turns:    deps.Turns,
		history:  deps.History,
		oracle:   deps.Oracle,
		hub:      deps.Hub,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
		static:   newStaticHandler(),
		base:     ctx,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only same-origin browsers may drive turns.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin.
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
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Get("/ui", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/ui/", http.StatusTemporaryRedirect)
	})
	r.Handle("/ui/*", http.StripPrefix("/ui/", s.static))

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Get("/v1/state", s.handleState)
	r.Get("/v1/contracts/{id}", s.handleGetContract)
	r.Get("/v1/actors/{name}/memory", s.handleGetMemory)
	r.Post("/v1/turns/collect", s.handleCollect)
	r.Post("/v1/turns/execute", s.handleExecute)
	r.Post("/v1/turns/stop", s.handleStop)
	r.Get("/v1/turns/history", s.handleHistory)
	r.Get("/v1/turns/ws", s.handleTurnsWS)
	r.Get("/v1/turns/{id}", s.handleGetTurn)
	r.Get("/v1/perf/phases", s.handlePerfPhases)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"phase":       s.turns.Phase(),
		"actors":      len(s.store.Names()),
		"journal":     s.history != nil,
		"subscribers": s.hub.Subscribers(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.oracle.(oracle.Pinger); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := p.Ping(ctx); err != nil {
			respondError(w, http.StatusServiceUnavailable, "oracle_unreachable", err.Error())
			return
		}
	}
	body := map[string]any{"status": "ready"}
	if m, ok := s.oracle.(oracle.ModelLister); ok {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if models, err := m.Models(ctx); err == nil && len(models) > 0 {
			body["models"] = models
		}
	}
	respondJSON(w, http.StatusOK, body)
}

type stateResponse struct {
	world.State
	Locations []world.Location `json:"locations"`
	Phase     turn.Phase       `json:"phase"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, stateResponse{
		State:     s.store.Snapshot(),
		Locations: s.store.Locations(),
		Phase:     s.turns.Phase(),
	})
}

func (s *Server) handleGetContract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, ok := s.store.Contract(id)
	if !ok {
		respondError(w, http.StatusNotFound, "contract_not_found", "no contract "+id)
		return
	}
	entries, err := s.ledger.Transcript(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transcript_unreadable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"contract":   c,
		"transcript": entries,
	})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if _, ok := s.store.Actor(name); !ok {
		respondError(w, http.StatusNotFound, "actor_not_found", "no actor "+name)
		return
	}
	tl, err := s.memories.Read(r.Context(), name)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "memory_unreadable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, tl)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	intents := s.turns.CollectIntents(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{"intents": intents})
}

type executeRequest struct {
	Repeat  *int `json:"repeat"`
	Endless bool `json:"endless"`
	DelayMS *int `json:"delay_ms"`
}

type executeResponse struct {
	turn.RunReport
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	delay := s.cfg.DefaultTurnDelay
	if req.DelayMS != nil {
		if *req.DelayMS < 0 {
			respondError(w, http.StatusBadRequest, "invalid_request", "delay_ms must be >= 0")
			return
		}
		delay = time.Duration(*req.DelayMS) * time.Millisecond
	}
	if req.Repeat != nil && *req.Repeat < 1 {
		respondError(w, http.StatusBadRequest, "invalid_request", "repeat must be >= 1")
		return
	}
	run := turn.RunRequest{Repeat: req.Repeat, Endless: req.Endless, Delay: delay}

	if req.Endless {
		if !s.startBackground(run) {
			respondError(w, http.StatusConflict, "run_in_progress", "an endless run is already active")
			return
		}
		respondJSON(w, http.StatusAccepted, map[string]any{"status": "Endless mode started"})
		return
	}

	report := s.turns.Run(r.Context(), run)
	resp := executeResponse{RunReport: report}
	status := http.StatusOK
	if report.Err != nil {
		resp.Error = report.Err.Error()
		var terr *turn.Error
		if errors.As(report.Err, &terr) {
			resp.ErrorKind = string(terr.Kind)
		}
		if report.TurnsExecuted == 0 {
			status = statusForTurnError(report.Err)
		}
	}
	respondJSON(w, status, resp)
}

// startBackground launches an endless run bound to the server lifetime. Only one may be active.
func (s *Server) startBackground(run turn.RunRequest) bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.stopRun != nil {
		return false
	}
	ctx, cancel := context.WithCancel(s.base)
	s.stopRun = cancel
	go func() {
		report := s.turns.Run(ctx, run)
		s.logger.Info("endless run finished", "turns", report.TurnsExecuted, "status", report.Status)
		s.runMu.Lock()
		s.stopRun = nil
		s.runMu.Unlock()
		cancel()
	}()
	return true
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.runMu.Lock()
	stop := s.stopRun
	s.runMu.Unlock()
	if stop == nil {
		respondError(w, http.StatusNotFound, "no_run", "no endless run is active")
		return
	}
	stop()
	respondJSON(w, http.StatusAccepted, map[string]any{"status": "stopping"})
}

func statusForTurnError(err error) int {
	var terr *turn.Error
	if !errors.As(err, &terr) {
		return http.StatusInternalServerError
	}
	switch terr.Kind {
	case turn.KindArbiter, turn.KindNoIntents:
		return http.StatusBadGateway
	case turn.KindCanceled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "journal_disabled", "turn journal is disabled")
		return
	}
	limit := 20
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal_unreadable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"turns": entries})
}

func (s *Server) handleGetTurn(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, "journal_disabled", "turn journal is disabled")
		return
	}
	res, err := s.history.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, journal.ErrNotFound) {
		respondError(w, http.StatusNotFound, "turn_not_found", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "journal_unreadable", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleTurnsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events := s.hub.subscribe()
	defer s.hub.unsubscribe(events)
	// replies carries answers to this client only; events are shared with every subscriber.
	replies := make(chan any, 16)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case msg = <-events:
			case msg = <-replies:
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.hub.count("outbound", t)
			}
		}
	}()

	reply := func(msg any) {
		select {
		case replies <- msg:
		default:
		}
	}

	conn.SetReadLimit(64 << 10)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		if msgType != websocket.TextMessage {
			continue
		}
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reply(protocol.ErrorEvent{Type: protocol.TypeErrorEvent, Code: "invalid_client_message", Detail: err.Error()})
			continue
		}
		ctl, ok := parsed.(protocol.ClientControl)
		if !ok {
			continue
		}
		s.hub.count("inbound", ctl.Type)
		switch ctl.Action {
		case protocol.ActionPing:
			reply(protocol.SystemEvent{Type: protocol.TypeSystemEvent, Code: "pong"})
		case protocol.ActionExecuteTurn:
			// Progress arrives through the hub; the turn outlives this connection.
			go func() {
				if _, err := s.turns.ExecuteTurn(s.base); err != nil {
					s.logger.Warn("websocket-triggered turn failed", "err", err)
				}
			}()
		}
	}

	cancel()
	<-writerDone
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		// A truncated body reports io.ErrUnexpectedEOF and must not pass as empty.
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientControl:
		return m.Type, true
	case protocol.TurnStarted:
		return m.Type, true
	case protocol.PhaseChanged:
		return m.Type, true
	case protocol.IntentCollected:
		return m.Type, true
	case protocol.IntentDropped:
		return m.Type, true
	case protocol.TurnResolved:
		return m.Type, true
	case protocol.TurnCompleted:
		return m.Type, true
	case protocol.TurnFailed:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
