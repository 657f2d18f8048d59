package gateway

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/matzehuels/graphsync/pkg/buildinfo"
	"github.com/matzehuels/graphsync/pkg/errors"
	"github.com/matzehuels/graphsync/pkg/fanout"
)

// DefaultMaxBodyBytes bounds a /sync request body.
const DefaultMaxBodyBytes = 10 << 20

// ServerOptions configures the HTTP surface. The zero value is usable.
type ServerOptions struct {
	// MaxBodyBytes bounds /sync request bodies. Zero uses DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// MaxDepth rejects subgraph queries deeper than this. Zero is unlimited.
	MaxDepth int

	// AllowedOrigins restricts websocket upgrades by Origin header. Empty
	// allows every origin.
	AllowedOrigins []string

	// WebSocket tunes each event channel connection.
	WebSocket fanout.WebSocketOptions

	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler

	// Logger receives access logs. Nil means log.Default().
	Logger *log.Logger
}

// Server is the HTTP surface of a [Gateway]:
//
//	POST /sync              apply one mutation
//	GET  /graph             full graph, or ?center=<id>&depth=<n> subgraph
//	GET  /health            liveness and counts
//	GET  /events, /ws       websocket event channel
//	GET  /version           build information
//	GET  /metrics           Prometheus exposition, when configured
type Server struct {
	gw       *Gateway
	opts     ServerOptions
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *log.Logger
}

// NewServer builds the router for gw.
func NewServer(gw *Gateway, opts ServerOptions) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.WebSocket.Logger == nil {
		opts.WebSocket.Logger = opts.Logger
	}

	s := &Server{gw: gw, opts: opts, logger: opts.Logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.accessLog)
	r.Use(s.recoverer)

	r.Post("/sync", s.handleSync)
	r.Get("/graph", s.handleGraph)
	r.Get("/health", s.handleHealth)
	r.Get("/events", s.handleEvents)
	r.Get("/ws", s.handleEvents)
	r.Get("/version", s.handleVersion)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.New(errors.ErrCodeNotFound, "no route for %s", r.URL.Path))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, errors.New(errors.ErrCodeMethodNotAllowed, "%s not allowed on %s", r.Method, r.URL.Path))
	})

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// =============================================================================
// Handlers
// =============================================================================

type syncResponse struct {
	Success bool   `json:"success"`
	Type    string `json:"type"`
	Applied bool   `json:"applied"`
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)

	var m Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			writeError(w, errors.New(errors.ErrCodePayloadTooLarge, "request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, errors.Wrap(errors.ErrCodeInvalidInput, err, "malformed sync request"))
		return
	}
	if m.Type == "" {
		writeError(w, errors.New(errors.ErrCodeInvalidInput, "sync request requires a type"))
		return
	}

	res, err := s.gw.Apply(r.Context(), m)
	if err != nil {
		if errors.GetCode(err) == errors.ErrCodeInternal {
			s.logger.Error("sync failed", "type", m.Type, "err", err)
		} else {
			s.logger.Warn("sync rejected", "type", m.Type, "err", err)
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{Success: true, Type: res.Type, Applied: res.Applied})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	center := q.Get("center")
	if center == "" {
		writeJSON(w, http.StatusOK, s.gw.Graph(r.Context()))
		return
	}

	depth, err := strconv.Atoi(q.Get("depth"))
	if err != nil {
		depth = DefaultDepth
	}
	depth = max(depth, 0)
	if err := errors.ValidateDepth(depth, s.opts.MaxDepth); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.gw.Subgraph(r.Context(), center, depth))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gw.Health())
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Current())
}

// handleEvents upgrades to a websocket, subscribes it to the hub and blocks
// until the client goes away or the hub shuts down.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		s.logger.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	sub := fanout.NewWebSocketSubscriber(conn, s.opts.WebSocket)
	handle, err := s.gw.hub.Subscribe(sub)
	if err != nil {
		s.logger.Warn("subscribe failed", "remote", r.RemoteAddr, "err", err)
		sub.Close()
		sub.Wait()
		return
	}

	sub.ReadLoop()
	s.gw.hub.Unsubscribe(handle)
	sub.Wait()
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) || strings.EqualFold(allowed, u.Host) {
			return true
		}
	}
	return false
}

// =============================================================================
// Responses
// =============================================================================

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err to its status code. Internal failures are reported
// without detail.
func writeError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	if code == "" {
		code = errors.ErrCodeInternal
	}
	status := errors.HTTPStatus(code)

	msg := errors.UserMessage(err)
	if status >= http.StatusInternalServerError {
		msg = "internal server error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
