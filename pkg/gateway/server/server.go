// Package server assembles the HTTP surface: REST resources for cases
// and sessions, the live websocket channel, and the health endpoints,
// wrapped in the shared middleware chain.
package server

import (
	"log/slog"
	"net/http"

	"github.com/verdictech/gavel/pkg/core/engine"
	"github.com/verdictech/gavel/pkg/gateway/config"
	"github.com/verdictech/gavel/pkg/gateway/handlers"
	"github.com/verdictech/gavel/pkg/gateway/lifecycle"
	"github.com/verdictech/gavel/pkg/gateway/live/conns"
	"github.com/verdictech/gavel/pkg/gateway/live/hub"
	"github.com/verdictech/gavel/pkg/gateway/mw"
	"github.com/verdictech/gavel/pkg/identity"
)

// Deps carries everything the route table needs.
type Deps struct {
	Config    config.Config
	Logger    *slog.Logger
	Engine    *engine.Engine
	Verifier  identity.Verifier
	Lifecycle *lifecycle.Lifecycle
	Hub       *hub.Hub
	Conns     *conns.Tracker
}

type Server struct {
	cfg       config.Config
	logger    *slog.Logger
	lifecycle *lifecycle.Lifecycle
	verifier  identity.Verifier
	mux       *http.ServeMux
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lc := deps.Lifecycle
	if lc == nil {
		lc = &lifecycle.Lifecycle{}
	}
	h := deps.Hub
	if h == nil {
		h = hub.New()
	}
	tracker := deps.Conns
	if tracker == nil {
		tracker = conns.NewTracker()
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    logger,
		lifecycle: lc,
		verifier:  deps.Verifier,
		mux:       http.NewServeMux(),
	}
	s.routes(deps.Engine, h, tracker)
	return s
}

func (s *Server) routes(eng *engine.Engine, h *hub.Hub, tracker *conns.Tracker) {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg, Lifecycle: s.lifecycle})

	cases := handlers.CasesHandler{Engine: eng, Logger: s.logger}
	s.mux.Handle("/v1/cases", cases)
	s.mux.Handle("/v1/cases/", cases)

	sessions := handlers.SessionsHandler{Engine: eng, Logger: s.logger}
	s.mux.Handle("/v1/sessions", sessions)
	s.mux.Handle("/v1/sessions/", sessions)

	s.mux.Handle("/v1/live", handlers.LiveHandler{
		Config:    s.cfg,
		Engine:    eng,
		Hub:       h,
		Conns:     tracker,
		Lifecycle: s.lifecycle,
		Logger:    s.logger,
	})

	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// publicPath lists routes reachable without a bearer token: health
// probes, joining by code, and the live channel (which authenticates
// the session through the join code itself).
func publicPath(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/v1/sessions/join", "/v1/live":
		return true
	}
	return false
}

func (s *Server) Handler() http.Handler {
	var routed http.Handler = s.mux
	routed = s.limitBody(routed)

	authed := mw.Auth(s.cfg, s.verifier, routed)
	split := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPath(r.URL.Path) {
			routed.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})

	var h http.Handler = split
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// limitBody caps request bodies on the REST surface. The live channel
// is exempt; its frames are bounded by the websocket read limit.
func (s *Server) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.MaxBodyBytes > 0 && r.URL.Path != "/v1/live" && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}
