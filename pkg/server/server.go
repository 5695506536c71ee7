package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/events"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultAddr     = ":3000"
	shutdownTimeout = 30 * time.Second
)

// Server exposes the chat proxy and the per-participant phase endpoints.
type Server struct {
	addr     string
	router   *router.Router
	catalog  *models.Catalog
	store    store.RecordStore
	minTurns int

	events      *events.EventRouter
	eventsTopic string

	sessions *sessions
	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

type Option func(*Server)

func WithAddr(addr string) Option {
	return func(s *Server) {
		if addr != "" {
			s.addr = addr
		}
	}
}

func WithMinTurns(n int) Option {
	return func(s *Server) {
		s.minTurns = n
	}
}

// WithEventRouter runs er alongside the HTTP server and logs every event
// published on topic.
func WithEventRouter(er *events.EventRouter, topic string) Option {
	return func(s *Server) {
		s.events = er
		s.eventsTopic = topic
	}
}

func New(r *router.Router, st store.RecordStore, options ...Option) (*Server, error) {
	if r == nil || st == nil {
		return nil, errors.New("server needs a router and a store")
	}
	s := &Server{
		addr:     DefaultAddr,
		router:   r,
		catalog:  r.Catalog(),
		store:    st,
		minTurns: orchestrator.DefaultMinTurns,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, o := range options {
		o(s)
	}
	s.sessions = newSessions(st, r, s.catalog, s.minTurns)
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/conversation", s.handleConversation)
	mux.HandleFunc("/api/models", s.handleModels)
	mux.HandleFunc("/api/export", s.handleExport)
	mux.HandleFunc("/api/phases/", s.handlePhase)
	mux.HandleFunc("/ws/phases/", s.handleWS)
	return mux
}

// Run serves until ctx is cancelled, then shuts the HTTP server down and
// closes every open conversation.
func (s *Server) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)

	if s.events != nil {
		s.events.AddHandler("log-events", s.eventsTopic, s.events.LogEvents)
		eg.Go(func() error {
			return s.events.Run(ctx)
		})
	}

	eg.Go(func() error {
		log.Info().Str("addr", s.addr).Msg("starting server")
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
		s.sessions.closeAll()
		if s.events != nil {
			if err := s.events.Close(); err != nil {
				log.Error().Err(err).Msg("event router close error")
			}
		}
		log.Info().Msg("server shutdown complete")
		return nil
	})

	return eg.Wait()
}
