package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/cxcscmu/LLM-Interviewer/pkg/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SessionCookie carries the participant id. The record of a participant is
// stored under store.SessionKey(id).
const SessionCookie = "clue_session"

type participant struct {
	id     string
	handle *store.Handle

	mu     sync.Mutex
	phases map[conversation.Phase]*orchestrator.Orchestrator
}

type sessions struct {
	store    store.RecordStore
	router   *router.Router
	catalog  *models.Catalog
	minTurns int

	mu   sync.Mutex
	byID map[string]*participant
}

func newSessions(st store.RecordStore, r *router.Router, catalog *models.Catalog, minTurns int) *sessions {
	return &sessions{
		store:    st,
		router:   r,
		catalog:  catalog,
		minTurns: minTurns,
		byID:     map[string]*participant{},
	}
}

func (s *sessions) get(id string) *participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		p = &participant{
			id:     id,
			handle: store.NewHandle(s.store, store.SessionKey(id)),
			phases: map[conversation.Phase]*orchestrator.Orchestrator{},
		}
		s.byID[id] = p
	}
	return p
}

// orchestrator returns the phase orchestrator of p, creating it on first
// use. The interview is seeded from the session transcript stored at that
// moment.
func (s *sessions) orchestrator(ctx context.Context, p *participant, phase conversation.Phase) (*orchestrator.Orchestrator, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o, ok := p.phases[phase]; ok {
		return o, nil
	}

	options := []orchestrator.Option{
		orchestrator.WithMinTurns(s.minTurns),
		orchestrator.WithSessionID(p.id),
	}
	var (
		o   *orchestrator.Orchestrator
		err error
	)
	switch phase {
	case conversation.PhaseInterview:
		o, err = orchestrator.NewInterview(ctx, p.handle, s.router, s.catalog, options...)
	default:
		o, err = orchestrator.NewSession(ctx, p.handle, s.router, s.catalog, options...)
	}
	if err != nil {
		return nil, err
	}
	p.phases[phase] = o
	log.Debug().Str("session_id", p.id).Str("phase", string(phase)).Msg("mounted conversation")
	return o, nil
}

func (s *sessions) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.byID {
		p.mu.Lock()
		for _, o := range p.phases {
			_ = o.Close()
		}
		p.mu.Unlock()
	}
}

// sessionID reads the participant cookie, issuing a new id when it is
// missing or malformed.
func sessionID(w http.ResponseWriter, req *http.Request) string {
	if c, err := req.Cookie(SessionCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}
	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
