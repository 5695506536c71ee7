package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// wsFrame is the single frame shape in both directions. Inbound types are
// submit, cancel, model and status; outbound types are token, done, error
// and status.
type wsFrame struct {
	Type    string                `json:"type"`
	Text    string                `json:"text,omitempty"`
	Model   string                `json:"model,omitempty"`
	Delta   string                `json:"delta,omitempty"`
	Message *conversation.Message `json:"message,omitempty"`
	Error   string                `json:"error,omitempty"`
	Kind    string                `json:"kind,omitempty"`
	Status  *orchestrator.Status  `json:"status,omitempty"`
}

type wsConn struct {
	conn *websocket.Conn
	log  zerolog.Logger

	writeMu sync.Mutex
	pumps   sync.WaitGroup
}

func (c *wsConn) send(f wsFrame) {
	b, err := json.Marshal(f)
	if err != nil {
		c.log.Error().Err(err).Msg("could not encode frame")
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
		c.log.Debug().Err(err).Str("type", f.Type).Msg("ws write failed")
	}
}

func (c *wsConn) sendError(err error) {
	_, kind := classify(err)
	c.send(wsFrame{Type: "error", Error: err.Error(), Kind: kind})
}

func (c *wsConn) sendStatus(o *orchestrator.Orchestrator) {
	st := o.Status()
	c.send(wsFrame{Type: "status", Status: &st})
}

// handleWS drives one phase over a websocket. Replies in flight are
// cancelled when the socket closes.
func (s *Server) handleWS(w http.ResponseWriter, req *http.Request) {
	phase, err := conversation.ParsePhase(strings.Trim(strings.TrimPrefix(req.URL.Path, "/ws/phases/"), "/"))
	if err != nil {
		http.NotFound(w, req)
		return
	}

	id := sessionID(w, req)
	p := s.sessions.get(id)
	o, err := s.sessions.orchestrator(req.Context(), p, phase)
	if err != nil {
		writeError(w, err)
		return
	}

	header := http.Header{}
	if c := w.Header().Get("Set-Cookie"); c != "" {
		header.Set("Set-Cookie", c)
	}
	conn, err := s.upgrader.Upgrade(w, req, header)
	if err != nil {
		log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	c := &wsConn{
		conn: conn,
		log: log.With().
			Str("remote", conn.RemoteAddr().String()).
			Str("session_id", id).
			Str("phase", string(phase)).
			Logger(),
	}
	defer func() {
		cancel()
		c.pumps.Wait()
		_ = conn.Close()
		c.log.Debug().Msg("ws disconnected")
	}()

	c.sendStatus(o)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("ws read loop end")
			return
		}
		var in wsFrame
		if err := json.Unmarshal(data, &in); err != nil {
			c.send(wsFrame{Type: "error", Error: "invalid frame", Kind: "invalid_request"})
			continue
		}

		switch in.Type {
		case "submit":
			reply, err := o.Submit(ctx, in.Text)
			if err != nil {
				c.sendError(err)
				continue
			}
			c.pumps.Add(1)
			go c.pump(o, reply)
		case "cancel":
			o.Cancel()
			c.sendStatus(o)
		case "model":
			if err := o.SelectModel(ctx, in.Model); err != nil {
				c.sendError(err)
				continue
			}
			c.sendStatus(o)
		case "status":
			c.sendStatus(o)
		default:
			c.send(wsFrame{Type: "error", Error: "unknown frame type " + in.Type, Kind: "invalid_request"})
		}
	}
}

func (c *wsConn) pump(o *orchestrator.Orchestrator, reply *orchestrator.Reply) {
	defer c.pumps.Done()
	for delta := range reply.Tokens() {
		c.send(wsFrame{Type: "token", Delta: delta})
	}
	<-reply.Done()
	msg, err := reply.Result()
	if err != nil {
		c.sendError(err)
	} else {
		c.send(wsFrame{Type: "done", Message: &msg})
	}
	c.sendStatus(o)
}
