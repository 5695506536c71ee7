package server

import (
	"encoding/json"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/export"
	"github.com/cxcscmu/LLM-Interviewer/pkg/models"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/rs/zerolog/log"
)

// StreamErrorTrailer reports a failure that happened after the response
// body started streaming.
const StreamErrorTrailer = "X-Stream-Error"

const maxBodyBytes = 4 << 20

type chatRequest struct {
	Messages []conversation.Message `json:"messages"`
	Model    string                 `json:"model"`
	System   string                 `json:"system,omitempty"`
}

// handleChat proxies a full transcript to the selected model and streams the
// reply as plain text.
func (s *Server) handleChat(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var body chatRequest
	if err := decodeBody(w, req, &body); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	stream, err := s.router.Dispatch(req.Context(), router.Request{
		Model:    body.Model,
		Messages: body.Messages,
		System:   body.System,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	rc := beginStream(w)
	var writeErr error
	for chunk := range stream.Chunks() {
		if writeErr != nil {
			continue
		}
		if _, writeErr = w.Write([]byte(chunk.Delta)); writeErr == nil {
			writeErr = rc.Flush()
		}
		if writeErr != nil {
			log.Debug().Err(writeErr).Msg("client went away, cancelling stream")
			stream.Cancel()
		}
	}
	<-stream.Done()
	endStream(w, stream.Err())
}

func (s *Server) handleConversation(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p := s.sessions.get(sessionID(w, req))
	writeJSON(w, http.StatusOK, p.handle.Read(req.Context()))
}

type modelInfo struct {
	models.Selection
	Configured bool `json:"configured"`
}

type modelsResponse struct {
	Phase   conversation.Phase `json:"phase,omitempty"`
	Default string             `json:"default,omitempty"`
	Models  []modelInfo        `json:"models"`
}

// handleModels lists the pick-list of a phase, or the whole catalog when no
// phase is given.
func (s *Server) handleModels(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := modelsResponse{Models: []modelInfo{}}
	selections := s.catalog.All()
	if q := req.URL.Query().Get("phase"); q != "" {
		phase, err := conversation.ParsePhase(q)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		resp.Phase = phase
		resp.Default = s.catalog.Default(phase)
		selections = s.catalog.PickList(phase)
	}
	for _, sel := range selections {
		resp.Models = append(resp.Models, modelInfo{Selection: sel, Configured: s.router.Configured(sel.Value)})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport downloads the participant's record as JSON, Markdown or HTML.
func (s *Server) handleExport(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	p := s.sessions.get(sessionID(w, req))
	record := p.handle.Read(req.Context())
	name := export.FileName(record)

	var (
		b           []byte
		err         error
		contentType string
	)
	switch req.URL.Query().Get("format") {
	case "", "json":
		b, err = export.JSON(record)
		contentType = "application/json"
	case "md", "markdown":
		b = []byte(export.Markdown(record))
		name = strings.TrimSuffix(name, ".json") + ".md"
		contentType = "text/markdown; charset=utf-8"
	case "html":
		b, err = export.HTML(record)
		name = strings.TrimSuffix(name, ".json") + ".html"
		contentType = "text/html; charset=utf-8"
	default:
		writeBadRequest(w, "unknown export format")
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type selectModelRequest struct {
	Model string `json:"model"`
	// Random picks a model from the phase pick-list.
	Random bool `json:"random,omitempty"`
}

type submitRequest struct {
	Text string `json:"text"`
}

// handlePhase serves /api/phases/{phase}/{model,messages,cancel,status}.
func (s *Server) handlePhase(w http.ResponseWriter, req *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(req.URL.Path, "/api/phases/"), "/"), "/")
	if len(parts) != 2 {
		http.NotFound(w, req)
		return
	}
	phase, err := conversation.ParsePhase(parts[0])
	if err != nil {
		http.NotFound(w, req)
		return
	}
	action := parts[1]

	method := http.MethodPost
	if action == "status" {
		method = http.MethodGet
	}
	switch action {
	case "model", "messages", "cancel", "status":
	default:
		http.NotFound(w, req)
		return
	}
	if req.Method != method {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := req.Context()
	p := s.sessions.get(sessionID(w, req))
	o, err := s.sessions.orchestrator(ctx, p, phase)
	if err != nil {
		writeError(w, err)
		return
	}

	switch action {
	case "status":
		writeJSON(w, http.StatusOK, o.Status())

	case "model":
		var body selectModelRequest
		if err := decodeBody(w, req, &body); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		id := body.Model
		if body.Random {
			id = s.catalog.Random(phase, rand.New(rand.NewSource(time.Now().UnixNano())))
		}
		if err := o.SelectModel(ctx, id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, o.Status())

	case "cancel":
		o.Cancel()
		w.WriteHeader(http.StatusNoContent)

	case "messages":
		var body submitRequest
		if err := decodeBody(w, req, &body); err != nil {
			writeBadRequest(w, "invalid request body")
			return
		}
		reply, err := o.Submit(ctx, body.Text)
		if err != nil {
			writeError(w, err)
			return
		}

		rc := beginStream(w)
		var writeErr error
		for delta := range reply.Tokens() {
			if writeErr != nil {
				continue
			}
			if _, writeErr = w.Write([]byte(delta)); writeErr == nil {
				writeErr = rc.Flush()
			}
		}
		<-reply.Done()
		_, err = reply.Result()
		endStream(w, err)
	}
}

func decodeBody(w http.ResponseWriter, req *http.Request, v interface{}) error {
	defer req.Body.Close()
	return json.NewDecoder(http.MaxBytesReader(w, req.Body, maxBodyBytes)).Decode(v)
}

func beginStream(w http.ResponseWriter) *http.ResponseController {
	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Trailer", StreamErrorTrailer)
	w.WriteHeader(http.StatusOK)
	return http.NewResponseController(w)
}

func endStream(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	log.Warn().Err(err).Msg("stream ended with error")
	w.Header().Set(StreamErrorTrailer, strings.ReplaceAll(err.Error(), "\n", " "))
}
