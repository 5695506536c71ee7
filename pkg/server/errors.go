package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/cxcscmu/LLM-Interviewer/pkg/conversation"
	"github.com/cxcscmu/LLM-Interviewer/pkg/orchestrator"
	"github.com/cxcscmu/LLM-Interviewer/pkg/router"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// statusClientClosedRequest is the non-standard code for a request the
// client abandoned.
const statusClientClosedRequest = 499

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// classify maps an error to an HTTP status and a stable kind string.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, router.ErrInvalidModel):
		return http.StatusBadRequest, "invalid_model"
	case errors.Is(err, router.ErrFamilyNotConfigured):
		return http.StatusServiceUnavailable, "family_not_configured"
	case errors.Is(err, orchestrator.ErrModelLocked):
		return http.StatusConflict, "model_locked"
	case errors.Is(err, orchestrator.ErrModelNotOffered):
		return http.StatusBadRequest, "model_not_offered"
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, conversation.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, orchestrator.ErrClosed):
		return http.StatusServiceUnavailable, "closed"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "cancelled"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("kind", kind).Msg("request failed")
	} else {
		log.Debug().Err(err).Str("kind", kind).Msg("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "invalid_request"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("could not write response")
	}
}
