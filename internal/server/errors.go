package server

import (
	"encoding/json"
	"errors"
	"net/http"

	plugerrors "github.com/harborlight/plugind/pkg/errors"
)

// errorDetail is the wire shape of every API error: a stable kind, the
// plugin name and whatever run diagnostics exist, so callers can diagnose
// without reading server logs.
type errorDetail struct {
	Kind     string   `json:"kind"`
	Plugin   string   `json:"plugin,omitempty"`
	Message  string   `json:"message"`
	ExitCode *int     `json:"exit_code,omitempty"`
	LogTail  []string `json:"log_tail,omitempty"`
}

func errorBody(kind, plugin, message string, detail *errorDetail) map[string]any {
	body := errorDetail{Kind: kind, Plugin: plugin, Message: message}
	if detail != nil {
		body.ExitCode = detail.ExitCode
		body.LogTail = detail.LogTail
	}
	return map[string]any{"error": body}
}

func statusForKind(kind plugerrors.Kind) int {
	switch kind {
	case plugerrors.KindNotFound:
		return http.StatusNotFound
	case plugerrors.KindConflict:
		return http.StatusConflict
	case plugerrors.KindConfigValidation:
		return http.StatusUnprocessableEntity
	case plugerrors.KindInvalidManifest, plugerrors.KindMissingBinary:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := plugerrors.KindOf(err)

	detail := errorDetail{Kind: string(kind), Message: err.Error()}

	var notFound *plugerrors.NotFoundError
	var conflict *plugerrors.ConflictError
	var spawn *plugerrors.SpawnError
	var stopTimeout *plugerrors.StopTimeoutError
	var configErr *plugerrors.ConfigValidationError
	switch {
	case errors.As(err, &notFound):
		detail.Plugin = notFound.Plugin
	case errors.As(err, &conflict):
		detail.Plugin = conflict.Plugin
	case errors.As(err, &spawn):
		detail.Plugin = spawn.Plugin
		if spawn.ExitCode >= 0 {
			code := spawn.ExitCode
			detail.ExitCode = &code
		}
		detail.LogTail = spawn.LogTail
	case errors.As(err, &stopTimeout):
		detail.Plugin = stopTimeout.Plugin
	case errors.As(err, &configErr):
		detail.Plugin = configErr.Plugin
	}

	if kind == plugerrors.KindInternal {
		s.log.Error(err, "request failed")
	}
	writeJSON(w, statusForKind(kind), map[string]any{"error": detail})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
