package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/harborlight/plugind/internal/manifest"
	"github.com/harborlight/plugind/internal/registry"
)

const defaultLogLines = 100

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"plugins": s.reg.Statuses()})
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	loaded, failures := manifest.Discover(s.pluginDirs...)
	s.reg.Rescan(loaded)

	failed := make([]map[string]string, 0, len(failures))
	for _, failure := range failures {
		failed = append(failed, map[string]string{"dir": failure.Dir, "error": failure.Err.Error()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"discovered": len(loaded),
		"failures":   failed,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	record, err := s.reg.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Status())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sup.Start)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sup.Stop)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, s.sup.Restart)
}

func (s *Server) transition(w http.ResponseWriter, r *http.Request, op func(string) (registry.State, error)) {
	name := r.PathValue("name")
	state, err := op(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "state": state})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	record, err := s.reg.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":      record.Name(),
		"config":    record.EffectiveConfig(),
		"overrides": record.Overrides(),
	})
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	var body struct {
		Config map[string]any `json:"config"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("bad_request", name, fmt.Sprintf("invalid JSON body: %v", err), nil))
		return
	}

	merged, err := s.sup.UpdateConfig(name, body.Config)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": name, "config": merged})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	record, err := s.reg.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}

	lines := defaultLogLines
	if raw := r.URL.Query().Get("lines"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("bad_request", record.Name(), "lines must be a positive integer", nil))
			return
		}
		lines = parsed
	}

	tail := record.Logs().Tail(lines)
	if tail == nil {
		tail = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": record.Name(), "lines": tail})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	record, err := s.reg.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	record, err := s.reg.Get(r.PathValue("name"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    record.Name(),
		"healthy": record.State() == registry.StateRunning,
	})
}

func (s *Server) handleSystemInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.samp.SystemInfo())
}
