package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/pyrun/internal/analysis"
	"github.com/michaelbrown/pyrun/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(Greeting))
}

// --- Execution handlers ---

type codeRequest struct {
	Code   string          `json:"code"`
	Cursor analysis.Cursor `json:"cursor"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	result, id := s.svc.Run(r.Context(), storage.SourceHTTP, req.Code)
	w.Header().Set("X-Run-ID", id)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleLint(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.svc.Lint(r.Context(), req.Code))
}

func (s *Server) handleAutocomplete(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	items, err := s.svc.Complete(r.Context(), req.Code, req.Cursor)
	if err != nil {
		// Editors expect a list even when the engine failed.
		writeJSON(w, http.StatusInternalServerError, []analysis.Completion{})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

// --- History handlers ---

func (s *Server) history(w http.ResponseWriter) (storage.Store, bool) {
	store, err := s.svc.History()
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return store, true
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	store, ok := s.history(w)
	if !ok {
		return
	}

	opts := storage.RunListOptions{}
	if status := r.URL.Query().Get("status"); status != "" {
		opts.Status = storage.RunStatus(status)
	}
	if source := r.URL.Query().Get("source"); source != "" {
		opts.Source = storage.Source(source)
	}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	runs, err := store.ListRuns(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	store, ok := s.history(w)
	if !ok {
		return
	}

	run, err := store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	store, ok := s.history(w)
	if !ok {
		return
	}

	if err := store.DeleteRun(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "run not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
