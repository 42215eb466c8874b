package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/54b3r/pmrag-go/internal/budget"
	"github.com/54b3r/pmrag-go/internal/logging"
	"github.com/54b3r/pmrag-go/internal/rag"
)

// handleIndex handles POST /api/index. Records that cannot be chunked are
// skipped by the engine, so a 200 may report fewer indexed than submitted.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if !s.decode(w, r, &req) {
		return
	}

	n, err := s.engine.Index(r.Context(), req.Records)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "index failed", err)
		return
	}
	if n > 0 {
		s.afterWrite(r)
	}
	s.writeJSON(w, r, http.StatusOK, indexResponse{Submitted: len(req.Records), Indexed: n})
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.writeError(w, r, http.StatusBadRequest, "query is required", nil)
		return
	}
	if req.TopK < 0 {
		s.writeError(w, r, http.StatusBadRequest, "top_k must not be negative", nil)
		return
	}

	results, err := s.engine.Search(r.Context(), req.Query, req.options())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "search failed", err)
		return
	}
	fitted := budget.FitResults(results, req.MaxTokens)
	s.writeJSON(w, r, http.StatusOK, searchResponse{Results: fitted, Trimmed: len(results) - len(fitted)})
}

// handleValidateCitations handles POST /api/citations/validate. Claims are
// grounded against the supplied results, or against a fresh search for
// the supplied query.
func (s *Server) handleValidateCitations(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}

	results := req.Results
	if results == nil {
		if strings.TrimSpace(req.Query) == "" {
			s.writeError(w, r, http.StatusBadRequest, "results or query is required", nil)
			return
		}
		var err error
		results, err = s.engine.Search(r.Context(), req.Query, req.options())
		if err != nil {
			s.writeError(w, r, http.StatusInternalServerError, "search failed", err)
			return
		}
	}

	s.writeJSON(w, r, http.StatusOK, s.engine.ValidateCitations(r.Context(), req.Claimed, results))
}

// handleGetDocument handles GET /api/documents/{id}. The embedding is
// included only when ?embedding=true.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	entry, err := s.engine.Get(r.Context(), id)
	if errors.Is(err, rag.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, "document not found", nil)
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "lookup failed", err)
		return
	}

	resp := documentResponse{
		Document:  entry.Document,
		Dimension: len(entry.Embedding),
		IndexedAt: entry.IndexedAt,
	}
	if withEmb, _ := strconv.ParseBool(r.URL.Query().Get("embedding")); withEmb {
		resp.Embedding = entry.Embedding
	}
	s.writeJSON(w, r, http.StatusOK, resp)
}

// handleDeleteDocument handles DELETE /api/documents/{id}.
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.Delete(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "delete failed", err)
		return
	}
	if n == 0 {
		s.writeError(w, r, http.StatusNotFound, "document not found", nil)
		return
	}
	s.afterWrite(r)
	s.writeJSON(w, r, http.StatusOK, map[string]int{"deleted": n})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, "stats failed", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, stats)
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// afterWrite runs the configured post-write hook, logging any failure. The
// write has already succeeded, so the hook outlives a client disconnect.
func (s *Server) afterWrite(r *http.Request) {
	if s.cfg.AfterWrite == nil {
		return
	}
	if err := s.cfg.AfterWrite(context.WithoutCancel(r.Context())); err != nil {
		logging.FromContext(r.Context()).Warn("server: post-write hook failed", slog.Any("error", err))
	}
}

// decode reads a JSON body into v, writing a 400 or 413 and returning false
// on failure.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, r, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return false
		}
		s.writeError(w, r, http.StatusBadRequest, "invalid request body: "+err.Error(), nil)
		return false
	}
	return true
}

// writeJSON encodes v with the given status.
func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	respondJSON(w, r, status, v)
}

// writeError writes an errorResponse. Internal causes are logged, never
// returned to the client.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, msg string, cause error) {
	if cause != nil {
		logging.FromContext(r.Context()).Error("server: "+msg, slog.Any("error", cause))
	}
	respondError(w, r, status, msg)
}

// respondJSON encodes v with the given status. Middleware that runs outside
// a Server method uses it directly.
func respondJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("server: encode response", slog.Any("error", err))
	}
}

// respondError writes {"error": msg} with the given status.
func respondError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respondJSON(w, r, status, errorResponse{Error: msg})
}
