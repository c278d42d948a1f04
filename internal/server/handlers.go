package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/stackaudit/pkg/buildinfo"
	"github.com/matzehuels/stackaudit/pkg/errors"
	"github.com/matzehuels/stackaudit/pkg/pipeline"
)

// scanRequest is the body of POST /scan.
type scanRequest struct {
	Libraries  []string `json:"libraries"`
	SkipLatest bool     `json:"skip_latest,omitempty"`
}

// errorResponse is the body of every non-2xx response.
type errorResponse struct {
	Error     string      `json:"error"`
	Code      errors.Code `json:"code,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, DefaultMaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}

	res, err := s.runner.Execute(r.Context(), pipeline.Options{
		Packages:   req.Libraries,
		SkipLatest: req.SkipLatest,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if res.PersistErr != nil {
		s.logger.Warn("report not persisted", "run", res.Report.RunID, "error", res.PersistErr)
	}
	w.Header().Set("X-Run-ID", res.Report.RunID)
	writeJSON(w, http.StatusOK, res.Report)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

// writeError maps err to a status code. Internal errors are logged and
// reported without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if r.Context().Err() != nil && errors.GetCode(err) == "" {
		status = http.StatusGatewayTimeout
	}
	resp := errorResponse{
		Error:     errors.UserMessage(err),
		Code:      errors.GetCode(err),
		RequestID: middleware.GetReqID(r.Context()),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "request_id", resp.RequestID, "error", err)
		if status == http.StatusInternalServerError {
			resp.Error = "internal error"
			resp.Code = errors.ErrCodeInternal
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
