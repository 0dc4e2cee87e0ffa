package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dmsavelyev/chatvault/internal/common"
	"github.com/dmsavelyev/chatvault/internal/session"
	"github.com/dmsavelyev/chatvault/internal/session/registry"
)

type createRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// createResponse is the status record plus the result of the bounded wait.
// The QR image appears here and on the qr endpoint, nowhere else.
type createResponse struct {
	*registry.Record
	WaitResult session.Outcome `json:"waitResult"`
	WaitMs     int64           `json:"waitMs"`
	QR         string          `json:"qr,omitempty"`
}

type qrResponse struct {
	ID string `json:"id"`
	QR string `json:"qr"`
}

type deleteResponse struct {
	ID           string `json:"id"`
	Disconnected bool   `json:"disconnected"`
	Removed      bool   `json:"removed"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) writeLookupError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, common.ErrorNotFound) {
		writeError(w, http.StatusNotFound, "number not found")
		return
	}
	s.logger.Error(ctx, "request failed", "err", err.Error())
	writeError(w, http.StatusInternalServerError, "internal error")
}

// createNumber creates or resumes an identity and waits up to the QR
// budget for it to either produce a pairing code or come up connected.
func (s *Server) createNumber(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	id := session.NormalizeID(req.ID)
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	ctx := r.Context()
	if _, err := s.manager.EnsureStarted(ctx, id, req.Name); err != nil {
		s.logger.Error(ctx, "ensure started failed", "identity", id, "err", err.Error())
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	started := time.Now()
	outcome, err := s.manager.AwaitOutcome(ctx, id, s.qrWait)
	if err != nil && !errors.Is(err, ctx.Err()) {
		s.writeLookupError(ctx, w, err)
		return
	}
	waited := time.Since(started).Milliseconds()

	if outcome == session.OutcomeQR {
		rec, err := s.manager.QR(ctx, id)
		if err != nil {
			s.writeLookupError(ctx, w, err)
			return
		}
		resp := createResponse{Record: rec, WaitResult: outcome, WaitMs: waited, QR: rec.LastQrImage}
		resp.Record.LastQrImage = ""
		writeJSON(w, http.StatusOK, resp)
		return
	}

	rec, err := s.manager.Status(ctx, id)
	if err != nil {
		s.writeLookupError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, createResponse{Record: rec, WaitResult: outcome, WaitMs: waited})
}

func (s *Server) listNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recs, err := s.manager.List(ctx)
	if err != nil {
		s.writeLookupError(ctx, w, err)
		return
	}
	if recs == nil {
		recs = []*registry.Record{}
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) numberStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	rec, err := s.manager.Status(ctx, r.PathValue("id"))
	if err != nil {
		s.writeLookupError(ctx, w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// numberQR returns the last rendered pairing image. 404 both for unknown
// identities and for known ones that have not produced a QR yet.
func (s *Server) numberQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	rec, err := s.manager.QR(ctx, id)
	if err != nil {
		s.writeLookupError(ctx, w, err)
		return
	}
	if rec.LastQrImage == "" {
		writeError(w, http.StatusNotFound, "qr not available")
		return
	}
	writeJSON(w, http.StatusOK, qrResponse{ID: rec.ID, QR: rec.LastQrImage})
}

func (s *Server) deleteNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	existed, _, err := s.manager.Remove(ctx, id)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.writeLookupError(ctx, w, err)
		return
	}
	if errors.Is(err, common.ErrorNotFound) && !existed {
		writeError(w, http.StatusNotFound, "number not found")
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{ID: id, Disconnected: existed, Removed: err == nil})
}

func (s *Server) clearNumbers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	results, err := s.manager.Clear(ctx)
	if err != nil {
		s.writeLookupError(ctx, w, err)
		return
	}
	if results == nil {
		results = []session.RemovalResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": len(results), "results": results})
}
