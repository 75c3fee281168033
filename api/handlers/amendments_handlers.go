package handlers

import (
	"encoding/csv"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/core/amend"
	"github.com/DavidCapener182/incommand-sub013/core/auth"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type AmendmentsHandler struct {
	gateway *amend.Gateway
	logger  *zap.Logger
}

func NewAmendmentsHandler(gateway *amend.Gateway, logger *zap.Logger) *AmendmentsHandler {
	return &AmendmentsHandler{gateway: gateway, logger: logger}
}

// Submit handles POST /api/records/{id}/amendments.
func (h *AmendmentsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "amendments.recordNotFound", http.StatusNotFound)
		return
	}
	var req amend.AmendmentRequest
	if err := decodeBody(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	req.RecordID = recordID
	result, err := h.gateway.SubmitAmendment(r.Context(), auth.UserFrom(r.Context()), req)
	if err != nil {
		h.writeAmendmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// ListRevisions handles GET /api/records/{id}/revisions.
func (h *AmendmentsHandler) ListRevisions(w http.ResponseWriter, r *http.Request) {
	if auth.UserFrom(r.Context()) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	recordID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "amendments.recordNotFound", http.StatusNotFound)
		return
	}
	revs, err := h.gateway.ListRevisions(r.Context(), recordID)
	if err != nil {
		h.writeAmendmentError(w, r, err)
		return
	}
	if revs == nil {
		revs = []store.Revision{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": revs})
}

// Eligibility handles GET /api/records/{id}/amendments/eligibility.
func (h *AmendmentsHandler) Eligibility(w http.ResponseWriter, r *http.Request) {
	recordID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "amendments.recordNotFound", http.StatusNotFound)
		return
	}
	elig, err := h.gateway.CheckEligibility(r.Context(), auth.UserFrom(r.Context()), recordID)
	if err != nil {
		h.writeAmendmentError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, elig)
}

// ExportRevisions handles GET /api/records/{id}/revisions/export as CSV.
func (h *AmendmentsHandler) ExportRevisions(w http.ResponseWriter, r *http.Request) {
	if auth.UserFrom(r.Context()) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	recordID, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "amendments.recordNotFound", http.StatusNotFound)
		return
	}
	revs, err := h.gateway.ListRevisions(r.Context(), recordID)
	if err != nil {
		h.writeAmendmentError(w, r, err)
		return
	}
	filename := "revisions_" + time.Now().UTC().Format("20060102_150405") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"seq", "field", "old_value", "new_value", "change_type", "change_reason", "actor", "time"})
	for i := range revs {
		_ = writer.Write([]string{
			itoa(revs[i].Seq),
			revs[i].FieldChanged,
			string(revs[i].OldValue),
			string(revs[i].NewValue),
			revs[i].ChangeType,
			revs[i].ChangeReason,
			revs[i].ActorLabel,
			revs[i].CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	writer.Flush()
}

func (h *AmendmentsHandler) writeAmendmentError(w http.ResponseWriter, r *http.Request, err error) {
	var amendErr *amend.AmendmentError
	if !errors.As(err, &amendErr) {
		h.logger.Error("amendment request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	status := http.StatusInternalServerError
	switch amendErr.Code {
	case amend.CodeUnauthenticated:
		status = http.StatusUnauthorized
	case amend.CodeForbidden:
		status = http.StatusForbidden
	case amend.CodeNotFound:
		status = http.StatusNotFound
	case amend.CodeInvalidRequest:
		status = http.StatusBadRequest
	case amend.CodePersistence:
		h.logger.Error("amendment persistence failed", zap.String("path", r.URL.Path), zap.Error(amendErr))
	}
	payload := map[string]any{
		"error":  string(amendErr.Code),
		"reason": amendErr.Reason,
	}
	if len(amendErr.Violations) > 0 {
		payload["violations"] = amendErr.Violations
	}
	writeJSON(w, status, payload)
}
