package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/core/auth"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type RecordsHandler struct {
	records store.RecordsStore
	events  store.EventsStore
	logger  *zap.Logger
}

func NewRecordsHandler(records store.RecordsStore, events store.EventsStore, logger *zap.Logger) *RecordsHandler {
	return &RecordsHandler{records: records, events: events, logger: logger}
}

type createRecordPayload struct {
	EventID         int64  `json:"event_id"`
	Occurrence      string `json:"occurrence"`
	ActionTaken     string `json:"action_taken"`
	Location        string `json:"location"`
	Priority        string `json:"priority"`
	OccurredAt      string `json:"occurred_at"`
	Category        string `json:"category"`
	EscalationLevel int    `json:"escalation_level"`
	LoggedCallsign  string `json:"logged_callsign"`
}

func (h *RecordsHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFrom(r.Context())
	if caller == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	var payload createRecordPayload
	if err := decodeBody(r, &payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.Occurrence) == "" {
		http.Error(w, "records.occurrenceRequired", http.StatusBadRequest)
		return
	}
	ev, err := h.events.GetEvent(r.Context(), payload.EventID)
	if err != nil {
		h.logger.Error("event lookup failed", zap.Int64("event_id", payload.EventID), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if ev == nil {
		http.Error(w, "records.eventNotFound", http.StatusBadRequest)
		return
	}
	rec := store.LogRecord{
		EventID:         payload.EventID,
		Occurrence:      payload.Occurrence,
		ActionTaken:     payload.ActionTaken,
		Location:        payload.Location,
		Priority:        strings.ToLower(strings.TrimSpace(payload.Priority)),
		Category:        strings.ToLower(strings.TrimSpace(payload.Category)),
		EscalationLevel: payload.EscalationLevel,
		LoggedBy:        caller.ID,
		LoggedCallsign:  payload.LoggedCallsign,
	}
	if raw := strings.TrimSpace(payload.OccurredAt); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "records.occurredAtInvalid", http.StatusBadRequest)
			return
		}
		rec.OccurredAt = t.UTC()
	}
	if strings.TrimSpace(rec.LoggedCallsign) == "" {
		rec.LoggedCallsign = caller.Callsign
	}
	if _, err := h.records.CreateLogRecord(r.Context(), &rec); err != nil {
		h.logger.Error("record create failed", zap.Int64("event_id", payload.EventID), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *RecordsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if auth.UserFrom(r.Context()) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "records.notFound", http.StatusNotFound)
		return
	}
	rec, err := h.records.GetLogRecord(r.Context(), id)
	if err != nil {
		h.logger.Error("record read failed", zap.Int64("record_id", id), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "records.notFound", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *RecordsHandler) List(w http.ResponseWriter, r *http.Request) {
	if auth.UserFrom(r.Context()) == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	q := r.URL.Query()
	filter := store.RecordFilter{
		EventID:  int64(parseIntDefault(q.Get("event_id"), 0)),
		Category: strings.ToLower(strings.TrimSpace(q.Get("category"))),
		Priority: strings.ToLower(strings.TrimSpace(q.Get("priority"))),
		Search:   strings.TrimSpace(q.Get("q")),
		Limit:    parseIntDefault(q.Get("limit"), 100),
		Offset:   parseIntDefault(q.Get("offset"), 0),
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	items, err := h.records.ListLogRecords(r.Context(), filter)
	if err != nil {
		h.logger.Error("record list failed", zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.LogRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// Lock handles POST /api/records/{id}/lock. A locked record never accepts
// amendments again; the lock itself is one way.
func (h *RecordsHandler) Lock(w http.ResponseWriter, r *http.Request) {
	caller := auth.UserFrom(r.Context())
	if caller == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		http.Error(w, "records.notFound", http.StatusNotFound)
		return
	}
	rec, err := h.records.LockLogRecord(r.Context(), id, caller.ID)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			http.Error(w, "records.alreadyLocked", http.StatusConflict)
			return
		}
		h.logger.Error("record lock failed", zap.Int64("record_id", id), zap.Error(err))
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "records.notFound", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
