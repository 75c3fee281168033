package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/DavidCapener182/incommand-sub013/api"
	"github.com/DavidCapener182/incommand-sub013/config"
	"github.com/DavidCapener182/incommand-sub013/core/amend"
	"github.com/DavidCapener182/incommand-sub013/core/auth"
	"github.com/DavidCapener182/incommand-sub013/core/notify"
	"github.com/DavidCapener182/incommand-sub013/core/store"
)

type apiEnv struct {
	srv      *httptest.Server
	users    store.UsersStore
	records  store.RecordsStore
	eventID  int64
	author   *store.User
	token    string
}

func setupAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	cfg := &config.AppConfig{
		DBDriver: "sqlite",
		DBPath:   filepath.Join(t.TempDir(), "api.db"),
		Amendments: config.AmendmentsConfig{
			ReasonMaxLen:   500,
			PersistRetries: 3,
			ElevatedRoles:  []string{"supervisor", "control_room_lead"},
		},
		Notify: config.NotifyConfig{BufferSize: 16},
	}
	logger := zap.NewNop()
	db, err := store.NewDB(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.ApplyMigrations(context.Background(), db, logger))

	users := store.NewUsersStore(db)
	events := store.NewEventsStore(db)
	records := store.NewRecordsStore(db)
	revisions := store.NewRevisionsStore(db)

	guard, err := amend.NewGuard(users, cfg.Amendments.ElevatedRoles)
	require.NoError(t, err)
	hub := notify.NewHub(cfg.Notify.BufferSize, logger)
	gateway := amend.NewGateway(db, records, revisions, guard, amend.NewValidator(cfg.EffectiveReasonMaxLen()), amend.NewEjectionPolicy(), hub, logger, 3)
	server := api.NewServer(cfg, logger, auth.NewAuthenticator(users), hub, records, events, gateway)

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)

	ctx := context.Background()
	author := &store.User{Username: "alice", FullName: "Alice Hart", Callsign: "R1", Active: true}
	_, err = users.CreateUser(ctx, author)
	require.NoError(t, err)
	const token = "test-token-alice"
	require.NoError(t, users.SaveToken(ctx, author.ID, token))
	eventID, err := events.CreateEvent(ctx, &store.Event{Name: "Stadium Show"})
	require.NoError(t, err)

	return &apiEnv{srv: srv, users: users, records: records, eventID: eventID, author: author, token: token}
}

func (env *apiEnv) request(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, env.srv.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (env *apiEnv) createRecord(t *testing.T) int64 {
	t.Helper()
	resp := env.request(t, http.MethodPost, "/api/records", env.token, map[string]any{
		"event_id":   env.eventID,
		"occurrence": "Crowd surge at front of stage",
		"action_taken": "Show paused, barrier checked",
		"location":   "Front of stage",
		"priority":   "high",
		"category":   "crowd",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec store.LogRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.NotEmpty(t, rec.LogNo)
	return rec.ID
}

func TestSubmitAmendmentOverHTTP(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)
	path := "/api/records/" + strconv.FormatInt(recordID, 10)

	resp := env.request(t, http.MethodPost, path+"/amendments", env.token, map[string]any{
		"field":       "location",
		"new_value":   "Front of stage, left pen",
		"reason":      "more precise after CCTV review",
		"change_type": "clarification",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result amend.AmendmentResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, 1, result.Revision.Seq)
	require.Equal(t, "Alice Hart (R1)", result.Revision.ActorLabel)
	require.Equal(t, "Front of stage, left pen", result.Record.Location)

	listResp := env.request(t, http.MethodGet, path+"/revisions", env.token, nil)
	require.Equal(t, http.StatusOK, listResp.StatusCode)
	var listing struct {
		Items []store.Revision `json:"items"`
	}
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&listing))
	require.Len(t, listing.Items, 1)
}

func TestSubmitAmendmentRequiresToken(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)

	resp := env.request(t, http.MethodPost, "/api/records/"+strconv.FormatInt(recordID, 10)+"/amendments", "", map[string]any{
		"field":       "location",
		"new_value":   "Elsewhere",
		"reason":      "fix",
		"change_type": "correction",
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSubmitAmendmentForbiddenForStranger(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)

	ctx := context.Background()
	stranger := &store.User{Username: "bob", Callsign: "R9", Active: true}
	_, err := env.users.CreateUser(ctx, stranger)
	require.NoError(t, err)
	require.NoError(t, env.users.SaveToken(ctx, stranger.ID, "test-token-bob"))

	resp := env.request(t, http.MethodPost, "/api/records/"+strconv.FormatInt(recordID, 10)+"/amendments", "test-token-bob", map[string]any{
		"field":       "location",
		"new_value":   "Elsewhere",
		"reason":      "fix",
		"change_type": "correction",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "forbidden", payload["error"])
}

func TestSubmitAmendmentValidationErrorsOverHTTP(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)

	resp := env.request(t, http.MethodPost, "/api/records/"+strconv.FormatInt(recordID, 10)+"/amendments", env.token, map[string]any{
		"field":       "log_no",
		"new_value":   "LOG-1-9999",
		"reason":      "",
		"change_type": "correction",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var payload struct {
		Error      string   `json:"error"`
		Violations []string `json:"violations"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "invalid_request", payload.Error)
	require.Contains(t, payload.Violations, "amendments.fieldNotAmendable")
	require.Contains(t, payload.Violations, "amendments.reasonRequired")
}

func TestEligibilityEndpoint(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)
	path := "/api/records/" + strconv.FormatInt(recordID, 10)

	resp := env.request(t, http.MethodGet, path+"/amendments/eligibility", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var elig amend.Eligibility
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&elig))
	require.True(t, elig.CanAmend)

	lockResp := env.request(t, http.MethodPost, path+"/lock", env.token, nil)
	require.Equal(t, http.StatusOK, lockResp.StatusCode)

	resp = env.request(t, http.MethodGet, path+"/amendments/eligibility", env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&elig))
	require.False(t, elig.CanAmend)
	require.Equal(t, "amendments.recordLocked", elig.Reason)
}

func TestRevisionsCSVExport(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)
	path := "/api/records/" + strconv.FormatInt(recordID, 10)

	resp := env.request(t, http.MethodPost, path+"/amendments", env.token, map[string]any{
		"field":       "priority",
		"new_value":   "critical",
		"reason":      "medic requested ambulance",
		"change_type": "correction",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	exportResp := env.request(t, http.MethodGet, path+"/revisions/export", env.token, nil)
	require.Equal(t, http.StatusOK, exportResp.StatusCode)
	require.Contains(t, exportResp.Header.Get("Content-Type"), "text/csv")
}

func TestLockStatusCodes(t *testing.T) {
	env := setupAPIEnv(t)

	resp := env.request(t, http.MethodPost, "/api/records/999999/lock", env.token, nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	recordID := env.createRecord(t)
	path := "/api/records/" + strconv.FormatInt(recordID, 10) + "/lock"
	resp = env.request(t, http.MethodPost, path, env.token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.request(t, http.MethodPost, path, env.token, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestLockedRecordRejectsAmendmentOverHTTP(t *testing.T) {
	env := setupAPIEnv(t)
	recordID := env.createRecord(t)
	path := "/api/records/" + strconv.FormatInt(recordID, 10)

	lockResp := env.request(t, http.MethodPost, path+"/lock", env.token, nil)
	require.Equal(t, http.StatusOK, lockResp.StatusCode)

	resp := env.request(t, http.MethodPost, path+"/amendments", env.token, map[string]any{
		"field":       "location",
		"new_value":   "Elsewhere",
		"reason":      "late correction",
		"change_type": "correction",
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
