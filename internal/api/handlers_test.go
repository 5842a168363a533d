package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/clubsonar/setlistd/internal/capture"
	"github.com/clubsonar/setlistd/internal/models"
	"github.com/clubsonar/setlistd/internal/netmon"
	"github.com/clubsonar/setlistd/internal/notify"
	"github.com/clubsonar/setlistd/internal/recognition"
	"github.com/clubsonar/setlistd/internal/session"
	"github.com/clubsonar/setlistd/internal/store"
	"github.com/clubsonar/setlistd/internal/syncer"
	"github.com/clubsonar/setlistd/internal/venue"
)

type stubRecognizer struct{}

func (stubRecognizer) Recognize(ctx context.Context, req recognition.Request) (*recognition.Response, error) {
	return &recognition.Response{Success: true, Found: false}, nil
}

type stubNotifier struct{}

func (stubNotifier) Dispatch(ctx context.Context, p notify.Payload) error { return nil }

func setupApp(t *testing.T) (*App, *store.Store) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mon := netmon.New(time.Millisecond)
	ctrl := session.NewController(st, capture.NewToneSource(), stubRecognizer{}, stubNotifier{}, mon, session.Config{
		CycleInterval: time.Hour,
		MaxDuration:   time.Hour,
	})
	rec := syncer.New(st, stubRecognizer{}, stubNotifier{}, mon, syncer.Config{})

	app := &App{
		Controller: ctrl,
		Store:      st,
		Reconciler: rec,
		Monitor:    mon,
		Policy:     venue.DefaultPolicy(),
	}
	t.Cleanup(func() {
		if ctrl.State() == session.StateRecording {
			ctrl.Stop(context.Background())
		}
	})

	return app, st
}

func TestPingHandler(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/ping", nil))

	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
	if rr.Body.String() != "pong" {
		t.Errorf("Expected pong, got %q", rr.Body.String())
	}
}

func TestStartSessionHandler(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	body := `{"owner_id": "owner-1", "dj_name": "DJ Nova", "venue": {"name": "Club Nova", "city": "Berlin", "country": "DE", "venue_types": ["night_club"]}}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "recording" {
		t.Errorf("Expected recording status, got %v", resp["status"])
	}
	venueResp, ok := resp["venue"].(map[string]any)
	if !ok || venueResp["qualifying"] != true {
		t.Errorf("Expected qualifying venue in response, got %v", resp["venue"])
	}
}

func TestStartSessionHandler_Conflict(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	body := `{"owner_id": "owner-1", "dj_name": "DJ Nova"}`
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(body)))
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 for second start, got %d", rr.Code)
	}
}

func TestStartSessionHandler_BadRequest(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing owner_id, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(`not json`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid body, got %d", rr.Code)
	}
}

func TestStopSessionHandler(t *testing.T) {
	app, st := setupApp(t)
	router := NewRouter(app)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/stop", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("Expected 409 stopping with no session, got %d", rr.Code)
	}

	body := `{"owner_id": "owner-1", "dj_name": "DJ Nova"}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/stop", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	count, err := st.PendingSessionCount(context.Background())
	if err != nil {
		t.Fatalf("Failed to count pending: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 pending session after stop, got %d", count)
	}
}

func TestPendingCountHandler(t *testing.T) {
	app, st := setupApp(t)
	router := NewRouter(app)
	ctx := context.Background()

	sess := models.NewSession("owner-1", "DJ Nova", nil)
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := st.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("Failed to end session: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/sessions/pending/count", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp map[string]int
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["pending"] != 1 {
		t.Errorf("Expected pending 1, got %d", resp["pending"])
	}
}

func TestSyncHandler(t *testing.T) {
	app, st := setupApp(t)
	router := NewRouter(app)
	ctx := context.Background()

	sess := models.NewSession("owner-1", "DJ Nova", nil)
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	rec := models.NewRecording(sess.ID, "UklGRg==", 48000, 2)
	if err := st.AppendRecording(ctx, rec); err != nil {
		t.Fatalf("Failed to append recording: %v", err)
	}
	if err := st.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("Failed to end session: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/sync", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp struct {
		Synced  int                          `json:"synced"`
		Failed  int                          `json:"failed"`
		Results []models.TrackIdentification `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Synced != 1 || resp.Failed != 0 {
		t.Errorf("Expected 1 synced / 0 failed, got %d / %d", resp.Synced, resp.Failed)
	}
}

func TestDeleteSessionHandler(t *testing.T) {
	app, st := setupApp(t)
	router := NewRouter(app)
	ctx := context.Background()

	sess := models.NewSession("owner-1", "DJ Nova", nil)
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/sessions/"+sess.ID, nil))
	if rr.Code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("DELETE", "/api/sessions/"+sess.ID, nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing session, got %d", rr.Code)
	}
}

func TestCurrentSessionHandler(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/session", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["state"] != "idle" {
		t.Errorf("Expected idle state, got %v", resp["state"])
	}

	body := `{"owner_id": "owner-1", "dj_name": "DJ Nova"}`
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/session/start", strings.NewReader(body)))
	if rr.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/api/session", nil))
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["state"] != "recording" {
		t.Errorf("Expected recording state, got %v", resp["state"])
	}
}

func TestCorrectVenueHandler(t *testing.T) {
	app, st := setupApp(t)
	router := NewRouter(app)
	ctx := context.Background()

	sess := models.NewSession("owner-1", "DJ Nova", nil)
	if err := st.CreateSession(ctx, sess); err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	if err := st.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("Failed to end session: %v", err)
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("PATCH", "/api/sessions/"+sess.ID+"/venue", strings.NewReader(`{"venue": "Warehouse 9"}`)))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	got, err := st.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if got.CorrectedVenue != "Warehouse 9" {
		t.Errorf("Expected corrected venue, got %q", got.CorrectedVenue)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("PATCH", "/api/sessions/"+sess.ID+"/venue", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty venue, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("PATCH", "/api/sessions/missing/venue", strings.NewReader(`{"venue": "Warehouse 9"}`)))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing session, got %d", rr.Code)
	}
}

func TestNetworkHandler(t *testing.T) {
	app, _ := setupApp(t)
	router := NewRouter(app)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/network", strings.NewReader(`{"online": false}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if app.Monitor.IsOnline() {
		t.Error("Expected reported offline signal to demote the monitor")
	}

	time.Sleep(5 * time.Millisecond) // let the hold window lapse

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/network", strings.NewReader(`{"online": true}`)))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rr.Code)
	}
	if !app.Monitor.IsOnline() {
		t.Error("Expected reported restore to promote the monitor")
	}

	var resp map[string]bool
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !resp["online"] {
		t.Errorf("Expected online true in response, got %v", resp)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("POST", "/api/network", strings.NewReader(`{}`)))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing online field, got %d", rr.Code)
	}
}
