package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/clubsonar/setlistd/internal/models"
	"github.com/clubsonar/setlistd/internal/netmon"
	"github.com/clubsonar/setlistd/internal/session"
	"github.com/clubsonar/setlistd/internal/store"
	"github.com/clubsonar/setlistd/internal/syncer"
	"github.com/clubsonar/setlistd/internal/venue"
)

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}

type App struct {
	Controller *session.Controller
	Store      *store.Store
	Reconciler *syncer.Reconciler
	Monitor    *netmon.Monitor
	Policy     *venue.Policy
}

type startSessionRequest struct {
	OwnerID string `json:"owner_id"`
	DJName  string `json:"dj_name"`
	Venue   *struct {
		Name       string   `json:"name"`
		City       string   `json:"city"`
		Country    string   `json:"country"`
		VenueTypes []string `json:"venue_types"`
	} `json:"venue"`
}

func (app *App) StartSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.OwnerID == "" {
		http.Error(w, "owner_id is required", http.StatusBadRequest)
		return
	}

	var snap *models.VenueSnapshot
	if req.Venue != nil {
		snap = app.Policy.Snapshot(req.Venue.Name, req.Venue.City, req.Venue.Country, req.Venue.VenueTypes)
	}

	sess, err := app.Controller.Start(r.Context(), req.OwnerID, req.DJName, snap)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			http.Error(w, "a session is already recording", http.StatusConflict)
			return
		}
		log.Printf("[API] failed to start session: %v", err)
		http.Error(w, "failed to start session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, sessionResponse(sess, nil))
}

func (app *App) StopSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess, tracks, err := app.Controller.Stop(r.Context())
	if err != nil {
		if errors.Is(err, session.ErrNotRecording) {
			http.Error(w, "no session is recording", http.StatusConflict)
			return
		}
		log.Printf("[API] failed to stop session: %v", err)
		http.Error(w, "failed to stop session", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse(sess, tracks))
}

func (app *App) CurrentSessionHandler(w http.ResponseWriter, r *http.Request) {
	sess := app.Controller.Current()
	if sess == nil {
		respondJSON(w, http.StatusOK, map[string]any{
			"state": string(app.Controller.State()),
		})
		return
	}

	body := sessionResponse(sess, app.Controller.IdentifiedTracks())
	body["state"] = string(app.Controller.State())
	respondJSON(w, http.StatusOK, body)
}

func (app *App) PendingSessionsHandler(w http.ResponseWriter, r *http.Request) {
	sessions, err := app.Store.ListPendingSessions(r.Context())
	if err != nil {
		log.Printf("[API] failed to list pending sessions: %v", err)
		http.Error(w, "failed to list pending sessions", http.StatusInternalServerError)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, sess := range sessions {
		body := sessionResponse(sess, nil)
		body["recordings"] = len(sess.Recordings)
		out = append(out, body)
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (app *App) PendingCountHandler(w http.ResponseWriter, r *http.Request) {
	count, err := app.Store.PendingSessionCount(r.Context())
	if err != nil {
		log.Printf("[API] failed to count pending sessions: %v", err)
		http.Error(w, "failed to count pending sessions", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"pending": count})
}

func (app *App) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := app.Store.DeleteSession(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Printf("[API] failed to delete session %s: %v", id, err)
		http.Error(w, "failed to delete session", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NetworkHandler feeds the device's connectivity signal into the monitor.
// A report of restored connectivity is what arms the reconciler's watch; the
// monitor still debounces, so a flapping reporter cannot cause event storms.
func (app *App) NetworkHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Online *bool `json:"online"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Online == nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	app.Monitor.SetOnline(*req.Online)
	respondJSON(w, http.StatusOK, map[string]any{"online": app.Monitor.IsOnline()})
}

// CorrectVenueHandler stores a user-supplied venue name against a finished
// session. The original snapshot and its qualifying flag stay untouched.
func (app *App) CorrectVenueHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Venue string `json:"venue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Venue == "" {
		http.Error(w, "venue is required", http.StatusBadRequest)
		return
	}

	if err := app.Store.SetCorrectedVenue(r.Context(), id, req.Venue); err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Printf("[API] failed to correct venue for session %s: %v", id, err)
		http.Error(w, "failed to correct venue", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (app *App) SyncHandler(w http.ResponseWriter, r *http.Request) {
	synced, failed, results := app.Reconciler.SyncPending(r.Context())

	tracks := make([]models.TrackIdentification, 0, len(results))
	tracks = append(tracks, results...)

	respondJSON(w, http.StatusOK, map[string]any{
		"synced":  synced,
		"failed":  failed,
		"results": tracks,
	})
}

func sessionResponse(sess *models.Session, tracks []models.TrackIdentification) map[string]any {
	body := map[string]any{
		"id":         sess.ID,
		"owner_id":   sess.OwnerID,
		"dj_name":    sess.DJName,
		"status":     string(sess.Status),
		"start_time": sess.StartTime,
	}
	if sess.EndTime != nil {
		body["end_time"] = sess.EndTime
	}
	if sess.Venue != nil {
		body["venue"] = sess.Venue
	}
	if sess.CorrectedVenue != "" {
		body["corrected_venue"] = sess.CorrectedVenue
	}
	if tracks != nil {
		body["tracks"] = tracks
	}
	return body
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[API] failed to encode response: %v", err)
	}
}
