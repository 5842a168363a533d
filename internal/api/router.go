package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Post("/api/session/start", app.StartSessionHandler)
	r.Post("/api/session/stop", app.StopSessionHandler)
	r.Get("/api/session", app.CurrentSessionHandler)

	r.Get("/api/sessions/pending", app.PendingSessionsHandler)
	r.Get("/api/sessions/pending/count", app.PendingCountHandler)
	r.Delete("/api/sessions/{id}", app.DeleteSessionHandler)
	r.Patch("/api/sessions/{id}/venue", app.CorrectVenueHandler)

	r.Post("/api/sync", app.SyncHandler)
	r.Post("/api/network", app.NetworkHandler)

	return r
}
