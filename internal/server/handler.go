// Package server exposes the catalog and the sync coordinator over a JSON
// HTTP API.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cesargomez89/karasync/internal/config"
	"github.com/cesargomez89/karasync/internal/logger"
	"github.com/cesargomez89/karasync/internal/store"
	"github.com/cesargomez89/karasync/internal/syncer"
)

type Handler struct {
	DB          *store.DB
	Coordinator *syncer.Coordinator
	Config      *config.Config
	Logger      *logger.Logger
}

func NewHandler(db *store.DB, coord *syncer.Coordinator, cfg *config.Config, log *logger.Logger) *Handler {
	return &Handler{
		DB:          db,
		Coordinator: coord,
		Config:      cfg,
		Logger:      log.WithComponent("http"),
	}
}

// Router builds the chi router with all API routes mounted.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/facets", h.Facets)

		r.Route("/songs", func(r chi.Router) {
			r.Get("/", h.ListSongs)
			r.Post("/search", h.SearchSongs)
			r.Get("/{id}", h.GetSong)
			r.Get("/{id}/similar", h.SimilarSongs)
			r.Get("/{id}/folders", h.GetSongFolders)
			r.Post("/{id}/preview", h.PreviewSong)
			r.Post("/{id}/download", h.DownloadSong)
			r.Post("/{id}/abort", h.AbortSong)
			r.Delete("/{id}/local", h.RemoveLocalSong)
		})

		r.Post("/folders/{folderID}/pin", h.PinFolder)

		r.Route("/searches", func(r chi.Router) {
			r.Get("/", h.ListSearches)
			r.Post("/", h.SaveSearch)
			r.Put("/{name}", h.UpdateSearch)
			r.Post("/{name}/rename", h.RenameSearch)
			r.Delete("/{name}", h.DeleteSearch)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Post("/", h.StartSync)
			r.Post("/pause", h.PauseSync)
			r.Post("/resume", h.ResumeSync)
			r.Post("/abort", h.AbortSync)
		})
	})
	return r
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			h.Logger.Error("failed to encode response", "error", err)
		}
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed", "error", err)
	}
	h.respondJSON(w, status, map[string]string{"error": err.Error()})
}
