package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/cesargomez89/karasync/internal/domain"
	"github.com/cesargomez89/karasync/internal/store"
)

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	count, err := h.DB.SongCount()
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"songs":  count,
		"paused": h.Coordinator.Paused(),
	})
}

func (h *Handler) Facets(w http.ResponseWriter, r *http.Request) {
	type facetSet struct {
		Languages []store.ValueCount `json:"languages"`
		Genres    []store.ValueCount `json:"genres"`
		Creators  []store.ValueCount `json:"creators"`
		Editions  []store.ValueCount `json:"editions"`
		Years     []store.ValueCount `json:"years"`
	}
	var out facetSet
	var err error
	if out.Languages, err = h.DB.LanguagesWithCount(); err == nil {
		if out.Genres, err = h.DB.GenresWithCount(); err == nil {
			if out.Creators, err = h.DB.CreatorsWithCount(); err == nil {
				if out.Editions, err = h.DB.EditionsWithCount(); err == nil {
					out.Years, err = h.DB.YearsWithCount()
				}
			}
		}
	}
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, out)
}

// ListSongs answers a simple text query taken from the q parameter. Without
// a query, the default saved search applies when one is set.
func (h *Handler) ListSongs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		def, err := h.DB.DefaultSearch()
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, err)
			return
		}
		if def != nil && def.Search != nil {
			h.runSearch(w, def.Search)
			return
		}
	}
	h.runSearch(w, &store.Search{Text: q, Order: store.OrderArtist})
}

// SearchSongs answers a structured search posted as JSON.
func (h *Handler) SearchSongs(w http.ResponseWriter, r *http.Request) {
	var search store.Search
	if err := json.NewDecoder(r.Body).Decode(&search); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid search: %w", err))
		return
	}
	h.runSearch(w, &search)
}

func (h *Handler) runSearch(w http.ResponseWriter, search *store.Search) {
	ids, err := h.DB.SearchSongs(search)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	songs := make([]*domain.RemoteSong, 0, len(ids))
	for _, id := range ids {
		song, err := h.DB.GetSong(id)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, err)
			return
		}
		if song != nil {
			songs = append(songs, song)
		}
	}
	h.respondJSON(w, http.StatusOK, songs)
}

func (h *Handler) songID(w http.ResponseWriter, r *http.Request) (domain.SongID, bool) {
	id, err := domain.ParseSongID(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err)
		return 0, false
	}
	return id, true
}

func (h *Handler) GetSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	song, err := h.DB.GetSong(id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if song == nil {
		h.respondError(w, http.StatusNotFound, fmt.Errorf("song %d not found", id))
		return
	}
	h.respondJSON(w, http.StatusOK, song)
}

// SimilarSongs lists catalog entries whose artist and title both start with
// the given song's, a cheap duplicate check before downloading.
func (h *Handler) SimilarSongs(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	song, err := h.DB.GetSong(id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if song == nil {
		h.respondError(w, http.StatusNotFound, fmt.Errorf("song %d not found", id))
		return
	}
	ids, err := h.DB.FindSimilar(song.Artist, song.Title)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, ids)
}

// PreviewSong marks the song as the one currently previewing; a false flag
// clears the marker.
func (h *Handler) PreviewSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	var body struct {
		Playing bool `json:"playing"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid preview request: %w", err))
		return
	}
	if !body.Playing {
		id = 0
	}
	if err := h.DB.SetPlaying(id); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"playing": body.Playing})
}

// PinFolder toggles the pin flag. Pinned folders are never overwritten by a
// sync pass.
func (h *Handler) PinFolder(w http.ResponseWriter, r *http.Request) {
	folderID, err := strconv.ParseInt(chi.URLParam(r, "folderID"), 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid folder id: %w", err))
		return
	}
	var body struct {
		Pinned bool `json:"pinned"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid pin request: %w", err))
		return
	}
	if err := h.DB.SetFolderPinned(folderID, body.Pinned); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]bool{"pinned": body.Pinned})
}

func (h *Handler) GetSongFolders(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	folders, err := h.DB.FoldersForSong(id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	type folderWithResources struct {
		*domain.SyncFolder
		Resources []*domain.ResourceRecord `json:"resources"`
	}
	out := make([]*folderWithResources, 0, len(folders))
	for _, folder := range folders {
		resources, err := h.DB.ResourcesForFolder(folder.FolderID)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, err)
			return
		}
		out = append(out, &folderWithResources{SyncFolder: folder, Resources: resources})
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handler) DownloadSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	if err := h.Coordinator.Enqueue(id); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *Handler) AbortSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	status, err := h.DB.GetDownloadStatus(id)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !status.CanBeAborted() {
		h.respondJSON(w, http.StatusOK, map[string]string{"status": "idle"})
		return
	}
	h.Coordinator.Abort(id)
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (h *Handler) RemoveLocalSong(w http.ResponseWriter, r *http.Request) {
	id, ok := h.songID(w, r)
	if !ok {
		return
	}
	trash := r.URL.Query().Get("trash") == "true" || h.Config.TrashRemoved
	if err := h.Coordinator.RemoveSong(id, trash); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) ListSearches(w http.ResponseWriter, r *http.Request) {
	searches, err := h.DB.ListSearches(r.URL.Query().Get("subscribed") == "true")
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, searches)
}

func (h *Handler) SaveSearch(w http.ResponseWriter, r *http.Request) {
	var saved store.SavedSearch
	if err := json.NewDecoder(r.Body).Decode(&saved); err != nil || saved.Name == "" || saved.Search == nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid saved search"))
		return
	}
	name, err := h.DB.SaveSearch(&saved)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]string{"name": name})
}

func (h *Handler) UpdateSearch(w http.ResponseWriter, r *http.Request) {
	var saved store.SavedSearch
	if err := json.NewDecoder(r.Body).Decode(&saved); err != nil || saved.Search == nil {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid saved search"))
		return
	}
	saved.Name = chi.URLParam(r, "name")
	if err := h.DB.UpdateSearch(&saved); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"name": saved.Name})
}

func (h *Handler) RenameSearch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		h.respondError(w, http.StatusBadRequest, errors.New("invalid rename request"))
		return
	}
	name, err := h.DB.RenameSearch(chi.URLParam(r, "name"), body.Name)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"name": name})
}

func (h *Handler) DeleteSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.DeleteSearch(chi.URLParam(r, "name")); err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// StartSync refreshes the catalog, reconciles the song root with the store
// and then enqueues every song matched by a subscribed search.
func (h *Handler) StartSync(w http.ResponseWriter, r *http.Request) {
	discovered, err := h.Coordinator.RefreshCatalog(r.Context())
	if err != nil {
		h.Logger.Warn("catalog refresh failed", "error", err)
	}
	stats, err := h.Coordinator.Reconcile(h.Config.SongDir)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, err)
		return
	}
	queued := 0
	if h.Config.AutoDownload {
		if queued, err = h.Coordinator.AutoEnqueue(); err != nil {
			h.respondError(w, http.StatusInternalServerError, err)
			return
		}
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"discovered": discovered,
		"reconciled": stats,
		"queued":     queued,
	})
}

func (h *Handler) PauseSync(w http.ResponseWriter, r *http.Request) {
	h.Coordinator.Pause()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (h *Handler) ResumeSync(w http.ResponseWriter, r *http.Request) {
	h.Coordinator.Resume()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *Handler) AbortSync(w http.ResponseWriter, r *http.Request) {
	h.Coordinator.AbortAll()
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}
