package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"medialib/models"
)

type progressUpdateRequest struct {
	Path            string  `json:"path"`
	PositionSeconds float64 `json:"positionSeconds"`
}

// UpdateProgress handles POST /api/video/progress with a JSON body carrying
// the current playback position. Clients report periodically; last write
// wins.
func (h *VideoHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}
	if h.progress == nil {
		h.writeError(w, http.StatusNotImplemented, "Progress tracking disabled")
		return
	}

	var req progressUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid progress payload")
		return
	}
	if req.PositionSeconds < 0 {
		h.writeError(w, http.StatusBadRequest, "Position must not be negative")
		return
	}

	videoID, err := h.library.VideoID(req.Path)
	if err != nil {
		h.writeLibraryError(w, req.Path, err)
		return
	}

	if err := h.progress.UpdatePosition(r.Context(), requestUser(r), videoID, req.PositionSeconds); err != nil {
		log.Printf("[progress] update failed for %q: %v", videoID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to save progress")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListProgress handles GET /api/video/progress and returns the user's watch
// history, most recent first.
func (h *VideoHandler) ListProgress(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}
	if h.progress == nil {
		h.writeError(w, http.StatusNotImplemented, "Progress tracking disabled")
		return
	}

	list, err := h.progress.List(r.Context(), requestUser(r))
	if err != nil {
		log.Printf("[progress] list failed: %v", err)
		h.writeError(w, http.StatusInternalServerError, "Failed to load progress")
		return
	}
	if list == nil {
		list = []models.WatchProgress{}
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"items": list})
}
