package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"medialib/models"
	"medialib/services/catalog"
	"medialib/services/probe"
)

type audioTracksResponse struct {
	Tracks       []models.AudioTrack `json:"tracks"`
	DefaultTrack int                 `json:"defaultTrack"`
	Error        string              `json:"error,omitempty"`
}

type subtitleTracksResponse struct {
	Tracks       []models.SubtitleTrack `json:"tracks"`
	DefaultTrack int                    `json:"defaultTrack"`
	Error        string                 `json:"error,omitempty"`
}

// GetAudioTracks handles GET /api/video/tracks/audio?path=.
func (h *VideoHandler) GetAudioTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}

	res, ok := h.probeForTracks(w, r)
	if !ok {
		return
	}
	if res == nil {
		h.writeJSON(w, http.StatusOK, audioTracksResponse{
			Tracks: []models.AudioTrack{},
			Error:  "Could not read audio track metadata",
		})
		return
	}

	tracks := catalog.AudioTracks(res)
	h.writeJSON(w, http.StatusOK, audioTracksResponse{
		Tracks:       tracks,
		DefaultTrack: defaultAudioTrack(tracks),
	})
}

// GetSubtitleTracks handles GET /api/video/tracks/subtitles?path=.
func (h *VideoHandler) GetSubtitleTracks(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}

	res, ok := h.probeForTracks(w, r)
	if !ok {
		return
	}
	if res == nil {
		h.writeJSON(w, http.StatusOK, subtitleTracksResponse{
			Tracks: []models.SubtitleTrack{},
			Error:  "Could not read subtitle track metadata",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, subtitleTracksResponse{
		Tracks:       catalog.SubtitleTracks(res),
		DefaultTrack: 0,
	})
}

// probeForTracks resolves and probes the requested file. A nil result with
// ok=true means the file exists but its metadata is unreadable; the caller
// answers with an error payload instead of failing the request.
func (h *VideoHandler) probeForTracks(w http.ResponseWriter, r *http.Request) (*probe.Result, bool) {
	rawPath := r.URL.Query().Get("path")
	absPath, err := h.library.Resolve(rawPath)
	if err != nil {
		h.writeLibraryError(w, rawPath, err)
		return nil, false
	}

	res, err := h.prober.Probe(r.Context(), absPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.writeError(w, http.StatusGatewayTimeout, "Timed out reading media metadata")
			return nil, false
		}
		log.Printf("[tracks] probe failed for %q: %v", rawPath, err)
		return nil, true
	}
	return res, true
}

// defaultAudioTrack picks the first browser-compatible track, falling back
// to the first track.
func defaultAudioTrack(tracks []models.AudioTrack) int {
	for _, t := range tracks {
		if t.IsBrowserCompatible {
			return t.ArrayIndex
		}
	}
	return 0
}
