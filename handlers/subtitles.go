package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"medialib/services/catalog"
)

const defaultChunkDuration = 30.0

// GetSubtitles handles GET /api/video/subtitles?path=&track=. The track
// parameter indexes the sorted catalog returned by the subtitle track
// listing, not the raw container stream index.
func (h *VideoHandler) GetSubtitles(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}
	h.serveSubtitles(w, r, false)
}

// GetSubtitleChunk handles GET /api/video/subtitles/chunk?path=&track=&start=&duration=.
func (h *VideoHandler) GetSubtitleChunk(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}
	h.serveSubtitles(w, r, true)
}

func (h *VideoHandler) serveSubtitles(w http.ResponseWriter, r *http.Request, chunked bool) {
	rawPath := r.URL.Query().Get("path")
	absPath, err := h.library.Resolve(rawPath)
	if err != nil {
		h.writeLibraryError(w, rawPath, err)
		return
	}

	res, err := h.prober.Probe(r.Context(), absPath)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			h.writeError(w, http.StatusGatewayTimeout, "Timed out reading media metadata")
			return
		}
		log.Printf("[subtitles] probe failed for %q: %v", rawPath, err)
		h.writeError(w, http.StatusInternalServerError, "Could not read subtitle metadata")
		return
	}

	tracks := catalog.SubtitleTracks(res)
	trackIndex := parseInt(r.URL.Query().Get("track"), 0)
	// Out of range is a hard 404. Substituting a different language than the
	// one the client picked would be worse than no subtitles.
	if trackIndex < 0 || trackIndex >= len(tracks) {
		h.writeError(w, http.StatusNotFound, "Subtitle track not found")
		return
	}
	track := tracks[trackIndex]

	var data []byte
	var extractErr error
	if chunked {
		start := parseFloat(r.URL.Query().Get("start"), 0)
		if start < 0 {
			start = 0
		}
		duration := parseFloat(r.URL.Query().Get("duration"), defaultChunkDuration)
		if duration <= 0 {
			duration = defaultChunkDuration
		}
		data, extractErr = h.subtitles.ExtractChunk(r.Context(), absPath, track.StreamIndex, track.Codec, start, duration)
	} else {
		data, extractErr = h.subtitles.Extract(r.Context(), absPath, track.StreamIndex, track.Codec)
	}

	if extractErr != nil {
		if r.Context().Err() != nil {
			return
		}
		log.Printf("[subtitles] extraction degraded for %q track %d: %v", rawPath, trackIndex, extractErr)
		if len(data) == 0 {
			h.writeError(w, http.StatusInternalServerError, "Subtitle extraction failed")
			return
		}
		// Placeholder content still goes out as a valid track.
	}

	h.writeCommonHeaders(w)
	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
