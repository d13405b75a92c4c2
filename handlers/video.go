package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"medialib/internal/library"
	"medialib/models"
	"medialib/services/probe"
	"medialib/services/transcode"
)

// defaultUserID is used when the client sends no identity header. Auth is
// outside this server; the header only partitions watch progress.
const defaultUserID = "default"

// Prober is the slice of the probe service the handlers need.
type Prober interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// SubtitleService extracts subtitle tracks as WebVTT.
type SubtitleService interface {
	Extract(ctx context.Context, path string, streamIndex int, codec string) ([]byte, error)
	ExtractChunk(ctx context.Context, path string, streamIndex int, codec string, start, duration float64) ([]byte, error)
}

// ProgressService records per-user watch state.
type ProgressService interface {
	RecordStart(ctx context.Context, userID, videoID string, sizeBytes int64, durationSeconds float64) error
	UpdatePosition(ctx context.Context, userID, videoID string, positionSeconds float64) error
	List(ctx context.Context, userID string) ([]models.WatchProgress, error)
}

// VideoHandler serves the streaming, track listing, and subtitle endpoints.
type VideoHandler struct {
	library   *library.Library
	prober    Prober
	pipeline  *transcode.Pipeline
	subtitles SubtitleService
	progress  ProgressService
}

func NewVideoHandler(lib *library.Library, prober Prober, pipeline *transcode.Pipeline, subtitles SubtitleService, progress ProgressService) *VideoHandler {
	return &VideoHandler{
		library:   lib,
		prober:    prober,
		pipeline:  pipeline,
		subtitles: subtitles,
		progress:  progress,
	}
}

// StreamVideo handles GET /api/video/stream?path=&start=&audioTrack=.
// The response is a fragmented MP4 stream with no Content-Length; bytes go
// out as the transcoder produces them.
func (h *VideoHandler) StreamVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		h.HandleOptions(w, r)
		return
	}

	rawPath := r.URL.Query().Get("path")
	absPath, err := h.library.Resolve(rawPath)
	if err != nil {
		h.writeLibraryError(w, rawPath, err)
		return
	}
	if !h.library.IsVideo(absPath) {
		h.writeError(w, http.StatusBadRequest, "Not a video file")
		return
	}

	start := parseFloat(r.URL.Query().Get("start"), 0)
	if start < 0 {
		start = 0
	}
	audioTrack := parseInt(r.URL.Query().Get("audioTrack"), 0)

	streamID := uuid.NewString()[:8]
	log.Printf("[video] stream %s: path=%q start=%.3f audioTrack=%d user=%s",
		streamID, rawPath, start, audioTrack, requestUser(r))

	session := h.pipeline.Prepare(r.Context(), absPath, audioTrack, start)

	h.writeCommonHeaders(w)
	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", streamBaseName(rawPath)))
	if session.DurationSeconds > 0 {
		w.Header().Set("X-Content-Duration", strconv.FormatFloat(session.DurationSeconds, 'f', 3, 64))
	}

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	h.recordStart(r, rawPath, session)

	if err := session.Start(r.Context()); err != nil {
		log.Printf("[video] stream %s: transcoder start failed: %v", streamID, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to start video stream")
		return
	}
	defer session.Close()

	w.WriteHeader(http.StatusOK)
	if _, err := session.StreamTo(r.Context(), w); err != nil {
		// Headers are long gone; nothing to send the client. Disconnects are
		// routine, anything else is worth a log line.
		if isClientGone(err) || errors.Is(err, context.Canceled) {
			log.Printf("[video] stream %s: client disconnected", streamID)
			return
		}
		log.Printf("[video] stream %s: streaming failed: %v", streamID, err)
	}
}

// recordStart persists the watch side effect before the first response byte.
// Progress is best effort and never blocks playback.
func (h *VideoHandler) recordStart(r *http.Request, rawPath string, session *transcode.Session) {
	if h.progress == nil {
		return
	}
	videoID, err := h.library.VideoID(rawPath)
	if err != nil {
		return
	}
	if err := h.progress.RecordStart(r.Context(), requestUser(r), videoID, session.SizeBytes, session.DurationSeconds); err != nil {
		log.Printf("[video] progress record failed for %q: %v", videoID, err)
	}
}

// HandleOptions handles CORS preflight requests
func (h *VideoHandler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	h.writeCommonHeaders(w)
	w.WriteHeader(http.StatusOK)
}

func (h *VideoHandler) writeCommonHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
	w.Header().Set(
		"Access-Control-Allow-Headers",
		"Range, Content-Type, Accept, Origin, Authorization, X-User-ID, X-Requested-With",
	)
	w.Header().Set(
		"Access-Control-Expose-Headers",
		"Content-Length, Content-Type, X-Content-Duration",
	)
	w.Header().Set("Cross-Origin-Resource-Policy", "cross-origin")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}

func (h *VideoHandler) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeCommonHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *VideoHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	h.writeCommonHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeLibraryError maps library resolution failures onto HTTP statuses.
func (h *VideoHandler) writeLibraryError(w http.ResponseWriter, rawPath string, err error) {
	switch {
	case errors.Is(err, library.ErrNotFound):
		h.writeError(w, http.StatusNotFound, "Video file not found")
	case errors.Is(err, library.ErrInvalidPath):
		h.writeError(w, http.StatusBadRequest, "Invalid video path")
	default:
		log.Printf("[video] resolve %q failed: %v", rawPath, err)
		h.writeError(w, http.StatusInternalServerError, "Failed to access video file")
	}
}

func requestUser(r *http.Request) string {
	if u := strings.TrimSpace(r.Header.Get("X-User-ID")); u != "" {
		return u
	}
	return defaultUserID
}

func streamBaseName(rawPath string) string {
	base := filepath.Base(filepath.FromSlash(rawPath))
	ext := filepath.Ext(base)
	return strings.TrimSuffix(base, ext) + ".mp4"
}

func parseFloat(s string, fallback float64) float64 {
	if s == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fallback
	}
	return v
}

func parseInt(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}

func isClientGone(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Err != nil {
			if errors.Is(netErr.Err, syscall.EPIPE) || errors.Is(netErr.Err, syscall.ECONNRESET) || errors.Is(netErr.Err, os.ErrClosed) {
				return true
			}
		}
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset")
}
