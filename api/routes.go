package api

import (
	"net/http"
	"net/http/pprof"

	"github.com/gorilla/mux"

	"medialib/handlers"
)

// localhostOnlyMiddleware restricts access to localhost requests only
func localhostOnlyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host := r.Host
		for i := len(host) - 1; i >= 0; i-- {
			if host[i] == ':' {
				host = host[:i]
				break
			}
		}
		if host != "localhost" && host != "127.0.0.1" && host != "::1" {
			http.Error(w, "Debug endpoints only accessible from localhost", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, HEAD, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(r *mux.Router, videoHandler *handlers.VideoHandler) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	video := api.PathPrefix("/video").Subrouter()
	video.HandleFunc("/stream", videoHandler.StreamVideo).
		Methods(http.MethodGet, http.MethodHead, http.MethodOptions)
	video.HandleFunc("/tracks/audio", videoHandler.GetAudioTracks).
		Methods(http.MethodGet, http.MethodOptions)
	video.HandleFunc("/tracks/subtitles", videoHandler.GetSubtitleTracks).
		Methods(http.MethodGet, http.MethodOptions)
	video.HandleFunc("/subtitles", videoHandler.GetSubtitles).
		Methods(http.MethodGet, http.MethodOptions)
	video.HandleFunc("/subtitles/chunk", videoHandler.GetSubtitleChunk).
		Methods(http.MethodGet, http.MethodOptions)
	video.HandleFunc("/progress", videoHandler.UpdateProgress).
		Methods(http.MethodPost, http.MethodOptions)
	video.HandleFunc("/progress", videoHandler.ListProgress).
		Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	// Pprof endpoints for diagnosing stuck streams (localhost only).
	pprofRouter := api.PathPrefix("/debug/pprof").Subrouter()
	pprofRouter.Use(localhostOnlyMiddleware)
	pprofRouter.HandleFunc("/", pprof.Index)
	pprofRouter.HandleFunc("/cmdline", pprof.Cmdline)
	pprofRouter.HandleFunc("/profile", pprof.Profile)
	pprofRouter.HandleFunc("/symbol", pprof.Symbol)
	pprofRouter.HandleFunc("/trace", pprof.Trace)
	pprofRouter.HandleFunc("/goroutine", pprof.Handler("goroutine").ServeHTTP)
	pprofRouter.HandleFunc("/heap", pprof.Handler("heap").ServeHTTP)
	pprofRouter.HandleFunc("/block", pprof.Handler("block").ServeHTTP)
}
