package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sethvargo/go-password/password"
	"gopkg.in/natefinch/lumberjack.v2"

	"medialib/api"
	"medialib/config"
	"medialib/handlers"
	"medialib/internal/library"
	"medialib/services/probe"
	"medialib/services/progress"
	"medialib/services/subtitles"
	"medialib/services/transcode"
)

func main() {
	portOverride := flag.Int("port", 0, "override server port from config")
	libraryOverride := flag.String("library", "", "override media library root from config")
	flag.Parse()

	fmt.Println("medialib starting...")

	configPath := os.Getenv("MEDIALIB_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("data", "settings.json")
	}

	cfgManager := config.NewManager(configPath)
	settings, err := cfgManager.Load()
	if err != nil {
		log.Fatalf("failed to load settings: %v", err)
	}

	// Set up file logging with rotation
	if settings.Log.File != "" {
		logDir := filepath.Dir(settings.Log.File)
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		} else {
			fileWriter := &lumberjack.Logger{
				Filename:   settings.Log.File,
				MaxSize:    settings.Log.MaxSize,
				MaxBackups: settings.Log.MaxBackups,
				MaxAge:     settings.Log.MaxAge,
				Compress:   settings.Log.Compress,
			}
			log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
			log.SetFlags(log.LstdFlags | log.Lshortfile)
			log.Printf("Logging to file: %s", settings.Log.File)
		}
	}

	if *portOverride > 0 {
		settings.Server.Port = *portOverride
	}
	if *libraryOverride != "" {
		settings.Library.Root = *libraryOverride
	}

	// Generate an API key on first boot so reverse proxies have something to
	// check, even though the server itself does not enforce auth.
	if strings.TrimSpace(settings.Server.APIKey) == "" {
		key, err := password.Generate(32, 10, 0, false, true)
		if err != nil {
			log.Fatalf("failed to generate API key: %v", err)
		}
		settings.Server.APIKey = key
		if err := cfgManager.Save(settings); err != nil {
			log.Fatalf("failed to persist generated API key: %v", err)
		}
		fmt.Printf("Generated API key: %s\n", key)
	}

	lib, err := library.New(settings.Library.Root)
	if err != nil {
		log.Fatalf("failed to open media library: %v", err)
	}
	fmt.Printf("Media library: %s\n", lib.Root())

	if dir := filepath.Dir(settings.Database.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create database directory: %v", err)
		}
	}
	progressStore, err := progress.Open(settings.Database.Path)
	if err != nil {
		log.Fatalf("failed to open progress database: %v", err)
	}
	defer progressStore.Close()

	prober := probe.New(
		settings.Transcode.FFprobePath,
		time.Duration(settings.Transcode.ProbeTimeoutSeconds)*time.Second,
		time.Duration(settings.Transcode.ProbeCacheTTLSeconds)*time.Second,
	)
	pipeline := transcode.NewPipeline(settings.Transcode.FFmpegPath, prober, nil)
	extractor := subtitles.NewExtractor(settings.Transcode.FFmpegPath, nil, subtitles.Config{
		FastCopyTimeout:  time.Duration(settings.Subtitles.FastCopyTimeoutSeconds) * time.Second,
		FastCopyMinBytes: settings.Subtitles.FastCopyMinBytes,
		ConvertTimeout:   time.Duration(settings.Subtitles.ConvertTimeoutSeconds) * time.Second,
		ConvertAttempts:  settings.Subtitles.ConvertAttempts,
		ChunkTimeout:     time.Duration(settings.Subtitles.ChunkTimeoutSeconds) * time.Second,
	})

	videoHandler := handlers.NewVideoHandler(lib, prober, pipeline, extractor, progressStore)

	r := mux.NewRouter()
	api.Register(r, videoHandler)

	addr := fmt.Sprintf("%s:%d", settings.Server.Host, settings.Server.Port)
	fmt.Printf("Server starting on %s\n", addr)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for streaming
		IdleTimeout:  120 * time.Second,
	}

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-shutdownChan
	log.Println("Shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Shutdown complete")
}
