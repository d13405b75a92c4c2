package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefaultsWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	m := NewManager(path)

	s, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Port != 8417 {
		t.Errorf("default port = %d, want 8417", s.Server.Port)
	}
	if s.Transcode.FFmpegPath != "ffmpeg" {
		t.Errorf("default ffmpeg path = %q, want %q", s.Transcode.FFmpegPath, "ffmpeg")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("settings file not created: %v", err)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)

	s := DefaultSettings()
	s.Server.Port = 9999
	s.Library.Root = "/srv/media"
	s.Server.APIKey = "secret"
	if err := m.Save(s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Port != 9999 {
		t.Errorf("port = %d, want 9999", got.Server.Port)
	}
	if got.Library.Root != "/srv/media" {
		t.Errorf("library root = %q, want %q", got.Library.Root, "/srv/media")
	}
	if got.Server.APIKey != "secret" {
		t.Errorf("api key = %q, want %q", got.Server.APIKey, "secret")
	}
}

func TestLoadBackfillsOlderFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	partial := map[string]any{
		"server":  map[string]any{"host": "127.0.0.1"},
		"library": map[string]any{},
	}
	data, _ := json.Marshal(partial)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Server.Port != 8417 {
		t.Errorf("backfilled port = %d, want 8417", s.Server.Port)
	}
	if s.Library.Root != "/media" {
		t.Errorf("backfilled library root = %q, want %q", s.Library.Root, "/media")
	}
	if s.Subtitles.FastCopyMinBytes != 1<<20 {
		t.Errorf("backfilled fast copy threshold = %d, want %d", s.Subtitles.FastCopyMinBytes, 1<<20)
	}
	if s.Subtitles.ConvertAttempts != 3 {
		t.Errorf("backfilled convert attempts = %d, want 3", s.Subtitles.ConvertAttempts)
	}
	if s.Transcode.ProbeTimeoutSeconds != 15 {
		t.Errorf("backfilled probe timeout = %d, want 15", s.Transcode.ProbeTimeoutSeconds)
	}
	if s.Database.Path == "" {
		t.Error("database path not backfilled")
	}
}

func TestSaveIsAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	m := NewManager(path)
	if err := m.Save(DefaultSettings()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after save")
	}
}
