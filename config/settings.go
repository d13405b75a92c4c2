package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Library   LibrarySettings   `json:"library"`
	Transcode TranscodeSettings `json:"transcode"`
	Subtitles SubtitleSettings  `json:"subtitles"`
	Database  DatabaseSettings  `json:"database"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	APIKey string `json:"apiKey"`
}

// LibrarySettings locates the media files served by the API.
type LibrarySettings struct {
	Root string `json:"root"`
}

// TranscodeSettings configures the media tool binaries and probing behavior.
type TranscodeSettings struct {
	FFmpegPath           string `json:"ffmpegPath"`
	FFprobePath          string `json:"ffprobePath"`
	ProbeTimeoutSeconds  int    `json:"probeTimeoutSeconds"`
	ProbeCacheTTLSeconds int    `json:"probeCacheTtlSeconds"`
}

// SubtitleSettings tunes the extraction strategy chain.
type SubtitleSettings struct {
	FastCopyTimeoutSeconds int   `json:"fastCopyTimeoutSeconds"`
	FastCopyMinBytes       int64 `json:"fastCopyMinBytes"`
	ConvertTimeoutSeconds  int   `json:"convertTimeoutSeconds"`
	ConvertAttempts        int   `json:"convertAttempts"`
	ChunkTimeoutSeconds    int   `json:"chunkTimeoutSeconds"`
}

// DatabaseSettings locates the watch-progress database.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns the configuration used on first boot.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host: "0.0.0.0",
			Port: 8417,
		},
		Library: LibrarySettings{
			Root: "/media",
		},
		Transcode: TranscodeSettings{
			FFmpegPath:           "ffmpeg",
			FFprobePath:          "ffprobe",
			ProbeTimeoutSeconds:  15,
			ProbeCacheTTLSeconds: 300,
		},
		Subtitles: SubtitleSettings{
			FastCopyTimeoutSeconds: 10,
			FastCopyMinBytes:       1 << 20,
			ConvertTimeoutSeconds:  30,
			ConvertAttempts:        3,
			ChunkTimeoutSeconds:    15,
		},
		Database: DatabaseSettings{
			Path: "data/medialib.db",
		},
		Log: LogConfig{
			File:       "data/medialib.log",
			MaxSize:    20,
			MaxAge:     14,
			MaxBackups: 3,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir ensures parent directory exists.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk or creates defaults if missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	var s Settings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}

	// Backfill defaults when the file predates newer settings.
	if strings.TrimSpace(s.Transcode.FFmpegPath) == "" {
		s.Transcode.FFmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(s.Transcode.FFprobePath) == "" {
		s.Transcode.FFprobePath = "ffprobe"
	}
	if s.Transcode.ProbeTimeoutSeconds <= 0 {
		s.Transcode.ProbeTimeoutSeconds = 15
	}
	if s.Transcode.ProbeCacheTTLSeconds < 0 {
		s.Transcode.ProbeCacheTTLSeconds = 0
	}
	if strings.TrimSpace(s.Library.Root) == "" {
		s.Library.Root = "/media"
	}
	if s.Subtitles.FastCopyTimeoutSeconds <= 0 {
		s.Subtitles.FastCopyTimeoutSeconds = 10
	}
	if s.Subtitles.FastCopyMinBytes <= 0 {
		s.Subtitles.FastCopyMinBytes = 1 << 20
	}
	if s.Subtitles.ConvertTimeoutSeconds <= 0 {
		s.Subtitles.ConvertTimeoutSeconds = 30
	}
	if s.Subtitles.ConvertAttempts <= 0 {
		s.Subtitles.ConvertAttempts = 3
	}
	if s.Subtitles.ChunkTimeoutSeconds <= 0 {
		s.Subtitles.ChunkTimeoutSeconds = 15
	}
	if strings.TrimSpace(s.Database.Path) == "" {
		s.Database.Path = "data/medialib.db"
	}
	if s.Server.Port <= 0 {
		s.Server.Port = 8417
	}
	if strings.TrimSpace(s.Server.Host) == "" {
		s.Server.Host = "0.0.0.0"
	}

	return s, nil
}

// Save writes the provided settings to disk atomically.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}
