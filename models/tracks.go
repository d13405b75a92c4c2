package models

// AudioQuality buckets an audio track by bitrate for display purposes.
type AudioQuality string

const (
	AudioQualityLow      AudioQuality = "Low"
	AudioQualityBasic    AudioQuality = "Basic"
	AudioQualityStandard AudioQuality = "Standard"
	AudioQualityGood     AudioQuality = "Good"
	AudioQualityHigh     AudioQuality = "High"
)

// AudioTrack describes one audio stream of a media file as offered to clients.
// ArrayIndex is the 0-based position within the audio-only stream list and is
// the index clients pass back to select a track; StreamIndex is the absolute
// stream index used for ffmpeg -map.
type AudioTrack struct {
	ArrayIndex          int          `json:"arrayIndex"`
	StreamIndex         int          `json:"streamIndex"`
	Codec               string       `json:"codec"`
	BitRate             int64        `json:"bitRate,omitempty"`
	SampleRate          int          `json:"sampleRate,omitempty"`
	Channels            int          `json:"channels,omitempty"`
	Language            string       `json:"language"`
	Title               string       `json:"title,omitempty"`
	Quality             AudioQuality `json:"quality"`
	IsBrowserCompatible bool         `json:"isBrowserCompatible"`
}

// SubtitleTrack describes one subtitle stream. The catalog is sorted
// (compatible, then default-flagged, then English, then alphabetical), and
// ArrayIndex is the position within that sorted list.
type SubtitleTrack struct {
	ArrayIndex          int    `json:"arrayIndex"`
	StreamIndex         int    `json:"streamIndex"`
	Language            string `json:"language"`
	Codec               string `json:"codec"`
	CodecDisplayName    string `json:"codecDisplayName"`
	IsBrowserCompatible bool   `json:"isBrowserCompatible"`
	IsDefault           bool   `json:"isDefault"`
	IsForced            bool   `json:"isForced"`
	Title               string `json:"title,omitempty"`
}
