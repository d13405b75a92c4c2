// Package transcode decides how a requested track combination becomes a
// browser-playable stream and owns the lifecycle of the ffmpeg subprocess
// that produces it.
package transcode

import (
	"fmt"
	"log"

	"medialib/models"
	"medialib/services/catalog"
)

// AudioMode says whether the selected audio stream is passed through
// unmodified or re-encoded.
type AudioMode string

const (
	AudioCopy     AudioMode = "copy"
	AudioReencode AudioMode = "reencode"
)

// Re-encode targets. Bitrate steps down the ladder to the nearest bucket at
// or below the source; sample rate and channels are capped, never raised.
var bitrateLadder = []int64{320000, 256000, 192000, 128000}

const (
	defaultBitrate    = 192000
	defaultSampleRate = 48000
	defaultChannels   = 2
)

// AudioPlan carries the negotiated audio settings for one stream request.
// Source is nil when metadata probing failed and the conservative default
// plan is in use.
type AudioPlan struct {
	Mode             AudioMode
	Source           *models.AudioTrack
	TargetCodec      string
	TargetBitRate    int64
	TargetSampleRate int
	TargetChannels   int
	Reason           string
}

// TargetBitRateArg formats the target bitrate for the transcoder ("320k").
func (p AudioPlan) TargetBitRateArg() string {
	return fmt.Sprintf("%dk", p.TargetBitRate/1000)
}

// Plan is the complete per-request transcode decision. Built fresh per
// request; never persisted.
type Plan struct {
	Audio              AudioPlan
	StartOffsetSeconds float64
}

// Negotiate selects an audio track and decides copy vs re-encode. An
// out-of-range requested index clamps to track 0 rather than failing the
// request; an empty catalog yields the default plan.
func Negotiate(tracks []models.AudioTrack, requestedIndex int) AudioPlan {
	if len(tracks) == 0 {
		plan := DefaultAudioPlan()
		plan.Reason = "no audio tracks in catalog"
		return plan
	}

	if requestedIndex < 0 || requestedIndex >= len(tracks) {
		log.Printf("[transcode] audio track %d out of range (catalog has %d), using track 0", requestedIndex, len(tracks))
		requestedIndex = 0
	}
	track := tracks[requestedIndex]

	if track.IsBrowserCompatible {
		return AudioPlan{
			Mode:   AudioCopy,
			Source: &track,
			Reason: "browser-compatible audio codec",
		}
	}

	return AudioPlan{
		Mode:             AudioReencode,
		Source:           &track,
		TargetCodec:      catalog.NativeAudioCodec,
		TargetBitRate:    targetBitrate(track.BitRate),
		TargetSampleRate: capInt(track.SampleRate, catalog.MaxSampleRate, defaultSampleRate),
		TargetChannels:   capInt(track.Channels, catalog.MaxChannels, defaultChannels),
		Reason:           fmt.Sprintf("audio codec %s requires re-encoding", track.Codec),
	}
}

// DefaultAudioPlan is the conservative plan used when probing failed
// entirely: re-encode to known-safe parameters so playback can still start.
func DefaultAudioPlan() AudioPlan {
	return AudioPlan{
		Mode:             AudioReencode,
		TargetCodec:      catalog.NativeAudioCodec,
		TargetBitRate:    defaultBitrate,
		TargetSampleRate: defaultSampleRate,
		TargetChannels:   defaultChannels,
		Reason:           "metadata unavailable; using default audio settings",
	}
}

// targetBitrate never exceeds the source bitrate. Sources below the bottom
// of the ladder keep their own bitrate; unknown sources get the default.
func targetBitrate(source int64) int64 {
	if source <= 0 {
		return defaultBitrate
	}
	for _, bucket := range bitrateLadder {
		if source >= bucket {
			return bucket
		}
	}
	return source
}

func capInt(value, max, fallback int) int {
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}
