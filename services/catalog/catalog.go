// Package catalog derives browser-compatibility-annotated track lists from a
// probe result. The catalog is the contract between probing and everything
// downstream: negotiation, extraction, and the track-listing endpoints all
// select tracks by catalog index, never by raw stream index.
package catalog

import (
	"sort"
	"strings"

	"medialib/models"
	"medialib/services/probe"
)

// Browser playback limits for audio. Anything outside these needs a re-encode.
const (
	NativeAudioCodec = "aac"
	MaxSampleRate    = 48000
	MaxChannels      = 2
)

// Audio quality bucket thresholds, inclusive lower bounds, highest first.
const (
	bitrateHigh     = 320000
	bitrateGood     = 256000
	bitrateStandard = 192000
	bitrateBasic    = 128000
)

// compatibleSubtitleCodecs is the whitelist of text formats the player can
// consume after a cheap conversion. ASS/SSA and bitmap formats (PGS, DVD)
// need a full conversion pass.
var compatibleSubtitleCodecs = map[string]struct{}{
	"subrip": {},
	"srt":    {},
	"webvtt": {},
	"vtt":    {},
}

var subtitleCodecDisplayNames = map[string]string{
	"subrip":            "SubRip",
	"srt":               "SubRip",
	"webvtt":            "WebVTT",
	"vtt":               "WebVTT",
	"ass":               "Advanced SubStation Alpha",
	"ssa":               "SubStation Alpha",
	"mov_text":          "MP4 Timed Text",
	"dvd_subtitle":      "DVD Subtitle",
	"dvdsub":            "DVD Subtitle",
	"hdmv_pgs_subtitle": "PGS",
	"pgssub":            "PGS",
}

// AudioTracks derives the ordered audio catalog. ArrayIndex values are
// 0..n-1 in stream order.
func AudioTracks(res *probe.Result) []models.AudioTrack {
	streams := res.StreamsOfType("audio")
	tracks := make([]models.AudioTrack, 0, len(streams))
	for i, s := range streams {
		codec := strings.ToLower(strings.TrimSpace(s.CodecName))
		bitrate := s.BitRateInt()
		sampleRate := s.SampleRateInt()
		tracks = append(tracks, models.AudioTrack{
			ArrayIndex:          i,
			StreamIndex:         s.Index,
			Codec:               codec,
			BitRate:             bitrate,
			SampleRate:          sampleRate,
			Channels:            s.Channels,
			Language:            resolveLanguage(s.Tags, s.Tag("title")),
			Title:               s.Tag("title"),
			Quality:             audioQuality(bitrate),
			IsBrowserCompatible: IsBrowserCompatibleAudio(codec, sampleRate, s.Channels),
		})
	}
	return tracks
}

// IsBrowserCompatibleAudio reports whether a track can be stream-copied: the
// platform-native codec at a sample rate and channel count the player accepts.
func IsBrowserCompatibleAudio(codec string, sampleRate, channels int) bool {
	return codec == NativeAudioCodec && sampleRate <= MaxSampleRate && channels <= MaxChannels
}

func audioQuality(bitrate int64) models.AudioQuality {
	switch {
	case bitrate >= bitrateHigh:
		return models.AudioQualityHigh
	case bitrate >= bitrateGood:
		return models.AudioQualityGood
	case bitrate >= bitrateStandard:
		return models.AudioQualityStandard
	case bitrate >= bitrateBasic:
		return models.AudioQualityBasic
	default:
		return models.AudioQualityLow
	}
}

// SubtitleTracks derives the ordered subtitle catalog. The ordering decides
// which track is offered as default: compatible before incompatible, then
// default-flagged, then English, then alphabetical by language name.
func SubtitleTracks(res *probe.Result) []models.SubtitleTrack {
	streams := res.StreamsOfType("subtitle")
	tracks := make([]models.SubtitleTrack, 0, len(streams))
	for _, s := range streams {
		codec := strings.ToLower(strings.TrimSpace(s.CodecName))
		tracks = append(tracks, models.SubtitleTrack{
			StreamIndex:         s.Index,
			Language:            resolveLanguage(s.Tags, s.Tag("title")),
			Codec:               codec,
			CodecDisplayName:    subtitleCodecDisplayName(codec),
			IsBrowserCompatible: IsBrowserCompatibleSubtitle(codec),
			IsDefault:           s.IsDefault(),
			IsForced:            s.IsForced(),
			Title:               s.Tag("title"),
		})
	}

	sort.SliceStable(tracks, func(i, j int) bool {
		a, b := tracks[i], tracks[j]
		if a.IsBrowserCompatible != b.IsBrowserCompatible {
			return a.IsBrowserCompatible
		}
		if a.IsDefault != b.IsDefault {
			return a.IsDefault
		}
		aEnglish := a.Language == "English"
		bEnglish := b.Language == "English"
		if aEnglish != bEnglish {
			return aEnglish
		}
		return strings.ToLower(a.Language) < strings.ToLower(b.Language)
	})

	for i := range tracks {
		tracks[i].ArrayIndex = i
	}
	return tracks
}

// IsBrowserCompatibleSubtitle reports whether a subtitle codec is in the
// SRT/WebVTT whitelist.
func IsBrowserCompatibleSubtitle(codec string) bool {
	_, ok := compatibleSubtitleCodecs[strings.ToLower(strings.TrimSpace(codec))]
	return ok
}

func subtitleCodecDisplayName(codec string) string {
	if name, ok := subtitleCodecDisplayNames[codec]; ok {
		return name
	}
	return codec
}
