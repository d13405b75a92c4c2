package transcode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/models"
)

func track(arrayIndex, streamIndex int, codec string, bitrate int64, sampleRate, channels int, compatible bool) models.AudioTrack {
	return models.AudioTrack{
		ArrayIndex:          arrayIndex,
		StreamIndex:         streamIndex,
		Codec:               codec,
		BitRate:             bitrate,
		SampleRate:          sampleRate,
		Channels:            channels,
		IsBrowserCompatible: compatible,
	}
}

func TestNegotiateCopyForCompatibleTrack(t *testing.T) {
	tracks := []models.AudioTrack{
		track(0, 1, "aac", 256000, 48000, 2, true),
	}
	plan := Negotiate(tracks, 0)
	assert.Equal(t, AudioCopy, plan.Mode)
	require.NotNil(t, plan.Source)
	assert.Equal(t, 1, plan.Source.StreamIndex)
}

func TestNegotiateReencodeTargets(t *testing.T) {
	tests := []struct {
		name         string
		source       models.AudioTrack
		wantBitrate  int64
		wantSample   int
		wantChannels int
	}{
		{
			name:         "dts 768k 5.1 steps to 320k stereo",
			source:       track(0, 2, "dts", 768000, 48000, 6, false),
			wantBitrate:  320000,
			wantSample:   48000,
			wantChannels: 2,
		},
		{
			name:         "truehd 96k sample rate capped",
			source:       track(0, 2, "truehd", 3000000, 96000, 8, false),
			wantBitrate:  320000,
			wantSample:   48000,
			wantChannels: 2,
		},
		{
			name:         "low bitrate source never upsampled",
			source:       track(0, 2, "vorbis", 96000, 44100, 2, false),
			wantBitrate:  96000,
			wantSample:   44100,
			wantChannels: 2,
		},
		{
			name:         "unknown bitrate gets default",
			source:       track(0, 2, "dts", 0, 48000, 6, false),
			wantBitrate:  192000,
			wantSample:   48000,
			wantChannels: 2,
		},
		{
			name:         "exact bucket boundary",
			source:       track(0, 2, "ac3", 256000, 48000, 6, false),
			wantBitrate:  256000,
			wantSample:   48000,
			wantChannels: 2,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := Negotiate([]models.AudioTrack{tc.source}, 0)
			assert.Equal(t, AudioReencode, plan.Mode)
			assert.Equal(t, "aac", plan.TargetCodec)
			assert.Equal(t, tc.wantBitrate, plan.TargetBitRate)
			assert.Equal(t, tc.wantSample, plan.TargetSampleRate)
			assert.Equal(t, tc.wantChannels, plan.TargetChannels)

			// Invariants: never above source, never above platform limits.
			if tc.source.BitRate > 0 {
				assert.LessOrEqual(t, plan.TargetBitRate, tc.source.BitRate)
			}
			assert.LessOrEqual(t, plan.TargetSampleRate, 48000)
			assert.LessOrEqual(t, plan.TargetChannels, 2)
		})
	}
}

func TestNegotiateClampsOutOfRangeIndex(t *testing.T) {
	tracks := []models.AudioTrack{
		track(0, 1, "aac", 256000, 48000, 2, true),
		track(1, 2, "dts", 768000, 48000, 6, false),
	}

	plan := Negotiate(tracks, 7)
	assert.Equal(t, AudioCopy, plan.Mode)
	require.NotNil(t, plan.Source)
	assert.Equal(t, 0, plan.Source.ArrayIndex)

	plan = Negotiate(tracks, -3)
	require.NotNil(t, plan.Source)
	assert.Equal(t, 0, plan.Source.ArrayIndex)
}

func TestNegotiateIncompatibleSecondTrack(t *testing.T) {
	// Track0: AAC/48k/2ch/256k compatible; Track1: DTS/48k/6ch/768k.
	tracks := []models.AudioTrack{
		track(0, 1, "aac", 256000, 48000, 2, true),
		track(1, 2, "dts", 768000, 48000, 6, false),
	}
	plan := Negotiate(tracks, 1)
	assert.Equal(t, AudioReencode, plan.Mode)
	assert.Equal(t, "320k", plan.TargetBitRateArg())
	assert.Equal(t, 48000, plan.TargetSampleRate)
	assert.Equal(t, 2, plan.TargetChannels)
}

func TestDefaultAudioPlan(t *testing.T) {
	plan := DefaultAudioPlan()
	assert.Equal(t, AudioReencode, plan.Mode)
	assert.Nil(t, plan.Source)
	assert.Equal(t, "aac", plan.TargetCodec)
	assert.Equal(t, "192k", plan.TargetBitRateArg())
	assert.Equal(t, 48000, plan.TargetSampleRate)
	assert.Equal(t, 2, plan.TargetChannels)
}

func TestNegotiateEmptyCatalog(t *testing.T) {
	plan := Negotiate(nil, 0)
	assert.Equal(t, AudioReencode, plan.Mode)
	assert.Nil(t, plan.Source)
	assert.Equal(t, int64(192000), plan.TargetBitRate)
}
