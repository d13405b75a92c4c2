package subtitles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConvertSRT(t *testing.T) {
	srt := strings.Join([]string{
		"1",
		"00:01:30,500 --> 00:01:33,000",
		"Hello, world",
		"",
		"2",
		"00:01:35,000 --> 00:01:37,250",
		"Second cue, with a comma",
		"multi-line text",
		"",
	}, "\n")

	got := string(ConvertSRT([]byte(srt)))

	assert.True(t, strings.HasPrefix(got, "WEBVTT\n"), "output must carry the WEBVTT header")
	assert.Contains(t, got, "00:01:30.500 --> 00:01:33.000")
	assert.Contains(t, got, "00:01:35.000 --> 00:01:37.250")
	assert.NotContains(t, got, ",500", "timing commas must become periods")
	assert.Contains(t, got, "Hello, world", "commas in cue text must survive")
	assert.Contains(t, got, "Second cue, with a comma")
	assert.Contains(t, got, "multi-line text")
}

func TestConvertSRTDropsSequenceNumbers(t *testing.T) {
	srt := "17\n00:00:01,000 --> 00:00:02,000\n42 is the answer\n"

	got := string(ConvertSRT([]byte(srt)))

	lines := strings.Split(strings.TrimRight(got, "\n"), "\n")
	assert.NotContains(t, lines, "17", "bare sequence number must be dropped")
	assert.Contains(t, got, "42 is the answer", "numeric-looking cue text must survive")
}

func TestConvertSRTPreservesCueOrder(t *testing.T) {
	srt := "1\n00:00:01,000 --> 00:00:02,000\nfirst\n\n2\n00:00:03,000 --> 00:00:04,000\nsecond\n"

	got := string(ConvertSRT([]byte(srt)))

	assert.Less(t, strings.Index(got, "first"), strings.Index(got, "second"))
}

func TestConvertSRTHandlesCRLF(t *testing.T) {
	srt := "1\r\n00:00:01,000 --> 00:00:02,000\r\nwindows line endings\r\n"

	got := string(ConvertSRT([]byte(srt)))

	assert.Contains(t, got, "00:00:01.000 --> 00:00:02.000")
	assert.Contains(t, got, "windows line endings")
	assert.NotContains(t, got, "\r")
}

func TestLooksLikeVTT(t *testing.T) {
	assert.True(t, looksLikeVTT([]byte("WEBVTT\n\n")))
	assert.True(t, looksLikeVTT([]byte("\xEF\xBB\xBFWEBVTT\n")))
	assert.True(t, looksLikeVTT([]byte("\nWEBVTT\n")))
	assert.False(t, looksLikeVTT([]byte("1\n00:00:01,000 --> 00:00:02,000\n")))
	assert.False(t, looksLikeVTT(nil))
}
