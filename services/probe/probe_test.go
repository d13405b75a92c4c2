package probe

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const detailedJSON = `{
	"streams": [
		{"index": 0, "codec_type": "video", "codec_name": "h264"},
		{"index": 1, "codec_type": "audio", "codec_name": "aac", "bit_rate": "256000", "sample_rate": "48000", "channels": 2, "tags": {"language": "eng"}}
	],
	"format": {"duration": "5400.25", "size": "1073741824"}
}`

type fakeInfo struct{ mod time.Time }

func (fakeInfo) Name() string          { return "movie.mkv" }
func (fakeInfo) Size() int64           { return 1 << 30 }
func (fakeInfo) Mode() os.FileMode     { return 0o644 }
func (f fakeInfo) ModTime() time.Time  { return f.mod }
func (fakeInfo) IsDir() bool           { return false }
func (fakeInfo) Sys() interface{}      { return nil }

func newTestProber(run runFunc, cacheTTL time.Duration) *Prober {
	return &Prober{
		ffprobePath: "ffprobe",
		timeout:     time.Second,
		cacheTTL:    cacheTTL,
		run:         run,
		stat:        func(string) (os.FileInfo, error) { return fakeInfo{mod: time.Unix(100, 0)}, nil },
		cache:       make(map[string]cacheEntry),
	}
}

func TestProbeDetailedSuccess(t *testing.T) {
	var calls [][]string
	p := newTestProber(func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, args)
		return []byte(detailedJSON), nil, nil
	}, 0)

	res, err := p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "-show_chapters")

	require.Len(t, res.Streams, 2)
	audio := res.Streams[1]
	assert.Equal(t, "aac", audio.CodecName)
	assert.Equal(t, int64(256000), audio.BitRateInt())
	assert.Equal(t, 48000, audio.SampleRateInt())
	assert.Equal(t, "eng", audio.Tag("language"))
	assert.InDelta(t, 5400.25, res.DurationSeconds(), 0.001)
	assert.Equal(t, int64(1073741824), res.SizeBytes())
}

func TestProbeFallsBackToBasic(t *testing.T) {
	var calls [][]string
	p := newTestProber(func(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
		calls = append(calls, args)
		if len(calls) == 1 {
			return nil, []byte("moov atom not found"), errors.New("exit status 1")
		}
		return []byte(detailedJSON), nil, nil
	}, 0)

	res, err := p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0], "-show_chapters")
	assert.NotContains(t, calls[1], "-show_chapters")
	assert.Len(t, res.Streams, 2)
}

func TestProbeFallsBackOnEmptyStreams(t *testing.T) {
	var calls int
	p := newTestProber(func(context.Context, string, ...string) ([]byte, []byte, error) {
		calls++
		if calls == 1 {
			return []byte(`{"streams": [], "format": {}}`), nil, nil
		}
		return []byte(detailedJSON), nil, nil
	}, 0)

	res, err := p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, res.Streams, 2)
}

func TestProbeBothTiersFail(t *testing.T) {
	p := newTestProber(func(context.Context, string, ...string) ([]byte, []byte, error) {
		return nil, []byte("invalid data"), errors.New("exit status 1")
	}, 0)

	_, err := p.Probe(context.Background(), "/media/corrupt.mkv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
}

func TestProbeTimeoutKeepsDeadlineInChain(t *testing.T) {
	p := newTestProber(func(ctx context.Context, _ string, _ ...string) ([]byte, []byte, error) {
		<-ctx.Done()
		return nil, nil, ctx.Err()
	}, 0)
	p.timeout = 10 * time.Millisecond

	_, err := p.Probe(context.Background(), "/media/movie.mkv")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProbeFailed)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProbeCachesByPathAndMtime(t *testing.T) {
	var calls int
	p := newTestProber(func(context.Context, string, ...string) ([]byte, []byte, error) {
		calls++
		return []byte(detailedJSON), nil, nil
	}, time.Minute)

	_, err := p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	_, err = p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second probe should be served from cache")

	// A changed mtime invalidates the entry.
	p.stat = func(string) (os.FileInfo, error) { return fakeInfo{mod: time.Unix(200, 0)}, nil }
	_, err = p.Probe(context.Background(), "/media/movie.mkv")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
