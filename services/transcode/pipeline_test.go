package transcode

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medialib/internal/proc"
	"medialib/models"
)

type fakeProcess struct {
	stdout io.Reader
	stderr io.Reader

	mu     sync.Mutex
	killed bool
	waited bool
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return p.stderr }

func (p *fakeProcess) Wait() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.waited = true
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.killed = true
	return nil
}

func (p *fakeProcess) wasKilled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

type fakeRunner struct {
	process  *fakeProcess
	startErr error

	gotName string
	gotArgs []string
}

func (r *fakeRunner) Start(ctx context.Context, name string, args ...string) (proc.Process, error) {
	r.gotName = name
	r.gotArgs = args
	if r.startErr != nil {
		return nil, r.startErr
	}
	return r.process, nil
}

// blockingReader yields its payload then blocks until unblocked, simulating
// a transcoder that keeps producing while the client walks away.
type blockingReader struct {
	payload []byte
	done    chan struct{}
	once    sync.Once
	served  bool
}

func (r *blockingReader) Read(p []byte) (int, error) {
	if !r.served {
		r.served = true
		return copy(p, r.payload), nil
	}
	<-r.done
	return 0, io.EOF
}

func (r *blockingReader) unblock() { r.once.Do(func() { close(r.done) }) }

func newSession(t *testing.T, p *fakeProcess) *Session {
	t.Helper()
	runner := &fakeRunner{process: p}
	session := &Session{
		Path:     "/media/movie.mkv",
		Plan:     Plan{Audio: DefaultAudioPlan()},
		pipeline: &Pipeline{ffmpegPath: "ffmpeg", runner: runner},
	}
	require.NoError(t, session.Start(context.Background()))
	return session
}

func TestStreamToForwardsBytesInOrder(t *testing.T) {
	payload := []byte("ftypisomfragmented-mp4-bytes")
	p := &fakeProcess{stdout: bytes.NewReader(payload), stderr: strings.NewReader("")}
	session := newSession(t, p)

	var sink bytes.Buffer
	n, err := session.StreamTo(context.Background(), &sink)

	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, sink.Bytes())
	assert.False(t, p.wasKilled(), "clean EOF must not kill the transcoder")
}

func TestStreamToKillsProcessOnDisconnect(t *testing.T) {
	reader := &blockingReader{payload: []byte("partial"), done: make(chan struct{})}
	defer reader.unblock()
	p := &fakeProcess{stdout: reader, stderr: strings.NewReader("")}
	session := newSession(t, p)

	ctx, cancel := context.WithCancel(context.Background())

	sink := &notifyingWriter{first: make(chan struct{})}
	errCh := make(chan error, 1)
	go func() {
		_, err := session.StreamTo(ctx, sink)
		errCh <- err
	}()

	// Let the first chunk through, then simulate the client going away.
	<-sink.first
	cancel()
	reader.unblock()

	err := <-errCh
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, p.wasKilled(), "disconnect must terminate the transcoder")
}

type notifyingWriter struct {
	first chan struct{}
	once  sync.Once
}

func (w *notifyingWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.first) })
	return len(p), nil
}

type failingWriter struct {
	failAfter int
	written   int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.written >= w.failAfter {
		return 0, io.ErrClosedPipe
	}
	w.written += len(p)
	return len(p), nil
}

func TestStreamToKillsProcessOnWriteError(t *testing.T) {
	p := &fakeProcess{
		stdout: io.MultiReader(bytes.NewReader([]byte("chunk-one")), bytes.NewReader([]byte("chunk-two"))),
		stderr: strings.NewReader(""),
	}
	session := newSession(t, p)

	_, err := session.StreamTo(context.Background(), &failingWriter{failAfter: 1})

	require.Error(t, err)
	assert.True(t, p.wasKilled(), "write failure must terminate the transcoder")
}

func TestBuildStreamArgs(t *testing.T) {
	source := &models.AudioTrack{ArrayIndex: 1, StreamIndex: 3, Codec: "dts"}

	tests := []struct {
		name string
		plan Plan
		want []string
	}{
		{
			name: "copy from start",
			plan: Plan{Audio: AudioPlan{Mode: AudioCopy, Source: &models.AudioTrack{StreamIndex: 1, Codec: "aac"}}},
			want: []string{
				"-nostdin", "-hide_banner", "-loglevel", "error",
				"-i", "/media/a.mkv",
				"-map", "0:v:0", "-map", "0:1",
				"-dn", "-sn", "-c:v", "copy",
				"-c:a", "copy",
				"-movflags", "frag_keyframe+empty_moov+default_base_moof",
				"-muxdelay", "0", "-muxpreload", "0",
				"-frag_duration", "500000",
				"-f", "mp4", "pipe:1",
			},
		},
		{
			name: "reencode with seek",
			plan: Plan{
				StartOffsetSeconds: 93.5,
				Audio: AudioPlan{
					Mode: AudioReencode, Source: source,
					TargetCodec: "aac", TargetBitRate: 320000, TargetSampleRate: 48000, TargetChannels: 2,
				},
			},
			want: []string{
				"-nostdin", "-hide_banner", "-loglevel", "error",
				"-ss", "93.500",
				"-i", "/media/a.mkv",
				"-map", "0:v:0", "-map", "0:3",
				"-dn", "-sn", "-c:v", "copy",
				"-c:a", "aac", "-b:a", "320k", "-ar", "48000", "-ac", "2",
				"-movflags", "frag_keyframe+empty_moov+default_base_moof",
				"-muxdelay", "0", "-muxpreload", "0",
				"-frag_duration", "500000",
				"-f", "mp4", "pipe:1",
			},
		},
		{
			name: "no probe metadata maps optional first audio",
			plan: Plan{Audio: DefaultAudioPlan()},
			want: []string{
				"-nostdin", "-hide_banner", "-loglevel", "error",
				"-i", "/media/a.mkv",
				"-map", "0:v:0", "-map", "0:a:0?",
				"-dn", "-sn", "-c:v", "copy",
				"-c:a", "aac", "-b:a", "192k", "-ar", "48000", "-ac", "2",
				"-movflags", "frag_keyframe+empty_moov+default_base_moof",
				"-muxdelay", "0", "-muxpreload", "0",
				"-frag_duration", "500000",
				"-f", "mp4", "pipe:1",
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := buildStreamArgs("/media/a.mkv", tc.plan)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestStartPassesArgsToRunner(t *testing.T) {
	p := &fakeProcess{stdout: strings.NewReader(""), stderr: strings.NewReader("")}
	runner := &fakeRunner{process: p}
	session := &Session{
		Path:     "/media/show.mkv",
		Plan:     Plan{Audio: DefaultAudioPlan()},
		pipeline: &Pipeline{ffmpegPath: "/usr/bin/ffmpeg", runner: runner},
	}

	require.NoError(t, session.Start(context.Background()))

	assert.Equal(t, "/usr/bin/ffmpeg", runner.gotName)
	assert.Contains(t, runner.gotArgs, "/media/show.mkv")
	assert.Equal(t, buildStreamArgs("/media/show.mkv", session.Plan), runner.gotArgs)
}
