package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strings"

	"medialib/internal/proc"
	"medialib/services/catalog"
	"medialib/services/probe"
)

const copyBufferSize = 256 * 1024

// flushEvery bounds latency without flushing on every small read.
const flushEvery = 2

// MediaProber is the slice of the probe service the pipeline needs.
type MediaProber interface {
	Probe(ctx context.Context, path string) (*probe.Result, error)
}

// Pipeline resolves a stream request into a live fragmented-MP4 byte stream.
type Pipeline struct {
	ffmpegPath string
	prober     MediaProber
	runner     proc.Runner
}

// NewPipeline creates a pipeline. An empty ffmpegPath resolves to "ffmpeg"
// on PATH.
func NewPipeline(ffmpegPath string, prober MediaProber, runner proc.Runner) *Pipeline {
	resolved := strings.TrimSpace(ffmpegPath)
	if resolved == "" {
		resolved = "ffmpeg"
	}
	if path, err := exec.LookPath(resolved); err == nil {
		resolved = path
	} else {
		log.Printf("[transcode] warning: ffmpeg unavailable at %q: %v", resolved, err)
	}
	if runner == nil {
		runner = proc.ExecRunner{}
	}
	return &Pipeline{ffmpegPath: resolved, prober: prober, runner: runner}
}

// Session is the per-request stream state: the plan, probe-derived metadata,
// and eventually the subprocess handle. A session is exclusively owned by one
// request handler and never shared.
type Session struct {
	Path            string
	Plan            Plan
	DurationSeconds float64
	SizeBytes       int64
	ProbeErr        error

	pipeline *Pipeline
	process  proc.Process
}

// Prepare probes the file, derives the audio catalog, and negotiates the
// plan. A probe failure does not fail preparation: the session carries the
// conservative default plan and records the error, favoring playback over
// track accuracy.
func (p *Pipeline) Prepare(ctx context.Context, path string, audioTrackIndex int, startOffset float64) *Session {
	session := &Session{
		Path:     path,
		pipeline: p,
		Plan:     Plan{StartOffsetSeconds: startOffset},
	}

	res, err := p.prober.Probe(ctx, path)
	if err != nil {
		log.Printf("[transcode] probe failed for %q, falling back to default audio settings: %v", path, err)
		session.ProbeErr = err
		session.Plan.Audio = DefaultAudioPlan()
		return session
	}

	session.DurationSeconds = res.DurationSeconds()
	session.SizeBytes = res.SizeBytes()
	session.Plan.Audio = Negotiate(catalog.AudioTracks(res), audioTrackIndex)
	return session
}

// Start launches the transcoding subprocess. Errors here happen before any
// response bytes exist, so the caller can still report them to the client.
func (s *Session) Start(ctx context.Context) error {
	args := buildStreamArgs(s.Path, s.Plan)
	log.Printf("[transcode] starting stream: path=%q offset=%.3f audio=%s args=%q",
		s.Path, s.Plan.StartOffsetSeconds, s.Plan.Audio.Mode, strings.Join(args, " "))

	process, err := s.pipeline.runner.Start(ctx, s.pipeline.ffmpegPath, args...)
	if err != nil {
		return fmt.Errorf("start transcoder: %w", err)
	}
	s.process = process

	go drainStderr("transcode", s.Path, process.Stderr())
	return nil
}

// StreamTo copies subprocess output to w in emission order until EOF or
// cancellation. On context cancellation (client disconnect) the subprocess
// is killed immediately rather than waited on. Returns bytes written.
func (s *Session) StreamTo(ctx context.Context, w io.Writer) (int64, error) {
	if s.process == nil {
		return 0, errors.New("session not started")
	}

	flusher, _ := w.(http.Flusher)
	stdout := s.process.Stdout()
	buf := make([]byte, copyBufferSize)
	var total int64
	flushCounter := 0

	for {
		select {
		case <-ctx.Done():
			_ = s.process.Kill()
			log.Printf("[transcode] stream cancelled path=%q total=%d reason=%v", s.Path, total, ctx.Err())
			return total, ctx.Err()
		default:
		}

		n, readErr := stdout.Read(buf)
		if n > 0 {
			written, writeErr := w.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				_ = s.process.Kill()
				return total, fmt.Errorf("write response: %w", writeErr)
			}
			flushCounter++
			if flusher != nil && flushCounter >= flushEvery {
				flusher.Flush()
				flushCounter = 0
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				// A disconnect can race the final read; re-check before treating
				// this as a clean end of stream.
				if ctx.Err() != nil {
					_ = s.process.Kill()
					log.Printf("[transcode] stream cancelled path=%q total=%d reason=%v", s.Path, total, ctx.Err())
					return total, ctx.Err()
				}
				if flusher != nil {
					flusher.Flush()
				}
				break
			}
			_ = s.process.Kill()
			return total, fmt.Errorf("read transcoder output: %w", readErr)
		}
	}

	if err := s.process.Wait(); err != nil {
		// A kill after the consumer is gone surfaces as a signal error; that
		// is expected shutdown, not a transcoder failure.
		msg := strings.ToLower(err.Error())
		if !strings.Contains(msg, "signal") && !strings.Contains(msg, "broken pipe") {
			return total, fmt.Errorf("transcoder exited: %w", err)
		}
	}

	log.Printf("[transcode] stream complete path=%q total=%d", s.Path, total)
	return total, nil
}

// Close force-terminates the subprocess if it is still running.
func (s *Session) Close() {
	if s.process != nil {
		_ = s.process.Kill()
	}
}

// buildStreamArgs builds the transcoder invocation: fast input seek, exact
// single-stream mapping for video and audio, video copy, negotiated audio
// handling, and fragmented MP4 output so the container is streamable without
// a seekable sink. Subtitles are never multiplexed in; they are served by the
// separate extraction path.
func buildStreamArgs(path string, plan Plan) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}

	if plan.StartOffsetSeconds > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", plan.StartOffsetSeconds))
	}

	args = append(args, "-i", path, "-map", "0:v:0")

	// Map exactly one audio stream. With probe metadata we target the
	// negotiated stream index; without it the best we can do is the first
	// audio stream, still an unambiguous mapping.
	if plan.Audio.Source != nil {
		args = append(args, "-map", fmt.Sprintf("0:%d", plan.Audio.Source.StreamIndex))
	} else {
		args = append(args, "-map", "0:a:0?")
	}

	args = append(args, "-dn", "-sn", "-c:v", "copy")

	switch plan.Audio.Mode {
	case AudioCopy:
		args = append(args, "-c:a", "copy")
	case AudioReencode:
		args = append(args,
			"-c:a", plan.Audio.TargetCodec,
			"-b:a", plan.Audio.TargetBitRateArg(),
			"-ar", fmt.Sprintf("%d", plan.Audio.TargetSampleRate),
			"-ac", fmt.Sprintf("%d", plan.Audio.TargetChannels),
		)
	}

	args = append(args,
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"-muxdelay", "0",
		"-muxpreload", "0",
		"-frag_duration", "500000",
		"-f", "mp4",
		"pipe:1",
	)
	return args
}

func drainStderr(component, path string, r io.Reader) {
	if r == nil {
		return
	}
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			log.Printf("[%s] ffmpeg %q: %s", component, path, strings.TrimSpace(string(buf[:n])))
		}
		if err != nil {
			return
		}
	}
}
