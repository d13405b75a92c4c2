package subtitles

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/acomagu/bufpipe"
	"github.com/sourcegraph/conc"

	"medialib/internal/proc"
)

// ErrTimeout marks an extraction attempt abandoned because the subprocess
// outlived its deadline.
var ErrTimeout = errors.New("subtitle extraction timed out")

// srtFamily lists codecs the fast copy path can remux without transcoding.
var srtFamily = map[string]bool{
	"subrip": true,
	"srt":    true,
}

// placeholderVTT is the emergency result when every extraction strategy
// fails. Players treat it as a valid, effectively empty track instead of
// erroring out.
const placeholderVTT = "WEBVTT\n\n00:00:00.000 --> 00:00:10.000\nSubtitles unavailable\n"

// minValidOutput guards against accepting a truncated header-only result.
const minValidOutput = 16

// Config tunes extraction timeouts. Zero values fall back to defaults.
type Config struct {
	// FastCopyTimeout bounds the SRT remux attempt, which should be nearly
	// instant when it works at all.
	FastCopyTimeout time.Duration
	// FastCopyMinBytes gates the remux attempt on source file size. Below it
	// a direct conversion finishes just as quickly, so the extra subprocess
	// is not worth spawning.
	FastCopyMinBytes int64
	// ConvertTimeout bounds one full conversion attempt. Retries scale it
	// linearly up to ConvertAttempts times.
	ConvertTimeout  time.Duration
	ConvertAttempts int
	// ChunkTimeout bounds a windowed extraction, which only decodes a small
	// slice of the file.
	ChunkTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.FastCopyTimeout <= 0 {
		c.FastCopyTimeout = 10 * time.Second
	}
	if c.FastCopyMinBytes <= 0 {
		c.FastCopyMinBytes = 1 << 20
	}
	if c.ConvertTimeout <= 0 {
		c.ConvertTimeout = 30 * time.Second
	}
	if c.ConvertAttempts <= 0 {
		c.ConvertAttempts = 3
	}
	if c.ChunkTimeout <= 0 {
		c.ChunkTimeout = 15 * time.Second
	}
	return c
}

// Extractor pulls embedded subtitle tracks out of media files as WebVTT.
type Extractor struct {
	ffmpegPath string
	runner     proc.Runner
	cfg        Config
	stat       func(string) (os.FileInfo, error)
}

// NewExtractor creates an extractor. An empty ffmpegPath resolves to
// "ffmpeg" on PATH.
func NewExtractor(ffmpegPath string, runner proc.Runner, cfg Config) *Extractor {
	resolved := strings.TrimSpace(ffmpegPath)
	if resolved == "" {
		resolved = "ffmpeg"
	}
	if path, err := exec.LookPath(resolved); err == nil {
		resolved = path
	}
	if runner == nil {
		runner = proc.ExecRunner{}
	}
	return &Extractor{ffmpegPath: resolved, runner: runner, cfg: cfg.withDefaults(), stat: os.Stat}
}

// Extract returns the subtitle stream at streamIndex as complete WebVTT.
// Strategies run in order of expected speed: a container-level SRT remux
// when the codec allows it and the source is large enough to make it pay
// off, then full conversion with escalating timeouts.
// When everything fails the placeholder track is returned so the caller can
// always answer with valid WebVTT; the error reports why real content is
// missing. Context cancellation aborts immediately without the placeholder.
func (e *Extractor) Extract(ctx context.Context, path string, streamIndex int, codec string) ([]byte, error) {
	if srtFamily[strings.ToLower(codec)] && e.fastCopyWorthwhile(path) {
		data, err := e.fastCopy(ctx, path, streamIndex)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[subtitles] fast copy failed for %q track %d, converting: %v", path, streamIndex, err)
	}

	var lastErr error
	for attempt := 1; attempt <= e.cfg.ConvertAttempts; attempt++ {
		timeout := time.Duration(attempt) * e.cfg.ConvertTimeout
		data, err := e.convert(ctx, path, streamIndex, timeout)
		if err == nil {
			return data, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
		log.Printf("[subtitles] convert attempt %d/%d failed for %q track %d (timeout %s): %v",
			attempt, e.cfg.ConvertAttempts, path, streamIndex, timeout, err)
		if !errors.Is(err, ErrTimeout) {
			// Non-timeout failures are deterministic; retrying with a longer
			// deadline cannot help.
			break
		}
	}

	log.Printf("[subtitles] all strategies exhausted for %q track %d, serving placeholder", path, streamIndex)
	return []byte(placeholderVTT), fmt.Errorf("extract track %d: %w", streamIndex, lastErr)
}

// ExtractChunk returns WebVTT for a bounded window of the stream. Cue
// timestamps stay absolute so the chunk aligns with the full timeline. SRT
// sources get the same fast copy attempt as full extraction, scoped to the
// window.
func (e *Extractor) ExtractChunk(ctx context.Context, path string, streamIndex int, codec string, start, duration float64) ([]byte, error) {
	if srtFamily[strings.ToLower(codec)] {
		args := chunkArgs(path, streamIndex, start, duration, "copy", "srt")
		data, err := e.capture(ctx, e.cfg.ChunkTimeout, args)
		if err == nil && len(data) >= minValidOutput {
			return ConvertSRT(data), nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("[subtitles] chunk fast copy failed for %q track %d, converting: %v", path, streamIndex, err)
	}

	data, err := e.capture(ctx, e.cfg.ChunkTimeout, chunkArgs(path, streamIndex, start, duration, "webvtt", "webvtt"))
	if err != nil {
		return nil, fmt.Errorf("extract chunk track %d: %w", streamIndex, err)
	}
	if !looksLikeVTT(data) {
		return nil, fmt.Errorf("extract chunk track %d: transcoder produced non-vtt output", streamIndex)
	}
	return data, nil
}

func chunkArgs(path string, streamIndex int, start, duration float64, codec, format string) []string {
	args := []string{"-nostdin", "-hide_banner", "-loglevel", "error"}
	if start > 0 {
		args = append(args, "-ss", fmt.Sprintf("%.3f", start))
	}
	return append(args,
		"-i", path,
		"-copyts",
		"-t", fmt.Sprintf("%.3f", duration),
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", codec,
		"-f", format,
		"pipe:1",
	)
}

// fastCopyWorthwhile gates the remux attempt on source file size, the only
// track-size estimate available without decoding. An unreadable file still
// attempts fast copy so the real error surfaces from the subprocess.
func (e *Extractor) fastCopyWorthwhile(path string) bool {
	stat := e.stat
	if stat == nil {
		stat = os.Stat
	}
	info, err := stat(path)
	if err != nil {
		return true
	}
	return info.Size() >= e.cfg.FastCopyMinBytes
}

func (e *Extractor) fastCopy(ctx context.Context, path string, streamIndex int) ([]byte, error) {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "copy",
		"-f", "srt",
		"pipe:1",
	}

	data, err := e.capture(ctx, e.cfg.FastCopyTimeout, args)
	if err != nil {
		return nil, err
	}
	if len(data) < minValidOutput {
		return nil, errors.New("fast copy produced no cues")
	}
	return ConvertSRT(data), nil
}

func (e *Extractor) convert(ctx context.Context, path string, streamIndex int, timeout time.Duration) ([]byte, error) {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error",
		"-i", path,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-c:s", "webvtt",
		"-f", "webvtt",
		"pipe:1",
	}

	data, err := e.capture(ctx, timeout, args)
	if err != nil {
		return nil, err
	}
	if len(data) < minValidOutput || !looksLikeVTT(data) {
		return nil, errors.New("conversion produced no usable output")
	}
	return data, nil
}

// capture runs the transcoder and buffers its stdout in memory. Subtitle
// streams are small enough that buffering beats streaming: a failed attempt
// leaves nothing half-written and the next strategy can still run.
func (e *Extractor) capture(ctx context.Context, timeout time.Duration, args []string) ([]byte, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	process, err := e.runner.Start(runCtx, e.ffmpegPath, args...)
	if err != nil {
		return nil, fmt.Errorf("start transcoder: %w", err)
	}

	pr, pw := bufpipe.New(nil)
	var stderr bytes.Buffer
	var wg conc.WaitGroup
	wg.Go(func() {
		_, copyErr := io.Copy(pw, process.Stdout())
		pw.CloseWithError(copyErr)
	})
	wg.Go(func() {
		if r := process.Stderr(); r != nil {
			_, _ = io.Copy(&stderr, r)
		}
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-runCtx.Done():
			_ = process.Kill()
		case <-done:
		}
	}()

	data, readErr := io.ReadAll(pr)
	wg.Wait()
	waitErr := process.Wait()

	if runCtx.Err() != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, ErrTimeout
		}
		return nil, runCtx.Err()
	}
	if waitErr != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("transcoder failed: %s: %w", msg, waitErr)
		}
		return nil, fmt.Errorf("transcoder failed: %w", waitErr)
	}
	if readErr != nil {
		return nil, fmt.Errorf("read transcoder output: %w", readErr)
	}
	return data, nil
}
