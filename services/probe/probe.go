// Package probe invokes ffprobe against a media file and returns a typed
// description of its streams. Raw tool output never leaves this package.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrProbeFailed is returned when both the detailed and the basic probe
// invocations fail. Callers must degrade gracefully rather than crash.
var ErrProbeFailed = errors.New("could not read media metadata")

const defaultTimeout = 15 * time.Second

// Stream is one elementary track inside the container.
type Stream struct {
	Index       int               `json:"index"`
	CodecType   string            `json:"codec_type"`
	CodecName   string            `json:"codec_name"`
	BitRate     string            `json:"bit_rate"`
	SampleRate  string            `json:"sample_rate"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition map[string]int    `json:"disposition"`
}

// Tag returns a trimmed tag value, or "" when absent.
func (s Stream) Tag(key string) string {
	if s.Tags == nil {
		return ""
	}
	return strings.TrimSpace(s.Tags[key])
}

// BitRateInt returns the stream bitrate in bits per second, 0 when unknown.
func (s Stream) BitRateInt() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s.BitRate), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// SampleRateInt returns the sample rate in Hz, 0 when unknown.
func (s Stream) SampleRateInt() int {
	v, err := strconv.Atoi(strings.TrimSpace(s.SampleRate))
	if err != nil {
		return 0
	}
	return v
}

// IsDefault reports the default disposition flag.
func (s Stream) IsDefault() bool { return s.Disposition["default"] > 0 }

// IsForced reports the forced disposition flag.
func (s Stream) IsForced() bool { return s.Disposition["forced"] > 0 }

type Format struct {
	FormatName     string `json:"format_name"`
	FormatLongName string `json:"format_long_name"`
	Duration       string `json:"duration"`
	Size           string `json:"size"`
	BitRate        string `json:"bit_rate"`
}

// Result is the structured description of all streams in a file. Immutable
// once probed.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// DurationSeconds returns the container duration, 0 when unknown.
func (r *Result) DurationSeconds() float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(r.Format.Duration), 64)
	if err != nil {
		return 0
	}
	return v
}

// SizeBytes returns the container size, 0 when unknown.
func (r *Result) SizeBytes() int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(r.Format.Size), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// StreamsOfType filters streams by codec type ("audio", "subtitle", "video").
func (r *Result) StreamsOfType(codecType string) []Stream {
	out := make([]Stream, 0, len(r.Streams))
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, codecType) {
			out = append(out, s)
		}
	}
	return out
}

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}

type cacheEntry struct {
	result  *Result
	expires time.Time
}

// Prober runs ffprobe with a detailed-then-basic fallback and a short-lived
// result cache keyed by path+mtime.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
	cacheTTL    time.Duration

	run  runFunc
	stat func(string) (os.FileInfo, error)

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New creates a Prober. An empty ffprobePath resolves to "ffprobe" on PATH.
// cacheTTL <= 0 disables the cache.
func New(ffprobePath string, timeout, cacheTTL time.Duration) *Prober {
	resolved := strings.TrimSpace(ffprobePath)
	if resolved == "" {
		resolved = "ffprobe"
	}
	if path, err := exec.LookPath(resolved); err == nil {
		resolved = path
	} else {
		log.Printf("[probe] warning: ffprobe unavailable at %q: %v", resolved, err)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Prober{
		ffprobePath: resolved,
		timeout:     timeout,
		cacheTTL:    cacheTTL,
		run:         execRun,
		stat:        os.Stat,
		cache:       make(map[string]cacheEntry),
	}
}

// Probe reads the structural metadata of the file at path. It tries a
// detailed invocation first and falls back to a basic one when the detailed
// probe errors or reports no streams. Both failing yields ErrProbeFailed.
func (p *Prober) Probe(ctx context.Context, path string) (*Result, error) {
	key := p.cacheKey(path)
	if key != "" {
		p.mu.Lock()
		if entry, ok := p.cache[key]; ok && time.Now().Before(entry.expires) {
			p.mu.Unlock()
			return entry.result, nil
		}
		p.mu.Unlock()
	}

	result, err := p.probeOnce(ctx, path, true)
	if err != nil || len(result.Streams) == 0 {
		if err != nil {
			log.Printf("[probe] detailed probe failed for %q, trying basic: %v", path, err)
		} else {
			log.Printf("[probe] detailed probe reported no streams for %q, trying basic", path)
		}
		result, err = p.probeOnce(ctx, path, false)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
		}
	}

	if key != "" {
		p.mu.Lock()
		p.cache[key] = cacheEntry{result: result, expires: time.Now().Add(p.cacheTTL)}
		// Drop any expired entries while we hold the lock.
		now := time.Now()
		for k, e := range p.cache {
			if now.After(e.expires) {
				delete(p.cache, k)
			}
		}
		p.mu.Unlock()
	}
	return result, nil
}

func (p *Prober) probeOnce(ctx context.Context, path string, detailed bool) (*Result, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	args := []string{"-v", "error", "-print_format", "json", "-show_format", "-show_streams"}
	if detailed {
		args = append(args, "-show_chapters")
	}
	args = append(args, "-i", path)

	stdout, stderr, err := p.run(probeCtx, p.ffprobePath, args...)
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffprobe timeout after %s: %w", p.timeout, context.DeadlineExceeded)
		}
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("ffprobe: %s", msg)
		}
		return nil, err
	}

	var parsed Result
	if err := json.Unmarshal(stdout, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}
	return &parsed, nil
}

func (p *Prober) cacheKey(path string) string {
	if p.cacheTTL <= 0 {
		return ""
	}
	info, err := p.stat(path)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s|%d|%d", path, info.Size(), info.ModTime().UnixNano())
}
