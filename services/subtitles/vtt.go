package subtitles

import (
	"bufio"
	"bytes"
	"strings"
)

// timestampSeparator is the cue timing arrow shared by SRT and WebVTT.
const timestampSeparator = "-->"

// ConvertSRT rewrites SRT subtitle data as WebVTT: a WEBVTT header, cue
// sequence numbers dropped, and comma decimal separators in timing lines
// replaced with periods. Cue text passes through untouched, including text
// that happens to contain commas, because only lines carrying the timing
// arrow are rewritten.
func ConvertSRT(data []byte) []byte {
	var out bytes.Buffer
	out.WriteString("WEBVTT\n\n")

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var pending []string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")

		if strings.Contains(line, timestampSeparator) {
			// Sequence numbers sit immediately before a timing line. Anything
			// else buffered is cue text and survives.
			pending = dropTrailingSequenceNumber(pending)
			for _, p := range pending {
				out.WriteString(p)
				out.WriteByte('\n')
			}
			pending = pending[:0]
			out.WriteString(strings.ReplaceAll(line, ",", "."))
			out.WriteByte('\n')
			continue
		}

		pending = append(pending, line)
	}

	for _, p := range pending {
		out.WriteString(p)
		out.WriteByte('\n')
	}
	return out.Bytes()
}

func dropTrailingSequenceNumber(lines []string) []string {
	if len(lines) == 0 {
		return lines
	}
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" || !isDigits(last) {
		return lines
	}
	return lines[:len(lines)-1]
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

// looksLikeVTT reports whether data starts with a WEBVTT header, allowing a
// UTF-8 BOM and leading whitespace.
func looksLikeVTT(data []byte) bool {
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF}), " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("WEBVTT"))
}
