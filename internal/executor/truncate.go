package executor

import (
	"fmt"
	"strings"
)

const (
	defaultMaxLines = 2000
	defaultMaxBytes = 50 * 1024
)

// TailTruncate preserves the last maxLines lines and maxBytes bytes of s,
// dropping from the front, and reports whether anything was dropped along
// with a human-readable marker describing what was cut.
func TailTruncate(s string, maxLines, maxBytes int) (out string, truncated bool) {
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	lines := strings.Split(s, "\n")
	droppedLines := 0
	if len(lines) > maxLines {
		droppedLines = len(lines) - maxLines
		lines = lines[droppedLines:]
	}

	out = strings.Join(lines, "\n")

	droppedBytes := 0
	if len(out) > maxBytes {
		droppedBytes = len(out) - maxBytes
		out = out[len(out)-maxBytes:]
	}

	if droppedLines == 0 && droppedBytes == 0 {
		return out, false
	}

	var marker string
	switch {
	case droppedLines > 0 && droppedBytes > 0:
		marker = fmt.Sprintf("[... %d lines and %d bytes truncated ...]\n", droppedLines, droppedBytes)
	case droppedLines > 0:
		marker = fmt.Sprintf("[... %d lines truncated ...]\n", droppedLines)
	default:
		marker = fmt.Sprintf("[... %d bytes truncated ...]\n", droppedBytes)
	}

	return marker + out, true
}
