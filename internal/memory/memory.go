// Package memory loads the workspace and channel identity/memory files
// folded into the system prompt on every run, per spec.md §4.6. Grounded
// on the teacher's internal/memory.FileMemory, narrowed to the file set
// and truncation caps spec.md names.
package memory

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	motherCap = 3000
	memoryCap = 1500
	channelMemoryCap = 1000
)

// Workspace holds the global identity/memory files loaded once per run.
type Workspace struct {
	Mother          string
	MotherTruncated bool
	Memory          string
	MemoryTruncated bool
}

// Load reads MOTHER.md and the global MEMORY.md from workspaceDir, each
// capped per spec.md §4.6.
func Load(workspaceDir string) *Workspace {
	mother, motherTrunc := readCapped(filepath.Join(workspaceDir, "MOTHER.md"), motherCap)
	mem, memTrunc := readCapped(filepath.Join(workspaceDir, "MEMORY.md"), memoryCap)
	return &Workspace{Mother: mother, MotherTruncated: motherTrunc, Memory: mem, MemoryTruncated: memTrunc}
}

// LoadChannelMemory reads a channel's own MEMORY.md, capped separately and
// more tightly than the global file.
func LoadChannelMemory(channelDir string) (content string, truncated bool) {
	return readCapped(filepath.Join(channelDir, "MEMORY.md"), channelMemoryCap)
}

func readCapped(path string, cap int) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	text := string(data)
	if len(text) > cap {
		return text[:cap], true
	}
	return text, false
}

// Section renders one labeled, cap-aware block for the system prompt, or
// "" if content is empty.
func Section(label, content string, truncated bool) string {
	if content == "" {
		return ""
	}
	if truncated {
		return fmt.Sprintf("## %s (truncated)\n%s", label, content)
	}
	return fmt.Sprintf("## %s\n%s", label, content)
}
