// Package tree renders a depth-capped workspace directory listing for the
// system prompt, per spec.md §9 ("Tree listing").
package tree

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	maxDepth   = 4
	maxEntries = 150
)

var excludedNames = map[string]bool{
	"node_modules":     true,
	"attachments":      true,
	"log.jsonl":        true,
	"context.jsonl":    true,
	"last_prompt.jsonl": true,
}

// Render walks root and returns a human-readable tree listing, capped at
// maxDepth directories deep and maxEntries total lines. Dot-files and the
// excluded names are skipped entirely.
func Render(root string) string {
	var b strings.Builder
	count := 0
	walk(root, "", 0, &b, &count)
	if count >= maxEntries {
		fmt.Fprintf(&b, "... (truncated at %d entries)\n", maxEntries)
	}
	return b.String()
}

func walk(dir, prefix string, depth int, b *strings.Builder, count *int) {
	if depth > maxDepth || *count >= maxEntries {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, e := range entries {
		if *count >= maxEntries {
			return
		}
		name := e.Name()
		if strings.HasPrefix(name, ".") || excludedNames[name] {
			continue
		}

		*count++
		if e.IsDir() {
			fmt.Fprintf(b, "%s%s/\n", prefix, name)
			walk(filepath.Join(dir, name), prefix+"  ", depth+1, b, count)
			continue
		}

		info, err := e.Info()
		if err != nil {
			fmt.Fprintf(b, "%s%s\n", prefix, name)
			continue
		}
		fmt.Fprintf(b, "%s%s (%s)\n", prefix, name, humanize.Bytes(uint64(info.Size())))
	}
}
