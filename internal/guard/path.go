// Package guard enforces path and command policy in front of every tool
// that touches the filesystem or a shell.
package guard

import (
	"fmt"
	"path/filepath"
	"strings"
)

// PathGuard restricts filesystem access to a fixed set of allowed prefixes.
type PathGuard struct {
	prefixes []string
}

// NewPathGuard builds a PathGuard allowing workspaceDir, "/tmp", and any
// extraPrefixes. Prefixes are normalized (cleaned, trailing slash stripped)
// once at construction time.
func NewPathGuard(workspaceDir string, extraPrefixes ...string) *PathGuard {
	prefixes := []string{normalize(workspaceDir), normalize("/tmp")}
	for _, p := range extraPrefixes {
		if p == "" {
			continue
		}
		prefixes = append(prefixes, normalize(p))
	}
	return &PathGuard{prefixes: prefixes}
}

// Decision is the result of a path check.
type Decision struct {
	Allowed  bool
	Resolved string
	Reason   string
}

// Check resolves inputPath against cwd and verifies the result falls under
// an allowed prefix. The resolved path must equal a prefix or be a child
// of it — "/ws-evil" must never be treated as a child of "/ws".
func (g *PathGuard) Check(inputPath, cwd string) Decision {
	resolved := resolve(inputPath, cwd)

	for _, prefix := range g.prefixes {
		if resolved == prefix || strings.HasPrefix(resolved, prefix+string(filepath.Separator)) {
			return Decision{Allowed: true, Resolved: resolved}
		}
	}

	return Decision{
		Allowed:  false,
		Resolved: resolved,
		Reason: fmt.Sprintf(
			"path %q (resolved %q) is outside allowed prefixes %v",
			inputPath, resolved, g.prefixes,
		),
	}
}

// resolve joins inputPath onto cwd when relative, then cleans the result.
func resolve(inputPath, cwd string) string {
	p := inputPath
	if !filepath.IsAbs(p) {
		p = filepath.Join(cwd, p)
	}
	return normalize(p)
}

// normalize cleans a path (collapsing "." and "..") without touching the
// filesystem — symlink resolution is deliberately not performed here, to
// keep the guard a pure, non-suspending function per §5.
func normalize(p string) string {
	return filepath.Clean(p)
}
