package executor

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Container execs into an already-running, named container instead of
// spawning processes on the host. Grounded on the teacher's
// internal/runtime.PodmanRuntime (which starts fresh containers per agent);
// here it's narrowed to `podman exec` against a container the operator
// already started, per spec.md §4.2 ("named, already-running container").
type Container struct {
	name         string
	hostWorkDir  string
	containerDir string
	bin          string
}

// NewContainer builds a Container executor targeting the given container
// name. hostWorkDir is the on-disk workspace root mounted at
// containerDir (default "/workspace") inside the container.
func NewContainer(name, hostWorkDir string) *Container {
	return &Container{
		name:         name,
		hostWorkDir:  filepath.Clean(hostWorkDir),
		containerDir: "/workspace",
		bin:          "podman",
	}
}

// WorkspacePath translates a host workspace path (or subpath) into the
// container's mount point.
func (c *Container) WorkspacePath(hostDir string) string {
	return c.toContainer(hostDir)
}

func (c *Container) toContainer(hostPath string) string {
	hostPath = filepath.Clean(hostPath)
	if hostPath == c.hostWorkDir {
		return c.containerDir
	}
	if rest, ok := strings.CutPrefix(hostPath, c.hostWorkDir+string(filepath.Separator)); ok {
		return filepath.Join(c.containerDir, rest)
	}
	// Not under the mounted workspace (e.g. /tmp) — pass through unchanged;
	// callers are responsible for keeping guard-allowed prefixes mountable.
	return hostPath
}

func (c *Container) RunShell(ctx context.Context, command string, timeout int) (*ShellResult, error) {
	if timeout <= 0 {
		timeout = 600
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.bin, "exec", c.name, "bash", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if runCtx.Err() == context.DeadlineExceeded {
			exitCode = -1
		} else {
			return nil, fmt.Errorf("container exec: %w", err)
		}
	}

	outText, outTrunc := TailTruncate(stdout.String(), 0, 0)
	errText, errTrunc := TailTruncate(stderr.String(), 0, 0)

	return &ShellResult{
		Stdout:    outText,
		Stderr:    errText,
		ExitCode:  exitCode,
		Truncated: outTrunc || errTrunc,
	}, nil
}

func (c *Container) ReadFile(ctx context.Context, path string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.bin, "exec", c.name, "cat", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("container read %s: %w: %s", path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

func (c *Container) WriteFile(ctx context.Context, path string, data []byte) error {
	mkdir := exec.CommandContext(ctx, c.bin, "exec", c.name, "mkdir", "-p", filepath.Dir(path))
	if out, err := mkdir.CombinedOutput(); err != nil {
		return fmt.Errorf("container mkdir %s: %w: %s", filepath.Dir(path), err, out)
	}

	cmd := exec.CommandContext(ctx, c.bin, "exec", "-i", c.name, "sh", "-c", fmt.Sprintf("cat > %s", shellQuote(path)))
	cmd.Stdin = bytes.NewReader(data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("container write %s: %w: %s", path, err, stderr.String())
	}
	return nil
}

func (c *Container) Exists(ctx context.Context, path string) bool {
	cmd := exec.CommandContext(ctx, c.bin, "exec", c.name, "test", "-e", path)
	return cmd.Run() == nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
