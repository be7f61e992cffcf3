package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
)

// Write writes content to a file, gated through the path guard. Grounded on
// the teacher's internal/tool.Write.
type Write struct {
	hostDir string
	guard   *guard.PathGuard
	exec    executor.Executor
}

// NewWrite creates a write tool rooted at hostDir.
func NewWrite(hostDir string, g *guard.PathGuard, ex executor.Executor) *Write {
	return &Write{hostDir: hostDir, guard: g, exec: ex}
}

func (w *Write) Name() string { return "write" }

func (w *Write) Label(args json.RawMessage) string {
	var p writeParams
	_ = json.Unmarshal(args, &p)
	return fmt.Sprintf("Write %s", p.Path)
}

func (w *Write) Description() string {
	return `Write content to a file. Creates the file if it doesn't exist, overwrites if it does.
Creates parent directories as needed.
Use for creating new files or completely replacing existing content.`
}

func (w *Write) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to write"
			},
			"content": {
				"type": "string",
				"description": "Content to write to the file"
			}
		},
		"required": ["path", "content"]
	}`)
}

type writeParams struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (w *Write) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p writeParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}

	if p.Path == "" {
		return ErrorResult("path is required"), nil
	}

	decision := w.guard.Check(p.Path, w.hostDir)
	if !decision.Allowed {
		return ErrorResult(decision.Reason), nil
	}

	toolPath := w.exec.WorkspacePath(decision.Resolved)

	if err := w.exec.WriteFile(ctx, toolPath, []byte(p.Content)); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	return TextResult(fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path)), nil
}
