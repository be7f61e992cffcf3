package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
	"github.com/motherhost/mother/internal/transport"
)

// Attach uploads a workspace file to the chat via the transport, gated
// through the path guard. Named directly in spec.md §4.3.
type Attach struct {
	hostDir   string
	channelID string
	guard     *guard.PathGuard
	exec      executor.Executor
	transport transport.ChatTransport
}

// NewAttach creates an attach tool rooted at hostDir, uploading into channelID.
func NewAttach(hostDir, channelID string, g *guard.PathGuard, ex executor.Executor, tr transport.ChatTransport) *Attach {
	return &Attach{hostDir: hostDir, channelID: channelID, guard: g, exec: ex, transport: tr}
}

func (a *Attach) Name() string { return "attach" }

func (a *Attach) Label(args json.RawMessage) string {
	var p attachParams
	_ = json.Unmarshal(args, &p)
	return fmt.Sprintf("Attach %s", p.Path)
}

func (a *Attach) Description() string {
	return `Upload a file from the workspace to the chat. Use an optional title to
caption the upload.`
}

func (a *Attach) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string", "description": "Path to the file to upload"},
			"title": {"type": "string", "description": "Optional caption for the upload"}
		},
		"required": ["path"]
	}`)
}

type attachParams struct {
	Path  string `json:"path"`
	Title string `json:"title"`
}

func (a *Attach) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p attachParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}
	if p.Path == "" {
		return ErrorResult("path is required"), nil
	}

	decision := a.guard.Check(p.Path, a.hostDir)
	if !decision.Allowed {
		return ErrorResult(decision.Reason), nil
	}

	toolPath := a.exec.WorkspacePath(decision.Resolved)
	if !a.exec.Exists(ctx, toolPath) {
		return ErrorResult(fmt.Sprintf("file not found: %s", p.Path)), nil
	}

	if err := a.transport.UploadFile(ctx, a.channelID, toolPath, p.Title); err != nil {
		return ErrorResult(fmt.Sprintf("failed to upload file: %v", err)), nil
	}

	return TextResult(fmt.Sprintf("uploaded %s", p.Path)), nil
}
