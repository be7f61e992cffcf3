package tool

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
	"github.com/motherhost/mother/internal/llm"
)

var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Read reads file contents. Grounded on the teacher's internal/tool.Read,
// generalized to gate every path through a PathGuard and to route bytes
// through an Executor (host or container) rather than calling os directly.
type Read struct {
	hostDir string
	guard   *guard.PathGuard
	exec    executor.Executor
}

// NewRead creates a read tool rooted at hostDir.
func NewRead(hostDir string, g *guard.PathGuard, ex executor.Executor) *Read {
	return &Read{hostDir: hostDir, guard: g, exec: ex}
}

func (r *Read) Name() string { return "read" }

func (r *Read) Label(args json.RawMessage) string {
	var p readParams
	_ = json.Unmarshal(args, &p)
	return fmt.Sprintf("Read %s", p.Path)
}

func (r *Read) Description() string {
	return `Read the contents of a file. Returns the file content with line numbers.
Recognized image extensions (jpg/jpeg/png/gif/webp) are returned as an image
part instead. Use absolute paths or paths relative to the working directory.`
}

func (r *Read) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to read"
			},
			"offset": {
				"type": "integer",
				"description": "Line number to start from (1-indexed)"
			},
			"limit": {
				"type": "integer",
				"description": "Maximum number of lines to read"
			}
		},
		"required": ["path"]
	}`)
}

type readParams struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (r *Read) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p readParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}

	if p.Path == "" {
		return ErrorResult("path is required"), nil
	}

	decision := r.guard.Check(p.Path, r.hostDir)
	if !decision.Allowed {
		return ErrorResult(decision.Reason), nil
	}

	toolPath := r.exec.WorkspacePath(decision.Resolved)

	if !r.exec.Exists(ctx, toolPath) {
		return ErrorResult(fmt.Sprintf("file not found: %s", p.Path)), nil
	}

	if mime, ok := imageMIME(p.Path); ok {
		data, err := r.exec.ReadFile(ctx, toolPath)
		if err != nil {
			return ErrorResult(fmt.Sprintf("failed to read file: %v", err)), nil
		}
		return &Result{Content: []llm.Part{{Kind: llm.PartImage, MimeType: mime, Data: base64.StdEncoding.EncodeToString(data)}}}, nil
	}

	content, err := r.exec.ReadFile(ctx, toolPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	lines := strings.Split(string(content), "\n")

	offset := p.Offset
	if offset < 1 {
		offset = 1
	}
	if offset > len(lines) {
		return ErrorResult(fmt.Sprintf("offset %d exceeds file length %d", offset, len(lines))), nil
	}

	limit := p.Limit
	if limit <= 0 {
		limit = 2000
	}

	startIdx := offset - 1
	endIdx := startIdx + limit
	if endIdx > len(lines) {
		endIdx = len(lines)
	}

	var result strings.Builder
	for i := startIdx; i < endIdx; i++ {
		line := lines[i]
		if len(line) > 2000 {
			line = line[:2000] + "..."
		}
		fmt.Fprintf(&result, "%6d\t%s\n", i+1, line)
	}

	return TextResult(result.String()), nil
}

func imageMIME(path string) (string, bool) {
	lower := strings.ToLower(path)
	for ext, mime := range imageMimeTypes {
		if strings.HasSuffix(lower, ext) {
			return mime, true
		}
	}
	return "", false
}
