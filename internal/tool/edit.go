package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
)

// Edit performs string replacement in files, gated through the path guard.
// Grounded on the teacher's internal/tool.Edit.
type Edit struct {
	hostDir string
	guard   *guard.PathGuard
	exec    executor.Executor
}

// NewEdit creates an edit tool rooted at hostDir.
func NewEdit(hostDir string, g *guard.PathGuard, ex executor.Executor) *Edit {
	return &Edit{hostDir: hostDir, guard: g, exec: ex}
}

func (e *Edit) Name() string { return "edit" }

func (e *Edit) Label(args json.RawMessage) string {
	var p editParams
	_ = json.Unmarshal(args, &p)
	return fmt.Sprintf("Edit %s", p.Path)
}

func (e *Edit) Description() string {
	return `Edit a file by replacing a specific string with new content.
The old_string must match exactly (including whitespace and indentation).
Use for making targeted changes to existing files.
The old_string must be unique in the file unless replace_all is true.`
}

func (e *Edit) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {
				"type": "string",
				"description": "Path to the file to edit"
			},
			"old_string": {
				"type": "string",
				"description": "The exact string to find and replace"
			},
			"new_string": {
				"type": "string",
				"description": "The string to replace it with"
			},
			"replace_all": {
				"type": "boolean",
				"description": "Replace all occurrences (default: false, fails if not unique)"
			}
		},
		"required": ["path", "old_string", "new_string"]
	}`)
}

type editParams struct {
	Path       string `json:"path"`
	OldString  string `json:"old_string"`
	NewString  string `json:"new_string"`
	ReplaceAll bool   `json:"replace_all"`
}

func (e *Edit) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p editParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}

	if p.Path == "" {
		return ErrorResult("path is required"), nil
	}
	if p.OldString == "" {
		return ErrorResult("old_string is required"), nil
	}
	if p.OldString == p.NewString {
		return ErrorResult("old_string and new_string must be different"), nil
	}

	decision := e.guard.Check(p.Path, e.hostDir)
	if !decision.Allowed {
		return ErrorResult(decision.Reason), nil
	}

	toolPath := e.exec.WorkspacePath(decision.Resolved)

	if !e.exec.Exists(ctx, toolPath) {
		return ErrorResult(fmt.Sprintf("file not found: %s", p.Path)), nil
	}

	content, err := e.exec.ReadFile(ctx, toolPath)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to read file: %v", err)), nil
	}

	text := string(content)
	count := strings.Count(text, p.OldString)

	if count == 0 {
		return ErrorResult(fmt.Sprintf("old_string not found in %s", p.Path)), nil
	}

	if count > 1 && !p.ReplaceAll {
		return ErrorResult(fmt.Sprintf("old_string found %d times in %s. Use replace_all=true to replace all, or make old_string more specific.", count, p.Path)), nil
	}

	var newText string
	if p.ReplaceAll {
		newText = strings.ReplaceAll(text, p.OldString, p.NewString)
	} else {
		newText = strings.Replace(text, p.OldString, p.NewString, 1)
	}

	if err := e.exec.WriteFile(ctx, toolPath, []byte(newText)); err != nil {
		return ErrorResult(fmt.Sprintf("failed to write file: %v", err)), nil
	}

	return TextResult(unifiedDiff(p.Path, text, newText)), nil
}
