package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
)

// Bash executes shell commands, gated through the command guard and run
// through an Executor (host or container). Grounded on the teacher's
// internal/tool.Bash.
type Bash struct {
	cmdGuard *guard.CommandGuard
	exec     executor.Executor
}

// NewBash creates a bash tool backed by cmdGuard and ex.
func NewBash(cmdGuard *guard.CommandGuard, ex executor.Executor) *Bash {
	return &Bash{cmdGuard: cmdGuard, exec: ex}
}

func (b *Bash) Name() string { return "bash" }

func (b *Bash) Label(args json.RawMessage) string {
	var p bashParams
	_ = json.Unmarshal(args, &p)
	label := p.Command
	if len(label) > 60 {
		label = label[:60] + "..."
	}
	return label
}

func (b *Bash) Description() string {
	return `Execute a bash command. Use for running shell commands, git operations, package management, etc.
The command runs in the working directory.
Returns stdout/stderr combined. Exit code 0 = success.
Commands are checked against an allow-list of program names before running.`
}

func (b *Bash) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"command": {
				"type": "string",
				"description": "The bash command to execute"
			},
			"timeout": {
				"type": "integer",
				"description": "Timeout in seconds (default: 120)"
			}
		},
		"required": ["command"]
	}`)
}

type bashParams struct {
	Command string `json:"command"`
	Timeout int    `json:"timeout"`
}

func (b *Bash) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p bashParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}

	if p.Command == "" {
		return ErrorResult("command is required"), nil
	}

	decision := b.cmdGuard.Check(p.Command)
	if !decision.Allowed {
		return ErrorResult(decision.Reason), nil
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	res, err := b.exec.RunShell(ctx, p.Command, timeout)
	if err != nil {
		return ErrorResult(fmt.Sprintf("failed to run command: %v", err)), nil
	}

	output := res.Stdout
	if res.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += res.Stderr
	}
	output = strings.TrimSpace(output)
	if res.Truncated {
		output += "\n... (output truncated)"
	}
	if output == "" {
		output = "(no output)"
	}

	if res.ExitCode == -1 {
		return ErrorResult(fmt.Sprintf("command timed out after %ds\n%s", timeout, output)), nil
	}
	if res.ExitCode != 0 {
		return ErrorResult(fmt.Sprintf("exit status %d\n%s", res.ExitCode, output)), nil
	}

	return TextResult(output), nil
}
