package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	// maxDelegateDepth bounds recursive self-delegation.
	maxDelegateDepth = 3
	// delegateDepthEnv is read/incremented across delegate hops.
	delegateDepthEnv = "MOTHER_DELEGATE_DEPTH"
)

// Delegate spawns a fresh instance of this binary as a subprocess coding
// agent, in --delegate-session mode against the same workspace directory,
// and relays its final answer back to the model. Optional per spec.md §4.3; the depth guard
// prevents runaway self-delegation.
type Delegate struct {
	binaryPath string
	workDir    string
}

// NewDelegate creates a delegate tool. binaryPath defaults to the current
// executable when empty.
func NewDelegate(binaryPath, workDir string) *Delegate {
	return &Delegate{binaryPath: binaryPath, workDir: workDir}
}

func (d *Delegate) Name() string { return "delegate" }

func (d *Delegate) Label(args json.RawMessage) string {
	var p delegateParams
	_ = json.Unmarshal(args, &p)
	label := p.Prompt
	if len(label) > 60 {
		label = label[:60] + "..."
	}
	return fmt.Sprintf("Delegate: %s", label)
}

func (d *Delegate) Description() string {
	return `Spawn a subordinate coding-agent process to work a sub-task in isolation and
return its result. Pass sessionId to resume a prior delegation.`
}

func (d *Delegate) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"prompt": {"type": "string", "description": "Task for the delegated agent"},
			"sessionId": {"type": "string", "description": "Resume a prior delegation by session id"},
			"maxTurns": {"type": "integer", "description": "Accepted but not applied: the delegated agent runs without a turn budget"},
			"timeoutSec": {"type": "integer", "description": "Timeout in seconds (default 300)"}
		},
		"required": ["prompt"]
	}`)
}

type delegateParams struct {
	Prompt     string `json:"prompt"`
	SessionID  string `json:"sessionId"`
	MaxTurns   int    `json:"maxTurns"`
	TimeoutSec int    `json:"timeoutSec"`
}

type delegateOutput struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
}

func (d *Delegate) Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error) {
	var p delegateParams
	if err := json.Unmarshal(args, &p); err != nil {
		return ErrorResult(fmt.Sprintf("invalid params: %v", err)), nil
	}
	if p.Prompt == "" {
		return ErrorResult("prompt is required"), nil
	}

	depth := 0
	if v := os.Getenv(delegateDepthEnv); v != "" {
		depth, _ = strconv.Atoi(v)
	}
	if depth >= maxDelegateDepth {
		return ErrorResult(fmt.Sprintf("delegate depth limit (%d) reached; refusing to spawn another sub-agent", maxDelegateDepth)), nil
	}

	binary := d.binaryPath
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return ErrorResult(fmt.Sprintf("cannot resolve own executable: %v", err)), nil
		}
		binary = exe
	}

	sessionID := p.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	timeout := p.TimeoutSec
	if timeout <= 0 {
		timeout = 300
	}
	runCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, binary, "--delegate-session", sessionID, d.workDir)
	cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", delegateDepthEnv, depth+1))
	cmd.Stdin = bytes.NewBufferString(p.Prompt + "\n")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return ErrorResult(fmt.Sprintf("delegate timed out after %ds", timeout)), nil
		}
		return ErrorResult(fmt.Sprintf("delegate failed: %v\n%s", err, stderr.String())), nil
	}

	var out delegateOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ErrorResult(fmt.Sprintf("delegate produced malformed output: %v\n%s", err, stdout.String())), nil
	}
	return TextResult(fmt.Sprintf("%s\n[session_id: %s]", out.Result, out.SessionID)), nil
}
