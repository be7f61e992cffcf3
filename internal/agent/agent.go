// Package agent implements AgentRunner (spec.md §4.6): one per channel,
// owning the LLM transcript, tool set, and streamed run loop. Grounded on
// the teacher's internal/agent.Agent for its provider/tool/memory wiring,
// generalized from a single always-resident chat loop into a per-channel,
// queue-driven, streamed tool-use runner with the side-effect-chain
// discipline spec.md §4.6 and §9 require.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/motherhost/mother/internal/llm"
	"github.com/motherhost/mother/internal/memory"
	"github.com/motherhost/mother/internal/sessioncontext"
	"github.com/motherhost/mother/internal/skill"
	"github.com/motherhost/mother/internal/store"
	"github.com/motherhost/mother/internal/tool"
	"github.com/motherhost/mother/internal/transport"
	"github.com/motherhost/mother/internal/tree"
)

const maxMessageChars = 1900

// pendingTool tracks one in-flight tool call for the run's lifetime.
type pendingTool struct {
	toolName  string
	args      json.RawMessage
	startedAt time.Time
}

// RunState is the mutable state of one AgentRunner, per spec.md §3.
type RunState struct {
	Running       bool
	StopRequested bool
	PendingTools  map[string]pendingTool
	Usage         llm.Usage
	cancel        context.CancelFunc
}

// Config bundles everything one Runner needs to serve a single channel.
type Config struct {
	ChannelID    string
	WorkspaceDir string // <workspace>
	ChannelDir   string // <workspace>/<channelId>
	Transport    transport.ChatTransport
	Backend      llm.Backend
	Tools        *tool.Registry
	Store        *store.Store
	Skills       *skill.Catalog
	Model        string
	MaxTokens    int
	ShowThinking bool // post thinking parts to the thread, not just log them
	Logger       *slog.Logger
}

// Runner is the AgentRunner for one channel: created lazily, cached for
// process lifetime, never shared across channels.
type Runner struct {
	cfg        Config
	sessionCtx *sessioncontext.SessionContext
	logger     *slog.Logger

	mu    sync.Mutex
	state RunState
}

// New creates a Runner for one channel.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:        cfg,
		sessionCtx: sessioncontext.New(cfg.ChannelDir),
		logger:     logger,
	}
}

// IsRunning reports whether a run is currently in flight.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Running
}

// Abort signals the in-flight run (if any) to stop; the backend and every
// pending tool observe ctx cancellation and surrender with "aborted".
func (r *Runner) Abort() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.state.Running {
		return false
	}
	r.state.StopRequested = true
	if r.state.cancel != nil {
		r.state.cancel()
	}
	return true
}

// sideEffectChain is an ordered, single-consumer queue of fallible UI side
// effects, per spec.md §9: errors become thread posts, never run aborts.
type sideEffectChain struct {
	jobs      chan func()
	done      chan struct{}
	closeOnce sync.Once
}

func newSideEffectChain() *sideEffectChain {
	c := &sideEffectChain{jobs: make(chan func(), 256), done: make(chan struct{})}
	go func() {
		for job := range c.jobs {
			job()
		}
		close(c.done)
	}()
	return c
}

func (c *sideEffectChain) enqueue(job func()) {
	select {
	case c.jobs <- job:
	default:
		// Chain is unbounded per spec; a full buffer means a runaway run —
		// run the job synchronously rather than drop a UI-visible effect.
		job()
	}
}

// closeAndWait drains the chain; calling it again after the first call
// only waits.
func (c *sideEffectChain) closeAndWait() {
	c.closeOnce.Do(func() { close(c.jobs) })
	<-c.done
}

// Run drives one full run for userEntry: sync + trim the transcript, prompt
// the backend, dispatch any requested tools, and route the final answer
// per spec.md §4.6's routing rules. Returns once the run has fully ended
// (final, aborted, or error) and every side effect has been flushed.
func (r *Runner) Run(ctx context.Context, userEntry store.LogEntry) (string, error) {
	r.mu.Lock()
	if r.state.Running {
		r.mu.Unlock()
		return "", fmt.Errorf("run already active for channel %s", r.cfg.ChannelID)
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.state = RunState{Running: true, PendingTools: make(map[string]pendingTool), cancel: cancel}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.state.Running = false
		r.state.cancel = nil
		r.mu.Unlock()
		cancel()
	}()

	chain := newSideEffectChain()
	defer chain.closeAndWait()

	transcript, err := r.sessionCtx.Sync(r.cfg.Store, r.cfg.ChannelID, userEntry.Ts)
	if err != nil {
		return "", fmt.Errorf("sync transcript: %w", err)
	}
	transcript = sessioncontext.Trim(transcript)

	working, err := r.cfg.Transport.PostMessage(runCtx, r.cfg.ChannelID, "*Working...*")
	if err != nil {
		return "", fmt.Errorf("post working message: %w", err)
	}

	var threadHandles []transport.MessageHandle
	postThread := func(text string) {
		chain.enqueue(func() {
			h, err := r.cfg.Transport.PostInThread(runCtx, working, text)
			if err != nil {
				r.logger.Warn("thread post failed", "channel", r.cfg.ChannelID, "error", err)
				return
			}
			threadHandles = append(threadHandles, h)
		})
	}

	systemPrompt := r.buildSystemPrompt()
	silent := false
	var finalText string
	stopReason := "endTurn"

runLoop:
	for {
		req := llm.Request{
			SystemPrompt: systemPrompt,
			Transcript:   transcript,
			Model:        r.cfg.Model,
			MaxTokens:    r.cfg.MaxTokens,
			Tools:        r.cfg.Tools.Definitions(),
		}

		events, err := r.cfg.Backend.Prompt(runCtx, req)
		if err != nil {
			postThread(fmt.Sprintf("*Error: %v*", err))
			stopReason = "error"
			break runLoop
		}

		var toolCalls []llm.Part
		for ev := range events {
			switch ev.Type {
			case llm.EventAutoRetry:
				postThread(fmt.Sprintf("*Retrying (%d/%d)...*", ev.Attempt, ev.MaxAttempts))

			case llm.EventMessageEnd:
				stopReason = ev.StopReason
				msg := llm.Message{Role: llm.RoleAssistant, Content: ev.Content, StopReason: ev.StopReason, Usage: ev.Usage, ErrorMessage: ev.ErrorMessage}
				transcript = append(transcript, msg)

				for _, p := range ev.Content {
					if p.Kind == llm.PartThinking && p.Text != "" {
						r.logger.Info("thinking", "channel", r.cfg.ChannelID, "text", p.Text)
						if r.cfg.ShowThinking {
							postThread(fmt.Sprintf("*Thinking: %s*", p.Text))
						}
					}
				}

				if ev.StopReason != "aborted" {
					r.mu.Lock()
					r.state.Usage.Add(ev.Usage)
					r.mu.Unlock()
				}

				switch ev.StopReason {
				case "toolUse":
					for _, p := range ev.Content {
						if p.Kind == llm.PartText && p.Text != "" {
							postThread(p.Text)
						}
						if p.Kind == llm.PartToolUse {
							toolCalls = append(toolCalls, p)
						}
					}
				case "aborted":
					break runLoop
				default:
					finalText = textOfParts(ev.Content)
					break runLoop
				}
			}
		}

		if len(toolCalls) == 0 {
			break runLoop
		}

		for _, call := range toolCalls {
			result := r.dispatchTool(runCtx, call, chain, working)
			transcript = append(transcript, llm.Message{
				Role:        llm.RoleTool,
				ToolCallID:  call.ToolCallID,
				ToolResult:  textOfParts(result.Content),
				ToolIsError: result.IsError,
			})
		}

		select {
		case <-runCtx.Done():
			stopReason = "aborted"
			break runLoop
		default:
		}
	}

	if strings.HasPrefix(strings.TrimSpace(finalText), "[SILENT]") {
		silent = true
	}

	if silent {
		chain.enqueue(func() {
			_ = r.cfg.Transport.DeleteMessage(runCtx, working)
			for _, h := range threadHandles {
				_ = r.cfg.Transport.DeleteMessage(runCtx, h)
			}
		})
	} else {
		switch stopReason {
		case "aborted":
			chain.enqueue(func() { _ = r.cfg.Transport.UpdateMessage(runCtx, working, "*Stopped*") })
		case "error":
			chain.enqueue(func() { _ = r.cfg.Transport.UpdateMessage(runCtx, working, "*Sorry, something went wrong*") })
		default:
			parts := splitMessage(finalText)
			if len(parts) > 0 {
				chain.enqueue(func() { _ = r.cfg.Transport.UpdateMessage(runCtx, working, parts[0]) })
				postThread(parts[0])
				for i, p := range parts[1:] {
					text := p
					n := i + 2
					postThread(fmt.Sprintf("%s\n*(continued %d...)*", text, n))
				}
			}
		}
	}

	chain.closeAndWait()

	r.mu.Lock()
	usage := r.state.Usage
	r.mu.Unlock()
	if usage.TotalCost() > 0 {
		tailTokens := transcriptTokenCount(transcript, r.cfg.Model)
		ratio := float64(0)
		if window := r.cfg.Backend.ContextWindow(r.cfg.Model); window > 0 {
			ratio = float64(tailTokens) / float64(window)
		}
		summary := fmt.Sprintf("*Usage: %d in / %d out tokens, $%.4f — transcript tail ~%d tokens (%.1f%% of context window)*",
			usage.InputTokens, usage.OutputTokens, usage.TotalCost(), tailTokens, ratio*100)
		_, _ = r.cfg.Transport.PostInThread(runCtx, working, summary)
	}

	if err := r.sessionCtx.SaveSummary(r.cfg.ChannelID, usage); err != nil {
		r.logger.Warn("session summary save failed", "channel", r.cfg.ChannelID, "error", err)
	}

	result := finalText
	switch stopReason {
	case "aborted":
		result = "*Stopped*"
	case "error":
		result = "*Sorry, something went wrong*"
	}
	if silent {
		result = ""
	}

	return result, r.sessionCtx.Save(transcript)
}

// dispatchTool executes one tool call under the run's side-effect-chain
// discipline, per spec.md §4.6's tool dispatch protocol.
func (r *Runner) dispatchTool(ctx context.Context, call llm.Part, chain *sideEffectChain, working transport.MessageHandle) *tool.Result {
	t, ok := r.cfg.Tools.Get(call.ToolName)
	if !ok {
		return tool.ErrorResult(fmt.Sprintf("unknown tool: %s", call.ToolName))
	}

	label := t.Label(call.Args)
	startedAt := time.Now()

	r.mu.Lock()
	r.state.PendingTools[call.ToolCallID] = pendingTool{toolName: call.ToolName, args: call.Args, startedAt: startedAt}
	r.mu.Unlock()

	chain.enqueue(func() {
		_ = r.cfg.Transport.UpdateMessage(ctx, working, fmt.Sprintf("*-> %s*", label))
	})

	result, err := t.Execute(ctx, call.ToolCallID, call.Args)
	if err != nil {
		result = tool.ErrorResult(err.Error())
	}

	elapsed := time.Since(startedAt).Seconds()

	r.mu.Lock()
	delete(r.state.PendingTools, call.ToolCallID)
	r.mu.Unlock()

	status := "OK"
	if result.IsError {
		status = "X"
	}
	resultText := textOfParts(result.Content)
	chain.enqueue(func() {
		_, _ = r.cfg.Transport.PostInThread(ctx, working, fmt.Sprintf(
			"%s %s: %s (%.1fs)\n```\n%s\n```\n```\n%s\n```",
			status, call.ToolName, label, elapsed, string(call.Args), resultText,
		))
		if result.IsError {
			short := resultText
			if len(short) > 200 {
				short = short[:200]
			}
			_, _ = r.cfg.Transport.PostInThread(ctx, working, fmt.Sprintf("*Error: %s*", short))
		}
	})

	return result
}

// transcriptTokenCount estimates the token size of transcript using the
// same tokenizer family the backend bills against, grounded on the
// gopherclaw context engine's tokenizer.Encode(text, nil, nil) pattern.
// Falls back to a byte-length heuristic when no encoding is available for
// model, since the exact tokenizer for arbitrary provider models isn't
// always registered.
func transcriptTokenCount(transcript []llm.Message, model string) int {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		total := 0
		for _, msg := range transcript {
			total += len(textOfParts(msg.Content)) + len(msg.ToolResult)
		}
		return total / 4
	}

	total := 0
	for _, msg := range transcript {
		total += len(enc.Encode(textOfParts(msg.Content), nil, nil))
		if msg.ToolResult != "" {
			total += len(enc.Encode(msg.ToolResult, nil, nil))
		}
	}
	return total
}

func textOfParts(parts []llm.Part) string {
	var b strings.Builder
	for _, p := range parts {
		if p.Kind == llm.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// splitMessage splits text into chunks under maxMessageChars-50, per
// spec.md §4.6.
func splitMessage(text string) []string {
	limit := maxMessageChars - 50
	if len(text) <= maxMessageChars {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= limit {
			parts = append(parts, text)
			break
		}
		parts = append(parts, text[:limit])
		text = text[limit:]
	}
	return parts
}

// buildSystemPrompt rebuilds the full system prompt from scratch on every
// run, per spec.md §4.6.
func (r *Runner) buildSystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are mother, an autonomous agent host operating channel %q.\n", r.cfg.ChannelID)
	fmt.Fprintf(&b, "Workspace root: %s\nChannel workspace: %s\n\n", r.cfg.WorkspaceDir, r.cfg.ChannelDir)

	ws := memory.Load(r.cfg.WorkspaceDir)
	if s := memory.Section("MOTHER.md", ws.Mother, ws.MotherTruncated); s != "" {
		b.WriteString(s + "\n\n")
	}
	if s := memory.Section("Global Memory", ws.Memory, ws.MemoryTruncated); s != "" {
		b.WriteString(s + "\n\n")
	}
	if chMem, trunc := memory.LoadChannelMemory(r.cfg.ChannelDir); chMem != "" {
		b.WriteString(memory.Section("Channel Memory", chMem, trunc) + "\n\n")
	}

	fmt.Fprintf(&b, "## Workspace Tree\n```\n%s```\n\n", tree.Render(r.cfg.WorkspaceDir))

	if r.cfg.Skills != nil {
		if summary := skill.CatalogSummary(r.cfg.Skills.List()); summary != "" {
			b.WriteString(summary + "\n")
		}
	}

	return b.String()
}
