// Command mother runs the autonomous agent host, wiring the guard,
// executor, tool, LLM, transport, store, queue, scheduler, and
// orchestrator packages together. Grounded on the teacher's
// cmd/klaw/commands root/start wiring, collapsed from klaw's kubectl-style
// subcommand tree to the single flat command spec.md §6 defines.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/motherhost/mother/internal/agent"
	"github.com/motherhost/mother/internal/config"
	"github.com/motherhost/mother/internal/executor"
	"github.com/motherhost/mother/internal/guard"
	"github.com/motherhost/mother/internal/llm"
	"github.com/motherhost/mother/internal/orchestrator"
	"github.com/motherhost/mother/internal/queue"
	"github.com/motherhost/mother/internal/scheduler"
	"github.com/motherhost/mother/internal/skill"
	"github.com/motherhost/mother/internal/store"
	"github.com/motherhost/mother/internal/tool"
	"github.com/motherhost/mother/internal/transport"
)

const maxConcurrentRuns = 4

func main() {
	var sandbox string
	var cliMode bool
	var delegateSession string
	var logFormat string

	root := &cobra.Command{
		Use:   "mother <working-directory>",
		Short: "mother runs an autonomous agent host over a chat channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], sandbox, cliMode, delegateSession, logFormat)
		},
		SilenceUsage: true,
	}
	root.Flags().StringVar(&sandbox, "sandbox", "host", `"host" or the name of an already-running container`)
	root.Flags().BoolVar(&cliMode, "cli", false, "drive the orchestrator from stdin/stdout instead of the chat transport")
	root.Flags().StringVar(&delegateSession, "delegate-session", "", "run one headless agent turn for a delegated sub-task, reading a prompt from stdin, then exit")
	root.Flags().StringVar(&logFormat, "log-format", "", `"text" or "json" (default: text on a terminal, json otherwise)`)

	if err := root.Execute(); err != nil {
		if strings.Contains(err.Error(), "sandbox validation") {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(workDirArg, sandbox string, cliMode bool, delegateSession, logFormat string) error {
	workspaceDir, err := filepath.Abs(workDirArg)
	if err != nil {
		return fmt.Errorf("resolve working directory: %w", err)
	}
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return fmt.Errorf("create working directory: %w", err)
	}

	cfg, err := config.Load(workspaceDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if sandbox != "" {
		cfg.Sandbox.Mode = sandbox
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	delegateMode := delegateSession != ""
	logger := newLogger(cfg.Logging.Level, cfg.Logging.Format)

	if !cliMode && !delegateMode && (cfg.Discord.BotToken == "" || cfg.Discord.GuildID == "") {
		return fmt.Errorf("BOT_TOKEN and GUILD_ID are required unless --cli or --delegate-session is set")
	}

	pathGuard := guard.NewPathGuard(workspaceDir, cfg.Sandbox.AllowedPaths...)
	addCmds, removeCmds := guard.ParseAllowedCommandsEnv(strings.Join(cfg.Sandbox.AllowedCommands, ","))
	cmdGuard := guard.NewCommandGuard(addCmds, removeCmds)

	var exec executor.Executor
	if cfg.Sandbox.Mode == "" || cfg.Sandbox.Mode == "host" {
		exec = executor.NewHost()
	} else {
		exec = executor.NewContainer(cfg.Sandbox.Mode, workspaceDir)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if !exec.Exists(ctx, exec.WorkspacePath(workspaceDir)) {
			return fmt.Errorf("sandbox validation failed: container %q workspace mount not visible", cfg.Sandbox.Mode)
		}
	}

	backend, err := newBackend(cfg)
	if err != nil {
		return fmt.Errorf("configure llm backend: %w", err)
	}

	st := store.New(workspaceDir, logger)
	skillCatalog := skill.NewCatalog(filepath.Join(workspaceDir, "skills"))

	binaryPath, _ := os.Executable()
	registry := tool.NewRegistry()
	registry.Register(tool.NewRead(workspaceDir, pathGuard, exec))
	registry.Register(tool.NewWrite(workspaceDir, pathGuard, exec))
	registry.Register(tool.NewEdit(workspaceDir, pathGuard, exec))
	registry.Register(tool.NewBash(cmdGuard, exec))
	registry.Register(tool.NewSkill(skillCatalog))
	registry.Register(tool.NewDelegate(binaryPath, workspaceDir))

	if delegateMode {
		return runDelegate(delegateSession, workspaceDir, st, skillCatalog, registry, backend, cfg, logger)
	}

	var chatTransport transport.ChatTransport
	var cli *transport.CLI
	if cliMode {
		cli = transport.NewCLI()
		chatTransport = cli
	} else {
		return fmt.Errorf("chat transport not implemented; run with --cli")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q := queue.New(ctx, maxConcurrentRuns, logger)
	defer q.Stop()

	newRunner := func(channelID string) *agent.Runner {
		channelDir := st.ChannelDir(channelID)
		registryForChannel := tool.NewRegistry()
		for _, t := range registry.All() {
			registryForChannel.Register(t)
		}
		registryForChannel.Register(tool.NewAttach(workspaceDir, channelID, pathGuard, exec, chatTransport))

		return agent.New(agent.Config{
			ChannelID:    channelID,
			WorkspaceDir: workspaceDir,
			ChannelDir:   channelDir,
			Transport:    chatTransport,
			Backend:      backend,
			Tools:        registryForChannel,
			Store:        st,
			Skills:       skillCatalog,
			Model:        cfg.Defaults.ModelID,
			MaxTokens:    config.MaxTokens(),
			ShowThinking: cfg.Defaults.ShowThinking,
			Logger:       logger,
		})
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:     st,
		Queue:     q,
		Transport: chatTransport,
		NewRunner: newRunner,
		Logger:    logger,
	})

	sched := scheduler.New(filepath.Join(workspaceDir, "events"), orch, logger)
	go func() {
		if err := sched.Run(ctx); err != nil {
			logger.Error("scheduler stopped", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if cli != nil {
		go cli.Run(ctx)
	}

	if err := orch.Run(ctx); err != nil {
		return err
	}
	return nil
}

// newLogger builds the process logger. format selects "text" or "json"
// explicitly; an empty format auto-detects from stderr, the way the bureau
// CLI's NewCommandLogger picks a handler for piped vs. interactive use.
func newLogger(level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	useJSON := strings.EqualFold(format, "json")
	if format == "" {
		useJSON = !term.IsTerminal(int(os.Stderr.Fd()))
	}

	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

// runDelegate serves a single headless turn for a delegated sub-task: it
// reads one prompt from stdin, runs it through an AgentRunner wired to a
// transport.Capture instead of an interactive surface, and prints the
// result as {"result": ..., "session_id": ...} JSON, per spec.md §4.3 —
// the shape internal/tool.Delegate parses from its child process's stdout.
func runDelegate(sessionID, workspaceDir string, st *store.Store, skillCatalog *skill.Catalog, registry *tool.Registry, backend llm.Backend, cfg *config.Config, logger *slog.Logger) error {
	reader := bufio.NewReader(os.Stdin)
	prompt, err := reader.ReadString('\n')
	if err != nil && prompt == "" {
		return fmt.Errorf("read delegate prompt: %w", err)
	}
	prompt = strings.TrimSuffix(prompt, "\n")

	capture := transport.NewCapture()
	channelDir := st.ChannelDir(sessionID)

	runner := agent.New(agent.Config{
		ChannelID:    sessionID,
		WorkspaceDir: workspaceDir,
		ChannelDir:   channelDir,
		Transport:    capture,
		Backend:      backend,
		Tools:        registry,
		Store:        st,
		Skills:       skillCatalog,
		Model:        cfg.Defaults.ModelID,
		MaxTokens:    config.MaxTokens(),
		ShowThinking: cfg.Defaults.ShowThinking,
		Logger:       logger,
	})

	entry := store.LogEntry{Ts: strconv.FormatInt(time.Now().UnixNano(), 10), User: "delegate", Text: prompt}
	if _, err := st.Append(sessionID, entry); err != nil {
		return fmt.Errorf("append delegate prompt: %w", err)
	}

	result, err := runner.Run(context.Background(), entry)
	if err != nil {
		return fmt.Errorf("delegate run: %w", err)
	}
	if result == "" {
		result = capture.Result()
	}

	out := struct {
		Result    string `json:"result"`
		SessionID string `json:"session_id"`
	}{Result: result, SessionID: sessionID}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func newBackend(cfg *config.Config) (llm.Backend, error) {
	switch strings.ToLower(cfg.Defaults.ModelProvider) {
	case "openai":
		return llm.NewOpenAI(llm.OpenAIConfig{
			APIKey:  config.OpenAIAPIKey(),
			BaseURL: cfg.Defaults.LLMURL,
			Model:   cfg.Defaults.ModelID,
		})
	default:
		return llm.NewAnthropic(llm.AnthropicConfig{
			APIKey:  config.AnthropicAPIKey(),
			BaseURL: cfg.Defaults.LLMURL,
			Model:   cfg.Defaults.ModelID,
		})
	}
}
