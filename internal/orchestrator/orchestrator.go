// Package orchestrator implements Orchestrator (spec.md §4.9): it
// normalizes inbound chat messages, applies the stop/already-working
// protocol, and enqueues agent runs onto each channel's ChannelQueue. It
// also implements scheduler.Dispatcher so EventScheduler firings take the
// same append-then-enqueue path as chat messages. Grounded on the
// teacher's Orchestrator for its overall inbound-loop shape, replacing
// its keyword/AI agent-routing table (spec.md has exactly one agent per
// channel, so there is nothing to route between) with the stop-word and
// concurrency protocol spec.md §4.9 actually specifies.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/motherhost/mother/internal/agent"
	"github.com/motherhost/mother/internal/queue"
	"github.com/motherhost/mother/internal/runerr"
	"github.com/motherhost/mother/internal/store"
	"github.com/motherhost/mother/internal/transport"
)

// stopHint is surfaced in the "already working" notice.
const stopHint = "stop"

var mentionPattern = regexp.MustCompile(`^<@!?[A-Za-z0-9]+>\s*`)

// RunnerFactory lazily builds the AgentRunner for a channel, on first use.
type RunnerFactory func(channelID string) *agent.Runner

// Config bundles everything the Orchestrator needs to drive runs.
type Config struct {
	Store     *store.Store
	Queue     *queue.ChannelQueue
	Transport transport.ChatTransport
	NewRunner RunnerFactory
	StartedAt time.Time
	Logger    *slog.Logger
}

// Orchestrator normalizes inbound events and drives per-channel runs.
type Orchestrator struct {
	cfg Config

	mu      sync.Mutex
	runners map[string]*agent.Runner
}

// New creates an Orchestrator.
func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now()
	}
	return &Orchestrator{cfg: cfg, runners: make(map[string]*agent.Runner)}
}

// runnerFor returns the cached AgentRunner for channelID, creating one on
// first use. One Runner instance serves a channel for the process's
// lifetime.
func (o *Orchestrator) runnerFor(channelID string) *agent.Runner {
	o.mu.Lock()
	defer o.mu.Unlock()
	r, ok := o.runners[channelID]
	if !ok {
		r = o.cfg.NewRunner(channelID)
		o.runners[channelID] = r
	}
	return r
}

// Run drains transport.Inbound() until ctx is canceled.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-o.cfg.Transport.Inbound():
			if !ok {
				return nil
			}
			if msg.IsBot {
				continue
			}
			o.HandleInbound(ctx, msg)
		}
	}
}

// HandleInbound implements spec.md §4.9's six-step inbound protocol.
func (o *Orchestrator) HandleInbound(ctx context.Context, msg transport.InboundMessage) {
	text := mentionPattern.ReplaceAllString(msg.Text, "")

	entry := store.LogEntry{
		Ts:          msg.Ts,
		User:        msg.UserID,
		UserName:    msg.UserName,
		DisplayName: msg.DisplayName,
		Text:        text,
		IsBot:       false,
	}
	for _, f := range msg.Files {
		entry.Attachments = append(entry.Attachments, store.Attachment{Original: f.FileName})
	}

	appended, err := o.cfg.Store.Append(msg.ChannelID, entry)
	if err != nil {
		o.cfg.Logger.Error("append inbound message", "error", runerr.New(runerr.Internal, msg.ChannelID, err))
		return
	}
	if !appended {
		return // duplicate within the dedup window
	}

	runner := o.runnerFor(msg.ChannelID)

	trimmed := strings.ToLower(strings.TrimSpace(text))
	if trimmed == stopHint {
		if runner.Abort() {
			o.post(ctx, msg.ChannelID, "*Stopping...*")
		} else {
			o.post(ctx, msg.ChannelID, "*Nothing running*")
		}
		return
	}

	if entryPrecedesStartup(entry, o.cfg.StartedAt) {
		return // logged via Append; no run triggered for backfilled history
	}

	if runner.IsRunning() {
		o.post(ctx, msg.ChannelID, fmt.Sprintf("*Already working. Say %q to cancel.*", stopHint))
		return
	}

	o.cfg.Queue.Enqueue(msg.ChannelID, func(runCtx context.Context) {
		if _, err := runner.Run(runCtx, entry); err != nil {
			o.cfg.Logger.Error("agent run failed", "error", runerr.New(runerr.Internal, msg.ChannelID, err))
		}
	})
}

// Dispatch implements scheduler.Dispatcher: it appends a synthesized
// system entry and enqueues a run exactly as an inbound message would,
// without the stop/already-working chat protocol.
func (o *Orchestrator) Dispatch(channelID, text string) {
	entry := store.LogEntry{
		Ts:   fmt.Sprintf("%d", time.Now().UnixNano()),
		User: "scheduler",
		Text: text,
	}

	if _, err := o.cfg.Store.Append(channelID, entry); err != nil {
		o.cfg.Logger.Error("append scheduled event", "error", runerr.New(runerr.Internal, channelID, err))
		return
	}

	runner := o.runnerFor(channelID)
	o.cfg.Queue.Enqueue(channelID, func(runCtx context.Context) {
		if _, err := runner.Run(runCtx, entry); err != nil {
			o.cfg.Logger.Error("scheduled run failed", "error", runerr.New(runerr.Internal, channelID, err))
		}
	})
}

func (o *Orchestrator) post(ctx context.Context, channelID, text string) {
	if _, err := o.cfg.Transport.PostMessage(ctx, channelID, text); err != nil {
		o.cfg.Logger.Warn("post notice failed", "channel", channelID, "error", err)
	}
}

// entryPrecedesStartup reports whether entry's timestamp predates process
// startup, per spec.md §4.9 step 3. Ts is treated as an RFC3339 timestamp
// when parseable; entries with an opaque (e.g. snowflake) Ts always run,
// since only a real wall-clock comparison can precede startup.
func entryPrecedesStartup(entry store.LogEntry, startedAt time.Time) bool {
	ts, err := time.Parse(time.RFC3339, entry.Ts)
	if err != nil {
		return false
	}
	return ts.Before(startedAt)
}
