package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/motherhost/mother/internal/agent"
	"github.com/motherhost/mother/internal/llm"
	"github.com/motherhost/mother/internal/queue"
	"github.com/motherhost/mother/internal/store"
	"github.com/motherhost/mother/internal/tool"
	"github.com/motherhost/mother/internal/transport"
)

// fakeBackend blocks until its context is canceled, then reports an
// aborted turn — enough to exercise the orchestrator's stop protocol
// without a real LLM round trip.
type fakeBackend struct{}

func (fakeBackend) Prompt(ctx context.Context, req llm.Request) (<-chan llm.BackendEvent, error) {
	ch := make(chan llm.BackendEvent, 1)
	go func() {
		defer close(ch)
		<-ctx.Done()
		ch <- llm.BackendEvent{Type: llm.EventMessageEnd, StopReason: "aborted"}
	}()
	return ch, nil
}
func (fakeBackend) Name() string                     { return "fake" }
func (fakeBackend) ContextWindow(model string) int    { return 100000 }

// fakeTransport is a minimal ChatTransport recording posted notices.
type fakeTransport struct {
	mu    sync.Mutex
	posts []string
}

func (f *fakeTransport) PostMessage(ctx context.Context, channelID, text string) (transport.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, text)
	return transport.MessageHandle{ChannelID: channelID, ID: "h"}, nil
}
func (f *fakeTransport) UpdateMessage(ctx context.Context, h transport.MessageHandle, text string) error {
	return nil
}
func (f *fakeTransport) DeleteMessage(ctx context.Context, h transport.MessageHandle) error { return nil }
func (f *fakeTransport) PostInThread(ctx context.Context, parent transport.MessageHandle, text string) (transport.MessageHandle, error) {
	return transport.MessageHandle{}, nil
}
func (f *fakeTransport) UploadFile(ctx context.Context, channelID, localPath, title string) error {
	return nil
}
func (f *fakeTransport) SetTyping(ctx context.Context, channelID string, typing bool) error {
	return nil
}
func (f *fakeTransport) Inbound() <-chan transport.InboundMessage { return nil }

func (f *fakeTransport) lastPost() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.posts) == 0 {
		return ""
	}
	return f.posts[len(f.posts)-1]
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakeTransport) {
	t.Helper()
	tr := &fakeTransport{}
	workspaceDir := t.TempDir()
	st := store.New(workspaceDir, nil)
	q := queue.New(context.Background(), 4, nil)
	t.Cleanup(q.Stop)

	o := New(Config{
		Store:     st,
		Queue:     q,
		Transport: tr,
		StartedAt: time.Now().Add(-time.Hour),
		NewRunner: func(channelID string) *agent.Runner {
			return agent.New(agent.Config{
				ChannelID:    channelID,
				WorkspaceDir: workspaceDir,
				ChannelDir:   st.ChannelDir(channelID),
				Transport:    tr,
				Store:        st,
				Backend:      fakeBackend{},
				Tools:        tool.NewRegistry(),
			})
		},
	})
	return o, tr
}

func TestHandleInbound_StopWithNothingRunning(t *testing.T) {
	o, tr := newTestOrchestrator(t)

	o.HandleInbound(context.Background(), transport.InboundMessage{
		ChannelID: "c1", Ts: "1", UserID: "u1", Text: "stop",
	})

	if got := tr.lastPost(); got != "*Nothing running*" {
		t.Errorf("post = %q, want *Nothing running*", got)
	}
}

func TestHandleInbound_StopAbortsActiveRun(t *testing.T) {
	o, tr := newTestOrchestrator(t)
	runner := o.runnerFor("c1")

	done := make(chan struct{})
	go func() {
		_, _ = runner.Run(context.Background(), store.LogEntry{Ts: "0"})
		close(done)
	}()
	for !runner.IsRunning() {
		time.Sleep(time.Millisecond)
	}

	o.HandleInbound(context.Background(), transport.InboundMessage{
		ChannelID: "c1", Ts: "1", UserID: "u1", Text: "  Stop  ",
	})

	if got := tr.lastPost(); got != "*Stopping...*" {
		t.Errorf("post = %q, want *Stopping...*", got)
	}
	<-done
}

func TestHandleInbound_AlreadyWorking(t *testing.T) {
	o, tr := newTestOrchestrator(t)
	runner := o.runnerFor("c1")

	done := make(chan struct{})
	go func() {
		_, _ = runner.Run(context.Background(), store.LogEntry{Ts: "0"})
		close(done)
	}()
	for !runner.IsRunning() {
		time.Sleep(time.Millisecond)
	}

	o.HandleInbound(context.Background(), transport.InboundMessage{
		ChannelID: "c1", Ts: "2", UserID: "u1", Text: "keep going",
	})

	if got := tr.lastPost(); got != `*Already working. Say "stop" to cancel.*` {
		t.Errorf("post = %q, want already-working notice", got)
	}

	runner.Abort()
	<-done
}

func TestHandleInbound_DedupSuppressesRepeat(t *testing.T) {
	o, _ := newTestOrchestrator(t)

	msg := transport.InboundMessage{ChannelID: "c1", Ts: "5", UserID: "u1", Text: "hello"}
	o.HandleInbound(context.Background(), msg)
	o.HandleInbound(context.Background(), msg)

	entries, err := o.cfg.Store.EntriesSince("c1", "")
	if err != nil {
		t.Fatalf("EntriesSince: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("got %d entries, want 1 (duplicate ts should be suppressed)", len(entries))
	}
}

func TestEntryPrecedesStartup(t *testing.T) {
	startedAt := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	old := store.LogEntry{Ts: startedAt.Add(-time.Hour).Format(time.RFC3339)}
	if !entryPrecedesStartup(old, startedAt) {
		t.Error("expected entry before startup to precede startup")
	}

	fresh := store.LogEntry{Ts: startedAt.Add(time.Hour).Format(time.RFC3339)}
	if entryPrecedesStartup(fresh, startedAt) {
		t.Error("expected entry after startup to not precede startup")
	}

	opaque := store.LogEntry{Ts: "1234567890"}
	if entryPrecedesStartup(opaque, startedAt) {
		t.Error("opaque (non-RFC3339) ts should never be treated as preceding startup")
	}
}

func TestMentionStripping(t *testing.T) {
	got := mentionPattern.ReplaceAllString("<@U12345> do the thing", "")
	if got != "do the thing" {
		t.Errorf("got %q, want %q", got, "do the thing")
	}
}
