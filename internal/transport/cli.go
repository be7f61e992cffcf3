package transport

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// channelID is the fixed synthetic channel used in --cli mode (spec.md §6).
const channelID = "cli"

// CLI drives the orchestrator from stdin/stdout in place of a chat system,
// grounded on the teacher's internal/channel.Terminal.
type CLI struct {
	inbound chan InboundMessage
	seq     int64

	mu       sync.Mutex
	messages map[string]string // handle ID -> last rendered text, for edits
	nextID   int64
}

// NewCLI creates a stdin/stdout transport.
func NewCLI() *CLI {
	return &CLI{
		inbound:  make(chan InboundMessage, 8),
		messages: make(map[string]string),
	}
}

// Run starts the stdin read loop; blocks until ctx is canceled or stdin closes.
func (c *CLI) Run(ctx context.Context) {
	defer close(c.inbound)

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("> ")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}

		line = strings.TrimSpace(line)
		if line == "" {
			fmt.Print("> ")
			continue
		}
		if line == "exit" || line == "quit" {
			return
		}

		ts := atomic.AddInt64(&c.seq, 1)
		msg := InboundMessage{
			ChannelID: channelID,
			Ts:        strconv.FormatInt(ts, 10),
			UserID:    "cli-user",
			UserName:  "cli-user",
			Text:      line,
		}

		select {
		case c.inbound <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (c *CLI) Inbound() <-chan InboundMessage { return c.inbound }

func (c *CLI) PostMessage(ctx context.Context, channelID, text string) (MessageHandle, error) {
	handle := c.newHandle(channelID)
	c.mu.Lock()
	c.messages[handle.ID] = text
	c.mu.Unlock()
	fmt.Printf("\n%s\n> ", renderPlainText(text))
	return handle, nil
}

func (c *CLI) UpdateMessage(ctx context.Context, handle MessageHandle, text string) error {
	c.mu.Lock()
	c.messages[handle.ID] = text
	c.mu.Unlock()
	fmt.Printf("\n[edit %s] %s\n> ", handle.ID, renderPlainText(text))
	return nil
}

func (c *CLI) DeleteMessage(ctx context.Context, handle MessageHandle) error {
	c.mu.Lock()
	delete(c.messages, handle.ID)
	c.mu.Unlock()
	fmt.Printf("\n[deleted %s]\n> ", handle.ID)
	return nil
}

func (c *CLI) PostInThread(ctx context.Context, parent MessageHandle, text string) (MessageHandle, error) {
	handle := c.newHandle(parent.ChannelID)
	fmt.Printf("\n  | %s\n> ", strings.ReplaceAll(renderPlainText(text), "\n", "\n  | "))
	return handle, nil
}

func (c *CLI) UploadFile(ctx context.Context, channelID, localPath, title string) error {
	label := title
	if label == "" {
		label = localPath
	}
	fmt.Printf("\n[uploaded %s]\n> ", label)
	return nil
}

func (c *CLI) SetTyping(ctx context.Context, channelID string, typing bool) error {
	return nil
}

func (c *CLI) newHandle(channelID string) MessageHandle {
	id := atomic.AddInt64(&c.nextID, 1)
	return MessageHandle{ChannelID: channelID, ID: uuid.NewString()[:8] + "-" + strconv.FormatInt(id, 10)}
}
