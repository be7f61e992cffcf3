package transport

import (
	"context"
	"strconv"
	"sync"
)

// Capture is a non-interactive ChatTransport that records only the final
// text posted to its one working message, discarding every other side
// effect. Used by delegate runs (spec.md §4.3), which need the run's final
// answer as a plain value rather than a rendered chat surface.
type Capture struct {
	mu     sync.Mutex
	result string
	nextID int64
}

// NewCapture creates a Capture transport with no inbound events.
func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) PostMessage(ctx context.Context, channelID, text string) (MessageHandle, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.result = text
	c.mu.Unlock()
	return MessageHandle{ChannelID: channelID, ID: strconv.FormatInt(id, 10)}, nil
}

func (c *Capture) UpdateMessage(ctx context.Context, handle MessageHandle, text string) error {
	c.mu.Lock()
	c.result = text
	c.mu.Unlock()
	return nil
}

func (c *Capture) DeleteMessage(ctx context.Context, handle MessageHandle) error {
	c.mu.Lock()
	c.result = ""
	c.mu.Unlock()
	return nil
}

func (c *Capture) PostInThread(ctx context.Context, parent MessageHandle, text string) (MessageHandle, error) {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.mu.Unlock()
	return MessageHandle{ChannelID: parent.ChannelID, ID: strconv.FormatInt(id, 10)}, nil
}

func (c *Capture) UploadFile(ctx context.Context, channelID, localPath, title string) error {
	return nil
}

func (c *Capture) SetTyping(ctx context.Context, channelID string, typing bool) error { return nil }

func (c *Capture) Inbound() <-chan InboundMessage { return nil }

// Result returns the last text posted to the working message: the run's
// final answer, per AgentRunner's routing rules (spec.md §4.6).
func (c *Capture) Result() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.result
}

