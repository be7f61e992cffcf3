// Package transport defines the ChatTransport capability (spec.md §6): the
// core's entire dependency on the surrounding chat system, plus a stdin/
// stdout implementation for --cli mode. A production Discord transport is
// out of scope (spec.md §1) and would implement the same interface.
package transport

import "context"

// MessageHandle identifies a previously posted message so it can be
// updated or deleted later.
type MessageHandle struct {
	ChannelID string
	ID        string
}

// InboundMessage is one normalized event from the chat system, matching
// the shape built by the Orchestrator in spec.md §4.9 step 1.
type InboundMessage struct {
	ChannelID   string
	Ts          string
	UserID      string
	UserName    string
	DisplayName string
	Text        string
	Files       []InboundFile
	IsBot       bool
}

// InboundFile is one attachment carried by an InboundMessage.
type InboundFile struct {
	URL      string
	FileName string
}

// ChatTransport is the core's dependency on the surrounding chat system.
// Rate-limiting (>=1s between edits of a given message) is the transport's
// responsibility, not the core's.
type ChatTransport interface {
	// PostMessage sends text to channelID and returns a handle for later edits.
	PostMessage(ctx context.Context, channelID, text string) (MessageHandle, error)

	// UpdateMessage replaces the content of a previously posted message.
	UpdateMessage(ctx context.Context, handle MessageHandle, text string) error

	// DeleteMessage removes a previously posted message.
	DeleteMessage(ctx context.Context, handle MessageHandle) error

	// PostInThread posts text as a reply to parent, returning its own handle.
	PostInThread(ctx context.Context, parent MessageHandle, text string) (MessageHandle, error)

	// UploadFile sends the file at localPath to channelID with an optional title.
	UploadFile(ctx context.Context, channelID, localPath, title string) error

	// SetTyping toggles a typing indicator for channelID.
	SetTyping(ctx context.Context, channelID string, typing bool) error

	// Inbound returns the channel of normalized inbound events. Closed when
	// the transport shuts down.
	Inbound() <-chan InboundMessage
}
