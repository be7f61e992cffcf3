// Package tool implements the read/write/edit/bash/attach/delegate/skill
// tool set (spec.md §4.3). The path- and command-taking tools are gated
// through internal/guard before any I/O and executed through
// internal/executor; delegate and skill take no path or command.
package tool

import (
	"context"
	"encoding/json"

	"github.com/motherhost/mother/internal/llm"
)

// Result is the outcome of a tool invocation. Failures are returned here,
// never as a Go error — a tool error does not end the run (spec.md §4.3).
type Result struct {
	Content []llm.Part
	IsError bool
}

// TextResult builds a single-text-part Result.
func TextResult(text string) *Result {
	return &Result{Content: []llm.Part{{Kind: llm.PartText, Text: text}}}
}

// ErrorResult builds a single-text-part error Result.
func ErrorResult(text string) *Result {
	return &Result{Content: []llm.Part{{Kind: llm.PartText, Text: text}}, IsError: true}
}

// Tool is any capability the agent can invoke. Label derives a short
// caption from a call's arguments, surfaced to the chat UI; no tool's
// schema has a separate "label" parameter.
type Tool interface {
	Name() string
	Label(args json.RawMessage) string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, id string, args json.RawMessage) (*Result, error)
}

// Registry holds the tool set available to a single AgentRunner.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds t to the registry, preserving registration order for
// deterministic tool-definition listing.
func (r *Registry) Register(t Tool) {
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// All returns every registered tool in registration order.
func (r *Registry) All() []Tool {
	result := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions converts the registry into llm.ToolDefinition values for a
// backend prompt request.
func (r *Registry) Definitions() []llm.ToolDefinition {
	tools := r.All()
	defs := make([]llm.ToolDefinition, len(tools))
	for i, t := range tools {
		defs[i] = llm.ToolDefinition{Name: t.Name(), Description: t.Description(), Schema: t.Schema()}
	}
	return defs
}
