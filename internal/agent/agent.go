// Package agent drives an LLM through one conversational turn, invoking fleet
// tools on its behalf and streaming what it produces.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"iter"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/tools"
)

// MaxToolRounds bounds how many times a turn goes back to the model with tool results.
const MaxToolRounds = 8

var ErrTooManyToolRounds = errors.New("model kept calling tools")

// Item is one unit of agent output. The set of kinds is closed, but consumers
// must ignore kinds they do not know.
type Item interface {
	item()
}

// TextChunk is model text, in arrival order.
type TextChunk struct {
	Content string
}

// ToolCall announces the tools the model decided to run.
type ToolCall struct {
	Calls []Call
}

// ToolResult carries the outputs of the preceding ToolCall.
type ToolResult struct {
	Results []Result
}

type Call struct {
	ID   string
	Name string
	Args json.RawMessage
}

type Result struct {
	Call   Call
	Output json.RawMessage
}

func (TextChunk) item()  {}
func (ToolCall) item()   {}
func (ToolResult) item() {}

type Usage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	RequestType  string // "chat", or "tool_call" for completions that follow tool results
}

func requestType(round int) string {
	if round == 0 {
		return "chat"
	}
	return "tool_call"
}

// UsageObserver is told about every completion the model bills for.
type UsageObserver interface {
	ObserveUsage(ctx context.Context, u Usage)
}

// Toolbox is the set of tools an agent may call.
type Toolbox interface {
	All() []tools.Tool
	Invoke(ctx context.Context, name string, args json.RawMessage) json.RawMessage
}

// Request is one turn. History holds earlier displayable messages, oldest first.
type Request struct {
	ThreadID string
	History  []store.Message
	Message  string
	Usage    UsageObserver
}

// Agent streams the items of one turn. Iteration stops at the first error.
type Agent interface {
	Stream(ctx context.Context, req Request) iter.Seq2[Item, error]
}

func observe(ctx context.Context, req Request, u Usage) {
	if req.Usage != nil && (u.InputTokens > 0 || u.OutputTokens > 0) {
		req.Usage.ObserveUsage(ctx, u)
	}
}

// invokeAll runs the calls one after the other.
func invokeAll(ctx context.Context, box Toolbox, calls []Call) []Result {
	results := make([]Result, 0, len(calls))
	for _, c := range calls {
		results = append(results, Result{Call: c, Output: box.Invoke(ctx, c.Name, c.Args)})
	}
	return results
}
