package core

// Event is one message of the outbound turn stream.
type Event interface {
	EventType() string
}

type StartEvent struct {
	Type              string `json:"type"`
	ThreadID          string `json:"thread_id"`
	IsNewConversation bool   `json:"is_new_conversation"`
}

type ToolStartEvent struct {
	Type  string `json:"type"`
	Tool  string `json:"tool"`
	Label string `json:"label"`
	Icon  string `json:"icon"`
}

type ToolEndEvent struct {
	Type string `json:"type"`
}

type ChunkEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type Tokens struct {
	Input  int `json:"input"`
	Output int `json:"output"`
	Total  int `json:"total"`
}

type DoneEvent struct {
	Type     string `json:"type"`
	ThreadID string `json:"thread_id"`
	Tokens   Tokens `json:"tokens"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e StartEvent) EventType() string     { return e.Type }
func (e ToolStartEvent) EventType() string { return e.Type }
func (e ToolEndEvent) EventType() string   { return e.Type }
func (e ChunkEvent) EventType() string     { return e.Type }
func (e DoneEvent) EventType() string      { return e.Type }
func (e ErrorEvent) EventType() string     { return e.Type }

func startEvent(threadID string, isNew bool) StartEvent {
	return StartEvent{Type: "start", ThreadID: threadID, IsNewConversation: isNew}
}

func toolStartEvent(tool, label, icon string) ToolStartEvent {
	return ToolStartEvent{Type: "tool_start", Tool: tool, Label: label, Icon: icon}
}

func toolEndEvent() ToolEndEvent { return ToolEndEvent{Type: "tool_end"} }

func chunkEvent(content string) ChunkEvent { return ChunkEvent{Type: "chunk", Content: content} }

func doneEvent(threadID string, t Tokens) DoneEvent {
	return DoneEvent{Type: "done", ThreadID: threadID, Tokens: t}
}

func errorEvent(message string) ErrorEvent { return ErrorEvent{Type: "error", Message: message} }

// Emitter writes one event to the client and flushes it.
type Emitter interface {
	Emit(e Event) error
}
