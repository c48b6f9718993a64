package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai"

	"gwi.com/fleet-copilot/internal/store"
)

const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIAgent struct {
	client *openai.Client
	model  string
	tools  Toolbox
	logger *slog.Logger
}

// NewOpenAIAgent works with any OpenAI compatible endpoint when baseURL is set.
func NewOpenAIAgent(apiKey, baseURL, model string, box Toolbox, logger *slog.Logger) *OpenAIAgent {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIAgent{
		client: openai.NewClientWithConfig(config),
		model:  model,
		tools:  box,
		logger: logger,
	}
}

func (a *OpenAIAgent) Stream(ctx context.Context, req Request) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		messages := openAIHistory(req.History)
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Message})
		defs := a.definitions()

		for round := 0; ; round++ {
			text, calls, ok := a.send(ctx, req, round, messages, defs, yield)
			if !ok || len(calls) == 0 {
				return
			}
			if round == MaxToolRounds {
				yield(nil, ErrTooManyToolRounds)
				return
			}
			if !yield(ToolCall{Calls: calls}, nil) {
				return
			}
			results := invokeAll(ctx, a.tools, calls)
			if !yield(ToolResult{Results: results}, nil) {
				return
			}

			assistant := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: text}
			for _, c := range calls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ToolCall{
					ID:       c.ID,
					Type:     openai.ToolTypeFunction,
					Function: openai.FunctionCall{Name: c.Name, Arguments: string(c.Args)},
				})
			}
			messages = append(messages, assistant)
			for _, r := range results {
				messages = append(messages, openai.ChatCompletionMessage{
					Role:       openai.ChatMessageRoleTool,
					Content:    string(r.Output),
					ToolCallID: r.Call.ID,
				})
			}
		}
	}
}

// pendingCall accumulates a tool call streamed as deltas.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

func (a *OpenAIAgent) send(ctx context.Context, req Request, round int, messages []openai.ChatCompletionMessage, defs []openai.Tool, yield func(Item, error) bool) (string, []Call, bool) {
	stream, err := a.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:         a.model,
		Messages:      messages,
		Tools:         defs,
		ToolChoice:    "auto",
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	})
	if err != nil {
		yield(nil, fmt.Errorf("failed to create chat completion stream: %w", err))
		return "", nil, false
	}
	defer stream.Close()

	var text strings.Builder
	pending := map[int]*pendingCall{}
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			yield(nil, fmt.Errorf("openai stream failed: %w", err))
			return "", nil, false
		}
		if resp.Usage != nil {
			observe(ctx, req, Usage{
				Model:        a.model,
				InputTokens:  resp.Usage.PromptTokens,
				OutputTokens: resp.Usage.CompletionTokens,
				RequestType:  requestType(round),
			})
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			text.WriteString(delta.Content)
			if !yield(TextChunk{Content: delta.Content}, nil) {
				return "", nil, false
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			p, ok := pending[idx]
			if !ok {
				p = &pendingCall{}
				pending[idx] = p
			}
			if tc.ID != "" {
				p.id = tc.ID
			}
			if tc.Function.Name != "" {
				p.name = tc.Function.Name
			}
			p.args.WriteString(tc.Function.Arguments)
		}
	}

	indexes := make([]int, 0, len(pending))
	for i := range pending {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	calls := make([]Call, 0, len(indexes))
	for _, i := range indexes {
		p := pending[i]
		args := p.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		if p.id == "" {
			p.id = fmt.Sprintf("call_%d", i)
		}
		calls = append(calls, Call{ID: p.id, Name: p.name, Args: []byte(args)})
	}
	return text.String(), calls, true
}

func (a *OpenAIAgent) definitions() []openai.Tool {
	all := a.tools.All()
	defs := make([]openai.Tool, 0, len(all))
	for _, t := range all {
		defs = append(defs, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}

func openAIHistory(history []store.Message) []openai.ChatCompletionMessage {
	out := []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: systemInstruction}}
	for _, m := range history {
		if !m.Displayable() {
			continue
		}
		role := openai.ChatMessageRoleUser
		if m.Role == store.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}
