package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"gwi.com/fleet-copilot/internal/store"
	"gwi.com/fleet-copilot/internal/tools"
)

const DefaultGeminiModel = "gemini-2.0-flash"

type GeminiAgent struct {
	client *genai.Client
	model  string
	tools  Toolbox
	logger *slog.Logger
}

func NewGeminiAgent(ctx context.Context, apiKey, model string, box Toolbox, logger *slog.Logger) (*GeminiAgent, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if model == "" {
		model = DefaultGeminiModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GeminiAgent{client: client, model: model, tools: box, logger: logger}, nil
}

func (a *GeminiAgent) Close() error {
	if a.client == nil {
		return nil
	}
	return a.client.Close()
}

func (a *GeminiAgent) Stream(ctx context.Context, req Request) iter.Seq2[Item, error] {
	return func(yield func(Item, error) bool) {
		model := a.client.GenerativeModel(a.model)
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemInstruction)}}
		model.Tools = []*genai.Tool{{FunctionDeclarations: geminiDeclarations(a.tools.All())}}

		cs := model.StartChat()
		cs.History = geminiHistory(req.History)

		parts := []genai.Part{genai.Text(req.Message)}
		for round := 0; ; round++ {
			calls, ok := a.send(ctx, cs, req, round, parts, yield)
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

			parts = make([]genai.Part, 0, len(results))
			for _, r := range results {
				parts = append(parts, genai.FunctionResponse{Name: r.Call.Name, Response: responseMap(r.Output)})
			}
		}
	}
}

// send streams one model response. It returns the function calls the model
// asked for, and false when iteration must stop.
func (a *GeminiAgent) send(ctx context.Context, cs *genai.ChatSession, req Request, round int, parts []genai.Part, yield func(Item, error) bool) ([]Call, bool) {
	it := cs.SendMessageStream(ctx, parts...)
	var (
		calls []Call
		usage *genai.UsageMetadata
	)
	for {
		resp, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			yield(nil, fmt.Errorf("gemini stream failed: %w", err))
			return nil, false
		}
		if resp.UsageMetadata != nil {
			usage = resp.UsageMetadata
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				if p == "" {
					continue
				}
				if !yield(TextChunk{Content: string(p)}, nil) {
					return nil, false
				}
			case genai.FunctionCall:
				calls = append(calls, geminiCall(p, len(calls)))
			case *genai.FunctionCall:
				calls = append(calls, geminiCall(*p, len(calls)))
			default:
				a.logger.Debug("ignoring gemini part", "type", fmt.Sprintf("%T", part))
			}
		}
	}
	if usage != nil {
		observe(ctx, req, Usage{
			Model:        a.model,
			InputTokens:  int(usage.PromptTokenCount),
			OutputTokens: int(usage.CandidatesTokenCount),
			RequestType:  requestType(round),
		})
	}
	return calls, true
}

func geminiCall(fc genai.FunctionCall, n int) Call {
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	return Call{ID: fmt.Sprintf("%s-%d", fc.Name, n), Name: fc.Name, Args: args}
}

func geminiHistory(messages []store.Message) []*genai.Content {
	var out []*genai.Content
	for _, m := range messages {
		if !m.Displayable() {
			continue
		}
		role := "user"
		if m.Role == store.RoleAssistant {
			role = "model"
		}
		out = append(out, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return out
}

func geminiDeclarations(ts []tools.Tool) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(ts))
	for _, t := range ts {
		s := t.Parameters()
		params := &genai.Schema{
			Type:       genai.TypeObject,
			Properties: make(map[string]*genai.Schema, len(s.Properties)),
			Required:   s.Required,
		}
		for name, p := range s.Properties {
			prop := &genai.Schema{Type: geminiType(p.Type), Description: p.Description}
			if len(p.Enum) > 0 {
				prop.Format, prop.Enum = "enum", p.Enum
			}
			params.Properties[name] = prop
		}
		decls = append(decls, &genai.FunctionDeclaration{Name: t.Name(), Description: t.Description(), Parameters: params})
	}
	return decls
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeString
}

// responseMap wraps a tool output as the object Gemini expects.
func responseMap(out json.RawMessage) map[string]any {
	var m map[string]any
	if err := json.Unmarshal(out, &m); err == nil && m != nil {
		return m
	}
	return map[string]any{"result": string(out)}
}
