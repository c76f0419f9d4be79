package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// MessagesClient is the subset of the Anthropic SDK the runner drives,
// satisfied by *sdk.MessageService so tests can substitute a stub.
type MessagesClient interface {
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// AnthropicRunner implements SessionRunner against the real Anthropic
// Messages API. A session is a bounded tool loop: the model streams text
// and tool_use blocks, Bash tool calls run against the working directory
// (subject to PreToolUse), and a submit_result tool call ends the turn
// with the session's structured output.
type AnthropicRunner struct {
	client    MessagesClient
	modelMap  map[Model]sdk.Model
	maxTokens int64
}

// NewAnthropicRunner builds a runner from an API key using the SDK's
// default HTTP transport.
func NewAnthropicRunner(apiKey string) *AnthropicRunner {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicRunnerWithClient(&c.Messages)
}

// NewAnthropicRunnerWithClient builds a runner against an arbitrary
// MessagesClient, letting callers inject a fake in tests.
func NewAnthropicRunnerWithClient(client MessagesClient) *AnthropicRunner {
	return &AnthropicRunner{
		client: client,
		modelMap: map[Model]sdk.Model{
			ModelOpus:    sdk.Model("claude-opus-4-1-20250805"),
			ModelSonnet:  sdk.Model("claude-sonnet-4-5-20250929"),
			ModelHaiku:   sdk.Model("claude-haiku-4-5-20251001"),
			ModelInherit: sdk.Model("claude-sonnet-4-5-20250929"),
		},
		maxTokens: 8192,
	}
}

// Run implements SessionRunner.
func (r *AnthropicRunner) Run(ctx context.Context, req SessionRequest) (<-chan SessionMessage, error) {
	out := make(chan SessionMessage, 32)
	go r.drive(ctx, req, out)
	return out, nil
}

func (r *AnthropicRunner) resolveModel(m Model) sdk.Model {
	if model, ok := r.modelMap[m]; ok {
		return model
	}
	return r.modelMap[ModelInherit]
}

func (r *AnthropicRunner) drive(ctx context.Context, req SessionRequest, out chan<- SessionMessage) {
	defer close(out)

	model := r.resolveModel(req.Model)
	tools := []sdk.ToolUnionParam{bashToolParam(), submitResultToolParam()}

	conversation := []sdk.MessageParam{sdk.NewUserMessage(sdk.NewTextBlock(req.UserPrompt))}

	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}

	for turn := 0; turn < maxTurns; turn++ {
		if ctx.Err() != nil {
			return
		}

		params := sdk.MessageNewParams{
			Model:     model,
			MaxTokens: r.maxTokens,
			Messages:  conversation,
			Tools:     tools,
		}
		if req.SystemPrompt != "" {
			params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
		}

		stream := r.client.NewStreaming(ctx, params)
		assistantBlocks, calls, err := consumeStream(stream, out)
		if err != nil {
			out <- SessionMessage{Kind: MessageText, Text: fmt.Sprintf("anthropic stream error: %v", err)}
			return
		}
		if ctx.Err() != nil {
			return
		}
		conversation = append(conversation, sdk.NewAssistantMessage(assistantBlocks...))

		if len(calls) == 0 {
			return
		}

		resultBlocks, submitted := r.handleToolCalls(ctx, req, calls, out)
		conversation = append(conversation, sdk.NewUserMessage(resultBlocks...))
		if submitted {
			return
		}
	}
}

// handleToolCalls runs every pending tool call and returns the tool_result
// blocks to append to the conversation, plus whether submit_result fired.
func (r *AnthropicRunner) handleToolCalls(ctx context.Context, req SessionRequest, calls []pendingToolCall, out chan<- SessionMessage) ([]sdk.ContentBlockParamUnion, bool) {
	var blocks []sdk.ContentBlockParamUnion
	submitted := false

	for _, call := range calls {
		switch call.name {
		case "submit_result":
			out <- SessionMessage{Kind: MessageStructuredOut, StructuredOutput: json.RawMessage(call.input)}
			blocks = append(blocks, sdk.NewToolResultBlock(call.id, "received", false))
			submitted = true

		case "Bash":
			out <- SessionMessage{Kind: MessageToolUse, ToolName: "Bash"}
			output, isErr := r.runBash(ctx, req, call.input)
			blocks = append(blocks, sdk.NewToolResultBlock(call.id, output, isErr))

		default:
			blocks = append(blocks, sdk.NewToolResultBlock(call.id, fmt.Sprintf("unknown tool %q", call.name), true))
		}
	}
	return blocks, submitted
}

func (r *AnthropicRunner) runBash(ctx context.Context, req SessionRequest, inputJSON []byte) (output string, isErr bool) {
	var input struct {
		Command string `json:"command"`
	}
	if err := json.Unmarshal(inputJSON, &input); err != nil {
		return fmt.Sprintf("invalid tool input: %v", err), true
	}

	if req.PreToolUse != nil {
		if allowed, reason := req.PreToolUse("Bash", input.Command); !allowed {
			return fmt.Sprintf("command rejected: %s", reason), true
		}
	}

	cmd := exec.CommandContext(ctx, "bash", "-c", input.Command)
	cmd.Dir = req.WorkDir
	combined, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Sprintf("%s\nexit error: %v", combined, err), true
	}
	return string(combined), false
}

// pendingToolCall is one fully-accumulated tool_use block from a streamed
// turn, ready to dispatch once the stream closes.
type pendingToolCall struct {
	id    string
	name  string
	input []byte
}

// streamBlock accumulates one content block's deltas as the stream plays
// out: text blocks accumulate their text, tool_use blocks accumulate
// their partial-JSON input fragments.
type streamBlock struct {
	kind string // "text" or "tool_use"
	id   string
	name string
	text strings.Builder
	json strings.Builder
}

// consumeStream drains one streamed turn, surfacing text deltas on out as
// they arrive and returning the assistant's content blocks (for the
// conversation history) plus any tool calls the model made.
func consumeStream(stream *ssestream.Stream[sdk.MessageStreamEventUnion], out chan<- SessionMessage) ([]sdk.ContentBlockParamUnion, []pendingToolCall, error) {
	blocks := map[int]*streamBlock{}
	var order []int

	for stream.Next() {
		switch ev := stream.Current().AsAny().(type) {
		case sdk.ContentBlockStartEvent:
			idx := int(ev.Index)
			switch start := ev.ContentBlock.AsAny().(type) {
			case sdk.TextBlock:
				blocks[idx] = &streamBlock{kind: "text"}
				order = append(order, idx)
			case sdk.ToolUseBlock:
				blocks[idx] = &streamBlock{kind: "tool_use", id: start.ID, name: start.Name}
				order = append(order, idx)
			}

		case sdk.ContentBlockDeltaEvent:
			b := blocks[int(ev.Index)]
			if b == nil {
				continue
			}
			switch delta := ev.Delta.AsAny().(type) {
			case sdk.TextDelta:
				if delta.Text == "" {
					continue
				}
				b.text.WriteString(delta.Text)
				out <- SessionMessage{Kind: MessageText, Text: delta.Text}
			case sdk.InputJSONDelta:
				b.json.WriteString(delta.PartialJSON)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, nil, err
	}

	var contentBlocks []sdk.ContentBlockParamUnion
	var calls []pendingToolCall
	for _, idx := range order {
		b := blocks[idx]
		switch b.kind {
		case "text":
			contentBlocks = append(contentBlocks, sdk.NewTextBlock(b.text.String()))
		case "tool_use":
			raw := b.json.String()
			if raw == "" {
				raw = "{}"
			}
			var input any
			if err := json.Unmarshal([]byte(raw), &input); err != nil {
				input = map[string]any{}
			}
			contentBlocks = append(contentBlocks, sdk.NewToolUseBlock(b.id, input, b.name))
			calls = append(calls, pendingToolCall{id: b.id, name: b.name, input: []byte(raw)})
		}
	}
	return contentBlocks, calls, nil
}

func bashToolParam() sdk.ToolUnionParam {
	schema := sdk.ToolInputSchemaParam{
		ExtraFields: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The shell command to execute.",
				},
			},
			"required": []string{"command"},
		},
	}
	u := sdk.ToolUnionParamOfTool(schema, "Bash")
	if u.OfTool != nil {
		u.OfTool.Description = sdk.String("Execute a shell command in the session's working directory.")
	}
	return u
}

func submitResultToolParam() sdk.ToolUnionParam {
	schema := sdk.ToolInputSchemaParam{ExtraFields: map[string]any{"type": "object"}}
	u := sdk.ToolUnionParamOfTool(schema, "submit_result")
	if u.OfTool != nil {
		u.OfTool.Description = sdk.String("Submit this session's final structured result and end the turn.")
	}
	return u
}
