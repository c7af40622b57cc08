package llm

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
)

const providerNameOpenAI = "openai"

// OpenAIProvider drives OpenAI's Responses API in function-tool-calling
// mode. It never streams: the selector's conversation protocol (spec.md
// §4.5) is strictly request/tool-result/request, so the non-streaming
// endpoint is both simpler and sufficient.
type OpenAIProvider struct {
	client openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(option.WithAPIKey(apiKey))}
}

func (p *OpenAIProvider) Name() string {
	return providerNameOpenAI
}

// Start opens a new conversation: system instructions, the user's criteria
// message, and the closed tool-spec set the model may call.
func (p *OpenAIProvider) Start(ctx context.Context, request *Request) (*Conversation, *Turn, error) {
	log.Printf("🎵 SELECTOR TURN STARTED (model=%s)", request.Model)

	transaction := sentry.StartTransaction(ctx, "openai.selector_turn")
	defer transaction.Finish()
	transaction.SetTag("model", request.Model)

	conversation := &Conversation{Model: request.Model, ReasoningEffort: request.ReasoningEffort}
	conversation.items = append(conversation.items,
		responses.ResponseInputItemParamOfMessage(request.SystemPrompt, responses.EasyInputMessageRoleDeveloper),
		responses.ResponseInputItemParamOfMessage(request.UserPrompt, responses.EasyInputMessageRoleUser),
	)

	params := p.buildParams(conversation, request.Tools)

	turn, err := p.call(ctx, conversation, params, transaction)
	if err != nil {
		return nil, nil, err
	}
	return conversation, turn, nil
}

// Continue appends the caller's tool results to the conversation and asks
// for the model's next turn.
func (p *OpenAIProvider) Continue(ctx context.Context, conversation *Conversation, results []ToolResult) (*Turn, error) {
	transaction := sentry.StartTransaction(ctx, "openai.selector_turn_continue")
	defer transaction.Finish()
	transaction.SetTag("model", conversation.Model)

	for _, r := range results {
		conversation.items = append(conversation.items,
			responses.ResponseInputItemParamOfFunctionCallOutput(r.CallID, r.Output),
		)
	}

	params := p.buildParams(conversation, nil)
	return p.call(ctx, conversation, params, transaction)
}

// ContinueWithMessage appends a plain user message, used for the single
// corrective retry when the model's terminal output failed strict JSON
// parsing ("Return ONLY the JSON array").
func (p *OpenAIProvider) ContinueWithMessage(ctx context.Context, conversation *Conversation, message string) (*Turn, error) {
	transaction := sentry.StartTransaction(ctx, "openai.selector_turn_correction")
	defer transaction.Finish()
	transaction.SetTag("model", conversation.Model)

	conversation.items = append(conversation.items,
		responses.ResponseInputItemParamOfMessage(message, responses.EasyInputMessageRoleUser),
	)

	params := p.buildParams(conversation, nil)
	return p.call(ctx, conversation, params, transaction)
}

func (p *OpenAIProvider) call(ctx context.Context, conversation *Conversation, params responses.ResponseNewParams, transaction *sentry.Span) (*Turn, error) {
	span := transaction.StartChild("openai.api_call")
	start := time.Now()
	resp, err := p.client.Responses.New(ctx, params)
	span.Finish()

	if err != nil {
		transaction.SetTag("success", "false")
		sentry.CaptureException(err)
		log.Printf("❌ SELECTOR TURN FAILED after %v: %v", time.Since(start), err)
		return nil, fmt.Errorf("llm: responses.New: %w", err)
	}

	turn := &Turn{
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}

	for _, item := range resp.Output {
		if fc := item.AsFunctionCall(); fc.Type == "function_call" {
			turn.ToolCalls = append(turn.ToolCalls, ToolCall{
				ID:        fc.CallID,
				Name:      fc.Name,
				Arguments: fc.Arguments,
			})
			conversation.items = append(conversation.items, item.ToParam())
		}
	}

	if len(turn.ToolCalls) == 0 {
		turn.OutputText = resp.OutputText()
	}

	transaction.SetTag("success", "true")
	transaction.SetTag("tool_calls", fmt.Sprintf("%d", len(turn.ToolCalls)))
	log.Printf("✅ SELECTOR TURN COMPLETED in %v (tool_calls=%d, input_tokens=%d, output_tokens=%d)",
		time.Since(start), len(turn.ToolCalls), turn.Usage.InputTokens, turn.Usage.OutputTokens)

	return turn, nil
}

func (p *OpenAIProvider) buildParams(conversation *Conversation, tools []ToolSpec) responses.ResponseNewParams {
	params := responses.ResponseNewParams{
		Model: conversation.Model,
		Input: responses.ResponseNewParamsInputUnion{
			OfInputItemList: toInputItemList(conversation.items),
		},
		ParallelToolCalls: openai.Bool(true),
		Reasoning: shared.ReasoningParam{
			Effort: reasoningEffort(conversation.ReasoningEffort),
		},
	}

	if len(tools) > 0 {
		params.Tools = make([]responses.ToolUnionParam, 0, len(tools))
		for _, t := range tools {
			params.Tools = append(params.Tools, responses.ToolParamOfFunction(t.Name, t.Parameters, true))
			params.Tools[len(params.Tools)-1].OfFunction.Description = openai.String(t.Description)
		}
	}

	return params
}

func toInputItemList(items []any) responses.ResponseInputParam {
	list := make(responses.ResponseInputParam, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case responses.ResponseInputItemUnionParam:
			list = append(list, v)
		default:
			log.Printf("⚠️  skipping unrecognised conversation item of type %T", item)
		}
	}
	return list
}

func reasoningEffort(mode string) shared.ReasoningEffort {
	switch mode {
	case "low":
		return responses.ReasoningEffortLow
	case "medium":
		return responses.ReasoningEffortMedium
	case "high":
		return responses.ReasoningEffortHigh
	case "xhigh":
		return shared.ReasoningEffort("xhigh")
	case "none", "":
		return shared.ReasoningEffort("none")
	default:
		return responses.ReasoningEffortMedium
	}
}
