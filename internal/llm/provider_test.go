package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider is a test implementation of the Provider interface.
type MockProvider struct {
	name                    string
	startFunc               func(ctx context.Context, request *Request) (*Conversation, *Turn, error)
	continueFunc            func(ctx context.Context, conversation *Conversation, results []ToolResult) (*Turn, error)
	continueWithMessageFunc func(ctx context.Context, conversation *Conversation, message string) (*Turn, error)
}

func (m *MockProvider) Name() string { return m.name }

func (m *MockProvider) Start(ctx context.Context, request *Request) (*Conversation, *Turn, error) {
	if m.startFunc != nil {
		return m.startFunc(ctx, request)
	}
	return &Conversation{Model: request.Model}, &Turn{}, nil
}

func (m *MockProvider) Continue(ctx context.Context, conversation *Conversation, results []ToolResult) (*Turn, error) {
	if m.continueFunc != nil {
		return m.continueFunc(ctx, conversation, results)
	}
	return &Turn{}, nil
}

func (m *MockProvider) ContinueWithMessage(ctx context.Context, conversation *Conversation, message string) (*Turn, error) {
	if m.continueWithMessageFunc != nil {
		return m.continueWithMessageFunc(ctx, conversation, message)
	}
	return &Turn{}, nil
}

func TestProviderInterface(t *testing.T) {
	mock := &MockProvider{name: "mock"}
	assert.Equal(t, "mock", mock.Name())
}

func TestRequestCarriesToolSpecs(t *testing.T) {
	req := &Request{
		Model:           "gpt-4o-mini",
		ReasoningEffort: "medium",
		SystemPrompt:    "you are a radio music director",
		UserPrompt:      "select tracks for the morning daypart",
		Tools: []ToolSpec{
			{Name: "search_tracks", Description: "keyword/filter search"},
			{Name: "get_australian_tracks", Description: "country-filtered listing"},
		},
	}

	assert.Equal(t, "gpt-4o-mini", req.Model)
	assert.Len(t, req.Tools, 2)
	assert.Equal(t, "search_tracks", req.Tools[0].Name)
}

func TestMockProviderStartReturnsToolCalls(t *testing.T) {
	callCount := 0
	mock := &MockProvider{
		name: "test",
		startFunc: func(_ context.Context, request *Request) (*Conversation, *Turn, error) {
			callCount++
			require.Equal(t, "gpt-4o-mini", request.Model)
			return &Conversation{Model: request.Model}, &Turn{
				ToolCalls: []ToolCall{{ID: "call_1", Name: "get_available_genres", Arguments: "{}"}},
				Usage:     Usage{InputTokens: 120, OutputTokens: 12},
			}, nil
		},
	}

	conversation, turn, err := mock.Start(context.Background(), &Request{Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.Equal(t, 1, callCount)
	assert.Equal(t, "gpt-4o-mini", conversation.Model)
	require.Len(t, turn.ToolCalls, 1)
	assert.Equal(t, "get_available_genres", turn.ToolCalls[0].Name)
	assert.Empty(t, turn.OutputText)
}

func TestMockProviderContinueAppliesToolResults(t *testing.T) {
	mock := &MockProvider{
		name: "test",
		continueFunc: func(_ context.Context, _ *Conversation, results []ToolResult) (*Turn, error) {
			require.Len(t, results, 1)
			require.Equal(t, "call_1", results[0].CallID)
			return &Turn{OutputText: `[{"track_id":"t1","title":"Song","artist":"Artist","reason":"fits the criteria and then some"}]`}, nil
		},
	}

	turn, err := mock.Continue(context.Background(), &Conversation{Model: "gpt-4o-mini"}, []ToolResult{
		{CallID: "call_1", Output: `{"genres":{"Rock":10}}`},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, turn.OutputText)
	assert.Empty(t, turn.ToolCalls)
}
