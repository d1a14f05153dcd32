package generate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/cost"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/resilience"
	"github.com/hubizz/hubizz/pkg/perplexity"
	"github.com/hubizz/hubizz/pkg/perplexity/mocks"
)

func fastProviderConfig() ProviderConfig {
	return ProviderConfig{
		Retry: resilience.RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func chatResponse(text string, tokens int) *perplexity.ChatCompletionResponse {
	return &perplexity.ChatCompletionResponse{
		Model:   "sonar",
		Choices: []perplexity.Choice{{Message: perplexity.Message{Role: "assistant", Content: text}}},
		Usage:   perplexity.Usage{TotalTokens: tokens},
	}
}

func TestPerplexity_Generate(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r perplexity.ChatCompletionRequest) bool {
		return len(r.Messages) == 2 &&
			r.Messages[0].Role == "system" && r.Messages[0].Content == DefaultSystemPrompt &&
			r.Messages[1].Role == "user" && r.Messages[1].Content == "Write about tides" &&
			*r.MaxTokens == 4000 && *r.Temperature == 0.7 && *r.TopP == 0.9
	})).Return(chatResponse("Tides follow the moon.", 2500), nil).Once()

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	res, err := p.Generate(context.Background(), "Write about tides", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Tides follow the moon.", res.Text)
	assert.Equal(t, 2500, res.TokensUsed)
	assert.InDelta(t, 0.0025, res.Cost, 1e-9)
	assert.Equal(t, "sonar", res.Model)
	assert.Equal(t, "perplexity", p.Name())
}

func TestPerplexity_Generate_OptionsOverride(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.MatchedBy(func(r perplexity.ChatCompletionRequest) bool {
		return r.Model == "sonar-pro" && *r.MaxTokens == 60 && r.Messages[0].Content == "Be brief."
	})).Return(&perplexity.ChatCompletionResponse{
		Choices: []perplexity.Choice{{Message: perplexity.Message{Content: "ok"}}},
		Usage:   perplexity.Usage{PromptTokens: 10, CompletionTokens: 5},
	}, nil).Once()

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	res, err := p.Generate(context.Background(), "meta please", Options{Model: "sonar-pro", MaxTokens: 60, SystemPrompt: "Be brief."})
	require.NoError(t, err)
	assert.Equal(t, 15, res.TokensUsed)
	assert.Equal(t, "sonar-pro", res.Model)
}

func TestPerplexity_Generate_RetriesTransient(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: 429, Body: "slow down"}).Once()
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(chatResponse("second time lucky", 10), nil).Once()

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	res, err := p.Generate(context.Background(), "prompt", Options{})
	require.NoError(t, err)
	assert.Equal(t, "second time lucky", res.Text)
}

func TestPerplexity_Generate_Unauthorized(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: 401, Body: "bad key"}).Once()

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	_, err := p.Generate(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConfiguration))
	assert.True(t, resilience.IsPermanent(err))
}

func TestPerplexity_Generate_BadRequest(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: 400, Body: "bad model"}).Once()

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	_, err := p.Generate(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
}

func TestPerplexity_Generate_ExhaustsRetries(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: 503, Body: "down"}).Times(3)

	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())
	_, err := p.Generate(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
}

func TestPerplexity_Generate_CircuitOpens(t *testing.T) {
	client := mocks.NewMockClient(t)
	client.On("ChatCompletion", mock.Anything, mock.Anything).
		Return(nil, &perplexity.StatusError{StatusCode: 500, Body: "boom"}).Times(2)

	cfg := fastProviderConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = resilience.CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour}
	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), cfg)

	for range 2 {
		_, err := p.Generate(context.Background(), "prompt", Options{})
		require.Error(t, err)
	}
	_, err := p.Generate(context.Background(), "prompt", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resilience.ErrCircuitOpen))
}

func TestPerplexity_Generate_EmptyPrompt(t *testing.T) {
	client := mocks.NewMockClient(t)
	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), fastProviderConfig())

	_, err := p.Generate(context.Background(), "   ", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidInput))
	client.AssertNotCalled(t, "ChatCompletion", mock.Anything, mock.Anything)
}

func TestPerplexity_Generate_RateLimited(t *testing.T) {
	client := mocks.NewMockClient(t)
	cfg := fastProviderConfig()
	cfg.RequestsPerSecond = 0.001
	cfg.Burst = 1
	client.On("ChatCompletion", mock.Anything, mock.Anything).Return(chatResponse("first", 1), nil).Once()
	p := NewPerplexity(client, cost.NewCalculator(cost.DefaultRates()), cfg)

	_, err := p.Generate(context.Background(), "prompt", Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Generate(ctx, "prompt", Options{})
	require.Error(t, err)
}

func TestOptions_WithDefaults(t *testing.T) {
	got := Options{MaxTokens: 60}.withDefaults(DefaultOptions())
	assert.Equal(t, 60, got.MaxTokens)
	assert.InDelta(t, 0.7, got.Temperature, 1e-9)
	assert.InDelta(t, 0.9, got.TopP, 1e-9)
	assert.Equal(t, DefaultSystemPrompt, got.SystemPrompt)
}

func TestClassifyStatus(t *testing.T) {
	base := errors.New("upstream")
	assert.True(t, errors.Is(classifyStatus(base, 403), model.ErrConfiguration))
	assert.True(t, resilience.IsTransient(classifyStatus(base, 408)))
	assert.True(t, resilience.IsTransient(classifyStatus(base, 502)))
	assert.True(t, errors.Is(classifyStatus(base, 422), model.ErrInvalidInput))
	assert.Equal(t, base, classifyStatus(base, 302))
}
