package generate

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/cost"
	"github.com/hubizz/hubizz/pkg/anthropic"
)

// DefaultAnthropicModel is used when no model is configured.
const DefaultAnthropicModel = "claude-sonnet-4-5-20250929"

// Anthropic generates text with Claude.
type Anthropic struct {
	client   anthropic.Client
	calc     *cost.Calculator
	defaults Options
	guard    guard
}

// NewAnthropic creates the Claude adapter.
func NewAnthropic(client anthropic.Client, calc *cost.Calculator, cfg ProviderConfig) *Anthropic {
	def := DefaultOptions()
	def.Model = DefaultAnthropicModel
	return &Anthropic{
		client:   client,
		calc:     calc,
		defaults: cfg.Defaults.withDefaults(def),
		guard:    newGuard("anthropic", cfg),
	}
}

// Name implements Generator.
func (a *Anthropic) Name() string { return "anthropic" }

// Generate implements Generator. The system prompt is sent as a cached block.
func (a *Anthropic) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	opts = opts.withDefaults(a.defaults)

	req := anthropic.MessageRequest{
		Model:          opts.Model,
		MaxTokens:      int64(opts.MaxTokens),
		System:         opts.SystemPrompt,
		SystemCacheTTL: "5m",
		Messages:       []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature:    &opts.Temperature,
	}

	res, err := a.guard.run(ctx, func(ctx context.Context) (*Result, error) {
		resp, err := a.client.CreateMessage(ctx, req)
		if err != nil {
			if status := anthropic.StatusCode(err); status != 0 {
				return nil, classifyStatus(err, status)
			}
			return nil, err
		}
		u := resp.Usage
		out := &Result{
			Text:       resp.Text,
			TokensUsed: int(u.Total()),
			Cost: a.calc.Claude(opts.Model, int(u.InputTokens), int(u.OutputTokens),
				int(u.CacheCreationInputTokens), int(u.CacheReadInputTokens)),
			Model: resp.Model,
		}
		if out.Model == "" {
			out.Model = opts.Model
		}
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "generate: anthropic")
	}

	zap.L().Info("generate: content generated",
		zap.String("provider", a.Name()),
		zap.String("model", res.Model),
		zap.Int("tokens_used", res.TokensUsed),
		zap.Float64("cost", res.Cost),
	)
	return res, nil
}
