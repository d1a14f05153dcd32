package generate

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/cost"
	"github.com/hubizz/hubizz/pkg/perplexity"
)

// Perplexity generates text with the Perplexity chat API.
type Perplexity struct {
	client   perplexity.Client
	calc     *cost.Calculator
	defaults Options
	guard    guard
}

// NewPerplexity creates the Perplexity adapter. The client should not retry
// on its own; the adapter owns the retry policy.
func NewPerplexity(client perplexity.Client, calc *cost.Calculator, cfg ProviderConfig) *Perplexity {
	return &Perplexity{
		client:   client,
		calc:     calc,
		defaults: cfg.Defaults.withDefaults(DefaultOptions()),
		guard:    newGuard("perplexity", cfg),
	}
}

// Name implements Generator.
func (p *Perplexity) Name() string { return "perplexity" }

// Generate implements Generator. Cost is the total token count priced per thousand.
func (p *Perplexity) Generate(ctx context.Context, prompt string, opts Options) (*Result, error) {
	if err := validatePrompt(prompt); err != nil {
		return nil, err
	}
	opts = opts.withDefaults(p.defaults)

	req := perplexity.ChatCompletionRequest{
		Model: opts.Model,
		Messages: []perplexity.Message{
			{Role: "system", Content: opts.SystemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   &opts.MaxTokens,
		Temperature: &opts.Temperature,
		TopP:        &opts.TopP,
	}

	res, err := p.guard.run(ctx, func(ctx context.Context) (*Result, error) {
		resp, err := p.client.ChatCompletion(ctx, req)
		if err != nil {
			var se *perplexity.StatusError
			if errors.As(err, &se) {
				return nil, classifyStatus(err, se.StatusCode)
			}
			return nil, err
		}
		tokens := resp.Usage.Total()
		out := &Result{
			Text:       resp.Content(),
			TokensUsed: tokens,
			Cost:       p.calc.Perplexity(tokens),
			Model:      resp.Model,
		}
		if out.Model == "" {
			out.Model = opts.Model
		}
		return out, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "generate: perplexity")
	}

	zap.L().Info("generate: content generated",
		zap.String("provider", p.Name()),
		zap.String("model", res.Model),
		zap.Int("prompt_length", len(prompt)),
		zap.Int("tokens_used", res.TokensUsed),
		zap.Float64("cost", res.Cost),
	)
	return res, nil
}
