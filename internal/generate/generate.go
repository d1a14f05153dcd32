// Package generate produces articles, rewrites, and metadata through an AI
// provider behind the Generator interface.
package generate

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/hubizz/hubizz/internal/model"
)

// DefaultSystemPrompt frames every completion.
const DefaultSystemPrompt = "You are a professional content writer creating engaging, viral-worthy content. " +
	"Write in a clear, compelling style that captures attention."

// Options tune one completion. Zero fields fall back to the provider defaults.
type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	TopP         float64
	SystemPrompt string
}

// DefaultOptions returns the sampling defaults.
func DefaultOptions() Options {
	return Options{
		MaxTokens:    4000,
		Temperature:  0.7,
		TopP:         0.9,
		SystemPrompt: DefaultSystemPrompt,
	}
}

// withDefaults fills the zero fields of o from def.
func (o Options) withDefaults(def Options) Options {
	if o.Model == "" {
		o.Model = def.Model
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = def.MaxTokens
	}
	if o.Temperature <= 0 {
		o.Temperature = def.Temperature
	}
	if o.TopP <= 0 {
		o.TopP = def.TopP
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = def.SystemPrompt
	}
	return o
}

// Result is the output of one completion.
type Result struct {
	Text       string  `json:"text"`
	TokensUsed int     `json:"tokens_used"`
	Cost       float64 `json:"cost"`
	Model      string  `json:"model"`
}

// Generator is an AI text provider.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts Options) (*Result, error)
	// Name identifies the provider in usage records.
	Name() string
}

func validatePrompt(prompt string) error {
	if strings.TrimSpace(prompt) == "" {
		return model.Wrap(model.ErrInvalidInput, eris.New("generate: empty prompt"))
	}
	return nil
}
