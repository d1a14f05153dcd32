//go:build !integration

package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubizz/hubizz/internal/cache"
	"github.com/hubizz/hubizz/internal/config"
	"github.com/hubizz/hubizz/internal/generate"
	"github.com/hubizz/hubizz/internal/media"
	"github.com/hubizz/hubizz/internal/model"
)

func withConfig(t *testing.T, mutate func(c *config.Config)) {
	t.Helper()
	prev := cfg
	c := &config.Config{
		Store:   config.StoreConfig{Driver: "sqlite", DatabaseURL: filepath.Join(t.TempDir(), "hubizz.db")},
		Cache:   config.CacheConfig{Driver: "memory", TTLSecs: 60},
		Dedup:   config.DedupConfig{Threshold: 0.85, ShortCircuit: 0.95, TitleWeight: 0.4, BodyWeight: 0.6},
		Matcher: config.MatcherConfig{MinConfidence: 0.6, MaxResults: 10, JobMinConfidence: 0.7, JobMaxProducts: 5},
		RSS:     config.RSSConfig{MaxItems: 50, MinContentLength: 200, MaxContentLength: 10000, TimeoutSecs: 5},
		Media:   config.MediaConfig{Driver: "local", LocalDir: t.TempDir()},
		AI:      config.AIConfig{Provider: "perplexity", MaxTokens: 100},
		Jobs:    config.JobsConfig{Concurrency: 2, MaxAttempts: 1},
		Server:  config.ServerConfig{Port: 8080},
	}
	if mutate != nil {
		mutate(c)
	}
	cfg = c
	t.Cleanup(func() { cfg = prev })
}

func TestInitEnv_SQLite(t *testing.T) {
	withConfig(t, nil)

	env, err := initEnv(context.Background(), "dedup")
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Store)
	assert.NotNil(t, env.Detector)
	assert.NotNil(t, env.Matcher)
	assert.NotNil(t, env.Products)
	assert.Nil(t, env.Redis)
	_, isMemory := env.Cache.(*cache.Memory)
	assert.True(t, isMemory)
}

func TestInitEnv_ValidationFails(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.Store.Driver = "mysql" })

	_, err := initEnv(context.Background(), "dedup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be postgres or sqlite")
}

func TestInitMatcher_BadRulesFile(t *testing.T) {
	withConfig(t, func(c *config.Config) { c.Matcher.RulesFile = filepath.Join(t.TempDir(), "missing.yaml") })

	_, err := initMatcher(nil)
	assert.Error(t, err)
}

func TestPricingRates_Overrides(t *testing.T) {
	withConfig(t, func(c *config.Config) {
		c.Pricing.Perplexity.Per1KTokens = 0.005
		c.Pricing.Anthropic = map[string]config.ModelPricing{
			"claude-custom": {Input: 1, Output: 2},
		}
	})

	rates := pricingRates()
	assert.InDelta(t, 0.005, rates.Perplexity.Per1KTokens, 1e-12)
	assert.Contains(t, rates.Anthropic, "claude-custom")
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
}

func TestInitGenerator(t *testing.T) {
	withConfig(t, nil)
	_, err := initGenerator()
	assert.Error(t, err)

	withConfig(t, func(c *config.Config) { c.Perplexity.Key = "pplx" })
	gen, err := initGenerator()
	require.NoError(t, err)
	assert.Equal(t, "perplexity", gen.Name())
	_, ok := gen.(*generate.Perplexity)
	assert.True(t, ok)

	withConfig(t, func(c *config.Config) {
		c.AI.Provider = "anthropic"
		c.Anthropic.Key = "sk-test"
	})
	gen, err = initGenerator()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", gen.Name())

	withConfig(t, func(c *config.Config) { c.AI.Provider = "openai" })
	_, err = initGenerator()
	assert.Error(t, err)
}

func TestInitMedia(t *testing.T) {
	withConfig(t, nil)
	ms, err := initMedia(context.Background())
	require.NoError(t, err)
	_, ok := ms.(*media.LocalStore)
	assert.True(t, ok)

	withConfig(t, func(c *config.Config) { c.Media.Driver = "ftp" })
	_, err = initMedia(context.Background())
	assert.Error(t, err)
}

func TestNewPool_WithoutProvider(t *testing.T) {
	withConfig(t, nil)
	env, err := initEnv(context.Background(), "worker")
	require.NoError(t, err)
	defer env.Close()

	pool, err := newPool(context.Background(), env)
	require.NoError(t, err)

	// No handler for generate_article: the job is dead-lettered as a configuration error.
	err = pool.Run(context.Background(), model.Job{Kind: model.JobGenerateArticle, Payload: []byte(`{"topic":"x"}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConfiguration)

	n, err := env.Store.CountDLQ(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
