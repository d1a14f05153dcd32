package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hubizz/hubizz/internal/affiliate"
	"github.com/hubizz/hubizz/internal/cache"
	"github.com/hubizz/hubizz/internal/catalog"
	"github.com/hubizz/hubizz/internal/cost"
	"github.com/hubizz/hubizz/internal/dedup"
	"github.com/hubizz/hubizz/internal/feed"
	"github.com/hubizz/hubizz/internal/fetcher"
	"github.com/hubizz/hubizz/internal/generate"
	"github.com/hubizz/hubizz/internal/importer"
	"github.com/hubizz/hubizz/internal/jobs"
	"github.com/hubizz/hubizz/internal/media"
	"github.com/hubizz/hubizz/internal/model"
	"github.com/hubizz/hubizz/internal/monitoring"
	"github.com/hubizz/hubizz/internal/store"
	"github.com/hubizz/hubizz/pkg/anthropic"
	"github.com/hubizz/hubizz/pkg/perplexity"
)

const memoryCacheNamespaces = 10000

// appEnv holds the clients shared by the commands. Callers defer Close.
type appEnv struct {
	Store    store.Store
	Cache    cache.Cache
	Redis    *redis.Client // nil unless cache.driver is redis
	HTTP     *fetcher.HTTPFetcher
	Detector *dedup.Detector
	Matcher  *affiliate.Matcher
	Products *affiliate.Service
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Cache != nil {
		_ = e.Cache.Close()
	} else if e.Redis != nil {
		_ = e.Redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv validates the configuration for mode and builds the store, cache,
// duplicate detector, and product matcher.
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st}

	env.Cache, env.Redis, err = initCache(ctx)
	if err != nil {
		env.Close()
		return nil, err
	}

	env.HTTP = fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.RSS.UserAgent,
		Timeout:   time.Duration(cfg.RSS.TimeoutSecs) * time.Second,
	})

	env.Detector = dedup.New(st, st, dedup.Config{
		WindowDays:      cfg.Dedup.WindowDays,
		SampleSize:      cfg.Dedup.SampleSize,
		Threshold:       cfg.Dedup.Threshold,
		ShortCircuit:    cfg.Dedup.ShortCircuit,
		TitleWeight:     cfg.Dedup.TitleWeight,
		BodyWeight:      cfg.Dedup.BodyWeight,
		MaxCompareRunes: cfg.Dedup.MaxCompareRunes,
	})

	env.Matcher, err = initMatcher(st)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Products = affiliate.NewService(env.Matcher, st, env.Cache)

	return env, nil
}

// initStore opens the configured store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == "sqlite" && dsn == "" {
		dsn = "hubizz.db"
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, nil)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func initCache(ctx context.Context) (cache.Cache, *redis.Client, error) {
	ttl := cfg.Cache.TTL()
	if cfg.Cache.Driver != "redis" {
		return cache.NewMemory(memoryCacheNamespaces, ttl), nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Cache.RedisAddr,
		Password: cfg.Cache.RedisPassword,
		DB:       cfg.Cache.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, eris.Wrapf(err, "ping redis %s", cfg.Cache.RedisAddr)
	}
	zap.L().Info("redis cache enabled", zap.String("addr", cfg.Cache.RedisAddr))
	return cache.NewRedisWithClient(client, "hubizz:", ttl), client, nil
}

func initMatcher(catalogSrc affiliate.CatalogSource) (*affiliate.Matcher, error) {
	var (
		rules *affiliate.Rules
		err   error
	)
	if cfg.Matcher.RulesFile != "" {
		rules, err = affiliate.LoadRules(cfg.Matcher.RulesFile)
	} else {
		rules, err = affiliate.DefaultRules()
	}
	if err != nil {
		return nil, err
	}
	return affiliate.NewMatcher(rules,
		affiliate.WithCatalog(catalogSrc),
		affiliate.WithDefaults(cfg.Matcher.MinConfidence, cfg.Matcher.MaxResults),
	), nil
}

func pricingRates() cost.Rates {
	rates := cost.DefaultRates()
	if cfg.Pricing.Perplexity.Per1KTokens > 0 {
		rates.Perplexity.Per1KTokens = cfg.Pricing.Perplexity.Per1KTokens
	}
	for name, p := range cfg.Pricing.Anthropic {
		rates.Anthropic[name] = cost.ModelRate{
			Input:         p.Input,
			Output:        p.Output,
			CacheWriteMul: p.CacheWriteMul,
			CacheReadMul:  p.CacheReadMul,
		}
	}
	return rates
}

// initGenerator builds the configured AI provider.
func initGenerator() (generate.Generator, error) {
	calc := cost.NewCalculator(pricingRates())
	pcfg := generate.ProviderConfig{
		Defaults: generate.Options{
			MaxTokens:   cfg.AI.MaxTokens,
			Temperature: cfg.AI.Temperature,
			TopP:        cfg.AI.TopP,
		},
		RequestsPerSecond: cfg.AI.RequestsPerSecond,
		Burst:             cfg.AI.Burst,
	}

	switch cfg.AI.Provider {
	case "perplexity", "":
		if cfg.Perplexity.Key == "" {
			return nil, eris.New("perplexity key is required (HUBIZZ_PERPLEXITY_KEY)")
		}
		pcfg.Defaults.Model = cfg.Perplexity.Model
		client := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
			perplexity.WithMaxAttempts(1),
		)
		return generate.NewPerplexity(client, calc, pcfg), nil
	case "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("anthropic key is required (HUBIZZ_ANTHROPIC_KEY)")
		}
		pcfg.Defaults.Model = cfg.Anthropic.Model
		return generate.NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), calc, pcfg), nil
	default:
		return nil, eris.Errorf("unsupported ai provider: %s", cfg.AI.Provider)
	}
}

func initMedia(ctx context.Context) (media.Store, error) {
	switch cfg.Media.Driver {
	case "s3":
		return media.NewS3Store(ctx, media.S3Config{
			Bucket: cfg.Media.S3Bucket,
			Region: cfg.Media.S3Region,
			Prefix: cfg.Media.S3Prefix,
		})
	case "local", "":
		return media.NewLocalStore(cfg.Media.LocalDir)
	default:
		return nil, eris.Errorf("unsupported media driver: %s", cfg.Media.Driver)
	}
}

func newAggregator(env *appEnv) *feed.Aggregator {
	return feed.NewAggregator(env.HTTP, feed.Options{
		MaxItems:         cfg.RSS.MaxItems,
		MinContentLength: cfg.RSS.MinContentLength,
		MaxContentLength: cfg.RSS.MaxContentLength,
		RequireImage:     cfg.RSS.SkipIfNoImage,
	})
}

// initImporter builds the feed importer, adding the AI rewriter and the image
// mirror when they are switched on.
func initImporter(ctx context.Context, env *appEnv) (*importer.Importer, error) {
	opts := importer.Options{
		RewriteContent: cfg.RSS.RewriteContent,
		AutoPublish:    cfg.RSS.AutoPublish,
		DownloadImages: cfg.RSS.DownloadImages,
	}
	var options []importer.Option

	if opts.RewriteContent {
		gen, err := initGenerator()
		if err != nil {
			return nil, err
		}
		options = append(options, importer.WithRewriter(generate.NewWriter(gen, env.Store)))
	}
	if opts.DownloadImages {
		ms, err := initMedia(ctx)
		if err != nil {
			return nil, err
		}
		options = append(options, importer.WithImages(media.NewMirror(env.HTTP, ms)))
	}

	return importer.New(env.Store, newAggregator(env), env.Detector, opts, options...), nil
}

func newCatalogLoader(env *appEnv) *catalog.Loader {
	ftp := fetcher.NewFTPFetcher(fetcher.FTPOptions{})
	return catalog.NewLoader(fetcher.NewOpener(env.HTTP, ftp), env.Store)
}

// newPool builds the job pool with every handler registered. The article
// handler is skipped when no AI provider is configured.
func newCollector(env *appEnv) *monitoring.Collector {
	return monitoring.NewCollector(env.Store, cfg.Monitoring.FeedFailThreshold)
}

func newPool(ctx context.Context, env *appEnv) (*jobs.Pool, error) {
	pool := jobs.NewPool(env.Store, jobs.PoolConfig{
		Concurrency: cfg.Jobs.Concurrency,
		MaxAttempts: cfg.Jobs.MaxAttempts,
		QueueSize:   cfg.Jobs.QueueSize,
	})

	imp, err := initImporter(ctx, env)
	if err != nil {
		return nil, err
	}
	pool.Register(model.JobImportFeed, jobs.ImportFeed(env.Store, imp, pool))
	pool.Register(model.JobProcessProducts, jobs.ProcessProducts(env.Products, env.Store,
		cfg.Matcher.JobMinConfidence, cfg.Matcher.JobMaxProducts))

	gen, err := initGenerator()
	if err != nil {
		zap.L().Warn("ai provider not configured, generate_article jobs disabled", zap.Error(err))
		return pool, nil
	}
	svc := generate.NewService(gen, env.Store, env.Detector)
	pool.Register(model.JobGenerateArticle, jobs.GenerateArticle(svc, pool))
	return pool, nil
}
