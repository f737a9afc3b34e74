package main

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/user/imo-scraper/internal/adapter/chromedp_fetcher"
	"github.com/user/imo-scraper/internal/adapter/filestore"
	"github.com/user/imo-scraper/internal/adapter/httpfetch"
	"github.com/user/imo-scraper/internal/adapter/memory"
	"github.com/user/imo-scraper/internal/adapter/postgres"
	redisadapter "github.com/user/imo-scraper/internal/adapter/redis"
	"github.com/user/imo-scraper/internal/adapter/sqs"
	"github.com/user/imo-scraper/internal/delivery/http/handler"
	"github.com/user/imo-scraper/internal/entity"
	"github.com/user/imo-scraper/internal/fetch"
	"github.com/user/imo-scraper/internal/location"
	"github.com/user/imo-scraper/internal/ratelimit"
	"github.com/user/imo-scraper/internal/repository"
	"github.com/user/imo-scraper/internal/source"
	"github.com/user/imo-scraper/internal/usecase"
	"github.com/user/imo-scraper/pkg/config"
	"github.com/user/imo-scraper/pkg/metrics"
)

// dependencies are the process-wide handles shared by every worker.
type dependencies struct {
	listings repository.ListingRepository
	runs     repository.RunRepository
	seen     repository.SeenIndex
	notifier repository.Notifier
	resolver *location.Resolver
	limiter  *ratelimit.Limiter
	identity *fetch.Identity
	static   *httpfetch.Fetcher
	checks   map[string]handler.PingFunc

	logger  *zap.Logger
	metrics *metrics.Metrics
	closers []func() error
}

func wire(ctx context.Context, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (*dependencies, error) {
	d := &dependencies{
		checks:   make(map[string]handler.PingFunc),
		identity: fetch.NewIdentity(cfg.UserAgents, cfg.Proxies),
		static:   httpfetch.New(),
		logger:   log,
		metrics:  m,
	}
	ok := false
	defer func() {
		if !ok {
			d.close(log)
		}
	}()

	var pool *pgxpool.Pool
	if cfg.DryRun {
		listings := memory.NewListingRepo()
		d.listings, d.runs, d.seen = listings, memory.NewRunRepo(), memory.NewSeenRepo()
	} else {
		var err error
		pool, err = postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		if err := postgres.Migrate(ctx, pool); err != nil {
			return nil, err
		}
		listings := postgres.NewListingRepo(pool)
		d.listings, d.runs, d.seen = listings, postgres.NewRunRepo(pool), postgres.NewSeenRepo(listings)
		d.checks["postgres"] = pool.Ping
	}

	var rdb *goredis.Client
	if cfg.RedisAddr != "" {
		var err error
		rdb, err = redisadapter.NewClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, rdb.Close)
		d.checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		if !cfg.DryRun {
			seen := redisadapter.NewSeenRepo(rdb)
			if err := warmSeen(ctx, seen, d.listings); err != nil {
				log.Warn("seen index warm-up failed", zap.Error(err))
			}
			d.seen = seen
		}
	}

	resolver, err := buildResolver(ctx, cfg, pool, log)
	if err != nil {
		return nil, err
	}
	d.resolver = resolver

	limiterOpts := []ratelimit.Option{ratelimit.WithLogger(log), ratelimit.WithMetrics(m)}
	if rdb != nil {
		limiterOpts = append(limiterOpts, ratelimit.WithStore(redisadapter.NewWindowRepo(rdb)))
	} else {
		windows, err := filestore.NewWindowRepo(cfg.RateWindowDir)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, windows.Close)
		limiterOpts = append(limiterOpts, ratelimit.WithStore(windows))
	}
	d.limiter = ratelimit.New(cfg.RateFor, limiterOpts...)

	d.notifier, err = buildNotifier(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	ok = true
	return d, nil
}

// warmSeen fills an empty Redis seen set from the listings table.
func warmSeen(ctx context.Context, seen *redisadapter.SeenRepoImpl, listings repository.ListingRepository) error {
	for _, src := range entity.AllSources {
		cur, err := seen.Load(ctx, src)
		if err != nil {
			return err
		}
		if len(cur) > 0 {
			continue
		}
		known, err := listings.KnownURLs(ctx, src)
		if err != nil {
			return err
		}
		if err := seen.Warm(ctx, src, known); err != nil {
			return err
		}
	}
	return nil
}

// buildResolver reads the gazetteer from gazetteer_file when set, seeding the
// database tables from it, and from the database otherwise.
func buildResolver(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *zap.Logger) (*location.Resolver, error) {
	var (
		g   *entity.Gazetteer
		err error
	)
	switch {
	case cfg.GazetteerFile != "":
		g, err = filestore.NewGazetteerRepo(cfg.GazetteerFile).Load(ctx)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			if err := postgres.NewGazetteerRepo(pool).Seed(ctx, g); err != nil {
				return nil, fmt.Errorf("seed gazetteer: %w", err)
			}
		}
	case pool != nil:
		g, err = postgres.NewGazetteerRepo(pool).Load(ctx)
		if err != nil {
			return nil, err
		}
	default:
		log.Warn("no gazetteer configured, listings will carry no location")
		return location.NewResolver(&entity.Gazetteer{}, "")
	}
	return location.NewResolver(g, cfg.PrimaryDistrict)
}

func buildNotifier(ctx context.Context, cfg *config.Config, log *zap.Logger) (repository.Notifier, error) {
	if cfg.Notify.SQSQueueURL == "" || cfg.DryRun {
		return sqs.NewLogNotifier(log), nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewNotifier(awssqs.NewFromConfig(awsCfg), cfg.Notify.SQSQueueURL), nil
}

// workerFactory gives every worker its own render router, so a headless
// browser is never shared between sources.
func (d *dependencies) workerFactory(cfg *config.Config, kind entity.ListingKind, ledger *usecase.Ledger) usecase.WorkerFactory {
	upserter := usecase.NewListingUpserter(d.listings, d.resolver, cfg.ImageFilenameBlocklist, d.logger, d.metrics)
	workerCfg := usecase.WorkerConfig{
		Kind:            kind,
		MaxPages:        cfg.MaxPagesPerSource,
		PageTimeout:     cfg.PageTimeout,
		RequestTimeout:  cfg.RequestTimeout,
		RetryBase:       cfg.Retry.BaseDelay,
		RetryAttempts:   cfg.Retry.MaxAttempts,
		NotifyThreshold: cfg.PriceThresholdNotify,
	}

	return func(src entity.Source) (*usecase.Worker, func(), error) {
		adapter, err := source.Lookup(src)
		if err != nil {
			return nil, nil, err
		}
		render := fetch.NewRouter(d.static, chromedp_fetcher.Factory(chromedp_fetcher.Config{
			UserAgent: d.identity.UserAgent(src),
			Proxy:     d.identity.Proxy(),
			Logger:    d.logger.With(zap.String("source", string(src))),
		}))
		throttled := fetch.NewThrottled(fetch.ThrottledConfig{
			Source:         src,
			Next:           render,
			Limiter:        d.limiter,
			Identity:       d.identity,
			AcceptLanguage: cfg.AcceptLanguage,
			Timeout:        cfg.RequestTimeout,
			Logger:         d.logger,
			Metrics:        d.metrics,
		})
		w := usecase.NewWorker(usecase.WorkerDeps{
			Adapter:  adapter,
			Fetcher:  throttled,
			Upserter: upserter,
			Ledger:   ledger,
			Seen:     d.seen,
			Notifier: d.notifier,
			Logger:   d.logger,
			Metrics:  d.metrics,
		}, workerCfg)
		return w, render.Close, nil
	}
}

// close releases handles in reverse order of acquisition.
func (d *dependencies) close(log *zap.Logger) {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			log.Warn("close failed", zap.Error(err))
		}
	}
	d.closers = nil
}
