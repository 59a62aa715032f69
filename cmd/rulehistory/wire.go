package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"rulehistory/internal/app"
	"rulehistory/internal/archive"
	"rulehistory/internal/config"
	"rulehistory/internal/export"
	"rulehistory/internal/gitrepo"
	"rulehistory/internal/logger"
	"rulehistory/internal/message"
	"rulehistory/internal/metrics"
	"rulehistory/internal/notify"
	"rulehistory/internal/search"
	"rulehistory/internal/source"
	"rulehistory/internal/store"
	"rulehistory/internal/timeline"
)

// runtime owns every collaborator a command may need and closes them in
// reverse order of creation.
type runtime struct {
	cfg     *config.Config
	log     zerolog.Logger
	source  *source.DirSource
	engine  *app.Service
	runs    *store.PostgresStore
	search  *search.Service
	export  *export.Service
	closers []func()
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		if err := os.Setenv("CONFIG_PATH", path); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

// newRuntime wires the engine. Optional backends are only connected when
// configured; a backend that is configured but unreachable is an error.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	log := logger.Init(logger.Config{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})
	rt := &runtime{cfg: cfg, log: log}

	layout, err := timeline.ParseLayout(cfg.Repo.Layout)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Repo.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create repos dir: %w", err)
	}

	rt.source = source.NewDirSource(cfg.Source.Dir)
	fetcher := source.NewRetrying(rt.source, source.RetryConfig{
		Attempts:        cfg.Fetch.Attempts,
		InitialInterval: cfg.Fetch.InitialInterval,
		MaxInterval:     cfg.Fetch.MaxInterval,
	}, logger.Component(log, "source"))

	builder, err := rt.messageBuilder(log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	sinks, err := rt.sinks(ctx, log)
	if err != nil {
		rt.Close()
		return nil, err
	}

	repos := gitrepo.New(cfg.Repo.Dir, gitrepo.Identity{Name: cfg.Repo.AuthorName, Email: cfg.Repo.AuthorEmail})
	rt.engine = app.New(app.Options{
		Layout:        layout,
		CombinedName:  cfg.Repo.CombinedName,
		Concurrency:   cfg.Fetch.Concurrency,
		CategoryNames: cfg.Categories.Names,
	}, fetcher, rt.source, repos, builder, sinks, log)
	rt.export = export.NewService(cfg.Export.PandocPath, log)
	return rt, nil
}

func (rt *runtime) messageBuilder(log zerolog.Logger) (*message.Builder, error) {
	cfg := rt.cfg
	var opts []message.Option
	if cfg.Source.MinutesDir != "" {
		opts = append(opts, message.WithMinutes(source.NewMinutesDir(cfg.Source.MinutesDir)))
	}
	if cfg.Message.Summarize && cfg.Anthropic.APIKey != "" {
		opts = append(opts, message.WithSummarizer(message.NewAnthropicSummarizer(message.AnthropicConfig{
			APIKey:      cfg.Anthropic.APIKey,
			Model:       cfg.Anthropic.Model,
			MaxTokens:   cfg.Anthropic.MaxTokens,
			Temperature: cfg.Anthropic.Temperature,
		})))
		if strings.TrimSpace(cfg.Redis.URL) != "" {
			cache, err := message.NewRedisCache(cfg.Redis.URL, cfg.Message.CacheTTL)
			if err != nil {
				return nil, err
			}
			rt.closers = append(rt.closers, func() { _ = cache.Close() })
			opts = append(opts, message.WithCache(cache))
		} else {
			log.Warn().Msg("summarizer enabled without redis cache: rebuilds may not reproduce commit hashes")
		}
	}
	return message.New(logger.Component(log, "message"), opts...), nil
}

func (rt *runtime) sinks(ctx context.Context, log zerolog.Logger) (app.Sinks, error) {
	cfg := rt.cfg
	var sinks app.Sinks

	var db *sql.DB
	if strings.TrimSpace(cfg.Database.URL) != "" {
		var err error
		db, err = store.Open(ctx, cfg.Database.URL, logger.Component(log, "store"))
		if err != nil {
			return sinks, fmt.Errorf("database connection failed: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = db.Close() })
		if _, err := store.ApplyMigrations(ctx, db, cfg.Database.MigrationsDir, logger.Component(log, "store")); err != nil {
			return sinks, fmt.Errorf("migrations failed: %w", err)
		}
		rt.runs = store.NewPostgresStore(db)
		sinks.Runs = rt.runs
	}

	var meili *search.Meili
	if strings.TrimSpace(cfg.Meili.URL) != "" {
		meili = search.NewMeili(cfg.Meili.URL, cfg.Meili.MasterKey, log)
	}
	var pgfts *search.PgFTS
	if db != nil {
		pgfts = search.NewPgFTS(db)
	}
	if meili != nil || pgfts != nil {
		rt.search = search.NewService(meili, pgfts, log)
		rt.closers = append(rt.closers, rt.search.Close)
		sinks.Index = rt.search
	}

	if cfg.MinIO.Enabled() {
		a, err := archive.New(archive.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return sinks, fmt.Errorf("minio client: %w", err)
		}
		sinks.Archive = a
	}

	if cfg.SMTP.Enabled() {
		sinks.Notifier = notify.NewService(notify.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			To:       cfg.SMTP.Recipients(),
		})
	}

	if cfg.Metrics.TextfilePath != "" {
		sinks.Metrics = metrics.New()
		sinks.MetricsTextfile = cfg.Metrics.TextfilePath
	}
	return sinks, nil
}

// categories resolves --categories, then the configured default, then every
// category the source knows.
func (rt *runtime) categories(flag []string) ([]string, error) {
	var out []string
	for _, raw := range flag {
		out = append(out, config.SplitList(raw)...)
	}
	if len(out) > 0 {
		return out, nil
	}
	if def := rt.cfg.Categories.DefaultList(); len(def) > 0 {
		return def, nil
	}
	return rt.source.Categories()
}
