package source

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"rulehistory/internal/rules"
)

type RetryConfig struct {
	Attempts        int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Retrying retries transient failures with bounded exponential backoff.
// Anything else is returned after the first attempt.
type Retrying struct {
	next Fetcher
	cfg  RetryConfig
	log  zerolog.Logger
}

func NewRetrying(next Fetcher, cfg RetryConfig, log zerolog.Logger) *Retrying {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 10 * time.Second
	}
	return &Retrying{next: next, cfg: cfg, log: log}
}

func (r *Retrying) Documents(ctx context.Context, category string) ([]rules.Document, error) {
	return retry(ctx, r, "category "+category, func() ([]rules.Document, error) {
		return r.next.Documents(ctx, category)
	})
}

func (r *Retrying) FetchVersions(ctx context.Context, doc rules.Document) ([]rules.RawVersion, error) {
	return retry(ctx, r, doc.ID.String(), func() ([]rules.RawVersion, error) {
		return r.next.FetchVersions(ctx, doc)
	})
}

func (r *Retrying) policy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.InitialInterval
	b.MaxInterval = r.cfg.MaxInterval
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.cfg.Attempts-1)), ctx)
}

func retry[T any](ctx context.Context, r *Retrying, what string, fetch func() (T, error)) (T, error) {
	op := func() (T, error) {
		v, err := fetch()
		if err != nil && !IsTransient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("target", what).Dur("wait", wait).Msg("transient fetch failure, retrying")
	}
	return backoff.RetryNotifyWithData(op, r.policy(ctx), notify)
}
