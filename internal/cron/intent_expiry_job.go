package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/creatorpage-backend/pkg/db/models"
	"github.com/angelmondragon/creatorpage-backend/pkg/logger"
)

type expirableReader interface {
	ListExpirable(ctx context.Context, now time.Time, resumedGrace time.Duration, limit int) ([]models.Intent, error)
}

type intentExpirer interface {
	Expire(ctx context.Context, intent *models.Intent) (bool, error)
}

type IntentExpiryJobParams struct {
	Logger       *logger.Logger
	Reader       expirableReader
	Expirer      intentExpirer
	ResumedGrace time.Duration
	BatchSize    int
}

// NewIntentExpiryJob expires pending intents past their TTL and resumed
// intents that never completed within the grace window.
func NewIntentExpiryJob(params IntentExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reader == nil {
		return nil, fmt.Errorf("intent reader required")
	}
	if params.Expirer == nil {
		return nil, fmt.Errorf("intent expirer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = 100
	}
	return &intentExpiryJob{
		logg:    params.Logger,
		reader:  params.Reader,
		expirer: params.Expirer,
		grace:   params.ResumedGrace,
		batch:   batch,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

type intentExpiryJob struct {
	logg    *logger.Logger
	reader  expirableReader
	expirer intentExpirer
	grace   time.Duration
	batch   int
	now     func() time.Time
}

func (j *intentExpiryJob) Name() string { return "intent-expiry" }

func (j *intentExpiryJob) Run(ctx context.Context) error {
	rows, err := j.reader.ListExpirable(ctx, j.now(), j.grace, j.batch)
	if err != nil {
		return fmt.Errorf("list expirable intents: %w", err)
	}
	var (
		errs    error
		expired int
	)
	for i := range rows {
		ok, err := j.expirer.Expire(ctx, &rows[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire intent %s: %w", rows[i].ID, err))
			continue
		}
		if ok {
			expired++
		}
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"candidates": len(rows),
		"expired":    expired,
	}), "intent expiry sweep complete")
	return errs
}
