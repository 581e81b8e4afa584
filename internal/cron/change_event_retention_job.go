package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/afonso-rickman/newdelivery/pkg/logger"
	"github.com/afonso-rickman/newdelivery/pkg/metrics"
)

const (
	changeEventRetentionJobName = "change-event-retention"
	defaultEventsRetention      = 7 * 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type changeEventRetentionRepo interface {
	DeleteStaleBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type ChangeEventRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository changeEventRetentionRepo
	Metrics    *metrics.CronJobMetrics
	Retention  time.Duration
}

// NewChangeEventRetentionJob prunes order change events older than the
// retention window.
func NewChangeEventRetentionJob(params ChangeEventRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("change event repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultEventsRetention
	}
	return &changeEventRetentionJob{
		logg:      params.Logger,
		db:        params.DB,
		repo:      params.Repository,
		metrics:   params.Metrics,
		retention: retention,
		now:       time.Now,
	}, nil
}

type changeEventRetentionJob struct {
	logg      *logger.Logger
	db        txRunner
	repo      changeEventRetentionRepo
	metrics   *metrics.CronJobMetrics
	retention time.Duration
	now       func() time.Time
}

func (j *changeEventRetentionJob) Name() string { return changeEventRetentionJobName }

func (j *changeEventRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.repo.DeleteStaleBefore(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("change event retention: %w", err)
	}
	j.metrics.AddAffected(j.Name(), deleted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"retention":    j.retention.String(),
		"rows_deleted": deleted,
	})
	j.logg.Info(logCtx, "change event retention cleanup complete")
	return nil
}
