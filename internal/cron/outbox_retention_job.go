package cron

import (
	"context"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/packfinderz-settlement/pkg/errors"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

const (
	JobOutboxRetention = "outbox-retention"

	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultPurgeBatch      = 500
	// Bounds a single run so a large backlog drains over several nights.
	maxPurgeBatches = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPurger interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, deadAttempts, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxPurger
	Retention  time.Duration
	BatchSize  int
	// DeadAttempts matches the publisher's attempt limit; exhausted rows with a DLQ
	// copy are purged alongside published ones.
	DeadAttempts int
	Now          func() time.Time
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	repo         outboxPurger
	retention    time.Duration
	batchSize    int
	deadAttempts int
	now          func() time.Time
}

// NewOutboxRetentionJob purges delivered outbox rows older than the retention window.
func NewOutboxRetentionJob(p OutboxRetentionJobParams) (Job, error) {
	switch {
	case p.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox retention: logger required")
	case p.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox retention: db runner required")
	case p.Repository == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox retention: repository required")
	case p.DeadAttempts <= 0:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox retention: dead attempt threshold required")
	}
	job := &outboxRetentionJob{
		logg:         p.Logger,
		db:           p.DB,
		repo:         p.Repository,
		retention:    p.Retention,
		batchSize:    p.BatchSize,
		deadAttempts: p.DeadAttempts,
		now:          p.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.batchSize <= 0 {
		job.batchSize = defaultPurgeBatch
	}
	if job.now == nil {
		job.now = time.Now
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return JobOutboxRetention }

// Run deletes in batches, one transaction each, until a short batch comes back.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches := 0
	for ; batches < maxPurgeBatches; batches++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		var deleted int64
		err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
			n, err := j.repo.PurgeBefore(ctx, tx, cutoff, j.deadAttempts, j.batchSize)
			deleted = n
			return err
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge outbox events")
		}
		total += deleted
		if deleted < int64(j.batchSize) {
			batches++
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
		"batches":      batches,
	}), "outbox retention pass finished")
	return nil
}
