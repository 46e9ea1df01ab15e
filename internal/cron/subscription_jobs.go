package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/packfinderz-settlement/internal/subscriptions"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
)

const (
	JobRenewals     = "subscription-renewals"
	JobRenewalRetry = "subscription-renewal-retry"
	JobExpirySweep  = "subscription-expiry"
)

type renewalProcessor interface {
	ProcessRenewals(ctx context.Context) (subscriptions.RenewalSummary, error)
	RetryFailedRenewals(ctx context.Context) (subscriptions.RenewalSummary, error)
	ProcessExpired(ctx context.Context) (int, error)
}

// SubscriptionJobsParams configures the three subscription lifecycle jobs.
type SubscriptionJobsParams struct {
	Logger        *logger.Logger
	Subscriptions renewalProcessor
}

// NewSubscriptionJobs returns the daily renewal pass, the retry pass and the expiry sweep,
// in that order.
func NewSubscriptionJobs(params SubscriptionJobsParams) (renewals, retry, expiry Job, err error) {
	if params.Logger == nil {
		return nil, nil, nil, fmt.Errorf("logger required")
	}
	if params.Subscriptions == nil {
		return nil, nil, nil, fmt.Errorf("subscription service required")
	}
	renewals = &renewalJob{name: JobRenewals, logg: params.Logger, run: params.Subscriptions.ProcessRenewals}
	retry = &renewalJob{name: JobRenewalRetry, logg: params.Logger, run: params.Subscriptions.RetryFailedRenewals}
	expiry = &expiryJob{logg: params.Logger, subs: params.Subscriptions}
	return renewals, retry, expiry, nil
}

type renewalJob struct {
	name string
	logg *logger.Logger
	run  func(ctx context.Context) (subscriptions.RenewalSummary, error)
}

func (j *renewalJob) Name() string { return j.name }

func (j *renewalJob) Run(ctx context.Context) error {
	summary, err := j.run(ctx)
	if err != nil {
		return err
	}
	// Individual payment failures are recorded per subscription and do not fail the job.
	if summary.Failed > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"successful": summary.Successful,
			"failed":     summary.Failed,
		})
		j.logg.Warn(logCtx, "some renewals could not be initiated")
	}
	return nil
}

type expiryJob struct {
	logg *logger.Logger
	subs renewalProcessor
}

func (j *expiryJob) Name() string { return JobExpirySweep }

func (j *expiryJob) Run(ctx context.Context) error {
	expired, err := j.subs.ProcessExpired(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep after %d subscriptions: %w", expired, err)
	}
	return nil
}
