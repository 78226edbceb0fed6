package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

const donationSyncJobName = "donation_history_sync"

type batchSyncer interface {
	SyncBatch(ctx context.Context, req donations.BatchRequest) (*donations.BatchResult, error)
}

// DonationSyncJobParams configures the scheduled donor sync.
type DonationSyncJobParams struct {
	Logger *logger.Logger
	Syncer batchSyncer
	Modes  []enums.StripeMode
}

// NewDonationSyncJob builds the job that batch-syncs every known donor for
// each configured mode.
func NewDonationSyncJob(params DonationSyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("batch syncer required")
	}
	if len(params.Modes) == 0 {
		return nil, fmt.Errorf("at least one stripe mode required")
	}
	for _, mode := range params.Modes {
		if !mode.IsValid() {
			return nil, fmt.Errorf("invalid stripe mode %q", mode)
		}
	}
	return &donationSyncJob{logg: params.Logger, syncer: params.Syncer, modes: params.Modes}, nil
}

type donationSyncJob struct {
	logg   *logger.Logger
	syncer batchSyncer
	modes  []enums.StripeMode
}

func (j *donationSyncJob) Name() string { return donationSyncJobName }

func (j *donationSyncJob) Run(ctx context.Context) error {
	var errs error
	for _, mode := range j.modes {
		res, err := j.syncer.SyncBatch(ctx, donations.BatchRequest{Mode: mode})
		if res != nil {
			j.logg.Info(j.logg.WithFields(ctx, map[string]any{
				"stripe_mode":  mode.String(),
				"donors":       len(res.Users),
				"failed":       res.Failed,
				"transactions": res.TransactionsSynced,
			}), "scheduled donation sync finished")
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", mode, err))
		}
	}
	return errs
}
