package garage

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/iliyamo/garage-parking/internal/config"
	"github.com/iliyamo/garage-parking/internal/logging"
)

// Fetcher downloads a catalog.
type Fetcher interface {
	FetchGarage(ctx context.Context) (*Catalog, error)
}

// Bootstrap fetches the catalog with exponential backoff and syncs it.
// The caller decides whether a failure is fatal; the server treats it as
// a warning and keeps serving with whatever catalog the store holds.
func Bootstrap(ctx context.Context, fetcher Fetcher, sync *Synchronizer, cfg config.GarageConfig) (SyncStats, error) {
	bo := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		bo.InitialInterval = cfg.InitialInterval
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(cfg.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			logging.Warn(ctx).Err(err).Dur("retry_in", next).Msg("garage.fetch_retry")
		}),
	}
	if cfg.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.MaxElapsed))
	}

	cat, err := backoff.Retry(ctx, func() (*Catalog, error) {
		return fetcher.FetchGarage(ctx)
	}, opts...)
	if err != nil {
		return SyncStats{}, fmt.Errorf("garage bootstrap: %w", err)
	}
	return sync.Sync(ctx, cat)
}
