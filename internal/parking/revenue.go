package parking

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/garage-parking/internal/logging"
	"github.com/iliyamo/garage-parking/internal/repository"
)

// Currency of every amount the garage charges.
const Currency = "BRL"

const dateLayout = "2006-01-02"

type Revenue struct {
	AmountCents int64
	Currency    string
	Timestamp   time.Time
}

// RevenueService sums charges of sessions that exited on a given UTC day.
type RevenueService struct {
	store repository.SessionStore
	now   func() time.Time
}

func NewRevenueService(store repository.SessionStore) *RevenueService {
	return &RevenueService{store: store, now: time.Now}
}

// ForDate returns the revenue of date (YYYY-MM-DD), optionally restricted
// to one sector code.  A malformed date yields ErrInvalidDate.
func (r *RevenueService) ForDate(ctx context.Context, date, sectorCode string) (*Revenue, error) {
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), time.UTC)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	sectorCode = strings.TrimSpace(sectorCode)

	started := time.Now()
	logging.Debug(ctx).Str("date", day.Format(dateLayout)).Str("sector", sectorCode).Msg("revenue.calc.start")

	cents, err := r.store.SumChargedBetween(ctx, day, day.AddDate(0, 0, 1), sectorCode)
	if err != nil {
		return nil, fmt.Errorf("sum charges: %w", err)
	}

	logging.Debug(ctx).
		Str("date", day.Format(dateLayout)).
		Str("sector", sectorCode).
		Int64("amount_cents", cents).
		Dur("elapsed", time.Since(started)).
		Msg("revenue.calc.end")

	return &Revenue{AmountCents: cents, Currency: Currency, Timestamp: r.now().UTC()}, nil
}
