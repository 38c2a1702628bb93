package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reservationExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

type sessionExpirer interface {
	ExpireStale(ctx context.Context, now time.Time) (int, error)
}

// NewReservationExpiryJob sweeps active reservations past their deadline back
// into available stock.
func NewReservationExpiryJob(logg *logger.Logger, inventory reservationExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	return &reservationExpiryJob{logg: logg, inventory: inventory, now: time.Now}, nil
}

type reservationExpiryJob struct {
	logg      *logger.Logger
	inventory reservationExpirer
	now       func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	expired, err := j.inventory.ExpireStale(ctx, j.now().UTC())
	if err != nil {
		return fmt.Errorf("expire reservations: %w", err)
	}
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stale reservations expired")
	}
	return nil
}

// NewSessionExpiryJob moves live checkout sessions past their deadline to
// expired. Session expiry also releases the session's reservations.
func NewSessionExpiryJob(logg *logger.Logger, checkout sessionExpirer) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if checkout == nil {
		return nil, fmt.Errorf("checkout service required")
	}
	return &sessionExpiryJob{logg: logg, checkout: checkout, now: time.Now}, nil
}

type sessionExpiryJob struct {
	logg     *logger.Logger
	checkout sessionExpirer
	now      func() time.Time
}

func (j *sessionExpiryJob) Name() string { return "checkout-session-expiry" }

// Run reports partial failures; sessions that expired cleanly stay expired.
func (j *sessionExpiryJob) Run(ctx context.Context) error {
	expired, err := j.checkout.ExpireStale(ctx, j.now().UTC())
	if expired > 0 {
		j.logg.Info(j.logg.WithField(ctx, "expired", expired), "stale checkout sessions expired")
	}
	if err != nil {
		return fmt.Errorf("expire checkout sessions: %w", err)
	}
	return nil
}
