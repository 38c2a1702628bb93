package fraud

import (
	"context"

	"github.com/nandha3d/ecommerce-template-sub002/internal/velocity"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
)

// HistoricalScorer contributes points from prior payment outcomes.
type HistoricalScorer interface {
	Score(ctx context.Context, identity Identity) (int, error)
}

type velocityReader interface {
	Get(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error)
}

// FailureRateScorer scores the share of failed payments recorded for the
// buyer's email and card in their current velocity windows:
//
//	points = round(MaxPoints × failures / (successes + failures))
//
// Fewer than MinSamples outcomes score 0.
type FailureRateScorer struct {
	reader     velocityReader
	MaxPoints  int
	MinSamples int
}

func NewFailureRateScorer(reader *velocity.Tracker, maxPoints, minSamples int) *FailureRateScorer {
	return &FailureRateScorer{reader: reader, MaxPoints: maxPoints, MinSamples: minSamples}
}

func (s *FailureRateScorer) Score(ctx context.Context, identity Identity) (int, error) {
	if s == nil || s.reader == nil || s.MaxPoints <= 0 {
		return 0, nil
	}
	var successes, failures int
	lookups := map[enums.VelocityType]string{enums.VelocityTypeEmail: identity.Email}
	if identity.CardToken != nil {
		lookups[enums.VelocityTypeCard] = *identity.CardToken
	}
	for velocityType, value := range lookups {
		if value == "" {
			continue
		}
		record, err := s.reader.Get(ctx, velocityType, value)
		if err != nil {
			return 0, err
		}
		if record == nil {
			continue
		}
		successes += record.SuccessCount
		failures += record.FailureCount
	}
	return failureRatePoints(successes, failures, s.MaxPoints, s.MinSamples), nil
}

func failureRatePoints(successes, failures, maxPoints, minSamples int) int {
	total := successes + failures
	if total == 0 || total < minSamples {
		return 0
	}
	return (2*maxPoints*failures + total) / (2 * total)
}

// NoHistory scores every identity 0.
type NoHistory struct{}

func (NoHistory) Score(context.Context, Identity) (int, error) {
	return 0, nil
}
