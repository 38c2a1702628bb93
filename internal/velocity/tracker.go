package velocity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nandha3d/ecommerce-template-sub002/pkg/config"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/db/models"
	"github.com/nandha3d/ecommerce-template-sub002/pkg/enums"
	pkgerrors "github.com/nandha3d/ecommerce-template-sub002/pkg/errors"
)

// MaxScore is the most a single identity attribute contributes to a fraud score.
const MaxScore = 25

const createAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Settings carries the rolling window and the per-type attempt limits.
type Settings struct {
	Window time.Duration
	Limits map[enums.VelocityType]int
}

// SettingsFromConfig maps environment configuration onto tracker settings.
func SettingsFromConfig(cfg config.VelocityConfig) Settings {
	return Settings{
		Window: cfg.Window,
		Limits: map[enums.VelocityType]int{
			enums.VelocityTypeIP:     cfg.IPLimit,
			enums.VelocityTypeEmail:  cfg.EmailLimit,
			enums.VelocityTypeCard:   cfg.CardLimit,
			enums.VelocityTypeUser:   cfg.UserLimit,
			enums.VelocityTypeDevice: cfg.DeviceLimit,
		},
	}
}

// Scorer is the read side the fraud engine depends on.
type Scorer interface {
	GetVelocityScore(ctx context.Context, velocityType enums.VelocityType, value string) (int, error)
	IsVelocityExceeded(ctx context.Context, velocityType enums.VelocityType, value string) (bool, error)
}

// Tracker counts attempts per (type, value) inside a rolling window.
type Tracker struct {
	tx       txRunner
	db       *gorm.DB
	settings Settings
	now      func() time.Time
}

func NewTracker(tx txRunner, conn *gorm.DB, settings Settings) (*Tracker, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if conn == nil {
		return nil, fmt.Errorf("db required")
	}
	if settings.Window <= 0 {
		return nil, fmt.Errorf("velocity window must be positive")
	}
	for _, velocityType := range []enums.VelocityType{
		enums.VelocityTypeIP,
		enums.VelocityTypeEmail,
		enums.VelocityTypeCard,
		enums.VelocityTypeUser,
		enums.VelocityTypeDevice,
	} {
		if settings.Limits[velocityType] <= 0 {
			return nil, fmt.Errorf("velocity limit for %s must be positive", velocityType)
		}
	}
	return &Tracker{tx: tx, db: conn, settings: settings, now: time.Now}, nil
}

// WithClock replaces the tracker clock. Used by tests that advance time.
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	clone := *t
	clone.now = now
	return &clone
}

func (t *Tracker) Limit(velocityType enums.VelocityType) int {
	return t.settings.Limits[velocityType]
}

// RecordAttempt increments attempt_count, restarting the window first when it
// has elapsed.
func (t *Tracker) RecordAttempt(ctx context.Context, velocityType enums.VelocityType, value string, amountCents int64) (*models.PaymentVelocityRecord, error) {
	return t.mutate(ctx, velocityType, value, func(record *models.PaymentVelocityRecord, now time.Time) {
		if t.windowElapsed(record, now) {
			record.AttemptCount = 0
			record.SuccessCount = 0
			record.FailureCount = 0
			record.TotalAmountCents = 0
			record.WindowStart = now
		}
		record.AttemptCount++
		record.TotalAmountCents += amountCents
	})
}

// RecordSuccess increments success_count without touching the window.
func (t *Tracker) RecordSuccess(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error) {
	return t.mutate(ctx, velocityType, value, func(record *models.PaymentVelocityRecord, _ time.Time) {
		record.SuccessCount++
	})
}

// RecordFailure increments failure_count without touching the window.
func (t *Tracker) RecordFailure(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error) {
	return t.mutate(ctx, velocityType, value, func(record *models.PaymentVelocityRecord, _ time.Time) {
		record.FailureCount++
	})
}

// IsVelocityExceeded is true iff attempt_count has reached the type's limit
// within a live window.
func (t *Tracker) IsVelocityExceeded(ctx context.Context, velocityType enums.VelocityType, value string) (bool, error) {
	record, err := t.Get(ctx, velocityType, value)
	if err != nil || record == nil {
		return false, err
	}
	if t.windowElapsed(record, t.now().UTC()) {
		return false, nil
	}
	return record.AttemptCount >= t.Limit(velocityType), nil
}

// GetVelocityScore returns min(25, round(25 × attempts / limit)). Missing
// records and elapsed windows score 0.
func (t *Tracker) GetVelocityScore(ctx context.Context, velocityType enums.VelocityType, value string) (int, error) {
	record, err := t.Get(ctx, velocityType, value)
	if err != nil || record == nil {
		return 0, err
	}
	if t.windowElapsed(record, t.now().UTC()) {
		return 0, nil
	}
	return Score(record.AttemptCount, t.Limit(velocityType)), nil
}

// Score rounds half up in integer arithmetic.
func Score(attempts, limit int) int {
	if attempts <= 0 || limit <= 0 {
		return 0
	}
	score := (2*MaxScore*attempts + limit) / (2 * limit)
	if score > MaxScore {
		return MaxScore
	}
	return score
}

// Get is a plain read without locking.
func (t *Tracker) Get(ctx context.Context, velocityType enums.VelocityType, value string) (*models.PaymentVelocityRecord, error) {
	if !velocityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid velocity type %q", velocityType))
	}
	value = normalize(velocityType, value)
	var record models.PaymentVelocityRecord
	err := t.db.WithContext(ctx).
		Where("type = ? AND value = ?", velocityType, value).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load velocity record")
	}
	return &record, nil
}

func (t *Tracker) windowElapsed(record *models.PaymentVelocityRecord, now time.Time) bool {
	return now.Sub(record.WindowStart) >= t.settings.Window
}

// mutate applies fn to the locked row for (type, value), creating it when
// absent. A concurrent insert of the same key is retried as an update.
func (t *Tracker) mutate(ctx context.Context, velocityType enums.VelocityType, value string, fn func(*models.PaymentVelocityRecord, time.Time)) (*models.PaymentVelocityRecord, error) {
	if !velocityType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid velocity type %q", velocityType))
	}
	value = normalize(velocityType, value)
	if value == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "velocity value required")
	}

	var result *models.PaymentVelocityRecord
	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = t.tx.WithTx(ctx, func(tx *gorm.DB) error {
			now := t.now().UTC()
			var record models.PaymentVelocityRecord
			findErr := db.ForUpdate(tx.WithContext(ctx)).
				Where("type = ? AND value = ?", velocityType, value).
				First(&record).Error
			switch {
			case errors.Is(findErr, gorm.ErrRecordNotFound):
				record = models.PaymentVelocityRecord{
					ID:          uuid.New(),
					Type:        velocityType,
					Value:       value,
					WindowStart: now,
				}
				fn(&record, now)
				if err := tx.WithContext(ctx).Create(&record).Error; err != nil {
					return err
				}
			case findErr != nil:
				return findErr
			default:
				fn(&record, now)
				if err := tx.WithContext(ctx).Save(&record).Error; err != nil {
					return err
				}
			}
			result = &record
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !db.IsUniqueViolation(err, "ux_velocity_type_value") {
			break
		}
	}
	return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record velocity")
}

func normalize(velocityType enums.VelocityType, value string) string {
	value = strings.TrimSpace(value)
	if velocityType == enums.VelocityTypeEmail {
		return strings.ToLower(value)
	}
	return value
}
