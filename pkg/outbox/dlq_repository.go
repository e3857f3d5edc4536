package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
)

// ErrDLQEntryNotFound is returned when replaying an event that is not parked.
var ErrDLQEntryNotFound = errors.New("outbox dlq entry not found")

// DLQRepository stores events the publisher gave up on and puts them back
// into circulation on request.
type DLQRepository struct {
	db *gorm.DB
}

func NewDLQRepository(db *gorm.DB) *DLQRepository {
	return &DLQRepository{db: db}
}

func (r *DLQRepository) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errTxRequired
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// FindByEventID returns nil without error when the event is not parked.
func (r *DLQRepository) FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error) {
	var entry models.OutboxDLQ
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Order("failed_at DESC").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List returns the most recent failures first.
func (r *DLQRepository) List(ctx context.Context, limit int) ([]models.OutboxDLQ, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.OutboxDLQ
	err := r.db.WithContext(ctx).Order("failed_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

// Replay resets the parked event so the publisher picks it up again, and
// removes it from the DLQ. An outbox row that no longer exists is recreated
// from the DLQ copy.
func (r *DLQRepository) Replay(ctx context.Context, eventID uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.OutboxDLQ
		if err := tx.Where("event_id = ?", eventID).Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) == 0 {
			return ErrDLQEntryNotFound
		}
		latest := entries[0]
		for _, e := range entries[1:] {
			if e.FailedAt.After(latest.FailedAt) {
				latest = e
			}
		}

		reset := tx.Model(&models.OutboxEvent{}).Where("id = ?", eventID).Updates(map[string]any{
			"attempt_count": 0,
			"last_error":    nil,
			"published_at":  nil,
		})
		if reset.Error != nil {
			return fmt.Errorf("reset outbox event: %w", reset.Error)
		}
		if reset.RowsAffected == 0 {
			restored := models.OutboxEvent{
				ID:            eventID,
				EventType:     latest.EventType,
				AggregateType: latest.AggregateType,
				AggregateID:   latest.AggregateID,
				Payload:       latest.Payload,
			}
			if err := tx.Create(&restored).Error; err != nil {
				return fmt.Errorf("restore outbox event: %w", err)
			}
		}
		return tx.Where("event_id = ?", eventID).Delete(&models.OutboxDLQ{}).Error
	})
}
