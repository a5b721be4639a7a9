package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/scentmarket-backend/pkg/db"
	"github.com/angelmondragon/scentmarket-backend/pkg/db/models"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
)

// maxErrorText bounds last_error and the dlq error_message columns.
const maxErrorText = 1024

// ErrTxRequired is returned by writes that must join the caller's transaction.
var ErrTxRequired = errors.New("outbox: transaction required")

// Repository owns the outbox_events table. Every write takes the caller's
// transaction; the pool handle is kept for reads outside one.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return ErrTxRequired
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish claims up to limit pending rows, oldest first.
// Rows another publisher holds are skipped instead of waited on.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	var rows []models.OutboxEvent
	err := dbpkg.ForUpdateSkipLocked(tx).
		Scopes(models.PendingOutbox(maxAttempts)).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{
		"published_at": time.Now().UTC(),
		"last_error":   nil,
	})
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// MarkTerminalTx parks a row at terminalAttempts so it is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": terminalAttempts,
	})
}

// DeadLetterTx parks event in outbox_dlq and pins the source row at
// terminalAttempts, both inside tx.
func (r *Repository) DeadLetterTx(tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, terminalAttempts int) error {
	if tx == nil {
		return ErrTxRequired
	}
	if err := NewDLQRepository(r.db).InsertTx(tx, event.DeadLetter(reason, cause, time.Now())); err != nil {
		return fmt.Errorf("insert dlq: %w", err)
	}
	if err := r.MarkTerminalTx(tx, event.ID, cause, terminalAttempts); err != nil {
		return fmt.Errorf("mark terminal: %w", err)
	}
	return nil
}

// DeleteSettledBefore removes rows created before cutoff that the publisher
// will never pick up again: published rows and rows parked at terminalAttempts.
func (r *Repository) DeleteSettledBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, terminalAttempts int) (int64, error) {
	if tx == nil {
		return 0, ErrTxRequired
	}
	res := tx.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Where("(published_at IS NOT NULL OR attempt_count >= ?)", terminalAttempts).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, values map[string]any) error {
	if tx == nil {
		return ErrTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(values).Error
}

// errorText renders err for storage, cut on a rune boundary.
func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorText {
		cut := maxErrorText
		for cut > 0 && !utf8.RuneStart(msg[cut]) {
			cut--
		}
		msg = msg[:cut]
	}
	return &msg
}
