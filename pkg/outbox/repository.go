package outbox

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/afonso-rickman/newdelivery/pkg/db/models"
	"github.com/afonso-rickman/newdelivery/pkg/enums"
)

const maxErrorLen = 1024

var errTxRequired = errors.New("transaction required")

// Repository reads and settles rows of order_change_events, the table the
// orders trigger appends to.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Insert appends an event. Production rows come from the trigger; this is
// used by the memory driver and tests.
func (r *Repository) Insert(tx *gorm.DB, event *models.OrderChangeEvent) error {
	if tx == nil {
		return errTxRequired
	}
	if event.Status == "" {
		event.Status = enums.ChangeEventStatusPending
	}
	return tx.Create(event).Error
}

// FetchDueForPublish returns pending or failed rows whose retry time has
// passed, oldest first. On postgres the rows stay locked for the life of tx
// and rows locked by another relay are skipped.
func (r *Repository) FetchDueForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OrderChangeEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	query := tx.Model(&models.OrderChangeEvent{}).
		Where("status IN ?", []enums.ChangeEventStatus{enums.ChangeEventStatusPending, enums.ChangeEventStatusFailed}).
		Where("(next_attempt_at IS NULL OR next_attempt_at <= ?)", r.now().UTC()).
		Order("id ASC").
		Limit(limit)
	if maxAttempts > 0 {
		query = query.Where("attempt_count < ?", maxAttempts)
	}
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}

	var rows []models.OrderChangeEvent
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id int64) error {
	if tx == nil {
		return errTxRequired
	}
	now := r.now().UTC()
	return tx.Model(&models.OrderChangeEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.ChangeEventStatusPublished,
			"published_at":    now,
			"next_attempt_at": nil,
		}).Error
}

// MarkFailedTx bumps the attempt count and schedules the next try after
// retryAfter.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id int64, cause error, retryAfter time.Duration) error {
	if tx == nil {
		return errTxRequired
	}
	next := r.now().UTC().Add(retryAfter)
	return tx.Model(&models.OrderChangeEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.ChangeEventStatusFailed,
			"attempt_count":   gorm.Expr("attempt_count + 1"),
			"last_error":      errorText(cause),
			"next_attempt_at": next,
		}).Error
}

// MarkTerminalTx parks the row; the relay never picks it up again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id int64, cause error, attempts int) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OrderChangeEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":          enums.ChangeEventStatusTerminal,
			"attempt_count":   attempts,
			"last_error":      errorText(cause),
			"next_attempt_at": nil,
		}).Error
}

// DeleteStaleBefore removes rows older than cutoff: published rows by
// published_at, every other row by occurred_at. A notification that old can
// no longer dirty a live view.
func (r *Repository) DeleteStaleBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		return 0, errTxRequired
	}
	res := tx.WithContext(ctx).
		Where("(status = ? AND published_at < ?) OR (status <> ? AND occurred_at < ?)",
			enums.ChangeEventStatusPublished, cutoff.UTC(),
			enums.ChangeEventStatusPublished, cutoff.UTC()).
		Delete(&models.OrderChangeEvent{})
	return res.RowsAffected, res.Error
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	return &msg
}
