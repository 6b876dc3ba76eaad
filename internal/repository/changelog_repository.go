package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
)

const changeLogColumns = `id, item_id, material_id, field, old_value, new_value, batch_id, user_id, created_at`

// ChangeLogRepository persists the append-only mutation history. There is
// no update or delete path on purpose.
type ChangeLogRepository struct {
	db *sqlx.DB
}

// NewChangeLogRepository constructs the repository.
func NewChangeLogRepository(db *sqlx.DB) *ChangeLogRepository {
	return &ChangeLogRepository{db: db}
}

// CreateBatch appends entries inside the caller's transaction. Called once
// per merge with every confirmed field change of the batch.
func (r *ChangeLogRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, entries []models.ChangeLog) error {
	const query = `INSERT INTO change_logs
	(id, item_id, material_id, field, old_value, new_value, batch_id, user_id, created_at)
	VALUES (:id, :item_id, :material_id, :field, :old_value, :new_value, :batch_id, :user_id, :created_at)`
	now := time.Now().UTC()
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, exec, query, entries[i]); err != nil {
			return fmt.Errorf("create change log entry: %w", err)
		}
	}
	return nil
}

// ListByItem returns the change history of one item, oldest first.
func (r *ChangeLogRepository) ListByItem(ctx context.Context, itemID string) ([]models.ChangeLog, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_logs WHERE item_id = $1 ORDER BY created_at ASC, field ASC`
	var entries []models.ChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, itemID); err != nil {
		return nil, fmt.Errorf("list changes by item: %w", err)
	}
	return entries, nil
}

// ListByBatch returns every change a batch produced, oldest first.
func (r *ChangeLogRepository) ListByBatch(ctx context.Context, batchID string) ([]models.ChangeLog, error) {
	query := `SELECT ` + changeLogColumns + ` FROM change_logs WHERE batch_id = $1 ORDER BY created_at ASC, material_id ASC, field ASC`
	var entries []models.ChangeLog
	if err := r.db.SelectContext(ctx, &entries, query, batchID); err != nil {
		return nil, fmt.Errorf("list changes by batch: %w", err)
	}
	return entries, nil
}

// ListChangedSince returns the latest old/new value pair per changed item
// field after the cutoff, scoped to a faculty when given. Feeds the
// update_overview export summary.
func (r *ChangeLogRepository) ListChangedSince(ctx context.Context, exec sqlx.ExtContext, faculty string, since time.Time) ([]models.ChangeLog, error) {
	query := `SELECT c.id, c.item_id, c.material_id, c.field, c.old_value, c.new_value, c.batch_id, c.user_id, c.created_at
	FROM change_logs c
	JOIN copyright_items i ON i.id = c.item_id
	WHERE c.created_at > $1`
	args := []interface{}{since}
	if faculty != "" {
		query += ` AND i.faculty = $2`
		args = append(args, faculty)
	}
	query += ` ORDER BY c.material_id ASC, c.field ASC, c.created_at ASC`

	var entries []models.ChangeLog
	if err := sqlx.SelectContext(ctx, exec, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("list changes since: %w", err)
	}
	return entries, nil
}
