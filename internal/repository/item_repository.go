package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
)

const itemColumns = `id, material_id, course_code, course_name, department, faculty, title, author, publisher,
	student_count, canvas_url, file_exists, page_count,
	workflow_status, v1_classification, v2_classification, v2_lengte, remarks, manual_id,
	created_at, updated_at`

// ItemRepository persists authoritative copyright items.
type ItemRepository struct {
	db *sqlx.DB
}

// NewItemRepository constructs the repository.
func NewItemRepository(db *sqlx.DB) *ItemRepository {
	return &ItemRepository{db: db}
}

// FindByMaterialID looks up an item by the stable merge key. Returns
// (nil, nil) when no item exists.
func (r *ItemRepository) FindByMaterialID(ctx context.Context, exec sqlx.ExtContext, materialID string) (*models.CopyrightItem, error) {
	query := `SELECT ` + itemColumns + ` FROM copyright_items WHERE material_id = $1`
	var item models.CopyrightItem
	if err := sqlx.GetContext(ctx, exec, &item, query, materialID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find item by material id: %w", err)
	}
	return &item, nil
}

// Create inserts a new item inside the caller's transaction.
func (r *ItemRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.CopyrightItem) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now
	const query = `INSERT INTO copyright_items
	(id, material_id, course_code, course_name, department, faculty, title, author, publisher,
	 student_count, canvas_url, file_exists, page_count,
	 workflow_status, v1_classification, v2_classification, v2_lengte, remarks, manual_id,
	 created_at, updated_at)
	VALUES (:id, :material_id, :course_code, :course_name, :department, :faculty, :title, :author, :publisher,
	 :student_count, :canvas_url, :file_exists, :page_count,
	 :workflow_status, :v1_classification, :v2_classification, :v2_lengte, :remarks, :manual_id,
	 :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, item); err != nil {
		return fmt.Errorf("create item: %w", err)
	}
	return nil
}

// Update rewrites all mutable columns of an item inside the caller's
// transaction. The merge service has already restricted which fields it
// changed in memory; persisting the full row keeps the query static.
func (r *ItemRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.CopyrightItem) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE copyright_items SET
	course_code = :course_code, course_name = :course_name, department = :department, faculty = :faculty,
	title = :title, author = :author, publisher = :publisher, student_count = :student_count,
	canvas_url = :canvas_url, file_exists = :file_exists, page_count = :page_count,
	workflow_status = :workflow_status, v1_classification = :v1_classification,
	v2_classification = :v2_classification, v2_lengte = :v2_lengte, remarks = :remarks,
	manual_id = :manual_id, updated_at = :updated_at
	WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, item); err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

// ItemFilter narrows export and listing queries.
type ItemFilter struct {
	Faculty  string
	Statuses []string
}

// ListForExport returns items for one export selection ordered by material
// identifier, so repeated exports of the same snapshot produce identical
// row order. Run it on a read-only snapshot transaction.
func (r *ItemRepository) ListForExport(ctx context.Context, exec sqlx.ExtContext, filter ItemFilter) ([]models.CopyrightItem, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(`SELECT ` + itemColumns + ` FROM copyright_items`)

	conditions := make([]string, 0, 2)
	if filter.Faculty != "" {
		args = append(args, filter.Faculty)
		conditions = append(conditions, fmt.Sprintf("faculty = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("workflow_status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY material_id ASC")

	var items []models.CopyrightItem
	if err := sqlx.SelectContext(ctx, exec, &items, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list items for export: %w", err)
	}
	return items, nil
}

// CountCreatedSince counts items created after the cutoff for a faculty
// scope. Used by the export update summary.
func (r *ItemRepository) CountCreatedSince(ctx context.Context, exec sqlx.ExtContext, faculty string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM copyright_items WHERE created_at > $1`
	args := []interface{}{since}
	if faculty != "" {
		query += ` AND faculty = $2`
		args = append(args, faculty)
	}
	var count int
	if err := sqlx.GetContext(ctx, exec, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count created items: %w", err)
	}
	return count, nil
}
