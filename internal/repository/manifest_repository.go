package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/utsmok/ea-cli-django-sub002/internal/models"
)

const manifestColumns = `id, run_id, faculty, bucket, path, backup_path, row_count, created_count, changed_count, created_by, created_at`

// ManifestRepository persists export manifests. Rows are never deleted;
// newer runs supersede older ones.
type ManifestRepository struct {
	db *sqlx.DB
}

// NewManifestRepository constructs the repository.
func NewManifestRepository(db *sqlx.DB) *ManifestRepository {
	return &ManifestRepository{db: db}
}

// Create appends one manifest row.
func (r *ManifestRepository) Create(ctx context.Context, manifest *models.ExportManifest) error {
	if manifest.ID == "" {
		manifest.ID = uuid.NewString()
	}
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO export_manifests
	(id, run_id, faculty, bucket, path, backup_path, row_count, created_count, changed_count, created_by, created_at)
	VALUES (:id, :run_id, :faculty, :bucket, :path, :backup_path, :row_count, :created_count, :changed_count, :created_by, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, manifest); err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	return nil
}

// Latest returns the most recent manifest for a faculty/bucket pair, or
// (nil, nil) when that target has never been exported.
func (r *ManifestRepository) Latest(ctx context.Context, faculty string, bucket models.WorkflowBucket) (*models.ExportManifest, error) {
	query := `SELECT ` + manifestColumns + ` FROM export_manifests
	WHERE faculty = $1 AND bucket = $2 ORDER BY created_at DESC LIMIT 1`
	var manifest models.ExportManifest
	if err := r.db.GetContext(ctx, &manifest, query, faculty, bucket); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest manifest: %w", err)
	}
	return &manifest, nil
}

// ListByFaculty returns manifests for a faculty, newest first. An empty
// faculty lists every faculty's manifests.
func (r *ManifestRepository) ListByFaculty(ctx context.Context, faculty string, limit int) ([]models.ExportManifest, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `SELECT ` + manifestColumns + ` FROM export_manifests ORDER BY created_at DESC LIMIT $1`
	args := []interface{}{limit}
	if faculty != "" {
		query = `SELECT ` + manifestColumns + ` FROM export_manifests
		WHERE faculty = $1 ORDER BY created_at DESC LIMIT $2`
		args = []interface{}{faculty, limit}
	}
	var manifests []models.ExportManifest
	if err := r.db.SelectContext(ctx, &manifests, query, args...); err != nil {
		return nil, fmt.Errorf("list manifests: %w", err)
	}
	return manifests, nil
}
