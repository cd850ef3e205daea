package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/internal/database"
	"gorm.io/gorm"
)

// ErrUploadNotFound is returned when no catalog entry has the requested filename.
var ErrUploadNotFound = errors.New("upload not found")

// CatalogFilename is the upload catalog database name inside the storage directory.
const CatalogFilename = "uploads.db"

// Upload describes one file received through the server upload flow.
type Upload struct {
	filename     string
	originalName string
	contentType  string
	size         int64
	sha256       string
	description  string
	createdAt    time.Time
}

// NewUpload creates an Upload.
func NewUpload(filename, originalName, contentType string, size int64, sha256, description string) Upload {
	return Upload{
		filename:     filename,
		originalName: originalName,
		contentType:  contentType,
		size:         size,
		sha256:       sha256,
		description:  description,
	}
}

// Filename returns the storage filename.
func (u Upload) Filename() string { return u.filename }

// OriginalName returns the client-supplied filename.
func (u Upload) OriginalName() string { return u.originalName }

// ContentType returns the detected MIME type.
func (u Upload) ContentType() string { return u.contentType }

// Size returns the size in bytes.
func (u Upload) Size() int64 { return u.size }

// SHA256 returns the hex digest of the file contents.
func (u Upload) SHA256() string { return u.sha256 }

// Description returns the generated caption.
func (u Upload) Description() string { return u.description }

// CreatedAt returns when the upload was recorded.
func (u Upload) CreatedAt() time.Time { return u.createdAt }

// UploadModel is the GORM model for the uploads table.
type UploadModel struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Filename     string    `gorm:"column:filename;uniqueIndex;not null"`
	OriginalName string    `gorm:"column:original_name"`
	ContentType  string    `gorm:"column:content_type"`
	Size         int64     `gorm:"column:size"`
	SHA256       string    `gorm:"column:sha256;index"`
	Description  string    `gorm:"column:description"`
	CreatedAt    time.Time `gorm:"column:created_at;index"`
}

// TableName returns the table name.
func (UploadModel) TableName() string { return "uploads" }

func uploadToModel(u Upload) UploadModel {
	return UploadModel{
		Filename:     u.filename,
		OriginalName: u.originalName,
		ContentType:  u.contentType,
		Size:         u.size,
		SHA256:       u.sha256,
		Description:  u.description,
		CreatedAt:    u.createdAt,
	}
}

func uploadFromModel(m UploadModel) Upload {
	return Upload{
		filename:     m.Filename,
		originalName: m.OriginalName,
		contentType:  m.ContentType,
		size:         m.Size,
		sha256:       m.SHA256,
		description:  m.Description,
		createdAt:    m.CreatedAt,
	}
}

// Catalog records uploads in SQLite. It is informational: the ledger remains
// the authority on what has been indexed.
type Catalog struct {
	db database.Database
}

// NewCatalog creates a Catalog and migrates its schema.
func NewCatalog(ctx context.Context, db database.Database) (*Catalog, error) {
	if err := db.Session(ctx).AutoMigrate(&UploadModel{}); err != nil {
		return nil, fmt.Errorf("%w: migrate uploads: %w", meme.ErrStorage, err)
	}
	return &Catalog{db: db}, nil
}

// Record stores u, replacing the description of an existing entry with the
// same filename.
func (c *Catalog) Record(ctx context.Context, u Upload) (Upload, error) {
	model := uploadToModel(u)
	if model.CreatedAt.IsZero() {
		model.CreatedAt = time.Now().UTC()
	}

	var existing UploadModel
	err := c.db.Session(ctx).Where("filename = ?", model.Filename).First(&existing).Error
	switch {
	case err == nil:
		model.ID = existing.ID
		model.CreatedAt = existing.CreatedAt
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return Upload{}, fmt.Errorf("%w: find upload %s: %w", meme.ErrStorage, model.Filename, err)
	}

	if err := c.db.Session(ctx).Save(&model).Error; err != nil {
		return Upload{}, fmt.Errorf("%w: save upload %s: %w", meme.ErrStorage, model.Filename, err)
	}
	return uploadFromModel(model), nil
}

// Get returns the upload stored under filename.
func (c *Catalog) Get(ctx context.Context, filename string) (Upload, error) {
	var model UploadModel
	err := c.db.Session(ctx).Where("filename = ?", filename).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Upload{}, fmt.Errorf("%w: %s", ErrUploadNotFound, filename)
	}
	if err != nil {
		return Upload{}, fmt.Errorf("%w: get upload %s: %w", meme.ErrStorage, filename, err)
	}
	return uploadFromModel(model), nil
}

// List returns uploads newest first.
func (c *Catalog) List(ctx context.Context, limit, offset int) ([]Upload, error) {
	var models []UploadModel
	q := c.db.Session(ctx).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("%w: list uploads: %w", meme.ErrStorage, err)
	}

	uploads := make([]Upload, len(models))
	for i, m := range models {
		uploads[i] = uploadFromModel(m)
	}
	return uploads, nil
}

// Count returns the number of recorded uploads.
func (c *Catalog) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.Session(ctx).Model(&UploadModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: count uploads: %w", meme.ErrStorage, err)
	}
	return n, nil
}
