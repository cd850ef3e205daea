package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/filesystem"
	"github.com/memevault/memevault/infrastructure/persistence"
)

// Uploads handles images posted to the server: it stores them under a
// generated name, indexes them and records them in the catalog.
type Uploads struct {
	indexer *Indexer
	storage *filesystem.Storage
	catalog *persistence.Catalog
	logger  *slog.Logger
}

// NewUploads creates the upload service. The indexer must canonicalize
// identifiers with meme.StorageName. A nil catalog disables bookkeeping.
func NewUploads(
	indexer *Indexer,
	storage *filesystem.Storage,
	catalog *persistence.Catalog,
	logger *slog.Logger,
) *Uploads {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploads{
		indexer: indexer,
		storage: storage,
		catalog: catalog,
		logger:  logger,
	}
}

// Upload validates, stores and indexes one image. If captioning, embedding
// or saving the index fails the stored file is removed again. When only the
// ledger write fails the record is already searchable, so the file is kept
// and the error returned.
func (u *Uploads) Upload(ctx context.Context, originalName string, data []byte) (persistence.Upload, error) {
	img, err := filesystem.DetectImage(originalName, data)
	if err != nil {
		return persistence.Upload{}, err
	}

	filename, err := u.storage.Save(img)
	if err != nil {
		return persistence.Upload{}, err
	}

	summary, err := u.indexer.Index(ctx, []Item{BytesItem(filename, img.Data())}, nil)
	if errors.Is(err, ErrLedgerNotSaved) {
		u.logger.Warn("upload indexed but ledger not saved", "filename", filename, "error", err)
		return persistence.Upload{}, err
	}
	if err != nil {
		u.discard(filename)
		return persistence.Upload{}, err
	}
	if failures := summary.Failures(); len(failures) > 0 {
		u.discard(filename)
		return persistence.Upload{}, failures[0].Err()
	}

	var description string
	for _, o := range summary.Outcomes() {
		if o.SourceID() == filename {
			description = o.Description()
		}
	}

	upload := persistence.NewUpload(filename, originalName, img.ContentType(), img.Size(), img.SHA256(), description)
	if u.catalog != nil {
		recorded, err := u.catalog.Record(ctx, upload)
		if err != nil {
			u.logger.Warn("failed to record upload in catalog", "filename", filename, "error", err)
		} else {
			upload = recorded
		}
	}

	u.logger.Info("indexed upload", "filename", filename, "original_name", originalName, "size", img.Size())
	return upload, nil
}

// Open returns the bytes of a stored upload.
func (u *Uploads) Open(filename string) ([]byte, error) {
	return u.storage.Read(filename)
}

// List returns catalog entries, newest first.
func (u *Uploads) List(ctx context.Context, limit, offset int) ([]persistence.Upload, int64, error) {
	if u.catalog == nil {
		return []persistence.Upload{}, 0, nil
	}
	uploads, err := u.catalog.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	total, err := u.catalog.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	return uploads, total, nil
}

// Get returns the catalog entry for filename.
func (u *Uploads) Get(ctx context.Context, filename string) (persistence.Upload, error) {
	if u.catalog == nil {
		return persistence.Upload{}, persistence.ErrUploadNotFound
	}
	name, err := meme.StorageName(filename)
	if err != nil {
		return persistence.Upload{}, err
	}
	return u.catalog.Get(ctx, name)
}

func (u *Uploads) discard(filename string) {
	if err := u.storage.Remove(filename); err != nil && !errors.Is(err, meme.ErrInvalidIdentifier) {
		u.logger.Warn("failed to remove upload after indexing failure", "filename", filename, "error", err)
	}
}
