package media

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulms/media/internal/storage"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

var (
	// ErrStorage means the storage backend rejected or failed the operation.
	// The accompanying storage result carries the message and code.
	ErrStorage = errors.New("storage operation failed")
	// ErrBackendMismatch means the record was stored by a backend other than
	// the one currently configured, so it cannot be deleted from here.
	ErrBackendMismatch = errors.New("media stored on a different backend")
)

// Store persists catalog records. *Repository is the production implementation.
type Store interface {
	Create(ctx context.Context, rec *Record) error
	GetByID(ctx context.Context, id uuid.UUID) (*Record, error)
	List(ctx context.Context, limit, offset int) ([]Record, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Storage is the file store the catalog sits on. *storage.Service implements it.
type Storage interface {
	Kind() storage.Kind
	Save(ctx context.Context, file *storage.File, opts storage.Options) storage.UploadResult
	Delete(ctx context.Context, identifier string) storage.DeleteResult
}

// Service contains business logic for the media catalog.
type Service struct {
	repo  Store
	store Storage
	log   *zap.Logger
}

// NewService creates a new media Service.
func NewService(repo Store, store Storage, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, store: store, log: log}
}

// Kind returns the kind of the underlying storage backend.
func (s *Service) Kind() storage.Kind { return s.store.Kind() }

// Upload stores file and records it in the catalog. The storage result is
// always returned; on a storage failure the error wraps ErrStorage. If the
// record cannot be written the stored object is removed again.
func (s *Service) Upload(ctx context.Context, file *storage.File, opts storage.Options) (*Record, storage.UploadResult, error) {
	res := s.store.Save(ctx, file, opts)
	if !res.Success {
		return nil, res, fmt.Errorf("%w: %s", ErrStorage, res.Error)
	}

	kind := s.store.Kind()
	rec := &Record{
		ID:           uuid.New(),
		Backend:      string(kind),
		Identifier:   res.Identifier(kind),
		URL:          res.URL,
		OriginalName: file.OriginalName,
		MIMEType:     file.MIMEType,
		Size:         file.Size,
		Folder:       opts.Folder,
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		// The request context may already be cancelled; the cleanup must still run.
		if del := s.store.Delete(context.WithoutCancel(ctx), rec.Identifier); !del.Success {
			s.log.Error("orphaned stored file",
				zap.String("identifier", rec.Identifier),
				zap.String("reason", del.Error),
			)
		}
		return nil, res, fmt.Errorf("record media: %w", err)
	}
	return rec, res, nil
}

// Get returns a record by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns a page of records. limit is clamped to [1, MaxListLimit] and
// defaults to DefaultListLimit; a negative offset is treated as zero.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Record, error) {
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.List(ctx, limit, offset)
}

// Remove deletes the stored file and then its record. A file the backend no
// longer has does not block removing the record.
func (s *Service) Remove(ctx context.Context, id uuid.UUID) (storage.DeleteResult, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return storage.DeleteResult{}, err
	}
	if rec.Backend != string(s.store.Kind()) {
		return storage.DeleteResult{}, fmt.Errorf("%w: %s", ErrBackendMismatch, rec.Backend)
	}

	res := s.store.Delete(ctx, rec.Identifier)
	if !res.Success && res.Code != storage.CodeNotFound {
		return res, fmt.Errorf("%w: %s", ErrStorage, res.Error)
	}
	if !res.Success {
		s.log.Warn("stored file already gone", zap.String("identifier", rec.Identifier))
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return res, err
	}
	return storage.DeleteResult{Success: true}, nil
}

// DeleteStored removes a file by its backend identifier without touching the
// catalog.
func (s *Service) DeleteStored(ctx context.Context, identifier string) storage.DeleteResult {
	return s.store.Delete(ctx, identifier)
}

// IsNotFound returns true when the error indicates a record was not found.
func (s *Service) IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
