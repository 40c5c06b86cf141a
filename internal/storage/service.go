package storage

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Recorder receives telemetry for every Save and Delete. code is empty on success.
type Recorder interface {
	RecordSave(kind Kind, duration time.Duration, sizeBytes int64, code Code)
	RecordDelete(kind Kind, duration time.Duration, code Code)
}

type nopRecorder struct{}

func (nopRecorder) RecordSave(Kind, time.Duration, int64, Code) {}
func (nopRecorder) RecordDelete(Kind, time.Duration, Code)      {}

type options struct {
	recorder Recorder
	fs       afero.Fs
}

// Option customizes a Service.
type Option func(*options)

// WithRecorder attaches a telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(o *options) {
		if r != nil {
			o.recorder = r
		}
	}
}

// WithFs replaces the filesystem used by the filesystem backend.
func WithFs(fs afero.Fs) Option {
	return func(o *options) {
		if fs != nil {
			o.fs = fs
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{recorder: nopRecorder{}, fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Service validates uploads and hands them to its backend. It only holds
// immutable configuration and reusable client handles, so it is safe for
// concurrent use.
type Service struct {
	cfg      Config
	allowed  map[string]struct{}
	backend  Backend
	recorder Recorder
	log      *zap.Logger
}

// New builds the backend selected by cfg.Kind and returns a ready Service.
// Remote clients are created here once and reused by every call. An
// unrecognized kind is not a construction error: the Service then answers
// every Save and Delete with an unsupported-storage failure.
func New(ctx context.Context, cfg Config, log *zap.Logger, opts ...Option) (*Service, error) {
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	o := buildOptions(opts)

	backend, err := newBackend(ctx, cfg, log, o)
	if err != nil {
		return nil, fmt.Errorf("init %s backend: %w", cfg.Kind, err)
	}
	return newService(cfg, backend, log, o), nil
}

// NewWithBackend wraps an already constructed backend.
func NewWithBackend(cfg Config, backend Backend, log *zap.Logger, opts ...Option) (*Service, error) {
	if backend == nil {
		return nil, errors.New("storage: nil backend")
	}
	cfg.Kind = backend.Kind()
	cfg, err := normalize(cfg)
	if err != nil {
		return nil, err
	}
	return newService(cfg, backend, log, buildOptions(opts)), nil
}

func newService(cfg Config, backend Backend, log *zap.Logger, o options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedMIMETypes))
	for _, t := range cfg.AllowedMIMETypes {
		allowed[t] = struct{}{}
	}
	return &Service{
		cfg:      cfg,
		allowed:  allowed,
		backend:  backend,
		recorder: o.recorder,
		log:      log.With(zap.String("storage", string(cfg.Kind))),
	}
}

func normalize(cfg Config) (Config, error) {
	if cfg.MaxSizeBytes <= 0 {
		return cfg, errors.New("storage: max size must be positive")
	}
	if len(cfg.AllowedMIMETypes) == 0 {
		return cfg, errors.New("storage: allowed MIME types must not be empty")
	}
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = DefaultURLPrefix
	}
	cfg.AllowedMIMETypes = append([]string(nil), cfg.AllowedMIMETypes...)
	return cfg, nil
}

func newBackend(ctx context.Context, cfg Config, log *zap.Logger, o options) (Backend, error) {
	switch cfg.Kind {
	case KindFilesystem:
		return NewLocalBackend(o.fs, cfg.UploadDir, cfg.URLPrefix)
	case KindObjectStorage:
		client, err := NewObjectClient(ctx, cfg.Object, cfg.OperationTimeout, log)
		if err != nil {
			return nil, err
		}
		return NewObjectBackend(client, cfg.Object.ACL), nil
	case KindMediaCDN:
		client, err := NewCloudinaryClient(cfg.CDN)
		if err != nil {
			return nil, err
		}
		return NewCDNBackend(client), nil
	default:
		return unsupportedBackend{kind: cfg.Kind}, nil
	}
}

// Kind returns the backend kind the service dispatches to.
func (s *Service) Kind() Kind { return s.backend.Kind() }

// Config returns a copy of the service configuration.
func (s *Service) Config() Config {
	cfg := s.cfg
	cfg.AllowedMIMETypes = append([]string(nil), s.cfg.AllowedMIMETypes...)
	return cfg
}

// Validate checks presence, MIME type and size, in that order.
func (s *Service) Validate(file *File) error {
	if file == nil {
		return ErrMissingFile
	}
	if _, ok := s.allowed[file.MIMEType]; !ok {
		return unsupportedType(file.MIMEType, s.cfg.AllowedMIMETypes)
	}
	if file.Size > s.cfg.MaxSizeBytes {
		return fileTooLarge(s.cfg.MaxSizeBytes)
	}
	return nil
}

// GenerateIdentifier is the package-level GenerateIdentifier.
func (s *Service) GenerateIdentifier(originalName, prefix string) string {
	return GenerateIdentifier(originalName, prefix)
}

// GenerateIdentifier returns {prefix}{base}-{unixMillis}-{random}{ext} for
// originalName. The extension, including its dot, is kept verbatim.
func GenerateIdentifier(originalName, prefix string) string {
	name := filepath.Base(filepath.FromSlash(originalName))
	if name == "." || name == string(filepath.Separator) {
		name = ""
	}
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	return fmt.Sprintf("%s%s-%d-%d%s", prefix, base, time.Now().UnixMilli(), rand.Intn(1_000_000_000), ext)
}

// Save validates file and stores it with the configured backend. It never
// returns an error: every failure is reported through the result.
func (s *Service) Save(ctx context.Context, file *File, opts Options) (res UploadResult) {
	start := time.Now()
	kind := s.backend.Kind()
	var size int64
	if file != nil {
		size = file.Size
	}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("save panicked", zap.Any("panic", r))
			res = uploadFailedResult(uploadFailed(fmt.Errorf("panic: %v", r)))
		}
		s.recorder.RecordSave(kind, time.Since(start), size, res.Code)
	}()

	if !kind.Valid() {
		return uploadFailedResult(unsupportedStorage(kind))
	}
	if err := s.Validate(file); err != nil {
		s.log.Debug("upload rejected", zap.Error(err))
		return uploadFailedResult(asError(err, uploadFailed))
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	obj, err := s.backend.Save(ctx, file, opts)
	if err != nil {
		se := asError(err, uploadFailed)
		s.log.Warn("upload failed",
			zap.String("name", file.OriginalName),
			zap.String("code", string(se.Code)),
			zap.Error(err),
		)
		return uploadFailedResult(se)
	}

	s.log.Info("file stored",
		zap.String("name", file.OriginalName),
		zap.Int64("size", file.Size),
		zap.String("url", obj.URL),
	)
	return uploadSucceeded(obj)
}

// Delete removes a previously stored file by the identifier its backend
// produced on Save. It never returns an error.
func (s *Service) Delete(ctx context.Context, identifier string) (res DeleteResult) {
	start := time.Now()
	kind := s.backend.Kind()

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("delete panicked", zap.Any("panic", r))
			res = deleteFailedResult(deleteFailed(fmt.Errorf("panic: %v", r)))
		}
		s.recorder.RecordDelete(kind, time.Since(start), res.Code)
	}()

	if !kind.Valid() {
		return deleteFailedResult(unsupportedStorage(kind))
	}
	if strings.TrimSpace(identifier) == "" {
		return deleteFailedResult(ErrNotFound)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.backend.Delete(ctx, identifier); err != nil {
		se := asError(err, deleteFailed)
		s.log.Warn("delete failed",
			zap.String("identifier", identifier),
			zap.String("code", string(se.Code)),
			zap.Error(err),
		)
		return deleteFailedResult(se)
	}

	s.log.Info("file deleted", zap.String("identifier", identifier))
	return DeleteResult{Success: true}
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.OperationTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.OperationTimeout)
	}
	return context.WithCancel(ctx)
}

type unsupportedBackend struct{ kind Kind }

func (b unsupportedBackend) Kind() Kind { return b.kind }

func (b unsupportedBackend) Save(context.Context, *File, Options) (*Object, error) {
	return nil, unsupportedStorage(b.kind)
}

func (b unsupportedBackend) Delete(context.Context, string) error {
	return unsupportedStorage(b.kind)
}
