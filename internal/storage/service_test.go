package storage

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
)

var imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

func testConfig() Config {
	return Config{
		Kind:             KindFilesystem,
		UploadDir:        "/srv/uploads",
		MaxSizeBytes:     5 * 1024 * 1024,
		AllowedMIMETypes: imageTypes,
	}
}

func pngFile(size int64) *File {
	return &File{
		OriginalName: "photo.png",
		MIMEType:     "image/png",
		Size:         size,
		Content:      make([]byte, size),
	}
}

// stubBackend is a Backend whose behavior is set per test.
type stubBackend struct {
	kind   Kind
	save   func(ctx context.Context, file *File, opts Options) (*Object, error)
	delete func(ctx context.Context, id string) error
}

func (b *stubBackend) Kind() Kind { return b.kind }

func (b *stubBackend) Save(ctx context.Context, file *File, opts Options) (*Object, error) {
	return b.save(ctx, file, opts)
}

func (b *stubBackend) Delete(ctx context.Context, id string) error {
	return b.delete(ctx, id)
}

type recordedOp struct {
	op   string
	kind Kind
	size int64
	code Code
}

type fakeRecorder struct {
	mu  sync.Mutex
	ops []recordedOp
}

func (r *fakeRecorder) RecordSave(kind Kind, _ time.Duration, size int64, code Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: "save", kind: kind, size: size, code: code})
}

func (r *fakeRecorder) RecordDelete(kind Kind, _ time.Duration, code Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, recordedOp{op: "delete", kind: kind, code: code})
}

func newMemService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{WithFs(afero.NewMemMapFs())}, opts...)
	svc, err := New(context.Background(), testConfig(), nil, opts...)
	require.NoError(t, err)
	return svc
}

func TestNew_RejectsInvalidLimits(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSizeBytes = 0
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg = testConfig()
	cfg.AllowedMIMETypes = nil
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestNew_MissingRemoteCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.Kind = KindMediaCDN
	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)

	cfg.Kind = KindObjectStorage
	cfg.Object = ObjectConfig{Bucket: "media"}
	_, err = New(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	svc := newMemService(t)

	tests := []struct {
		name    string
		file    *File
		wantErr error
		wantMsg string
	}{
		{name: "missing file", file: nil, wantErr: ErrMissingFile, wantMsg: "No file provided"},
		{
			name:    "type is checked before size",
			file:    &File{OriginalName: "doc.pdf", MIMEType: "application/pdf", Size: 50 * 1024 * 1024},
			wantErr: ErrUnsupportedType,
		},
		{
			name:    "too large",
			file:    pngFile(6 * 1024 * 1024),
			wantErr: ErrFileTooLarge,
			wantMsg: "File too large. Maximum size is 5MB",
		},
		{name: "exactly at the limit", file: pngFile(5 * 1024 * 1024)},
		{name: "valid", file: pngFile(200 * 1024)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Validate(tt.file)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantMsg != "" {
				require.Equal(t, tt.wantMsg, err.Error())
			}
		})
	}
}

func TestValidate_UnsupportedTypeListsAllowed(t *testing.T) {
	svc := newMemService(t)
	err := svc.Validate(&File{OriginalName: "a.pdf", MIMEType: "application/pdf", Size: 10})
	require.ErrorIs(t, err, ErrUnsupportedType)
	require.Contains(t, err.Error(), "application/pdf")
	require.Contains(t, err.Error(), "image/webp")
}

func TestGenerateIdentifier(t *testing.T) {
	tests := []struct {
		name, original, prefix string
		pattern                string
	}{
		{name: "keeps extension", original: "photo.png", pattern: `^photo-\d+-\d+\.png$`},
		{name: "prefix", original: "photo.png", prefix: "avatar-", pattern: `^avatar-photo-\d+-\d+\.png$`},
		{name: "no extension", original: "README", pattern: `^README-\d+-\d+$`},
		{name: "last extension only", original: "archive.tar.gz", pattern: `^archive\.tar-\d+-\d+\.gz$`},
		{name: "extension case kept", original: "Scan.JPG", pattern: `^Scan-\d+-\d+\.JPG$`},
		{name: "directories dropped", original: "../../etc/passwd", pattern: `^passwd-\d+-\d+$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Regexp(t, regexp.MustCompile(tt.pattern), GenerateIdentifier(tt.original, tt.prefix))
		})
	}
}

func TestGenerateIdentifier_Unique(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		seen[GenerateIdentifier("photo.png", "")] = struct{}{}
	}
	require.Len(t, seen, 1000)
}

func TestSave_UnsupportedKind(t *testing.T) {
	cfg := testConfig()
	cfg.Kind = "ftp"
	rec := &fakeRecorder{}
	svc, err := New(context.Background(), cfg, nil, WithRecorder(rec))
	require.NoError(t, err)

	// Reported even for input that would fail validation.
	res := svc.Save(context.Background(), nil, Options{})
	require.False(t, res.Success)
	require.Equal(t, "Unsupported storage type: ftp", res.Error)
	require.Equal(t, CodeUnsupportedStorage, res.Code)

	del := svc.Delete(context.Background(), "photo.png")
	require.False(t, del.Success)
	require.Equal(t, "Unsupported storage type: ftp", del.Error)

	require.Len(t, rec.ops, 2)
	require.Equal(t, CodeUnsupportedStorage, rec.ops[0].code)
}

func TestSave_ValidationFailureSkipsBackend(t *testing.T) {
	called := false
	backend := &stubBackend{
		kind: KindObjectStorage,
		save: func(context.Context, *File, Options) (*Object, error) {
			called = true
			return &Object{}, nil
		},
	}
	svc, err := NewWithBackend(testConfig(), backend, nil)
	require.NoError(t, err)

	res := svc.Save(context.Background(), &File{OriginalName: "a.pdf", MIMEType: "application/pdf", Size: 1}, Options{})
	require.False(t, res.Success)
	require.Equal(t, CodeUnsupportedType, res.Code)
	require.Empty(t, res.URL)
	require.False(t, called)
}

func TestSave_BackendErrorBecomesResult(t *testing.T) {
	backend := &stubBackend{
		kind: KindObjectStorage,
		save: func(context.Context, *File, Options) (*Object, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc, err := NewWithBackend(testConfig(), backend, nil)
	require.NoError(t, err)

	res := svc.Save(context.Background(), pngFile(10), Options{})
	require.False(t, res.Success)
	require.Equal(t, CodeUploadFailed, res.Code)
	require.Equal(t, "Upload failed: connection refused", res.Error)
}

func TestSave_RecoversPanic(t *testing.T) {
	backend := &stubBackend{
		kind: KindMediaCDN,
		save: func(context.Context, *File, Options) (*Object, error) {
			panic("sdk bug")
		},
		delete: func(context.Context, string) error {
			panic("sdk bug")
		},
	}
	rec := &fakeRecorder{}
	svc, err := NewWithBackend(testConfig(), backend, nil, WithRecorder(rec))
	require.NoError(t, err)

	res := svc.Save(context.Background(), pngFile(10), Options{})
	require.False(t, res.Success)
	require.Equal(t, CodeUploadFailed, res.Code)
	require.Contains(t, res.Error, "sdk bug")

	del := svc.Delete(context.Background(), "media/x")
	require.False(t, del.Success)
	require.Equal(t, CodeDeleteFailed, del.Code)

	require.Len(t, rec.ops, 2)
	require.Equal(t, CodeUploadFailed, rec.ops[0].code)
	require.Equal(t, CodeDeleteFailed, rec.ops[1].code)
}

func TestSave_AppliesOperationTimeout(t *testing.T) {
	var deadline time.Time
	var hasDeadline bool
	backend := &stubBackend{
		kind: KindMediaCDN,
		save: func(ctx context.Context, _ *File, _ Options) (*Object, error) {
			deadline, hasDeadline = ctx.Deadline()
			return &Object{URL: "https://cdn/x.png", PublicID: "x", Format: "png"}, nil
		},
	}
	cfg := testConfig()
	cfg.OperationTimeout = time.Minute
	svc, err := NewWithBackend(cfg, backend, nil)
	require.NoError(t, err)

	res := svc.Save(context.Background(), pngFile(10), Options{})
	require.True(t, res.Success)
	require.True(t, hasDeadline)
	require.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
}

func TestSave_SuccessRecordsSize(t *testing.T) {
	rec := &fakeRecorder{}
	svc := newMemService(t, WithRecorder(rec))

	res := svc.Save(context.Background(), pngFile(128), Options{Subfolder: "avatars"})
	require.True(t, res.Success)
	require.Empty(t, res.Error)
	require.Empty(t, res.Code)

	require.Equal(t, []recordedOp{{op: "save", kind: KindFilesystem, size: 128}}, rec.ops)
}

func TestDelete_EmptyIdentifier(t *testing.T) {
	svc := newMemService(t)
	res := svc.Delete(context.Background(), "  ")
	require.False(t, res.Success)
	require.Equal(t, CodeNotFound, res.Code)
	require.Equal(t, "File not found", res.Error)
}

func TestSave_Concurrent(t *testing.T) {
	svc := newMemService(t)

	const n = 32
	results := make([]UploadResult, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = svc.Save(context.Background(), pngFile(64), Options{Subfolder: "avatars"})
		}(i)
	}
	wg.Wait()

	paths := make(map[string]struct{}, n)
	for _, res := range results {
		require.True(t, res.Success, res.Error)
		paths[res.Path] = struct{}{}
	}
	require.Len(t, paths, n)
}

func TestConfig_ReturnsCopy(t *testing.T) {
	svc := newMemService(t)
	cfg := svc.Config()
	cfg.AllowedMIMETypes[0] = "text/plain"
	require.Equal(t, "image/jpeg", svc.Config().AllowedMIMETypes[0])
	require.Equal(t, DefaultURLPrefix, cfg.URLPrefix)
	require.Equal(t, KindFilesystem, svc.Kind())
}

func TestUploadResult_Identifier(t *testing.T) {
	res := UploadResult{Path: "avatars/a.png", PublicID: "lms/a", Key: "lms/a.png"}
	require.Equal(t, "avatars/a.png", res.Identifier(KindFilesystem))
	require.Equal(t, "lms/a", res.Identifier(KindMediaCDN))
	require.Equal(t, "lms/a.png", res.Identifier(KindObjectStorage))
	require.Empty(t, res.Identifier("ftp"))
}
