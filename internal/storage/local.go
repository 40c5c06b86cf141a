package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// identifierAttempts bounds how often Save regenerates an identifier that
// already exists on disk.
const identifierAttempts = 3

// LocalBackend stores files under a directory of the local filesystem.
type LocalBackend struct {
	fs        afero.Fs
	root      string
	urlPrefix string
}

// NewLocalBackend returns a backend rooted at dir. Relative dirs are resolved
// against the working directory once, here.
func NewLocalBackend(fs afero.Fs, dir, urlPrefix string) (*LocalBackend, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if dir == "" {
		return nil, errors.New("storage: upload directory is required for the filesystem backend")
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve upload dir %q: %w", dir, err)
	}
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	return &LocalBackend{fs: fs, root: root, urlPrefix: urlPrefix}, nil
}

func (b *LocalBackend) Kind() Kind { return KindFilesystem }

// Root returns the absolute upload directory.
func (b *LocalBackend) Root() string { return b.root }

// Save writes file under root/opts.Subfolder. The returned Path is relative to
// root with forward slashes and is what Delete expects back.
func (b *LocalBackend) Save(_ context.Context, file *File, opts Options) (*Object, error) {
	sub := cleanSubfolder(opts.Subfolder)
	dir := filepath.Join(b.root, filepath.FromSlash(sub))
	if !within(b.root, dir) {
		return nil, ErrInvalidPath
	}
	if err := b.fs.MkdirAll(dir, 0o755); err != nil {
		return nil, uploadFailed(fmt.Errorf("create directory: %w", err))
	}

	var (
		name string
		f    afero.File
		err  error
	)
	for i := 0; i < identifierAttempts; i++ {
		name = GenerateIdentifier(file.OriginalName, "")
		f, err = b.fs.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil || !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return nil, uploadFailed(fmt.Errorf("create file: %w", err))
	}

	if _, err := f.Write(file.Content); err != nil {
		_ = f.Close()
		_ = b.fs.Remove(f.Name())
		return nil, uploadFailed(fmt.Errorf("write file: %w", err))
	}
	if err := f.Close(); err != nil {
		return nil, uploadFailed(fmt.Errorf("close file: %w", err))
	}

	rel := path.Join(sub, name)
	return &Object{
		URL:      path.Join(b.urlPrefix, rel),
		Filename: name,
		Path:     rel,
	}, nil
}

// Delete removes the file at identifier, which is either the Path returned by
// Save or its URL form starting with the URL prefix. Identifiers resolving
// outside the upload root are refused.
func (b *LocalBackend) Delete(_ context.Context, identifier string) error {
	full, err := b.resolve(identifier)
	if err != nil {
		return err
	}

	info, err := b.fs.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return deleteFailed(err)
	}
	if info.IsDir() {
		return ErrInvalidPath
	}

	if err := b.fs.Remove(full); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		return deleteFailed(err)
	}
	return nil
}

func (b *LocalBackend) resolve(identifier string) (string, error) {
	rel := filepath.ToSlash(identifier)
	prefix := strings.TrimSuffix(b.urlPrefix, "/") + "/"
	rel = strings.TrimPrefix(rel, prefix)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "", ErrInvalidPath
	}

	full := filepath.Join(b.root, filepath.FromSlash(rel))
	if full == b.root || !within(b.root, full) {
		return "", ErrInvalidPath
	}
	return full, nil
}

// cleanSubfolder normalizes a caller-supplied subfolder to a relative slash path.
func cleanSubfolder(sub string) string {
	sub = path.Clean("/" + filepath.ToSlash(sub))
	return strings.TrimPrefix(sub, "/")
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
