// Package storage persists uploaded media files through one of three interchangeable
// backends: the local filesystem, an S3-compatible object store, or a media CDN.
// The backend is picked once at construction from the resolved Config; callers only
// ever see Service.Save and Service.Delete and the uniform result shapes they return.
package storage

import (
	"context"
	"time"
)

// Kind names a storage backend.
type Kind string

const (
	KindFilesystem    Kind = "filesystem"
	KindObjectStorage Kind = "object-storage"
	KindMediaCDN      Kind = "media-cdn"
)

// Valid reports whether k is one of the supported backends.
func (k Kind) Valid() bool {
	switch k {
	case KindFilesystem, KindObjectStorage, KindMediaCDN:
		return true
	}
	return false
}

// DefaultURLPrefix is the web path the HTTP layer serves filesystem uploads under.
const DefaultURLPrefix = "/uploads"

// File is an uploaded file as handed over by the caller. The service never keeps it.
type File struct {
	OriginalName string
	MIMEType     string
	Size         int64
	Content      []byte
}

// Options controls where a file is placed. Folder is used by the remote backends,
// Subfolder by the filesystem backend.
type Options struct {
	Folder    string
	Subfolder string
}

// Object describes a stored file as reported by a backend.
type Object struct {
	URL string

	// filesystem
	Filename string
	Path     string

	// media CDN
	PublicID string
	Format   string

	// object storage
	Key  string
	ETag string
}

// Backend is one persistence strategy. Delete takes the identifier the same backend
// produced on Save: Path for the filesystem, PublicID for the CDN, Key for object storage.
type Backend interface {
	Kind() Kind
	Save(ctx context.Context, file *File, opts Options) (*Object, error)
	Delete(ctx context.Context, identifier string) error
}

// Config is everything needed to build a Service.
type Config struct {
	Kind             Kind
	UploadDir        string
	URLPrefix        string
	MaxSizeBytes     int64
	AllowedMIMETypes []string

	// OperationTimeout bounds a single backend call. Zero means no limit.
	OperationTimeout time.Duration

	Object ObjectConfig
	CDN    CDNConfig
}

// ObjectDriver selects the client library used to talk to object storage.
type ObjectDriver string

const (
	DriverMinio ObjectDriver = "minio"
	DriverAWS   ObjectDriver = "aws"
)

// ObjectConfig configures the S3-compatible backend.
type ObjectConfig struct {
	Driver    ObjectDriver
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool

	// PublicBase is the browser-facing base URL for objects. When empty the
	// driver derives one from the endpoint and bucket.
	PublicBase string

	// ACL is the canned ACL applied to every uploaded object ("public-read",
	// "private", ...). Empty leaves the bucket default in place.
	ACL string
}

// DefaultObjectACL is applied when no ACL is configured explicitly.
const DefaultObjectACL = "public-read"

// CDNConfig holds the media CDN account credentials.
type CDNConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}
