package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ObjectClient is the slice of an S3-compatible SDK the object backend needs.
type ObjectClient interface {
	// PutObject uploads body under key and returns the object's ETag.
	PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) (etag string, err error)
	// RemoveObject deletes key. Deleting a missing key is not an error.
	RemoveObject(ctx context.Context, key string) error
	// PublicURL returns the browser-accessible URL for key.
	PublicURL(key string) string
}

// NewObjectClient builds the client for cfg.Driver. Missing credentials or
// bucket are reported here rather than on the first upload.
func NewObjectClient(ctx context.Context, cfg ObjectConfig, timeout time.Duration, log *zap.Logger) (ObjectClient, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("object storage bucket is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, errors.New("object storage credentials are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	switch cfg.Driver {
	case DriverMinio, "":
		return NewMinioClient(ctx, cfg, timeout, log)
	case DriverAWS:
		return NewS3Client(ctx, cfg, timeout)
	default:
		return nil, fmt.Errorf("unknown object storage driver %q", cfg.Driver)
	}
}

// ObjectBackend stores files in an S3-compatible bucket.
type ObjectBackend struct {
	client ObjectClient
	acl    string
}

// NewObjectBackend returns a backend uploading through client with the given
// canned ACL. An empty acl leaves the bucket default in place.
func NewObjectBackend(client ObjectClient, acl string) *ObjectBackend {
	return &ObjectBackend{client: client, acl: acl}
}

func (b *ObjectBackend) Kind() Kind { return KindObjectStorage }

// Save uploads file as folder/identifier (or identifier when no folder is given).
func (b *ObjectBackend) Save(ctx context.Context, file *File, opts Options) (*Object, error) {
	key := objectKey(opts.Folder, GenerateIdentifier(file.OriginalName, ""))

	etag, err := b.client.PutObject(ctx, key, bytes.NewReader(file.Content), int64(len(file.Content)), file.MIMEType, b.acl)
	if err != nil {
		return nil, uploadFailed(err)
	}

	return &Object{
		URL:  b.client.PublicURL(key),
		Key:  key,
		ETag: strings.Trim(etag, `"`),
	}, nil
}

// Delete removes key. The store does not tell "already gone" from "deleted".
func (b *ObjectBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.RemoveObject(ctx, key); err != nil {
		return deleteFailed(err)
	}
	return nil
}

func objectKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
