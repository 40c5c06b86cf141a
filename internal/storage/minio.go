package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioClient implements ObjectClient with minio-go. It works with any
// S3-compatible provider (MinIO, ArvanCloud, AWS S3).
type MinioClient struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// NewMinioClient creates the client, makes sure the bucket exists and, when
// objects are meant to be public-read, installs an anonymous GET policy.
func NewMinioClient(ctx context.Context, cfg ObjectConfig, timeout time.Duration, log *zap.Logger) (*MinioClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	}
	if timeout > 0 {
		tr, err := minio.DefaultTransport(secure)
		if err != nil {
			return nil, fmt.Errorf("create minio transport: %w", err)
		}
		tr.ResponseHeaderTimeout = timeout
		opts.Transport = tr
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
		log.Info("created bucket", zap.String("bucket", cfg.Bucket))
	}

	if cfg.ACL == DefaultObjectACL {
		if err := client.SetBucketPolicy(ctx, cfg.Bucket, publicReadPolicy(cfg.Bucket)); err != nil {
			return nil, fmt.Errorf("set bucket policy: %w", err)
		}
	}

	publicBase := cfg.PublicBase
	if publicBase == "" {
		scheme := "http"
		if secure {
			scheme = "https"
		}
		publicBase = scheme + "://" + endpoint + "/" + cfg.Bucket
	}

	return &MinioClient{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

// PutObject streams body to the bucket. size must be the exact byte count.
func (c *MinioClient) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) (string, error) {
	opts := minio.PutObjectOptions{ContentType: contentType}
	if acl != "" {
		opts.UserMetadata = map[string]string{"x-amz-acl": acl}
	}
	info, err := c.client.PutObject(ctx, c.bucket, key, body, size, opts)
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return info.ETag, nil
}

// RemoveObject removes the object at key from the bucket.
func (c *MinioClient) RemoveObject(ctx context.Context, key string) error {
	if err := c.client.RemoveObject(ctx, c.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %q: %w", key, err)
	}
	return nil
}

// PublicURL returns the browser-accessible URL for the given key.
// For local MinIO: "http://localhost:9000/media/avatars/photo-….png"
func (c *MinioClient) PublicURL(key string) string {
	return c.publicBase + "/" + key
}

// splitEndpoint accepts both "host:port" and "scheme://host:port"; a scheme
// overrides useSSL.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return u.Host, u.Scheme == "https"
	}
	return endpoint, useSSL
}

// publicReadPolicy returns an S3 bucket policy JSON that allows anonymous GET on all objects.
func publicReadPolicy(bucket string) string {
	policy := map[string]interface{}{
		"Version": "2012-10-17",
		"Statement": []map[string]interface{}{
			{
				"Effect":    "Allow",
				"Principal": "*",
				"Action":    "s3:GetObject",
				"Resource":  fmt.Sprintf("arn:aws:s3:::%s/*", bucket),
			},
		},
	}
	b, _ := json.Marshal(policy)
	return string(b)
}
