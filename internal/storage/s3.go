package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const defaultRegion = "us-east-1"

// S3Client implements ObjectClient with the AWS SDK. A custom endpoint switches
// it to path-style addressing for S3-compatible stores.
type S3Client struct {
	client     *s3.Client
	bucket     string
	publicBase string
}

// NewS3Client loads an AWS config with static credentials and builds the client.
func NewS3Client(ctx context.Context, cfg ObjectConfig, timeout time.Duration) (*S3Client, error) {
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	}
	if timeout > 0 {
		loadOpts = append(loadOpts, awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := ""
	if cfg.Endpoint != "" {
		host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
		scheme := "http"
		if secure {
			scheme = "https"
		}
		endpoint = scheme + "://" + host
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})

	publicBase := cfg.PublicBase
	switch {
	case publicBase != "":
	case endpoint != "":
		publicBase = endpoint + "/" + cfg.Bucket
	default:
		publicBase = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, region)
	}

	return &S3Client{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
	}, nil
}

func (c *S3Client) PutObject(ctx context.Context, key string, body io.Reader, size int64, contentType, acl string) (string, error) {
	in := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	}
	if acl != "" {
		in.ACL = types.ObjectCannedACL(acl)
	}

	out, err := c.client.PutObject(ctx, in)
	if err != nil {
		return "", fmt.Errorf("put object %q: %w", key, err)
	}
	return aws.ToString(out.ETag), nil
}

func (c *S3Client) RemoveObject(ctx context.Context, key string) error {
	_, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %q: %w", key, err)
	}
	return nil
}

func (c *S3Client) PublicURL(key string) string {
	return c.publicBase + "/" + key
}
