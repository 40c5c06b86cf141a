package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// autoTransformation asks the CDN to pick quality and delivery format itself.
const autoTransformation = "q_auto,f_auto"

// destroyOK is the only destroy response that confirms a deletion.
const destroyOK = "ok"

// CDNClient is the part of the Cloudinary upload API the CDN backend uses.
type CDNClient interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
	Destroy(ctx context.Context, params uploader.DestroyParams) (*uploader.DestroyResult, error)
}

// NewCloudinaryClient authenticates against the account in cfg. The returned
// client is reused for every upload.
func NewCloudinaryClient(cfg CDNConfig) (CDNClient, error) {
	if cfg.CloudName == "" || cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, errors.New("media CDN credentials are required (cloud name, api key, api secret)")
	}
	cld, err := cloudinary.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
	if err != nil {
		return nil, fmt.Errorf("create cloudinary client: %w", err)
	}
	return &cld.Upload, nil
}

// CDNBackend stores files on a media CDN that assigns identifiers itself.
type CDNBackend struct {
	client CDNClient
}

func NewCDNBackend(client CDNClient) *CDNBackend {
	return &CDNBackend{client: client}
}

func (b *CDNBackend) Kind() Kind { return KindMediaCDN }

// Save streams the bytes into opts.Folder and reports the remote secure URL,
// public id and format.
func (b *CDNBackend) Save(ctx context.Context, file *File, opts Options) (*Object, error) {
	resp, err := b.client.Upload(ctx, bytes.NewReader(file.Content), uploader.UploadParams{
		Folder:         opts.Folder,
		Transformation: autoTransformation,
	})
	if err != nil {
		return nil, uploadFailed(err)
	}
	if resp == nil {
		return nil, uploadFailed(errors.New("empty response from media CDN"))
	}
	if resp.Error.Message != "" {
		return nil, uploadFailed(errors.New(resp.Error.Message))
	}
	if resp.PublicID == "" {
		return nil, uploadFailed(errors.New("media CDN returned no public id"))
	}

	return &Object{
		URL:      resp.SecureURL,
		PublicID: resp.PublicID,
		Format:   resp.Format,
	}, nil
}

// Delete destroys publicID. Anything but an explicit "ok" counts as failure.
func (b *CDNBackend) Delete(ctx context.Context, publicID string) error {
	resp, err := b.client.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return deleteFailed(err)
	}
	if resp == nil {
		return deleteFailed(errors.New("empty response from media CDN"))
	}
	if resp.Error.Message != "" {
		return deleteFailed(errors.New(resp.Error.Message))
	}
	if resp.Result != destroyOK {
		return deleteFailed(fmt.Errorf("media CDN answered %q", resp.Result))
	}
	return nil
}
