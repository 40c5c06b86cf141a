// Package profile maps a deployment environment tag to the storage profile the
// media service runs with.
package profile

import (
	"github.com/edulms/media/internal/storage"
)

// Environment tags.
const (
	Development = "development"
	Production  = "production"
	Testing     = "testing"
)

const mib = 1024 * 1024

// Profile is the storage setup for one environment. Treat it as a value.
type Profile struct {
	Kind             storage.Kind
	UploadDir        string
	MaxSizeBytes     int64
	AllowedMIMETypes []string
}

var imageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var profiles = map[string]Profile{
	Development: {
		Kind:             storage.KindFilesystem,
		UploadDir:        "./uploads",
		MaxSizeBytes:     5 * mib,
		AllowedMIMETypes: imageTypes,
	},
	Production: {
		Kind:             storage.KindMediaCDN,
		MaxSizeBytes:     10 * mib,
		AllowedMIMETypes: imageTypes,
	},
	// Narrower than the others so test fixtures stay small and predictable.
	Testing: {
		Kind:             storage.KindFilesystem,
		UploadDir:        "./test-uploads",
		MaxSizeBytes:     1 * mib,
		AllowedMIMETypes: []string{"image/jpeg", "image/png"},
	},
}

// Resolve returns the profile for env. Unknown or empty tags get the
// development profile.
func Resolve(env string) Profile {
	p, ok := profiles[env]
	if !ok {
		p = profiles[Development]
	}
	p.AllowedMIMETypes = append([]string(nil), p.AllowedMIMETypes...)
	return p
}

// Known reports whether env is one of the recognized tags.
func Known(env string) bool {
	_, ok := profiles[env]
	return ok
}

// StorageConfig converts the profile into a storage configuration. Remote
// credentials and timeouts are filled in by the caller.
func (p Profile) StorageConfig() storage.Config {
	return storage.Config{
		Kind:             p.Kind,
		UploadDir:        p.UploadDir,
		URLPrefix:        storage.DefaultURLPrefix,
		MaxSizeBytes:     p.MaxSizeBytes,
		AllowedMIMETypes: append([]string(nil), p.AllowedMIMETypes...),
	}
}
