package storage

// UploadResult is the outcome of Service.Save. Either Success is true and the
// locator fields are set, or Success is false and Error carries the reason.
type UploadResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url,omitempty"`

	Filename string `json:"filename,omitempty"`
	Path     string `json:"path,omitempty"`

	PublicID string `json:"publicId,omitempty"`
	Format   string `json:"format,omitempty"`

	Key  string `json:"key,omitempty"`
	ETag string `json:"etag,omitempty"`

	Error string `json:"error,omitempty"`
	Code  Code   `json:"code,omitempty"`
}

// Identifier returns the value Service.Delete expects for this upload.
func (r UploadResult) Identifier(kind Kind) string {
	switch kind {
	case KindFilesystem:
		return r.Path
	case KindMediaCDN:
		return r.PublicID
	case KindObjectStorage:
		return r.Key
	}
	return ""
}

// DeleteResult is the outcome of Service.Delete.
type DeleteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    Code   `json:"code,omitempty"`
}

func uploadSucceeded(obj *Object) UploadResult {
	return UploadResult{
		Success:  true,
		URL:      obj.URL,
		Filename: obj.Filename,
		Path:     obj.Path,
		PublicID: obj.PublicID,
		Format:   obj.Format,
		Key:      obj.Key,
		ETag:     obj.ETag,
	}
}

func uploadFailedResult(e *Error) UploadResult {
	return UploadResult{Success: false, Error: e.Message, Code: e.Code}
}

func deleteFailedResult(e *Error) DeleteResult {
	return DeleteResult{Success: false, Error: e.Message, Code: e.Code}
}
