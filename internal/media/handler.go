package media

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edulms/media/internal/response"
	"github.com/edulms/media/internal/storage"
)

const (
	// multipartOverhead is allowed on top of the file size limit for form
	// boundaries and the other fields, so a slightly oversized file still
	// reaches validation and gets its descriptive error.
	multipartOverhead = 1 << 20
	multipartMemory   = 8 << 20
)

// Handler holds HTTP handlers for media endpoints.
type Handler struct {
	svc       *Service
	maxUpload int64
	log       *zap.Logger
}

// NewHandler creates a new media Handler. maxUpload is the storage size limit
// in bytes.
func NewHandler(svc *Service, maxUpload int64, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc: svc, maxUpload: maxUpload, log: log}
}

// Routes mounts the media endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/media", func(r chi.Router) {
		r.Post("/", h.Upload)
		r.Get("/", h.List)
		r.Get("/{id}", h.Get)
		r.Delete("/{id}", h.Delete)
	})
	r.Delete("/storage", h.DeleteStored)
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	Media   *Record              `json:"media"`
	Storage storage.UploadResult `json:"storage"`
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Validates the file against the active environment profile, stores it with the configured backend and records it in the catalog.
//	@Tags			media
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file		formData	file	true	"File to upload"
//	@Param			folder		formData	string	false	"Destination folder (object storage and media CDN)"
//	@Param			subfolder	formData	string	false	"Destination subfolder (filesystem)"
//	@Success		201			{object}	response.Envelope{data=UploadResponse}
//	@Failure		400			{object}	response.Envelope
//	@Failure		413			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/media [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(w, http.StatusRequestEntityTooLarge, "request body too large", string(storage.CodeFileTooLarge))
			return
		}
		response.BadRequest(w, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, err := formFile(r)
	if err != nil {
		response.BadRequest(w, "could not read uploaded file")
		return
	}

	opts := storage.Options{
		Folder:    r.FormValue("folder"),
		Subfolder: r.FormValue("subfolder"),
	}

	rec, res, err := h.svc.Upload(r.Context(), file, opts)
	if err != nil {
		if errors.Is(err, ErrStorage) {
			response.Fail(w, StatusFor(res.Code), res.Error, string(res.Code))
			return
		}
		h.log.Error("upload media", zap.Error(err))
		response.InternalError(w)
		return
	}

	response.Created(w, UploadResponse{Media: rec, Storage: res})
}

// List godoc
//
//	@Summary		List media
//	@Description	Returns catalog records, newest first.
//	@Tags			media
//	@Produce		json
//	@Param			limit	query		int	false	"Page size (1-100, default 20)"
//	@Param			offset	query		int	false	"Records to skip"
//	@Success		200		{object}	response.Envelope{data=[]Record}
//	@Failure		400		{object}	response.Envelope
//	@Failure		500		{object}	response.Envelope
//	@Router			/media [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		response.BadRequest(w, "limit must be an integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		response.BadRequest(w, "offset must be an integer")
		return
	}

	records, err := h.svc.List(r.Context(), limit, offset)
	if err != nil {
		h.log.Error("list media", zap.Error(err))
		response.InternalError(w)
		return
	}
	response.OK(w, records)
}

// Get godoc
//
//	@Summary		Get media
//	@Tags			media
//	@Produce		json
//	@Param			id	path		string	true	"Media ID"
//	@Success		200	{object}	response.Envelope{data=Record}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/media/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.svc.Get(r.Context(), id)
	if err != nil {
		if h.svc.IsNotFound(err) {
			response.NotFound(w, "media not found")
			return
		}
		h.log.Error("get media", zap.Error(err))
		response.InternalError(w)
		return
	}
	response.OK(w, rec)
}

// Delete godoc
//
//	@Summary		Delete media
//	@Description	Removes the stored file and its catalog record.
//	@Tags			media
//	@Produce		json
//	@Param			id	path		string	true	"Media ID"
//	@Success		200	{object}	response.Envelope{data=storage.DeleteResult}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		409	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/media/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	res, err := h.svc.Remove(r.Context(), id)
	switch {
	case err == nil:
		response.OK(w, res)
	case h.svc.IsNotFound(err):
		response.NotFound(w, "media not found")
	case errors.Is(err, ErrBackendMismatch):
		response.Conflict(w, err.Error())
	case errors.Is(err, ErrStorage):
		response.Fail(w, StatusFor(res.Code), res.Error, string(res.Code))
	default:
		h.log.Error("delete media", zap.Error(err))
		response.InternalError(w)
	}
}

// DeleteStored godoc
//
//	@Summary		Delete a stored file
//	@Description	Deletes a file by the identifier its backend returned on upload (relative path, public id or object key). The catalog is not touched.
//	@Tags			storage
//	@Produce		json
//	@Param			identifier	query		string	true	"Backend identifier"
//	@Success		200			{object}	response.Envelope{data=storage.DeleteResult}
//	@Failure		400			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		502			{object}	response.Envelope
//	@Router			/storage [delete]
func (h *Handler) DeleteStored(w http.ResponseWriter, r *http.Request) {
	res := h.svc.DeleteStored(r.Context(), r.URL.Query().Get("identifier"))
	if !res.Success {
		response.Fail(w, StatusFor(res.Code), res.Error, string(res.Code))
		return
	}
	response.OK(w, res)
}

// StatusFor maps a storage failure code to an HTTP status.
func StatusFor(code storage.Code) int {
	switch code {
	case storage.CodeMissingFile, storage.CodeUnsupportedType, storage.CodeInvalidPath:
		return http.StatusBadRequest
	case storage.CodeFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case storage.CodeNotFound:
		return http.StatusNotFound
	case storage.CodeUploadFailed, storage.CodeDeleteFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// formFile reads the "file" part. A request without one yields a nil file so
// that storage validation reports it.
func formFile(r *http.Request) (*storage.File, error) {
	f, hdr, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	mimeType, _, _ := strings.Cut(hdr.Header.Get("Content-Type"), ";")
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		mimeType, _, _ = strings.Cut(http.DetectContentType(content), ";")
	}

	return &storage.File{
		OriginalName: hdr.Filename,
		MIMEType:     mimeType,
		Size:         int64(len(content)),
		Content:      content,
	}, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		response.BadRequest(w, "invalid media id")
		return uuid.Nil, false
	}
	return id, true
}
