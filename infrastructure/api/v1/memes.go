// Package v1 provides the HTTP handlers of the meme selector API.
package v1

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/memevault/memevault"
	"github.com/memevault/memevault/application/service"
	"github.com/memevault/memevault/infrastructure/api/jsonapi"
	"github.com/memevault/memevault/infrastructure/api/middleware"
	"github.com/memevault/memevault/infrastructure/api/v1/dto"
	"github.com/memevault/memevault/infrastructure/persistence"
)

// MaxUploadSize bounds the body of image uploads.
const MaxUploadSize = 20 << 20

// ResourceTypeMeme is the JSON:API type of catalog entries.
const ResourceTypeMeme = "meme"

var errUploadsDisabled = middleware.NewServerError(http.StatusServiceUnavailable, "Uploads are disabled.")

// MemeURL returns the web path of an uploaded meme.
func MemeURL(basePath, filename string) string {
	return strings.TrimRight(basePath, "/") + "/memes/" + url.PathEscape(filename)
}

// MemesRouter handles uploads and serving of uploaded memes.
type MemesRouter struct {
	client   *memevault.Client
	basePath string
	logger   *slog.Logger
}

// NewMemesRouter creates a new MemesRouter. basePath prefixes the links it returns.
func NewMemesRouter(client *memevault.Client, basePath string) *MemesRouter {
	return &MemesRouter{
		client:   client,
		basePath: basePath,
		logger:   client.Logger(),
	}
}

// UploadRoutes returns the router for POST /upload.
func (r *MemesRouter) UploadRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Upload)
	return router
}

// Routes returns the router for /memes.
func (r *MemesRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", r.List)
	router.Get("/{filename}", r.File)
	router.Head("/{filename}", r.File)
	return router
}

func (r *MemesRouter) uploads() (*service.Uploads, error) {
	if r.client.Uploads == nil {
		return nil, errUploadsDisabled
	}
	return r.client.Uploads, nil
}

// Upload handles POST /upload. The multipart field "file" holds the image.
func (r *MemesRouter) Upload(w http.ResponseWriter, req *http.Request) {
	uploads, err := r.uploads()
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	name, data, err := readImage(w, req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	upload, err := uploads.Upload(req.Context(), name, data)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.UploadResponse{
		Filename:    upload.Filename(),
		Description: upload.Description(),
		Status:      dto.StatusIndexed,
	})
}

// File handles GET /memes/{filename}.
func (r *MemesRouter) File(w http.ResponseWriter, req *http.Request) {
	uploads, err := r.uploads()
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	filename := chi.URLParam(req, "filename")
	data, err := uploads.Open(filename)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	http.ServeContent(w, req, filename, time.Time{}, bytes.NewReader(data))
}

// List handles GET /memes, newest uploads first.
func (r *MemesRouter) List(w http.ResponseWriter, req *http.Request) {
	uploads, err := r.uploads()
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	params := ParsePagination(req)
	entries, total, err := uploads.List(req.Context(), params.Limit(), params.Offset())
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	data := make([]dto.MemeResource, len(entries))
	for i, e := range entries {
		data[i] = r.resource(e)
	}

	middleware.WriteJSON(w, http.StatusOK, dto.MemeListResponse{
		Data:  data,
		Meta:  PaginationMeta(params, total),
		Links: PaginationLinks(req, params, total),
	})
}

func (r *MemesRouter) resource(u persistence.Upload) dto.MemeResource {
	link := MemeURL(r.basePath, u.Filename())
	return dto.MemeResource{
		Type: ResourceTypeMeme,
		ID:   u.Filename(),
		Attributes: dto.MemeAttributes{
			OriginalName: u.OriginalName(),
			ContentType:  u.ContentType(),
			Size:         u.Size(),
			SHA256:       u.SHA256(),
			Description:  u.Description(),
			URL:          link,
			CreatedAt:    jsonapi.DateTime(u.CreatedAt()),
		},
		Links: &jsonapi.Links{Self: link},
	}
}

// readImage reads the multipart field "file" within MaxUploadSize.
func readImage(w http.ResponseWriter, req *http.Request) (string, []byte, error) {
	req.Body = http.MaxBytesReader(w, req.Body, MaxUploadSize)

	file, header, err := req.FormFile("file")
	if err != nil {
		return "", nil, uploadError(err)
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, uploadError(err)
	}
	return header.Filename, data, nil
}

func uploadError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return middleware.NewAPIError(http.StatusRequestEntityTooLarge, "File too large.", err)
	}
	return middleware.NewAPIError(http.StatusBadRequest, "No file uploaded.", err)
}
