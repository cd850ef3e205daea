package v1

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/memevault/memevault"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/api/middleware"
	"github.com/memevault/memevault/infrastructure/api/v1/dto"
)

// maxTextSize bounds the body of embed-text requests.
const maxTextSize = 1 << 20

// ModelsRouter exposes the caption and embedding models directly.
type ModelsRouter struct {
	client *memevault.Client
	logger *slog.Logger
}

// NewModelsRouter creates a new ModelsRouter.
func NewModelsRouter(client *memevault.Client) *ModelsRouter {
	return &ModelsRouter{
		client: client,
		logger: client.Logger(),
	}
}

// DescribeRoutes returns the router for POST /describe-image.
func (r *ModelsRouter) DescribeRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Describe)
	return router
}

// EmbedRoutes returns the router for POST /embed-text.
func (r *ModelsRouter) EmbedRoutes() chi.Router {
	router := chi.NewRouter()
	router.Post("/", r.Embed)
	return router
}

// Describe handles POST /describe-image. The image is neither stored nor indexed.
func (r *ModelsRouter) Describe(w http.ResponseWriter, req *http.Request) {
	name, data, err := readImage(w, req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	description, err := r.client.Models.Describe(req.Context(), name, data)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.DescribeResponse{Description: description})
}

// Embed handles POST /embed-text. The text comes from a JSON body or the
// form field "text".
func (r *ModelsRouter) Embed(w http.ResponseWriter, req *http.Request) {
	req.Body = http.MaxBytesReader(w, req.Body, maxTextSize)

	text, err := readText(req)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}
	if strings.TrimSpace(text) == "" {
		middleware.WriteError(w, req,
			middleware.NewAPIError(http.StatusBadRequest, "Text cannot be empty.", meme.ErrInvalidQuery), r.logger)
		return
	}

	vector, err := r.client.Models.EmbedText(req.Context(), text)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, dto.EmbedResponse{Vector: vector})
}

func readText(req *http.Request) (string, error) {
	mediaType, _, _ := mime.ParseMediaType(req.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var body dto.EmbedRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return "", middleware.NewAPIError(http.StatusBadRequest, "Invalid JSON body.", err)
		}
		return body.Text, nil
	}
	return req.FormValue("text"), nil
}
