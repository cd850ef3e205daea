package v1

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/memevault/memevault"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/api/middleware"
	"github.com/memevault/memevault/infrastructure/api/v1/dto"
)

// SearchRouter handles search over uploaded memes.
type SearchRouter struct {
	client   *memevault.Client
	basePath string
	logger   *slog.Logger
}

// NewSearchRouter creates a new SearchRouter.
func NewSearchRouter(client *memevault.Client, basePath string) *SearchRouter {
	return &SearchRouter{
		client:   client,
		basePath: basePath,
		logger:   client.Logger(),
	}
}

// Routes returns the chi router for search endpoints.
func (r *SearchRouter) Routes() chi.Router {
	router := chi.NewRouter()
	router.Get("/", r.Search)
	return router
}

// Search handles GET /search?query=&limit=.
//
// A missing index is not an error: the response carries the
// index_unavailable status and an empty result list.
func (r *SearchRouter) Search(w http.ResponseWriter, req *http.Request) {
	if r.client.UploadSearch == nil {
		middleware.WriteError(w, req, errUploadsDisabled, r.logger)
		return
	}

	query := req.URL.Query().Get("query")
	if strings.TrimSpace(query) == "" {
		middleware.WriteError(w, req,
			middleware.NewAPIError(http.StatusBadRequest, middleware.MessageEmptyQuery, meme.ErrInvalidQuery), r.logger)
		return
	}

	limit := 0
	if s := req.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			middleware.WriteError(w, req,
				middleware.NewAPIError(http.StatusBadRequest, "limit must be a positive integer.", err), r.logger)
			return
		}
		limit = n
	}

	result, err := r.client.UploadSearch.Search(req.Context(), query, limit)
	if err != nil {
		middleware.WriteError(w, req, err, r.logger)
		return
	}

	ids := result.SourceIDs()
	links := make([]string, len(ids))
	for i, id := range ids {
		links[i] = MemeURL(r.basePath, id)
	}

	middleware.WriteJSON(w, http.StatusOK, dto.SearchResponse{
		Results: links,
		Status:  string(result.Status()),
		Message: result.Message(),
	})
}
