package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/server"
	"github.com/memevault/memevault"
	apimiddleware "github.com/memevault/memevault/infrastructure/api/middleware"
	v1 "github.com/memevault/memevault/infrastructure/api/v1"
	mcpinternal "github.com/memevault/memevault/internal/mcp"
)

// APIServerOption configures an APIServer.
type APIServerOption func(*APIServer)

// WithBasePath mounts the API under path, e.g. "/memeselector".
func WithBasePath(path string) APIServerOption {
	return func(a *APIServer) { a.basePath = path }
}

// WithAPIKeys requires one of keys on uploads.
func WithAPIKeys(keys []string) APIServerOption {
	return func(a *APIServer) { a.apiKeys = keys }
}

// WithCORSOrigins allows browser requests from origins.
func WithCORSOrigins(origins []string) APIServerOption {
	return func(a *APIServer) { a.corsOrigins = origins }
}

// WithVersion sets the version reported over MCP.
func WithVersion(version string) APIServerOption {
	return func(a *APIServer) { a.version = version }
}

// APIServer provides an HTTP API backed by a memevault Client.
type APIServer struct {
	client       *memevault.Client
	basePath     string
	apiKeys      []string
	corsOrigins  []string
	version      string
	server       *Server
	router       chi.Router
	routerCalled bool
	logger       *slog.Logger
}

// NewAPIServer creates a new APIServer wired to the given Client.
// Uploads are write-protected when API keys are configured. Search,
// file serving, the model endpoints and MCP remain open.
func NewAPIServer(client *memevault.Client, opts ...APIServerOption) *APIServer {
	a := &APIServer{
		client:  client,
		version: "dev",
		logger:  client.Logger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BasePath returns the URL prefix of the API.
func (a *APIServer) BasePath() string {
	return a.basePath
}

// Router returns the chi router for customization before starting.
// Call this first, add custom middleware with router.Use(), then call MountRoutes().
// If not called, ListenAndServe creates a default router with all standard routes.
func (a *APIServer) Router() chi.Router {
	if a.router != nil {
		return a.router
	}

	a.router = chi.NewRouter()
	a.routerCalled = true
	return a.router
}

// MountRoutes wires up all API routes on the router.
// Call this after adding any custom middleware via Router().Use().
func (a *APIServer) MountRoutes() {
	if a.router == nil {
		a.Router()
	}
	a.mountRoutes(a.router)
}

func (a *APIServer) mountRoutes(router chi.Router) {
	c := a.client

	memesRouter := v1.NewMemesRouter(c, a.basePath)
	searchRouter := v1.NewSearchRouter(c, a.basePath)
	modelsRouter := v1.NewModelsRouter(c)

	router.Use(apimiddleware.CORS(a.corsOrigins))

	routes := func(r chi.Router) {
		r.Use(chimiddleware.Timeout(60 * time.Second))

		// Open routes: reads plus the stateless model endpoints.
		r.Mount("/search", searchRouter.Routes())
		r.Mount("/memes", memesRouter.Routes())
		r.Mount("/describe-image", modelsRouter.DescribeRoutes())
		r.Mount("/embed-text", modelsRouter.EmbedRoutes())

		// Uploads change the index and require a key when keys are configured.
		r.Group(func(r chi.Router) {
			r.Use(apimiddleware.WriteProtectAuth(a.apiKeys))
			r.Mount("/upload", memesRouter.UploadRoutes())
		})
	}
	if a.basePath == "" {
		router.Group(routes)
	} else {
		router.Route(a.basePath, routes)
	}

	// MCP endpoint with no timeout middleware: it streams responses.
	// It searches uploads only; indexing server folders is left to the CLI.
	if c.UploadSearch != nil {
		mcpSrv := mcpinternal.NewServer(c.UploadSearch, nil, a.version, a.logger,
			mcpinternal.WithLinker(func(id string) string { return v1.MemeURL(a.basePath, id) }),
		)
		router.Mount("/mcp", server.NewStreamableHTTPServer(mcpSrv.MCPServer()))
	}
}

// DocsRouter returns a router for Swagger UI and the OpenAPI document.
func (a *APIServer) DocsRouter(specURL string) *DocsRouter {
	return NewDocsRouter(specURL, a.basePath)
}

// ListenAndServe starts the HTTP server on the given address.
func (a *APIServer) ListenAndServe(addr string) error {
	server := NewServer(addr, a.logger)
	a.server = &server

	if a.routerCalled && a.router != nil {
		server.Router().Mount("/", a.router)
	} else {
		a.mountRoutes(server.Router())
	}

	return server.Start()
}

// Shutdown gracefully shuts down the server.
func (a *APIServer) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

// Handler returns the router as an http.Handler for use with custom servers.
func (a *APIServer) Handler() http.Handler {
	if a.router == nil {
		a.Router()
		a.MountRoutes()
	}
	return a.router
}
