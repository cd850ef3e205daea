// Package mcp provides Model Context Protocol server functionality.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/memevault/memevault/application/service"
	"github.com/memevault/memevault/domain/meme"
)

// Searcher finds memes by meaning for the search_memes tool.
type Searcher interface {
	Search(ctx context.Context, query string, topK int) (meme.SearchResult, error)
	DefaultTopK() int
}

// FolderIndexer indexes a folder for the index_folder tool.
type FolderIndexer interface {
	IndexFolder(ctx context.Context, folder string, progress service.ProgressFunc) (meme.Summary, error)
}

// Linker turns a source identifier into the link shown to the client.
type Linker func(sourceID string) string

// Option configures a Server.
type Option func(*Server)

// WithLinker sets how result links are built. Defaults to file:// URIs.
func WithLinker(l Linker) Option {
	return func(s *Server) {
		if l != nil {
			s.link = l
		}
	}
}

// Server wraps the MCP server with memevault tools.
type Server struct {
	mcpServer *server.MCPServer
	searcher  Searcher
	indexer   FolderIndexer
	link      Linker
	logger    *slog.Logger
}

// NewServer creates a new MCP server. A nil indexer leaves out the
// index_folder tool.
func NewServer(searcher Searcher, indexer FolderIndexer, version string, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		searcher: searcher,
		indexer:  indexer,
		link:     func(id string) string { return NewFileURI(id).String() },
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	mcpServer := server.NewMCPServer(
		"memevault",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerTools(mcpServer)

	s.mcpServer = mcpServer
	return s
}

func (s *Server) registerTools(mcpServer *server.MCPServer) {
	searchTool := mcp.NewTool("search_memes",
		mcp.WithDescription("Find memes whose generated description matches a natural language query"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What the meme should show, e.g. \"surprised cat\""),
		),
		mcp.WithNumber("top_k",
			mcp.Description(fmt.Sprintf("Number of results to return (default: %d)", s.searcher.DefaultTopK())),
		),
	)
	mcpServer.AddTool(searchTool, s.handleSearch)

	if s.indexer == nil {
		return
	}

	indexTool := mcp.NewTool("index_folder",
		mcp.WithDescription("Caption and index every new image in a folder so it becomes searchable"),
		mcp.WithString("folder",
			mcp.Required(),
			mcp.Description("Path of the folder to scan recursively"),
		),
	)
	mcpServer.AddTool(indexTool, s.handleIndexFolder)
}

type searchHit struct {
	Link        string  `json:"link"`
	SourceID    string  `json:"source_id"`
	Description string  `json:"description"`
	Distance    float64 `json:"distance"`
}

type searchResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Results []searchHit `json:"results"`
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("query is required"), nil
	}
	topK := request.GetInt("top_k", s.searcher.DefaultTopK())

	result, err := s.searcher.Search(ctx, query, topK)
	if errors.Is(err, meme.ErrInvalidQuery) {
		return mcp.NewToolResultError(meme.EmptyQueryMessage), nil
	}
	if err != nil {
		s.logger.Error("search failed", slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	matches := result.Matches()
	hits := make([]searchHit, len(matches))
	for i, m := range matches {
		hits[i] = searchHit{
			Link:        s.link(m.SourceID()),
			SourceID:    m.SourceID(),
			Description: m.Record().Description(),
			Distance:    m.Distance(),
		}
	}

	jsonBytes, err := json.Marshal(searchResponse{
		Status:  string(result.Status()),
		Message: result.Message(),
		Results: hits,
	})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal results: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

func (s *Server) handleIndexFolder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder, err := request.RequireString("folder")
	if err != nil {
		return mcp.NewToolResultError("folder is required"), nil
	}

	summary, err := s.indexer.IndexFolder(ctx, folder, nil)
	if errors.Is(err, meme.ErrInvalidFolder) {
		return mcp.NewToolResultError(meme.InvalidFolderMessage), nil
	}
	if err != nil {
		s.logger.Error("indexing failed", slog.String("folder", folder), slog.Any("error", err))
		return mcp.NewToolResultError(fmt.Sprintf("%s\nindexing failed: %v", summary.Report(), err)), nil
	}
	return mcp.NewToolResultText(summary.Report()), nil
}

// MCPServer returns the underlying MCP server for stdio serving.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the MCP server on stdio.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
