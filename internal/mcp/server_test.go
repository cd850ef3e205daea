package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/memevault/memevault/application/service"
	"github.com/memevault/memevault/domain/meme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSearch implements Searcher with a canned result.
type fakeSearch struct {
	result  meme.SearchResult
	err     error
	gotTopK int
}

func (f *fakeSearch) Search(_ context.Context, query string, topK int) (meme.SearchResult, error) {
	f.gotTopK = topK
	if f.err != nil {
		return meme.SearchResult{}, f.err
	}
	return f.result, nil
}

func (f *fakeSearch) DefaultTopK() int { return meme.DefaultTopK }

// fakeIndexer implements FolderIndexer with a canned summary.
type fakeIndexer struct {
	summary   meme.Summary
	err       error
	gotFolder string
}

func (f *fakeIndexer) IndexFolder(_ context.Context, folder string, _ service.ProgressFunc) (meme.Summary, error) {
	f.gotFolder = folder
	return f.summary, f.err
}

func match(t *testing.T, id, description string, distance float64) meme.Match {
	t.Helper()
	record, err := meme.NewRecord(id, description, []float64{1, 0})
	require.NoError(t, err)
	return meme.NewMatch(record, distance)
}

// sendMessage marshals a JSON-RPC request, sends it through HandleMessage,
// and returns the JSONRPCResponse.
func sendMessage(t *testing.T, srv *Server, method string, id int, params map[string]any) mcp.JSONRPCResponse {
	t.Helper()

	msg := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
	}
	if params != nil {
		msg["params"] = params
	}

	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	result := srv.MCPServer().HandleMessage(context.Background(), raw)
	resp, ok := result.(mcp.JSONRPCResponse)
	require.True(t, ok, "expected JSONRPCResponse, got %T: %+v", result, result)
	return resp
}

// resultJSON re-marshals the Result field through JSON into dst.
func resultJSON(t *testing.T, resp mcp.JSONRPCResponse, dst any) {
	t.Helper()
	b, err := json.Marshal(resp.Result)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, dst))
}

type toolResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) toolResult {
	t.Helper()
	resp := sendMessage(t, srv, "tools/call", 2, map[string]any{
		"name":      name,
		"arguments": args,
	})
	var result toolResult
	resultJSON(t, resp, &result)
	require.Len(t, result.Content, 1)
	return result
}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": "2025-06-18",
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "test-client",
			"version": "0.0.1",
		},
	}
}

func TestServer_Initialize(t *testing.T) {
	srv := NewServer(&fakeSearch{}, &fakeIndexer{}, "0.1.0-test", nil)
	resp := sendMessage(t, srv, "initialize", 1, initializeParams())

	var result mcp.InitializeResult
	resultJSON(t, resp, &result)

	assert.Equal(t, "memevault", result.ServerInfo.Name)
	assert.Equal(t, "0.1.0-test", result.ServerInfo.Version)
}

func TestServer_ListTools(t *testing.T) {
	names := func(srv *Server) []string {
		resp := sendMessage(t, srv, "tools/list", 2, nil)
		var result mcp.ListToolsResult
		resultJSON(t, resp, &result)
		var out []string
		for _, tool := range result.Tools {
			out = append(out, tool.Name)
		}
		return out
	}

	assert.ElementsMatch(t, []string{"search_memes", "index_folder"},
		names(NewServer(&fakeSearch{}, &fakeIndexer{}, "test", nil)))
	assert.Equal(t, []string{"search_memes"},
		names(NewServer(&fakeSearch{}, nil, "test", nil)))
}

func TestServer_SearchMemes(t *testing.T) {
	search := &fakeSearch{result: meme.NewSearchResult("surprised cat", []meme.Match{
		match(t, "/memes/cat.png", "a surprised cat", 0.01),
		match(t, "/memes/cats.png", "three cats", 0.3),
	})}
	srv := NewServer(search, nil, "test", nil)

	result := callTool(t, srv, "search_memes", map[string]any{"query": "surprised cat", "top_k": 2})
	require.False(t, result.IsError, result.Content[0].Text)
	assert.Equal(t, 2, search.gotTopK)

	var body searchResponse
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &body))
	assert.Equal(t, "ok", body.Status)
	require.Len(t, body.Results, 2)
	assert.Equal(t, "file:///memes/cat.png", body.Results[0].Link)
	assert.Equal(t, "a surprised cat", body.Results[0].Description)
	assert.Equal(t, "/memes/cats.png", body.Results[1].SourceID)
	assert.Contains(t, body.Message, "Found 2 results:")
}

func TestServer_SearchMemes_DefaultTopK(t *testing.T) {
	search := &fakeSearch{result: meme.NewSearchResult("cat", nil)}
	srv := NewServer(search, nil, "test", nil)

	result := callTool(t, srv, "search_memes", map[string]any{"query": "cat"})
	require.False(t, result.IsError)
	assert.Equal(t, meme.DefaultTopK, search.gotTopK)
	assert.Contains(t, result.Content[0].Text, `"status":"no_matches"`)
}

func TestServer_SearchMemes_Linker(t *testing.T) {
	search := &fakeSearch{result: meme.NewSearchResult("cat", []meme.Match{match(t, "abc.png", "a cat", 0)})}
	srv := NewServer(search, nil, "test", nil, WithLinker(func(id string) string {
		return "/memeselector/memes/" + id
	}))

	result := callTool(t, srv, "search_memes", map[string]any{"query": "cat"})
	assert.Contains(t, result.Content[0].Text, `"link":"/memeselector/memes/abc.png"`)
}

func TestServer_SearchMemes_Unavailable(t *testing.T) {
	srv := NewServer(&fakeSearch{result: meme.UnavailableResult("cat")}, nil, "test", nil)

	result := callTool(t, srv, "search_memes", map[string]any{"query": "cat"})
	require.False(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, `"status":"index_unavailable"`)
	assert.Contains(t, result.Content[0].Text, "Please index your memes first.")
}

func TestServer_SearchMemes_Errors(t *testing.T) {
	srv := NewServer(&fakeSearch{err: fmt.Errorf("%w: blank", meme.ErrInvalidQuery)}, nil, "test", nil)
	result := callTool(t, srv, "search_memes", map[string]any{"query": " "})
	assert.True(t, result.IsError)
	assert.Equal(t, meme.EmptyQueryMessage, result.Content[0].Text)

	srv = NewServer(&fakeSearch{err: fmt.Errorf("%w: timeout", meme.ErrEmbed)}, nil, "test", nil)
	result = callTool(t, srv, "search_memes", map[string]any{"query": "cat"})
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content[0].Text, "search failed")

	result = callTool(t, srv, "search_memes", map[string]any{})
	assert.True(t, result.IsError)
	assert.Equal(t, "query is required", result.Content[0].Text)
}

func TestServer_IndexFolder(t *testing.T) {
	indexer := &fakeIndexer{summary: meme.NewSummary(2, 0, []meme.Outcome{
		meme.NewOutcome("/memes/a.png", "a cat", nil),
		meme.NewOutcome("/memes/b.png", "", fmt.Errorf("%w: refused", meme.ErrCaption)),
	})}
	srv := NewServer(&fakeSearch{}, indexer, "test", nil)

	result := callTool(t, srv, "index_folder", map[string]any{"folder": "/memes"})
	require.False(t, result.IsError)
	assert.Equal(t, "/memes", indexer.gotFolder)
	assert.Contains(t, result.Content[0].Text, "Generated description for 'a.png'")
	assert.Contains(t, result.Content[0].Text, "Could not process /memes/b.png")
	assert.Contains(t, result.Content[0].Text, "Successfully indexed 1 new memes.")
}

func TestServer_IndexFolder_InvalidFolder(t *testing.T) {
	indexer := &fakeIndexer{err: fmt.Errorf("%w: /nope", meme.ErrInvalidFolder)}
	srv := NewServer(&fakeSearch{}, indexer, "test", nil)

	result := callTool(t, srv, "index_folder", map[string]any{"folder": "/nope"})
	assert.True(t, result.IsError)
	assert.Equal(t, meme.InvalidFolderMessage, result.Content[0].Text)
}
