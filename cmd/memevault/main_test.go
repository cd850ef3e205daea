package main

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/memevault/memevault"
	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCaptioner struct{}

func (stubCaptioner) Describe(context.Context, []byte) (string, error) {
	return "a cat looking at a cucumber", nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if strings.Contains(text, "cat") {
		return []float64{1, 0}, nil
	}
	return []float64{0, 1}, nil
}

func newTestClient(t *testing.T, opts ...memevault.Option) *memevault.Client {
	t.Helper()
	client, err := memevault.New(append([]memevault.Option{
		memevault.WithDataDir(t.TempDir()),
		memevault.WithCaptioner(stubCaptioner{}),
		memevault.WithEmbedder(stubEmbedder{}),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func writePNG(t *testing.T, path string) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 2, 2))))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func TestRunIndexAndSearch(t *testing.T) {
	client := newTestClient(t)
	folder := t.TempDir()
	writePNG(t, filepath.Join(folder, "cucumber.png"))
	writePNG(t, filepath.Join(folder, "nested", "again.png"))

	var out, progress bytes.Buffer
	require.NoError(t, runIndex(context.Background(), client.Indexer, folder, &out, &progress))
	assert.Contains(t, out.String(), "Found 2 new memes to index...")
	assert.Contains(t, out.String(), "Successfully indexed 2 new memes.")
	assert.Contains(t, progress.String(), "[2/2]")

	out.Reset()
	require.NoError(t, runIndex(context.Background(), client.Indexer, folder, &out, &progress))
	assert.Equal(t, "All memes are already indexed. Nothing to do.\n", out.String())

	out.Reset()
	require.NoError(t, runSearch(context.Background(), client.Search, "cat", 1, &out))
	assert.True(t, strings.HasPrefix(out.String(), "Found 1 results:\n"), out.String())
}

func TestRunIndex_InvalidFolder(t *testing.T) {
	client := newTestClient(t)

	var out, progress bytes.Buffer
	err := runIndex(context.Background(), client.Indexer, filepath.Join(t.TempDir(), "missing"), &out, &progress)
	require.ErrorIs(t, err, meme.ErrInvalidFolder)
	assert.Equal(t, meme.InvalidFolderMessage+"\n", out.String())
}

func TestRunSearch_Messages(t *testing.T) {
	client := newTestClient(t)

	var out bytes.Buffer
	require.NoError(t, runSearch(context.Background(), client.Search, "   ", 0, &out))
	assert.Equal(t, meme.EmptyQueryMessage+"\n", out.String())

	out.Reset()
	require.NoError(t, runSearch(context.Background(), client.Search, "cat", 0, &out))
	assert.Equal(t, "Database not found. Please index your memes first.\n", out.String())
}

func TestNewRouter_Health(t *testing.T) {
	client := newTestClient(t, memevault.WithStorageDir(t.TempDir()))
	handler := newRouter(client, config.NewAppConfig(), client.Logger())

	for _, path := range []string{"/health", "/healthz"} {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String(), path)
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/memeselector/search?query=cat", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "index_unavailable")
}

func TestApplyServeOverrides(t *testing.T) {
	cfg := applyServeOverrides(config.NewAppConfig(), "127.0.0.1", 9000)
	assert.Equal(t, "127.0.0.1:9000", cfg.Addr())

	cfg = applyServeOverrides(config.NewAppConfig(), "", 0)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestVersionCmd(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "memevault version dev")
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"index", "search", "serve", "stdio", "download-model", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}
