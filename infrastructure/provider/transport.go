package provider

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ResponseCache is an http.RoundTripper that replays successful embedding
// responses from disk. Requests are keyed by the SHA-256 of method, URL and
// body, so the same text sent to the same model is only paid for once.
//
// Only POST requests with 2xx responses are stored. Cache failures never
// fail the request.
type ResponseCache struct {
	inner  http.RoundTripper
	dir    string
	hits   atomic.Int64
	misses atomic.Int64
}

// NewResponseCache creates a cache rooted at dir. A nil inner transport
// means http.DefaultTransport.
func NewResponseCache(dir string, inner http.RoundTripper) (*ResponseCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("response cache directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create response cache directory: %w", err)
	}
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &ResponseCache{inner: inner, dir: dir}, nil
}

// Dir returns the cache directory.
func (c *ResponseCache) Dir() string { return c.dir }

// Hits returns the number of responses served from disk.
func (c *ResponseCache) Hits() int64 { return c.hits.Load() }

// Misses returns the number of cacheable requests forwarded upstream.
func (c *ResponseCache) Misses() int64 { return c.misses.Load() }

type cacheEntry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// RoundTrip implements http.RoundTripper.
func (c *ResponseCache) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodPost || req.Body == nil {
		return c.inner.RoundTrip(req)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))

	path := c.entryPath(req.Method, req.URL.String(), body)
	if resp, ok := c.load(path, req); ok {
		c.hits.Add(1)
		return resp, nil
	}
	c.misses.Add(1)

	resp, err := c.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	c.store(path, cacheEntry{Status: resp.StatusCode, Header: resp.Header, Body: respBody})

	resp.Body = io.NopCloser(bytes.NewReader(respBody))
	return resp, nil
}

// entryPath shards entries by the first byte of the key.
func (c *ResponseCache) entryPath(method, url string, body []byte) string {
	h := sha256.New()
	_, _ = io.WriteString(h, method+"\n"+url+"\n")
	_, _ = h.Write(body)
	key := hex.EncodeToString(h.Sum(nil))
	return filepath.Join(c.dir, key[:2], key+".json")
}

func (c *ResponseCache) load(path string, req *http.Request) (*http.Response, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, false
	}
	return &http.Response{
		Status:        http.StatusText(entry.Status),
		StatusCode:    entry.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        entry.Header,
		Body:          io.NopCloser(bytes.NewReader(entry.Body)),
		ContentLength: int64(len(entry.Body)),
		Request:       req,
	}, true
}

func (c *ResponseCache) store(path string, entry cacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".entry-*")
	if err != nil {
		return
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmp.Name())
		return
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
	}
}
