package mcp

import (
	"net/url"
	"path/filepath"
)

// FileURI builds the file:// link returned for a local search hit.
type FileURI struct {
	path string
}

// NewFileURI creates a FileURI for an absolute local path.
func NewFileURI(path string) FileURI {
	return FileURI{path: path}
}

// Path returns the local path.
func (u FileURI) Path() string { return u.path }

// String builds the file:// URI string with the path escaped.
func (u FileURI) String() string {
	p := filepath.ToSlash(u.path)
	if p != "" && p[0] != '/' {
		p = "/" + p
	}
	return (&url.URL{Scheme: "file", Path: p}).String()
}
