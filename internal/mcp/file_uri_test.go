package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFileURI_AbsolutePath(t *testing.T) {
	uri := NewFileURI("/home/me/memes/cat.png")
	assert.Equal(t, "file:///home/me/memes/cat.png", uri.String())
	assert.Equal(t, "/home/me/memes/cat.png", uri.Path())
}

func TestFileURI_EscapesSpaces(t *testing.T) {
	uri := NewFileURI("/memes/surprised cat.png")
	assert.Equal(t, "file:///memes/surprised%20cat.png", uri.String())
}
