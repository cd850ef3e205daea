// Package dto holds the request and response bodies of the HTTP API.
package dto

import "github.com/memevault/memevault/infrastructure/api/jsonapi"

// StatusIndexed is the status of a successful upload.
const StatusIndexed = "Indexed successfully"

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Filename    string `json:"filename"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// SearchResponse is returned by GET /search.
type SearchResponse struct {
	Results []string `json:"results"`
	Status  string   `json:"status"`
	Message string   `json:"message"`
}

// DescribeResponse is returned by POST /describe-image.
type DescribeResponse struct {
	Description string `json:"description"`
}

// EmbedRequest is the JSON body accepted by POST /embed-text.
type EmbedRequest struct {
	Text string `json:"text"`
}

// EmbedResponse is returned by POST /embed-text.
type EmbedResponse struct {
	Vector []float64 `json:"vector"`
}

// MemeAttributes describes an uploaded meme in the catalog listing.
type MemeAttributes struct {
	OriginalName string           `json:"original_name"`
	ContentType  string           `json:"content_type"`
	Size         int64            `json:"size"`
	SHA256       string           `json:"sha256"`
	Description  string           `json:"description"`
	URL          string           `json:"url"`
	CreatedAt    jsonapi.DateTime `json:"created_at"`
}

// MemeResource is one entry of GET /memes.
type MemeResource struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes MemeAttributes `json:"attributes"`
	Links      *jsonapi.Links `json:"links,omitempty"`
}

// MemeListResponse is the body of GET /memes.
type MemeListResponse struct {
	Data  []MemeResource `json:"data"`
	Meta  jsonapi.Meta   `json:"meta"`
	Links *jsonapi.Links `json:"links"`
}
