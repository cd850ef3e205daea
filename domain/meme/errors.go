package meme

import "errors"

// Sentinel errors for the indexing and search paths.
var (
	// ErrConfiguration is returned when a required credential or setting is
	// missing. It is fatal at startup.
	ErrConfiguration = errors.New("configuration error")

	// ErrCaption is returned when the vision model call fails, times out, or
	// yields no usable text.
	ErrCaption = errors.New("caption failed")

	// ErrEmbed is returned when embedding a description fails or the input is empty.
	ErrEmbed = errors.New("embedding failed")

	// ErrInvalidQuery is returned for an empty or whitespace-only search query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrIndexUnavailable is returned when a search runs before anything was indexed.
	ErrIndexUnavailable = errors.New("index unavailable")

	// ErrStorage is returned when the ledger or vector index cannot be read or written.
	ErrStorage = errors.New("storage error")

	// ErrDimensionMismatch is returned when a vector does not match the
	// dimension recorded in the index.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidImage is returned at ingress when a payload is not a supported image.
	ErrInvalidImage = errors.New("invalid image")

	// ErrInvalidFolder is returned when a folder to index does not exist or is not a directory.
	ErrInvalidFolder = errors.New("invalid folder")

	// ErrInvalidIdentifier is returned when a source identifier cannot be canonicalized.
	ErrInvalidIdentifier = errors.New("invalid source identifier")
)
