package meme

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Canonicalizer maps a caller-supplied identifier to the canonical form
// stored in the ledger and the vector index.
type Canonicalizer func(raw string) (string, error)

// LocalPath canonicalizes a filesystem path: absolute, cleaned, symlinks
// resolved when the target exists, forward slashes. Two spellings of the
// same file produce the same identifier.
func LocalPath(raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidIdentifier)
	}
	abs, err := filepath.Abs(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrInvalidIdentifier, raw, err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return filepath.ToSlash(filepath.Clean(abs)), nil
}

// StorageName canonicalizes a server-side storage filename. Only bare
// filenames are accepted; anything with a directory component is rejected.
func StorageName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("%w: empty filename", ErrInvalidIdentifier)
	}
	slashed := filepath.ToSlash(name)
	if strings.Contains(slashed, "/") {
		return "", fmt.Errorf("%w: %q is not a bare filename", ErrInvalidIdentifier, raw)
	}
	base := path.Base(slashed)
	if base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, raw)
	}
	return base, nil
}
