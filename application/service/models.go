package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/memevault/memevault/domain/meme"
	"github.com/memevault/memevault/infrastructure/filesystem"
)

// Models exposes the captioning and embedding models directly. Nothing is
// stored or indexed.
type Models struct {
	captioner meme.Captioner
	embedder  meme.Embedder
}

// NewModels creates the model service.
func NewModels(captioner meme.Captioner, embedder meme.Embedder) *Models {
	return &Models{captioner: captioner, embedder: embedder}
}

// Describe captions an image.
func (m *Models) Describe(ctx context.Context, originalName string, data []byte) (string, error) {
	img, err := filesystem.DetectImage(originalName, data)
	if err != nil {
		return "", err
	}
	description, err := m.captioner.Describe(ctx, img.Data())
	if err != nil {
		return "", wrapKind(meme.ErrCaption, err)
	}
	return description, nil
}

// EmbedText returns the embedding of text.
func (m *Models) EmbedText(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", meme.ErrInvalidQuery)
	}
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return nil, wrapKind(meme.ErrEmbed, err)
	}
	return vector, nil
}
