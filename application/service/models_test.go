package service

import (
	"context"
	"errors"
	"testing"

	"github.com/memevault/memevault/domain/meme"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModels_Describe(t *testing.T) {
	captioner := &stubCaptioner{fallback: "a surprised cat"}
	models := NewModels(captioner, &stubEmbedder{})

	description, err := models.Describe(context.Background(), "x.png", pngImage(t))
	require.NoError(t, err)
	assert.Equal(t, "a surprised cat", description)

	_, err = models.Describe(context.Background(), "x.txt", []byte("text"))
	require.ErrorIs(t, err, meme.ErrInvalidImage)
	assert.Equal(t, 1, captioner.Calls())
}

func TestModels_DescribeFailure(t *testing.T) {
	img := pngImage(t)
	captioner := &stubCaptioner{failOn: map[string]error{string(img): errors.New("model refused")}}

	_, err := NewModels(captioner, &stubEmbedder{}).Describe(context.Background(), "x.png", img)
	require.ErrorIs(t, err, meme.ErrCaption)
}

func TestModels_EmbedText(t *testing.T) {
	models := NewModels(&stubCaptioner{}, &stubEmbedder{})

	vec, err := models.EmbedText(context.Background(), "happy dog")
	require.NoError(t, err)
	assert.Len(t, vec, len(vocabulary)+1)

	_, err = models.EmbedText(context.Background(), "  ")
	require.ErrorIs(t, err, meme.ErrInvalidQuery)

	_, err = NewModels(&stubCaptioner{}, &stubEmbedder{err: errors.New("quota exceeded")}).EmbedText(context.Background(), "cat")
	require.ErrorIs(t, err, meme.ErrEmbed)
}
