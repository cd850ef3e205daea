package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
	"github.com/memevault/memevault/domain/meme"
)

// DefaultLocalModel is the sentence-transformers model expected in the model directory.
const DefaultLocalModel = "all-MiniLM-L6-v2"

// DefaultLocalModelRepo is the Hugging Face repository of DefaultLocalModel.
const DefaultLocalModelRepo = "sentence-transformers/" + DefaultLocalModel

// HugotEmbedder generates embeddings locally with a sentence-transformers
// ONNX model run by the pure Go hugot backend.
//
// The model directory is either the model itself (it contains
// tokenizer.json) or a parent holding one model subdirectory. Each embedder
// owns its session; inference on one embedder is serialized.
type HugotEmbedder struct {
	modelDir string

	mu        sync.Mutex
	session   *hugot.Session
	pipeline  *pipelines.FeatureExtractionPipeline
	modelPath string
}

// NewHugotEmbedder creates an embedder that loads its model from modelDir on
// first use.
func NewHugotEmbedder(modelDir string) *HugotEmbedder {
	return &HugotEmbedder{modelDir: modelDir}
}

// Available reports whether a usable model exists in the model directory.
func (h *HugotEmbedder) Available() bool {
	_, err := h.resolveModelPath()
	return err == nil
}

// Embed returns the normalized sentence embedding of text.
func (h *HugotEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", meme.ErrEmbed)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", meme.ErrEmbed, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.initialize(); err != nil {
		return nil, fmt.Errorf("%w: initialize local model: %w", meme.ErrEmbed, err)
	}

	result, err := h.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("%w: run embedding pipeline: %w", meme.ErrEmbed, err)
	}
	if len(result.Embeddings) != 1 {
		return nil, fmt.Errorf("%w: pipeline returned %d vectors", meme.ErrEmbed, len(result.Embeddings))
	}

	vec32 := result.Embeddings[0]
	vec := make([]float64, len(vec32))
	for i, v := range vec32 {
		vec[i] = float64(v)
	}
	return vec, nil
}

// Close releases the embedder's session. A later Embed loads the model again.
func (h *HugotEmbedder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.session == nil {
		return nil
	}
	err := h.session.Destroy()
	h.session = nil
	h.pipeline = nil
	h.modelPath = ""
	return err
}

// initialize must be called with h.mu held.
func (h *HugotEmbedder) initialize() error {
	if h.pipeline != nil {
		return nil
	}

	modelPath, err := h.resolveModelPath()
	if err != nil {
		return err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return fmt.Errorf("create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "memevault-embeddings",
		Options: []hugot.FeatureExtractionOption{
			pipelines.WithNormalization(),
		},
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		_ = session.Destroy()
		return fmt.Errorf("create feature extraction pipeline: %w", err)
	}

	h.session = session
	h.pipeline = pipeline
	h.modelPath = modelPath
	return nil
}

func (h *HugotEmbedder) resolveModelPath() (string, error) {
	if h.modelDir == "" {
		return "", fmt.Errorf("no model directory configured")
	}
	if hasTokenizer(h.modelDir) {
		return h.modelDir, nil
	}

	entries, err := os.ReadDir(h.modelDir)
	if err != nil {
		return "", fmt.Errorf("read model directory %s: %w", h.modelDir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		candidate := filepath.Join(h.modelDir, entry.Name())
		if hasTokenizer(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no model with tokenizer.json found in %s", h.modelDir)
}

func hasTokenizer(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "tokenizer.json"))
	return err == nil
}

// DownloadLocalModel fetches repo from Hugging Face into dest and returns
// the model directory. A model already present in dest is reused.
func DownloadLocalModel(repo, dest string) (string, error) {
	if existing, err := NewHugotEmbedder(dest).resolveModelPath(); err == nil {
		return existing, nil
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}

	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	modelPath, err := hugot.DownloadModel(repo, dest, opts)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", repo, err)
	}
	return modelPath, nil
}

var _ meme.Embedder = (*HugotEmbedder)(nil)
