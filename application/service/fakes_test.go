package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/memevault/memevault/domain/meme"
)

// stubCaptioner returns the image bytes as the caption, so tests can write
// the expected description straight into the fixture file.
type stubCaptioner struct {
	mu       sync.Mutex
	calls    int
	failOn   map[string]error
	fallback string
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	block    bool
	// before runs at the start of every call.
	before func()
}

func (s *stubCaptioner) Describe(ctx context.Context, image []byte) (string, error) {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		seen := s.maxSeen.Load()
		if n <= seen || s.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	if s.before != nil {
		s.before()
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}

	text := string(image)
	if err, ok := s.failOn[text]; ok {
		return "", err
	}
	if s.fallback != "" {
		return s.fallback, nil
	}
	return text, nil
}

func (s *stubCaptioner) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// vocabulary gives the stub embedder its dimensions.
var vocabulary = []string{"cat", "dog", "frog", "surprised", "happy", "pizza"}

// stubEmbedder counts words from vocabulary. The last component is a
// constant so no vector is all zeros.
type stubEmbedder struct {
	calls     atomic.Int32
	dimension int
	err       error
	// nanWord makes any text containing it embed to a NaN vector.
	nanWord string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text")
	}
	vec := make([]float64, len(vocabulary)+1)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		for i, v := range vocabulary {
			if word == v {
				vec[i]++
			}
		}
	}
	vec[len(vocabulary)] = 0.1
	if s.nanWord != "" && strings.Contains(strings.ToLower(text), s.nanWord) {
		vec[0] = math.NaN()
	}
	if s.dimension > 0 {
		return vec[:s.dimension], nil
	}
	return vec, nil
}

var (
	_ meme.Captioner = (*stubCaptioner)(nil)
	_ meme.Embedder  = (*stubEmbedder)(nil)
)
