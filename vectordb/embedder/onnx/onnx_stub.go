//go:build !onnx

// Stub used when the binary is built without the onnx tag. Selecting the
// onnx provider then fails at configuration time instead of at link time.
package onnx

import (
	"context"
	"errors"
)

// Config configures the ONNX embedder. See the onnx-tagged build for the
// full documentation.
type Config struct {
	ModelPath     string
	TokenizerPath string
	LibraryPath   string
	Dimensions    int
}

// ErrNotBuilt is returned when agentd was compiled without ONNX support.
var ErrNotBuilt = errors.New("onnx support not compiled in (build with -tags onnx)")

// Embedder is unavailable in this build.
type Embedder struct{}

// New always fails without the onnx build tag.
func New(cfg Config) (*Embedder, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, ErrNotBuilt
}

func (e *Embedder) Dimensions() int { return 0 }

func (e *Embedder) Close() error { return nil }
