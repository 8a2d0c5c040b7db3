//go:build !cgo
// +build !cgo

package embedding

import (
	"context"

	"github.com/hyperjump/revelation/internal/errs"
	"go.uber.org/zap"
)

// ONNXProvider stub type when built without CGO (see onnx.go for real implementation).
type ONNXProvider struct{}

// NewONNXProvider returns an error when built without CGO (ONNX not available).
func NewONNXProvider(_ Options, _ *zap.Logger) (*ONNXProvider, error) {
	return nil, errs.Config("embedding.NewONNXProvider", "ONNX provider requires CGO; build with CGO_ENABLED=1 and onnxruntime")
}

func (e *ONNXProvider) Embed(context.Context, []byte) ([]float32, error) { return nil, nil }

func (e *ONNXProvider) EmbedBatch(context.Context, [][]byte) ([][]float32, error) { return nil, nil }

func (e *ONNXProvider) Dimensions() int { return 0 }

func (e *ONNXProvider) Version() string { return "" }

func (e *ONNXProvider) Device() string { return "" }

func (e *ONNXProvider) Close() error { return nil }
