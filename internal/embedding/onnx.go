//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/revelation/internal/errs"
	"github.com/hyperjump/revelation/internal/fileid"
	"github.com/hyperjump/revelation/internal/vector"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var ortInitMu sync.Mutex

// ONNXProvider runs an image encoder through ONNX Runtime. It requires CGO
// and the onnxruntime shared library. Inference is serialized on pre-allocated
// tensors; decoding and resizing run outside the lock.
type ONNXProvider struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	pre          Preprocessor
	dimensions   int
	version      string
	device       string
	mu           sync.Mutex
}

// NewONNXProvider loads the model at opts.ModelPath. A CUDA execution provider
// is tried first unless opts.DisableGPU is set; on failure the CPU provider is used.
func NewONNXProvider(opts Options, logger *zap.Logger) (*ONNXProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	version, err := fileid.FileChecksum(opts.ModelPath)
	if err != nil {
		return nil, errs.Config("embedding.NewONNXProvider", "model artifact unavailable: %v", err)
	}
	if err := initRuntime(opts.RuntimeLibrary); err != nil {
		return nil, err
	}

	pre := NewPreprocessor(opts.ImageSize)
	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(opts.ImageSize), int64(opts.ImageSize)),
		make([]float32, pre.TensorLen()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	outputTensor, err := ort.NewTensor(ort.NewShape(1, int64(opts.Dimensions)), make([]float32, opts.Dimensions))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	inputs := []ort.ArbitraryTensor{inputTensor}
	outputs := []ort.ArbitraryTensor{outputTensor}
	device := "cpu"
	var session *ort.AdvancedSession
	if !opts.DisableGPU {
		session, err = newCUDASession(opts, inputs, outputs)
		if err == nil {
			device = "cuda"
		} else {
			logger.Info("CUDA execution provider unavailable, using CPU", zap.Error(err))
		}
	}
	if session == nil {
		session, err = ort.NewAdvancedSession(opts.ModelPath,
			[]string{opts.InputName}, []string{opts.OutputName}, inputs, outputs, nil)
		if err != nil {
			inputTensor.Destroy()
			outputTensor.Destroy()
			return nil, fmt.Errorf("failed to create ONNX session: %w", err)
		}
	}

	logger.Info("embedding model loaded",
		zap.String("path", opts.ModelPath),
		zap.String("device", device),
		zap.String("version", version),
		zap.Int("dimensions", opts.Dimensions))

	return &ONNXProvider{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		pre:          pre,
		dimensions:   opts.Dimensions,
		version:      version,
		device:       device,
	}, nil
}

func initRuntime(library string) error {
	ortInitMu.Lock()
	defer ortInitMu.Unlock()
	if ort.IsInitialized() {
		return nil
	}
	if library != "" {
		ort.SetSharedLibraryPath(library)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return errs.Config("embedding.initRuntime", "failed to initialize ONNX runtime: %v", err)
	}
	return nil
}

func newCUDASession(opts Options, inputs, outputs []ort.ArbitraryTensor) (*ort.AdvancedSession, error) {
	sessionOpts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer sessionOpts.Destroy()
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, err
	}
	defer cudaOpts.Destroy()
	if err := cudaOpts.Update(map[string]string{"device_id": "0"}); err != nil {
		return nil, err
	}
	if err := sessionOpts.AppendExecutionProviderCUDA(cudaOpts); err != nil {
		return nil, err
	}
	return ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName}, inputs, outputs, sessionOpts)
}

// Embed decodes and embeds one image.
func (e *ONNXProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	input := make([]float32, e.pre.TensorLen())
	e.pre.Fill(img, input)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, errs.Unavailable("embedding.ONNXProvider.Embed", "provider is closed")
	}
	copy(e.inputTensor.GetData(), input)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	emb := make([]float32, e.dimensions)
	copy(emb, e.outputTensor.GetData()[:e.dimensions])
	if !vector.Normalize(emb) {
		return nil, errs.Invalid("embedding.ONNXProvider.Embed", "model produced a zero vector")
	}
	return emb, nil
}

// EmbedBatch calls Embed for each image, stopping at the first failure.
func (e *ONNXProvider) EmbedBatch(ctx context.Context, images [][]byte) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, img := range images {
		emb, err := e.Embed(ctx, img)
		if err != nil {
			return nil, err
		}
		out[i] = emb
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXProvider) Dimensions() int {
	return e.dimensions
}

// Version returns the model checksum.
func (e *ONNXProvider) Version() string {
	return e.version
}

// Device reports the execution provider in use.
func (e *ONNXProvider) Device() string {
	return e.device
}

// Close destroys the session and tensors.
func (e *ONNXProvider) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		_ = e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		_ = e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	return err
}
