package embedding

import (
	"bytes"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"github.com/hyperjump/revelation/internal/errs"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// ImageNet channel statistics used to normalize model input.
var (
	DefaultMean = [3]float32{0.485, 0.456, 0.406}
	DefaultStd  = [3]float32{0.229, 0.224, 0.225}
)

// Decode parses PNG, JPEG or WebP bytes.
func Decode(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, errs.Invalid("embedding.Decode", "empty image")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidInput, "embedding.Decode", err)
	}
	return img, nil
}

// Preprocessor turns decoded images into normalized CHW float32 tensors.
type Preprocessor struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// NewPreprocessor returns a Preprocessor producing size x size input with
// ImageNet normalization.
func NewPreprocessor(size int) Preprocessor {
	return Preprocessor{Size: size, Mean: DefaultMean, Std: DefaultStd}
}

// TensorLen is the number of floats Fill writes.
func (p Preprocessor) TensorLen() int {
	return 3 * p.Size * p.Size
}

// Fill resizes img bilinearly to Size x Size and writes channel-major
// normalized values into dst, which must hold TensorLen elements.
func (p Preprocessor) Fill(img image.Image, dst []float32) {
	rgba := image.NewRGBA(image.Rect(0, 0, p.Size, p.Size))
	draw.BiLinear.Scale(rgba, rgba.Bounds(), img, img.Bounds(), draw.Src, nil)

	plane := p.Size * p.Size
	for y := 0; y < p.Size; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < p.Size; x++ {
			px := row[x*4:]
			i := y*p.Size + x
			for c := 0; c < 3; c++ {
				v := float32(px[c]) / 255
				dst[c*plane+i] = (v - p.Mean[c]) / p.Std[c]
			}
		}
	}
}

// Tensor decodes data and returns a freshly allocated input tensor.
func (p Preprocessor) Tensor(data []byte) ([]float32, error) {
	img, err := Decode(data)
	if err != nil {
		return nil, err
	}
	out := make([]float32, p.TensorLen())
	p.Fill(img, out)
	return out, nil
}
