// Package vector provides arithmetic and encoding helpers for L2-normalized
// embedding vectors.
package vector

import "math"

// NormTolerance is how far from 1 a norm may drift and still count as normalized.
const NormTolerance = 1e-3

// Dot returns the inner product of a and b accumulated in float64. For
// normalized vectors this equals cosine similarity. Mismatched lengths yield 0.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales x in place to unit L2 norm. A zero vector is left unchanged
// and Normalize reports false.
func Normalize(x []float32) bool {
	n := L2Norm(x)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return false
	}
	inv := 1 / n
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
	return true
}

// IsNormalized reports whether x has unit norm within NormTolerance.
func IsNormalized(x []float32) bool {
	return math.Abs(L2Norm(x)-1) <= NormTolerance
}

// Clamp limits a cosine score to [-1, 1], absorbing float rounding.
func Clamp(score float64) float64 {
	if score > 1 {
		return 1
	}
	if score < -1 {
		return -1
	}
	return score
}
