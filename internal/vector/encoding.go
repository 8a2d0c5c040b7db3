package vector

import (
	"encoding/binary"
	"math"
)

// Float32sToBytes encodes s as little-endian IEEE 754 values.
func Float32sToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32s decodes little-endian IEEE 754 values into dst, which must
// hold len(b)/4 elements.
func BytesToFloat32s(dst []float32, b []byte) {
	const size = 4
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
}
