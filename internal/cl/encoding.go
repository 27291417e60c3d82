package cl

import (
	"encoding/binary"
	"math"
)

// Float32Bytes encodes v in host byte order, the layout device buffers use.
func Float32Bytes(v []float32) []byte {
	out := make([]byte, len(v)*4)
	for i, f := range v {
		binary.NativeEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeFloat32 fills dst from b, which must hold at least len(dst) elements.
func DecodeFloat32(dst []float32, b []byte) {
	for i := range dst {
		dst[i] = math.Float32frombits(binary.NativeEndian.Uint32(b[i*4:]))
	}
}

// ScalarFloat32 encodes a single kernel argument value.
func ScalarFloat32(f float32) []byte {
	out := make([]byte, 4)
	binary.NativeEndian.PutUint32(out, math.Float32bits(f))
	return out
}
