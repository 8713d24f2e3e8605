package artifacts

import (
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeVector serializes a float64 embedding as a flat little-endian
// float32 buffer — the ".f32" format of spec §4.2's embeddings/ tree.
func EncodeVector(v []float64) []byte {
	buf := make([]byte, 4*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(float32(x)))
	}
	return buf
}

// DecodeVector parses a ".f32" buffer back into a float64 slice.
func DecodeVector(buf []byte) ([]float64, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("artifacts: vector buffer length %d not a multiple of 4", len(buf))
	}
	out := make([]float64, len(buf)/4)
	for i := range out {
		bits := binary.LittleEndian.Uint32(buf[i*4:])
		out[i] = float64(math.Float32frombits(bits))
	}
	return out, nil
}
