package embedding

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Stored embeddings are little-endian float32 blobs. This matches the
// column format the knowledge store writes and keeps deserialization a
// single pass with no intermediate allocation.

// Serialize encodes a vector as a little-endian float32 blob.
func Serialize(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// Deserialize decodes a little-endian float32 blob into a vector.
func Deserialize(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty embedding blob")
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("malformed embedding blob: %d bytes", len(data))
	}

	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
