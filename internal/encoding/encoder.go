package encoding

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
)

// EncoderPool manages a pool of JSON encoders for better performance
type EncoderPool struct {
	pool chan *json.Encoder
	size int
}

// NewEncoderPool creates a new encoder pool with specified size
func NewEncoderPool(size int) *EncoderPool {
	if size <= 0 {
		size = 10
	}

	pool := make(chan *json.Encoder, size)
	for i := 0; i < size; i++ {
		encoder := json.NewEncoder(io.Discard)
		pool <- encoder
	}

	return &EncoderPool{
		pool: pool,
		size: size,
	}
}

// GetEncoder retrieves an encoder from the pool
func (ep *EncoderPool) GetEncoder() *json.Encoder {
	select {
	case encoder := <-ep.pool:
		return encoder
	default:
		slog.Debug("Encoder pool exhausted, creating new encoder")
		return json.NewEncoder(io.Discard)
	}
}

// ReturnEncoder returns an encoder to the pool
func (ep *EncoderPool) ReturnEncoder(encoder *json.Encoder) {
	select {
	case ep.pool <- encoder:
	default:
		slog.Debug("Encoder pool full, discarding encoder")
	}
}

// Marshal marshals data using the encoder pool
func (ep *EncoderPool) Marshal(v interface{}) ([]byte, error) {
	encoder := ep.GetEncoder()
	defer ep.ReturnEncoder(encoder)

	var buf bytes.Buffer
	tempEncoder := json.NewEncoder(&buf)

	if err := tempEncoder.Encode(v); err != nil {
		return nil, err
	}

	// Remove the trailing newline that json.Encoder.Encode adds
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}

	return data, nil
}

// DecoderPool manages a pool of JSON decoders for better performance
type DecoderPool struct {
	pool chan *json.Decoder
	size int
}

// NewDecoderPool creates a new decoder pool with specified size
func NewDecoderPool(size int) *DecoderPool {
	if size <= 0 {
		size = 10
	}

	pool := make(chan *json.Decoder, size)
	for i := 0; i < size; i++ {
		decoder := json.NewDecoder(bytes.NewReader([]byte{}))
		pool <- decoder
	}

	return &DecoderPool{
		pool: pool,
		size: size,
	}
}

// GetDecoder retrieves a decoder for the given data
func (dp *DecoderPool) GetDecoder(data []byte) *json.Decoder {
	return json.NewDecoder(bytes.NewReader(data))
}

// ReturnDecoder returns a decoder to the pool
func (dp *DecoderPool) ReturnDecoder(decoder *json.Decoder) {
	select {
	case dp.pool <- decoder:
	default:
		slog.Debug("Decoder pool full, discarding decoder")
	}
}

// Unmarshal unmarshals data using the decoder pool
func (dp *DecoderPool) Unmarshal(data []byte, v interface{}) error {
	decoder := dp.GetDecoder(data)
	defer dp.ReturnDecoder(decoder)

	return decoder.Decode(v)
}

// OptimizedJSONEncoder provides pooled JSON encoding/decoding for the large
// batch result payloads.
type OptimizedJSONEncoder struct {
	encoderPool *EncoderPool
	decoderPool *DecoderPool
}

// NewOptimizedJSONEncoder creates a new optimized JSON encoder
func NewOptimizedJSONEncoder() *OptimizedJSONEncoder {
	return &OptimizedJSONEncoder{
		encoderPool: NewEncoderPool(20),
		decoderPool: NewDecoderPool(20),
	}
}

// Marshal marshals data with high performance
func (oje *OptimizedJSONEncoder) Marshal(v interface{}) ([]byte, error) {
	return oje.encoderPool.Marshal(v)
}

// Unmarshal unmarshals data with high performance
func (oje *OptimizedJSONEncoder) Unmarshal(data []byte, v interface{}) error {
	return oje.decoderPool.Unmarshal(data, v)
}

// GetStats returns encoder/decoder pool statistics
func (oje *OptimizedJSONEncoder) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"encoder_pool_size": cap(oje.encoderPool.pool),
		"decoder_pool_size": cap(oje.decoderPool.pool),
	}
}

// Global optimized encoder instance
var globalOptimizedEncoder = NewOptimizedJSONEncoder()

// MarshalJSON marshals data using the global optimized encoder
func MarshalJSON(v interface{}) ([]byte, error) {
	return globalOptimizedEncoder.Marshal(v)
}

// UnmarshalJSON unmarshals data using the global optimized encoder
func UnmarshalJSON(data []byte, v interface{}) error {
	return globalOptimizedEncoder.Unmarshal(data, v)
}
