package middleware

import (
	"compress/gzip"
	"io"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int // Minimum response size to compress (bytes)
	CompressionLevel int // Gzip compression level (1-9, 9 is best compression)
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: 6,
	}
}

// CompressionMiddleware provides gzip compression for HTTP responses. Batch
// analysis payloads carry full per-title metric maps and compress well.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	level := config.CompressionLevel
	return &CompressionMiddleware{
		config: config,
		stats:  NewCompressionStats(),
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns a Gin middleware that gzips responses for clients that
// accept it. Responses smaller than MinSize on first write pass through
// uncompressed.
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") {
			c.Next()
			return
		}

		gz := cm.pool.Get().(*gzip.Writer)
		counter := &countingWriter{ResponseWriter: c.Writer}
		gz.Reset(counter)

		wrapper := &gzipResponseWriter{
			ResponseWriter: c.Writer,
			gzipWriter:     gz,
			minSize:        cm.config.MinSize,
		}
		c.Writer = wrapper
		c.Next()

		if wrapper.compressed {
			gz.Close()
		}
		cm.stats.RecordRequest(wrapper.originalBytes, counter.written, wrapper.compressed)
		cm.pool.Put(gz)
	}
}

// countingWriter tracks compressed bytes written to the underlying response.
type countingWriter struct {
	gin.ResponseWriter
	written int64
}

func (cw *countingWriter) Write(data []byte) (int, error) {
	n, err := cw.ResponseWriter.Write(data)
	cw.written += int64(n)
	return n, err
}

// gzipResponseWriter wraps the Gin response writer with gzip compression.
// The compress-or-not decision is made on the first write, before Gin flushes
// headers to the client.
type gzipResponseWriter struct {
	gin.ResponseWriter
	gzipWriter    *gzip.Writer
	minSize       int
	originalBytes int64
	compressed    bool
	decided       bool
}

func (gzw *gzipResponseWriter) Write(data []byte) (int, error) {
	gzw.originalBytes += int64(len(data))

	if !gzw.decided {
		gzw.decided = true
		if len(data) >= gzw.minSize {
			gzw.compressed = true
			gzw.Header().Set("Content-Encoding", "gzip")
			gzw.Header().Set("Vary", "Accept-Encoding")
			gzw.Header().Del("Content-Length")
		}
	}

	if gzw.compressed {
		return gzw.gzipWriter.Write(data)
	}
	return gzw.ResponseWriter.Write(data)
}

func (gzw *gzipResponseWriter) WriteString(s string) (int, error) {
	return gzw.Write([]byte(s))
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      int64
	CompressedRequests int64
	TotalBytes         int64
	CompressedBytes    int64
	mutex              sync.RWMutex
}

// NewCompressionStats creates new compression statistics
func NewCompressionStats() *CompressionStats {
	return &CompressionStats{}
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.TotalRequests++
	cs.TotalBytes += originalSize

	if compressed {
		cs.CompressedRequests++
		cs.CompressedBytes += compressedSize
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	compressionRatio := float64(0)
	if cs.TotalBytes > 0 {
		compressionRatio = float64(cs.CompressedBytes) / float64(cs.TotalBytes)
	}

	return map[string]interface{}{
		"total_requests":      cs.TotalRequests,
		"compressed_requests": cs.CompressedRequests,
		"total_bytes":         cs.TotalBytes,
		"compressed_bytes":    cs.CompressedBytes,
		"compression_ratio":   compressionRatio,
	}
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	stats := cm.stats.GetStats()
	stats["min_size_bytes"] = cm.config.MinSize
	return stats
}
