package filter

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/robert-malhotra/go-h5store/internal/message"
)

// Deflate implements the DEFLATE filter (zlib stream per chunk).
type Deflate struct {
	level int
}

// NewDeflate creates a new DEFLATE filter.
// Client data: [0] = compression level (0-9, or default if empty)
func NewDeflate(clientData []uint32) *Deflate {
	level := 6 // Default compression level
	if len(clientData) > 0 {
		level = int(clientData[0])
	}
	if level > 9 {
		level = 9
	}
	return &Deflate{level: level}
}

func (f *Deflate) ID() uint16 {
	return message.FilterDeflate
}

// Level returns the configured compression level.
func (f *Deflate) Level() int {
	return f.level
}

func (f *Deflate) Decode(input []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(input))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer r.Close()

	output, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}

	return output, nil
}

// Encode compresses input into a zlib stream at the filter's level.
func (f *Deflate) Encode(input []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(input)/2 + 64)

	zw, err := acquireEncoder(&buf, f.level)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(input); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	releaseEncoder(zw, f.level)

	return buf.Bytes(), nil
}

// encoderPools holds one pool of zlib writers per compression level.
var (
	encoderMu    sync.Mutex
	encoderPools = map[int]*sync.Pool{}
)

func acquireEncoder(w io.Writer, level int) (*zlib.Writer, error) {
	encoderMu.Lock()
	pool, ok := encoderPools[level]
	if !ok {
		pool = &sync.Pool{}
		encoderPools[level] = pool
	}
	encoderMu.Unlock()

	if zw, ok := pool.Get().(*zlib.Writer); ok {
		zw.Reset(w)
		return zw, nil
	}
	return zlib.NewWriterLevel(w, level)
}

func releaseEncoder(zw *zlib.Writer, level int) {
	encoderMu.Lock()
	pool := encoderPools[level]
	encoderMu.Unlock()
	if pool != nil {
		pool.Put(zw)
	}
}

// ReleaseEncoders drops every pooled zlib writer.
func ReleaseEncoders() {
	encoderMu.Lock()
	encoderPools = map[int]*sync.Pool{}
	encoderMu.Unlock()
}
