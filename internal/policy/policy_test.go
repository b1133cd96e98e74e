package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/robert-malhotra/go-h5store/internal/backend"
)

func ptr[T any](v T) *T { return &v }

func TestDecideLayout(t *testing.T) {
	p := Default()

	tests := []struct {
		name      string
		byteCount uint64
		rank      int
		desired   *backend.Layout
		want      backend.Layout
	}{
		{"small", 1024, 1, nil, backend.Contiguous},
		{"at threshold", DefaultChunkThreshold, 2, nil, backend.Contiguous},
		{"above threshold", DefaultChunkThreshold + 1, 2, nil, backend.Chunked},
		{"override chunked", 8, 1, ptr(backend.Chunked), backend.Chunked},
		{"override contiguous", 1 << 30, 1, ptr(backend.Contiguous), backend.Contiguous},
		{"scalar", 1 << 30, 0, ptr(backend.Chunked), backend.Contiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, p.DecideLayout(tt.byteCount, tt.rank, tt.desired))
		})
	}
}

func TestDecideExtensible(t *testing.T) {
	p := Default()
	big := uint64(DefaultExtendThreshold + 1)

	assert.False(t, p.DecideExtensible(1, 100, nil, nil, nil))
	assert.True(t, p.DecideExtensible(1, big, nil, nil, nil))
	assert.False(t, p.DecideExtensible(0, big, nil, nil, nil), "scalars never grow")
	assert.False(t, p.DecideExtensible(0, 8, ptr(true), nil, nil), "scalars ignore the preference")
	assert.True(t, p.DecideExtensible(2, 100, ptr(true), nil, nil))
	assert.False(t, p.DecideExtensible(2, big, ptr(false), nil, nil))

	p.DefaultExtendable = true
	assert.True(t, p.DecideExtensible(1, 100, nil, nil, nil))
	assert.False(t, p.DecideExtensible(1, 100, ptr(false), nil, nil))
}

func TestDecideExtensibleIndependentThresholds(t *testing.T) {
	p := Default()
	p.ChunkThreshold = 100
	p.ExtendThreshold = 10_000

	assert.Equal(t, backend.Chunked, p.DecideLayout(500, 1, nil))
	assert.False(t, p.DecideExtensible(1, 500, nil, nil, nil))
}

func TestDecideExtensibleExistingWins(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(core)
	p := Default()

	assert.False(t, p.DecideExtensible(2, 1<<30, ptr(true), ptr(false), log))
	assert.Equal(t, 1, logs.Len())
	assert.Equal(t, "ignoring extensibility change on existing entry", logs.All()[0].Message)

	assert.True(t, p.DecideExtensible(2, 1, ptr(true), ptr(true), log))
	assert.Equal(t, 1, logs.Len(), "matching preference does not warn")
}

func TestDefaultChunkShape(t *testing.T) {
	p := Default()
	u := backend.Unlimited

	tests := []struct {
		name      string
		extent    []uint64
		maxExtent []uint64
		elemSize  uint64
		desired   []uint64
		want      []uint64
	}{
		{"whole extent", []uint64{2, 10}, nil, 8, nil, []uint64{2, 10}},
		{"zero extent", []uint64{0, 4}, nil, 8, nil, []uint64{1, 4}},
		{"unlimited capped", []uint64{5000}, []uint64{u}, 1, nil, []uint64{1024}},
		{"halved to fit", []uint64{1024, 1024}, nil, 8, nil, []uint64{256, 512}},
		{"override", []uint64{100, 100}, nil, 8, []uint64{10, 0}, []uint64{10, 1}},
		{"override clamped to max", []uint64{4, 4}, []uint64{4, u}, 8, []uint64{64, 64}, []uint64{4, 64}},
		{"rank mismatch override ignored", []uint64{3, 3}, nil, 4, []uint64{1}, []uint64{3, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.DefaultChunkShape(tt.extent, tt.maxExtent, tt.elemSize, tt.desired)
			assert.Equal(t, tt.want, got)
			if tt.desired == nil {
				assert.LessOrEqual(t, chunkBytes(got, tt.elemSize), p.MaxChunkBytes)
			}
		})
	}
}
