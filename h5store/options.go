package h5store

import (
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/robert-malhotra/go-h5store/internal/backend"
	"github.com/robert-malhotra/go-h5store/internal/policy"
)

// CreateMode selects what Open does with the file on disk.
type CreateMode uint8

const (
	// ModeOpen opens an existing file, creating it when missing.
	ModeOpen CreateMode = iota
	// ModeTruncate replaces any existing file with an empty one.
	ModeTruncate
	// ModeRename creates a new file. When the path is taken, -1, -2, ...
	// is appended to the stem until a free name is found.
	ModeRename
)

func (m CreateMode) String() string {
	switch m {
	case ModeOpen:
		return "open"
	case ModeTruncate:
		return "truncate"
	case ModeRename:
		return "rename"
	default:
		return fmt.Sprintf("CreateMode(%d)", uint8(m))
	}
}

// ParseCreateMode parses "open", "truncate" or "rename".
func ParseCreateMode(s string) (CreateMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "open":
		return ModeOpen, nil
	case "truncate":
		return ModeTruncate, nil
	case "rename":
		return ModeRename, nil
	}
	return 0, fmt.Errorf("unknown create mode %q", s)
}

// AccessMode selects whether the file may be modified.
type AccessMode uint8

const (
	ReadWrite AccessMode = iota
	ReadOnly
)

func (m AccessMode) String() string {
	if m == ReadOnly {
		return "read-only"
	}
	return "read-write"
}

// Layout is the storage layout of an entry.
type Layout = backend.Layout

const (
	Contiguous = backend.Contiguous
	Chunked    = backend.Chunked
	Compact    = backend.Compact
)

// Unlimited marks an unbounded maximum extent.
const Unlimited = backend.Unlimited

type options struct {
	log         *zap.Logger
	createMode  CreateMode
	access      AccessMode
	policy      policy.Policy
	compression int
	registerer  prometheus.Registerer
}

func defaultOptions() options {
	return options{
		log:    zap.L(),
		policy: policy.Default(),
	}
}

// Option configures Open.
type Option func(*options)

// WithLogger sets the logger. The default is zap.L().
func WithLogger(log *zap.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCreateMode sets the create mode. The default is ModeOpen.
func WithCreateMode(m CreateMode) Option {
	return func(o *options) { o.createMode = m }
}

// WithAccessMode sets the access mode. The default is ReadWrite.
func WithAccessMode(m AccessMode) Option {
	return func(o *options) { o.access = m }
}

// WithCompressionLevel sets the deflate level used for new chunked entries
// when no per-entry level is given. Levels are clamped to 0..9.
func WithCompressionLevel(level int) Option {
	return func(o *options) { o.compression = level }
}

// WithDefaultExtendable makes new non-scalar entries extensible unless an
// entry option says otherwise.
func WithDefaultExtendable(on bool) Option {
	return func(o *options) { o.policy.DefaultExtendable = on }
}

// WithChunkThreshold sets the byte size above which new entries are chunked.
func WithChunkThreshold(n uint64) Option {
	return func(o *options) { o.policy.ChunkThreshold = n }
}

// WithExtendThreshold sets the byte size above which new entries are made
// extensible.
func WithExtendThreshold(n uint64) Option {
	return func(o *options) { o.policy.ExtendThreshold = n }
}

// WithMetrics registers operation counters with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) { o.registerer = reg }
}

// WithConfig applies every setting of cfg. Invalid mode strings are
// rejected by LoadConfig; here they fall back to the defaults.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.compression = cfg.CompressionLevel
		o.policy.DefaultExtendable = cfg.DefaultExtendable
		if cfg.ChunkThreshold > 0 {
			o.policy.ChunkThreshold = cfg.ChunkThreshold
		}
		if cfg.ExtendThreshold > 0 {
			o.policy.ExtendThreshold = cfg.ExtendThreshold
		}
		if m, err := ParseCreateMode(cfg.CreateMode); err == nil {
			o.createMode = m
		}
		if cfg.ReadOnly {
			o.access = ReadOnly
		}
	}
}

type entryOptions struct {
	extendable  *bool
	layout      *Layout
	chunkShape  []uint64
	compression *int
}

// EntryOption configures a single WriteEntry call. Creation settings are
// ignored, with a warning, when the entry already exists.
type EntryOption func(*entryOptions)

// WithExtendable requests an extensible (or fixed-size) entry.
func WithExtendable(on bool) EntryOption {
	return func(o *entryOptions) { o.extendable = &on }
}

// WithLayout requests a storage layout.
func WithLayout(l Layout) EntryOption {
	return func(o *entryOptions) { o.layout = &l }
}

// WithChunkShape requests a chunk shape. Its rank must match the data.
func WithChunkShape(dims ...uint64) EntryOption {
	return func(o *entryOptions) { o.chunkShape = append([]uint64(nil), dims...) }
}

// WithCompression requests a deflate level for this entry.
func WithCompression(level int) EntryOption {
	return func(o *entryOptions) { o.compression = &level }
}
