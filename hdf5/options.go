package hdf5

// FileOption configures Create.
type FileOption func(*fileOptions)

type fileOptions struct {
	offsetSize, lengthSize int
}

func defaultFileOptions() *fileOptions {
	return &fileOptions{offsetSize: 8, lengthSize: 8}
}

func validWidth(n int) bool { return n == 2 || n == 4 || n == 8 }

// WithOffsetSize sets the width of file addresses. Widths other than 2, 4
// and 8 are ignored.
func WithOffsetSize(n int) FileOption {
	return func(o *fileOptions) {
		if validWidth(n) {
			o.offsetSize = n
		}
	}
}

// WithLengthSize sets the width of stored lengths, like WithOffsetSize.
func WithLengthSize(n int) FileOption {
	return func(o *fileOptions) {
		if validWidth(n) {
			o.lengthSize = n
		}
	}
}

// DatasetOption configures CreateDataset.
type DatasetOption func(*datasetOptions)

type datasetOptions struct {
	chunks, maxDims []uint64
	deflate         int
	shuffle         bool
	fletcher32      bool
	attrs           []namedValue
}

type namedValue struct {
	name  string
	value any
}

// WithChunks stores the dataset in chunks of the given extent.
func WithChunks(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) { o.chunks = dims }
}

// WithMaxDims makes the dataset resizable up to dims, which implies chunked
// storage. Unlimited lifts the bound of a dimension.
func WithMaxDims(dims ...uint64) DatasetOption {
	return func(o *datasetOptions) { o.maxDims = dims }
}

// WithCompression deflates chunks at level 1 to 9. 0 disables it and other
// values are ignored.
func WithCompression(level int) DatasetOption {
	return func(o *datasetOptions) {
		if level >= 0 && level <= 9 {
			o.deflate = level
		}
	}
}

// WithShuffle byte-shuffles chunks ahead of deflate.
func WithShuffle() DatasetOption {
	return func(o *datasetOptions) { o.shuffle = true }
}

// WithFletcher32 appends a checksum to every chunk.
func WithFletcher32() DatasetOption {
	return func(o *datasetOptions) { o.fletcher32 = true }
}

// WithAttribute attaches an attribute when the dataset is created. value
// takes the forms SetAttribute accepts.
func WithAttribute(name string, value any) DatasetOption {
	return func(o *datasetOptions) {
		o.attrs = append(o.attrs, namedValue{name, value})
	}
}
