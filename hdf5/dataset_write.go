package hdf5

import (
	"fmt"
	"path"
	"reflect"

	"github.com/robert-malhotra/go-h5store/internal/dtype"
	"github.com/robert-malhotra/go-h5store/internal/filter"
	"github.com/robert-malhotra/go-h5store/internal/layout"
	"github.com/robert-malhotra/go-h5store/internal/message"
	"github.com/robert-malhotra/go-h5store/internal/object"
)

// CreateDataset creates an empty dataset at the absolute path p with the
// given element type and dimensions. Missing parent groups are created.
// A nil dims creates a scalar dataset.
//
// The dataset is chunked when WithChunks or WithMaxDims is given, otherwise
// contiguous. Storage is allocated on first write; until then the dataset
// reads as zeros.
func (f *File) CreateDataset(p string, dt *message.Datatype, dims []uint64, opts ...DatasetOption) (*Dataset, error) {
	if err := f.checkWritable(); err != nil {
		return nil, err
	}
	if dt == nil {
		return nil, fmt.Errorf("nil datatype")
	}

	p = CleanPath(p)
	if p == "/" {
		return nil, fmt.Errorf("%w: dataset path cannot be the root group", ErrInvalidPath)
	}

	options := &datasetOptions{}
	for _, opt := range opts {
		opt(options)
	}

	parts, err := f.newDatasetParts(dt, dims, options)
	if err != nil {
		return nil, err
	}

	for _, attr := range options.attrs {
		attrMsg, err := createAttributeMessage(attr.name, attr.value)
		if err != nil {
			return nil, fmt.Errorf("creating attribute %q: %w", attr.name, err)
		}
		parts.attrs = append(parts.attrs, attrMsg)
	}

	parent := path.Dir(p)
	if err := f.ensureGroup(parent); err != nil {
		return nil, err
	}

	addr, err := f.writeHeader(parts.messages(), 0)
	if err != nil {
		return nil, err
	}
	if err := f.addLink(parent, message.NewHardLink(path.Base(p), addr)); err != nil {
		return nil, err
	}

	return f.openDatasetAt(addr, p)
}

func (f *File) newDatasetParts(dt *message.Datatype, dims []uint64, options *datasetOptions) (*datasetParts, error) {
	parts := &datasetParts{datatype: dt}

	if dims == nil {
		if options.chunks != nil || options.maxDims != nil {
			return nil, fmt.Errorf("%w: scalar datasets cannot be chunked", ErrUnsupported)
		}
		parts.dataspace = message.NewScalarDataspace()
		parts.layout = message.NewContiguousLayout(f.writer.UndefinedOffset(), uint64(dt.Size))
		return parts, nil
	}

	if options.maxDims != nil {
		if len(options.maxDims) != len(dims) {
			return nil, fmt.Errorf("max dims rank %d does not match rank %d", len(options.maxDims), len(dims))
		}
		for i, m := range options.maxDims {
			if m != Unlimited && m < dims[i] {
				return nil, fmt.Errorf("max dim %d (%d) is smaller than dim (%d)", i, m, dims[i])
			}
		}
	}
	parts.dataspace = message.NewDataspace(dims, options.maxDims)

	if options.chunks == nil && options.maxDims == nil {
		parts.layout = message.NewContiguousLayout(f.writer.UndefinedOffset(), dtype.DataSize(dt, numElements(dims)))
		return parts, nil
	}

	chunks := options.chunks
	if chunks == nil {
		chunks = make([]uint64, len(dims))
		for i, d := range dims {
			chunks[i] = max(d, 1)
		}
	}
	if len(chunks) != len(dims) {
		return nil, fmt.Errorf("chunk rank %d does not match rank %d", len(chunks), len(dims))
	}
	chunkDims := make([]uint32, len(chunks))
	for i, c := range chunks {
		if c == 0 || c > 0xFFFFFFFF {
			return nil, fmt.Errorf("invalid chunk dimension %d: %d", i, c)
		}
		chunkDims[i] = uint32(c)
	}

	parts.layout = message.NewChunkedLayout(chunkDims, dt.Size, message.ChunkIndexFixedArray)
	parts.layout.ChunkIndexAddr = f.writer.UndefinedOffset()

	parts.filters = message.NewFilterPipeline(dt.Size, options.deflate, options.shuffle)
	if options.fletcher32 {
		if parts.filters == nil {
			parts.filters = &message.FilterPipeline{Version: 2}
		}
		parts.filters.Filters = append(parts.filters.Filters, message.FilterInfo{
			ID:   message.FilterFletcher32,
			Name: "fletcher32",
		})
	}

	return parts, nil
}

// Unlimited marks a dataset dimension that can grow without bound.
const Unlimited = message.Unlimited

// CreateDataset creates a new dataset with the given name relative to g and
// writes data to it. The datatype and dimensions are inferred from the Go
// value, which may be a scalar, a slice, or nested slices.
func (g *Group) CreateDataset(name string, data interface{}, opts ...DatasetOption) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: dataset name cannot be empty", ErrInvalidPath)
	}

	dataVal := reflect.ValueOf(data)
	if dataVal.Kind() == reflect.Ptr {
		dataVal = dataVal.Elem()
	}

	dims, elemType, err := inferDimensionsAndType(dataVal)
	if err != nil {
		return nil, fmt.Errorf("inferring dimensions: %w", err)
	}

	datatype, err := dtype.GoTypeToDatatype(elemType)
	if err != nil {
		return nil, fmt.Errorf("creating datatype: %w", err)
	}

	ds, err := g.file.CreateDataset(path.Join(g.path, name), datatype, dims, opts...)
	if err != nil {
		return nil, err
	}
	if err := ds.Write(flatten(dataVal)); err != nil {
		return nil, err
	}
	return ds, nil
}

// CreateDatasetWithType creates a new dataset with explicit dimensions and
// datatype. Its contents are written later with Write or WriteRegion.
func (g *Group) CreateDatasetWithType(name string, dims []uint64, dt *message.Datatype, opts ...DatasetOption) (*Dataset, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: dataset name cannot be empty", ErrInvalidPath)
	}
	return g.file.CreateDataset(path.Join(g.path, name), dt, dims, opts...)
}

// Write encodes data with the dataset's datatype and overwrites the whole
// dataset.
func (d *Dataset) Write(data interface{}) error {
	raw, err := dtype.Encode(d.datatype, data)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}
	return d.WriteRegion(nil, d.Shape(), raw)
}

// WriteRegion writes buf, a row-major block with count elements per
// dimension, at offset start. A nil start writes from the origin.
func (d *Dataset) WriteRegion(start, count []uint64, buf []byte) error {
	if err := d.file.checkWritable(); err != nil {
		return err
	}

	dims := d.Shape()
	if start == nil {
		start = make([]uint64, len(dims))
	}
	if err := checkRegion(dims, start, count); err != nil {
		return err
	}

	elemSize := uint64(d.datatype.Size)
	if want := numElements(count) * elemSize; uint64(len(buf)) != want {
		return fmt.Errorf("data size mismatch: expected %d bytes, got %d", want, len(buf))
	}

	data := buf
	if !coversAll(dims, start, count) {
		current, err := d.layout.Read()
		if err != nil {
			return fmt.Errorf("reading current contents: %w", err)
		}
		layout.CopyRegion(current, dims, start, buf, count, make([]uint64, len(count)), count, elemSize)
		data = current
	}

	switch d.layoutMsg.Class {
	case message.LayoutContiguous:
		return d.writeContiguous(data)
	case message.LayoutCompact:
		return d.commit(d.dataspace, message.NewCompactLayout(data))
	case message.LayoutChunked:
		return d.writeChunks(d.dataspace, data)
	default:
		return fmt.Errorf("%w: writing layout class %d", ErrUnsupported, d.layoutMsg.Class)
	}
}

func (d *Dataset) writeContiguous(data []byte) error {
	addr := d.layoutMsg.Address
	if addr != d.file.writer.UndefinedOffset() {
		if err := d.file.writer.At(int64(addr)).WriteBytes(data); err != nil {
			return fmt.Errorf("writing data: %w", err)
		}
		return nil
	}

	addr = d.file.allocate(int64(len(data)))
	if err := d.file.writer.At(int64(addr)).WriteBytes(data); err != nil {
		return fmt.Errorf("writing data: %w", err)
	}
	return d.commit(d.dataspace, message.NewContiguousLayout(addr, uint64(len(data))))
}

// writeChunks stores data, the full row-major contents for space, as a new
// set of chunks indexed by a Fixed Array over the maximum extent.
func (d *Dataset) writeChunks(space *message.Dataspace, data []byte) error {
	chunkDims := d.ChunkDims32()

	pipeline, err := filter.NewPipeline(d.filters)
	if err != nil {
		return fmt.Errorf("creating filter pipeline: %w", err)
	}

	cw := layout.NewChunkWriter(d.file.writer, chunkDims, d.datatype.Size, d.file.allocate).WithPipeline(pipeline)
	chunks := layout.SplitIntoChunks(data, space.Dimensions, chunkDims, d.datatype.Size)

	records, err := cw.WriteChunks(chunks)
	if err != nil {
		return fmt.Errorf("writing chunks: %w", err)
	}
	records = layout.SpreadOverGrid(records, space.Dimensions, space.MaxExtent(), chunkDims, d.file.writer.UndefinedOffset())
	indexAddr, err := cw.WriteFixedArrayIndex(records)
	if err != nil {
		return fmt.Errorf("writing chunk index: %w", err)
	}

	lay := message.NewChunkedLayout(chunkDims, d.datatype.Size, message.ChunkIndexFixedArray)
	lay.ChunkIndexAddr = indexAddr
	lay.IndexParams = []byte{layout.FixedArrayPageBits(len(records))}

	return d.commit(space, lay)
}

// Resize changes the dimensions of a chunked dataset. Data inside the
// overlap of the old and new shapes is preserved; new elements read as zero.
func (d *Dataset) Resize(dims []uint64) error {
	if err := d.file.checkWritable(); err != nil {
		return err
	}
	if d.layoutMsg.Class != message.LayoutChunked {
		return fmt.Errorf("%w: %s has %s layout", ErrNotResizable, d.path, layoutName(d.layoutMsg.Class))
	}

	old := d.Shape()
	if len(dims) != len(old) {
		return fmt.Errorf("resize rank %d does not match rank %d", len(dims), len(old))
	}
	maxDims := d.MaxDims()
	same := true
	for i, n := range dims {
		if maxDims[i] != Unlimited && n > maxDims[i] {
			return fmt.Errorf("%w: dimension %d: %d exceeds max %d", ErrOutOfBounds, i, n, maxDims[i])
		}
		same = same && n == old[i]
	}
	if same {
		return nil
	}

	current, err := d.layout.Read()
	if err != nil {
		return fmt.Errorf("reading current contents: %w", err)
	}

	elemSize := uint64(d.datatype.Size)
	resized := make([]byte, numElements(dims)*elemSize)
	overlap := make([]uint64, len(dims))
	for i := range dims {
		overlap[i] = min(dims[i], old[i])
	}
	origin := make([]uint64, len(dims))
	layout.CopyRegion(resized, dims, origin, current, old, origin, overlap, elemSize)

	space := message.NewDataspace(append([]uint64(nil), dims...), d.dataspace.MaxDims)
	return d.writeChunks(space, resized)
}

// commit rewrites the dataset's object header with a new dataspace and
// layout, keeping datatype, filters and attributes, and reloads d.
func (d *Dataset) commit(space *message.Dataspace, lay *message.DataLayout) error {
	h, err := d.file.lookupHard(d.path)
	if err != nil {
		return err
	}
	parts, err := d.file.splitDataset(h)
	if err != nil {
		return err
	}
	parts.dataspace = space
	parts.layout = lay

	addr, err := d.file.commitHeader(d.path, parts.messages(), 0)
	if err != nil {
		return err
	}
	return d.reload(addr)
}

func (d *Dataset) reload(addr uint64) error {
	header, err := object.Read(d.file.reader, addr)
	if err != nil {
		return fmt.Errorf("reading object header: %w", err)
	}
	fresh, err := newDataset(d.file, d.path, header)
	if err != nil {
		return err
	}
	*d = *fresh
	return nil
}

// ReadRegion reads a row-major block with count elements per dimension
// starting at start.
func (d *Dataset) ReadRegion(start, count []uint64) ([]byte, error) {
	dims := d.Shape()
	if start == nil {
		start = make([]uint64, len(dims))
	}
	if err := checkRegion(dims, start, count); err != nil {
		return nil, err
	}
	if coversAll(dims, start, count) {
		return d.layout.Read()
	}
	return d.layout.ReadSlice(start, count)
}

// MaxDims returns the maximum dimensions. Unbounded dimensions are Unlimited.
func (d *Dataset) MaxDims() []uint64 {
	if d.dataspace.IsScalar() {
		return nil
	}
	return d.dataspace.MaxExtent()
}

// LayoutClass returns the storage layout class.
func (d *Dataset) LayoutClass() message.LayoutClass {
	return d.layoutMsg.Class
}

// ChunkDims returns the chunk dimensions of a chunked dataset, or nil.
func (d *Dataset) ChunkDims() []uint64 {
	dims32 := d.ChunkDims32()
	if dims32 == nil {
		return nil
	}
	dims := make([]uint64, len(dims32))
	for i, c := range dims32 {
		dims[i] = uint64(c)
	}
	return dims
}

// ChunkDims32 returns the chunk dimensions without the trailing element size
// entry the layout message carries.
func (d *Dataset) ChunkDims32() []uint32 {
	if d.layoutMsg.Class != message.LayoutChunked || len(d.layoutMsg.ChunkDims) == 0 {
		return nil
	}
	n := len(d.layoutMsg.ChunkDims) - 1
	return append([]uint32(nil), d.layoutMsg.ChunkDims[:n]...)
}

// Datatype returns the element datatype.
func (d *Dataset) Datatype() *message.Datatype {
	return d.datatype
}

// CompressionLevel returns the deflate level applied to chunks, 0 if none.
func (d *Dataset) CompressionLevel() int {
	return d.filters.DeflateLevel()
}

// LayoutName returns the storage layout as a lowercase word.
func (d *Dataset) LayoutName() string {
	return layoutName(d.LayoutClass())
}

func layoutName(c message.LayoutClass) string {
	switch c {
	case message.LayoutCompact:
		return "compact"
	case message.LayoutContiguous:
		return "contiguous"
	case message.LayoutChunked:
		return "chunked"
	case message.LayoutVirtual:
		return "virtual"
	default:
		return fmt.Sprintf("class %d", c)
	}
}

func numElements(dims []uint64) uint64 {
	n := uint64(1)
	for _, d := range dims {
		n *= d
	}
	return n
}

func checkRegion(dims, start, count []uint64) error {
	if len(start) != len(dims) || len(count) != len(dims) {
		return fmt.Errorf("%w: selection rank %d/%d for rank %d", ErrOutOfBounds, len(start), len(count), len(dims))
	}
	for i := range dims {
		if start[i]+count[i] > dims[i] {
			return fmt.Errorf("%w: dimension %d: %d+%d > %d", ErrOutOfBounds, i, start[i], count[i], dims[i])
		}
	}
	return nil
}

func coversAll(dims, start, count []uint64) bool {
	for i := range dims {
		if start[i] != 0 || count[i] != dims[i] {
			return false
		}
	}
	return true
}

// inferDimensionsAndType infers the dimensions and element type from a Go value.
func inferDimensionsAndType(val reflect.Value) ([]uint64, reflect.Type, error) {
	var dims []uint64
	current := val

	for {
		switch current.Kind() {
		case reflect.Slice, reflect.Array:
			dims = append(dims, uint64(current.Len()))
			if current.Len() == 0 {
				return dims, current.Type().Elem(), nil
			}
			current = current.Index(0)
		default:
			if len(dims) == 0 {
				// Scalar values are stored as a single-element 1-D dataset.
				dims = []uint64{1}
			}
			return dims, current.Type(), nil
		}
	}
}

// flatten turns nested slices into a flat slice in row-major order so it can
// be encoded. Flat slices and scalars are returned unchanged.
func flatten(val reflect.Value) interface{} {
	if val.Kind() != reflect.Slice && val.Kind() != reflect.Array {
		return val.Interface()
	}
	if val.Len() == 0 {
		return val.Interface()
	}
	inner := val.Index(0).Kind()
	if inner != reflect.Slice && inner != reflect.Array {
		return val.Interface()
	}

	var leafType reflect.Type
	var walk func(v reflect.Value, out reflect.Value) reflect.Value
	walk = func(v reflect.Value, out reflect.Value) reflect.Value {
		for i := 0; i < v.Len(); i++ {
			e := v.Index(i)
			if e.Kind() == reflect.Slice || e.Kind() == reflect.Array {
				out = walk(e, out)
			} else {
				out = reflect.Append(out, e)
			}
		}
		return out
	}

	leafType = val.Type()
	for leafType.Kind() == reflect.Slice || leafType.Kind() == reflect.Array {
		leafType = leafType.Elem()
	}
	out := walk(val, reflect.MakeSlice(reflect.SliceOf(leafType), 0, 0))
	return out.Interface()
}
