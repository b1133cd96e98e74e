package hdf5

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/robert-malhotra/go-h5store/internal/alloc"
	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/object"
	"github.com/robert-malhotra/go-h5store/internal/superblock"
)

// Create truncates or creates the file at path and returns it open for
// writing. New files carry a version 3 superblock and version 2 object
// headers, with an empty root group right after the superblock.
func Create(path string, opts ...FileOption) (*File, error) {
	o := defaultFileOptions()
	for _, opt := range opts {
		opt(o)
	}
	osFile, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	sb := superblock.NewSuperblock()
	sb.OffsetSize, sb.LengthSize = uint8(o.offsetSize), uint8(o.lengthSize)
	cfg := binpkg.Config{ByteOrder: binary.LittleEndian, OffsetSize: o.offsetSize, LengthSize: o.lengthSize}
	w := binpkg.NewWriter(osFile, cfg)

	root := object.NewEmptyGroupHeader()
	sb.RootGroupAddress = uint64(sb.Size())
	sb.EOFAddress = sb.RootGroupAddress + uint64(object.HeaderSizeWithMinChunk(w, root, object.MinGroupChunkSize))

	err = func() error {
		if _, err := sb.Write(w); err != nil {
			return err
		}
		_, err := object.WriteHeaderWithMinChunk(w.At(int64(sb.RootGroupAddress)), root, object.MinGroupChunkSize)
		return err
	}()
	if err == nil {
		var f *File
		if f, err = writable(path, osFile, sb, sb.EOFAddress); err == nil {
			return f, nil
		}
	}
	osFile.Close()
	os.Remove(path)
	return nil, err
}

// OpenReadWrite opens an existing file for writing. New objects go after
// the current end of file and modified headers are rewritten copy-on-write
// up to the root group.
func OpenReadWrite(path string) (*File, error) {
	osFile, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	sb, err := superblock.Read(osFile)
	if err == nil && sb.Version < 2 {
		err = fmt.Errorf("%w: writing to superblock version %d", ErrUnsupported, sb.Version)
	}
	if err != nil {
		osFile.Close()
		return nil, err
	}

	eof := sb.EOFAddress
	if info, err := osFile.Stat(); err == nil {
		eof = max(eof, uint64(info.Size()))
	}
	f, err := writable(path, osFile, sb, eof)
	if err != nil {
		osFile.Close()
		return nil, err
	}
	return f, nil
}

func writable(path string, osFile *os.File, sb *superblock.Superblock, eof uint64) (*File, error) {
	cfg := sb.ReaderConfig()
	f := &File{
		path:       path,
		file:       osFile,
		reader:     binpkg.NewReader(osFile, cfg),
		superblock: sb,
		writable:   true,
		writer:     binpkg.NewWriter(osFile, cfg),
		allocator:  alloc.New(eof),
	}
	if err := f.reloadRoot(); err != nil {
		return nil, fmt.Errorf("opening root group: %w", err)
	}
	return f, nil
}

// Flush stores the superblock, with the current root group address and end
// of file, and syncs the file. It does nothing on a read-only file.
func (f *File) Flush() error {
	if !f.writable {
		return nil
	}
	if f.closed {
		return ErrClosed
	}
	return f.flush()
}

func (f *File) flush() error {
	f.superblock.EOFAddress = f.allocator.EOFAddr()
	if _, err := f.superblock.Write(f.writer.At(0)); err != nil {
		return err
	}
	return f.file.Sync()
}

func (f *File) IsWritable() bool { return f.writable }

// AllocStats reports the space handed out since the file was opened for
// writing. It is zero for read-only files.
func (f *File) AllocStats() alloc.Stats {
	if f.allocator == nil {
		return alloc.Stats{}
	}
	return f.allocator.Stats()
}

func (f *File) allocate(size int64) uint64 {
	return f.allocator.Alloc(uint64(size))
}

func (f *File) checkWritable() error {
	switch {
	case f.closed:
		return ErrClosed
	case !f.writable:
		return ErrReadOnly
	}
	return nil
}

func (f *File) reloadRoot() error {
	root, err := f.openGroupAt(f.superblock.RootGroupAddress, "/")
	if err != nil {
		return err
	}
	f.root = root
	return nil
}
