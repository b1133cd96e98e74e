// Package superblock reads HDF5 superblocks of every version and writes the
// version 2 and 3 form, the fixed-size record at the start of a file that
// names the sizes of addresses and lengths, the logical end of file and the
// root group.
//
// Version 2 and 3 layout, with O the size of offsets:
//
//	0       8  signature
//	8       1  version
//	9       1  size of offsets
//	10      1  size of lengths
//	11      1  file consistency flags
//	12      O  base address
//	12+O    O  superblock extension address
//	12+2O   O  end of file address
//	12+3O   O  root group object header address
//	12+4O   4  lookup3 checksum
//
// Versions 0 and 1 carry format versions and B-tree constants between the
// sizes and the addresses, a driver information address, and end with the
// root group's symbol table entry. Its scratch pad caches the addresses of
// the root group's B-tree and local heap.
package superblock

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// Signature opens every HDF5 file.
var Signature = []byte{0x89, 'H', 'D', 'F', '\r', '\n', 0x1a, '\n'}

// A superblock may follow a user block, so the signature is searched for at
// these offsets in order.
var searchOffsets = []int64{0, 512, 1024, 2048}

var (
	ErrNotHDF5            = errors.New("not an HDF5 file: signature not found")
	ErrUnsupportedVersion = errors.New("unsupported superblock version")
	ErrInvalidSuperblock  = errors.New("invalid superblock structure")
)

const fixedSize = 12

// Superblock holds the file-level metadata of a superblock.
type Superblock struct {
	Version              uint8
	OffsetSize           uint8
	LengthSize           uint8
	FileConsistencyFlags uint8

	BaseAddress                uint64
	SuperblockExtensionAddress uint64
	EOFAddress                 uint64
	RootGroupAddress           uint64

	// Versions 0 and 1 only.
	DriverInfoAddress         uint64
	RootGroupBTreeAddress     uint64
	RootGroupLocalHeapAddress uint64

	ByteOrder binary.ByteOrder

	// FileOffset is where the signature was found.
	FileOffset int64
}

// NewSuperblock returns a version 3 superblock with 8-byte addresses and
// lengths and no extension.
func NewSuperblock() *Superblock {
	return &Superblock{
		Version:                    3,
		OffsetSize:                 8,
		LengthSize:                 8,
		SuperblockExtensionAddress: undefined(8),
		ByteOrder:                  binary.LittleEndian,
	}
}

// Read locates the signature and parses the superblock that follows it.
func Read(r io.ReaderAt) (*Superblock, error) {
	head := make([]byte, fixedSize)
	for _, off := range searchOffsets {
		if _, err := r.ReadAt(head, off); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, err
		}
		if !bytes.Equal(head[:8], Signature) {
			continue
		}

		switch v := head[8]; v {
		case 0, 1:
			return parseLegacy(r, off, v)
		case 2, 3:
			return parse(r, off, head)
		default:
			return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, v)
		}
	}
	return nil, ErrNotHDF5
}

func parse(r io.ReaderAt, off int64, head []byte) (*Superblock, error) {
	sb := &Superblock{
		Version:              head[8],
		OffsetSize:           head[9],
		LengthSize:           head[10],
		FileConsistencyFlags: head[11],
		ByteOrder:            binary.LittleEndian,
		FileOffset:           off,
	}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}

	body := make([]byte, sb.Size())
	if _, err := r.ReadAt(body, off); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSuperblock, err)
	}
	sum := len(body) - 4
	if binary.LittleEndian.Uint32(body[sum:]) != binpkg.Lookup3Checksum(body[:sum]) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrInvalidSuperblock)
	}

	br := binpkg.NewReader(bytes.NewReader(body), sb.ReaderConfig()).At(fixedSize)
	for _, dst := range []*uint64{&sb.BaseAddress, &sb.SuperblockExtensionAddress, &sb.EOFAddress, &sb.RootGroupAddress} {
		v, err := br.ReadOffset()
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	return sb, nil
}

// parseLegacy reads a version 0 or 1 superblock, which carries no checksum.
func parseLegacy(r io.ReaderAt, off int64, version uint8) (*Superblock, error) {
	fixed := 24
	if version == 1 {
		fixed += 4
	}
	head := make([]byte, fixed)
	if _, err := r.ReadAt(head, off); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSuperblock, err)
	}
	sb := &Superblock{
		Version:              version,
		OffsetSize:           head[13],
		LengthSize:           head[14],
		FileConsistencyFlags: head[20],
		ByteOrder:            binary.LittleEndian,
		FileOffset:           off,
	}
	if !validSize(sb.OffsetSize) || !validSize(sb.LengthSize) {
		return nil, fmt.Errorf("%w: offset size %d, length size %d", ErrInvalidSuperblock, sb.OffsetSize, sb.LengthSize)
	}
	if head[10] != 0 {
		return nil, fmt.Errorf("%w: root symbol table entry version %d", ErrUnsupportedVersion, head[10])
	}

	o := int(sb.OffsetSize)
	body := make([]byte, 4*o+2*o+24)
	if _, err := r.ReadAt(body, off+int64(fixed)); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSuperblock, err)
	}
	br := binpkg.NewReader(bytes.NewReader(body), sb.ReaderConfig())
	var freeSpace, linkName uint64
	for _, dst := range []*uint64{&sb.BaseAddress, &freeSpace, &sb.EOFAddress, &sb.DriverInfoAddress, &linkName, &sb.RootGroupAddress} {
		v, err := br.ReadOffset()
		if err != nil {
			return nil, err
		}
		*dst = v
	}
	cache, err := br.ReadUint32()
	if err != nil {
		return nil, err
	}
	br.Skip(4)
	sb.RootGroupBTreeAddress, sb.RootGroupLocalHeapAddress = undefined(o), undefined(o)
	if cache == 1 {
		if sb.RootGroupBTreeAddress, err = br.ReadOffset(); err != nil {
			return nil, err
		}
		if sb.RootGroupLocalHeapAddress, err = br.ReadOffset(); err != nil {
			return nil, err
		}
	}
	return sb, nil
}

// Write encodes the superblock at the writer's position and returns the
// number of bytes written. Versions below 2 are written as version 2.
func (sb *Superblock) Write(w *binpkg.Writer) (int64, error) {
	version := sb.Version
	if version < 2 {
		version = 2
	}
	size := int(sb.OffsetSize)

	buf := make([]byte, 0, sb.Size())
	buf = append(buf, Signature...)
	buf = append(buf, version, sb.OffsetSize, sb.LengthSize, sb.FileConsistencyFlags)

	ext := sb.SuperblockExtensionAddress
	if ext == 0 {
		ext = undefined(size)
	}
	for _, v := range []uint64{sb.BaseAddress, ext, sb.EOFAddress, sb.RootGroupAddress} {
		buf = appendUint(buf, v, size)
	}
	buf = binary.LittleEndian.AppendUint32(buf, binpkg.Lookup3Checksum(buf))

	if err := w.WriteBytes(buf); err != nil {
		return 0, err
	}
	return int64(len(buf)), nil
}

// Size is the encoded length of the superblock.
func (sb *Superblock) Size() int {
	size := int(sb.OffsetSize)
	if size == 0 {
		size = 8
	}
	return fixedSize + 4*size + 4
}

// ReaderConfig returns the binary configuration for reading the file.
func (sb *Superblock) ReaderConfig() binpkg.Config {
	order := sb.ByteOrder
	if order == nil {
		order = binary.LittleEndian
	}
	return binpkg.Config{
		ByteOrder:  order,
		OffsetSize: int(sb.OffsetSize),
		LengthSize: int(sb.LengthSize),
	}
}

func validSize(n uint8) bool {
	return n == 2 || n == 4 || n == 8
}

func undefined(size int) uint64 {
	if size >= 8 {
		return ^uint64(0)
	}
	return 1<<(8*size) - 1
}

func appendUint(buf []byte, v uint64, size int) []byte {
	for i := 0; i < size; i++ {
		buf = append(buf, byte(v>>(8*i)))
	}
	return buf
}
