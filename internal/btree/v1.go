package btree

import (
	"encoding/binary"
	"errors"
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
	"github.com/robert-malhotra/go-h5store/internal/heap"
)

var ErrCorrupt = errors.New("corrupt b-tree")

const (
	nodeGroup uint8 = 0
	nodeChunk uint8 = 1
)

// SymbolEntry is one member of a symbol table group. SoftLink is the target
// path of a soft link and empty for hard links.
type SymbolEntry struct {
	Name          string
	ObjectAddress uint64
	SoftLink      string
}

// ChunkEntry locates one stored chunk. Offset is the element coordinate of
// the chunk's first element. A zero Size means the chunk is unfiltered and
// takes the full chunk size.
type ChunkEntry struct {
	Offset     []uint64
	Address    uint64
	Size       uint64
	FilterMask uint32
}

type v1Node struct {
	level    uint8
	keys     [][]byte
	children []uint64
}

func readV1Node(r *binpkg.Reader, addr uint64, nodeType uint8, keySize int) (*v1Node, error) {
	osz := r.OffsetSize()
	head, err := r.At(int64(addr)).ReadBytes(8 + 2*osz)
	if err != nil {
		return nil, fmt.Errorf("reading b-tree node at 0x%x: %w", addr, err)
	}
	if string(head[:4]) != "TREE" {
		return nil, fmt.Errorf("%w: signature %q at 0x%x", ErrCorrupt, head[:4], addr)
	}
	if head[4] != nodeType {
		return nil, fmt.Errorf("%w: node type %d, want %d", ErrCorrupt, head[4], nodeType)
	}
	n := &v1Node{level: head[5]}
	used := int(binary.LittleEndian.Uint16(head[6:]))

	body, err := r.At(int64(addr) + int64(len(head))).ReadBytes((used+1)*keySize + used*osz)
	if err != nil {
		return nil, fmt.Errorf("reading b-tree node entries: %w", err)
	}
	for i := 0; i < used; i++ {
		n.keys = append(n.keys, body[:keySize])
		n.children = append(n.children, leUint(body[keySize:keySize+osz]))
		body = body[keySize+osz:]
	}
	n.keys = append(n.keys, body[:keySize])
	return n, nil
}

// walkV1 calls visit with the left key and child address of every leaf
// entry below addr. want is the expected node level, or -1 for the root.
func walkV1(r *binpkg.Reader, addr uint64, nodeType uint8, keySize, want int, visit func(key []byte, child uint64) error) error {
	n, err := readV1Node(r, addr, nodeType, keySize)
	if err != nil {
		return err
	}
	if want >= 0 && int(n.level) != want {
		return fmt.Errorf("%w: node at 0x%x has level %d, want %d", ErrCorrupt, addr, n.level, want)
	}
	for i, child := range n.children {
		if n.level == 0 {
			err = visit(n.keys[i], child)
		} else {
			err = walkV1(r, child, nodeType, keySize, int(n.level)-1, visit)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadGroup lists the members of a symbol table group in B-tree order.
func ReadGroup(r *binpkg.Reader, btreeAddr uint64, names *heap.LocalHeap) ([]SymbolEntry, error) {
	var out []SymbolEntry
	err := walkV1(r, btreeAddr, nodeGroup, r.LengthSize(), -1, func(_ []byte, snod uint64) error {
		entries, err := readSymbolNode(r, snod, names)
		out = append(out, entries...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const cacheSoftLink = 2

func readSymbolNode(r *binpkg.Reader, addr uint64, names *heap.LocalHeap) ([]SymbolEntry, error) {
	head, err := r.At(int64(addr)).ReadBytes(8)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table node: %w", err)
	}
	if string(head[:4]) != "SNOD" {
		return nil, fmt.Errorf("%w: symbol table node signature %q", ErrCorrupt, head[:4])
	}
	if head[4] != 1 {
		return nil, fmt.Errorf("%w: symbol table node version %d", ErrCorrupt, head[4])
	}
	osz := r.OffsetSize()
	size := 2*osz + 24
	count := int(binary.LittleEndian.Uint16(head[6:]))
	body, err := r.At(int64(addr) + 8).ReadBytes(count * size)
	if err != nil {
		return nil, fmt.Errorf("reading symbol table entries: %w", err)
	}

	out := make([]SymbolEntry, 0, count)
	for i := 0; i < count; i++ {
		e := body[i*size : (i+1)*size]
		name, err := names.GetString(leUint(e[:osz]))
		if err != nil {
			return nil, fmt.Errorf("symbol %d name: %w", i, err)
		}
		entry := SymbolEntry{Name: name, ObjectAddress: leUint(e[osz : 2*osz])}
		scratch := e[2*osz+8:]
		if binary.LittleEndian.Uint32(e[2*osz:]) == cacheSoftLink {
			if entry.SoftLink, err = names.GetString(uint64(binary.LittleEndian.Uint32(scratch))); err != nil {
				return nil, fmt.Errorf("symbol %q target: %w", name, err)
			}
			entry.ObjectAddress = 0
		}
		out = append(out, entry)
	}
	return out, nil
}

// ReadChunks lists the chunks of a version 1 chunk B-tree. rank is the
// dataset rank; keys carry one more offset for the element size.
func ReadChunks(r *binpkg.Reader, btreeAddr uint64, rank int) ([]ChunkEntry, error) {
	var out []ChunkEntry
	keySize := 8 + 8*(rank+1)
	err := walkV1(r, btreeAddr, nodeChunk, keySize, -1, func(key []byte, child uint64) error {
		if r.IsUndefinedOffset(child) {
			return nil
		}
		e := ChunkEntry{
			Address:    child,
			Size:       uint64(binary.LittleEndian.Uint32(key)),
			FilterMask: binary.LittleEndian.Uint32(key[4:]),
			Offset:     make([]uint64, rank),
		}
		for d := range e.Offset {
			e.Offset[d] = binary.LittleEndian.Uint64(key[8+8*d:])
		}
		out = append(out, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func leUint(b []byte) uint64 {
	var v uint64
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
