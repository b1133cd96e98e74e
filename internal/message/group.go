package message

import (
	"fmt"

	binpkg "github.com/robert-malhotra/go-h5store/internal/binary"
)

// LinkInfo opens the header of a group that stores its links as link
// messages. Only the empty, compact form is written, so both index
// addresses are undefined.
type LinkInfo struct{}

func NewLinkInfo() *LinkInfo { return &LinkInfo{} }

func (m *LinkInfo) Type() Type { return TypeLinkInfo }

func (m *LinkInfo) appendTo(buf []byte, sz sizes) []byte {
	buf = append(buf, 0, 0)
	buf = appendUint(buf, allOnes(sz.offset), sz.offset)
	return appendUint(buf, allOnes(sz.offset), sz.offset)
}

func (m *LinkInfo) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *LinkInfo) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }

// GroupInfo carries the link storage thresholds of a group. The written
// form has none and falls back to the library defaults.
type GroupInfo struct{}

func NewGroupInfo() *GroupInfo { return &GroupInfo{} }

func (m *GroupInfo) Type() Type { return TypeGroupInfo }

func (m *GroupInfo) appendTo(buf []byte, _ sizes) []byte { return append(buf, 0, 0) }

func (m *GroupInfo) Serialize(w *binpkg.Writer) error    { return writeMessage(w, m) }
func (m *GroupInfo) SerializedSize(w *binpkg.Writer) int { return messageSize(w, m) }

// SymbolTable marks a group whose links live in a version 1 B-tree of
// symbol table nodes, with the link names in a local heap.
type SymbolTable struct {
	BTreeAddress uint64
	HeapAddress  uint64
}

func (m *SymbolTable) Type() Type { return TypeSymbolTable }

func parseSymbolTable(data []byte, sz sizes) (*SymbolTable, error) {
	d := decoder{buf: data, sizes: sz}
	st := &SymbolTable{BTreeAddress: d.offset(), HeapAddress: d.offset()}
	if d.err != nil {
		return nil, fmt.Errorf("symbol table: %w", d.err)
	}
	return st, nil
}
