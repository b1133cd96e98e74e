// Package tensor provides dense N-dimensional numeric blocks in row-major
// and column-major storage order.
//
// Both types store their elements in a single flat slice. RowMajor keeps the
// last index contiguous, ColMajor the first. Stores persist both in row-major
// order and transpose ColMajor blocks on the way in and out.
package tensor

import (
	"fmt"
)

// Number is the set of element types a block can hold.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64 |
		~complex64 | ~complex128
}

// Order is the storage order of a block.
type Order uint8

const (
	RowMajorOrder Order = iota
	ColMajorOrder
)

func (o Order) String() string {
	if o == ColMajorOrder {
		return "col-major"
	}
	return "row-major"
}

// Block is implemented by *RowMajor and *ColMajor.
type Block interface {
	Dims() []int
	Order() Order
	// Raw returns the backing slice in storage order.
	Raw() any
	// Resize reshapes the block, discarding its contents.
	Resize(dims ...int)
}

type dense[T Number] struct {
	dims []int
	data []T
}

func newDense[T Number](dims []int) dense[T] {
	return dense[T]{dims: append([]int(nil), dims...), data: make([]T, volume(dims))}
}

func fromData[T Number](data []T, dims []int) (dense[T], error) {
	if n := volume(dims); n != len(data) {
		return dense[T]{}, fmt.Errorf("tensor: %d elements do not fill shape %v (%d)", len(data), dims, n)
	}
	return dense[T]{dims: append([]int(nil), dims...), data: data}, nil
}

// Dims returns a copy of the dimensions.
func (d *dense[T]) Dims() []int { return append([]int(nil), d.dims...) }

// Rank returns the number of dimensions.
func (d *dense[T]) Rank() int { return len(d.dims) }

// Len returns the number of elements.
func (d *dense[T]) Len() int { return len(d.data) }

// Data returns the backing slice in storage order.
func (d *dense[T]) Data() []T { return d.data }

func (d *dense[T]) Raw() any { return d.data }

func (d *dense[T]) Resize(dims ...int) {
	d.dims = append(d.dims[:0], dims...)
	d.data = make([]T, volume(dims))
}

func (d *dense[T]) checkIndex(idx []int) {
	if len(idx) != len(d.dims) {
		panic(fmt.Sprintf("tensor: index rank %d, block rank %d", len(idx), len(d.dims)))
	}
	for i, v := range idx {
		if v < 0 || v >= d.dims[i] {
			panic(fmt.Sprintf("tensor: index %v out of range %v", idx, d.dims))
		}
	}
}

// RowMajor is a dense block whose last index varies fastest.
type RowMajor[T Number] struct {
	dense[T]
}

// NewRowMajor returns a zeroed row-major block with the given dimensions.
func NewRowMajor[T Number](dims ...int) *RowMajor[T] {
	return &RowMajor[T]{newDense[T](dims)}
}

// RowMajorFrom wraps data, already laid out in row-major order.
func RowMajorFrom[T Number](data []T, dims ...int) (*RowMajor[T], error) {
	d, err := fromData(data, dims)
	if err != nil {
		return nil, err
	}
	return &RowMajor[T]{d}, nil
}

func (m *RowMajor[T]) Order() Order { return RowMajorOrder }

// At returns the element at idx.
func (m *RowMajor[T]) At(idx ...int) T {
	m.checkIndex(idx)
	return m.data[rowOffset(m.dims, idx)]
}

// Set stores v at idx.
func (m *RowMajor[T]) Set(v T, idx ...int) {
	m.checkIndex(idx)
	m.data[rowOffset(m.dims, idx)] = v
}

// ColMajor is a dense block whose first index varies fastest.
type ColMajor[T Number] struct {
	dense[T]
}

// NewColMajor returns a zeroed column-major block with the given dimensions.
func NewColMajor[T Number](dims ...int) *ColMajor[T] {
	return &ColMajor[T]{newDense[T](dims)}
}

// ColMajorFrom wraps data, already laid out in column-major order.
func ColMajorFrom[T Number](data []T, dims ...int) (*ColMajor[T], error) {
	d, err := fromData(data, dims)
	if err != nil {
		return nil, err
	}
	return &ColMajor[T]{d}, nil
}

func (m *ColMajor[T]) Order() Order { return ColMajorOrder }

// At returns the element at idx.
func (m *ColMajor[T]) At(idx ...int) T {
	m.checkIndex(idx)
	return m.data[colOffset(m.dims, idx)]
}

// Set stores v at idx.
func (m *ColMajor[T]) Set(v T, idx ...int) {
	m.checkIndex(idx)
	m.data[colOffset(m.dims, idx)] = v
}

func volume(dims []int) int {
	n := 1
	for _, d := range dims {
		if d < 0 {
			panic(fmt.Sprintf("tensor: negative dimension in %v", dims))
		}
		n *= d
	}
	return n
}

func rowOffset(dims, idx []int) int {
	off := 0
	for i, v := range idx {
		off = off*dims[i] + v
	}
	return off
}

func colOffset(dims, idx []int) int {
	off := 0
	for i := len(idx) - 1; i >= 0; i-- {
		off = off*dims[i] + idx[i]
	}
	return off
}
