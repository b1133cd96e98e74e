// Package layout reads and writes the raw data of HDF5 datasets.
//
// Three storage classes are read: compact data held in the object header,
// contiguous data in one file block, and chunked data. Chunked reads
// understand every chunk index: version 1 B-trees from version 1 to 3
// layouts, and the single chunk, implicit, Fixed Array, Extensible Array
// and version 2 B-tree indexes of version 4 layouts. Array indexes number
// chunks over the maximum extent, so chunks past the current extent are
// skipped.
//
// ChunkWriter produces only Fixed Arrays, a FAHD header followed by one
// unpaged FADB data block. Edge chunks are stored at full size and zero
// padded; readers clip them to the dataset extent.
//
// Chunk encoding through the filter pipeline runs concurrently on an
// errgroup, while allocation and writes happen in chunk order so the file
// layout is deterministic.
package layout
