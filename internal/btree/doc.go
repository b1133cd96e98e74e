// Package btree reads the B-trees of HDF5 files written by other libraries.
//
// Version 1 trees ("TREE") index the members of symbol table groups, through
// symbol table nodes ("SNOD") whose names live in a local heap, and the
// chunks of datasets with a version 1 or 2 layout message. Version 2 trees
// ("BTHD") index chunks with record types 10 and 11.
//
// Records held by version 2 internal nodes are chunks as well, so every node
// of the tree contributes entries. Nothing here writes a B-tree.
package btree
