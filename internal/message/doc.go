// Package message decodes and encodes the header messages that describe
// HDF5 objects: dataspaces, datatypes, layouts, filter pipelines, links and
// attributes.
//
// [Parse] turns a message body into its typed form. Message types the
// package does not model come back as [Unknown] with their raw bytes.
// Older message versions found in files written by other libraries are
// decoded as well: version 1 dataspaces, version 1 and 2 layouts and
// version 1 compound members. Every typed message except [Continuation]
// and [SymbolTable] also implements [Serializable] and encodes itself in the
// newest version: version 2 dataspaces, version 3 attributes, version 3
// compact and contiguous layouts and version 4 chunked layouts.
//
// All message bodies are little-endian.
package message
