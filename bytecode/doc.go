// Package bytecode defines the instruction set and compiled-module
// representation exchanged between the compiler and the execution engine.
//
// A Module is a list of Chunks; Chunks[0] is the top-level code of the
// source unit and the remaining chunks are method bodies referenced through
// ConstFn constants. Instructions are byte-addressed with little-endian
// operands. The package also provides a canonical CBOR wire format so that
// compiled modules can be cached and shipped by content hash.
package bytecode
