// Package backend must be free of ISA-specific concepts. In other words,
// this package must not import any package under backend/isa.
//
// It drives a compilation through the fixed list of code generation phases and
// owns the machinery every ISA shares: instruction streams, snippets, the constant
// pool, relocation records and GC map entries.
package backend
