// Package util contains helper functions used across the kernel.
package util

import "encoding/binary"

// Int is satisfied by all built-in integer types.
type Int interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

// Min returns the smaller of a and b.
func Min[T Int](a, b T) T {
	if a < b {
		return a
	}
	return b
}

// Rounddown aligns v down to the nearest multiple of b.
func Rounddown[T Int](v, b T) T {
	return v - (v % b)
}

// Roundup aligns v up to the nearest multiple of b.
func Roundup[T Int](v, b T) T {
	return Rounddown(v+b-1, b)
}

// Readn32 reads a 32-bit little-endian word from a starting at off.
// It panics if the requested region is out of bounds.
func Readn32(a []uint8, off int) uint32 {
	if off < 0 || off+4 > len(a) {
		panic("Readn32 out of bounds")
	}
	return binary.LittleEndian.Uint32(a[off : off+4])
}

// Writen32 writes val as a 32-bit little-endian word into a starting at off.
// It panics if the destination is out of bounds.
func Writen32(a []uint8, off int, val uint32) {
	if off < 0 || off+4 > len(a) {
		panic("Writen32 out of bounds")
	}
	binary.LittleEndian.PutUint32(a[off:off+4], val)
}
