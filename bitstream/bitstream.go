// Package bitstream packs integers and raw blocks into byte buffers with
// sub-byte granularity.
//
// Bits are laid out MSB-first: the first bit written to a stream is the most
// significant bit of the first byte. A value written with Write(v, n) appears
// on the wire as its low n bits, most significant first, regardless of host
// byte order.
//
// Both directions keep a 64-bit accumulator between the caller and the
// buffer. Writer moves whole bytes out of it on Flush (or when it fills up)
// and Reader refills it from the buffer when a read needs more bits than it
// holds. Neither type owns its buffer.
package bitstream

import (
	"github.com/pkg/errors"
)

// ScratchBits is the width of the accumulator register.
const ScratchBits = 64

var (
	ErrCapacityExceeded = errors.New("bitstream: capacity exceeded")
	ErrBufferExhausted  = errors.New("bitstream: buffer exhausted")
	ErrInvalidBitCount  = errors.New("bitstream: invalid bit count")
	ErrOutOfRange       = errors.New("bitstream: value out of range")
	ErrInvalidRange     = errors.New("bitstream: min greater than max")
)

func mask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<uint(n) - 1
}

// peekBits returns n (1..8) bits of src starting at bit position pos.
func peekBits(src []byte, pos, n int) byte {
	idx, shift := pos>>3, pos&7
	if shift+n <= 8 {
		return (src[idx] >> uint(8-shift-n)) & byte(mask(n))
	}
	hi := 8 - shift
	lo := n - hi
	return (src[idx]&byte(mask(hi)))<<uint(lo) | src[idx+1]>>uint(8-lo)
}

// putBits ORs the low n (1..8) bits of v into dst at bit position pos. The
// destination bits must be zero.
func putBits(dst []byte, pos int, v byte, n int) {
	idx, shift := pos>>3, pos&7
	total := shift + n
	if total <= 8 {
		dst[idx] |= v << uint(8-total)
		return
	}
	dst[idx] |= v >> uint(total-8)
	dst[idx+1] |= v << uint(16-total)
}

// bytesFor returns the number of bytes needed to hold n bits.
func bytesFor(n int) int {
	return (n + 7) >> 3
}
