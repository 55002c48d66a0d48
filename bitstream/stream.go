package bitstream

import (
	"math/bits"
)

// Stream lets one serialize function describe both encoding and decoding.
// *Writer and *Reader implement it; value pointers are read from when
// writing and filled in when reading.
type Stream interface {
	IsWriting() bool
	SerializeBits(v *uint64, n int) error
	// SerializeBlock writes the first n bits of b, or reads n bits into b.
	SerializeBlock(b []byte, n int) error
	AlignToByte() error
	BitsLeft() int
}

var (
	_ Stream = (*Writer)(nil)
	_ Stream = (*Reader)(nil)
)

func (w *Writer) IsWriting() bool { return true }

func (w *Writer) SerializeBits(v *uint64, n int) error {
	return w.Write(*v, n)
}

func (w *Writer) SerializeBlock(b []byte, n int) error {
	return w.WriteBlock(b, n)
}

func (r *Reader) IsWriting() bool { return false }

func (r *Reader) SerializeBits(v *uint64, n int) error {
	x, err := r.Read(n)
	if err != nil {
		return err
	}
	*v = x
	return nil
}

func (r *Reader) SerializeBlock(b []byte, n int) error {
	return r.ReadBlock(b, n)
}

// BitsRequired returns the width of the ranged encoding of [min, max], that
// is ceil(log2(max-min+1)).
func BitsRequired(min, max uint64) int {
	return bits.Len64(max - min)
}

// SerializeUint encodes v as v-min in BitsRequired(min, max) bits.
func SerializeUint(s Stream, v *uint64, min, max uint64) error {
	if min > max {
		return ErrInvalidRange
	}
	span := max - min
	var rel uint64
	if s.IsWriting() {
		if *v < min || *v > max {
			return ErrOutOfRange
		}
		rel = *v - min
	}
	if err := s.SerializeBits(&rel, bits.Len64(span)); err != nil {
		return err
	}
	if !s.IsWriting() {
		if rel > span {
			return ErrOutOfRange
		}
		*v = rel + min
	}
	return nil
}

// SerializeInt is the signed counterpart of SerializeUint.
func SerializeInt(s Stream, v *int64, min, max int64) error {
	if min > max {
		return ErrInvalidRange
	}
	span := uint64(max) - uint64(min)
	var rel uint64
	if s.IsWriting() {
		if *v < min || *v > max {
			return ErrOutOfRange
		}
		rel = uint64(*v) - uint64(min)
	}
	if err := s.SerializeBits(&rel, bits.Len64(span)); err != nil {
		return err
	}
	if !s.IsWriting() {
		if rel > span {
			return ErrOutOfRange
		}
		*v = int64(uint64(min) + rel)
	}
	return nil
}

func SerializeBool(s Stream, v *bool) error {
	var x uint64
	if *v {
		x = 1
	}
	if err := s.SerializeBits(&x, 1); err != nil {
		return err
	}
	*v = x == 1
	return nil
}

func SerializeUint8(s Stream, v *uint8) error {
	x := uint64(*v)
	if err := s.SerializeBits(&x, 8); err != nil {
		return err
	}
	*v = uint8(x)
	return nil
}

func SerializeUint16(s Stream, v *uint16) error {
	x := uint64(*v)
	if err := s.SerializeBits(&x, 16); err != nil {
		return err
	}
	*v = uint16(x)
	return nil
}

func SerializeUint32(s Stream, v *uint32) error {
	x := uint64(*v)
	if err := s.SerializeBits(&x, 32); err != nil {
		return err
	}
	*v = uint32(x)
	return nil
}
