package bitstream

// Writer packs bits into a fixed buffer.
type Writer struct {
	buf []byte
	// committed is the number of bits moved into buf, always a multiple of 8.
	committed int
	// scratch holds scratchN pending bits, right-aligned.
	scratch  uint64
	scratchN int
}

// NewWriter returns a Writer over buf. The capacity of the stream is
// len(buf)*8 bits.
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// BitsWritten returns the number of bits written so far, including the bits
// still held in the accumulator.
func (w *Writer) BitsWritten() int {
	return w.committed + w.scratchN
}

// BitsLeft returns how many more bits the stream accepts.
func (w *Writer) BitsLeft() int {
	return len(w.buf)*8 - w.BitsWritten()
}

// Write appends the low n bits of value. It fails with ErrCapacityExceeded
// without touching the stream if fewer than n bits are left.
func (w *Writer) Write(value uint64, n int) error {
	if n < 0 || n > 64 {
		return ErrInvalidBitCount
	}
	if n > w.BitsLeft() {
		return ErrCapacityExceeded
	}
	if n > 32 {
		w.put(value>>32, n-32)
		w.put(value, 32)
		return nil
	}
	if n > 0 {
		w.put(value, n)
	}
	return nil
}

// put appends n (1..32) bits. The caller has checked capacity.
func (w *Writer) put(value uint64, n int) {
	if w.scratchN+n > ScratchBits {
		w.flushBytes()
	}
	w.scratch = w.scratch<<uint(n) | value&mask(n)
	w.scratchN += n
}

// AlignToByte pads the stream with zero bits up to the next byte boundary.
// The buffer holds whole bytes, so the padding always fits.
func (w *Writer) AlignToByte() error {
	if pad := (8 - w.BitsWritten()&7) & 7; pad > 0 {
		w.put(0, pad)
	}
	return nil
}

// Flush moves every complete byte out of the accumulator into the buffer.
// Leftover bits stay in the accumulator so the next write continues at the
// right offset; they are mirrored, zero padded, into the following buffer
// byte so the buffer reflects everything written so far.
func (w *Writer) Flush() {
	w.flushBytes()
	if w.scratchN > 0 {
		w.buf[w.committed>>3] = byte(w.scratch << uint(8-w.scratchN))
	}
}

func (w *Writer) flushBytes() {
	for w.scratchN >= 8 {
		w.scratchN -= 8
		w.buf[w.committed>>3] = byte(w.scratch >> uint(w.scratchN))
		w.committed += 8
	}
	w.scratch &= mask(w.scratchN)
}

// Finish aligns and flushes the stream and returns the written prefix of the
// buffer.
func (w *Writer) Finish() []byte {
	w.AlignToByte()
	w.flushBytes()
	return w.buf[:w.committed>>3]
}

// WriteBlock appends the first n bits of data. Bits are taken MSB-first, so a
// trailing partial byte contributes its high bits.
//
// The copy runs in three parts: the head brings the stream to a byte
// boundary, the middle moves whole bytes (a plain copy when data is
// co-aligned with the stream, shift-and-or otherwise) and the tail writes the
// remaining bits.
func (w *Writer) WriteBlock(data []byte, n int) error {
	if n < 0 || n > len(data)*8 {
		return ErrInvalidBitCount
	}
	if n > w.BitsLeft() {
		return ErrCapacityExceeded
	}
	if n == 0 {
		return nil
	}

	head := (8 - w.BitsWritten()&7) & 7
	if head > n {
		head = n
	}
	if head > 0 {
		w.put(uint64(peekBits(data, 0, head)), head)
	}
	rest := n - head
	if rest == 0 {
		return nil
	}

	// The stream is byte aligned now, so this empties the accumulator.
	w.flushBytes()
	whole := rest >> 3
	dst := w.buf[w.committed>>3:]
	if head == 0 {
		copy(dst[:whole], data[:whole])
	} else {
		lo := uint(8 - head)
		for i := 0; i < whole; i++ {
			dst[i] = data[i]<<uint(head) | data[i+1]>>lo
		}
	}
	w.committed += whole * 8

	if tail := rest - whole*8; tail > 0 {
		w.put(uint64(peekBits(data, head+whole*8, tail)), tail)
	}
	return nil
}
