package bitstream

// Reader unpacks bits written by a Writer.
type Reader struct {
	buf     []byte
	bitSize int
	// loaded is the number of bits moved from buf into the accumulator.
	loaded   int
	scratch  uint64
	scratchN int
	consumed int
}

// NewReader returns a Reader over all of buf.
func NewReader(buf []byte) *Reader {
	return NewReaderBits(buf, len(buf)*8)
}

// NewReaderBits returns a Reader over the first bitSize bits of buf. The last
// byte may be partially used. bitSize is clamped to the buffer.
func NewReaderBits(buf []byte, bitSize int) *Reader {
	if bitSize < 0 {
		bitSize = 0
	}
	if bitSize > len(buf)*8 {
		bitSize = len(buf) * 8
	}
	return &Reader{buf: buf, bitSize: bitSize}
}

// BitsRead returns the stream position.
func (r *Reader) BitsRead() int {
	return r.loaded - (r.scratchN - r.consumed)
}

// BitsLeft returns the number of bits before the declared end of the stream.
func (r *Reader) BitsLeft() int {
	return r.bitSize - r.BitsRead()
}

// Read returns the next n bits. It fails with ErrBufferExhausted without
// consuming anything if fewer than n bits remain.
func (r *Reader) Read(n int) (uint64, error) {
	if n < 0 || n > 64 {
		return 0, ErrInvalidBitCount
	}
	if n > r.BitsLeft() {
		return 0, ErrBufferExhausted
	}
	if n == 0 {
		return 0, nil
	}
	avail := r.scratchN - r.consumed
	if n <= avail {
		return r.take(n), nil
	}
	var v uint64
	if avail > 0 {
		v = r.take(avail)
	}
	r.reload()
	rest := n - avail
	return v<<uint(rest) | r.take(rest), nil
}

func (r *Reader) take(n int) uint64 {
	v := (r.scratch >> uint(r.scratchN-r.consumed-n)) & mask(n)
	r.consumed += n
	return v
}

// reload fills the accumulator with up to ScratchBits fresh bits. loaded is
// byte aligned whenever a reload is needed.
func (r *Reader) reload() {
	bits := r.bitSize - r.loaded
	if bits > ScratchBits {
		bits = ScratchBits
	}
	nbytes := bytesFor(bits)
	start := r.loaded >> 3
	var s uint64
	for i := 0; i < nbytes; i++ {
		s = s<<8 | uint64(r.buf[start+i])
	}
	s >>= uint(nbytes*8 - bits)
	r.scratch, r.scratchN, r.consumed = s, bits, 0
	r.loaded += bits
}

// AlignToByte skips the padding up to the next byte boundary.
func (r *Reader) AlignToByte() error {
	pad := (8 - r.BitsRead()&7) & 7
	_, err := r.Read(pad)
	return err
}

// ReadBlock reads n bits into dst, MSB-first, zeroing the unused low bits of
// a trailing partial byte. dst must hold at least n bits.
func (r *Reader) ReadBlock(dst []byte, n int) error {
	if n < 0 || n > len(dst)*8 {
		return ErrInvalidBitCount
	}
	if n > r.BitsLeft() {
		return ErrBufferExhausted
	}
	out := dst[:bytesFor(n)]
	for i := range out {
		out[i] = 0
	}
	if n == 0 {
		return nil
	}

	head := (8 - r.BitsRead()&7) & 7
	if head > n {
		head = n
	}
	if head > 0 {
		v, _ := r.Read(head)
		putBits(out, 0, byte(v), head)
	}
	rest := n - head
	whole := rest >> 3

	// Whole bytes still sitting in the accumulator go first.
	i := 0
	for ; i < whole && r.scratchN-r.consumed >= 8; i++ {
		putBits(out, head+i*8, byte(r.take(8)), 8)
	}
	if i < whole {
		// The accumulator is drained here and loaded is byte aligned.
		start := r.loaded >> 3
		src := r.buf[start : start+whole-i]
		if head == 0 {
			copy(out[i:], src)
		} else {
			hi := uint(8 - head)
			for j, b := range src {
				out[i+j] |= b >> uint(head)
				out[i+j+1] |= b << hi
			}
		}
		r.loaded += (whole - i) * 8
	}

	if tail := rest - whole*8; tail > 0 {
		v, _ := r.Read(tail)
		putBits(out, head+whole*8, byte(v), tail)
	}
	return nil
}
