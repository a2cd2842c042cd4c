package rpu

import "fmt"

// maxExpGolombZeros bounds the prefix of an Exp-Golomb code. Valid RPU
// fields never exceed 32-bit values; a longer prefix means the reader has
// desynchronized from the bitstream.
const maxExpGolombZeros = 32

// bitReader reads bits MSB-first from a byte slice.
type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func newBitReader(data []byte) *bitReader {
	return &bitReader{data: data}
}

func (br *bitReader) readBit() (uint64, error) {
	if br.pos >= len(br.data) {
		return 0, ErrOutOfData
	}
	val := uint64((br.data[br.pos] >> (7 - br.bit)) & 1)
	br.bit++
	if br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return val, nil
}

func (br *bitReader) readBits(n int) (uint64, error) {
	var val uint64
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		val = (val << 1) | b
	}
	return val, nil
}

func (br *bitReader) readFlag() (bool, error) {
	b, err := br.readBit()
	return b == 1, err
}

// readUE decodes an unsigned Exp-Golomb code.
func (br *bitReader) readUE() (uint64, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > maxExpGolombZeros {
			return 0, fmt.Errorf("%w: exp-golomb prefix exceeds %d zeros", ErrMalformedCode, maxExpGolombZeros)
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return (1 << zeros) - 1 + suffix, nil
}

// readSE decodes a signed Exp-Golomb code.
func (br *bitReader) readSE() (int64, error) {
	val, err := br.readUE()
	if err != nil {
		return 0, err
	}
	if val%2 == 0 {
		return -int64(val / 2), nil
	}
	return int64((val + 1) / 2), nil
}

func (br *bitReader) aligned() bool {
	return br.bit == 0
}

// bitsRead returns the reader position in bits from the start of the buffer.
func (br *bitReader) bitsRead() int {
	return br.pos*8 + br.bit
}

func (br *bitReader) bitsLeft() int {
	return len(br.data)*8 - br.bitsRead()
}

// bitWriter writes bits MSB-first into a growing byte slice.
type bitWriter struct {
	data []byte
	bit  int // bits used in the final byte, 0 when aligned
}

func newBitWriter() *bitWriter {
	return &bitWriter{}
}

func (bw *bitWriter) writeBit(v uint64) {
	if bw.bit == 0 {
		bw.data = append(bw.data, 0)
	}
	if v&1 == 1 {
		bw.data[len(bw.data)-1] |= 1 << (7 - bw.bit)
	}
	bw.bit = (bw.bit + 1) % 8
}

func (bw *bitWriter) writeBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		bw.writeBit(v >> i)
	}
}

func (bw *bitWriter) writeFlag(v bool) {
	if v {
		bw.writeBit(1)
	} else {
		bw.writeBit(0)
	}
}

// writeUE encodes an unsigned Exp-Golomb code.
func (bw *bitWriter) writeUE(v uint64) {
	if v == 0 {
		bw.writeBit(1)
		return
	}
	code := v + 1
	n := 0
	for tmp := code; tmp > 1; tmp >>= 1 {
		n++
	}
	for i := 0; i < n; i++ {
		bw.writeBit(0)
	}
	bw.writeBits(code, n+1)
}

// writeSE encodes a signed Exp-Golomb code.
func (bw *bitWriter) writeSE(v int64) {
	if v <= 0 {
		bw.writeUE(uint64(-v) * 2)
	} else {
		bw.writeUE(uint64(v)*2 - 1)
	}
}

func (bw *bitWriter) aligned() bool {
	return bw.bit == 0
}

// bitLen returns the number of bits written so far.
func (bw *bitWriter) bitLen() int {
	if bw.bit == 0 {
		return len(bw.data) * 8
	}
	return (len(bw.data)-1)*8 + bw.bit
}

// bytes returns the written buffer; the final partial byte is zero-padded.
func (bw *bitWriter) bytes() []byte {
	return bw.data
}

// bitString holds a verbatim run of bits that the codec does not model,
// such as extension-block padding or the raw payload of an unknown block.
// Preserving these bits keeps re-serialization of an unmodified record
// byte-exact.
type bitString struct {
	bits []byte // MSB-first packed
	n    int
}

func readBitString(br *bitReader, n int) (bitString, error) {
	s := bitString{n: n}
	if n > 0 {
		s.bits = make([]byte, (n+7)/8)
	}
	for i := 0; i < n; i++ {
		b, err := br.readBit()
		if err != nil {
			return bitString{}, err
		}
		if b == 1 {
			s.bits[i/8] |= 1 << (7 - i%8)
		}
	}
	return s, nil
}

func (s bitString) write(bw *bitWriter) {
	for i := 0; i < s.n; i++ {
		bw.writeBit(uint64(s.bits[i/8] >> (7 - i%8)))
	}
}
