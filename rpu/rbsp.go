package rpu

// removeEmulationPrevention strips the 0x03 bytes inserted after every
// two-zero-byte run in a NAL payload, recovering the raw RBSP.
func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 &&
			(i+3 >= len(data) || data[i+3] <= 3) {
			out = append(out, 0, 0)
			i += 2
		} else {
			out = append(out, data[i])
		}
	}
	return out
}

// insertEmulationPrevention re-escapes an RBSP for carriage in a NAL unit:
// a 0x03 byte is inserted after every two-zero-byte run that precedes a
// byte of 0x03 or less, or that ends the payload.
func insertEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data)+len(data)/16)
	zeros := 0
	for _, b := range data {
		if zeros == 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	if zeros >= 2 {
		out = append(out, 3)
	}
	return out
}
