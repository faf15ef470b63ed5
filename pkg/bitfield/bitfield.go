// Package bitfield reads and writes little endian bit ranges inside control
// buffers. Offsets and sizes are in bits; bit 0 is the least significant bit
// of data[0].
package bitfield

// Get returns size bits of data starting at offset. Bits past the end of
// data read as zero and size is capped at 32.
func Get(data []byte, offset, size int) uint32 {
	if size > 32 {
		size = 32
	}
	var v uint32
	for i := 0; i < size; i++ {
		bit := offset + i
		if bit/8 >= len(data) {
			break
		}
		if data[bit/8]&(1<<(bit%8)) != 0 {
			v |= 1 << i
		}
	}
	return v
}

// SignExtend interprets the low size bits of v as a two's complement number.
func SignExtend(v uint32, size int) int32 {
	if size <= 0 || size >= 32 {
		return int32(v)
	}
	shift := 32 - size
	return int32(v<<shift) >> shift
}

// Set writes the low size bits of v into data starting at offset, leaving
// the surrounding bits untouched. Bits past the end of data are dropped.
func Set(data []byte, offset, size int, v uint32) {
	if size > 32 {
		size = 32
	}
	for i := 0; i < size; i++ {
		bit := offset + i
		if bit/8 >= len(data) {
			return
		}
		mask := byte(1) << (bit % 8)
		if v&(1<<i) != 0 {
			data[bit/8] |= mask
		} else {
			data[bit/8] &^= mask
		}
	}
}

// Test reports whether bit is set in a descriptor bitmap.
func Test(data []byte, bit int) bool {
	if bit < 0 || bit/8 >= len(data) {
		return false
	}
	return data[bit/8]&(1<<(bit%8)) != 0
}
