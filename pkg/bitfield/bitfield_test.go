package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	data := []byte{0x34, 0x12, 0xf0, 0xff}
	assert.Equal(t, uint32(0x1234), Get(data, 0, 16))
	assert.Equal(t, uint32(0xfff0), Get(data, 16, 16))
	assert.Equal(t, uint32(0x4), Get(data, 0, 4))
	assert.Equal(t, uint32(0x3), Get(data, 4, 4))
	assert.Equal(t, uint32(0x23), Get(data, 4, 8))
	assert.Equal(t, uint32(0xfff01234), Get(data, 0, 32))
	// past the end reads as zero
	assert.Equal(t, uint32(0xff), Get(data, 24, 16))
	assert.Equal(t, uint32(0), Get(nil, 0, 8))
}

func TestSignExtend(t *testing.T) {
	assert.Equal(t, int32(-16), SignExtend(0xfff0, 16))
	assert.Equal(t, int32(0x7ff0), SignExtend(0x7ff0, 16))
	assert.Equal(t, int32(-1), SignExtend(0x1, 1))
	assert.Equal(t, int32(-1), SignExtend(0xffffffff, 32))
	assert.Equal(t, int32(5), SignExtend(5, 0))
}

func TestSet(t *testing.T) {
	data := []byte{0xff, 0xff, 0x00, 0x00}
	Set(data, 16, 16, 0xbeef)
	assert.Equal(t, []byte{0xff, 0xff, 0xef, 0xbe}, data)

	Set(data, 4, 8, 0)
	assert.Equal(t, []byte{0x0f, 0xf0, 0xef, 0xbe}, data)

	Set(data, 0, 1, 0)
	assert.Equal(t, byte(0x0e), data[0])

	// bits past the end are dropped
	Set(data, 24, 16, 0xffff)
	assert.Equal(t, []byte{0x0e, 0xf0, 0xef, 0xff}, data)
}

func TestSetGetRoundTrip(t *testing.T) {
	data := make([]byte, 8)
	Set(data, 3, 17, 0x1abcd)
	assert.Equal(t, uint32(0x1abcd), Get(data, 3, 17))
	assert.Equal(t, int32(-0x5433), SignExtend(Get(data, 3, 17), 17))
}

func TestTest(t *testing.T) {
	bitmap := []byte{0x0a, 0x06, 0x02}
	var set []int
	for i := 0; i < 24; i++ {
		if Test(bitmap, i) {
			set = append(set, i)
		}
	}
	assert.Equal(t, []int{1, 3, 9, 10, 17}, set)
	assert.False(t, Test(bitmap, 24))
	assert.False(t, Test(bitmap, -1))
}
