package descriptors

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestVideoProbeCommitControl_UnmarshalBinary_UVC10(t *testing.T) {
	// UVC 1.0 format: 26 bytes
	buf := make([]byte, 26)
	buf[2] = 1                                                  // FormatIndex
	buf[3] = 2                                                  // FrameIndex
	buf[4], buf[5], buf[6], buf[7] = 0x15, 0x16, 0x05, 0x00     // FrameInterval = 333333
	buf[18], buf[19], buf[20], buf[21] = 0x00, 0x00, 0x10, 0x00 // MaxVideoFrameSize = 1048576
	buf[22], buf[23] = 0x00, 0x0c                               // MaxPayloadTransferSize = 3072

	vpcc := &VideoProbeCommitControl{ClockFrequency: 7}
	if err := vpcc.UnmarshalBinary(buf); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}

	if vpcc.FormatIndex != 1 {
		t.Errorf("FormatIndex = %d, want 1", vpcc.FormatIndex)
	}
	if vpcc.FrameIndex != 2 {
		t.Errorf("FrameIndex = %d, want 2", vpcc.FrameIndex)
	}
	if vpcc.FrameInterval != 333333 {
		t.Errorf("FrameInterval = %d, want 333333", vpcc.FrameInterval)
	}
	if vpcc.MaxVideoFrameSize != 1048576 {
		t.Errorf("MaxVideoFrameSize = %d, want 1048576", vpcc.MaxVideoFrameSize)
	}
	if vpcc.MaxPayloadTransferSize != 3072 {
		t.Errorf("MaxPayloadTransferSize = %d, want 3072", vpcc.MaxPayloadTransferSize)
	}
	// 1.1 fields are left alone for a 26 byte block
	if vpcc.ClockFrequency != 7 {
		t.Errorf("ClockFrequency = %d, want 7", vpcc.ClockFrequency)
	}
}

func TestVideoProbeCommitControl_MarshalInto(t *testing.T) {
	vpcc := &VideoProbeCommitControl{
		FormatIndex:       1,
		FrameIndex:        3,
		MaxVideoFrameSize: 1024,
		ClockFrequency:    48000000,
		PreferedVersion:   0x01,
		Usage:             0x05,
	}

	buf26 := make([]byte, 26)
	if err := vpcc.MarshalInto(buf26); err != nil {
		t.Fatalf("MarshalInto(26) failed: %v", err)
	}
	if buf26[2] != 1 {
		t.Errorf("buf26[2] (FormatIndex) = %d, want 1", buf26[2])
	}
	if buf26[3] != 3 {
		t.Errorf("buf26[3] (FrameIndex) = %d, want 3", buf26[3])
	}

	buf34 := make([]byte, 34)
	if err := vpcc.MarshalInto(buf34); err != nil {
		t.Fatalf("MarshalInto(34) failed: %v", err)
	}
	if buf34[31] != 0x01 {
		t.Errorf("buf34[31] (PreferedVersion) = %d, want 1", buf34[31])
	}

	buf48 := make([]byte, 48)
	if err := vpcc.MarshalInto(buf48); err != nil {
		t.Fatalf("MarshalInto(48) failed: %v", err)
	}
	if buf48[34] != 0x05 {
		t.Errorf("buf48[34] (Usage) = %d, want 5", buf48[34])
	}
}

func TestVideoProbeCommitControl_ShortBuffer(t *testing.T) {
	vpcc := &VideoProbeCommitControl{}
	if err := vpcc.MarshalInto(make([]byte, 20)); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("MarshalInto(20) = %v, want io.ErrShortBuffer", err)
	}
	if err := vpcc.UnmarshalBinary(make([]byte, 25)); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("UnmarshalBinary(25) = %v, want io.ErrShortBuffer", err)
	}
}

func TestVideoProbeCommitControl_ByteOrder(t *testing.T) {
	vpcc := &VideoProbeCommitControl{
		HintBitmask:       0x1234,
		MaxVideoFrameSize: 0xDEADBEEF,
	}

	data, _ := vpcc.MarshalBinary()

	// HintBitmask at bytes 0-1 (little endian: 0x34, 0x12)
	if data[0] != 0x34 || data[1] != 0x12 {
		t.Errorf("HintBitmask bytes = [%02x, %02x], want [34, 12]", data[0], data[1])
	}

	// MaxVideoFrameSize at bytes 18-21 (little endian: EF, BE, AD, DE)
	if !bytes.Equal(data[18:22], []byte{0xEF, 0xBE, 0xAD, 0xDE}) {
		t.Errorf("MaxVideoFrameSize bytes = %x, want EFBEADDE", data[18:22])
	}
}

func TestProbeSize(t *testing.T) {
	tests := []struct {
		uvc  BinaryCodedDecimal
		want int
	}{
		{0x0100, 26},
		{0x0110, 34},
		{0x0150, 48},
	}
	for _, tc := range tests {
		if got := ProbeSize(tc.uvc); got != tc.want {
			t.Errorf("ProbeSize(%s) = %d, want %d", tc.uvc, got, tc.want)
		}
	}
}
