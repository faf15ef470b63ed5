package descriptors

import "fmt"

// BinaryCodedDecimal is a release number such as bcdUVC, 0x0110 for 1.10.
type BinaryCodedDecimal uint16

func (bcd BinaryCodedDecimal) Major() int {
	return int(bcd>>12&0xf)*10 + int(bcd>>8&0xf)
}

func (bcd BinaryCodedDecimal) Minor() int {
	return int(bcd>>4&0xf)*10 + int(bcd&0xf)
}

func (bcd BinaryCodedDecimal) String() string {
	return fmt.Sprintf("%d.%02d", bcd.Major(), bcd.Minor())
}
