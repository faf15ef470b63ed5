package formats

import "math"

const ticksPerSecond = 10000000

// Fraction is a time per frame in seconds.
type Fraction struct {
	Numerator, Denominator uint32
}

// IntervalFraction returns iv as a reduced fraction of a second.
func IntervalFraction(iv Interval) Fraction {
	n, d := Reduce(uint32(iv), ticksPerSecond)
	return Fraction{n, d}
}

// Reduce approximates num/den with a continued fraction of at most eight
// terms, stopping early at a term of 333 or more.
func Reduce(num, den uint32) (uint32, uint32) {
	var terms [8]uint32
	n := 0
	x, y := num, den
	for n < len(terms) && y != 0 {
		terms[n] = x / y
		if terms[n] >= 333 {
			if n < 2 {
				n++
			}
			break
		}
		x, y = y, x-terms[n]*y
		n++
	}
	x, y = 0, 1
	for i := n; i > 0; i-- {
		x, y = y, terms[i-1]*y+x
	}
	return y, x
}

// FractionInterval converts num/den seconds to 100 ns ticks. Results that do
// not fit saturate at math.MaxUint32.
func FractionInterval(num, den uint32) Interval {
	multi := uint32(ticksPerSecond)
	if den == 0 || num/den >= math.MaxUint32/multi {
		return math.MaxUint32
	}
	for num > math.MaxUint32/multi {
		multi /= 2
		den /= 2
	}
	if den == 0 {
		return 0
	}
	return Interval(num * multi / den)
}
