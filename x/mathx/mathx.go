// Package mathx holds small integer helpers for firmware arithmetic.
package mathx

import "golang.org/x/exp/constraints"

// Clamp limits v to [lo, hi]. If lo > hi, the bounds are swapped.
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if hi < lo {
		lo, hi = hi, lo
	}
	return Min(Max(v, lo), hi)
}

func Min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}

func Max[T constraints.Ordered](a, b T) T {
	if a > b {
		return a
	}
	return b
}

// RoundDiv returns a/b rounded half up; 0 when b is 0.
func RoundDiv[T constraints.Unsigned](a, b T) T {
	if b == 0 {
		return 0
	}
	return (a + b/2) / b
}

// Scale returns round(v*num/den) with a 64-bit intermediate.
func Scale[T ~uint16 | ~uint32](v T, num, den uint32) uint32 {
	if den == 0 {
		return 0
	}
	return uint32(RoundDiv(uint64(v)*uint64(num), uint64(den)))
}
