package mathx

import "testing"

func TestClamp(t *testing.T) {
	cases := []struct{ v, lo, hi, want int }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{11, 0, 10, 10},
		{3, 10, 0, 3}, // swapped bounds
	}
	for _, c := range cases {
		if got := Clamp(c.v, c.lo, c.hi); got != c.want {
			t.Errorf("Clamp(%d,%d,%d) = %d, want %d", c.v, c.lo, c.hi, got, c.want)
		}
	}
}

func TestScale(t *testing.T) {
	// Full-scale 16-bit sample on a 3.3 V reference.
	if got := Scale(uint16(0xFFFF), 3300, 0xFFFF); got != 3300 {
		t.Fatalf("full scale = %d", got)
	}
	// Half scale through a 2:1 divider.
	mv := Scale(uint16(0x8000), 3300, 0xFFFF)
	if got := Scale(mv, 2, 1); got != 3300 {
		t.Fatalf("half scale x2 = %d", got)
	}
	if Scale(uint32(10), 1, 0) != 0 {
		t.Fatal("zero denominator must yield 0")
	}
}
