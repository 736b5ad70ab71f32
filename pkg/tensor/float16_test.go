package tensor

import (
	"math"
	"testing"
)

func TestFloat16RoundTrip(t *testing.T) {
	t.Parallel()

	vals := []float32{0, 1, -1, 0.5, 1.5, -2, 65504, 6.1035156e-05, 5.9604645e-08}
	for _, v := range vals {
		got := Float16From(v).Float32()
		if got != v {
			t.Fatalf("float16 round trip %v: got %v", v, got)
		}
	}
}

func TestFloat16Specials(t *testing.T) {
	t.Parallel()

	if got := Float16From(float32(math.Inf(1))); got != 0x7C00 {
		t.Fatalf("+inf: got %#04x", uint16(got))
	}
	if got := Float16From(1e6); got != 0x7C00 {
		t.Fatalf("overflow should saturate to +inf, got %#04x", uint16(got))
	}
	if got := Float16From(-0.0); uint16(got) != 0 && uint16(got) != 0x8000 {
		t.Fatalf("-0: got %#04x", uint16(got))
	}
	nan := Float16From(float32(math.NaN())).Float32()
	if !math.IsNaN(float64(nan)) {
		t.Fatalf("nan not preserved: %v", nan)
	}
	// 1 + 2^-11 is exactly halfway between 1 and the next half; ties go to even.
	if got := Float16From(1 + 1.0/2048); got != 0x3C00 {
		t.Fatalf("tie to even: got %#04x", uint16(got))
	}
}

func TestBFloat16RoundTrip(t *testing.T) {
	t.Parallel()

	vals := []float32{0, 1, -1, 1.5, -2, 3.140625}
	for _, v := range vals {
		if got := BFloat16From(v).Float32(); got != v {
			t.Fatalf("bfloat16 round trip %v: got %v", v, got)
		}
	}
	nan := BFloat16From(float32(math.NaN())).Float32()
	if !math.IsNaN(float64(nan)) {
		t.Fatalf("nan not preserved: %v", nan)
	}
}
