package ss

import (
	"testing"
)

func TestInc(t *testing.T) {
	b := []byte{0x00, 0x00}
	if !inc(b) || b[0] != 0x00 || b[1] != 0x01 {
		t.Fatalf("inc = %x, wanted 0001", b)
	}
	b = []byte{0x01, 0xFF}
	if !inc(b) || b[0] != 0x02 || b[1] != 0x00 {
		t.Fatalf("inc = %x, wanted 0200", b)
	}
	if inc([]byte{0xFF}) {
		t.Fatalf("inc(FF) = true, wanted false")
	}
}

func TestHexHelpers(t *testing.T) {
	if got := hexstr(nil); got != "<nil>" {
		t.Fatalf("hexstr(nil) = %q, wanted <nil>", got)
	}
	if got := hexstr([]byte{}); got != "<empty>" {
		t.Fatalf("hexstr(empty) = %q, wanted <empty>", got)
	}
	if got := hexstr([]byte{0xAA, 0xBB}); got != "aabb" {
		t.Fatalf("hexstr = %q, wanted aabb", got)
	}
	if f := hexField("k", []byte{0xAA}); f.Key != "k" || f.String != "aa" {
		t.Fatalf("hexField returned unexpected field: %+v", f)
	}
}

func TestNonNilPanics(t *testing.T) {
	assertPanics(t, func() {
		var b storageBucket
		nonNil(b)
	})
}
