package checksum

import "testing"

func TestSumIsStable(t *testing.T) {
	a := Sum([]byte("hello"))
	b := Sum([]byte("hello"))
	if a != b {
		t.Errorf("same input, different digests: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("digest length = %d", len(a))
	}
	if a == Sum([]byte("hello!")) {
		t.Error("different inputs collided")
	}
}

func TestVectorKeyDependsOnAllParts(t *testing.T) {
	base := VectorKey("a.txt", 0, "chunk text")
	if base != VectorKey("a.txt", 0, "chunk text") {
		t.Error("key not stable")
	}
	if base == VectorKey("b.txt", 0, "chunk text") {
		t.Error("key ignores source")
	}
	if base == VectorKey("a.txt", 1, "chunk text") {
		t.Error("key ignores chunk index")
	}
	if base == VectorKey("a.txt", 0, "other text") {
		t.Error("key ignores chunk text")
	}
}

func TestVectorKeyNoDelimiterAmbiguity(t *testing.T) {
	// "ab" at index 1 and "b" at index 1 for source "a" must not collide via
	// naive concatenation.
	if VectorKey("a", 1, "b") == VectorKey("a", 11, "") {
		t.Error("ambiguous key construction")
	}
}
