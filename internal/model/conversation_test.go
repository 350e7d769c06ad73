package model

import "testing"

func TestDirectPairKeyOrderIndependent(t *testing.T) {
	a := DirectPairKey("user-a", "user-b")
	b := DirectPairKey("user-b", "user-a")
	if a != b {
		t.Fatalf("pair key depends on argument order: %q vs %q", a, b)
	}
	if a != "user-a:user-b" {
		t.Fatalf("unexpected pair key: %q", a)
	}
}

func TestDirectPairKeyDistinctPairs(t *testing.T) {
	if DirectPairKey("a", "b") == DirectPairKey("a", "c") {
		t.Fatal("different pairs must produce different keys")
	}
}
