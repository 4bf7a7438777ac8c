package locks

import "testing"

func TestLockSetAlgebra(t *testing.T) {
	u := NewLockSetU()

	if !u.IsEmpty(u.EmptySet()) {
		t.Fatal("empty set not empty")
	}

	ab := u.Add(u.Add(u.EmptySet(), 1), 2)
	if u.Size(ab) != 2 || !u.Contains(ab, 1) || !u.Contains(ab, 2) || u.Contains(ab, 3) {
		t.Fatalf("membership wrong for {1,2} (id %d)", ab)
	}

	// Interning: rebuilding the same set yields the same identity.
	ba := u.Add(u.Add(u.EmptySet(), 2), 1)
	if ab != ba {
		t.Errorf("{1,2} interned as %d and %d", ab, ba)
	}
	// Adding a present element is the identity.
	if u.Add(ab, 1) != ab {
		t.Error("Add of present element changed identity")
	}
	// Deleting an absent element is the identity.
	if u.Del(ab, 9) != ab {
		t.Error("Del of absent element changed identity")
	}

	a := u.Del(ab, 2)
	if u.Size(a) != 1 || !u.Contains(a, 1) {
		t.Errorf("Del result wrong (id %d)", a)
	}
	if u.Del(a, 1) != u.EmptySet() {
		t.Error("deleting the last element must yield the empty identity")
	}

	bc := u.Add(u.Add(u.EmptySet(), 2), 3)
	inter := u.Intersect(ab, bc)
	if u.Size(inter) != 1 || !u.Contains(inter, 2) {
		t.Errorf("{1,2} ∩ {2,3} wrong (id %d)", inter)
	}
	// Memoized and commutative.
	if u.Intersect(bc, ab) != inter || u.Intersect(ab, bc) != inter {
		t.Error("intersection not stable across argument order")
	}
	if u.Intersect(ab, u.EmptySet()) != u.EmptySet() {
		t.Error("intersection with empty set not empty")
	}
	if u.Intersect(ab, ab) != ab {
		t.Error("self-intersection changed identity")
	}

	elems := u.Elems(ab)
	if len(elems) != 2 || elems[0] != 1 || elems[1] != 2 {
		t.Errorf("Elems = %v, want [1 2]", elems)
	}
	minus := u.Minus(ab, bc)
	if len(minus) != 1 || minus[0] != 1 {
		t.Errorf("Minus = %v, want [1]", minus)
	}
}

func BenchmarkIntersect(b *testing.B) {
	u := NewLockSetU()
	x := u.EmptySet()
	y := u.EmptySet()
	for i := LockID(1); i <= 16; i++ {
		x = u.Add(x, i)
		if i%2 == 0 {
			y = u.Add(y, i)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		u.Intersect(x, y)
	}
}
