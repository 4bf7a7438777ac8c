package sval

import (
	"testing"

	"github.com/runt18/data-race-test-sub000/internal/hb"
	"github.com/runt18/data-race-test-sub000/internal/locks"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		modified bool
		ss       hb.SegSetID
		ls       locks.LockSetID
		trace    bool
	}{
		{"read empty sets", false, hb.Singleton(1), 0, false},
		{"modified", true, hb.Singleton(1), 0, false},
		{"with lockset", true, hb.Singleton(3), 17, false},
		{"traced", true, hb.Singleton(3), 17, true},
		{"interned segset id", false, 5, 9, false},
		{"max fields", true, 1<<30 - 1, 1<<30 - 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Encode(tt.modified, tt.ss, tt.ls, tt.trace)
			if !v.IsOwned() || v.IsNew() || v.IsIgnore() {
				t.Fatalf("Encode produced non-owned value %v", v)
			}
			if !v.Valid() {
				t.Fatal("Encode produced invalid value")
			}
			mod, ss, ls, trace := v.Decode()
			if mod != tt.modified || ss != tt.ss || ls != tt.ls || trace != tt.trace {
				t.Errorf("Decode = (%v, %d, %d, %v), want (%v, %d, %d, %v)",
					mod, ss, ls, trace, tt.modified, tt.ss, tt.ls, tt.trace)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	if !New.IsNew() || New.IsIgnore() || New.IsOwned() {
		t.Error("New sentinel misclassified")
	}
	if !Ignore.IsIgnore() || Ignore.IsNew() || Ignore.IsOwned() {
		t.Error("Ignore sentinel misclassified")
	}
	if !New.Valid() || !Ignore.Valid() {
		t.Error("sentinels must be valid values")
	}
	if New.IsModified() || Ignore.IsModified() || New.Trace() {
		t.Error("sentinels carry no owned flags")
	}
}

func TestZeroWordInvalid(t *testing.T) {
	var zero SVal
	if zero.Valid() {
		t.Error("the all-zero word must never be a valid shadow value")
	}
	if Encode(false, hb.Singleton(1), 0, false) == 0 {
		t.Error("Encode produced the reserved all-zero word")
	}
}

func TestDecodeNonOwnedPanics(t *testing.T) {
	for _, v := range []SVal{New, Ignore, 0} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Decode(%#x) did not panic", uint64(v))
				}
			}()
			v.Decode()
		}()
	}
}

func TestString(t *testing.T) {
	if got := New.String(); got != "New" {
		t.Errorf("New.String() = %q", got)
	}
	if got := Encode(true, hb.Singleton(1), 0, false).String(); got == "" {
		t.Error("owned String() empty")
	}
}

func BenchmarkEncodeDecode(b *testing.B) {
	ss := hb.Singleton(12345)
	for i := 0; i < b.N; i++ {
		v := Encode(i&1 == 0, ss, locks.LockSetID(i&1023), false)
		mod, _, _, _ := v.Decode()
		_ = mod
	}
}
