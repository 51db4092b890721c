package vm

import (
	"math"
	"testing"
)

func TestNumRoundTrip(t *testing.T) {
	for _, n := range []float64{0, 1, -1, 3.14159, 1e300, -1e-300, math.MaxFloat64} {
		v := FromNum(n)
		if !v.IsNum() {
			t.Errorf("FromNum(%g): IsNum = false", n)
		}
		if v.IsObject() || v.IsBool() || v.IsNull() {
			t.Errorf("FromNum(%g): wrong kind flags", n)
		}
		if v.Num() != n {
			t.Errorf("FromNum(%g).Num() = %g", n, v.Num())
		}
	}
}

func TestNaNIsStillANum(t *testing.T) {
	v := FromNum(math.NaN())
	if !v.IsNum() {
		t.Fatal("NaN must round-trip as a number")
	}
	if !math.IsNaN(v.Num()) {
		t.Fatalf("Num() = %g, want NaN", v.Num())
	}
}

func TestInfinityRoundTrip(t *testing.T) {
	for _, n := range []float64{math.Inf(1), math.Inf(-1)} {
		v := FromNum(n)
		if !v.IsNum() || v.Num() != n {
			t.Errorf("FromNum(%g) did not round-trip", n)
		}
	}
}

func TestSpecialValues(t *testing.T) {
	if !Null.IsNull() || Null.IsBool() || Null.IsNum() || Null.IsObject() {
		t.Error("Null kind flags wrong")
	}
	if !True.IsBool() || !False.IsBool() {
		t.Error("True/False must be bools")
	}
	if !True.Bool() || False.Bool() {
		t.Error("Bool() values wrong")
	}
	if FromBool(true) != True || FromBool(false) != False {
		t.Error("FromBool must return the canonical singletons")
	}
}

func TestHandleRoundTrip(t *testing.T) {
	for _, h := range []Handle{
		{Index: 0, Gen: 0},
		{Index: 1, Gen: 0},
		{Index: 0xFFFFFFFF, Gen: 0xFFFF},
		{Index: 12345, Gen: 678},
	} {
		v := FromHandle(h)
		if !v.IsObject() {
			t.Errorf("FromHandle(%v): IsObject = false", h)
		}
		if v.IsNum() {
			t.Errorf("FromHandle(%v): claims to be a number", h)
		}
		if got := v.ObjectHandle(); got != h {
			t.Errorf("ObjectHandle = %v, want %v", got, h)
		}
	}
}

func TestTruthiness(t *testing.T) {
	falsy := []Value{Null, False}
	for _, v := range falsy {
		if v.IsTruthy() || !v.IsFalsy() {
			t.Errorf("%v must be falsy", v)
		}
	}
	truthy := []Value{True, FromNum(0), FromNum(1), FromHandle(Handle{Index: 3})}
	for _, v := range truthy {
		if !v.IsTruthy() || v.IsFalsy() {
			t.Errorf("%v must be truthy", v)
		}
	}
}

func TestNumAccessorPanicsOnMisuse(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Num() on a non-number must panic")
		}
	}()
	_ = Null.Num()
}
