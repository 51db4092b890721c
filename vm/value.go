package vm

import "math"

// Value represents a Lark value using NaN-boxing.
//
// All values are represented as 64-bit IEEE 754 doubles. Non-number values
// are encoded in the NaN (Not-a-Number) space using the quiet NaN prefix
// and tag bits to distinguish types.
//
// Encoding scheme:
//   - Number: Native IEEE 754 double (if not a tagged NaN, it's a number)
//   - Object: Quiet NaN + tagObject + handle (32-bit arena index, 16-bit generation)
//   - Special: Quiet NaN + tagSpecial + special value ID (null/true/false)
type Value uint64

// NaN-boxing constants
const (
	// Quiet NaN prefix: exponent all 1s, quiet bit set, sign bit 0
	nanBits uint64 = 0x7FF8000000000000

	// Tag mask: 3 bits within the NaN mantissa space
	tagMask uint64 = 0x0007000000000000

	// Payload mask: 48 bits for handle/id
	payloadMask uint64 = 0x0000FFFFFFFFFFFF

	// Tag values (shifted into position)
	tagObject  uint64 = 0x0001000000000000 // heap object handle
	tagSpecial uint64 = 0x0002000000000000 // null, true, false
)

// Special value payloads
const (
	specialNull  uint64 = 0
	specialTrue  uint64 = 1
	specialFalse uint64 = 2
)

// Pre-defined special values
const (
	Null  Value = Value(nanBits | tagSpecial | specialNull)
	True  Value = Value(nanBits | tagSpecial | specialTrue)
	False Value = Value(nanBits | tagSpecial | specialFalse)
)

// ---------------------------------------------------------------------------
// Type checking
// ---------------------------------------------------------------------------

// IsNum returns true if v represents a float64 number.
// A value is a number if it's not one of our tagged NaN values.
// This includes regular numbers, infinities, and "real" NaN values.
func (v Value) IsNum() bool {
	bits := uint64(v)

	// Exponent not all 1s: a regular float.
	if (bits & 0x7FF0000000000000) != 0x7FF0000000000000 {
		return true
	}

	// Infinity has a zero mantissa (ignoring sign).
	if (bits & 0x000FFFFFFFFFFFFF) == 0 {
		return true
	}

	// Signaling NaN: treat as a number.
	if (bits & nanBits) != nanBits {
		return true
	}

	// A quiet NaN with no tag bits is a "real" NaN, still a number.
	return (bits & tagMask) == 0
}

// IsObject returns true if v represents a heap object handle.
func (v Value) IsObject() bool {
	return (uint64(v) & (nanBits | tagMask)) == (nanBits | tagObject)
}

// IsNull returns true if v is the null value.
func (v Value) IsNull() bool { return v == Null }

// IsBool returns true if v is true or false.
func (v Value) IsBool() bool { return v == True || v == False }

// ---------------------------------------------------------------------------
// Number operations
// ---------------------------------------------------------------------------

// Num returns v as a float64.
// Panics if v is not a number.
func (v Value) Num() float64 {
	if !v.IsNum() {
		panic("Value.Num: not a number")
	}
	return math.Float64frombits(uint64(v))
}

// FromNum creates a Value from a float64.
func FromNum(f float64) Value {
	return Value(math.Float64bits(f))
}

// ---------------------------------------------------------------------------
// Object handle operations
// ---------------------------------------------------------------------------

// Handle identifies a heap arena slot. The generation guards against
// dereferencing a handle whose slot has been reclaimed and reused.
type Handle struct {
	Index uint32
	Gen   uint16
}

// ObjectHandle returns the handle encoded in v.
// Panics if v is not an object.
func (v Value) ObjectHandle() Handle {
	if !v.IsObject() {
		panic("Value.ObjectHandle: not an object")
	}
	payload := uint64(v) & payloadMask
	return Handle{
		Index: uint32(payload),
		Gen:   uint16(payload >> 32),
	}
}

// FromHandle creates a Value from a heap handle.
func FromHandle(h Handle) Value {
	payload := uint64(h.Index) | uint64(h.Gen)<<32
	return Value(nanBits | tagObject | payload)
}

// ---------------------------------------------------------------------------
// Boolean operations
// ---------------------------------------------------------------------------

// Bool returns v as a bool.
// Panics if v is not true or false.
func (v Value) Bool() bool {
	switch v {
	case True:
		return true
	case False:
		return false
	default:
		panic("Value.Bool: not a boolean")
	}
}

// FromBool creates a Value from a bool.
func FromBool(b bool) Value {
	if b {
		return True
	}
	return False
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsTruthy returns true if v is considered "truthy" in conditionals.
// Only false and null are falsy; everything else is truthy.
func (v Value) IsTruthy() bool {
	return v != False && v != Null
}

// IsFalsy returns true if v is considered "falsy" in conditionals.
func (v Value) IsFalsy() bool {
	return v == False || v == Null
}
