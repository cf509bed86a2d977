package db

import (
	"bytes"
	"fmt"

	"github.com/ValentinKolb/docKV/lib/db/keys"
)

// --------------------------------------------------------------------------
// Key Ranges
// --------------------------------------------------------------------------

// KeyRange restricts reads to an interval of keys. A nil *KeyRange is unbounded.
// Bounds are strings for primary keys and strings or numbers for index keys.
type KeyRange struct {
	Lower     any
	Upper     any
	LowerOpen bool
	UpperOpen bool

	hasLower bool
	hasUpper bool
}

// Only returns a range matching exactly one key.
func Only(key any) *KeyRange {
	return &KeyRange{Lower: key, Upper: key, hasLower: true, hasUpper: true}
}

// Bound returns a range between lower and upper.
func Bound(lower, upper any, lowerOpen, upperOpen bool) *KeyRange {
	return &KeyRange{
		Lower: lower, Upper: upper,
		LowerOpen: lowerOpen, UpperOpen: upperOpen,
		hasLower: true, hasUpper: true,
	}
}

// LowerBound returns a range of all keys above lower.
func LowerBound(lower any, open bool) *KeyRange {
	return &KeyRange{Lower: lower, LowerOpen: open, hasLower: true}
}

// UpperBound returns a range of all keys below upper.
func UpperBound(upper any, open bool) *KeyRange {
	return &KeyRange{Upper: upper, UpperOpen: open, hasUpper: true}
}

func (r *KeyRange) String() string {
	if r == nil {
		return "[*, *]"
	}
	lower, upper := "[*", "*]"
	if r.hasLower {
		lower = fmt.Sprintf("[%v", r.Lower)
		if r.LowerOpen {
			lower = fmt.Sprintf("(%v", r.Lower)
		}
	}
	if r.hasUpper {
		upper = fmt.Sprintf("%v]", r.Upper)
		if r.UpperOpen {
			upper = fmt.Sprintf("%v)", r.Upper)
		}
	}
	return lower + ", " + upper
}

// Bounds is a KeyRange translated into the byte space of an engine.
// A nil Lower or Upper means unbounded.
type Bounds struct {
	Lower     []byte
	Upper     []byte
	LowerOpen bool
	UpperOpen bool
}

// PrimaryBounds translates the range into raw primary key bytes. Bounds must be strings.
func (r *KeyRange) PrimaryBounds() (Bounds, error) {
	if r == nil {
		return Bounds{}, nil
	}
	b := Bounds{LowerOpen: r.LowerOpen, UpperOpen: r.UpperOpen}
	if r.hasLower {
		s, ok := r.Lower.(string)
		if !ok {
			return Bounds{}, fmt.Errorf("%w: primary keys are strings, got %T", ErrInvalidKey, r.Lower)
		}
		b.Lower = []byte(s)
	}
	if r.hasUpper {
		s, ok := r.Upper.(string)
		if !ok {
			return Bounds{}, fmt.Errorf("%w: primary keys are strings, got %T", ErrInvalidKey, r.Upper)
		}
		b.Upper = []byte(s)
	}
	return b, nil
}

// IndexBounds translates the range into the encoded index key space (see package keys).
func (r *KeyRange) IndexBounds() (Bounds, error) {
	if r == nil {
		return Bounds{}, nil
	}
	b := Bounds{LowerOpen: r.LowerOpen, UpperOpen: r.UpperOpen}
	var err error
	if r.hasLower {
		if b.Lower, err = keys.Encode(r.Lower); err != nil {
			return Bounds{}, err
		}
	}
	if r.hasUpper {
		if b.Upper, err = keys.Encode(r.Upper); err != nil {
			return Bounds{}, err
		}
	}
	return b, nil
}

// Start returns the first key to seek to (nil = beginning).
func (b Bounds) Start() []byte {
	return b.Lower
}

// AboveLower reports whether k satisfies the lower bound.
func (b Bounds) AboveLower(k []byte) bool {
	if b.Lower == nil {
		return true
	}
	c := bytes.Compare(k, b.Lower)
	return c > 0 || (c == 0 && !b.LowerOpen)
}

// BelowUpper reports whether k satisfies the upper bound.
func (b Bounds) BelowUpper(k []byte) bool {
	if b.Upper == nil {
		return true
	}
	c := bytes.Compare(k, b.Upper)
	return c < 0 || (c == 0 && !b.UpperOpen)
}

// Contains reports whether k lies inside the bounds.
func (b Bounds) Contains(k []byte) bool {
	return b.AboveLower(k) && b.BelowUpper(k)
}
