// Package corruption models the corruption categories a scenario can declare
// and the outcome the service is expected to produce for each of them.
package corruption

import (
	herr "github.com/bleepstore/integrity/internal/errors"
)

// Kind is the byte alteration applied to a payload.
type Kind int

const (
	// None leaves the payload untouched.
	None Kind = iota
	// ZeroFill stamps the zero-fill marker into byte 0.
	ZeroFill
	// FirstByteMark stamps the first-byte marker into byte 0.
	FirstByteMark
)

func (k Kind) String() string {
	switch k {
	case ZeroFill:
		return "zero"
	case FirstByteMark:
		return "first_byte"
	default:
		return "none"
	}
}

// Side records whether the corruption is declared at write or read time.
type Side int

const (
	OnWrite Side = iota
	OnRead
)

func (s Side) String() string {
	if s == OnRead {
		return "read"
	}
	return "write"
}

// Spec is a parsed corruption category.
type Spec struct {
	Kind Kind
	Side Side
}

// Category is the operator-facing name of a corruption category.
type Category string

// Recognized categories.
const (
	NoneOnWrite      Category = "none-on-write"
	ZeroOnWrite      Category = "zero-on-write"
	FirstByteOnWrite Category = "first_byte-on-write"
	NoneOnRead       Category = "none-on-read"
	ZeroOnRead       Category = "zero-on-read"
	FirstByteOnRead  Category = "first_byte-on-read"
)

// KeepMarker is the neutral marker stamped into payloads that are not the
// corrupted one.
const KeepMarker byte = 'k'

var table = []struct {
	category Category
	spec     Spec
	marker   byte
}{
	{NoneOnWrite, Spec{None, OnWrite}, 'k'},
	{ZeroOnWrite, Spec{ZeroFill, OnWrite}, 'z'},
	{FirstByteOnWrite, Spec{FirstByteMark, OnWrite}, 'f'},
	{NoneOnRead, Spec{None, OnRead}, 'K'},
	{ZeroOnRead, Spec{ZeroFill, OnRead}, 'Z'},
	{FirstByteOnRead, Spec{FirstByteMark, OnRead}, 'F'},
}

// Parse maps a category name to its Spec and marker byte.
func Parse(name string) (Spec, byte, error) {
	for _, e := range table {
		if string(e.category) == name {
			return e.spec, e.marker, nil
		}
	}
	return Spec{}, 0, herr.ErrInvalidCategory.WithDetail("%q", name)
}

// All returns every category in canonical order.
func All() []Category {
	out := make([]Category, len(table))
	for i, e := range table {
		out[i] = e.category
	}
	return out
}

// Category returns the name of the category s was parsed from.
func (s Spec) Category() Category {
	for _, e := range table {
		if e.spec == s {
			return e.category
		}
	}
	return NoneOnWrite
}

// Marker returns the marker byte of s.
func (s Spec) Marker() byte {
	for _, e := range table {
		if e.spec == s {
			return e.marker
		}
	}
	return KeepMarker
}

// IsNoop reports whether s is one of the two no-op categories.
func (s Spec) IsNoop() bool {
	return s.Kind == None
}

// ExpectFailure reports whether reading back an object of the given total
// size is expected to fail. Empty objects have no byte to corrupt.
func (s Spec) ExpectFailure(size int64) bool {
	return size > 0 && !s.IsNoop()
}

// Apply stamps marker into byte 0 of data. It never alters data for a no-op
// spec or an empty payload, and reports whether data was changed.
func (s Spec) Apply(data []byte, marker byte) bool {
	if s.IsNoop() || len(data) == 0 {
		return false
	}
	data[0] = marker
	return true
}

// Intner is a source of uniform integers in [0, n).
type Intner interface {
	IntN(n int) int
}

// PickCorruptedPart chooses which of n parts carries the corruption marker.
// It returns -1 when there are no parts. Read-side corruption is attributed
// to server storage, so it always lands on part 0; otherwise the choice is
// uniform and consumes one value from rng.
func PickCorruptedPart(rng Intner, s Spec, n int) int {
	if n <= 0 {
		return -1
	}
	if s.Side == OnRead && !s.IsNoop() {
		return 0
	}
	return rng.IntN(n)
}
