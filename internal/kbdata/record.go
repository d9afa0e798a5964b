// Package kbdata holds the small value types shared by every layer of the
// rule-search engine: raw fact tuples (Record) and rule-structure atoms
// (Predicate). Keeping them in one leaf package avoids import cycles between
// cbtable, cb, fragment and rule.
package kbdata

import "fmt"

// Record is a fixed-arity ordered tuple of integer argument codes. Records
// back IntTable rows (where every element is a constant numeration id) and
// rule groundings alike. Records are value-compared by arity and element
// order; hashing is order-sensitive (spec.md §3).
type Record []int32

// Equal reports whether r and other have the same arity and elements, in
// order.
func (r Record) Equal(other Record) bool {
	if len(r) != len(other) {
		return false
	}
	for i, v := range r {
		if other[i] != v {
			return false
		}
	}
	return true
}

// Less implements the column-0-first, then-left-to-right ordering IntTable
// relies on for its column-0 sort (spec.md §4.1: "column 0 gives global sort
// order").
func (r Record) Less(other Record) bool {
	n := len(r)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if r[i] != other[i] {
			return r[i] < other[i]
		}
	}
	return len(r) < len(other)
}

// Clone returns a copy of r so that callers can safely retain it beyond the
// lifetime of a shared buffer.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	copy(out, r)
	return out
}

func (r Record) String() string {
	return fmt.Sprintf("%v", []int32(r))
}

// Hash returns an order-sensitive FNV-1a hash of the record, used as a
// cheap bucket key ahead of an exact Equal check (e.g. deduping grounded
// evidence tuples).
func (r Record) Hash() uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211
	h := uint64(offset64)
	for _, v := range r {
		h ^= uint64(uint32(v))
		h *= prime64
	}
	return h
}
