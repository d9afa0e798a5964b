package kbdata

import "github.com/TramsWang/sinc-go/internal/argcode"

// Predicate is (pred_symbol, arity, args[arity]) — spec.md §3. Functor is
// the numeric relation id; Args holds one argcode.Arg per predicate
// position, each either empty, a constant, or a limited variable.
type Predicate struct {
	Functor int32
	Args    []argcode.Arg
}

// NewPredicate allocates a predicate over functor with all-empty arguments.
func NewPredicate(functor int32, arity int) Predicate {
	return Predicate{Functor: functor, Args: make([]argcode.Arg, arity)}
}

// Arity returns the number of argument positions.
func (p Predicate) Arity() int { return len(p.Args) }

// Clone returns a deep copy so callers can mutate Args without aliasing the
// original predicate (rule clone/COW relies on this).
func (p Predicate) Clone() Predicate {
	args := make([]argcode.Arg, len(p.Args))
	copy(args, p.Args)
	return Predicate{Functor: p.Functor, Args: args}
}

// Equal reports whether two predicates have the same functor and argument
// codes in the same positions.
func (p Predicate) Equal(other Predicate) bool {
	if p.Functor != other.Functor || len(p.Args) != len(other.Args) {
		return false
	}
	for i, a := range p.Args {
		if other.Args[i] != a {
			return false
		}
	}
	return true
}

// Structure is an ordered sequence of predicates; index 0 is the head,
// indices >= 1 are body atoms (spec.md §3).
type Structure []Predicate

// Head returns the head predicate of the structure.
func (s Structure) Head() Predicate { return s[0] }

// Body returns the body atoms of the structure (everything but the head).
func (s Structure) Body() []Predicate { return s[1:] }

// Clone deep-copies the structure.
func (s Structure) Clone() Structure {
	out := make(Structure, len(s))
	for i, p := range s {
		out[i] = p.Clone()
	}
	return out
}
