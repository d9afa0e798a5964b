package rule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TramsWang/sinc-go/internal/argcode"
	"github.com/TramsWang/sinc-go/internal/cb"
	"github.com/TramsWang/sinc-go/internal/kbdata"
)

func varArg(id int) argcode.Arg { return argcode.Variable(uint32(id)) }

// fakeRelation is a minimal HeadRelation + RelationSource double for
// tests: one functor id per relation, plain in-memory rows, and a bool
// entailment slice (mirrors how internal/kb's Relation behaves).
type fakeRelation struct {
	functor  int32
	arity    int
	rows     []kbdata.Record
	entailed []bool
	consts   int64
}

func newFakeRelation(functor int32, arity int, consts int64, rows ...[]int32) *fakeRelation {
	recs := make([]kbdata.Record, len(rows))
	for i, r := range rows {
		recs[i] = kbdata.Record(r)
	}
	return &fakeRelation{functor: functor, arity: arity, rows: recs, entailed: make([]bool, len(recs)), consts: consts}
}

func (f *fakeRelation) Functor() int32                  { return f.functor }
func (f *fakeRelation) Arity() int                      { return f.arity }
func (f *fakeRelation) TotalRows() int                  { return len(f.rows) }
func (f *fakeRelation) Rows() []kbdata.Record            { return f.rows }
func (f *fakeRelation) IsEntailed(i int) bool            { return f.entailed[i] }
func (f *fakeRelation) ConstantUniverseSize() int64      { return f.consts }
func (f *fakeRelation) MarkEntailed(i int) bool {
	if f.entailed[i] {
		return false
	}
	f.entailed[i] = true
	return true
}

type fakeRelationSource struct {
	byFunctor map[int32]*fakeRelation
}

func (s *fakeRelationSource) RelationArity(functor int32) int { return s.byFunctor[functor].Arity() }
func (s *fakeRelationSource) RelationRows(functor int32) []kbdata.Record {
	return s.byFunctor[functor].Rows()
}

func TestNewInitialRule(t *testing.T) {
	pool := cb.NewPool(0)
	head := newFakeRelation(1, 2, 10, []int32{1, 2}, []int32{3, 4})

	r := NewInitialRule(pool, head)
	require.Equal(t, 0, r.Length())
	require.InDelta(t, 2, r.Eval().PosEtls, 1e-9)
	require.InDelta(t, 100, r.Eval().AllEtls, 1e-9)
}

func TestSpecializeCase5_BindsConstant(t *testing.T) {
	pool := cb.NewPool(0)
	head := newFakeRelation(1, 2, 10, []int32{1, 2}, []int32{3, 4})
	r := NewInitialRule(pool, head)

	fpCache := NewFingerprintCache()
	tabu := NewTabuSets()
	clone, status := r.SpecializeCase5(0, 0, 1, fpCache, tabu, 0)
	require.Equal(t, Normal, status)
	require.Equal(t, 1, clone.Length())
	require.InDelta(t, 1, clone.Eval().PosEtls, 1e-9)
}

func TestSpecializeCase2_JoinsBodyRelation(t *testing.T) {
	pool := cb.NewPool(0)
	head := newFakeRelation(1, 2, 10, []int32{1, 2}, []int32{3, 4})
	edge := newFakeRelation(2, 2, 10, []int32{1, 99}, []int32{5, 6})
	relations := &fakeRelationSource{byFunctor: map[int32]*fakeRelation{2: edge}}

	fpCache := NewFingerprintCache()
	tabu := NewTabuSets()

	// Bind head arg 0 to a new LV directly (simulating the effect of a
	// prior case-3 move), then join a body predicate on that LV via
	// case 2.
	r2 := NewInitialRule(pool, head)
	lv := r2.newLV()
	r2.structure[0].Args[0] = varArg(lv)
	r2.recordSlot(lv, SlotRef{0, 0})
	pos := r2.obtainPosCache()
	pos.fragments[pos.predToFragment[0]].BindExistingVar(pos.predToTabIdx[0], 0, lv)

	clone, status2 := r2.SpecializeCase2(2, 2, 0, lv, relations, fpCache, tabu, 0)
	require.Equal(t, Normal, status2)
	require.Equal(t, 2, len(clone.Structure()))
}

func TestFingerprint_InvariantUnderVariableRenaming(t *testing.T) {
	pool := cb.NewPool(0)
	head := newFakeRelation(1, 2, 10, []int32{1, 2})

	r1 := NewInitialRule(pool, head)
	r1.structure[0].Args[0] = varArg(0)
	r1.structure[0].Args[1] = varArg(0)
	r1.recordSlot(0, SlotRef{0, 0})
	r1.recordSlot(0, SlotRef{0, 1})

	r2 := NewInitialRule(pool, head)
	r2.structure[0].Args[0] = varArg(7)
	r2.structure[0].Args[1] = varArg(7)
	r2.recordSlot(7, SlotRef{0, 0})
	r2.recordSlot(7, SlotRef{0, 1})

	fp1, err1 := r1.Fingerprint()
	fp2, err2 := r2.Fingerprint()
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, fp1, fp2)
}

// TestMine_TransitiveJoinMatchesWorkedExample reproduces the two-body-atom
// transitive-closure join worked example: grandParent(X0,X2):-parent(X0,X1),
// parent(X1,X2), built via the exact case-4/case-4/case-3 specialization
// sequence a beam search would take to reach it, and checks the resulting
// Eval and counterexample set.
func TestMine_TransitiveJoinMatchesWorkedExample(t *testing.T) {
	pool := cb.NewPool(0)

	const (
		g1, g2, g4     = int32(1), int32(2), int32(4)
		f1, f2         = int32(5), int32(6)
		m2             = int32(9)
		s1, s2, s4, d1 = int32(10), int32(11), int32(13), int32(14)
		d2             = int32(15)
	)

	head := newFakeRelation(1, 2, 16,
		[]int32{g1, s1}, []int32{g2, d2}, []int32{g4, s4})
	parent := newFakeRelation(2, 2, 16,
		[]int32{f1, s1}, []int32{f1, d1}, []int32{f2, s2}, []int32{f2, d2}, []int32{m2, d2},
		[]int32{g1, f1}, []int32{g2, f2}, []int32{g2, m2}, []int32{3, 7})
	relations := &fakeRelationSource{byFunctor: map[int32]*fakeRelation{2: parent}}

	fpCache := NewFingerprintCache()
	tabu := NewTabuSets()

	r0 := NewInitialRule(pool, head)
	r1, status1 := r0.SpecializeCase4(0, 0, 2, 2, 0, relations, fpCache, tabu, 0)
	require.Equal(t, Normal, status1)

	r2, status2 := r1.SpecializeCase4(1, 1, 2, 2, 0, relations, fpCache, tabu, 0)
	require.Equal(t, Normal, status2)

	r3, status3 := r2.SpecializeCase3(2, 1, 0, 1, fpCache, tabu, 0)
	require.Equal(t, Normal, status3)

	require.Equal(t, 3, r3.Length())
	require.InDelta(t, 2, r3.Eval().PosEtls, 1e-9)
	require.InDelta(t, 2, r3.Eval().AllEtls, 1e-9)

	got := map[string]bool{}
	for _, row := range r3.Counterexamples() {
		got[row.String()] = true
	}
	require.Len(t, got, 2)
	require.True(t, got[kbdata.Record{g1, d1}.String()])
	require.True(t, got[kbdata.Record{g2, s2}.String()])
}

// TestMine_BodyLessTiedHeadArgsMatchesWorkedExample reproduces the
// body-less rule worked example: h(X0,X0) over a head relation where one
// fact ties its two columns and another does not, built via a single
// case-3 move tying the head's own two columns together.
func TestMine_BodyLessTiedHeadArgsMatchesWorkedExample(t *testing.T) {
	pool := cb.NewPool(0)
	head := newFakeRelation(1, 2, 3, []int32{1, 1}, []int32{2, 2}, []int32{1, 3})

	fpCache := NewFingerprintCache()
	tabu := NewTabuSets()

	r0 := NewInitialRule(pool, head)
	r1, status := r0.SpecializeCase3(0, 0, 0, 1, fpCache, tabu, 0)
	require.Equal(t, Normal, status)

	require.Equal(t, 1, r1.Length())
	require.InDelta(t, 2, r1.Eval().PosEtls, 1e-9)
	require.InDelta(t, 3, r1.Eval().AllEtls, 1e-9)

	ces := r1.Counterexamples()
	require.Len(t, ces, 1)
	require.Equal(t, kbdata.Record{3, 3}.String(), ces[0].String())
}
