package ctl

import (
	"fmt"
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/poly"
	"github.com/zeroproofs/multistark/transcript"
)

const testConstraintDegree = 3

func elem(v uint64) goldilocks.Element {
	var e goldilocks.Element
	e.SetUint64(v)
	return e
}

// collectConsumer records every nonzero constraint it sees, scoped to the
// row it is evaluated at.
type collectConsumer struct {
	isLast   bool
	failures []string
}

func (c *collectConsumer) Constraint(v goldilocks.Element) {
	if !v.IsZero() {
		c.failures = append(c.failures, fmt.Sprintf("every-row constraint: %s", v.String()))
	}
}

func (c *collectConsumer) ConstraintTransition(v goldilocks.Element) {
	if !c.isLast && !v.IsZero() {
		c.failures = append(c.failures, fmt.Sprintf("transition constraint: %s", v.String()))
	}
}

func (c *collectConsumer) ConstraintLastRow(v goldilocks.Element) {
	if c.isLast && !v.IsZero() {
		c.failures = append(c.failures, fmt.Sprintf("last-row constraint: %s", v.String()))
	}
}

// assertConsumer emits hard equality constraints, scoped by row flags fixed
// at build time.
type assertConsumer struct {
	isLast bool
}

func (c assertConsumer) Constraint(b *circuit.Builder, v circuit.Target) {
	b.AssertZero(v)
}

func (c assertConsumer) ConstraintTransition(b *circuit.Builder, v circuit.Target) {
	if !c.isLast {
		b.AssertZero(v)
	}
}

func (c assertConsumer) ConstraintLastRow(b *circuit.Builder, v circuit.Target) {
	if c.isLast {
		b.AssertZero(v)
	}
}

func testChallengeSet(n int) GrandProductChallengeSet {
	ch := transcript.NewChallenger()
	ch.ObserveBytes([]byte("ctl test"))
	return GetGrandProductChallengeSet(ch, n)
}

// threeCopyScenario builds two tables where table 0 carries three copies of
// a value column and table 1 lists every value three times, with dead
// padding rows masked off by a selector. The triple appearance forces
// helper columns.
func threeCopyScenario(degree int) ([][]poly.Values, []*CrossTableLookup) {
	vals := make([]uint64, degree)
	for i := range vals {
		vals[i] = uint64(10 + i)
	}
	trace0 := []poly.Values{poly.FromUint64(vals), poly.FromUint64(vals), poly.FromUint64(vals)}
	lookedVals := make([]uint64, 4*degree)
	sel := make([]uint64, 4*degree)
	for i := 0; i < 3*degree; i++ {
		lookedVals[i] = vals[i%degree]
		sel[i] = 1
	}
	trace1 := []poly.Values{poly.FromUint64(lookedVals), poly.FromUint64(sel)}

	looking := []TableWithColumns{
		NewTableWithColumns(0, SingleColumns(0), nil),
		NewTableWithColumns(0, SingleColumns(1), nil),
		NewTableWithColumns(0, SingleColumns(2), nil),
	}
	looked := NewTableWithColumns(1, SingleColumns(0), ColumnFilter(SingleColumn(1)))
	return [][]poly.Values{trace0, trace1}, []*CrossTableLookup{NewCrossTableLookup(looking, looked)}
}

// pairScenario builds a lookup with a single looking appearance, filtered.
func pairScenario(degree int) ([][]poly.Values, []*CrossTableLookup) {
	looking := make([]uint64, degree)
	filter := make([]uint64, degree)
	looked := make([]uint64, degree)
	sel := make([]uint64, degree)
	for i := range looking {
		looking[i] = uint64(100 + i)
	}
	// Only even rows participate; the looked table lists them each once.
	j := 0
	for i := 0; i < degree; i += 2 {
		filter[i] = 1
		looked[j] = looking[i]
		sel[j] = 1
		j++
	}
	trace0 := []poly.Values{poly.FromUint64(looking), poly.FromUint64(filter)}
	trace1 := []poly.Values{poly.FromUint64(looked), poly.FromUint64(sel)}

	lookingT := []TableWithColumns{
		NewTableWithColumns(0, SingleColumns(0), ColumnFilter(SingleColumn(1))),
	}
	lookedT := NewTableWithColumns(1, SingleColumns(0), ColumnFilter(SingleColumn(1)))
	return [][]poly.Values{trace0, trace1}, []*CrossTableLookup{NewCrossTableLookup(lookingT, lookedT)}
}

func TestCombineHorner(t *testing.T) {
	ch := GrandProductChallenge{Beta: elem(7), Gamma: elem(11)}
	vs := []goldilocks.Element{elem(2), elem(3), elem(5)}
	// 2 + 3*7 + 5*49 + 11 = 279
	assert.Equal(t, elem(279), ch.Combine(vs))
	// The empty tuple combines to gamma alone.
	assert.Equal(t, elem(11), ch.Combine(nil))
}

func TestHelperCount(t *testing.T) {
	assert.Equal(t, 0, helperCount(1, 3))
	assert.Equal(t, 0, helperCount(2, 3))
	assert.Equal(t, 2, helperCount(3, 3))
	assert.Equal(t, 2, helperCount(4, 3))
	assert.Equal(t, 3, helperCount(5, 3))
}

// checkAllRows runs the full native constraint set on every row of every
// table and returns the collected violations.
func checkAllRows(t *testing.T, traces [][]poly.Values, ctls []*CrossTableLookup, data []CtlData) []string {
	t.Helper()
	set := testChallengeSet(2)
	var failures []string
	for table := range traces {
		degree := traces[table][0].Len()
		for r := 0; r < degree; r++ {
			rn := (r + 1) % degree
			auxLocal := make([][]goldilocks.Element, len(traces))
			auxNext := make([][]goldilocks.Element, len(traces))
			for tt := range traces {
				at := data[tt].AuxPolys()
				auxLocal[tt] = rowOf(at, r%traces[tt][0].Len())
				auxNext[tt] = rowOf(at, (r+1)%traces[tt][0].Len())
			}
			vars, err := CheckVarsFromOpenings(ctls, auxLocal, auxNext, set, testConstraintDegree)
			require.NoError(t, err)

			consumer := &collectConsumer{isLast: r == degree-1}
			EvalCrossTableLookupChecks(vars[table], rowOf(traces[table], r), rowOf(traces[table], rn), testConstraintDegree, consumer)
			for _, f := range consumer.failures {
				failures = append(failures, fmt.Sprintf("table %d row %d: %s", table, r, f))
			}
		}
	}
	return failures
}

func rowOf(cols []poly.Values, r int) []goldilocks.Element {
	out := make([]goldilocks.Element, len(cols))
	for i := range cols {
		out[i] = cols[i].Coeffs[r]
	}
	return out
}

func TestPartialSumsRoundTrip(t *testing.T) {
	for name, build := range map[string]func(int) ([][]poly.Values, []*CrossTableLookup){
		"three-copy": threeCopyScenario,
		"pair":       pairScenario,
	} {
		t.Run(name, func(t *testing.T) {
			traces, ctls := build(8)
			require.NoError(t, CheckTraces(traces, ctls))

			set := testChallengeSet(2)
			data := GetCtlData(traces, ctls, set, testConstraintDegree)

			failures := checkAllRows(t, traces, ctls, data)
			assert.Empty(t, failures)

			zsFirst := make([][]goldilocks.Element, len(traces))
			for table := range traces {
				for _, z := range data[table].ZPolys() {
					zsFirst[table] = append(zsFirst[table], z.Coeffs[0])
				}
			}
			require.NoError(t, VerifyCrossTableLookups(ctls, zsFirst, len(set.Challenges)))
		})
	}
}

func TestVerifyFailsOnFlippedValue(t *testing.T) {
	traces, ctls := pairScenario(8)
	// Flip one participating value on the looking side only.
	traces[0][0].Coeffs[2] = elem(999)
	require.Error(t, CheckTraces(traces, ctls))

	set := testChallengeSet(2)
	data := GetCtlData(traces, ctls, set, testConstraintDegree)
	zsFirst := make([][]goldilocks.Element, len(traces))
	for table := range traces {
		for _, z := range data[table].ZPolys() {
			zsFirst[table] = append(zsFirst[table], z.Coeffs[0])
		}
	}
	assert.Error(t, VerifyCrossTableLookups(ctls, zsFirst, len(set.Challenges)))
}

func TestNonBinaryFilterRejected(t *testing.T) {
	traces, ctls := pairScenario(8)
	// A filter of 2 is not a multiplicity; rows appearing twice must be
	// listed twice.
	traces[1][1].Coeffs[0] = elem(2)

	require.ErrorContains(t, CheckTraces(traces, ctls), "non-binary filter")

	set := testChallengeSet(1)
	assert.Panics(t, func() { GetCtlData(traces, ctls, set, testConstraintDegree) })
}

func TestNextRowTermsVanishOnLastRow(t *testing.T) {
	trace := []poly.Values{poly.FromUint64([]uint64{5, 6, 7, 8})}
	c := SingleNextColumn(0)
	assert.Equal(t, elem(6), c.EvalTable(trace, 0))
	assert.Equal(t, elem(8), c.EvalTable(trace, 2))
	lastRow := c.EvalTable(trace, 3)
	assert.True(t, lastRow.IsZero())

	// A constant term still survives past the missing next row.
	cc := Column{NextLinear: c.NextLinear, Constant: elem(3)}
	assert.Equal(t, elem(3), cc.EvalTable(trace, 3))
}

func TestLinearCombinationRejectsDuplicateColumns(t *testing.T) {
	one := goldilocks.One()
	assert.NotPanics(t, func() {
		LinearCombination(ColumnTerm{Index: 0, Coeff: one}, ColumnTerm{Index: 1, Coeff: one})
	})
	assert.Panics(t, func() {
		LinearCombination(ColumnTerm{Index: 1, Coeff: one}, ColumnTerm{Index: 1, Coeff: one})
	})
	assert.Panics(t, func() {
		LinearCombinationWithConstant(one, ColumnTerm{Index: 2, Coeff: one}, ColumnTerm{Index: 2, Coeff: one})
	})
}

func TestFilteredRowsContributeNothing(t *testing.T) {
	traces, _ := pairScenario(8)
	pairs := []colFilter{{
		columns: SingleColumns(0),
		filter:  ColumnFilter(SingleColumn(1)),
	}}
	set := testChallengeSet(1)
	zd := partialSums(traces[0], pairs, set.Challenges[0], testConstraintDegree)

	// The grand total must equal the sum over participating rows only.
	var want goldilocks.Element
	for r := 0; r < 8; r += 2 {
		c := set.Challenges[0].Combine([]goldilocks.Element{traces[0][0].Coeffs[r]})
		c.Inverse(&c)
		want.Add(&want, &c)
	}
	assert.Equal(t, want, zd.Z.Coeffs[0])
}

// TestCircuitChecksMatchNative proves that the wire-level checkers accept
// exactly the witnesses the native checkers accept, row by row.
func TestCircuitChecksMatchNative(t *testing.T) {
	traces, ctls := threeCopyScenario(4)
	set := testChallengeSet(1)
	data := GetCtlData(traces, ctls, set, testConstraintDegree)

	table := 0
	degree := traces[table][0].Len()
	for r := 0; r < degree; r++ {
		rn := (r + 1) % degree

		b := circuit.NewBuilder(circuit.DefaultConfig())
		localT := b.AddVirtualTargets(len(traces[table]))
		nextT := b.AddVirtualTargets(len(traces[table]))
		auxLocalT := make([][]circuit.Target, len(traces))
		auxNextT := make([][]circuit.Target, len(traces))
		for tt := range traces {
			n := len(data[tt].AuxPolys())
			auxLocalT[tt] = b.AddVirtualTargets(n)
			auxNextT[tt] = b.AddVirtualTargets(n)
		}
		setT := GrandProductChallengeSetTarget{Challenges: []GrandProductChallengeTarget{{
			Beta:  b.Constant(set.Challenges[0].Beta),
			Gamma: b.Constant(set.Challenges[0].Gamma),
		}}}
		varsT, err := CheckVarsFromOpeningsCircuit(ctls, auxLocalT, auxNextT, setT, testConstraintDegree)
		require.NoError(t, err)
		EvalCrossTableLookupChecksCircuit(b, varsT[table], localT, nextT, testConstraintDegree, assertConsumer{isLast: r == degree-1})
		cd, err := b.Compile()
		require.NoError(t, err)

		pw := circuit.NewPartialWitness()
		require.NoError(t, pw.SetTargets(localT, rowOf(traces[table], r)))
		require.NoError(t, pw.SetTargets(nextT, rowOf(traces[table], rn)))
		for tt := range traces {
			at := data[tt].AuxPolys()
			d := traces[tt][0].Len()
			require.NoError(t, pw.SetTargets(auxLocalT[tt], rowOf(at, r%d)))
			require.NoError(t, pw.SetTargets(auxNextT[tt], rowOf(at, (r+1)%d)))
		}
		_, err = circuit.Prove(cd, pw)
		assert.NoError(t, err, "row %d", r)
	}
}

func TestMultisetProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("permuted tables always pass, disjoint tables always fail", prop.ForAll(
		func(vals []uint64, rot int) bool {
			degree := 8
			a := make([]uint64, degree)
			bvals := make([]uint64, degree)
			for i := 0; i < degree; i++ {
				a[i] = vals[i%len(vals)]
				bvals[(i+rot)%degree] = a[i]
			}
			traces := [][]poly.Values{
				{poly.FromUint64(a)},
				{poly.FromUint64(bvals)},
			}
			looking := []TableWithColumns{NewTableWithColumns(0, SingleColumns(0), nil)}
			looked := NewTableWithColumns(1, SingleColumns(0), nil)
			ctls := []*CrossTableLookup{NewCrossTableLookup(looking, looked)}
			if CheckTraces(traces, ctls) != nil {
				return false
			}

			set := testChallengeSet(2)
			data := GetCtlData(traces, ctls, set, testConstraintDegree)
			zsFirst := make([][]goldilocks.Element, len(traces))
			for table := range traces {
				for _, z := range data[table].ZPolys() {
					zsFirst[table] = append(zsFirst[table], z.Coeffs[0])
				}
			}
			return VerifyCrossTableLookups(ctls, zsFirst, len(set.Challenges)) == nil
		},
		gen.SliceOfN(8, gen.UInt64Range(1, 1<<32)),
		gen.IntRange(0, 7),
	))

	properties.TestingRun(t)
}
