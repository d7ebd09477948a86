package stark

import (
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/poly"
)

func elem(v uint64) goldilocks.Element {
	var e goldilocks.Element
	e.SetUint64(v)
	return e
}

// squareStark has two columns and one constraint: col1 = col0^2 on every
// row.
type squareStark struct{}

func (squareStark) NumColumns() int       { return 2 }
func (squareStark) ConstraintDegree() int { return 3 }

func (squareStark) EvalConstraints(vars *EvaluationVars, consumer ctl.ConstraintConsumer) {
	var sq goldilocks.Element
	sq.Mul(&vars.Local[0], &vars.Local[0])
	sq.Sub(&sq, &vars.Local[1])
	consumer.Constraint(sq)
}

func (squareStark) EvalConstraintsCircuit(b *circuit.Builder, vars *EvaluationVarsTarget, consumer ctl.RecursiveConstraintConsumer) {
	consumer.Constraint(b, b.MulSub(vars.Local[0], vars.Local[0], vars.Local[1]))
}

// plainStark carries data columns with no constraints of its own.
type plainStark struct{ cols int }

func (s plainStark) NumColumns() int       { return s.cols }
func (s plainStark) ConstraintDegree() int { return 3 }

func (plainStark) EvalConstraints(vars *EvaluationVars, consumer ctl.ConstraintConsumer) {}

func (plainStark) EvalConstraintsCircuit(b *circuit.Builder, vars *EvaluationVarsTarget, consumer ctl.RecursiveConstraintConsumer) {
}

// testSystem links a square table to a plain table: every row of the square
// table's col0 must appear, once per occurrence, among the rows of the plain
// table's col0 selected by col1.
func testSystem() *AllStark {
	looking := []ctl.TableWithColumns{
		ctl.NewTableWithColumns(0, ctl.SingleColumns(0), nil),
	}
	looked := ctl.NewTableWithColumns(1, ctl.SingleColumns(0), ctl.ColumnFilter(ctl.SingleColumn(1)))
	return &AllStark{
		Tables:            []Stark{squareStark{}, plainStark{cols: 2}},
		Names:             []string{"square", "lookup"},
		CrossTableLookups: []*ctl.CrossTableLookup{ctl.NewCrossTableLookup(looking, looked)},
		Config:            DefaultConfig(),
	}
}

func testTraces() [][]poly.Values {
	// Square table: values 2,3,2,3 with their squares.
	vals := []uint64{2, 3, 2, 3}
	squares := []uint64{4, 9, 4, 9}
	trace0 := []poly.Values{poly.FromUint64(vals), poly.FromUint64(squares)}
	// The lookup table lists 2 and 3 twice each, padded with dead rows the
	// selector masks off. It is twice as tall as the square table.
	trace1 := []poly.Values{
		poly.FromUint64([]uint64{2, 3, 2, 3, 0, 0, 0, 0}),
		poly.FromUint64([]uint64{1, 1, 1, 1, 0, 0, 0, 0}),
	}
	return [][]poly.Values{trace0, trace1}
}

func testPublicValues() PublicValues {
	var pv PublicValues
	pv.BeforeRoot[0] = elem(100)
	pv.AfterRoot[0] = elem(200)
	pv.Userdata[0] = elem(42)
	return pv
}

func TestProveVerify(t *testing.T) {
	all := testSystem()
	proof, err := Prove(all, testTraces(), testPublicValues())
	require.NoError(t, err)
	require.NoError(t, Verify(all, proof))
}

func TestProveRejectsBrokenConstraint(t *testing.T) {
	all := testSystem()
	traces := testTraces()
	// 3^2 is not 10.
	traces[0][1].Coeffs[1] = elem(10)
	_, err := Prove(all, traces, testPublicValues())
	require.Error(t, err)
}

func TestProveRejectsBrokenLookup(t *testing.T) {
	all := testSystem()
	traces := testTraces()
	// The lookup table now lists a 5 where the square table needs a 3.
	traces[1][0].Coeffs[1] = elem(5)
	_, err := Prove(all, traces, testPublicValues())
	require.Error(t, err)
}

func TestProveRejectsNonBinaryFilter(t *testing.T) {
	all := testSystem()
	traces := testTraces()
	traces[1][1].Coeffs[0] = elem(2)
	assert.Panics(t, func() { Prove(all, traces, testPublicValues()) })
}

func TestVerifyRejectsTamperedOpening(t *testing.T) {
	all := testSystem()
	proof, err := Prove(all, testTraces(), testPublicValues())
	require.NoError(t, err)

	proof.TableProofs[0].Proof.Openings.LocalValues[0] = elem(12345)
	assert.Error(t, Verify(all, proof))
}

func TestVerifyRejectsTranscriptDiscontinuity(t *testing.T) {
	all := testSystem()
	proof, err := Prove(all, testTraces(), testPublicValues())
	require.NoError(t, err)

	proof.TableProofs[1].InitChallengerState[0] = elem(7)
	assert.Error(t, Verify(all, proof))
}

func TestVerifyRejectsTamperedGrandTotal(t *testing.T) {
	all := testSystem()
	proof, err := Prove(all, testTraces(), testPublicValues())
	require.NoError(t, err)

	proof.TableProofs[0].Proof.Openings.CtlZsFirst[0] = elem(1)
	// The binding covers the grand totals, so tampering is caught there.
	assert.Error(t, Verify(all, proof))
}

// TestTwoRowScenario is the minimal cross-table case: each table has two
// rows and a selector, exactly one row participates on each side, and both
// map the same scalar.
func TestTwoRowScenario(t *testing.T) {
	one := goldilocks.One()
	var negOne goldilocks.Element
	negOne.Neg(&one)

	// Looking side maps column 0 where column 1 is zero.
	notC := ctl.LinearCombinationWithConstant(one, ctl.ColumnTerm{Index: 1, Coeff: negOne})
	looking := []ctl.TableWithColumns{
		ctl.NewTableWithColumns(0, ctl.SingleColumns(0), ctl.ColumnFilter(notC)),
	}
	// Looked side maps column 0 where column 1 is one.
	looked := ctl.NewTableWithColumns(1, ctl.SingleColumns(0), ctl.ColumnFilter(ctl.SingleColumn(1)))

	all := &AllStark{
		Tables:            []Stark{plainStark{cols: 2}, plainStark{cols: 2}},
		Names:             []string{"looking", "looked"},
		CrossTableLookups: []*ctl.CrossTableLookup{ctl.NewCrossTableLookup(looking, looked)},
		Config:            DefaultConfig(),
	}

	traces := [][]poly.Values{
		{poly.FromUint64([]uint64{7, 9}), poly.FromUint64([]uint64{0, 1})},
		{poly.FromUint64([]uint64{7, 5}), poly.FromUint64([]uint64{1, 0})},
	}
	proof, err := Prove(all, traces, testPublicValues())
	require.NoError(t, err)
	require.NoError(t, Verify(all, proof))

	// Flipping the mapped value on one side must fail.
	traces[1][0].Coeffs[0] = elem(8)
	_, err = Prove(all, traces, testPublicValues())
	require.Error(t, err)
}

func TestPublicValuesRoundTrip(t *testing.T) {
	pv := testPublicValues()
	got, err := PublicValuesFromElements(pv.Elements())
	require.NoError(t, err)
	assert.Equal(t, pv, got)

	_, err = PublicValuesFromElements(pv.Elements()[1:])
	assert.Error(t, err)
}
