package recursion

import (
	"bytes"
	"sync"
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/poly"
	"github.com/zeroproofs/multistark/stark"
)

func elem(v uint64) goldilocks.Element {
	var e goldilocks.Element
	e.SetUint64(v)
	return e
}

// The test system mirrors the stark package fixture: a square table whose
// first column is looked up in a lookup table.
type squareStark struct{}

func (squareStark) NumColumns() int       { return 2 }
func (squareStark) ConstraintDegree() int { return 3 }

func (squareStark) EvalConstraints(vars *stark.EvaluationVars, consumer ctl.ConstraintConsumer) {
	var sq goldilocks.Element
	sq.Mul(&vars.Local[0], &vars.Local[0])
	sq.Sub(&sq, &vars.Local[1])
	consumer.Constraint(sq)
}

func (squareStark) EvalConstraintsCircuit(b *circuit.Builder, vars *stark.EvaluationVarsTarget, consumer ctl.RecursiveConstraintConsumer) {
	consumer.Constraint(b, b.MulSub(vars.Local[0], vars.Local[0], vars.Local[1]))
}

type plainStark struct{ cols int }

func (s plainStark) NumColumns() int       { return s.cols }
func (s plainStark) ConstraintDegree() int { return 3 }

func (plainStark) EvalConstraints(vars *stark.EvaluationVars, consumer ctl.ConstraintConsumer) {}

func (plainStark) EvalConstraintsCircuit(b *circuit.Builder, vars *stark.EvaluationVarsTarget, consumer ctl.RecursiveConstraintConsumer) {
}

func testSystem() *stark.AllStark {
	looking := []ctl.TableWithColumns{
		ctl.NewTableWithColumns(0, ctl.SingleColumns(0), nil),
	}
	looked := ctl.NewTableWithColumns(1, ctl.SingleColumns(0), ctl.ColumnFilter(ctl.SingleColumn(1)))
	return &stark.AllStark{
		Tables:            []stark.Stark{squareStark{}, plainStark{cols: 2}},
		Names:             []string{"square", "lookup"},
		CrossTableLookups: []*ctl.CrossTableLookup{ctl.NewCrossTableLookup(looking, looked)},
		Config:            stark.DefaultConfig(),
	}
}

func testTraces() [][]poly.Values {
	trace0 := []poly.Values{
		poly.FromUint64([]uint64{2, 3, 2, 3}),
		poly.FromUint64([]uint64{4, 9, 4, 9}),
	}
	trace1 := []poly.Values{
		poly.FromUint64([]uint64{2, 3, 2, 3}),
		poly.FromUint64([]uint64{1, 1, 1, 1}),
	}
	return [][]poly.Values{trace0, trace1}
}

func spanValues(before, after uint64) stark.PublicValues {
	var pv stark.PublicValues
	pv.BeforeRoot[0] = elem(before)
	pv.AfterRoot[0] = elem(after)
	pv.Userdata[0] = elem(42)
	return pv
}

// The stack is expensive to preprocess, so every test shares one.
var (
	stackOnce sync.Once
	stackAll  *stark.AllStark
	stack     *AllRecursiveCircuits
	stackErr  error
)

func testStack(t *testing.T) (*stark.AllStark, *AllRecursiveCircuits) {
	t.Helper()
	stackOnce.Do(func() {
		stackAll = testSystem()
		stack, stackErr = NewAllRecursiveCircuits(stackAll, []SizeRange{{2, 3}, {2, 3}})
	})
	require.NoError(t, stackErr)
	return stackAll, stack
}

func rootReceipt(t *testing.T, all *stark.AllStark, c *AllRecursiveCircuits, before, after uint64) *Receipt {
	t.Helper()
	proof, err := stark.Prove(all, testTraces(), spanValues(before, after))
	require.NoError(t, err)
	receipt, err := c.ProveRoot(proof)
	require.NoError(t, err)
	return receipt
}

func TestParseSizeRange(t *testing.T) {
	r, err := ParseSizeRange("4..18")
	require.NoError(t, err)
	assert.Equal(t, SizeRange{MinBits: 4, MaxBits: 18}, r)
	assert.Equal(t, 15, r.Len())
	assert.True(t, r.Contains(4))
	assert.True(t, r.Contains(18))
	assert.False(t, r.Contains(19))

	_, err = ParseSizeRange("4-18")
	assert.Error(t, err)
	_, err = ParseSizeRange("18..4")
	assert.Error(t, err)
	_, err = ParseSizeRange("0..4")
	assert.Error(t, err)
}

func TestSizeRangesFromEnv(t *testing.T) {
	t.Setenv("SQUARE_CIRCUIT_SIZE", "5..9")
	ranges, err := SizeRangesFromEnv([]string{"square", "lookup"}, SizeRange{MinBits: 2, MaxBits: 3})
	require.NoError(t, err)
	assert.Equal(t, SizeRange{MinBits: 5, MaxBits: 9}, ranges[0])
	assert.Equal(t, SizeRange{MinBits: 2, MaxBits: 3}, ranges[1])

	t.Setenv("SQUARE_CIRCUIT_SIZE", "bogus")
	_, err = SizeRangesFromEnv([]string{"square"}, SizeRange{MinBits: 2, MaxBits: 3})
	require.ErrorContains(t, err, "SQUARE_CIRCUIT_SIZE")
}

func TestChainConvergence(t *testing.T) {
	all := testSystem()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 15
	properties := gopter.NewProperties(parameters)

	properties.Property("every chain strictly shrinks to the threshold degree", prop.ForAll(
		func(bits int) bool {
			chain, err := buildTableChain(all, 0, bits)
			if err != nil {
				return false
			}
			if chain.finalData().DegreeBits != ThresholdDegreeBits {
				return false
			}
			prev := chain.wrapper.data.DegreeBits
			for _, stage := range chain.stages {
				if stage.data.DegreeBits >= prev {
					return false
				}
				prev = stage.data.DegreeBits
			}
			return true
		},
		gen.IntRange(2, 30),
	))

	properties.TestingRun(t)
}

func TestWrapperLayoutIsSizeIndependent(t *testing.T) {
	all := testSystem()
	small, err := buildTableWrapper(all, 1, 2)
	require.NoError(t, err)
	large, err := buildTableWrapper(all, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, small.layout, large.layout)
	assert.Equal(t, len(small.data.PublicInputs), len(large.data.PublicInputs))
}

func TestProveRootVerifyRoot(t *testing.T) {
	all, c := testStack(t)
	receipt := rootReceipt(t, all, c, 100, 200)
	require.NoError(t, c.VerifyRoot(receipt))

	tampered := *receipt
	tampered.PublicValues.AfterRoot[0] = elem(999)
	assert.Error(t, c.VerifyRoot(&tampered))

	wrongKind := *receipt
	wrongKind.Kind = AggregationReceipt
	assert.Error(t, c.VerifyRoot(&wrongKind))
}

func TestProveRootRejectsInvalidProof(t *testing.T) {
	all, c := testStack(t)
	proof, err := stark.Prove(all, testTraces(), spanValues(100, 200))
	require.NoError(t, err)
	proof.TableProofs[0].Proof.Openings.LocalValues[0] = elem(12345)
	_, err = c.ProveRoot(proof)
	require.ErrorContains(t, err, "refusing to wrap")
}

func TestMissingSizeRemediation(t *testing.T) {
	all := testSystem()
	c, err := NewAllRecursiveCircuits(all, []SizeRange{{2, 2}, {2, 2}})
	require.NoError(t, err)

	traces := testTraces()
	for tbl := range traces {
		for col := range traces[tbl] {
			doubled := append(traces[tbl][col].Coeffs, traces[tbl][col].Coeffs...)
			traces[tbl][col] = poly.From(doubled)
		}
	}
	proof, err := stark.Prove(all, traces, spanValues(100, 200))
	require.NoError(t, err)

	_, err = c.ProveRoot(proof)
	require.ErrorContains(t, err, "regenerate with a size range covering it")
	require.ErrorContains(t, err, "2..3")
}

func TestAggregation(t *testing.T) {
	all, c := testStack(t)
	r1 := rootReceipt(t, all, c, 100, 200)
	r2 := rootReceipt(t, all, c, 200, 300)
	r3 := rootReceipt(t, all, c, 300, 400)

	// Two roots combine, and the result combines with a third root. That
	// exercises both child kinds of the aggregation circuit.
	agg, err := c.ProveAggregation(r1, r2)
	require.NoError(t, err)
	require.NoError(t, c.VerifyAggregation(agg))
	assert.Equal(t, elem(100), agg.PublicValues.BeforeRoot[0])
	assert.Equal(t, elem(300), agg.PublicValues.AfterRoot[0])
	assert.Equal(t, elem(42), agg.PublicValues.Userdata[0])

	agg2, err := c.ProveAggregation(agg, r3)
	require.NoError(t, err)
	require.NoError(t, c.VerifyAggregation(agg2))
	assert.Equal(t, elem(100), agg2.PublicValues.BeforeRoot[0])
	assert.Equal(t, elem(400), agg2.PublicValues.AfterRoot[0])
}

func TestAggregationRejectsBrokenChain(t *testing.T) {
	all, c := testStack(t)
	r1 := rootReceipt(t, all, c, 100, 200)
	r2 := rootReceipt(t, all, c, 250, 300)
	_, err := c.ProveAggregation(r1, r2)
	require.ErrorContains(t, err, "do not chain")
}

func TestAggregationRejectsRootAsAggregation(t *testing.T) {
	all, c := testStack(t)
	r := rootReceipt(t, all, c, 100, 200)
	forged := *r
	forged.Kind = AggregationReceipt
	assert.Error(t, c.VerifyAggregation(&forged))
}

func TestBlockChain(t *testing.T) {
	all, c := testStack(t)

	agg1, err := c.ProveAggregation(
		rootReceipt(t, all, c, 100, 200),
		rootReceipt(t, all, c, 200, 300))
	require.NoError(t, err)
	agg2, err := c.ProveAggregation(
		rootReceipt(t, all, c, 300, 400),
		rootReceipt(t, all, c, 400, 500))
	require.NoError(t, err)

	block1, err := c.ProveBlock(nil, agg1)
	require.NoError(t, err)
	require.NoError(t, c.VerifyBlock(block1))
	assert.Equal(t, elem(100), block1.PublicValues.BeforeRoot[0])
	assert.Equal(t, elem(300), block1.PublicValues.AfterRoot[0])

	block2, err := c.ProveBlock(block1, agg2)
	require.NoError(t, err)
	require.NoError(t, c.VerifyBlock(block2))
	// The chain's origin propagates through every block.
	assert.Equal(t, elem(100), block2.PublicValues.BeforeRoot[0])
	assert.Equal(t, elem(500), block2.PublicValues.AfterRoot[0])
}

func TestBlockRejectsBrokenChain(t *testing.T) {
	all, c := testStack(t)
	agg1, err := c.ProveAggregation(
		rootReceipt(t, all, c, 100, 200),
		rootReceipt(t, all, c, 200, 300))
	require.NoError(t, err)
	agg2, err := c.ProveAggregation(
		rootReceipt(t, all, c, 350, 400),
		rootReceipt(t, all, c, 400, 500))
	require.NoError(t, err)

	block1, err := c.ProveBlock(nil, agg1)
	require.NoError(t, err)
	_, err = c.ProveBlock(block1, agg2)
	require.ErrorContains(t, err, "does not chain")
}

func TestBlockRejectsNonAggregation(t *testing.T) {
	all, c := testStack(t)
	r := rootReceipt(t, all, c, 100, 200)
	_, err := c.ProveBlock(nil, r)
	require.Error(t, err)
}

func TestReceiptRoundTrip(t *testing.T) {
	all, c := testStack(t)
	receipt := rootReceipt(t, all, c, 100, 200)

	data, err := receipt.Encode()
	require.NoError(t, err)
	decoded, err := DecodeReceipt(data)
	require.NoError(t, err)
	assert.Equal(t, receipt.Kind, decoded.Kind)
	assert.Equal(t, receipt.PublicValues, decoded.PublicValues)
	require.NoError(t, c.VerifyRoot(decoded))

	_, err = DecodeReceipt([]byte{0xa0})
	assert.Error(t, err)
}

func TestStackSerializeRoundTrip(t *testing.T) {
	all, c := testStack(t)

	var buf bytes.Buffer
	_, err := c.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadAllRecursiveCircuits(&buf, all)
	require.NoError(t, err)
	assert.Equal(t, c.RootVK(), loaded.RootVK())
	assert.Equal(t, c.AggregationVK(), loaded.AggregationVK())
	assert.Equal(t, c.BlockVK(), loaded.BlockVK())

	// The loaded stack proves and verifies interchangeably with the
	// original.
	receipt := rootReceipt(t, all, loaded, 100, 200)
	require.NoError(t, c.VerifyRoot(receipt))
}
