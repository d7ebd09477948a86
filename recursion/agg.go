package recursion

import (
	"fmt"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/stark"
)

// aggPINum is the public input width of the aggregation and block circuits:
// the public values followed by the circuit's own verifier data.
const aggPINum = stark.NumPublicValueElements + circuit.DigestLen

// aggChild is one side of an aggregation node: either another aggregation
// proof, verified cyclically, or a root proof, selected by a flag.
type aggChild struct {
	isAgg     circuit.BoolTarget
	aggProof  *circuit.ProofWithPublicInputsTarget
	rootProof *circuit.ProofWithPublicInputsTarget

	// publicValues is the child's statement, muxed from whichever proof the
	// flag selects.
	publicValues []circuit.Target
}

// aggregationCircuit is a binary tree node over root proofs. Two children
// chain: the left child's after-state is the right child's before-state, and
// both share the node's userdata. The node's public values span the
// combined range.
type aggregationCircuit struct {
	data *circuit.CircuitData

	publicValues []circuit.Target
	ownVK        circuit.VerifierKeyTarget
	lhs          *aggChild
	rhs          *aggChild
}

func newAggChild(b *circuit.Builder, rootCommon circuit.CommonData) *aggChild {
	c := &aggChild{
		isAgg:     b.AddVirtualBoolTarget(),
		aggProof:  b.AddVirtualProofWithPis(circuit.CommonData{NumPublicInputs: aggPINum}),
		rootProof: b.AddVirtualProofWithPis(rootCommon),
	}
	c.publicValues = make([]circuit.Target, stark.NumPublicValueElements)
	for i := range c.publicValues {
		c.publicValues[i] = b.Select(c.isAgg, c.aggProof.PublicInputs[i], c.rootProof.PublicInputs[i])
	}
	return c
}

func buildAggregationCircuit(root *rootCircuit) (*aggregationCircuit, error) {
	b := circuit.NewBuilder(circuit.DefaultConfig())
	a := &aggregationCircuit{
		publicValues: b.AddVirtualTargets(stark.NumPublicValueElements),
	}
	b.RegisterPublicInputs(a.publicValues)
	a.ownVK = b.AddVerifierDataPublicInputs()

	rootCommon := root.data.Common()
	a.lhs = newAggChild(b, rootCommon)
	a.rhs = newAggChild(b, rootCommon)

	rootVK := root.data.VK
	if err := b.ConditionallyVerifyCyclicProof(a.lhs.isAgg, a.lhs.aggProof, a.lhs.rootProof, rootVK); err != nil {
		return nil, err
	}
	if err := b.ConditionallyVerifyCyclicProof(a.rhs.isAgg, a.rhs.aggProof, a.rhs.rootProof, rootVK); err != nil {
		return nil, err
	}

	lhsPV := pvSlices(a.lhs.publicValues)
	rhsPV := pvSlices(a.rhs.publicValues)
	ownPV := pvSlices(a.publicValues)

	// lhs.after chains into rhs.before; the node spans lhs.before to
	// rhs.after.
	connectAll(b, lhsPV.after, rhsPV.before)
	connectAll(b, ownPV.before, lhsPV.before)
	connectAll(b, ownPV.after, rhsPV.after)

	// The side channel is one value across the whole tree.
	connectAll(b, lhsPV.userdata, rhsPV.userdata)
	connectAll(b, ownPV.userdata, lhsPV.userdata)

	var err error
	a.data, err = b.Compile()
	if err != nil {
		return nil, fmt.Errorf("recursion: aggregation circuit: %w", err)
	}
	return a, nil
}

// pvParts views a flattened public value vector as its three segments.
type pvParts struct {
	before   []circuit.Target
	after    []circuit.Target
	userdata []circuit.Target
}

func pvSlices(pv []circuit.Target) pvParts {
	return pvParts{
		before:   pv[:stark.StateRootLen],
		after:    pv[stark.StateRootLen : 2*stark.StateRootLen],
		userdata: pv[2*stark.StateRootLen:],
	}
}

func connectAll(b *circuit.Builder, xs, ys []circuit.Target) {
	for i := range xs {
		b.Connect(xs[i], ys[i])
	}
}
