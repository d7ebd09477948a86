package recursion

import (
	"fmt"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/stark"
)

// blockCircuit chains blocks sequentially: each proof verifies the previous
// block's proof cyclically (or a synthetic base proof for the first block)
// and the current block's aggregated proof, and exposes the running span
// from the chain's initial state to the current block's after-state.
type blockCircuit struct {
	data *circuit.CircuitData

	publicValues []circuit.Target
	ownVK        circuit.VerifierKeyTarget
	hasParent    circuit.BoolTarget
	parentProof  *circuit.ProofWithPublicInputsTarget
	aggProof     *circuit.ProofWithPublicInputsTarget
}

func buildBlockCircuit(agg *aggregationCircuit) (*blockCircuit, error) {
	b := circuit.NewBuilder(circuit.DefaultConfig())
	c := &blockCircuit{
		publicValues: b.AddVirtualTargets(stark.NumPublicValueElements),
	}
	b.RegisterPublicInputs(c.publicValues)
	c.ownVK = b.AddVerifierDataPublicInputs()

	c.hasParent = b.AddVirtualBoolTarget()
	c.parentProof = b.AddVirtualProofWithPis(circuit.CommonData{NumPublicInputs: aggPINum})
	c.aggProof = b.AddVirtualProofWithPis(agg.data.Common())

	if err := b.ConditionallyVerifyCyclicProofOrDummy(c.hasParent, c.parentProof); err != nil {
		return nil, err
	}
	b.VerifyProof(c.aggProof, agg.data.VK)
	// The aggregated proof must itself have been built against the
	// aggregation circuit, not merely verify under its key.
	aggVKElems := agg.data.VK.DigestElements()
	for i := 0; i < circuit.DigestLen; i++ {
		b.Connect(c.aggProof.PublicInputs[stark.NumPublicValueElements+i], b.Constant(aggVKElems[i]))
	}

	parentPV := pvSlices(c.parentProof.PublicInputs[:stark.NumPublicValueElements])
	aggPV := pvSlices(c.aggProof.PublicInputs[:stark.NumPublicValueElements])
	ownPV := pvSlices(c.publicValues)

	// With a parent, the parent's after-state is where this block starts.
	for i := range parentPV.after {
		diff := b.Sub(parentPV.after[i], aggPV.before[i])
		b.AssertZero(b.Mul(c.hasParent.T, diff))
	}
	// The chain origin is the parent's origin, or this block's own start.
	for i := range ownPV.before {
		b.Connect(ownPV.before[i], b.Select(c.hasParent, parentPV.before[i], aggPV.before[i]))
	}
	connectAll(b, ownPV.after, aggPV.after)

	connectAll(b, ownPV.userdata, aggPV.userdata)
	for i := range parentPV.userdata {
		diff := b.Sub(parentPV.userdata[i], aggPV.userdata[i])
		b.AssertZero(b.Mul(c.hasParent.T, diff))
	}

	var err error
	c.data, err = b.Compile()
	if err != nil {
		return nil, fmt.Errorf("recursion: block circuit: %w", err)
	}
	return c, nil
}
