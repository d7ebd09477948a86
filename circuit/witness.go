package circuit

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/transcript"
)

// PartialWitness holds the prover-supplied wire assignments and inner proofs
// from which Prove derives the rest of the witness.
type PartialWitness struct {
	values map[Target]goldilocks.Element
	proofs map[int]*Proof
}

// NewPartialWitness returns an empty witness.
func NewPartialWitness() *PartialWitness {
	return &PartialWitness{
		values: make(map[Target]goldilocks.Element),
		proofs: make(map[int]*Proof),
	}
}

// SetTarget assigns v to wire t.
func (pw *PartialWitness) SetTarget(t Target, v goldilocks.Element) {
	pw.values[t] = v
}

// SetTargetUint64 assigns v to wire t.
func (pw *PartialWitness) SetTargetUint64(t Target, v uint64) {
	var e goldilocks.Element
	e.SetUint64(v)
	pw.values[t] = e
}

// SetTargets assigns vs to ts pairwise. The slices must have equal length.
func (pw *PartialWitness) SetTargets(ts []Target, vs []goldilocks.Element) error {
	if len(ts) != len(vs) {
		return fmt.Errorf("circuit: witness: %d targets but %d values", len(ts), len(vs))
	}
	for i, t := range ts {
		pw.values[t] = vs[i]
	}
	return nil
}

// SetBoolTarget assigns a boolean to wire b.
func (pw *PartialWitness) SetBoolTarget(b BoolTarget, v bool) {
	if v {
		pw.values[b.T] = goldilocks.One()
	} else {
		pw.values[b.T] = goldilocks.Element{}
	}
}

// SetProofWithPisTarget binds an inner proof to its target: the proof body
// fills the target's slot and the proof's public inputs fill its wires.
func (pw *PartialWitness) SetProofWithPisTarget(pt *ProofWithPublicInputsTarget, proof *Proof) error {
	if len(proof.PublicInputs) != len(pt.PublicInputs) {
		return fmt.Errorf("circuit: witness: proof has %d public inputs, target expects %d",
			len(proof.PublicInputs), len(pt.PublicInputs))
	}
	pw.proofs[pt.ProofIndex] = proof
	for i, t := range pt.PublicInputs {
		pw.values[t] = proof.PublicInputs[i]
	}
	return nil
}

// SetVerifierKeyTarget binds a verifier key to its digest wires.
func (pw *PartialWitness) SetVerifierKeyTarget(vkt VerifierKeyTarget, vk VerifierKey) {
	es := vk.DigestElements()
	for i := 0; i < DigestLen; i++ {
		pw.values[vkt.Digest[i]] = es[i]
	}
}

func newProveState(data *CircuitData, pw *PartialWitness) *proveState {
	return &proveState{
		data:        data,
		values:      make([]goldilocks.Element, data.NumWires),
		set:         bitset.New(uint(data.NumWires)),
		proofs:      pw.proofs,
		challengers: make(map[uint64]*transcript.Challenger),
	}
}
