package circuit

import (
	"fmt"
)

// Modeled gate cost of verifying an inner proof of the given degree. Each
// doubling of the inner circuit shrinks the verifier's share of it, which is
// what lets a chain of wrappers converge to a fixed point.
func verifyGateCost(innerDegreeBits int) int {
	return 3072 + 320*innerDegreeBits
}

// cyclicDegreeBitsBound bounds the degree of cyclic inner proofs for cost
// accounting, since a circuit's own degree is unknown while it is built.
const cyclicDegreeBitsBound = 32

// AddVirtualProofWithPis allocates targets for an inner proof of the given
// shape.
func (b *Builder) AddVirtualProofWithPis(common CommonData) *ProofWithPublicInputsTarget {
	pt := &ProofWithPublicInputsTarget{
		PublicInputs: b.AddVirtualTargets(common.NumPublicInputs),
		ProofIndex:   b.numProofSlots,
	}
	b.numProofSlots++
	return pt
}

// VerifyProof constrains pt to be a valid proof under vk.
func (b *Builder) VerifyProof(pt *ProofWithPublicInputsTarget, vk VerifierKey) {
	b.generators = append(b.generators, generator{
		Kind: genVerifyProof,
		Aux:  []uint64{uint64(verifyConst), uint64(pt.ProofIndex)},
		VKs:  []VerifierKey{vk},
	})
	b.extraGates += verifyGateCost(vk.DegreeBits)
}

// VerifyProofRandomAccess constrains pt to be a valid proof under vks[index].
// All keys must share one proof shape; the cost is charged at the largest.
func (b *Builder) VerifyProofRandomAccess(pt *ProofWithPublicInputsTarget, index Target, vks []VerifierKey) error {
	if len(vks) == 0 {
		return fmt.Errorf("circuit: random access verification needs at least one key")
	}
	maxBits := 0
	for _, vk := range vks {
		if vk.NumPublicInputs != vks[0].NumPublicInputs {
			return fmt.Errorf("circuit: random access keys disagree on public input count")
		}
		if vk.DegreeBits > maxBits {
			maxBits = vk.DegreeBits
		}
	}
	keys := make([]VerifierKey, len(vks))
	copy(keys, vks)
	b.generators = append(b.generators, generator{
		Kind: genVerifyProof,
		Aux:  []uint64{uint64(verifyRandomAccessVK), uint64(pt.ProofIndex)},
		In:   []Target{index},
		VKs:  keys,
	})
	b.extraGates += verifyGateCost(maxBits) + len(vks)
	return nil
}

// ConditionallyVerifyCyclicProof constrains cyclicPT to be a valid proof of
// this circuit itself when cond is one, and basePT to be a valid proof under
// baseVK otherwise. Requires AddVerifierDataPublicInputs to have been called.
func (b *Builder) ConditionallyVerifyCyclicProof(cond BoolTarget, cyclicPT, basePT *ProofWithPublicInputsTarget, baseVK VerifierKey) error {
	if b.cyclicVK == nil {
		return fmt.Errorf("circuit: cyclic verification requires verifier data public inputs")
	}
	in := make([]Target, 0, 1+DigestLen)
	in = append(in, cond.T)
	in = append(in, b.cyclicVK.Digest[:]...)
	b.generators = append(b.generators, generator{
		Kind: genVerifyProof,
		Aux:  []uint64{uint64(verifyCyclic), uint64(cyclicPT.ProofIndex), uint64(basePT.ProofIndex)},
		In:   in,
		VKs:  []VerifierKey{baseVK},
	})
	b.extraGates += verifyGateCost(cyclicDegreeBitsBound) + verifyGateCost(baseVK.DegreeBits)
	return nil
}

// ConditionallyVerifyCyclicProofOrDummy constrains cyclicPT to be a valid
// proof of this circuit itself when cond is one, and a well-formed dummy base
// proof otherwise. Requires AddVerifierDataPublicInputs to have been called.
func (b *Builder) ConditionallyVerifyCyclicProofOrDummy(cond BoolTarget, cyclicPT *ProofWithPublicInputsTarget) error {
	if b.cyclicVK == nil {
		return fmt.Errorf("circuit: cyclic verification requires verifier data public inputs")
	}
	in := make([]Target, 0, 1+DigestLen)
	in = append(in, cond.T)
	in = append(in, b.cyclicVK.Digest[:]...)
	b.generators = append(b.generators, generator{
		Kind: genVerifyProof,
		Aux:  []uint64{uint64(verifyCyclicOrDummy), uint64(cyclicPT.ProofIndex)},
		In:   in,
	})
	b.extraGates += verifyGateCost(cyclicDegreeBitsBound)
	return nil
}

// AddStarkVerificationCost charges the modeled gate cost of verifying a
// STARK proof of the given degree. The wrapper circuit re-checks the proof's
// algebraic identities as explicit gates; this accounts for the rest of the
// verification work.
func (b *Builder) AddStarkVerificationCost(traceDegreeBits int) {
	b.extraGates += verifyGateCost(traceDegreeBits)
}

// RandomAccess returns a wire holding values[index]. The index must be in
// range at proving time.
func (b *Builder) RandomAccess(index Target, values []Target) Target {
	out := b.AddVirtualTarget()
	in := make([]Target, 0, 1+len(values))
	in = append(in, index)
	in = append(in, values...)
	b.generators = append(b.generators, generator{
		Kind: genRandomAccess,
		Out:  []Target{out},
		In:   in,
	})
	b.extraGates += len(values)
	return out
}
