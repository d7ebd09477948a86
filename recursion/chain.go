package recursion

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/stark"
	"github.com/zeroproofs/multistark/transcript"
)

// ThresholdDegreeBits is the degree every shrinking chain converges to. The
// root circuit verifies proofs of exactly this size.
const ThresholdDegreeBits = 13

// shrinkStage verifies the previous circuit in a chain and re-exposes its
// public inputs unchanged.
type shrinkStage struct {
	data  *circuit.CircuitData
	inner *circuit.ProofWithPublicInputsTarget
}

func buildShrinkStage(innerVK circuit.VerifierKey) (*shrinkStage, error) {
	b := circuit.NewBuilder(circuit.DefaultConfig())
	pt := b.AddVirtualProofWithPis(innerVK.Common())
	b.VerifyProof(pt, innerVK)
	b.RegisterPublicInputs(pt.PublicInputs)
	b.PadToDegreeBits(ThresholdDegreeBits)
	data, err := b.Compile()
	if err != nil {
		return nil, err
	}
	return &shrinkStage{data: data, inner: pt}, nil
}

// tableChain is the shrinking chain for one table at one size: the STARK
// wrapper followed by however many shrink stages it takes to reach the
// threshold degree.
type tableChain struct {
	wrapper *tableWrapper
	stages  []*shrinkStage
}

// buildTableChain builds the chain for one table size. Every stage must
// strictly shrink; a stage that fails to is a construction error, since the
// chain would never converge.
func buildTableChain(all *stark.AllStark, table ctl.TableID, degreeBits int) (*tableChain, error) {
	w, err := buildTableWrapper(all, table, degreeBits)
	if err != nil {
		return nil, err
	}
	c := &tableChain{wrapper: w}

	cur := w.data
	for cur.DegreeBits > ThresholdDegreeBits {
		stage, err := buildShrinkStage(cur.VK)
		if err != nil {
			return nil, fmt.Errorf("recursion: table %s: shrink stage: %w", all.Name(table), err)
		}
		if stage.data.DegreeBits >= cur.DegreeBits {
			return nil, fmt.Errorf("recursion: table %s: shrinking chain stalled at 2^%d",
				all.Name(table), cur.DegreeBits)
		}
		c.stages = append(c.stages, stage)
		cur = stage.data
	}
	if cur.DegreeBits != ThresholdDegreeBits {
		return nil, fmt.Errorf("recursion: table %s: chain converged to 2^%d, want 2^%d",
			all.Name(table), cur.DegreeBits, ThresholdDegreeBits)
	}
	return c, nil
}

// finalData returns the chain's last circuit, whose proofs the root
// verifies.
func (c *tableChain) finalData() *circuit.CircuitData {
	if len(c.stages) == 0 {
		return c.wrapper.data
	}
	return c.stages[len(c.stages)-1].data
}

// prove runs a table proof down the whole chain.
func (c *tableChain) prove(tp *stark.ProofWithMetadata, challenges ctl.GrandProductChallengeSet, finalState transcript.State) (*circuit.Proof, error) {
	proof, err := c.wrapper.prove(tp, challenges, finalState)
	if err != nil {
		return nil, err
	}
	for _, stage := range c.stages {
		pw := circuit.NewPartialWitness()
		if err := pw.SetProofWithPisTarget(stage.inner, proof); err != nil {
			return nil, err
		}
		proof, err = circuit.Prove(stage.data, pw)
		if err != nil {
			return nil, err
		}
	}
	return proof, nil
}

func capToElements(digest [32]byte) []goldilocks.Element {
	out := make([]goldilocks.Element, capLen)
	for i := range out {
		out[i].SetUint64(binary.LittleEndian.Uint64(digest[8*i : 8*i+8]))
	}
	return out
}
