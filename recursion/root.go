package recursion

import (
	"fmt"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/num"
	"github.com/zeroproofs/multistark/stark"
)

// rootCircuit verifies one shrunk proof per table, re-derives the lookup
// challenge set from the table commitments, checks transcript continuity
// across tables, and re-checks the cross-table grand-total identity. Its
// public inputs are the system's public values.
type rootCircuit struct {
	data *circuit.CircuitData

	tableProofs  []*circuit.ProofWithPublicInputsTarget
	vkIndices    []circuit.Target
	publicValues []circuit.Target
}

// buildRootCircuit takes, per table, the final verifier keys of its chains
// in ascending size order. Key lists are padded to a power of two by
// repeating the first entry so the random-access selector stays total.
func buildRootCircuit(all *stark.AllStark, finalVKs [][]circuit.VerifierKey) (*rootCircuit, error) {
	b := circuit.NewBuilder(circuit.DefaultConfig())
	r := &rootCircuit{
		tableProofs: make([]*circuit.ProofWithPublicInputsTarget, all.NumTables()),
		vkIndices:   make([]circuit.Target, all.NumTables()),
	}

	zCounts := all.NumZColumns()
	layouts := make([]wrapperLayout, all.NumTables())
	for t := range layouts {
		layouts[t] = wrapperLayout{numChallenges: all.Config.NumChallenges, numZs: zCounts[t]}
	}

	for t := 0; t < all.NumTables(); t++ {
		if len(finalVKs[t]) == 0 {
			return nil, fmt.Errorf("recursion: table %s has no preprocessed chains", all.Name(ctl.TableID(t)))
		}
		common := circuit.CommonData{
			DegreeBits:      ThresholdDegreeBits,
			NumPublicInputs: layouts[t].size(),
		}
		r.tableProofs[t] = b.AddVirtualProofWithPis(common)
		r.vkIndices[t] = b.AddVirtualTarget()

		padded := padVKs(finalVKs[t])
		if err := b.VerifyProofRandomAccess(r.tableProofs[t], r.vkIndices[t], padded); err != nil {
			return nil, err
		}
	}

	// Replay the opening transcript: every trace commitment in table order,
	// then the challenge draws.
	rc := circuit.NewRecursiveChallenger(b)
	for t := 0; t < all.NumTables(); t++ {
		rc.ObserveTargets(layouts[t].traceCapPIs(r.tableProofs[t].PublicInputs))
	}
	derived := ctl.GetGrandProductChallengeSetCircuit(rc, all.Config.NumChallenges)
	for t := 0; t < all.NumTables(); t++ {
		used := layouts[t].challengePIs(r.tableProofs[t].PublicInputs)
		for i := range used {
			b.Connect(used[i].Beta, derived.Challenges[i].Beta)
			b.Connect(used[i].Gamma, derived.Challenges[i].Gamma)
		}
	}

	// The first table must start from the state the challenge draws left the
	// transcript in, and each table from the state its predecessor ended at.
	state := rc.CompactState()
	first := layouts[0].initStatePIs(r.tableProofs[0].PublicInputs)
	for i := range state {
		b.Connect(state[i], first[i])
	}
	for t := 0; t+1 < all.NumTables(); t++ {
		fin := layouts[t].finalStatePIs(r.tableProofs[t].PublicInputs)
		init := layouts[t+1].initStatePIs(r.tableProofs[t+1].PublicInputs)
		for i := range fin {
			b.Connect(fin[i], init[i])
		}
	}

	zsFirst := make([][]circuit.Target, all.NumTables())
	for t := 0; t < all.NumTables(); t++ {
		zsFirst[t] = layouts[t].zsFirstPIs(r.tableProofs[t].PublicInputs)
	}
	if err := ctl.VerifyCrossTableLookupsCircuit(b, all.CrossTableLookups, zsFirst, all.Config.NumChallenges); err != nil {
		return nil, err
	}

	r.publicValues = b.AddVirtualTargets(stark.NumPublicValueElements)
	b.RegisterPublicInputs(r.publicValues)

	var err error
	r.data, err = b.Compile()
	if err != nil {
		return nil, fmt.Errorf("recursion: root circuit: %w", err)
	}
	return r, nil
}

// padVKs pads a key list to a power of two by repeating the first entry, so
// the random-access selector stays total.
func padVKs(vks []circuit.VerifierKey) []circuit.VerifierKey {
	n := num.NextPowerOfTwo(len(vks))
	out := make([]circuit.VerifierKey, n)
	copy(out, vks)
	for i := len(vks); i < n; i++ {
		out[i] = vks[0]
	}
	return out
}
