package stark

import (
	"bytes"
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/transcript"
)

// Verify checks a full multi-table proof natively: transcript replay and
// per-table state continuity, opening bindings, each table's constraints at
// its query row, and the cross-table grand-total identity.
func Verify(all *AllStark, proof *AllProof) error {
	if len(proof.TableProofs) != all.NumTables() {
		return fmt.Errorf("stark: proof covers %d tables, system has %d",
			len(proof.TableProofs), all.NumTables())
	}

	ch := transcript.NewChallenger()
	for t := range proof.TableProofs {
		ch.ObserveElements(capElements(proof.TableProofs[t].Proof.TraceCap))
	}
	challenges := ctl.GetGrandProductChallengeSet(ch, all.Config.NumChallenges)

	auxCounts := all.NumAuxColumns()
	zCounts := all.NumZColumns()

	for t := range proof.TableProofs {
		name := all.Name(ctl.TableID(t))
		tp := &proof.TableProofs[t]

		if !tp.InitChallengerState.Equal(ch.Compact()) {
			return fmt.Errorf("stark: table %s: transcript discontinuity before table proof", name)
		}

		p := &tp.Proof
		ch.ObserveElements(capElements(p.AuxCap))
		row := ch.SampleIndex(1 << p.DegreeBits)
		if row != p.QueryRow {
			return fmt.Errorf("stark: table %s: query row %d does not match transcript (%d)",
				name, p.QueryRow, row)
		}

		if want := bindOpenings(p); !bytes.Equal(want[:], p.Binding[:]) {
			return fmt.Errorf("stark: table %s: opening binding mismatch", name)
		}

		if len(p.Openings.LocalValues) != all.Tables[t].NumColumns() ||
			len(p.Openings.NextValues) != all.Tables[t].NumColumns() {
			return fmt.Errorf("stark: table %s: trace opening width mismatch", name)
		}
		if len(p.Openings.AuxLocal) != auxCounts[t] || len(p.Openings.AuxNext) != auxCounts[t] {
			return fmt.Errorf("stark: table %s: aux opening width mismatch", name)
		}
		if len(p.Openings.CtlZsFirst) != zCounts[t] {
			return fmt.Errorf("stark: table %s: got %d grand-total openings, want %d",
				name, len(p.Openings.CtlZsFirst), zCounts[t])
		}
	}
	if !proof.FinalChallengerState.Equal(ch.Compact()) {
		return fmt.Errorf("stark: transcript discontinuity after last table proof")
	}

	auxLocal := make([][]goldilocks.Element, all.NumTables())
	auxNext := make([][]goldilocks.Element, all.NumTables())
	for t := range proof.TableProofs {
		auxLocal[t] = proof.TableProofs[t].Proof.Openings.AuxLocal
		auxNext[t] = proof.TableProofs[t].Proof.Openings.AuxNext
	}
	allVars, err := ctl.CheckVarsFromOpenings(all.CrossTableLookups, auxLocal, auxNext,
		challenges, all.Config.ConstraintDegree)
	if err != nil {
		return err
	}

	for t := range proof.TableProofs {
		name := all.Name(ctl.TableID(t))
		p := &proof.TableProofs[t].Proof
		isLast := p.QueryRow == (1<<p.DegreeBits)-1

		vars := &EvaluationVars{Local: p.Openings.LocalValues, Next: p.Openings.NextValues}
		consumer := NewConsumer(isLast)
		all.Tables[t].EvalConstraints(vars, consumer)
		ctl.EvalCrossTableLookupChecks(allVars[t], vars.Local, vars.Next,
			all.Config.ConstraintDegree, consumer)
		if err := consumer.Err(); err != nil {
			return fmt.Errorf("stark: table %s: query row %d: %w", name, p.QueryRow, err)
		}
	}

	if err := ctl.VerifyCrossTableLookups(all.CrossTableLookups, proof.CtlZsFirst(), all.Config.NumChallenges); err != nil {
		return err
	}
	return nil
}
