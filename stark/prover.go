package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"golang.org/x/sync/errgroup"

	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/logger"
	"github.com/zeroproofs/multistark/num"
	"github.com/zeroproofs/multistark/poly"
	"github.com/zeroproofs/multistark/transcript"
)

// Prove generates the full multi-table proof for the given traces. All
// tables share one transcript: trace commitments are observed in table
// order, the lookup challenges are drawn once, and then each table's proof
// consumes the transcript sequentially, recording the state it started from.
func Prove(all *AllStark, traces [][]poly.Values, publicValues PublicValues) (*AllProof, error) {
	log := logger.Logger().With().Str("component", "stark-prover").Logger()

	if len(traces) != all.NumTables() {
		return nil, fmt.Errorf("stark: got %d traces for %d tables", len(traces), all.NumTables())
	}
	for t, trace := range traces {
		if len(trace) != all.Tables[t].NumColumns() {
			return nil, fmt.Errorf("stark: table %s: trace has %d columns, want %d",
				all.Name(ctl.TableID(t)), len(trace), all.Tables[t].NumColumns())
		}
		degree := trace[0].Len()
		if !num.IsPowerOfTwo(degree) {
			return nil, fmt.Errorf("stark: table %s: trace length %d is not a power of two",
				all.Name(ctl.TableID(t)), degree)
		}
		for c := range trace {
			if trace[c].Len() != degree {
				return nil, fmt.Errorf("stark: table %s: ragged trace", all.Name(ctl.TableID(t)))
			}
		}
	}

	// Trace commitments are independent across tables.
	traceCaps := make([][32]byte, len(traces))
	var g errgroup.Group
	for t := range traces {
		t := t
		g.Go(func() error {
			traceCaps[t] = commit(traces[t])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ch := transcript.NewChallenger()
	for t := range traceCaps {
		ch.ObserveElements(capElements(traceCaps[t]))
	}
	challenges := ctl.GetGrandProductChallengeSet(ch, all.Config.NumChallenges)

	ctlData := ctl.GetCtlData(traces, all.CrossTableLookups, challenges, all.Config.ConstraintDegree)

	// Enforce every constraint on every row before emitting anything.
	// Recursive wrappers later assume table proofs are sound.
	for t := range traces {
		t := t
		g.Go(func() error {
			return checkAllRows(all, ctl.TableID(t), traces[t], &ctlData[t], challenges)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// The per-row identities are self-consistent even for mismatched
	// tables; the grand totals are what tie the tables together.
	zsFirst := make([][]goldilocks.Element, len(traces))
	for t := range ctlData {
		for _, z := range ctlData[t].ZPolys() {
			zsFirst[t] = append(zsFirst[t], z.Coeffs[0])
		}
	}
	if err := ctl.VerifyCrossTableLookups(all.CrossTableLookups, zsFirst, all.Config.NumChallenges); err != nil {
		return nil, err
	}

	proof := &AllProof{
		TableProofs:  make([]ProofWithMetadata, len(traces)),
		PublicValues: publicValues,
	}
	for t := range traces {
		initState := ch.Compact()
		tp, err := proveTable(traces[t], &ctlData[t], ch)
		if err != nil {
			return nil, fmt.Errorf("stark: table %s: %w", all.Name(ctl.TableID(t)), err)
		}
		tp.TraceCap = traceCaps[t]
		tp.Binding = bindOpenings(tp)
		proof.TableProofs[t] = ProofWithMetadata{Proof: *tp, InitChallengerState: initState}
		log.Debug().Int("table", t).Int("degreeBits", tp.DegreeBits).Msg("table proof generated")
	}
	proof.FinalChallengerState = ch.Compact()

	return proof, nil
}

// proveTable commits the table's auxiliary columns, draws the query row and
// assembles the opening set. The binding and trace cap are filled by the
// caller.
func proveTable(trace []poly.Values, data *ctl.CtlData, ch *transcript.Challenger) (*Proof, error) {
	degree := trace[0].Len()
	aux := data.AuxPolys()
	auxCap := commit(aux)
	ch.ObserveElements(capElements(auxCap))

	row := ch.SampleIndex(degree)
	next := (row + 1) % degree

	p := &Proof{
		AuxCap:     auxCap,
		DegreeBits: num.Log2Ceil(degree),
		QueryRow:   row,
	}
	p.Openings = OpeningSet{
		LocalValues: rowValues(trace, row),
		NextValues:  rowValues(trace, next),
		AuxLocal:    rowValues(aux, row),
		AuxNext:     rowValues(aux, next),
	}
	for _, z := range data.ZPolys() {
		p.Openings.CtlZsFirst = append(p.Openings.CtlZsFirst, z.Coeffs[0])
	}
	return p, nil
}

// checkAllRows evaluates the table's own constraints and its lookup
// identities on every row of the trace.
func checkAllRows(all *AllStark, table ctl.TableID, trace []poly.Values, data *ctl.CtlData, challenges ctl.GrandProductChallengeSet) error {
	degree := trace[0].Len()
	aux := data.AuxPolys()
	deg := all.Config.ConstraintDegree

	for r := 0; r < degree; r++ {
		next := (r + 1) % degree
		vars := &EvaluationVars{Local: rowValues(trace, r), Next: rowValues(trace, next)}
		consumer := NewConsumer(r == degree-1)

		all.Tables[table].EvalConstraints(vars, consumer)

		ctlVars, err := ctl.CheckVarsForTable(all.CrossTableLookups, table,
			rowValues(aux, r), rowValues(aux, next), challenges, all.NumTables(), deg)
		if err != nil {
			return err
		}
		ctl.EvalCrossTableLookupChecks(ctlVars, vars.Local, vars.Next, deg, consumer)

		if err := consumer.Err(); err != nil {
			return fmt.Errorf("stark: table %s: row %d: %w", all.Name(table), r, err)
		}
	}
	return nil
}

func rowValues(cols []poly.Values, r int) []goldilocks.Element {
	out := make([]goldilocks.Element, len(cols))
	for i := range cols {
		out[i] = cols[i].Coeffs[r]
	}
	return out
}
