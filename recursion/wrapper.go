// Package recursion implements proof composition: per-table wrapper circuits
// that re-check a STARK proof's openings, shrinking chains that reduce every
// wrapped proof to one threshold size, a root circuit re-verifying the
// cross-table lookup argument over all tables, and cyclic aggregation and
// block circuits on top of the root.
package recursion

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/stark"
	"github.com/zeroproofs/multistark/transcript"
)

// capLen is the number of field elements a commitment cap folds into.
const capLen = 4

// wrapperLayout describes the public input layout every wrapper and shrink
// stage of one table shares: trace cap, challenger states before and after
// the table's proof, the lookup challenges the proof used, and the
// grand-total openings. The layout depends only on the table, never on its
// size, so one root circuit serves every size.
type wrapperLayout struct {
	numChallenges int
	numZs         int
}

func (l wrapperLayout) capOff() int       { return 0 }
func (l wrapperLayout) initOff() int      { return capLen }
func (l wrapperLayout) finalOff() int     { return capLen + transcript.StateLen }
func (l wrapperLayout) challengeOff() int { return capLen + 2*transcript.StateLen }
func (l wrapperLayout) zsOff() int        { return l.challengeOff() + 2*l.numChallenges }
func (l wrapperLayout) size() int         { return l.zsOff() + l.numZs }

// traceCapPIs returns the trace cap wires of a wrapper-shaped proof target.
func (l wrapperLayout) traceCapPIs(pis []circuit.Target) []circuit.Target {
	return pis[l.capOff() : l.capOff()+capLen]
}

func (l wrapperLayout) initStatePIs(pis []circuit.Target) []circuit.Target {
	return pis[l.initOff() : l.initOff()+transcript.StateLen]
}

func (l wrapperLayout) finalStatePIs(pis []circuit.Target) []circuit.Target {
	return pis[l.finalOff() : l.finalOff()+transcript.StateLen]
}

func (l wrapperLayout) challengePIs(pis []circuit.Target) []ctl.GrandProductChallengeTarget {
	out := make([]ctl.GrandProductChallengeTarget, l.numChallenges)
	for i := range out {
		out[i].Beta = pis[l.challengeOff()+2*i]
		out[i].Gamma = pis[l.challengeOff()+2*i+1]
	}
	return out
}

func (l wrapperLayout) zsFirstPIs(pis []circuit.Target) []circuit.Target {
	return pis[l.zsOff() : l.zsOff()+l.numZs]
}

// tableWrapper is the initial circuit of a table's shrinking chain. It
// re-checks the table's constraints and lookup identities at the opened
// query point and exposes the transcript-facing data as public inputs.
type tableWrapper struct {
	table      ctl.TableID
	degreeBits int
	layout     wrapperLayout
	data       *circuit.CircuitData

	traceCap   []circuit.Target
	initState  []circuit.Target
	finalState []circuit.Target
	challenges []circuit.Target
	zsFirst    []circuit.Target

	isLast   circuit.BoolTarget
	local    []circuit.Target
	next     []circuit.Target
	auxLocal []circuit.Target
	auxNext  []circuit.Target
	auxCap   []circuit.Target
}

func buildTableWrapper(all *stark.AllStark, table ctl.TableID, degreeBits int) (*tableWrapper, error) {
	cfg := all.Config
	layout := wrapperLayout{
		numChallenges: cfg.NumChallenges,
		numZs:         all.NumZColumns()[table],
	}
	numAux := all.NumAuxColumns()[table]

	b := circuit.NewBuilder(circuit.DefaultConfig())
	w := &tableWrapper{
		table:      table,
		degreeBits: degreeBits,
		layout:     layout,
		traceCap:   b.AddVirtualTargets(capLen),
		initState:  b.AddVirtualTargets(transcript.StateLen),
		finalState: b.AddVirtualTargets(transcript.StateLen),
		challenges: b.AddVirtualTargets(2 * cfg.NumChallenges),
		zsFirst:    b.AddVirtualTargets(layout.numZs),
		isLast:     b.AddVirtualBoolTarget(),
		local:      b.AddVirtualTargets(all.Tables[table].NumColumns()),
		next:       b.AddVirtualTargets(all.Tables[table].NumColumns()),
		auxLocal:   b.AddVirtualTargets(numAux),
		auxNext:    b.AddVirtualTargets(numAux),
		auxCap:     b.AddVirtualTargets(capLen),
	}
	b.RegisterPublicInputs(w.traceCap)
	b.RegisterPublicInputs(w.initState)
	b.RegisterPublicInputs(w.finalState)
	b.RegisterPublicInputs(w.challenges)
	b.RegisterPublicInputs(w.zsFirst)

	set := ctl.GrandProductChallengeSetTarget{Challenges: make([]ctl.GrandProductChallengeTarget, cfg.NumChallenges)}
	for i := range set.Challenges {
		set.Challenges[i].Beta = w.challenges[2*i]
		set.Challenges[i].Gamma = w.challenges[2*i+1]
	}

	consumer := stark.NewRecursiveConsumer(w.isLast)
	vars := &stark.EvaluationVarsTarget{Local: w.local, Next: w.next}
	all.Tables[table].EvalConstraintsCircuit(b, vars, consumer)

	ctlVars, err := ctl.CheckVarsForTableCircuit(all.CrossTableLookups, table,
		w.auxLocal, w.auxNext, set, all.NumTables(), cfg.ConstraintDegree)
	if err != nil {
		return nil, err
	}
	ctl.EvalCrossTableLookupChecksCircuit(b, ctlVars, w.local, w.next, cfg.ConstraintDegree, consumer)

	b.AddStarkVerificationCost(degreeBits)
	b.PadToDegreeBits(ThresholdDegreeBits)

	w.data, err = b.Compile()
	if err != nil {
		return nil, fmt.Errorf("recursion: wrapper for table %s: %w", all.Name(table), err)
	}
	return w, nil
}

// prove wraps one table proof. finalState is the transcript state after this
// table's proof, taken from the next table's metadata or the closing state.
func (w *tableWrapper) prove(tp *stark.ProofWithMetadata, challenges ctl.GrandProductChallengeSet, finalState transcript.State) (*circuit.Proof, error) {
	p := &tp.Proof
	pw := circuit.NewPartialWitness()

	if err := pw.SetTargets(w.traceCap, capToElements(p.TraceCap)); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.auxCap, capToElements(p.AuxCap)); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.initState, tp.InitChallengerState.Elements()); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.finalState, finalState.Elements()); err != nil {
		return nil, err
	}
	chElems := make([]goldilocks.Element, 0, len(w.challenges))
	for _, ch := range challenges.Challenges {
		chElems = append(chElems, ch.Beta, ch.Gamma)
	}
	if err := pw.SetTargets(w.challenges, chElems); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.zsFirst, p.Openings.CtlZsFirst); err != nil {
		return nil, err
	}
	pw.SetBoolTarget(w.isLast, p.QueryRow == (1<<p.DegreeBits)-1)
	if err := pw.SetTargets(w.local, p.Openings.LocalValues); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.next, p.Openings.NextValues); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.auxLocal, p.Openings.AuxLocal); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(w.auxNext, p.Openings.AuxNext); err != nil {
		return nil, err
	}

	return circuit.Prove(w.data, pw)
}
