// Package stark implements the multi-table proving layer: per-table STARK
// constraint systems, trace commitment, transcript-driven proof generation,
// and native verification including the cross-table lookup argument.
package stark

import (
	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
)

// EvaluationVars holds the opened values a constraint system is evaluated
// on: one row of the trace and its successor.
type EvaluationVars struct {
	Local []goldilocks.Element
	Next  []goldilocks.Element
}

// EvaluationVarsTarget is the in-circuit form of EvaluationVars.
type EvaluationVarsTarget struct {
	Local []circuit.Target
	Next  []circuit.Target
}

// Stark is one table's constraint system. EvalConstraints and
// EvalConstraintsCircuit must emit the same constraints in the same order;
// the recursive verifier relies on the two agreeing exactly.
type Stark interface {
	// NumColumns is the width of the table's trace.
	NumColumns() int

	// ConstraintDegree is the maximal degree of the table's constraints.
	// Lookup helper identities require it to be at least 3.
	ConstraintDegree() int

	// EvalConstraints evaluates the table's own constraints at a point.
	EvalConstraints(vars *EvaluationVars, consumer ctl.ConstraintConsumer)

	// EvalConstraintsCircuit mirrors EvalConstraints over wires.
	EvalConstraintsCircuit(b *circuit.Builder, vars *EvaluationVarsTarget, consumer ctl.RecursiveConstraintConsumer)
}

// Config holds proving parameters shared by every table.
type Config struct {
	// NumChallenges is how many independent challenge pairs the lookup
	// argument is repeated with.
	NumChallenges int

	// ConstraintDegree bounds constraint degrees across all tables.
	ConstraintDegree int
}

// DefaultConfig returns the standard configuration: two lookup challenge
// repetitions and degree-3 constraints.
func DefaultConfig() Config {
	return Config{NumChallenges: 2, ConstraintDegree: 3}
}

// AllStark bundles every table of the system with its cross-table lookups.
// Tables are indexed by ctl.TableID.
type AllStark struct {
	Tables            []Stark
	Names             []string
	CrossTableLookups []*ctl.CrossTableLookup
	Config            Config
}

// NumTables returns the table count.
func (a *AllStark) NumTables() int { return len(a.Tables) }

// Name returns a table's display name.
func (a *AllStark) Name(t ctl.TableID) string {
	if int(t) < len(a.Names) {
		return a.Names[t]
	}
	return "?"
}

// NumAuxColumns returns each table's auxiliary column count.
func (a *AllStark) NumAuxColumns() []int {
	return ctl.NumAuxColumns(a.CrossTableLookups, a.NumTables(), a.Config.NumChallenges, a.Config.ConstraintDegree)
}

// NumZColumns returns each table's partial-sum column count.
func (a *AllStark) NumZColumns() []int {
	return ctl.NumZColumns(a.CrossTableLookups, a.NumTables(), a.Config.NumChallenges)
}
