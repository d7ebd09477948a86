package ctl

import (
	"fmt"

	"github.com/zeroproofs/multistark/circuit"
)

// RecursiveConstraintConsumer is the in-circuit counterpart of
// ConstraintConsumer.
type RecursiveConstraintConsumer interface {
	Constraint(b *circuit.Builder, v circuit.Target)
	ConstraintTransition(b *circuit.Builder, v circuit.Target)
	ConstraintLastRow(b *circuit.Builder, v circuit.Target)
}

// CtlCheckVarsTarget is the in-circuit form of CtlCheckVars.
type CtlCheckVarsTarget struct {
	HelperColumns []circuit.Target
	LocalZ        circuit.Target
	NextZ         circuit.Target
	Challenge     GrandProductChallengeTarget
	Columns       [][]Column
	Filters       []*Filter
}

// CheckVarsFromOpeningsCircuit rebuilds every table's lookup check variables
// from opened auxiliary value wires, walking the same layout as
// CheckVarsFromOpenings.
func CheckVarsFromOpeningsCircuit(
	ctls []*CrossTableLookup,
	auxLocal, auxNext [][]circuit.Target,
	set GrandProductChallengeSetTarget,
	constraintDegree int,
) ([][]CtlCheckVarsTarget, error) {
	numTables := len(auxLocal)
	totalHelpers := make([]int, numTables)
	helpersByCtl := NumHelperColumnsByTable(ctls, numTables, constraintDegree)
	for i := range ctls {
		for t := 0; t < numTables; t++ {
			totalHelpers[t] += helpersByCtl[i][t] * len(set.Challenges)
		}
	}

	vars := make([][]CtlCheckVarsTarget, numTables)
	helperIdx := make([]int, numTables)
	zIdx := make([]int, numTables)

	add := func(table TableID, pairs []colFilter, challenge GrandProductChallengeTarget) error {
		nh := helperCount(len(pairs), constraintDegree)
		hi := helperIdx[table]
		zi := totalHelpers[table] + zIdx[table]
		if zi >= len(auxLocal[table]) || zi >= len(auxNext[table]) {
			return fmt.Errorf("ctl: table %d: aux opening too short for partial-sum column %d", table, zi)
		}
		if hi+nh > totalHelpers[table] {
			return fmt.Errorf("ctl: table %d: helper openings exhausted", table)
		}
		v := CtlCheckVarsTarget{
			HelperColumns: auxLocal[table][hi : hi+nh],
			LocalZ:        auxLocal[table][zi],
			NextZ:         auxNext[table][zi],
			Challenge:     challenge,
		}
		for _, p := range pairs {
			v.Columns = append(v.Columns, p.columns)
			v.Filters = append(v.Filters, p.filter)
		}
		vars[table] = append(vars[table], v)
		helperIdx[table] += nh
		zIdx[table]++
		return nil
	}

	for _, c := range ctls {
		groups := c.lookingGroups()
		for _, challenge := range set.Challenges {
			for _, g := range groups {
				if err := add(g.table, g.pairs, challenge); err != nil {
					return nil, err
				}
			}
			looked := []colFilter{{columns: c.LookedTable.Columns, filter: c.LookedTable.Filter}}
			if err := add(c.LookedTable.Table, looked, challenge); err != nil {
				return nil, err
			}
		}
	}
	return vars, nil
}

// EvalHelperColumnsCircuit mirrors EvalHelperColumns over wires, emitting
// the same identities in the same order.
func EvalHelperColumnsCircuit(
	b *circuit.Builder,
	vars *CtlCheckVarsTarget,
	local, next []circuit.Target,
	constraintDegree int,
	consumer RecursiveConstraintConsumer,
) {
	if len(vars.HelperColumns) == 0 {
		return
	}
	chunk := constraintDegree - 1
	for j := 0; j*chunk < len(vars.Columns); j++ {
		lo := j * chunk
		hi := lo + chunk
		if hi > len(vars.Columns) {
			hi = len(vars.Columns)
		}
		h := vars.HelperColumns[j]
		switch hi - lo {
		case 2:
			c0 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[lo], local, next))
			c1 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[lo+1], local, next))
			f0 := vars.Filters[lo].EvalCircuit(b, local, next)
			f1 := vars.Filters[lo+1].EvalCircuit(b, local, next)
			acc := b.Mul(b.Mul(c0, c1), h)
			acc = b.Sub(acc, b.Mul(f0, c1))
			acc = b.Sub(acc, b.Mul(f1, c0))
			consumer.Constraint(b, acc)
		case 1:
			c0 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[lo], local, next))
			f0 := vars.Filters[lo].EvalCircuit(b, local, next)
			consumer.Constraint(b, b.MulSub(c0, h, f0))
		default:
			panic(fmt.Sprintf("ctl: unsupported chunk size %d", hi-lo))
		}
	}
}

// EvalCrossTableLookupChecksCircuit mirrors EvalCrossTableLookupChecks over
// wires.
func EvalCrossTableLookupChecksCircuit(
	b *circuit.Builder,
	tableVars []CtlCheckVarsTarget,
	local, next []circuit.Target,
	constraintDegree int,
	consumer RecursiveConstraintConsumer,
) {
	for i := range tableVars {
		vars := &tableVars[i]
		EvalHelperColumnsCircuit(b, vars, local, next, constraintDegree, consumer)

		zDiff := b.Sub(vars.LocalZ, vars.NextZ)

		if len(vars.HelperColumns) > 0 {
			h := b.AddMany(vars.HelperColumns)
			consumer.ConstraintLastRow(b, b.Sub(vars.LocalZ, h))
			consumer.ConstraintTransition(b, b.Sub(zDiff, h))
		} else if len(vars.Columns) == 2 {
			c0 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[0], local, next))
			c1 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[1], local, next))
			f0 := vars.Filters[0].EvalCircuit(b, local, next)
			f1 := vars.Filters[1].EvalCircuit(b, local, next)
			prod := b.Mul(c0, c1)
			rhs := b.Add(b.Mul(f0, c1), b.Mul(f1, c0))
			consumer.ConstraintLastRow(b, b.MulSub(prod, vars.LocalZ, rhs))
			consumer.ConstraintTransition(b, b.MulSub(prod, zDiff, rhs))
		} else {
			c0 := vars.Challenge.Combine(b, evalColumnsCircuit(b, vars.Columns[0], local, next))
			f0 := vars.Filters[0].EvalCircuit(b, local, next)
			consumer.ConstraintLastRow(b, b.MulSub(c0, vars.LocalZ, f0))
			consumer.ConstraintTransition(b, b.MulSub(c0, zDiff, f0))
		}
	}
}

func evalColumnsCircuit(b *circuit.Builder, cols []Column, local, next []circuit.Target) []circuit.Target {
	out := make([]circuit.Target, len(cols))
	for i, c := range cols {
		out[i] = c.EvalCircuit(b, local, next)
	}
	return out
}
