package ctl

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
)

// NumZColumns returns how many partial-sum columns each table commits to.
func NumZColumns(ctls []*CrossTableLookup, numTables, numChallenges int) []int {
	counts := make([]int, numTables)
	for _, c := range ctls {
		for _, g := range c.lookingGroups() {
			counts[g.table] += numChallenges
		}
		counts[c.LookedTable.Table] += numChallenges
	}
	return counts
}

// NumAuxColumns returns the total auxiliary column count of each table:
// helpers plus partial sums, across every lookup instance and challenge.
func NumAuxColumns(ctls []*CrossTableLookup, numTables, numChallenges, constraintDegree int) []int {
	counts := NumZColumns(ctls, numTables, numChallenges)
	byCtl := NumHelperColumnsByTable(ctls, numTables, constraintDegree)
	for i := range ctls {
		for t := 0; t < numTables; t++ {
			counts[t] += byCtl[i][t] * numChallenges
		}
	}
	return counts
}

// CheckVarsForTable rebuilds one table's lookup check variables from that
// table's aux openings alone. It walks the same global instance order as
// CheckVarsFromOpenings, skipping entries belonging to other tables.
func CheckVarsForTable(
	ctls []*CrossTableLookup,
	table TableID,
	auxLocal, auxNext []goldilocks.Element,
	set GrandProductChallengeSet,
	numTables, constraintDegree int,
) ([]CtlCheckVars, error) {
	var vars []CtlCheckVars
	err := walkTableInstances(ctls, table, set.Challenges, numTables, constraintDegree,
		func(pairs []colFilter, chalIdx, hi, nh, zi int) error {
			if zi >= len(auxLocal) || zi >= len(auxNext) {
				return fmt.Errorf("ctl: table %d: aux opening too short for partial-sum column %d", table, zi)
			}
			v := CtlCheckVars{
				HelperColumns: auxLocal[hi : hi+nh],
				LocalZ:        auxLocal[zi],
				NextZ:         auxNext[zi],
				Challenge:     set.Challenges[chalIdx],
			}
			for _, p := range pairs {
				v.Columns = append(v.Columns, p.columns)
				v.Filters = append(v.Filters, p.filter)
			}
			vars = append(vars, v)
			return nil
		})
	return vars, err
}

// CheckVarsForTableCircuit mirrors CheckVarsForTable over wires.
func CheckVarsForTableCircuit(
	ctls []*CrossTableLookup,
	table TableID,
	auxLocal, auxNext []circuit.Target,
	set GrandProductChallengeSetTarget,
	numTables, constraintDegree int,
) ([]CtlCheckVarsTarget, error) {
	var vars []CtlCheckVarsTarget
	err := walkTableInstances(ctls, table, make([]GrandProductChallenge, len(set.Challenges)), numTables, constraintDegree,
		func(pairs []colFilter, chalIdx, hi, nh, zi int) error {
			if zi >= len(auxLocal) || zi >= len(auxNext) {
				return fmt.Errorf("ctl: table %d: aux opening too short for partial-sum column %d", table, zi)
			}
			v := CtlCheckVarsTarget{
				HelperColumns: auxLocal[hi : hi+nh],
				LocalZ:        auxLocal[zi],
				NextZ:         auxNext[zi],
				Challenge:     set.Challenges[chalIdx],
			}
			for _, p := range pairs {
				v.Columns = append(v.Columns, p.columns)
				v.Filters = append(v.Filters, p.filter)
			}
			vars = append(vars, v)
			return nil
		})
	return vars, err
}

// walkTableInstances visits every lookup instance belonging to one table in
// global instance order, passing running helper and partial-sum indices into
// that table's aux layout.
func walkTableInstances(
	ctls []*CrossTableLookup,
	table TableID,
	challenges []GrandProductChallenge,
	numTables, constraintDegree int,
	visit func(pairs []colFilter, chalIdx, helperStart, numHelpers, zIdx int) error,
) error {
	totalHelpers := 0
	byCtl := NumHelperColumnsByTable(ctls, numTables, constraintDegree)
	for i := range ctls {
		totalHelpers += byCtl[i][table] * len(challenges)
	}

	helperIdx := 0
	zIdx := 0
	emit := func(pairs []colFilter, chalIdx int) error {
		nh := helperCount(len(pairs), constraintDegree)
		if err := visit(pairs, chalIdx, helperIdx, nh, totalHelpers+zIdx); err != nil {
			return err
		}
		helperIdx += nh
		zIdx++
		return nil
	}

	for _, c := range ctls {
		groups := c.lookingGroups()
		for chalIdx := range challenges {
			for _, g := range groups {
				if g.table != table {
					continue
				}
				if err := emit(g.pairs, chalIdx); err != nil {
					return err
				}
			}
			if c.LookedTable.Table == table {
				looked := []colFilter{{columns: c.LookedTable.Columns, filter: c.LookedTable.Filter}}
				if err := emit(looked, chalIdx); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
