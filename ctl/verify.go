package ctl

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
)

// VerifyCrossTableLookups checks the cross-table sum identity: for every
// lookup instance, the grand totals of the looking tables must add up to
// the looked table's grand total. zsFirst holds, per table, the first-row
// openings of its partial-sum columns in lookup-instance order.
func VerifyCrossTableLookups(
	ctls []*CrossTableLookup,
	zsFirst [][]goldilocks.Element,
	numChallenges int,
) error {
	idx := make([]int, len(zsFirst))
	next := func(table TableID) (goldilocks.Element, error) {
		if idx[table] >= len(zsFirst[table]) {
			return goldilocks.Element{}, fmt.Errorf("ctl: table %d: missing partial-sum opening %d", table, idx[table])
		}
		v := zsFirst[table][idx[table]]
		idx[table]++
		return v, nil
	}

	for ci, c := range ctls {
		groups := c.lookingGroups()
		for chal := 0; chal < numChallenges; chal++ {
			var lookingSum goldilocks.Element
			for _, g := range groups {
				v, err := next(g.table)
				if err != nil {
					return err
				}
				lookingSum.Add(&lookingSum, &v)
			}
			lookedSum, err := next(c.LookedTable.Table)
			if err != nil {
				return err
			}
			if !lookingSum.Equal(&lookedSum) {
				return fmt.Errorf("ctl: lookup %d, challenge %d: looking sum %s does not match looked sum %s",
					ci, chal, lookingSum.String(), lookedSum.String())
			}
		}
	}

	for t := range zsFirst {
		if idx[t] != len(zsFirst[t]) {
			return fmt.Errorf("ctl: table %d: %d extra partial-sum openings", t, len(zsFirst[t])-idx[t])
		}
	}
	return nil
}

// VerifyCrossTableLookupsCircuit emits the cross-table sum identity as
// circuit constraints, walking the same order as VerifyCrossTableLookups.
func VerifyCrossTableLookupsCircuit(
	b *circuit.Builder,
	ctls []*CrossTableLookup,
	zsFirst [][]circuit.Target,
	numChallenges int,
) error {
	idx := make([]int, len(zsFirst))
	next := func(table TableID) (circuit.Target, error) {
		if idx[table] >= len(zsFirst[table]) {
			return 0, fmt.Errorf("ctl: table %d: missing partial-sum opening %d", table, idx[table])
		}
		t := zsFirst[table][idx[table]]
		idx[table]++
		return t, nil
	}

	for _, c := range ctls {
		groups := c.lookingGroups()
		for chal := 0; chal < numChallenges; chal++ {
			terms := make([]circuit.Target, 0, len(groups))
			for _, g := range groups {
				t, err := next(g.table)
				if err != nil {
					return err
				}
				terms = append(terms, t)
			}
			looked, err := next(c.LookedTable.Table)
			if err != nil {
				return err
			}
			b.Connect(b.AddMany(terms), looked)
		}
	}

	for t := range zsFirst {
		if idx[t] != len(zsFirst[t]) {
			return fmt.Errorf("ctl: table %d: %d extra partial-sum openings", t, len(zsFirst[t])-idx[t])
		}
	}
	return nil
}
