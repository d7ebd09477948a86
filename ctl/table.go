package ctl

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"

	"github.com/zeroproofs/multistark/num"
)

// TableID identifies a STARK table within a multi-table system.
type TableID int

// TableWithColumns is one side of a lookup: a table together with the
// columns it contributes and the filter selecting its participating rows.
type TableWithColumns struct {
	Table   TableID
	Columns []Column
	Filter  *Filter
}

// NewTableWithColumns binds columns and a filter to a table. A nil filter
// selects every row.
func NewTableWithColumns(table TableID, columns []Column, filter *Filter) TableWithColumns {
	return TableWithColumns{Table: table, Columns: columns, Filter: filter}
}

// CrossTableLookup asserts that the filtered rows of the looking tables,
// taken together as a multiset, equal the filtered rows of the looked table.
type CrossTableLookup struct {
	LookingTables []TableWithColumns
	LookedTable   TableWithColumns
}

// NewCrossTableLookup builds a lookup. All sides must contribute the same
// number of columns.
func NewCrossTableLookup(looking []TableWithColumns, looked TableWithColumns) *CrossTableLookup {
	for i, t := range looking {
		if len(t.Columns) != len(looked.Columns) {
			panic(fmt.Sprintf("ctl: looking table %d contributes %d columns, looked table expects %d",
				i, len(t.Columns), len(looked.Columns)))
		}
	}
	return &CrossTableLookup{LookingTables: looking, LookedTable: looked}
}

// colFilter is one appearance of a table in a lookup.
type colFilter struct {
	columns []Column
	filter  *Filter
}

// lookingGroup collects every appearance of one table on the looking side.
type lookingGroup struct {
	table TableID
	pairs []colFilter
}

// lookingGroups returns the looking side grouped by table, ordered by first
// appearance. All appearances of a table share one group regardless of their
// positions in the looking list.
func (c *CrossTableLookup) lookingGroups() []lookingGroup {
	var groups []lookingGroup
	seen := bitset.New(64)
	at := make(map[TableID]int)
	for _, t := range c.LookingTables {
		if !seen.Test(uint(t.Table)) {
			seen.Set(uint(t.Table))
			at[t.Table] = len(groups)
			groups = append(groups, lookingGroup{table: t.Table})
		}
		i := at[t.Table]
		groups[i].pairs = append(groups[i].pairs, colFilter{columns: t.Columns, filter: t.Filter})
	}
	return groups
}

// helperCount returns the number of helper columns needed for n appearances
// of a table in one lookup instance. Up to two appearances fold directly
// into the Z constraint without helpers.
func helperCount(n, constraintDegree int) int {
	if n <= 2 {
		return 0
	}
	return num.CeilDiv(n, constraintDegree-1)
}

// NumHelperColumnsByTable returns, for each lookup, the helper column count
// of every table for a single challenge.
func NumHelperColumnsByTable(ctls []*CrossTableLookup, numTables, constraintDegree int) [][]int {
	res := make([][]int, len(ctls))
	for i, c := range ctls {
		byTable := make([]int, numTables)
		for _, g := range c.lookingGroups() {
			byTable[g.table] = helperCount(len(g.pairs), constraintDegree)
		}
		res[i] = byTable
	}
	return res
}
