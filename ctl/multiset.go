package ctl

import (
	"fmt"
	"sort"
	"strings"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/poly"
)

// CheckTraces verifies every lookup by explicit multiset comparison over the
// raw traces, with no randomness involved. It is far slower than the
// partial-sum argument and exists to debug trace generation: when it fails
// it reports the first mismatching tuple and which side is short. Filters
// evaluating to anything other than 0 or 1 are rejected outright.
func CheckTraces(traces [][]poly.Values, ctls []*CrossTableLookup) error {
	for ci, c := range ctls {
		looking := make(map[string]int64)
		for _, t := range c.LookingTables {
			if err := accumulate(looking, traces[t.Table], t, 1); err != nil {
				return fmt.Errorf("ctl: lookup %d: %w", ci, err)
			}
		}
		if err := accumulate(looking, traces[c.LookedTable.Table], c.LookedTable, -1); err != nil {
			return fmt.Errorf("ctl: lookup %d: %w", ci, err)
		}

		keys := make([]string, 0)
		for k, n := range looking {
			if n != 0 {
				keys = append(keys, k)
			}
		}
		if len(keys) == 0 {
			continue
		}
		sort.Strings(keys)
		k := keys[0]
		side := "looking"
		if looking[k] < 0 {
			side = "looked"
		}
		return fmt.Errorf("ctl: lookup %d: multiset mismatch at tuple %s, %s side has %d extra",
			ci, tupleString(k), side, abs64(looking[k]))
	}
	return nil
}

func accumulate(counts map[string]int64, trace []poly.Values, t TableWithColumns, sign int64) error {
	degree := trace[0].Len()
	evals := make([]goldilocks.Element, len(t.Columns))
	for r := 0; r < degree; r++ {
		f := t.Filter.EvalTable(trace, r)
		if f.IsZero() {
			continue
		}
		if !f.IsOne() {
			return fmt.Errorf("non-binary filter value %s at row %d", f.String(), r)
		}
		for i, col := range t.Columns {
			evals[i] = col.EvalTable(trace, r)
		}
		counts[tupleKey(evals)] += sign
	}
	return nil
}

func tupleKey(evals []goldilocks.Element) string {
	var sb strings.Builder
	for i := range evals {
		b := evals[i].Bytes()
		sb.Write(b[:])
	}
	return sb.String()
}

func tupleString(key string) string {
	var parts []string
	for i := 0; i+8 <= len(key); i += 8 {
		var e goldilocks.Element
		e.SetBytes([]byte(key[i : i+8]))
		parts = append(parts, e.String())
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

func abs64(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
