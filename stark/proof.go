package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/transcript"
)

// StateRootLen is the number of field elements in a state root.
const StateRootLen = 4

// UserdataLen is the fixed width of the side channel threaded through
// aggregation and block proofs.
const UserdataLen = 8

// NumPublicValueElements is the flattened width of PublicValues.
const NumPublicValueElements = 2*StateRootLen + UserdataLen

// PublicValues is the statement carried alongside a multi-table proof: the
// state roots before and after the proven computation, plus an opaque side
// channel that must agree across composed proofs.
type PublicValues struct {
	BeforeRoot [StateRootLen]goldilocks.Element
	AfterRoot  [StateRootLen]goldilocks.Element
	Userdata   [UserdataLen]goldilocks.Element
}

// Elements flattens the public values: before root, after root, userdata.
func (pv PublicValues) Elements() []goldilocks.Element {
	out := make([]goldilocks.Element, 0, NumPublicValueElements)
	out = append(out, pv.BeforeRoot[:]...)
	out = append(out, pv.AfterRoot[:]...)
	out = append(out, pv.Userdata[:]...)
	return out
}

// PublicValuesFromElements inverts Elements.
func PublicValuesFromElements(es []goldilocks.Element) (PublicValues, error) {
	var pv PublicValues
	if len(es) != NumPublicValueElements {
		return pv, fmt.Errorf("stark: got %d public value elements, want %d", len(es), NumPublicValueElements)
	}
	copy(pv.BeforeRoot[:], es[:StateRootLen])
	copy(pv.AfterRoot[:], es[StateRootLen:2*StateRootLen])
	copy(pv.Userdata[:], es[2*StateRootLen:])
	return pv, nil
}

// OpeningSet holds one table's polynomial openings: trace and auxiliary
// values at the query row and its successor, and the partial-sum columns at
// row zero where they carry the grand totals.
type OpeningSet struct {
	LocalValues []goldilocks.Element
	NextValues  []goldilocks.Element
	AuxLocal    []goldilocks.Element
	AuxNext     []goldilocks.Element
	CtlZsFirst  []goldilocks.Element
}

// Proof is one table's STARK proof.
type Proof struct {
	TraceCap   [32]byte
	AuxCap     [32]byte
	Openings   OpeningSet
	DegreeBits int
	QueryRow   int
	Binding    [32]byte
}

// ProofWithMetadata pairs a table proof with the transcript state the
// shared challenger was in when that table's proof began. Recursive
// verification uses it to check transcript continuity across tables.
type ProofWithMetadata struct {
	Proof               Proof
	InitChallengerState transcript.State
}

// AllProof is the full multi-table proof.
type AllProof struct {
	TableProofs  []ProofWithMetadata
	PublicValues PublicValues

	// FinalChallengerState is the transcript state after the last table's
	// proof, closing the continuity chain started by the per-table states.
	FinalChallengerState transcript.State
}

// DegreeBits returns each table's trace degree.
func (p *AllProof) DegreeBits() []int {
	out := make([]int, len(p.TableProofs))
	for i := range p.TableProofs {
		out[i] = p.TableProofs[i].Proof.DegreeBits
	}
	return out
}

// CtlZsFirst returns each table's grand-total openings.
func (p *AllProof) CtlZsFirst() [][]goldilocks.Element {
	out := make([][]goldilocks.Element, len(p.TableProofs))
	for i := range p.TableProofs {
		out[i] = p.TableProofs[i].Proof.Openings.CtlZsFirst
	}
	return out
}
