package circuit

import (
	"github.com/zeroproofs/multistark/transcript"
)

// RecursiveChallenger is the in-circuit image of a [transcript.Challenger].
// Observations and samples recorded on it replay the native transcript during
// witness generation, so a circuit re-deriving challenges from the same
// observation sequence obtains exactly the values the native prover drew.
type RecursiveChallenger struct {
	b  *Builder
	id uint64
}

// StateTarget holds the wires of a compacted challenger state.
type StateTarget [transcript.StateLen]Target

// NewRecursiveChallenger allocates an in-circuit challenger starting from a
// fresh transcript.
func NewRecursiveChallenger(b *Builder) *RecursiveChallenger {
	c := &RecursiveChallenger{b: b, id: b.numChallengers}
	b.numChallengers++
	return c
}

// ObserveTarget feeds a single wire to the transcript.
func (c *RecursiveChallenger) ObserveTarget(t Target) {
	c.ObserveTargets([]Target{t})
}

// ObserveTargets feeds wires to the transcript in order.
func (c *RecursiveChallenger) ObserveTargets(ts []Target) {
	if len(ts) == 0 {
		return
	}
	in := make([]Target, len(ts))
	copy(in, ts)
	c.b.generators = append(c.b.generators, generator{
		Kind: genChallengerObserve,
		Aux:  []uint64{c.id},
		In:   in,
	})
	c.b.extraGates += 1 + len(ts)/8
}

// SampleTarget draws one challenge wire from the transcript.
func (c *RecursiveChallenger) SampleTarget() Target {
	return c.SampleTargets(1)[0]
}

// SampleTargets draws n challenge wires from the transcript.
func (c *RecursiveChallenger) SampleTargets(n int) []Target {
	out := c.b.AddVirtualTargets(n)
	c.b.generators = append(c.b.generators, generator{
		Kind: genChallengerSample,
		Aux:  []uint64{c.id},
		Out:  out,
	})
	c.b.extraGates += n
	return out
}

// CompactState returns wires holding the challenger's compacted state. Used
// to check transcript continuity across independently produced proofs.
func (c *RecursiveChallenger) CompactState() StateTarget {
	out := c.b.AddVirtualTargets(transcript.StateLen)
	c.b.generators = append(c.b.generators, generator{
		Kind: genChallengerCompact,
		Aux:  []uint64{c.id},
		Out:  out,
	})
	c.b.extraGates++
	var st StateTarget
	copy(st[:], out)
	return st
}
