package ctl

import (
	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/transcript"
)

// GrandProductChallenge is one pair of lookup challenges: values are folded
// with powers of Beta and shifted by Gamma before being inverted.
type GrandProductChallenge struct {
	Beta  goldilocks.Element
	Gamma goldilocks.Element
}

// Combine folds a value tuple into a single element:
// v[0] + v[1]*Beta + ... + v[n-1]*Beta^(n-1) + Gamma, evaluated by Horner
// from the last element.
func (ch GrandProductChallenge) Combine(vs []goldilocks.Element) goldilocks.Element {
	var acc goldilocks.Element
	for i := len(vs) - 1; i >= 0; i-- {
		acc.Mul(&acc, &ch.Beta)
		acc.Add(&acc, &vs[i])
	}
	acc.Add(&acc, &ch.Gamma)
	return acc
}

// GrandProductChallengeSet holds the challenges of one proving session. Every
// lookup instance is proved once per challenge.
type GrandProductChallengeSet struct {
	Challenges []GrandProductChallenge
}

// GetGrandProductChallengeSet draws n challenge pairs from the transcript.
func GetGrandProductChallengeSet(ch *transcript.Challenger, n int) GrandProductChallengeSet {
	set := GrandProductChallengeSet{Challenges: make([]GrandProductChallenge, n)}
	for i := range set.Challenges {
		set.Challenges[i].Beta = ch.SampleElement()
		set.Challenges[i].Gamma = ch.SampleElement()
	}
	return set
}

// GrandProductChallengeTarget is the in-circuit form of a challenge pair.
type GrandProductChallengeTarget struct {
	Beta  circuit.Target
	Gamma circuit.Target
}

// Combine mirrors GrandProductChallenge.Combine over wires.
func (ch GrandProductChallengeTarget) Combine(b *circuit.Builder, vs []circuit.Target) circuit.Target {
	acc := b.Zero()
	for i := len(vs) - 1; i >= 0; i-- {
		acc = b.Add(b.Mul(acc, ch.Beta), vs[i])
	}
	return b.Add(acc, ch.Gamma)
}

// GrandProductChallengeSetTarget is the in-circuit form of a challenge set.
type GrandProductChallengeSetTarget struct {
	Challenges []GrandProductChallengeTarget
}

// GetGrandProductChallengeSetCircuit draws n challenge pairs from an
// in-circuit transcript, replicating GetGrandProductChallengeSet draw for
// draw.
func GetGrandProductChallengeSetCircuit(rc *circuit.RecursiveChallenger, n int) GrandProductChallengeSetTarget {
	set := GrandProductChallengeSetTarget{Challenges: make([]GrandProductChallengeTarget, n)}
	for i := range set.Challenges {
		set.Challenges[i].Beta = rc.SampleTarget()
		set.Challenges[i].Gamma = rc.SampleTarget()
	}
	return set
}
