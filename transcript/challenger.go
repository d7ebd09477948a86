// Package transcript implements the Fiat-Shamir transcript used to derive
// verifier challenges. This uses blake2b as the underlying duplex sponge.
package transcript

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"golang.org/x/crypto/blake2b"
)

// StateLen is the number of field elements in a challenger state snapshot.
const StateLen = 8

// goldilocksModulus is the Goldilocks prime 2^64 - 2^32 + 1.
const goldilocksModulus = 0xFFFFFFFF00000001

// State is a snapshot of the challenger's sponge state. Two challengers that
// observed and sampled the same sequence have equal states.
type State [StateLen]goldilocks.Element

// Challenger derives challenges from observed prover messages.
//
// Observations are buffered and absorbed into the sponge state on the next
// sample. Sampling reads from a blake2b XOF seeded with the current state.
type Challenger struct {
	state   [64]byte
	pending []byte
	xof     blake2b.XOF
}

// NewChallenger creates a new Challenger with an empty transcript.
func NewChallenger() *Challenger {
	return &Challenger{}
}

// ObserveBytes writes raw bytes to the transcript.
func (c *Challenger) ObserveBytes(p []byte) {
	c.pending = append(c.pending, p...)
	c.xof = nil
}

// ObserveUint64 writes a uint64 to the transcript.
func (c *Challenger) ObserveUint64(x uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	c.ObserveBytes(buf[:])
}

// ObserveElement writes a field element to the transcript.
func (c *Challenger) ObserveElement(x goldilocks.Element) {
	b := x.Bytes()
	c.ObserveBytes(b[:])
}

// ObserveElements writes field elements to the transcript.
func (c *Challenger) ObserveElements(xs []goldilocks.Element) {
	for _, x := range xs {
		c.ObserveElement(x)
	}
}

// absorb folds pending observations into the sponge state and reseeds the XOF.
func (c *Challenger) absorb() {
	if c.xof != nil && len(c.pending) == 0 {
		return
	}

	h, err := blake2b.New512(nil)
	if err != nil {
		panic(err)
	}
	h.Write(c.state[:])
	h.Write(c.pending)
	copy(c.state[:], h.Sum(nil))
	c.pending = c.pending[:0]

	xof, err := blake2b.NewXOF(blake2b.OutputLengthUnknown, nil)
	if err != nil {
		panic(err)
	}
	if _, err := xof.Write(c.state[:]); err != nil {
		panic(err)
	}
	c.xof = xof
}

// SampleUint64 samples a uniformly random uint64.
func (c *Challenger) SampleUint64() uint64 {
	c.absorb()

	var buf [8]byte
	if _, err := c.xof.Read(buf[:]); err != nil {
		panic(err)
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// SampleElement samples a uniformly random field element by rejection.
func (c *Challenger) SampleElement() goldilocks.Element {
	var z goldilocks.Element
	for {
		u := c.SampleUint64()
		if u < goldilocksModulus {
			z.SetUint64(u)
			return z
		}
	}
}

// SampleElements samples n uniformly random field elements.
func (c *Challenger) SampleElements(n int) []goldilocks.Element {
	xs := make([]goldilocks.Element, n)
	for i := range xs {
		xs[i] = c.SampleElement()
	}
	return xs
}

// SampleIndex samples a uniformly random index below bound.
// Panics if bound is not positive.
func (c *Challenger) SampleIndex(bound int) int {
	if bound <= 0 {
		panic("non-positive bound")
	}
	mask := uint64(1)
	for mask < uint64(bound) {
		mask <<= 1
	}
	mask--
	for {
		u := c.SampleUint64() & mask
		if u < uint64(bound) {
			return int(u)
		}
	}
}

// Compact absorbs pending observations and returns a snapshot of the sponge
// state as field elements. Equal snapshots certify equal transcripts, provided
// both challengers interleaved observations and samples identically.
func (c *Challenger) Compact() State {
	c.absorb()

	var s State
	for i := 0; i < StateLen; i++ {
		u := binary.LittleEndian.Uint64(c.state[8*i : 8*i+8])
		s[i].SetUint64(u)
	}
	return s
}

// Equal returns whether two states are equal.
func (s State) Equal(t State) bool {
	for i := range s {
		if !s[i].Equal(&t[i]) {
			return false
		}
	}
	return true
}

// Elements returns the state as a slice of field elements.
func (s State) Elements() []goldilocks.Element {
	return s[:]
}
