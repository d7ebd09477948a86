// Package circuit implements a generic arithmetic circuit toolkit: wires,
// constraints, witness generation, proofs and verifier keys, recursive and
// cyclic verification of inner proofs, and persistence of compiled circuits.
//
// Constraint systems are compiled once into a [CircuitData] and reused for
// every proof of that shape.
package circuit

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/field/goldilocks"
)

// Target is a handle to a circuit wire.
type Target int32

// DigestLen is the number of field elements in a verifier key digest.
const DigestLen = 4

// BoolTarget is a wire constrained to hold 0 or 1.
type BoolTarget struct {
	T Target
}

// VerifierKeyTarget holds the wires of a verifier key digest.
type VerifierKeyTarget struct {
	Digest [DigestLen]Target
}

// ProofWithPublicInputsTarget is the in-circuit image of an inner proof:
// wires for its public inputs, plus a slot for the opaque proof body
// supplied at proving time.
type ProofWithPublicInputsTarget struct {
	PublicInputs []Target
	ProofIndex   int
}

// digestElements maps a 32-byte digest to DigestLen field elements.
// The mapping is lossy modulo the field order but deterministic, which is all
// equality constraints on verifier keys require.
func digestElements(d [32]byte) [DigestLen]goldilocks.Element {
	var es [DigestLen]goldilocks.Element
	for i := 0; i < DigestLen; i++ {
		es[i].SetUint64(binary.LittleEndian.Uint64(d[8*i : 8*i+8]))
	}
	return es
}
