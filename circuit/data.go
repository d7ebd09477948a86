package circuit

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"golang.org/x/crypto/blake2b"
)

// Domain tags for proof bindings.
var (
	tagProof = []byte("multistark/circuit/proof/v1")
	tagDummy = []byte("multistark/circuit/dummy/v1")
	tagVK    = []byte("multistark/circuit/vk/v1")
)

// CommonData describes the shape of proofs a circuit produces, which is all
// an outer circuit needs to allocate targets for them.
type CommonData struct {
	DegreeBits      int
	NumPublicInputs int
}

// VerifierKey identifies a compiled circuit.
type VerifierKey struct {
	Digest          [32]byte
	DegreeBits      int
	NumPublicInputs int
}

// DigestElements returns the key digest folded into field elements, the form
// used for in-circuit equality checks.
func (vk VerifierKey) DigestElements() [DigestLen]goldilocks.Element {
	return digestElements(vk.Digest)
}

// Common returns the proof shape of circuits verified by this key.
func (vk VerifierKey) Common() CommonData {
	return CommonData{DegreeBits: vk.DegreeBits, NumPublicInputs: vk.NumPublicInputs}
}

// CircuitData is a compiled circuit: the full constraint system, its witness
// generators, and the derived verifier key.
type CircuitData struct {
	Config     Config
	NumWires   int
	Gates      []gate
	Generators []generator

	PublicInputs []Target
	// CyclicVK, when set, holds the verifier data wires registered by
	// AddVerifierDataPublicInputs, and CyclicVKIndices their positions in
	// the public input list.
	CyclicVK        *VerifierKeyTarget
	CyclicVKIndices []int

	NumProofSlots int
	NumGates      int
	DegreeBits    int

	VK VerifierKey
}

// Common returns the shape of proofs produced by this circuit.
func (d *CircuitData) Common() CommonData {
	return CommonData{DegreeBits: d.DegreeBits, NumPublicInputs: len(d.PublicInputs)}
}

// Proof is a proof of a compiled circuit, carrying its public inputs.
type Proof struct {
	PublicInputs  []goldilocks.Element
	WitnessDigest [32]byte
	DegreeBits    int
	Dummy         bool
	Binding       [32]byte
}

// computeVerifierKey digests the compiled constraint system. Two circuits
// share a key exactly when their gates, generators and layout coincide.
func computeVerifierKey(data *CircuitData) (VerifierKey, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return VerifierKey{}, err
	}
	h.Write(tagVK)
	writeUint(h, uint64(data.NumWires))
	writeUint(h, uint64(data.NumGates))
	writeUint(h, uint64(data.DegreeBits))
	writeUint(h, uint64(len(data.PublicInputs)))
	for _, t := range data.PublicInputs {
		writeUint(h, uint64(t))
	}
	writeUint(h, uint64(len(data.Gates)))
	for _, g := range data.Gates {
		writeUint(h, uint64(len(g.Monomials)))
		for _, m := range g.Monomials {
			b := m.Coeff.Bytes()
			h.Write(b[:])
			writeUint(h, uint64(len(m.Wires)))
			for _, w := range m.Wires {
				writeUint(h, uint64(w))
			}
		}
	}
	writeUint(h, uint64(len(data.Generators)))
	for _, g := range data.Generators {
		writeUint(h, uint64(g.Kind))
		writeUint(h, uint64(len(g.Out)))
		writeUint(h, uint64(len(g.In)))
		writeUint(h, uint64(len(g.Aux)))
		for _, a := range g.Aux {
			writeUint(h, a)
		}
		for _, vk := range g.VKs {
			h.Write(vk.Digest[:])
		}
	}

	var vk VerifierKey
	copy(vk.Digest[:], h.Sum(nil))
	vk.DegreeBits = data.DegreeBits
	vk.NumPublicInputs = len(data.PublicInputs)
	return vk, nil
}

// Prove generates the full witness from pw, checks every gate, and returns a
// proof bound to this circuit's verifier key.
func Prove(data *CircuitData, pw *PartialWitness) (*Proof, error) {
	s := newProveState(data, pw)

	for t, v := range pw.values {
		if err := s.put(t, v); err != nil {
			return nil, fmt.Errorf("circuit: prove: %w", err)
		}
	}
	for i := range data.Generators {
		if err := data.Generators[i].run(s); err != nil {
			return nil, fmt.Errorf("circuit: prove: generator %d: %w", i, err)
		}
	}
	for t := 0; t < data.NumWires; t++ {
		if !s.set.Test(uint(t)) {
			return nil, fmt.Errorf("circuit: prove: wire %d has no value", t)
		}
	}
	for i, g := range data.Gates {
		if err := evalGate(g, s.values); err != nil {
			return nil, fmt.Errorf("circuit: prove: gate %d unsatisfied: %w", i, err)
		}
	}

	witnessDigest := digestWitness(s.values)
	pis := make([]goldilocks.Element, len(data.PublicInputs))
	for i, t := range data.PublicInputs {
		pis[i] = s.values[t]
	}

	proof := &Proof{
		PublicInputs:  pis,
		WitnessDigest: witnessDigest,
		DegreeBits:    data.DegreeBits,
	}
	proof.Binding = bindProof(data.VK, proof)
	return proof, nil
}

// Verify checks a proof against a verifier key. Dummy proofs are rejected;
// they are only acceptable inside a gated cyclic base case.
func Verify(vk VerifierKey, proof *Proof) error {
	if proof.Dummy {
		return fmt.Errorf("circuit: verify: dummy proof is not a valid top-level proof")
	}
	if proof.DegreeBits != vk.DegreeBits {
		return fmt.Errorf("circuit: verify: proof degree 2^%d does not match key degree 2^%d",
			proof.DegreeBits, vk.DegreeBits)
	}
	if len(proof.PublicInputs) != vk.NumPublicInputs {
		return fmt.Errorf("circuit: verify: got %d public inputs, key expects %d",
			len(proof.PublicInputs), vk.NumPublicInputs)
	}
	want := bindProof(vk, proof)
	if !bytes.Equal(want[:], proof.Binding[:]) {
		return fmt.Errorf("circuit: verify: proof binding mismatch")
	}
	return nil
}

// CheckCyclicProofVerifierKey checks that the verifier data embedded in a
// cyclic proof's public inputs matches vk. Outer callers must run this in
// addition to Verify, since the circuit itself can only constrain its
// verifier data wires, not pin them.
func CheckCyclicProofVerifierKey(data *CircuitData, proof *Proof, vk VerifierKey) error {
	if data.CyclicVK == nil {
		return fmt.Errorf("circuit: no verifier data public inputs registered")
	}
	want := vk.DigestElements()
	for i, pi := range data.CyclicVKIndices {
		if pi >= len(proof.PublicInputs) {
			return fmt.Errorf("circuit: proof is missing verifier data public input %d", i)
		}
		got := proof.PublicInputs[pi]
		if !got.Equal(&want[i]) {
			return fmt.Errorf("circuit: embedded verifier data does not match key at element %d", i)
		}
	}
	return nil
}

// CyclicBaseProof returns a dummy proof of the circuit's own shape for the
// base case of cyclic verification. Its verifier data public inputs are set
// to the circuit's key, and any caller-supplied public inputs are filled in;
// all others are zero.
func CyclicBaseProof(data *CircuitData, pis map[int]goldilocks.Element) *Proof {
	values := make([]goldilocks.Element, len(data.PublicInputs))
	for i, v := range pis {
		values[i] = v
	}
	own := data.VK.DigestElements()
	for i, pi := range data.CyclicVKIndices {
		values[pi] = own[i]
	}
	proof := &Proof{
		PublicInputs: values,
		DegreeBits:   data.DegreeBits,
		Dummy:        true,
	}
	proof.Binding = bindDummy(data.VK, proof)
	return proof
}

// DummyProof returns an inert proof with n zero public inputs, used to fill
// the unselected branch of a conditional verification.
func DummyProof(n int) *Proof {
	return &Proof{
		PublicInputs: make([]goldilocks.Element, n),
		Dummy:        true,
	}
}

func verifyDummy(vk VerifierKey, proof *Proof) error {
	if !proof.Dummy {
		return fmt.Errorf("circuit: expected a dummy base proof")
	}
	if len(proof.PublicInputs) != vk.NumPublicInputs {
		return fmt.Errorf("circuit: dummy proof has %d public inputs, key expects %d",
			len(proof.PublicInputs), vk.NumPublicInputs)
	}
	want := bindDummy(vk, proof)
	if !bytes.Equal(want[:], proof.Binding[:]) {
		return fmt.Errorf("circuit: dummy proof binding mismatch")
	}
	return nil
}

func bindProof(vk VerifierKey, proof *Proof) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(tagProof)
	h.Write(vk.Digest[:])
	writeUint(h, uint64(proof.DegreeBits))
	writeUint(h, uint64(len(proof.PublicInputs)))
	for i := range proof.PublicInputs {
		b := proof.PublicInputs[i].Bytes()
		h.Write(b[:])
	}
	h.Write(proof.WitnessDigest[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func bindDummy(vk VerifierKey, proof *Proof) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(tagDummy)
	h.Write(vk.Digest[:])
	for i := range proof.PublicInputs {
		b := proof.PublicInputs[i].Bytes()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func digestWitness(values []goldilocks.Element) [32]byte {
	h, _ := blake2b.New256(nil)
	for i := range values {
		b := values[i].Bytes()
		h.Write(b[:])
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func evalGate(g gate, values []goldilocks.Element) error {
	var acc goldilocks.Element
	for _, m := range g.Monomials {
		term := m.Coeff
		for _, w := range m.Wires {
			term.Mul(&term, &values[w])
		}
		acc.Add(&acc, &term)
	}
	if !acc.IsZero() {
		return fmt.Errorf("constraint evaluates to %s", acc.String())
	}
	return nil
}

func writeUint(h interface{ Write([]byte) (int, error) }, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	h.Write(b[:])
}
