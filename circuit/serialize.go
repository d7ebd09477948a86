package circuit

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// Preprocessed circuits are expensive to rebuild, so compiled CircuitData is
// persisted: a small binary frame around a CBOR payload.

var (
	frameMagic = [4]byte{'m', 's', 'c', 'd'}

	frameVersion uint16 = 1
)

var encMode cbor.EncMode = func() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// circuitPayload is the serialized form of CircuitData. The verifier key is
// not stored; it is recomputed on load and acts as an integrity check via the
// stored digest.
type circuitPayload struct {
	Config          Config
	NumWires        int
	Gates           []gate
	Generators      []generator
	PublicInputs    []Target
	CyclicVK        *VerifierKeyTarget
	CyclicVKIndices []int
	NumProofSlots   int
	NumGates        int
	DegreeBits      int
	VKDigest        [32]byte
}

// WriteTo serializes the compiled circuit.
func (d *CircuitData) WriteTo(w io.Writer) (int64, error) {
	payload := circuitPayload{
		Config:          d.Config,
		NumWires:        d.NumWires,
		Gates:           d.Gates,
		Generators:      d.Generators,
		PublicInputs:    d.PublicInputs,
		CyclicVK:        d.CyclicVK,
		CyclicVKIndices: d.CyclicVKIndices,
		NumProofSlots:   d.NumProofSlots,
		NumGates:        d.NumGates,
		DegreeBits:      d.DegreeBits,
		VKDigest:        d.VK.Digest,
	}
	body, err := encMode.Marshal(&payload)
	if err != nil {
		return 0, fmt.Errorf("circuit: serialize: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(frameMagic[:])
	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], frameVersion)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(body)))
	buf.Write(hdr[:])
	buf.Write(body)

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadCircuitData deserializes a compiled circuit and recomputes its verifier
// key, rejecting payloads whose recomputed key does not match the stored
// digest.
func ReadCircuitData(r io.Reader) (*CircuitData, error) {
	var head [10]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("circuit: deserialize: %w", err)
	}
	if !bytes.Equal(head[:4], frameMagic[:]) {
		return nil, fmt.Errorf("circuit: deserialize: bad magic %q", head[:4])
	}
	if v := binary.LittleEndian.Uint16(head[4:6]); v != frameVersion {
		return nil, fmt.Errorf("circuit: deserialize: unsupported version %d", v)
	}
	size := binary.LittleEndian.Uint32(head[6:10])
	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("circuit: deserialize: %w", err)
	}

	var payload circuitPayload
	if err := cbor.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("circuit: deserialize: %w", err)
	}

	data := &CircuitData{
		Config:          payload.Config,
		NumWires:        payload.NumWires,
		Gates:           payload.Gates,
		Generators:      payload.Generators,
		PublicInputs:    payload.PublicInputs,
		CyclicVK:        payload.CyclicVK,
		CyclicVKIndices: payload.CyclicVKIndices,
		NumProofSlots:   payload.NumProofSlots,
		NumGates:        payload.NumGates,
		DegreeBits:      payload.DegreeBits,
	}
	vk, err := computeVerifierKey(data)
	if err != nil {
		return nil, fmt.Errorf("circuit: deserialize: %w", err)
	}
	if vk.Digest != payload.VKDigest {
		return nil, fmt.Errorf("circuit: deserialize: verifier key mismatch, payload corrupted")
	}
	data.VK = vk
	return data, nil
}

// EncodeProof serializes a proof.
func EncodeProof(proof *Proof) ([]byte, error) {
	return encMode.Marshal(proof)
}

// DecodeProof deserializes a proof.
func DecodeProof(data []byte) (*Proof, error) {
	var proof Proof
	if err := cbor.Unmarshal(data, &proof); err != nil {
		return nil, fmt.Errorf("circuit: decode proof: %w", err)
	}
	return &proof, nil
}
