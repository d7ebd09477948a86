package stark

import (
	"encoding/binary"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"golang.org/x/crypto/blake2b"

	"github.com/zeroproofs/multistark/poly"
)

// Commitments are blake2b Merkle caps over row-major leaf hashes: each row
// of the column set is hashed into a leaf, leaves pair up the tree, and the
// root is the cap.

var (
	tagLeaf  = []byte("multistark/stark/leaf/v1")
	tagNode  = []byte("multistark/stark/node/v1")
	tagProof = []byte("multistark/stark/proof/v1")
)

// commit builds the Merkle cap of a column set.
func commit(cols []poly.Values) [32]byte {
	if len(cols) == 0 {
		return [32]byte{}
	}
	degree := cols[0].Len()
	layer := make([][32]byte, degree)
	for r := 0; r < degree; r++ {
		h, _ := blake2b.New256(nil)
		h.Write(tagLeaf)
		for c := range cols {
			b := cols[c].Coeffs[r].Bytes()
			h.Write(b[:])
		}
		copy(layer[r][:], h.Sum(nil))
	}
	for len(layer) > 1 {
		next := make([][32]byte, (len(layer)+1)/2)
		for i := range next {
			h, _ := blake2b.New256(nil)
			h.Write(tagNode)
			h.Write(layer[2*i][:])
			if 2*i+1 < len(layer) {
				h.Write(layer[2*i+1][:])
			}
			copy(next[i][:], h.Sum(nil))
		}
		layer = next
	}
	return layer[0]
}

// bindOpenings digests a proof's caps, query row and openings into the
// proof binding.
func bindOpenings(p *Proof) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(tagProof)
	h.Write(p.TraceCap[:])
	h.Write(p.AuxCap[:])
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(p.DegreeBits))
	h.Write(b[:])
	binary.LittleEndian.PutUint64(b[:], uint64(p.QueryRow))
	h.Write(b[:])
	writeElems := func(es []goldilocks.Element) {
		binary.LittleEndian.PutUint64(b[:], uint64(len(es)))
		h.Write(b[:])
		for i := range es {
			eb := es[i].Bytes()
			h.Write(eb[:])
		}
	}
	writeElems(p.Openings.LocalValues)
	writeElems(p.Openings.NextValues)
	writeElems(p.Openings.AuxLocal)
	writeElems(p.Openings.AuxNext)
	writeElems(p.Openings.CtlZsFirst)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// capElements folds a cap digest into field elements for transcript
// observation and circuit public inputs.
func capElements(digest [32]byte) []goldilocks.Element {
	out := make([]goldilocks.Element, 4)
	for i := range out {
		out[i].SetUint64(binary.LittleEndian.Uint64(digest[8*i : 8*i+8]))
	}
	return out
}
