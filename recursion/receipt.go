package recursion

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/stark"
)

// ReceiptKind discriminates the composition level a receipt was produced at.
type ReceiptKind string

const (
	RootReceipt        ReceiptKind = "root"
	AggregationReceipt ReceiptKind = "aggregation"
	BlockReceipt       ReceiptKind = "block"
)

// Receipt is the external carrier of a composed proof: the proof itself and
// the public values it attests to.
type Receipt struct {
	Kind         ReceiptKind
	PublicValues stark.PublicValues
	Proof        *circuit.Proof
}

// checkPublicValues verifies the receipt's claimed public values against the
// proof's public inputs, starting at the given offset.
func (r *Receipt) checkPublicValues(offset int) error {
	es := r.PublicValues.Elements()
	if len(r.Proof.PublicInputs) < offset+len(es) {
		return fmt.Errorf("recursion: receipt proof carries %d public inputs, need %d",
			len(r.Proof.PublicInputs), offset+len(es))
	}
	for i := range es {
		got := r.Proof.PublicInputs[offset+i]
		if !got.Equal(&es[i]) {
			return fmt.Errorf("recursion: receipt public value %d does not match the proof", i)
		}
	}
	return nil
}

// Encode serializes the receipt.
func (r *Receipt) Encode() ([]byte, error) {
	return cbor.Marshal(r)
}

// DecodeReceipt deserializes a receipt.
func DecodeReceipt(data []byte) (*Receipt, error) {
	var r Receipt
	if err := cbor.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("recursion: decode receipt: %w", err)
	}
	if r.Proof == nil {
		return nil, fmt.Errorf("recursion: decode receipt: missing proof")
	}
	return &r, nil
}
