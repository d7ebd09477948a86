package circuit

import (
	"bytes"
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroproofs/multistark/transcript"
)

func newNativeChallenger(vals []goldilocks.Element) goldilocks.Element {
	ch := transcript.NewChallenger()
	ch.ObserveElements(vals)
	return ch.SampleElement()
}

func elem(v uint64) goldilocks.Element {
	var e goldilocks.Element
	e.SetUint64(v)
	return e
}

// buildMulAdd compiles a circuit checking out = a*b + c with all four wires
// public.
func buildMulAdd(t *testing.T) (*CircuitData, Target, Target, Target) {
	b := NewBuilder(DefaultConfig())
	a := b.AddVirtualTarget()
	x := b.AddVirtualTarget()
	c := b.AddVirtualTarget()
	out := b.Add(b.Mul(a, x), c)
	b.RegisterPublicInputs([]Target{a, x, c, out})
	data, err := b.Compile()
	require.NoError(t, err)
	return data, a, x, c
}

func TestProveVerify(t *testing.T) {
	data, a, x, c := buildMulAdd(t)

	pw := NewPartialWitness()
	pw.SetTargetUint64(a, 3)
	pw.SetTargetUint64(x, 5)
	pw.SetTargetUint64(c, 7)

	proof, err := Prove(data, pw)
	require.NoError(t, err)
	require.NoError(t, Verify(data.VK, proof))

	assert.Equal(t, elem(22), proof.PublicInputs[3])

	// Tampering with a public input breaks the binding.
	tampered := *proof
	tampered.PublicInputs = append([]goldilocks.Element{}, proof.PublicInputs...)
	tampered.PublicInputs[3] = elem(23)
	assert.Error(t, Verify(data.VK, &tampered))
}

func TestBoolConstraint(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	cond := b.AddVirtualBoolTarget()
	x := b.AddVirtualTarget()
	y := b.AddVirtualTarget()
	out := b.Select(cond, x, y)
	b.RegisterPublicInput(out)
	data, err := b.Compile()
	require.NoError(t, err)

	pw := NewPartialWitness()
	pw.SetBoolTarget(cond, true)
	pw.SetTargetUint64(x, 11)
	pw.SetTargetUint64(y, 22)
	proof, err := Prove(data, pw)
	require.NoError(t, err)
	assert.Equal(t, elem(11), proof.PublicInputs[0])

	pw = NewPartialWitness()
	pw.SetTargetUint64(cond.T, 2)
	pw.SetTargetUint64(x, 11)
	pw.SetTargetUint64(y, 22)
	_, err = Prove(data, pw)
	assert.Error(t, err, "non-boolean condition must fail the bool gate")
}

func TestUnsatisfiedGate(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	x := b.AddVirtualTarget()
	b.Connect(x, b.ConstantUint64(9))
	data, err := b.Compile()
	require.NoError(t, err)

	pw := NewPartialWitness()
	pw.SetTargetUint64(x, 10)
	_, err = Prove(data, pw)
	assert.Error(t, err)
}

func TestRecursiveVerification(t *testing.T) {
	inner, a, x, c := buildMulAdd(t)

	pw := NewPartialWitness()
	pw.SetTargetUint64(a, 2)
	pw.SetTargetUint64(x, 4)
	pw.SetTargetUint64(c, 1)
	innerProof, err := Prove(inner, pw)
	require.NoError(t, err)

	b := NewBuilder(DefaultConfig())
	pt := b.AddVirtualProofWithPis(inner.Common())
	b.VerifyProof(pt, inner.VK)
	// Re-expose the inner result.
	b.RegisterPublicInput(pt.PublicInputs[3])
	outer, err := b.Compile()
	require.NoError(t, err)
	require.Greater(t, outer.NumGates, verifyGateCost(inner.DegreeBits))

	opw := NewPartialWitness()
	require.NoError(t, opw.SetProofWithPisTarget(pt, innerProof))
	outerProof, err := Prove(outer, opw)
	require.NoError(t, err)
	require.NoError(t, Verify(outer.VK, outerProof))
	assert.Equal(t, elem(9), outerProof.PublicInputs[0])

	// A forged inner proof must be rejected during witness generation.
	forged := *innerProof
	forged.PublicInputs = append([]goldilocks.Element{}, innerProof.PublicInputs...)
	forged.PublicInputs[3] = elem(100)
	opw = NewPartialWitness()
	require.NoError(t, opw.SetProofWithPisTarget(pt, &forged))
	_, err = Prove(outer, opw)
	assert.Error(t, err)
}

func TestChallengerMatchesNative(t *testing.T) {
	b := NewBuilder(DefaultConfig())
	in := b.AddVirtualTargets(3)
	ch := NewRecursiveChallenger(b)
	ch.ObserveTargets(in)
	sample := ch.SampleTarget()
	b.RegisterPublicInput(sample)
	data, err := b.Compile()
	require.NoError(t, err)

	vals := []goldilocks.Element{elem(1), elem(2), elem(3)}
	pw := NewPartialWitness()
	require.NoError(t, pw.SetTargets(in, vals))
	proof, err := Prove(data, pw)
	require.NoError(t, err)

	native := newNativeChallenger(vals)
	assert.Equal(t, native, proof.PublicInputs[0])
}

func TestCyclicProof(t *testing.T) {
	// counter = parent counter + 1, with a gated cyclic parent proof.
	b := NewBuilder(DefaultConfig())
	hasParent := b.AddVirtualBoolTarget()
	counter := b.AddVirtualTarget()
	b.RegisterPublicInput(counter)
	vkt := b.AddVerifierDataPublicInputs()
	parent := b.AddVirtualProofWithPis(CommonData{NumPublicInputs: 1 + DigestLen})
	// counter = hasParent ? parentCounter + 1 : 1
	bumped := b.AddConst(parent.PublicInputs[0], goldilocks.One())
	b.Connect(counter, b.Select(hasParent, bumped, b.One()))
	require.NoError(t, b.ConditionallyVerifyCyclicProofOrDummy(hasParent, parent))
	data, err := b.Compile()
	require.NoError(t, err)

	base := CyclicBaseProof(data, nil)

	pw := NewPartialWitness()
	pw.SetBoolTarget(hasParent, false)
	pw.SetVerifierKeyTarget(vkt, data.VK)
	require.NoError(t, pw.SetProofWithPisTarget(parent, base))
	first, err := Prove(data, pw)
	require.NoError(t, err)
	require.NoError(t, Verify(data.VK, first))
	require.NoError(t, CheckCyclicProofVerifierKey(data, first, data.VK))
	assert.Equal(t, elem(1), first.PublicInputs[0])

	pw = NewPartialWitness()
	pw.SetBoolTarget(hasParent, true)
	pw.SetVerifierKeyTarget(vkt, data.VK)
	require.NoError(t, pw.SetProofWithPisTarget(parent, first))
	second, err := Prove(data, pw)
	require.NoError(t, err)
	require.NoError(t, Verify(data.VK, second))
	assert.Equal(t, elem(2), second.PublicInputs[0])

	// A dummy base proof never verifies as a top-level proof.
	assert.Error(t, Verify(data.VK, base))
}

func TestSerializeRoundTrip(t *testing.T) {
	data, a, x, c := buildMulAdd(t)

	var buf bytes.Buffer
	_, err := data.WriteTo(&buf)
	require.NoError(t, err)

	loaded, err := ReadCircuitData(&buf)
	require.NoError(t, err)
	assert.Equal(t, data.VK, loaded.VK)

	pw := NewPartialWitness()
	pw.SetTargetUint64(a, 1)
	pw.SetTargetUint64(x, 2)
	pw.SetTargetUint64(c, 3)
	proof, err := Prove(loaded, pw)
	require.NoError(t, err)
	require.NoError(t, Verify(data.VK, proof))

	enc, err := EncodeProof(proof)
	require.NoError(t, err)
	dec, err := DecodeProof(enc)
	require.NoError(t, err)
	require.NoError(t, Verify(data.VK, dec))
}
