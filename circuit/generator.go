package circuit

import (
	"fmt"

	"github.com/bits-and-blooms/bitset"
	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/transcript"
)

// genKind enumerates witness generator behaviors. Generators are plain data
// so compiled circuits serialize without code pointers; Prove dispatches on
// the kind.
type genKind uint8

const (
	// genConstant sets Out[0] to Elems[0].
	genConstant genKind = iota
	// genArith sets Out[0] to a sum of monomials: Elems holds coefficients,
	// Aux the wire count of each monomial, In the concatenated wires.
	genArith
	// genRandomAccess sets Out[0] to In[1+i] where i is the value of In[0].
	genRandomAccess
	// genChallengerObserve feeds the In wires to challenger Aux[0].
	genChallengerObserve
	// genChallengerSample draws Out from challenger Aux[0].
	genChallengerSample
	// genChallengerCompact writes challenger Aux[0]'s compacted state to Out.
	genChallengerCompact
	// genVerifyProof checks an inner proof; see verifyMode.
	genVerifyProof
)

// verifyMode selects how a genVerifyProof generator resolves the verifier key.
type verifyMode uint64

const (
	// verifyConst checks proof slot Aux[1] against VKs[0].
	verifyConst verifyMode = iota
	// verifyRandomAccessVK checks slot Aux[1] against VKs[i], where i is the
	// value of wire In[0].
	verifyRandomAccessVK
	// verifyCyclic checks slot Aux[1] against the circuit's own key when the
	// condition wire In[0] is one, and slot Aux[2] against VKs[0] otherwise.
	verifyCyclic
	// verifyCyclicOrDummy checks slot Aux[1] against the circuit's own key
	// when In[0] is one, and accepts a bound dummy proof otherwise.
	verifyCyclicOrDummy
)

// generator computes derived witness values. Exactly one Kind-dependent
// subset of the fields is populated.
type generator struct {
	Kind  genKind
	Out   []Target
	In    []Target
	Aux   []uint64
	Elems []goldilocks.Element
	VKs   []VerifierKey
}

// proveState is the mutable context threaded through generator execution.
type proveState struct {
	data        *CircuitData
	values      []goldilocks.Element
	set         *bitset.BitSet
	proofs      map[int]*Proof
	challengers map[uint64]*transcript.Challenger
}

func (s *proveState) get(t Target) (goldilocks.Element, error) {
	if int(t) >= len(s.values) || !s.set.Test(uint(t)) {
		return goldilocks.Element{}, fmt.Errorf("wire %d not set", t)
	}
	return s.values[t], nil
}

func (s *proveState) put(t Target, v goldilocks.Element) error {
	if s.set.Test(uint(t)) && !s.values[t].Equal(&v) {
		return fmt.Errorf("wire %d set twice with conflicting values", t)
	}
	s.values[t] = v
	s.set.Set(uint(t))
	return nil
}

func (s *proveState) challenger(id uint64) *transcript.Challenger {
	ch, ok := s.challengers[id]
	if !ok {
		ch = transcript.NewChallenger()
		s.challengers[id] = ch
	}
	return ch
}

func (g *generator) run(s *proveState) error {
	switch g.Kind {
	case genConstant:
		return s.put(g.Out[0], g.Elems[0])

	case genArith:
		var acc goldilocks.Element
		in := g.In
		for i, coeff := range g.Elems {
			term := coeff
			n := int(g.Aux[i])
			for _, w := range in[:n] {
				v, err := s.get(w)
				if err != nil {
					return err
				}
				term.Mul(&term, &v)
			}
			in = in[n:]
			acc.Add(&acc, &term)
		}
		return s.put(g.Out[0], acc)

	case genRandomAccess:
		idx, err := s.get(g.In[0])
		if err != nil {
			return err
		}
		i := idx.Bits()[0]
		if i >= uint64(len(g.In)-1) {
			return fmt.Errorf("random access index %d out of bounds %d", i, len(g.In)-1)
		}
		v, err := s.get(g.In[1+i])
		if err != nil {
			return err
		}
		return s.put(g.Out[0], v)

	case genChallengerObserve:
		ch := s.challenger(g.Aux[0])
		for _, w := range g.In {
			v, err := s.get(w)
			if err != nil {
				return err
			}
			ch.ObserveElement(v)
		}
		return nil

	case genChallengerSample:
		ch := s.challenger(g.Aux[0])
		for _, w := range g.Out {
			if err := s.put(w, ch.SampleElement()); err != nil {
				return err
			}
		}
		return nil

	case genChallengerCompact:
		ch := s.challenger(g.Aux[0])
		state := ch.Compact()
		for i, w := range g.Out {
			if err := s.put(w, state[i]); err != nil {
				return err
			}
		}
		return nil

	case genVerifyProof:
		return g.runVerify(s)

	default:
		return fmt.Errorf("unknown generator kind %d", g.Kind)
	}
}

func (g *generator) runVerify(s *proveState) error {
	mode := verifyMode(g.Aux[0])
	proof, ok := s.proofs[int(g.Aux[1])]
	if !ok {
		return fmt.Errorf("proof slot %d not set", g.Aux[1])
	}

	switch mode {
	case verifyConst:
		return Verify(g.VKs[0], proof)

	case verifyRandomAccessVK:
		idx, err := s.get(g.In[0])
		if err != nil {
			return err
		}
		i := idx.Bits()[0]
		if i >= uint64(len(g.VKs)) {
			return fmt.Errorf("verifier key index %d out of bounds %d", i, len(g.VKs))
		}
		return Verify(g.VKs[i], proof)

	case verifyCyclic, verifyCyclicOrDummy:
		cond, err := s.get(g.In[0])
		if err != nil {
			return err
		}
		if cond.IsZero() {
			if mode == verifyCyclic {
				base, ok := s.proofs[int(g.Aux[2])]
				if !ok {
					return fmt.Errorf("proof slot %d not set", g.Aux[2])
				}
				return Verify(g.VKs[0], base)
			}
			return verifyDummy(s.data.VK, proof)
		}
		// The cyclic branch verifies against the circuit's own key and
		// requires the bound verifier data wires and the inner proof's
		// verifier data public inputs to match it.
		own := s.data.VK.DigestElements()
		for i := 0; i < DigestLen; i++ {
			wired, err := s.get(g.In[1+i])
			if err != nil {
				return err
			}
			if !wired.Equal(&own[i]) {
				return fmt.Errorf("verifier data wire %d does not match the compiled circuit", i)
			}
			inner := proof.PublicInputs[s.data.CyclicVKIndices[i]]
			if !inner.Equal(&own[i]) {
				return fmt.Errorf("inner proof verifier data mismatch at %d", i)
			}
		}
		return Verify(s.data.VK, proof)

	default:
		return fmt.Errorf("unknown verify mode %d", mode)
	}
}
