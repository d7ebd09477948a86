package recursion

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/logger"
	"github.com/zeroproofs/multistark/stark"
	"github.com/zeroproofs/multistark/transcript"
)

// AllRecursiveCircuits is the full preprocessed composition stack: one
// shrinking chain per table per supported size, the root circuit over all
// tables, and the cyclic aggregation and block circuits.
type AllRecursiveCircuits struct {
	all    *stark.AllStark
	ranges []SizeRange

	// tables[t][i] is table t's chain for degree bits ranges[t].MinBits+i.
	tables [][]*tableChain

	root  *rootCircuit
	agg   *aggregationCircuit
	block *blockCircuit
}

// NewAllRecursiveCircuits preprocesses every circuit of the stack. ranges
// gives, per table, the trace sizes to support; proving a trace outside its
// table's range fails with the range needed to cover it. Chains for
// different sizes are independent and built in parallel.
func NewAllRecursiveCircuits(all *stark.AllStark, ranges []SizeRange) (*AllRecursiveCircuits, error) {
	if len(ranges) != all.NumTables() {
		return nil, fmt.Errorf("recursion: got %d size ranges for %d tables", len(ranges), all.NumTables())
	}
	for t, r := range ranges {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("recursion: table %s: %w", all.Name(ctl.TableID(t)), err)
		}
	}
	log := logger.Logger().With().Str("component", "recursion").Logger()

	c := &AllRecursiveCircuits{
		all:    all,
		ranges: ranges,
		tables: make([][]*tableChain, all.NumTables()),
	}

	var g errgroup.Group
	for t := range c.tables {
		t := t
		c.tables[t] = make([]*tableChain, ranges[t].Len())
		for i := 0; i < ranges[t].Len(); i++ {
			i := i
			g.Go(func() error {
				chain, err := buildTableChain(all, ctl.TableID(t), ranges[t].MinBits+i)
				if err != nil {
					return err
				}
				c.tables[t][i] = chain
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	finalVKs := make([][]circuit.VerifierKey, all.NumTables())
	for t := range c.tables {
		for _, chain := range c.tables[t] {
			finalVKs[t] = append(finalVKs[t], chain.finalData().VK)
		}
	}

	var err error
	if c.root, err = buildRootCircuit(all, finalVKs); err != nil {
		return nil, err
	}
	if c.agg, err = buildAggregationCircuit(c.root); err != nil {
		return nil, err
	}
	if c.block, err = buildBlockCircuit(c.agg); err != nil {
		return nil, err
	}
	log.Debug().
		Int("rootDegreeBits", c.root.data.DegreeBits).
		Int("aggDegreeBits", c.agg.data.DegreeBits).
		Int("blockDegreeBits", c.block.data.DegreeBits).
		Msg("recursive circuits preprocessed")
	return c, nil
}

// RootVK returns the root circuit's verifier key.
func (c *AllRecursiveCircuits) RootVK() circuit.VerifierKey { return c.root.data.VK }

// AggregationVK returns the aggregation circuit's verifier key.
func (c *AllRecursiveCircuits) AggregationVK() circuit.VerifierKey { return c.agg.data.VK }

// BlockVK returns the block circuit's verifier key.
func (c *AllRecursiveCircuits) BlockVK() circuit.VerifierKey { return c.block.data.VK }

func (c *AllRecursiveCircuits) chainFor(t ctl.TableID, bits int) (*tableChain, error) {
	r := c.ranges[t]
	if !r.Contains(bits) {
		name := c.all.Name(t)
		covering := SizeRange{MinBits: min(bits, r.MinBits), MaxBits: max(bits, r.MaxBits)}
		return nil, fmt.Errorf(
			"recursion: missing preprocessed circuits for the %s table with size %d; regenerate with a size range covering it, e.g. export %s=%q",
			name, bits, SizeRangeEnvVar(name), covering.String())
	}
	return c.tables[t][bits-r.MinBits], nil
}

// ProveRoot verifies a multi-table proof natively, shrinks every table proof
// to the threshold size, and produces the root receipt.
func (c *AllRecursiveCircuits) ProveRoot(proof *stark.AllProof) (*Receipt, error) {
	if err := stark.Verify(c.all, proof); err != nil {
		return nil, fmt.Errorf("recursion: refusing to wrap an invalid proof: %w", err)
	}

	// Re-derive the challenge set the proof was built under.
	ch := transcript.NewChallenger()
	for t := range proof.TableProofs {
		ch.ObserveElements(capToElements(proof.TableProofs[t].Proof.TraceCap))
	}
	challenges := ctl.GetGrandProductChallengeSet(ch, c.all.Config.NumChallenges)

	shrunk := make([]*circuit.Proof, len(proof.TableProofs))
	var g errgroup.Group
	for t := range proof.TableProofs {
		t := t
		tp := &proof.TableProofs[t]
		chain, err := c.chainFor(ctl.TableID(t), tp.Proof.DegreeBits)
		if err != nil {
			return nil, err
		}
		finalState := proof.FinalChallengerState
		if t+1 < len(proof.TableProofs) {
			finalState = proof.TableProofs[t+1].InitChallengerState
		}
		g.Go(func() error {
			p, err := chain.prove(tp, challenges, finalState)
			if err != nil {
				return fmt.Errorf("recursion: table %s: %w", c.all.Name(ctl.TableID(t)), err)
			}
			shrunk[t] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	pw := circuit.NewPartialWitness()
	for t := range shrunk {
		if err := pw.SetProofWithPisTarget(c.root.tableProofs[t], shrunk[t]); err != nil {
			return nil, err
		}
		bits := proof.TableProofs[t].Proof.DegreeBits
		pw.SetTargetUint64(c.root.vkIndices[t], uint64(bits-c.ranges[t].MinBits))
	}
	if err := pw.SetTargets(c.root.publicValues, proof.PublicValues.Elements()); err != nil {
		return nil, err
	}

	rootProof, err := circuit.Prove(c.root.data, pw)
	if err != nil {
		return nil, err
	}
	return &Receipt{Kind: RootReceipt, PublicValues: proof.PublicValues, Proof: rootProof}, nil
}

// VerifyRoot checks a root receipt.
func (c *AllRecursiveCircuits) VerifyRoot(r *Receipt) error {
	if r.Kind != RootReceipt {
		return fmt.Errorf("recursion: expected a root receipt, got %q", r.Kind)
	}
	if err := circuit.Verify(c.root.data.VK, r.Proof); err != nil {
		return err
	}
	return r.checkPublicValues(0)
}

// ProveAggregation combines two receipts, each either a root receipt or a
// previous aggregation receipt, into one aggregation receipt spanning both.
func (c *AllRecursiveCircuits) ProveAggregation(lhs, rhs *Receipt) (*Receipt, error) {
	if lhs.PublicValues.AfterRoot != rhs.PublicValues.BeforeRoot {
		return nil, fmt.Errorf("recursion: children do not chain: left after-root differs from right before-root")
	}
	if lhs.PublicValues.Userdata != rhs.PublicValues.Userdata {
		return nil, fmt.Errorf("recursion: children disagree on userdata")
	}

	pw := circuit.NewPartialWitness()
	if err := c.setAggChild(pw, c.agg.lhs, lhs); err != nil {
		return nil, err
	}
	if err := c.setAggChild(pw, c.agg.rhs, rhs); err != nil {
		return nil, err
	}

	pv := stark.PublicValues{
		BeforeRoot: lhs.PublicValues.BeforeRoot,
		AfterRoot:  rhs.PublicValues.AfterRoot,
		Userdata:   lhs.PublicValues.Userdata,
	}
	if err := pw.SetTargets(c.agg.publicValues, pv.Elements()); err != nil {
		return nil, err
	}
	pw.SetVerifierKeyTarget(c.agg.ownVK, c.agg.data.VK)

	proof, err := circuit.Prove(c.agg.data, pw)
	if err != nil {
		return nil, err
	}
	return &Receipt{Kind: AggregationReceipt, PublicValues: pv, Proof: proof}, nil
}

func (c *AllRecursiveCircuits) setAggChild(pw *circuit.PartialWitness, child *aggChild, r *Receipt) error {
	switch r.Kind {
	case AggregationReceipt:
		pw.SetBoolTarget(child.isAgg, true)
		if err := pw.SetProofWithPisTarget(child.aggProof, r.Proof); err != nil {
			return err
		}
		return pw.SetProofWithPisTarget(child.rootProof, circuit.DummyProof(len(child.rootProof.PublicInputs)))
	case RootReceipt:
		pw.SetBoolTarget(child.isAgg, false)
		if err := pw.SetProofWithPisTarget(child.rootProof, r.Proof); err != nil {
			return err
		}
		return pw.SetProofWithPisTarget(child.aggProof, circuit.DummyProof(aggPINum))
	default:
		return fmt.Errorf("recursion: receipt kind %q cannot be aggregated", r.Kind)
	}
}

// VerifyAggregation checks an aggregation receipt, including that its
// embedded verifier data is the aggregation circuit's own key.
func (c *AllRecursiveCircuits) VerifyAggregation(r *Receipt) error {
	if r.Kind != AggregationReceipt {
		return fmt.Errorf("recursion: expected an aggregation receipt, got %q", r.Kind)
	}
	if err := circuit.Verify(c.agg.data.VK, r.Proof); err != nil {
		return err
	}
	if err := circuit.CheckCyclicProofVerifierKey(c.agg.data, r.Proof, c.agg.data.VK); err != nil {
		return err
	}
	return r.checkPublicValues(0)
}

// ProveBlock chains one block's aggregation receipt onto the previous
// block's receipt. parent is nil for the first block; its place is taken by
// a synthetic base proof and the chain's initial state is the aggregation
// receipt's own before-root.
func (c *AllRecursiveCircuits) ProveBlock(parent *Receipt, agg *Receipt) (*Receipt, error) {
	if agg.Kind != AggregationReceipt {
		return nil, fmt.Errorf("recursion: block proving expects an aggregation receipt, got %q", agg.Kind)
	}

	pw := circuit.NewPartialWitness()
	pv := stark.PublicValues{
		BeforeRoot: agg.PublicValues.BeforeRoot,
		AfterRoot:  agg.PublicValues.AfterRoot,
		Userdata:   agg.PublicValues.Userdata,
	}
	if parent != nil {
		if parent.Kind != BlockReceipt {
			return nil, fmt.Errorf("recursion: block parent must be a block receipt, got %q", parent.Kind)
		}
		if parent.PublicValues.AfterRoot != agg.PublicValues.BeforeRoot {
			return nil, fmt.Errorf("recursion: block does not chain: parent after-root differs from aggregated before-root")
		}
		if parent.PublicValues.Userdata != agg.PublicValues.Userdata {
			return nil, fmt.Errorf("recursion: block disagrees with parent on userdata")
		}
		pv.BeforeRoot = parent.PublicValues.BeforeRoot
		pw.SetBoolTarget(c.block.hasParent, true)
		if err := pw.SetProofWithPisTarget(c.block.parentProof, parent.Proof); err != nil {
			return nil, err
		}
	} else {
		pw.SetBoolTarget(c.block.hasParent, false)
		base := circuit.CyclicBaseProof(c.block.data, nil)
		if err := pw.SetProofWithPisTarget(c.block.parentProof, base); err != nil {
			return nil, err
		}
	}
	if err := pw.SetProofWithPisTarget(c.block.aggProof, agg.Proof); err != nil {
		return nil, err
	}
	if err := pw.SetTargets(c.block.publicValues, pv.Elements()); err != nil {
		return nil, err
	}
	pw.SetVerifierKeyTarget(c.block.ownVK, c.block.data.VK)

	proof, err := circuit.Prove(c.block.data, pw)
	if err != nil {
		return nil, err
	}
	return &Receipt{Kind: BlockReceipt, PublicValues: pv, Proof: proof}, nil
}

// VerifyBlock checks a block receipt.
func (c *AllRecursiveCircuits) VerifyBlock(r *Receipt) error {
	if r.Kind != BlockReceipt {
		return fmt.Errorf("recursion: expected a block receipt, got %q", r.Kind)
	}
	if err := circuit.Verify(c.block.data.VK, r.Proof); err != nil {
		return err
	}
	if err := circuit.CheckCyclicProofVerifierKey(c.block.data, r.Proof, c.block.data.VK); err != nil {
		return err
	}
	return r.checkPublicValues(0)
}
