package recursion

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/zeroproofs/multistark/circuit"
	"github.com/zeroproofs/multistark/ctl"
	"github.com/zeroproofs/multistark/stark"
)

// Preprocessing the full stack is the dominant startup cost, so the whole
// AllRecursiveCircuits serializes: a CBOR header carrying every witness
// target handle, followed by each compiled circuit in a fixed order.

var stackMagic = [4]byte{'m', 's', 'r', 's'}

const stackVersion uint16 = 1

type wrapperMeta struct {
	DegreeBits int
	TraceCap   []circuit.Target
	InitState  []circuit.Target
	FinalState []circuit.Target
	Challenges []circuit.Target
	ZsFirst    []circuit.Target
	IsLast     circuit.BoolTarget
	Local      []circuit.Target
	Next       []circuit.Target
	AuxLocal   []circuit.Target
	AuxNext    []circuit.Target
	AuxCap     []circuit.Target
}

type chainMeta struct {
	Wrapper wrapperMeta
	Stages  []*circuit.ProofWithPublicInputsTarget
}

type aggChildMeta struct {
	IsAgg        circuit.BoolTarget
	AggProof     *circuit.ProofWithPublicInputsTarget
	RootProof    *circuit.ProofWithPublicInputsTarget
	PublicValues []circuit.Target
}

type stackMeta struct {
	Ranges []SizeRange
	Chains [][]chainMeta

	RootTableProofs  []*circuit.ProofWithPublicInputsTarget
	RootVKIndices    []circuit.Target
	RootPublicValues []circuit.Target

	AggPublicValues []circuit.Target
	AggOwnVK        circuit.VerifierKeyTarget
	AggLhs          aggChildMeta
	AggRhs          aggChildMeta

	BlockPublicValues []circuit.Target
	BlockOwnVK        circuit.VerifierKeyTarget
	BlockHasParent    circuit.BoolTarget
	BlockParentProof  *circuit.ProofWithPublicInputsTarget
	BlockAggProof     *circuit.ProofWithPublicInputsTarget
}

// WriteTo serializes the preprocessed stack.
func (c *AllRecursiveCircuits) WriteTo(w io.Writer) (int64, error) {
	meta := stackMeta{
		Ranges:           c.ranges,
		Chains:           make([][]chainMeta, len(c.tables)),
		RootTableProofs:  c.root.tableProofs,
		RootVKIndices:    c.root.vkIndices,
		RootPublicValues: c.root.publicValues,
		AggPublicValues:  c.agg.publicValues,
		AggOwnVK:         c.agg.ownVK,
		AggLhs:           aggChildToMeta(c.agg.lhs),
		AggRhs:           aggChildToMeta(c.agg.rhs),

		BlockPublicValues: c.block.publicValues,
		BlockOwnVK:        c.block.ownVK,
		BlockHasParent:    c.block.hasParent,
		BlockParentProof:  c.block.parentProof,
		BlockAggProof:     c.block.aggProof,
	}
	for t, chains := range c.tables {
		meta.Chains[t] = make([]chainMeta, len(chains))
		for i, chain := range chains {
			cm := chainMeta{Wrapper: wrapperToMeta(chain.wrapper)}
			for _, s := range chain.stages {
				cm.Stages = append(cm.Stages, s.inner)
			}
			meta.Chains[t][i] = cm
		}
	}

	header, err := cbor.Marshal(&meta)
	if err != nil {
		return 0, fmt.Errorf("recursion: serialize: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(stackMagic[:])
	var hdr [6]byte
	binary.LittleEndian.PutUint16(hdr[0:2], stackVersion)
	binary.LittleEndian.PutUint32(hdr[2:6], uint32(len(header)))
	buf.Write(hdr[:])
	buf.Write(header)

	for _, chains := range c.tables {
		for _, chain := range chains {
			if _, err := chain.wrapper.data.WriteTo(&buf); err != nil {
				return 0, err
			}
			for _, s := range chain.stages {
				if _, err := s.data.WriteTo(&buf); err != nil {
					return 0, err
				}
			}
		}
	}
	for _, data := range []*circuit.CircuitData{c.root.data, c.agg.data, c.block.data} {
		if _, err := data.WriteTo(&buf); err != nil {
			return 0, err
		}
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// ReadAllRecursiveCircuits deserializes a preprocessed stack. The stark
// system must be the one the stack was built for; circuits are bound to its
// shape and the verifier keys act as integrity checks.
func ReadAllRecursiveCircuits(r io.Reader, all *stark.AllStark) (*AllRecursiveCircuits, error) {
	var head [10]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, fmt.Errorf("recursion: deserialize: %w", err)
	}
	if !bytes.Equal(head[:4], stackMagic[:]) {
		return nil, fmt.Errorf("recursion: deserialize: bad magic %q", head[:4])
	}
	if v := binary.LittleEndian.Uint16(head[4:6]); v != stackVersion {
		return nil, fmt.Errorf("recursion: deserialize: unsupported version %d", v)
	}
	size := binary.LittleEndian.Uint32(head[6:10])
	header := make([]byte, size)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("recursion: deserialize: %w", err)
	}
	var meta stackMeta
	if err := cbor.Unmarshal(header, &meta); err != nil {
		return nil, fmt.Errorf("recursion: deserialize: %w", err)
	}
	if len(meta.Ranges) != all.NumTables() || len(meta.Chains) != all.NumTables() {
		return nil, fmt.Errorf("recursion: deserialize: stack covers %d tables, system has %d",
			len(meta.Chains), all.NumTables())
	}

	c := &AllRecursiveCircuits{
		all:    all,
		ranges: meta.Ranges,
		tables: make([][]*tableChain, all.NumTables()),
	}
	for t := range meta.Chains {
		c.tables[t] = make([]*tableChain, len(meta.Chains[t]))
		for i := range meta.Chains[t] {
			cm := &meta.Chains[t][i]
			wrapperData, err := circuit.ReadCircuitData(r)
			if err != nil {
				return nil, err
			}
			chain := &tableChain{wrapper: metaToWrapper(cm.Wrapper, ctl.TableID(t), wrapperData)}
			for _, inner := range cm.Stages {
				stageData, err := circuit.ReadCircuitData(r)
				if err != nil {
					return nil, err
				}
				chain.stages = append(chain.stages, &shrinkStage{data: stageData, inner: inner})
			}
			c.tables[t][i] = chain
		}
	}

	rootData, err := circuit.ReadCircuitData(r)
	if err != nil {
		return nil, err
	}
	c.root = &rootCircuit{
		data:         rootData,
		tableProofs:  meta.RootTableProofs,
		vkIndices:    meta.RootVKIndices,
		publicValues: meta.RootPublicValues,
	}

	aggData, err := circuit.ReadCircuitData(r)
	if err != nil {
		return nil, err
	}
	c.agg = &aggregationCircuit{
		data:         aggData,
		publicValues: meta.AggPublicValues,
		ownVK:        meta.AggOwnVK,
		lhs:          metaToAggChild(meta.AggLhs),
		rhs:          metaToAggChild(meta.AggRhs),
	}

	blockData, err := circuit.ReadCircuitData(r)
	if err != nil {
		return nil, err
	}
	c.block = &blockCircuit{
		data:         blockData,
		publicValues: meta.BlockPublicValues,
		ownVK:        meta.BlockOwnVK,
		hasParent:    meta.BlockHasParent,
		parentProof:  meta.BlockParentProof,
		aggProof:     meta.BlockAggProof,
	}
	return c, nil
}

func wrapperToMeta(w *tableWrapper) wrapperMeta {
	return wrapperMeta{
		DegreeBits: w.degreeBits,
		TraceCap:   w.traceCap,
		InitState:  w.initState,
		FinalState: w.finalState,
		Challenges: w.challenges,
		ZsFirst:    w.zsFirst,
		IsLast:     w.isLast,
		Local:      w.local,
		Next:       w.next,
		AuxLocal:   w.auxLocal,
		AuxNext:    w.auxNext,
		AuxCap:     w.auxCap,
	}
}

func metaToWrapper(m wrapperMeta, table ctl.TableID, data *circuit.CircuitData) *tableWrapper {
	return &tableWrapper{
		table:      table,
		degreeBits: m.DegreeBits,
		layout:     wrapperLayout{numChallenges: len(m.Challenges) / 2, numZs: len(m.ZsFirst)},
		data:       data,
		traceCap:   m.TraceCap,
		initState:  m.InitState,
		finalState: m.FinalState,
		challenges: m.Challenges,
		zsFirst:    m.ZsFirst,
		isLast:     m.IsLast,
		local:      m.Local,
		next:       m.Next,
		auxLocal:   m.AuxLocal,
		auxNext:    m.AuxNext,
		auxCap:     m.AuxCap,
	}
}

func aggChildToMeta(c *aggChild) aggChildMeta {
	return aggChildMeta{
		IsAgg:        c.isAgg,
		AggProof:     c.aggProof,
		RootProof:    c.rootProof,
		PublicValues: c.publicValues,
	}
}

func metaToAggChild(m aggChildMeta) *aggChild {
	return &aggChild{
		isAgg:        m.IsAgg,
		aggProof:     m.AggProof,
		rootProof:    m.RootProof,
		publicValues: m.PublicValues,
	}
}
