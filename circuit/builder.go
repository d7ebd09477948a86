package circuit

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/num"
)

// Config holds circuit construction parameters.
type Config struct {
	// MinDegreeBits pads the compiled circuit up to at least this degree.
	MinDegreeBits int
}

// DefaultConfig returns the standard circuit configuration.
func DefaultConfig() Config {
	return Config{MinDegreeBits: 2}
}

// monomial is coeff times a product of wires. An empty wire list denotes a
// constant term.
type monomial struct {
	Coeff goldilocks.Element
	Wires []Target
}

// gate is a constraint: the sum of its monomials must vanish on the witness.
type gate struct {
	Monomials []monomial
}

// Builder incrementally constructs a circuit. Call Compile exactly once; the
// builder must not be reused afterwards.
type Builder struct {
	config Config

	numWires   int
	gates      []gate
	generators []generator

	publicInputs []Target
	cyclicVK     *VerifierKeyTarget
	// Positions of the cyclic verifier key wires within publicInputs.
	cyclicVKIndices [DigestLen]int

	numProofSlots  int
	numChallengers uint64

	constants map[uint64]Target
	zero      Target
	one       Target

	// extraGates accounts for padding and for the modeled cost of proof
	// verification machinery that is enforced natively rather than as
	// explicit monomial gates.
	extraGates int

	compiled bool
}

// NewBuilder returns a Builder for the given configuration.
func NewBuilder(config Config) *Builder {
	b := &Builder{
		config:    config,
		constants: make(map[uint64]Target),
	}
	b.zero = b.Constant(goldilocks.Element{})
	b.one = b.Constant(goldilocks.One())
	return b
}

// AddVirtualTarget allocates a fresh unconstrained wire.
func (b *Builder) AddVirtualTarget() Target {
	t := Target(b.numWires)
	b.numWires++
	return t
}

// AddVirtualTargets allocates n fresh wires.
func (b *Builder) AddVirtualTargets(n int) []Target {
	ts := make([]Target, n)
	for i := range ts {
		ts[i] = b.AddVirtualTarget()
	}
	return ts
}

// AddVirtualBoolTarget allocates a wire constrained to 0 or 1.
func (b *Builder) AddVirtualBoolTarget() BoolTarget {
	t := b.AddVirtualTarget()
	// t * (t - 1) == 0
	b.addGate(gate{Monomials: []monomial{
		{Coeff: goldilocks.One(), Wires: []Target{t, t}},
		{Coeff: negOne(), Wires: []Target{t}},
	}})
	return BoolTarget{T: t}
}

// Constant returns a wire pinned to v. Constants are pooled.
func (b *Builder) Constant(v goldilocks.Element) Target {
	key := v.Bits()[0]
	if t, ok := b.constants[key]; ok {
		return t
	}
	t := b.AddVirtualTarget()
	// t - v == 0
	b.addGate(gate{Monomials: []monomial{
		{Coeff: goldilocks.One(), Wires: []Target{t}},
		{Coeff: neg(v)},
	}})
	b.generators = append(b.generators, generator{
		Kind:  genConstant,
		Out:   []Target{t},
		Elems: []goldilocks.Element{v},
	})
	b.constants[key] = t
	return t
}

// ConstantUint64 returns a wire pinned to v.
func (b *Builder) ConstantUint64(v uint64) Target {
	var e goldilocks.Element
	e.SetUint64(v)
	return b.Constant(e)
}

// Zero returns the pooled zero wire.
func (b *Builder) Zero() Target { return b.zero }

// One returns the pooled one wire.
func (b *Builder) One() Target { return b.one }

func (b *Builder) addGate(g gate) {
	b.gates = append(b.gates, g)
}

// newArith allocates an output wire out, constrains out to equal the sum of
// the given monomials, and registers a generator computing it.
func (b *Builder) newArith(ms []monomial) Target {
	out := b.AddVirtualTarget()
	cs := make([]monomial, 0, len(ms)+1)
	cs = append(cs, monomial{Coeff: negOne(), Wires: []Target{out}})
	cs = append(cs, ms...)
	b.addGate(gate{Monomials: cs})

	gen := generator{Kind: genArith, Out: []Target{out}}
	for _, m := range ms {
		gen.Elems = append(gen.Elems, m.Coeff)
		gen.Aux = append(gen.Aux, uint64(len(m.Wires)))
		gen.In = append(gen.In, m.Wires...)
	}
	b.generators = append(b.generators, gen)
	return out
}

// Add returns a wire holding x + y.
func (b *Builder) Add(x, y Target) Target {
	return b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x}},
		{Coeff: goldilocks.One(), Wires: []Target{y}},
	})
}

// AddMany returns a wire holding the sum of ts. The sum of no wires is zero.
func (b *Builder) AddMany(ts []Target) Target {
	if len(ts) == 0 {
		return b.zero
	}
	ms := make([]monomial, len(ts))
	for i, t := range ts {
		ms[i] = monomial{Coeff: goldilocks.One(), Wires: []Target{t}}
	}
	return b.newArith(ms)
}

// Sub returns a wire holding x - y.
func (b *Builder) Sub(x, y Target) Target {
	return b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x}},
		{Coeff: negOne(), Wires: []Target{y}},
	})
}

// Mul returns a wire holding x * y.
func (b *Builder) Mul(x, y Target) Target {
	return b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x, y}},
	})
}

// MulSub returns a wire holding x*y - z.
func (b *Builder) MulSub(x, y, z Target) Target {
	return b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x, y}},
		{Coeff: negOne(), Wires: []Target{z}},
	})
}

// Arithmetic returns a wire holding c0*x*y + c1*z.
func (b *Builder) Arithmetic(c0, c1 goldilocks.Element, x, y, z Target) Target {
	return b.newArith([]monomial{
		{Coeff: c0, Wires: []Target{x, y}},
		{Coeff: c1, Wires: []Target{z}},
	})
}

// ConstMulAdd returns a wire holding c*x + y.
func (b *Builder) ConstMulAdd(c goldilocks.Element, x, y Target) Target {
	return b.newArith([]monomial{
		{Coeff: c, Wires: []Target{x}},
		{Coeff: goldilocks.One(), Wires: []Target{y}},
	})
}

// AddConst returns a wire holding x + c.
func (b *Builder) AddConst(x Target, c goldilocks.Element) Target {
	return b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x}},
		{Coeff: c},
	})
}

// Select returns a wire holding x when cond is 1 and y otherwise.
func (b *Builder) Select(cond BoolTarget, x, y Target) Target {
	// cond*x + (1-cond)*y = cond*x - cond*y + y
	out := b.newArith([]monomial{
		{Coeff: goldilocks.One(), Wires: []Target{cond.T, x}},
		{Coeff: negOne(), Wires: []Target{cond.T, y}},
		{Coeff: goldilocks.One(), Wires: []Target{y}},
	})
	return out
}

// Connect constrains x and y to be equal.
func (b *Builder) Connect(x, y Target) {
	b.addGate(gate{Monomials: []monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x}},
		{Coeff: negOne(), Wires: []Target{y}},
	}})
}

// AssertZero constrains x to be zero.
func (b *Builder) AssertZero(x Target) {
	b.addGate(gate{Monomials: []monomial{
		{Coeff: goldilocks.One(), Wires: []Target{x}},
	}})
}

// AssertOne constrains x to be one.
func (b *Builder) AssertOne(x Target) {
	b.Connect(x, b.one)
}

// RegisterPublicInput appends t to the circuit's public input list.
func (b *Builder) RegisterPublicInput(t Target) {
	b.publicInputs = append(b.publicInputs, t)
}

// RegisterPublicInputs appends ts to the circuit's public input list.
func (b *Builder) RegisterPublicInputs(ts []Target) {
	b.publicInputs = append(b.publicInputs, ts...)
}

// AddVerifierDataPublicInputs allocates the circuit's own verifier key as
// public input wires. Cyclic verification dispatches on these wires; the
// caller of a cyclic prover binds them to the compiled key with
// [PartialWitness.SetVerifierKeyTarget] and outer verifiers check them with
// [CheckCyclicProofVerifierKey]. May be called at most once.
func (b *Builder) AddVerifierDataPublicInputs() VerifierKeyTarget {
	if b.cyclicVK != nil {
		panic("circuit: verifier data public inputs already registered")
	}
	var vkt VerifierKeyTarget
	for i := 0; i < DigestLen; i++ {
		vkt.Digest[i] = b.AddVirtualTarget()
		b.cyclicVKIndices[i] = len(b.publicInputs)
		b.RegisterPublicInput(vkt.Digest[i])
	}
	b.cyclicVK = &vkt
	return vkt
}

// AddNoops pads the circuit with n empty gates.
func (b *Builder) AddNoops(n int) {
	b.extraGates += n
}

// PadToDegreeBits ensures the compiled circuit's degree is at least 2^bits.
func (b *Builder) PadToDegreeBits(bits int) {
	if bits > b.config.MinDegreeBits {
		b.config.MinDegreeBits = bits
	}
}

// NumGates returns the current gate count, including modeled verification
// cost and padding.
func (b *Builder) NumGates() int {
	return len(b.gates) + b.extraGates
}

// EstimatedDegreeBits returns the degree the circuit would compile to now.
func (b *Builder) EstimatedDegreeBits() int {
	bits := num.Log2Ceil(b.NumGates())
	if bits < b.config.MinDegreeBits {
		bits = b.config.MinDegreeBits
	}
	return bits
}

// Compile finalizes the circuit into a CircuitData.
func (b *Builder) Compile() (*CircuitData, error) {
	if b.compiled {
		return nil, fmt.Errorf("circuit: builder already compiled")
	}
	b.compiled = true

	data := &CircuitData{
		Config:        b.config,
		NumWires:      b.numWires,
		Gates:         b.gates,
		Generators:    b.generators,
		PublicInputs:  b.publicInputs,
		NumProofSlots: b.numProofSlots,
		NumGates:      b.NumGates(),
		DegreeBits:    b.EstimatedDegreeBits(),
	}
	if b.cyclicVK != nil {
		data.CyclicVK = b.cyclicVK
		data.CyclicVKIndices = b.cyclicVKIndices[:]
	}
	vk, err := computeVerifierKey(data)
	if err != nil {
		return nil, fmt.Errorf("circuit: compile: %w", err)
	}
	data.VK = vk
	return data, nil
}

func neg(v goldilocks.Element) goldilocks.Element {
	var out goldilocks.Element
	out.Neg(&v)
	return out
}

func negOne() goldilocks.Element {
	one := goldilocks.One()
	return neg(one)
}
