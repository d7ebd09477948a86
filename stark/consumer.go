package stark

import (
	"fmt"

	"github.com/consensys/gnark-crypto/field/goldilocks"

	"github.com/zeroproofs/multistark/circuit"
)

// Consumer checks constraint evaluations at one row of a table's domain,
// recording the first violation. It implements ctl.ConstraintConsumer.
type Consumer struct {
	isLastRow bool
	count     int
	err       error
}

// NewConsumer returns a consumer for a row; isLastRow scopes last-row and
// transition constraints.
func NewConsumer(isLastRow bool) *Consumer {
	return &Consumer{isLastRow: isLastRow}
}

func (c *Consumer) fail(v goldilocks.Element) {
	if c.err == nil {
		c.err = fmt.Errorf("constraint %d evaluates to %s", c.count, v.String())
	}
}

// Constraint checks a constraint holding on every row.
func (c *Consumer) Constraint(v goldilocks.Element) {
	if !v.IsZero() {
		c.fail(v)
	}
	c.count++
}

// ConstraintTransition checks a constraint holding on all rows but the last.
func (c *Consumer) ConstraintTransition(v goldilocks.Element) {
	if !c.isLastRow && !v.IsZero() {
		c.fail(v)
	}
	c.count++
}

// ConstraintLastRow checks a constraint holding on the last row only.
func (c *Consumer) ConstraintLastRow(v goldilocks.Element) {
	if c.isLastRow && !v.IsZero() {
		c.fail(v)
	}
	c.count++
}

// Err returns the first recorded violation.
func (c *Consumer) Err() error { return c.err }

// RecursiveConsumer emits constraint checks as circuit gates, gated by a
// last-row selector wire so one compiled circuit serves every query row. It
// implements ctl.RecursiveConstraintConsumer.
type RecursiveConsumer struct {
	IsLastRow circuit.BoolTarget
}

// NewRecursiveConsumer returns a consumer gated by the given selector.
func NewRecursiveConsumer(isLastRow circuit.BoolTarget) *RecursiveConsumer {
	return &RecursiveConsumer{IsLastRow: isLastRow}
}

// Constraint asserts v on every row.
func (c *RecursiveConsumer) Constraint(b *circuit.Builder, v circuit.Target) {
	b.AssertZero(v)
}

// ConstraintTransition asserts (1 - isLast) * v.
func (c *RecursiveConsumer) ConstraintTransition(b *circuit.Builder, v circuit.Target) {
	notLast := b.Sub(b.One(), c.IsLastRow.T)
	b.AssertZero(b.Mul(notLast, v))
}

// ConstraintLastRow asserts isLast * v.
func (c *RecursiveConsumer) ConstraintLastRow(b *circuit.Builder, v circuit.Target) {
	b.AssertZero(b.Mul(c.IsLastRow.T, v))
}
