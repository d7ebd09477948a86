package transcript_test

import (
	"testing"

	"github.com/consensys/gnark-crypto/field/goldilocks"
	"github.com/stretchr/testify/assert"

	"github.com/zeroproofs/multistark/transcript"
)

func TestChallengerDeterminism(t *testing.T) {
	c0 := transcript.NewChallenger()
	c1 := transcript.NewChallenger()

	var x goldilocks.Element
	x.SetUint64(42)
	c0.ObserveElement(x)
	c1.ObserveElement(x)

	for i := 0; i < 16; i++ {
		e0 := c0.SampleElement()
		e1 := c1.SampleElement()
		assert.True(t, e0.Equal(&e1))
	}

	assert.True(t, c0.Compact().Equal(c1.Compact()))
}

func TestChallengerDiverges(t *testing.T) {
	c0 := transcript.NewChallenger()
	c1 := transcript.NewChallenger()

	c0.ObserveUint64(1)
	c1.ObserveUint64(2)

	e0 := c0.SampleElement()
	e1 := c1.SampleElement()
	assert.False(t, e0.Equal(&e1))
	assert.False(t, c0.Compact().Equal(c1.Compact()))
}

func TestChallengerObserveAfterSample(t *testing.T) {
	c0 := transcript.NewChallenger()
	c1 := transcript.NewChallenger()

	c0.ObserveUint64(7)
	c1.ObserveUint64(7)
	_ = c0.SampleElement()
	_ = c1.SampleElement()

	// Fresh observations must change subsequent samples.
	c0.ObserveUint64(8)
	c1.ObserveUint64(9)
	e0 := c0.SampleElement()
	e1 := c1.SampleElement()
	assert.False(t, e0.Equal(&e1))
}

func TestSampleIndex(t *testing.T) {
	c := transcript.NewChallenger()
	c.ObserveUint64(3)
	for i := 0; i < 100; i++ {
		idx := c.SampleIndex(7)
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 7)
	}
	assert.Panics(t, func() { c.SampleIndex(0) })
}
