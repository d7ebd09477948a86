package num_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/zeroproofs/multistark/num"
)

func TestCeilDiv(t *testing.T) {
	assert.Equal(t, 0, num.CeilDiv(0, 2))
	assert.Equal(t, 1, num.CeilDiv(1, 2))
	assert.Equal(t, 1, num.CeilDiv(2, 2))
	assert.Equal(t, 2, num.CeilDiv(3, 2))
	assert.Equal(t, 4, num.CeilDiv(7, 2))
}

func TestLog2(t *testing.T) {
	assert.Equal(t, 0, num.Log2Ceil(1))
	assert.Equal(t, 1, num.Log2Ceil(2))
	assert.Equal(t, 2, num.Log2Ceil(3))
	assert.Equal(t, 13, num.Log2Ceil(1<<13))
	assert.Equal(t, 14, num.Log2Ceil(1<<13+1))

	assert.Equal(t, 0, num.Log2Floor(1))
	assert.Equal(t, 1, num.Log2Floor(3))
	assert.Equal(t, 13, num.Log2Floor(1<<13))
}

func TestPowerOfTwo(t *testing.T) {
	assert.True(t, num.IsPowerOfTwo(1))
	assert.True(t, num.IsPowerOfTwo(1<<20))
	assert.False(t, num.IsPowerOfTwo(0))
	assert.False(t, num.IsPowerOfTwo(6))

	assert.Equal(t, 1, num.NextPowerOfTwo(0))
	assert.Equal(t, 4, num.NextPowerOfTwo(3))
	assert.Equal(t, 8, num.NextPowerOfTwo(8))
}
