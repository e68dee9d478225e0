package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateChain_AcceptsGoodDelta(t *testing.T) {
	d := &Delta{TotalSize: 1000, DeltaSize: 100}
	err := EvaluateChain(d, 3, DefaultMaxChainDepth, DefaultSavingsFloor)
	assert.NoError(t, err)
	assert.Equal(t, 4, d.ChainDepth)
}

func TestEvaluateChain_RejectsDepthOverCap(t *testing.T) {
	d := &Delta{TotalSize: 1000, DeltaSize: 100}
	err := EvaluateChain(d, DefaultMaxChainDepth, DefaultMaxChainDepth, DefaultSavingsFloor)
	assert.ErrorIs(t, err, ErrChainDepthExceeded)
}

func TestEvaluateChain_RejectsBelowSavingsFloor(t *testing.T) {
	d := &Delta{TotalSize: 1000, DeltaSize: 950}
	err := EvaluateChain(d, 0, DefaultMaxChainDepth, DefaultSavingsFloor)
	assert.ErrorIs(t, err, ErrBelowSavingsFloor)
}
