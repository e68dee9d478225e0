package delta

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediavault/mediavault-core/internal/chunk"
	"github.com/mediavault/mediavault-core/internal/oid"
)

func TestApplier_ReconstructsTarget(t *testing.T) {
	base := bytes.Repeat([]byte("0123456789"), 5000)
	target := append(append([]byte{}, base[:30000]...), []byte("a distinctive new suffix section")...)

	c := NewComputer(chunk.NewFastCDC(chunk.SmallParams))
	d, err := c.Compute(context.Background(), bytes.NewReader(base), bytes.NewReader(target))
	require.NoError(t, err)

	literal, err := ExtractLiteralData(d, target)
	require.NoError(t, err)

	applier := NewApplier()
	got, err := applyToBuffer(applier, context.Background(), base, d, literal, oid.Of(target))
	require.NoError(t, err)
	assert.Equal(t, target, got)
}

func TestApplier_RejectsCorruptReconstruction(t *testing.T) {
	base := []byte("base content")
	target := []byte("base content plus more")

	c := NewComputer(chunk.NewFastCDC(chunk.SmallParams))
	d, err := c.Compute(context.Background(), bytes.NewReader(base), bytes.NewReader(target))
	require.NoError(t, err)

	literal, err := ExtractLiteralData(d, target)
	require.NoError(t, err)

	applier := NewApplier()
	wrongExpected := oid.Of([]byte("not the target"))
	_, err = applyToBuffer(applier, context.Background(), base, d, literal, wrongExpected)
	assert.Error(t, err)
}
