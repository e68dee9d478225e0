package delta

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/mediavault/mediavault-core/internal/oid"
)

// Applier reconstructs a target object from a base object, a Delta, and the
// delta's literal-data stream, verifying the reconstructed bytes hash to the
// expected oid before returning (spec §4.4: "MUST verify sha256(T) ==
// expected_oid before returning").
type Applier struct{}

// NewApplier returns a ready-to-use Applier. It carries no state.
func NewApplier() *Applier {
	return &Applier{}
}

// Apply reconstructs the target object. base must support seeking since
// Copy instructions read arbitrary offsets; literalData supplies the bytes
// referenced by Insert instructions, read once in full.
func (a *Applier) Apply(ctx context.Context, base io.ReadSeeker, delta *Delta, literalData io.Reader, expected oid.Oid) ([]byte, error) {
	insertData, err := io.ReadAll(literalData)
	if err != nil {
		return nil, fmt.Errorf("delta: read literal data: %w", err)
	}

	result := make([]byte, delta.TotalSize)
	var insertOffset int64

	for _, inst := range delta.Instructions {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch inst.Type {
		case InstructionCopy:
			if _, err := base.Seek(inst.SourceOffset, io.SeekStart); err != nil {
				return nil, fmt.Errorf("delta: seek base: %w", err)
			}
			if _, err := io.ReadFull(base, result[inst.TargetOffset:inst.TargetOffset+inst.Length]); err != nil {
				return nil, fmt.Errorf("delta: read base: %w", err)
			}
		case InstructionInsert:
			end := insertOffset + inst.Length
			if end > int64(len(insertData)) {
				return nil, fmt.Errorf("delta: literal data exhausted")
			}
			copy(result[inst.TargetOffset:], insertData[insertOffset:end])
			insertOffset = end
		default:
			return nil, fmt.Errorf("delta: unknown instruction type %q", inst.Type)
		}
	}

	if !expected.IsZero() && !oid.Verify(result, expected) {
		return nil, fmt.Errorf("delta: reconstructed object does not match expected oid %s", expected)
	}

	return result, nil
}

// applyToBuffer is a convenience used by tests: wraps a []byte base in a
// *bytes.Reader satisfying io.ReadSeeker.
func applyToBuffer(a *Applier, ctx context.Context, base []byte, delta *Delta, literalData []byte, expected oid.Oid) ([]byte, error) {
	return a.Apply(ctx, bytes.NewReader(base), delta, bytes.NewReader(literalData), expected)
}
