package oid

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_RoundTripsThroughString(t *testing.T) {
	o := Of([]byte("hello mediavault"))
	parsed, err := Parse(o.String())
	require.NoError(t, err)
	assert.Equal(t, o, parsed)
}

func TestParse_RejectsWrongLength(t *testing.T) {
	_, err := Parse("deadbeef")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestParsePrefix_FullLength(t *testing.T) {
	o := Of([]byte("full length oid"))
	got, err := ParsePrefix(context.Background(), o.String(), nil)
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

type fakeResolver struct {
	matches []Oid
	err     error
}

func (f fakeResolver) ResolvePrefix(ctx context.Context, prefix string) ([]Oid, error) {
	return f.matches, f.err
}

func TestParsePrefix_Unique(t *testing.T) {
	o := Of([]byte("x"))
	got, err := ParsePrefix(context.Background(), o.String()[:8], fakeResolver{matches: []Oid{o}})
	require.NoError(t, err)
	assert.Equal(t, o, got)
}

func TestParsePrefix_Ambiguous(t *testing.T) {
	_, err := ParsePrefix(context.Background(), "abcdefa", fakeResolver{matches: []Oid{Of([]byte("a")), Of([]byte("b"))}})
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestParsePrefix_TooShort(t *testing.T) {
	_, err := ParsePrefix(context.Background(), "abc", fakeResolver{})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestHashReader_MatchesOf(t *testing.T) {
	data := bytes.Repeat([]byte{0x42}, 5000)
	o, n, err := HashReader(context.Background(), bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, Of(data), o)
}

func TestVerify(t *testing.T) {
	data := []byte("verify me")
	assert.True(t, Verify(data, Of(data)))
	assert.False(t, Verify(data, Of([]byte("other"))))
}

func TestHasher_Sum(t *testing.T) {
	hs := NewHasher()
	_, _ = hs.Write([]byte("abc"))
	_, _ = hs.Write([]byte("def"))
	assert.Equal(t, Of([]byte("abcdef")), hs.Sum())
	assert.Equal(t, int64(6), hs.Written())
}
