package worker

import (
	"math/rand/v2"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(values []int32) int64 {
	var total int64
	for _, v := range values {
		total += int64(v)
	}
	return total
}

func TestApplyDouble(t *testing.T) {
	values := []int32{1, -2, 3, -4, 5, 6, 7, 8, 9, 10}
	before := sum(values)

	_, err := Apply(OpDouble, 0, values)
	require.NoError(t, err)
	assert.Equal(t, []int32{2, -4, 6, -8, 10, 12, 14, 16, 18, 20}, values)
	assert.Equal(t, 2*before, sum(values))
}

func TestApplyDoubleWraps(t *testing.T) {
	values := []int32{1 << 30, -(1 << 31)}
	_, err := Apply(OpDouble, 0, values)
	require.NoError(t, err)
	assert.Equal(t, []int32{-(1 << 31), 0}, values)
}

func TestApplySort(t *testing.T) {
	values := []int32{5, 3, 5, -1, 0}
	_, err := Apply(OpSort, 1, values)
	require.NoError(t, err)
	assert.Equal(t, []int32{-1, 0, 3, 5, 5}, values)

	again := slices.Clone(values)
	_, err = Apply(OpSort, 1, again)
	require.NoError(t, err)
	assert.Equal(t, values, again, "sorting twice changes nothing")
}

func TestApplyReverseIsInvolution(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	values := make([]int32, 10)
	for i := range values {
		values[i] = rng.Int32N(101) - 50
	}
	orig := slices.Clone(values)

	_, err := Apply(OpReverse, 2, values)
	require.NoError(t, err)
	assert.Equal(t, orig[0], values[9])
	assert.Equal(t, orig[9], values[0])

	_, err = Apply(OpReverse, 2, values)
	require.NoError(t, err)
	assert.Equal(t, orig, values)
}

func TestApplyZeroNegatives(t *testing.T) {
	values := []int32{-3, 0, 4, -1, 9}
	_, err := Apply(OpZeroNegatives, 9, values)
	require.NoError(t, err)
	assert.Equal(t, []int32{0, 0, 4, 0, 9}, values)
	for _, v := range values {
		assert.GreaterOrEqual(t, v, int32(0))
	}
}

func TestApplyReadOnlyOps(t *testing.T) {
	values := []int32{-7, 12, 3, 12, -40}
	orig := slices.Clone(values)

	res, err := Apply(OpMax, 4, values)
	require.NoError(t, err)
	assert.Equal(t, int32(12), res.Max)
	assert.Equal(t, 4, res.Region)

	res, err = Apply(OpAverage, 4, values)
	require.NoError(t, err)
	assert.InDelta(t, -4.0, res.Mean, 1e-9)

	assert.Equal(t, orig, values)
	assert.False(t, OpMax.Mutates())
	assert.False(t, OpAverage.Mutates())
	assert.True(t, OpSort.Mutates())
}

func TestApplyEmptyRegion(t *testing.T) {
	for _, op := range Ops {
		_, err := Apply(op, 0, nil)
		assert.NoError(t, err, op.String())
	}
}

func TestApplyUnknownOp(t *testing.T) {
	_, err := Apply(Op(0), 0, []int32{1})
	assert.ErrorIs(t, err, ErrUnknownOp)
	_, err = Apply(Op(42), 0, []int32{1})
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestParseOp(t *testing.T) {
	cases := map[string]Op{
		"max":            OpMax,
		"M":              OpMax,
		"Average":        OpAverage,
		"avg":            OpAverage,
		"P":              OpAverage,
		"sort":           OpSort,
		"O":              OpSort,
		"double":         OpDouble,
		"zero-negatives": OpZeroNegatives,
		"zero_negatives": OpZeroNegatives,
		"N":              OpZeroNegatives,
		" reverse ":      OpReverse,
		"I":              OpReverse,
	}
	for in, want := range cases {
		got, err := ParseOp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOp("median")
	assert.ErrorIs(t, err, ErrUnknownOp)
}

func TestOpText(t *testing.T) {
	for _, op := range Ops {
		text, err := op.MarshalText()
		require.NoError(t, err)
		var back Op
		require.NoError(t, back.UnmarshalText(text))
		assert.Equal(t, op, back)
	}
	_, err := Op(0).MarshalText()
	assert.ErrorIs(t, err, ErrUnknownOp)
	assert.Equal(t, "op(9)", Op(9).String())
	assert.Equal(t, byte('?'), Op(9).Code())
}
