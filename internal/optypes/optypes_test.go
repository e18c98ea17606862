package optypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpType(t *testing.T) {
	assert.Equal(t, "SliceBoxingAdd", SliceBoxingAdd.String())
	assert.Equal(t, "stablehlo.all_gather", AllGather.ToStableHLO())
	assert.Equal(t, "stablehlo.reduce_scatter", ReduceScatter.ToStableHLO())
	assert.Equal(t, "stablehlo.collective_permute", Copy.ToStableHLO())

	op, err := OpTypeString("slicebox" + "ingcopy")
	require.NoError(t, err)
	assert.Equal(t, SliceBoxingCopy, op)
	_, err = OpTypeString("Foo")
	assert.Error(t, err)

	assert.True(t, AllToAll.IsCollective())
	assert.False(t, Slice.IsCollective())
	assert.Len(t, OpTypeValues(), int(Last)+1)
}
