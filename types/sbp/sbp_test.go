package sbp

import (
	"testing"

	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSbpParallel(t *testing.T) {
	assert.True(t, Split(1).Equal(Split(1)))
	assert.False(t, Split(1).Equal(Split(0)))
	assert.True(t, Broadcast().Equal(SbpParallel{Kind: BroadcastKind, Axis: 3}), "axis is ignored unless split")
	assert.False(t, Broadcast().Equal(PartialSum()))

	testCases := []struct {
		str  string
		want SbpParallel
	}{
		{"S(0)", Split(0)},
		{" S(12) ", Split(12)},
		{"B", Broadcast()},
		{"P", PartialSum()},
	}
	for _, tc := range testCases {
		t.Run(tc.str, func(t *testing.T) {
			got, err := Parse(tc.str)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
	for _, bad := range []string{"", "S", "S(-1)", "S(x)", "Q"} {
		_, err := Parse(bad)
		assert.ErrorIs(t, err, types.ErrConfiguration, "parsing %q", bad)
	}
}

func TestParallelDistribution(t *testing.T) {
	dist, err := ParseDistribution("(S(0), B)")
	require.NoError(t, err)
	assert.Equal(t, ParallelDistribution{Split(0), Broadcast()}, dist)
	assert.Equal(t, "(S(0), B)", dist.String())

	dist2, err := ParseDistribution("S(0),B")
	require.NoError(t, err)
	assert.True(t, dist.Equal(dist2))
	assert.False(t, dist.Equal(ParallelDistribution{Split(0)}))

	single, err := ParseDistribution("S(1)")
	require.NoError(t, err)
	assert.Equal(t, ParallelDistribution{Split(1)}, single)

	clone := dist.Clone()
	clone[0] = PartialSum()
	assert.Equal(t, Split(0), dist[0])
}

func TestValidate(t *testing.T) {
	desc := placement.MustNewParallelDesc(placement.ParallelConf{
		DeviceTag: "cpu", DeviceNames: []string{"0:0-5"}, Hierarchy: []int{2, 3}})
	shape := shapes.Make(dtypes.Float32, 6, 4)

	require.NoError(t, ParallelDistribution{Split(0), Split(1)}.Validate(desc, shape))
	require.NoError(t, ParallelDistribution{Split(5), B()}.Validate(desc, shapes.Invalid()),
		"split axes can't be checked without a shape")

	err := ParallelDistribution{Split(0)}.Validate(desc, shape)
	assert.ErrorIs(t, err, types.ErrConfiguration)
	assert.Contains(t, err.Error(), "rank 2")

	err = ParallelDistribution{Split(0), Split(2)}.Validate(desc, shape)
	assert.ErrorIs(t, err, types.ErrConfiguration)

	err = ParallelDistribution{Split(0), {}}.Validate(desc, shape)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

func TestYAML(t *testing.T) {
	var got struct {
		Sbp  SbpParallel          `yaml:"sbp"`
		Dist ParallelDistribution `yaml:"dist"`
	}
	err := yaml.Unmarshal([]byte("sbp: S(1)\ndist: [S(0), B, P]\n"), &got)
	require.NoError(t, err)
	assert.Equal(t, Split(1), got.Sbp)
	assert.Equal(t, ParallelDistribution{Split(0), Broadcast(), PartialSum()}, got.Dist)

	out, err := yaml.Marshal(got.Dist)
	require.NoError(t, err)
	assert.Equal(t, "- S(0)\n- B\n- P\n", string(out))

	err = yaml.Unmarshal([]byte("sbp: X\n"), &got)
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

// B is a shortcut used in the tables above.
func B() SbpParallel { return Broadcast() }
