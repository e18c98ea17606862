package boxing

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	S = sbp.Split
	B = sbp.Broadcast
	P = sbp.PartialSum
)

func dist(sbps ...sbp.SbpParallel) sbp.ParallelDistribution { return sbps }

func TestReduceParallelAxes(t *testing.T) {
	tests := []struct {
		name          string
		hierarchy     []int
		dist          sbp.ParallelDistribution
		wantHierarchy []int
		wantDist      sbp.ParallelDistribution
	}{
		{"merge", []int{2, 3}, dist(S(0), S(0)), []int{6}, dist(S(0))},
		{"blocked", []int{2, 3}, dist(S(0), B()), []int{2, 3}, dist(S(0), B())},
		{"different split axes", []int{2, 3}, dist(S(0), S(1)), []int{2, 3}, dist(S(0), S(1))},
		{"partial merge", []int{2, 2, 2}, dist(B(), B(), S(1)), []int{4, 2}, dist(B(), S(1))},
		{"runs", []int{2, 2, 3, 5}, dist(P(), P(), B(), B()), []int{4, 15}, dist(P(), B())},
		{"rank 1", []int{4}, dist(P()), []int{4}, dist(P())},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, d := ReduceParallelAxes(tt.hierarchy, tt.dist)
			assert.Equal(t, tt.wantHierarchy, h)
			assert.True(t, tt.wantDist.Equal(d), "got %s, wanted %s", d, tt.wantDist)
		})
	}
}

func TestCollaborativeReduceParallelAxes(t *testing.T) {
	// Both sides unchanged: merged.
	inH, outH, inD, outD, err := CollaborativeReduceParallelAxes([]int{2, 3}, []int{2, 3},
		dist(S(0), S(0)), dist(S(0), S(0)))
	require.NoError(t, err)
	assert.Equal(t, []int{6}, inH)
	assert.Equal(t, []int{6}, outH)
	assert.True(t, dist(S(0)).Equal(inD))
	assert.True(t, dist(S(0)).Equal(outD))

	// Only one side unchanged: an independent reduction would merge the in side, not the collaborative one.
	inH, outH, inD, outD, err = CollaborativeReduceParallelAxes([]int{2, 3}, []int{2, 3},
		dist(S(0), S(0)), dist(S(0), B()))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, inH)
	assert.Equal(t, []int{2, 3}, outH)
	assert.True(t, dist(S(0), S(0)).Equal(inD))
	assert.True(t, dist(S(0), B()).Equal(outD))

	// Different dimensions, same rank.
	inH, outH, _, _, err = CollaborativeReduceParallelAxes([]int{2, 2, 3}, []int{4, 1, 3},
		dist(B(), B(), P()), dist(S(1), S(1), S(1)))
	require.NoError(t, err)
	assert.Equal(t, []int{4, 3}, inH)
	assert.Equal(t, []int{4, 3}, outH)

	_, _, _, _, err = CollaborativeReduceParallelAxes([]int{4}, []int{2, 2}, dist(S(0)), dist(S(0), S(0)))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}

// cudaDesc returns a desc with the given hierarchy over machines of 4 devices each.
func cudaDesc(hierarchy ...int) *placement.ParallelDesc {
	return newDesc("cuda", hierarchy...)
}

func newDesc(tag string, hierarchy ...int) *placement.ParallelDesc {
	num := 1
	for _, dim := range hierarchy {
		num *= dim
	}
	names := make([]string, num)
	for i := range names {
		names[i] = fmt.Sprintf("%d:%d", i/4, i%4)
	}
	return placement.MustNewParallelDesc(placement.ParallelConf{DeviceTag: tag, DeviceNames: names, Hierarchy: hierarchy})
}

func TestReduceInOutParallelAxes(t *testing.T) {
	t.Run("both rank 1", func(t *testing.T) {
		in, out := cudaDesc(4), cudaDesc(4)
		reduced := must.M1(ReduceInOutParallelAxes(in, out, dist(S(0)), dist(B())))
		assert.True(t, reduced.InDesc.Equal(in))
		assert.True(t, reduced.OutDesc.Equal(out))
		assert.True(t, dist(S(0)).Equal(reduced.InDist))
		assert.True(t, dist(B()).Equal(reduced.OutDist))
	})

	t.Run("collaborative", func(t *testing.T) {
		in, out := cudaDesc(2, 3), cudaDesc(2, 3)
		reduced := must.M1(ReduceInOutParallelAxes(in, out, dist(S(0), S(0)), dist(S(0), S(0))))
		assert.Equal(t, []int{6}, reduced.InDesc.Hierarchy())
		assert.Equal(t, []int{6}, reduced.OutDesc.Hierarchy())
		assert.True(t, dist(S(0)).Equal(reduced.InDist))
		assert.True(t, dist(S(0)).Equal(reduced.OutDist))
		assert.True(t, reduced.InDesc.EqualPlacement(in), "reduction keeps the devices")
	})

	t.Run("merge blocked", func(t *testing.T) {
		in, out := cudaDesc(2, 3), cudaDesc(2, 3)
		reduced := must.M1(ReduceInOutParallelAxes(in, out, dist(S(0), B()), dist(S(0), B())))
		inRank, outRank := reduced.Rank()
		assert.Equal(t, 2, inRank)
		assert.Equal(t, 2, outRank)
	})

	t.Run("independent on unequal ranks", func(t *testing.T) {
		in, out := cudaDesc(4), cudaDesc(2, 2)
		// A collaborative reduction would be impossible with different ranks, whatever the distributions.
		for _, outDist := range []sbp.ParallelDistribution{dist(B(), B()), dist(S(0), S(0)), dist(S(0), B())} {
			reduced := must.M1(ReduceInOutParallelAxes(in, out, dist(S(0)), outDist))
			wantH, wantD := ReduceParallelAxes(out.Hierarchy(), outDist)
			assert.Equal(t, wantH, reduced.OutDesc.Hierarchy())
			assert.True(t, wantD.Equal(reduced.OutDist))
			assert.Equal(t, []int{4}, reduced.InDesc.Hierarchy())
		}
		// Rank 2 reduced to rank 1 on one side, then both are rank 1.
		reduced := must.M1(ReduceInOutParallelAxes(in, out, dist(S(0)), dist(B(), B())))
		assert.Equal(t, []int{4}, reduced.OutDesc.Hierarchy())
		assert.True(t, dist(B()).Equal(reduced.OutDist))
	})

	t.Run("rank mismatch", func(t *testing.T) {
		_, err := ReduceInOutParallelAxes(cudaDesc(2, 2), cudaDesc(4), dist(S(0)), dist(S(0)))
		assert.ErrorIs(t, err, types.ErrConfiguration)
	})
}

func randomDistribution(rng *rand.Rand, rank int) sbp.ParallelDistribution {
	choices := []sbp.SbpParallel{S(0), S(1), B(), P()}
	d := make(sbp.ParallelDistribution, rank)
	for i := range d {
		d[i] = choices[rng.Intn(len(choices))]
	}
	return d
}

func TestReductionIdempotence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	hierarchies := [][]int{{8}, {2, 4}, {4, 2}, {2, 2, 2}, {1, 8}}
	for range 500 {
		inH := hierarchies[rng.Intn(len(hierarchies))]
		outH := hierarchies[rng.Intn(len(hierarchies))]
		in, out := cudaDesc(inH...), cudaDesc(outH...)
		inDist, outDist := randomDistribution(rng, len(inH)), randomDistribution(rng, len(outH))

		once := must.M1(ReduceInOutParallelAxes(in, out, inDist, outDist))
		twice := must.M1(ReduceInOutParallelAxes(once.InDesc, once.OutDesc, once.InDist, once.OutDist))
		require.True(t, once.InDesc.Equal(twice.InDesc), "%v%s -> %v%s", inH, inDist, outH, outDist)
		require.True(t, once.OutDesc.Equal(twice.OutDesc), "%v%s -> %v%s", inH, inDist, outH, outDist)
		require.True(t, once.InDist.Equal(twice.InDist), "%v%s -> %v%s", inH, inDist, outH, outDist)
		require.True(t, once.OutDist.Equal(twice.OutDist), "%v%s -> %v%s", inH, inDist, outH, outDist)

		// Independent reduction is idempotent on its own.
		h, d := ReduceParallelAxes(inH, inDist)
		h2, d2 := ReduceParallelAxes(h, d)
		require.Equal(t, h, h2)
		require.True(t, d.Equal(d2))
	}
}
