package boxing

import (
	"slices"

	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/pkg/errors"
)

// ReduceParallelAxes merges consecutive hierarchy axes that have the same SbpParallel into one axis, whose
// dimension is the product of the merged ones.
//
// The first axis is always kept, so a non-empty hierarchy is never reduced to an empty one.
// hierarchy and dist must have the same length.
func ReduceParallelAxes(hierarchy []int, dist sbp.ParallelDistribution) ([]int, sbp.ParallelDistribution) {
	if len(hierarchy) == 0 {
		return nil, nil
	}
	reducedHierarchy := []int{hierarchy[0]}
	reducedDist := sbp.ParallelDistribution{dist[0]}
	for axis := 1; axis < len(hierarchy); axis++ {
		if dist[axis].Equal(dist[axis-1]) {
			reducedHierarchy[len(reducedHierarchy)-1] *= hierarchy[axis]
		} else {
			reducedHierarchy = append(reducedHierarchy, hierarchy[axis])
			reducedDist = append(reducedDist, dist[axis])
		}
	}
	return reducedHierarchy, reducedDist
}

// CollaborativeReduceParallelAxes reduces the in and out hierarchies together: an axis is merged into the
// previous one only if its SbpParallel is unchanged on both sides, so the reduced axes of both sides still
// correspond to each other.
//
// Both hierarchies must have the same rank.
func CollaborativeReduceParallelAxes(inHierarchy, outHierarchy []int, inDist, outDist sbp.ParallelDistribution) (
	reducedInHierarchy, reducedOutHierarchy []int, reducedInDist, reducedOutDist sbp.ParallelDistribution, err error) {
	if len(inHierarchy) != len(outHierarchy) {
		err = errors.Wrapf(types.ErrConfiguration, "collaborative reduction requires hierarchies of the same rank, got %v and %v",
			inHierarchy, outHierarchy)
		return
	}
	if len(inHierarchy) == 0 {
		return
	}
	reducedInHierarchy, reducedOutHierarchy = []int{inHierarchy[0]}, []int{outHierarchy[0]}
	reducedInDist, reducedOutDist = sbp.ParallelDistribution{inDist[0]}, sbp.ParallelDistribution{outDist[0]}
	for axis := 1; axis < len(inHierarchy); axis++ {
		if inDist[axis].Equal(inDist[axis-1]) && outDist[axis].Equal(outDist[axis-1]) {
			reducedInHierarchy[len(reducedInHierarchy)-1] *= inHierarchy[axis]
			reducedOutHierarchy[len(reducedOutHierarchy)-1] *= outHierarchy[axis]
		} else {
			reducedInHierarchy = append(reducedInHierarchy, inHierarchy[axis])
			reducedOutHierarchy = append(reducedOutHierarchy, outHierarchy[axis])
			reducedInDist = append(reducedInDist, inDist[axis])
			reducedOutDist = append(reducedOutDist, outDist[axis])
		}
	}
	return
}

// Reduced is the result of ReduceInOutParallelAxes.
type Reduced struct {
	InDesc, OutDesc *placement.ParallelDesc
	InDist, OutDist sbp.ParallelDistribution
}

// Rank returns the ranks of the reduced in and out hierarchies.
func (r *Reduced) Rank() (in, out int) {
	return r.InDesc.Rank(), r.OutDesc.Rank()
}

// reduceOnce applies one pass of the reduction rule:
//
//   - both hierarchies of rank 1: unchanged;
//   - different ranks: each side is reduced independently;
//   - same rank: both sides are reduced collaboratively.
func reduceOnce(inHierarchy, outHierarchy []int, inDist, outDist sbp.ParallelDistribution) (
	[]int, []int, sbp.ParallelDistribution, sbp.ParallelDistribution, error) {
	switch {
	case len(inHierarchy) == 1 && len(outHierarchy) == 1:
		return inHierarchy, outHierarchy, inDist, outDist, nil
	case len(inHierarchy) != len(outHierarchy):
		inHierarchy, inDist = ReduceParallelAxes(inHierarchy, inDist)
		outHierarchy, outDist = ReduceParallelAxes(outHierarchy, outDist)
		return inHierarchy, outHierarchy, inDist, outDist, nil
	default:
		return CollaborativeReduceParallelAxes(inHierarchy, outHierarchy, inDist, outDist)
	}
}

// ReduceInOutParallelAxes reduces the hierarchies of both sides of a boxing to their coarsest equivalent.
// The reduction rule is applied until the result doesn't change anymore, so reducing a reduced pair returns it
// unchanged.
//
// The returned descs hold the same devices as inDesc and outDesc, arranged in the reduced hierarchies.
func ReduceInOutParallelAxes(inDesc, outDesc *placement.ParallelDesc, inDist, outDist sbp.ParallelDistribution) (*Reduced, error) {
	if len(inDist) != inDesc.Rank() || len(outDist) != outDesc.Rank() {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"distributions %s and %s don't match the ranks of hierarchies %v and %v",
			inDist, outDist, inDesc.Hierarchy(), outDesc.Hierarchy())
	}
	inHierarchy, outHierarchy := inDesc.Hierarchy(), outDesc.Hierarchy()
	inDist, outDist = inDist.Clone(), outDist.Clone()
	for {
		newIn, newOut, newInDist, newOutDist, err := reduceOnce(inHierarchy, outHierarchy, inDist, outDist)
		if err != nil {
			return nil, err
		}
		unchanged := slices.Equal(newIn, inHierarchy) && slices.Equal(newOut, outHierarchy)
		inHierarchy, outHierarchy, inDist, outDist = newIn, newOut, newInDist, newOutDist
		if unchanged {
			break
		}
	}
	reduced := &Reduced{InDist: inDist, OutDist: outDist}
	var err error
	if reduced.InDesc, err = inDesc.WithHierarchy(inHierarchy); err != nil {
		return nil, err
	}
	if reduced.OutDesc, err = outDesc.WithHierarchy(outHierarchy); err != nil {
		return nil, err
	}
	return reduced, nil
}
