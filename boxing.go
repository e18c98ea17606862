// Package boxing builds the physical sub-graph that converts a logical blob from the distribution it is produced
// with to the distribution its consumer requires.
//
// A distribution is a ParallelDesc (a hierarchy of devices) plus one sbp.SbpParallel per hierarchy axis. The
// HierarchicalBuilder first reduces both hierarchies to their coarsest equivalent form (see
// ReduceInOutParallelAxes) and, if both end up with a single axis, tries the strategies of a Chain in
// priority order: the first one that applies creates the nodes.
//
// Multi-axis hierarchies that can't be reduced to a single axis are not supported: Build returns an
// UnsupportedError.
package boxing

import (
	"fmt"

	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/gomlx/boxing/types/shapes"
)

// Request is one boxing: the blob Lbi, held by InNodes with distribution InDist over InDesc, is needed with
// distribution OutDist over OutDesc.
type Request struct {
	// InNodes hold the physical shards of the blob, sorted by parallel id of InDesc.
	InNodes []*taskgraph.TaskNode

	InDesc, OutDesc *placement.ParallelDesc
	Lbi             taskgraph.LogicalBlobId
	BlobDesc        taskgraph.BlobDesc
	InDist, OutDist sbp.ParallelDistribution

	// TimeShape is the execution time shape of the produced blob, copied to the created nodes.
	TimeShape []int
}

// AxisRequest is what a Strategy is given: a boxing whose distributions have been reduced to a single
// axis. InDesc and OutDesc are the original descs, holding the devices; only the sbp is reduced.
type AxisRequest struct {
	InNodes         []*taskgraph.TaskNode
	InDesc, OutDesc *placement.ParallelDesc
	Lbi             taskgraph.LogicalBlobId
	BlobDesc        taskgraph.BlobDesc
	InSbp, OutSbp   sbp.SbpParallel
	TimeShape       []int

	// InDist and OutDist are the distributions before reduction, over the hierarchies of InDesc and
	// OutDesc. They define the region held by each parallel id: nested splits of a merged axis are not
	// always a flat split of it. If unset, the flat split of InSbp and OutSbp is used.
	InDist, OutDist sbp.ParallelDistribution
}

// InView returns the region of the logical blob held by the in node at parallelID.
func (r *AxisRequest) InView(parallelID int) shapes.SliceView {
	return axisView(r.BlobDesc.Shape, r.InDesc, r.InDist, r.InSbp, parallelID)
}

// OutView returns the region of the logical blob the out node at parallelID must hold.
func (r *AxisRequest) OutView(parallelID int) shapes.SliceView {
	return axisView(r.BlobDesc.Shape, r.OutDesc, r.OutDist, r.OutSbp, parallelID)
}

func axisView(logical shapes.Shape, desc *placement.ParallelDesc, dist sbp.ParallelDistribution, s sbp.SbpParallel,
	parallelID int) shapes.SliceView {
	if len(dist) == desc.Rank() {
		return DistributionView(logical, desc, dist, parallelID)
	}
	return PhysicalView(logical, s, parallelID, desc.ParallelNum())
}

// String implements fmt.Stringer.
func (r *AxisRequest) String() string {
	return fmt.Sprintf("%s: %s[%d] -> %s[%d]", r.Lbi, r.InSbp, r.InDesc.ParallelNum(), r.OutSbp, r.OutDesc.ParallelNum())
}

// Status describes the transformation performed, for diagnostics.
type Status struct {
	// Builder is the name of the strategy that built the sub-graph.
	Builder string

	// Comment details how, e.g.: the collective operation used.
	Comment string
}

// String implements fmt.Stringer.
func (s Status) String() string {
	if s.Comment == "" {
		return s.Builder
	}
	return s.Builder + "(" + s.Comment + ")"
}

// SubGraph is the output of a successful boxing.
type SubGraph struct {
	Status Status

	// OutNodes hold the blob with the requested distribution, indexed by parallel id of OutDesc.
	// They may be nodes that already existed (e.g. InNodes), if no data movement is needed.
	OutNodes []*taskgraph.TaskNode

	// CtrlNodes, indexed by parallel id of OutDesc, lists the nodes the consumer at that parallel id must
	// run after, besides OutNodes.
	CtrlNodes [][]*taskgraph.TaskNode
}
