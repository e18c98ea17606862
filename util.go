package boxing

import (
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/pkg/errors"
)

// Attribute keys set on the nodes created by the strategies.
const (
	// AttrView is the SliceView of the logical blob held by a node.
	AttrView = "view"

	// AttrInView is the SliceView held by the input of a Slice node.
	AttrInView = "in_view"

	// AttrInViews are the SliceViews held by the inputs of a SliceBoxingCopy or SliceBoxingAdd node.
	AttrInViews = "in_views"

	// AttrCopyKind is "intra_machine" or "inter_machine" for Copy nodes.
	AttrCopyKind = "copy_kind"

	// AttrCollective is the *collective.Request of a collective node.
	AttrCollective = "collective"
)

// PhysicalView returns the region of the logical blob held at parallelID of a single-axis distribution of
// parallelNum devices.
func PhysicalView(logical shapes.Shape, s sbp.SbpParallel, parallelID, parallelNum int) shapes.SliceView {
	view := shapes.FullView(logical)
	if s.IsSplit() {
		view = view.WithRange(s.Axis, shapes.BalancedSplit(logical.Dimensions[s.Axis], parallelNum)[parallelID])
	}
	return view
}

// DistributionView returns the region of the logical blob held at parallelID of desc, for a distribution
// over all the axes of its hierarchy. Split axes are applied in hierarchy order, each splitting the region
// left by the previous ones.
func DistributionView(logical shapes.Shape, desc *placement.ParallelDesc, dist sbp.ParallelDistribution, parallelID int) shapes.SliceView {
	hierarchy := desc.Hierarchy()
	indices := make([]int, len(hierarchy))
	remaining := parallelID
	for axis := len(hierarchy) - 1; axis >= 0; axis-- {
		indices[axis] = remaining % hierarchy[axis]
		remaining /= hierarchy[axis]
	}
	view := shapes.FullView(logical)
	for axis, s := range dist {
		if !s.IsSplit() {
			continue
		}
		r := view.Ranges[s.Axis]
		part := shapes.BalancedSplit(r.Size(), hierarchy[axis])[indices[axis]]
		view = view.WithRange(s.Axis, shapes.Range{Begin: r.Begin + part.Begin, End: r.Begin + part.End})
	}
	return view
}

// NewSourceNodes adds to g one source node per device of desc, each holding its region of the logical blob
// distributed with dist. It returns them sorted by parallel id, as Request.InNodes expects.
func NewSourceNodes(g *taskgraph.Graph, lbi taskgraph.LogicalBlobId, desc *placement.ParallelDesc,
	dist sbp.ParallelDistribution, logical shapes.Shape) ([]*taskgraph.TaskNode, error) {
	nodes := make([]*taskgraph.TaskNode, desc.ParallelNum())
	for id := range nodes {
		view := DistributionView(logical, desc, dist, id)
		var err error
		nodes[id], err = g.AddNode(&taskgraph.TaskNode{
			OpType:     optypes.Source,
			Device:     desc.Device(id),
			ParallelID: id,
			Lbi:        lbi,
			Shape:      view.Shape(logical.DType),
			Attributes: map[string]any{AttrView: view},
		})
		if err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// nearestInNode returns the in node closest to the device: on the same device, else on the same machine,
// else the one at outID modulo the number of in nodes.
func nearestInNode(inNodes []*taskgraph.TaskNode, device placement.Device, outID int) *taskgraph.TaskNode {
	var sameMachine *taskgraph.TaskNode
	for _, node := range inNodes {
		if node.Device == device {
			return node
		}
		if sameMachine == nil && node.Device.MachineID == device.MachineID {
			sameMachine = node
		}
	}
	if sameMachine != nil {
		return sameMachine
	}
	return inNodes[outID%len(inNodes)]
}

// moveTo returns node itself if it is already on device, or a new Copy node holding its blob on device.
func moveTo(g *taskgraph.Graph, node *taskgraph.TaskNode, device placement.Device, parallelID int, req *AxisRequest) (*taskgraph.TaskNode, error) {
	if node.Device == device {
		return node, nil
	}
	kind := "intra_machine"
	if node.Device.MachineID != device.MachineID {
		kind = "inter_machine"
	}
	attrs := map[string]any{AttrCopyKind: kind}
	if view, ok := node.Attributes[AttrView]; ok {
		attrs[AttrView] = view
	}
	return g.AddNode(&taskgraph.TaskNode{
		OpType:     optypes.Copy,
		Device:     device,
		ParallelID: parallelID,
		Lbi:        req.Lbi,
		Shape:      node.Shape,
		TimeShape:  req.TimeShape,
		Inputs:     []*taskgraph.TaskNode{node},
		Attributes: attrs,
	})
}

// checkInNodes verifies the in nodes match the in distribution: one per in device, each holding the shape of
// its in view.
func checkInNodes(req *AxisRequest) error {
	num := req.InDesc.ParallelNum()
	if len(req.InNodes) != num {
		return errors.Errorf("%d in nodes given for a parallel num of %d", len(req.InNodes), num)
	}
	for id, node := range req.InNodes {
		view := req.InView(id)
		if !node.Shape.Equal(view.Shape(req.BlobDesc.Shape.DType)) {
			return errors.Errorf("in node #%d %s has shape %s, but %s of %s at parallel id %d holds %s",
				id, node, node.Shape, req.InSbp, req.BlobDesc.Shape, id, view)
		}
	}
	return nil
}

// splitAxisInRange returns whether a split sbp refers to an axis of the logical blob.
func splitAxisInRange(s sbp.SbpParallel, logical shapes.Shape) bool {
	return !s.IsSplit() || (s.Axis >= 0 && s.Axis < logical.Rank())
}

func newSubGraph(builder, comment string, outNum int) *SubGraph {
	return &SubGraph{
		Status:    Status{Builder: builder, Comment: comment},
		OutNodes:  make([]*taskgraph.TaskNode, outNum),
		CtrlNodes: make([][]*taskgraph.TaskNode, outNum),
	}
}
