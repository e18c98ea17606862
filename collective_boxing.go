package boxing

import (
	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/pkg/errors"
)

// CollectiveBoxing handles the boxings that map to one collective operation over all the devices, when in and
// out are placed on the same CUDA devices:
//
//   - P -> B: AllReduce;
//   - P -> S(0): ReduceScatter;
//   - S(0) -> B: AllGather;
//   - S(a) -> S(b): AllToAll.
//
// Split dimensions must be divisible by the number of devices. Each created node holds the shared
// collective.Request in its AttrCollective attribute.
type CollectiveBoxing struct{}

// Name implements Strategy.
func (CollectiveBoxing) Name() string { return "CollectiveBoxing" }

// Build implements Strategy.
func (s CollectiveBoxing) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	num := req.InDesc.ParallelNum()
	if !req.InDesc.EqualPlacement(req.OutDesc) {
		return NotApplicable(s.Name(), "in and out placements differ")
	}
	if req.InDesc.DeviceType() != types.CUDA {
		return NotApplicable(s.Name(), "device type is %s, not %s", req.InDesc.DeviceType(), types.CUDA)
	}
	if num == 1 {
		return NotApplicable(s.Name(), "single device")
	}
	logical := req.BlobDesc.Shape
	divisible := func(s sbp.SbpParallel) bool {
		return s.Axis < logical.Rank() && logical.Dimensions[s.Axis]%num == 0
	}

	var op optypes.OpType
	in, out := req.InSbp, req.OutSbp
	switch {
	case in.IsPartialSum() && out.IsBroadcast():
		op = optypes.AllReduce
	case in.IsPartialSum() && out.IsSplit() && out.Axis == 0 && divisible(out):
		op = optypes.ReduceScatter
	case in.IsSplit() && in.Axis == 0 && divisible(in) && out.IsBroadcast():
		op = optypes.AllGather
	case in.IsSplit() && out.IsSplit() && in.Axis != out.Axis && divisible(in) && divisible(out):
		op = optypes.AllToAll
	default:
		return NotApplicable(s.Name(), "%s -> %s of %s over %d devices has no collective", in, out, logical, num)
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}

	desc1D, err := req.InDesc.WithHierarchy([]int{num})
	if err != nil {
		return Failed(err)
	}
	groups, err := desc1D.ComputeReplicaGroups([]int{0})
	if err != nil {
		return Failed(err)
	}
	operand := req.InNodes[0].Shape
	var collectiveReq *collective.Request
	switch op {
	case optypes.AllReduce:
		collectiveReq, err = collective.NewAllReduce(operand, groups)
	case optypes.ReduceScatter:
		collectiveReq, err = collective.NewReduceScatter(operand, groups, 0)
	case optypes.AllGather:
		collectiveReq, err = collective.NewAllGather(operand, groups, 0)
	case optypes.AllToAll:
		collectiveReq, err = collective.NewAllToAll(operand, groups, out.Axis, in.Axis)
	}
	if err != nil {
		return Failed(errors.WithMessagef(err, "creating %s", op))
	}

	subGraph := newSubGraph(s.Name(), op.String(), num)
	for id, inNode := range req.InNodes {
		node, err := g.AddNode(&taskgraph.TaskNode{
			OpType:     op,
			Device:     inNode.Device,
			ParallelID: id,
			Lbi:        req.Lbi,
			Shape:      collectiveReq.Output,
			TimeShape:  req.TimeShape,
			Inputs:     []*taskgraph.TaskNode{inNode},
			Attributes: map[string]any{
				AttrCollective: collectiveReq,
				AttrView:       req.OutView(id),
			},
		})
		if err != nil {
			return Failed(err)
		}
		subGraph.OutNodes[id] = node
	}
	return Applied(subGraph)
}
