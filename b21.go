package boxing

import (
	"github.com/gomlx/boxing/taskgraph"
)

// B21 handles boxings from a broadcast blob to a single device: the copy nearest to the out device is used.
type B21 struct{}

// Name implements Strategy.
func (B21) Name() string { return "B21" }

// Build implements Strategy.
func (s B21) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	if !req.InSbp.IsBroadcast() {
		return NotApplicable(s.Name(), "in sbp is %s, not B", req.InSbp)
	}
	if req.OutDesc.ParallelNum() != 1 {
		return NotApplicable(s.Name(), "out parallel num is %d, not 1", req.OutDesc.ParallelNum())
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}
	device := req.OutDesc.Device(0)
	outNode, err := moveTo(g, nearestInNode(req.InNodes, device, 0), device, 0, req)
	if err != nil {
		return Failed(err)
	}
	subGraph := newSubGraph(s.Name(), "", 1)
	subGraph.OutNodes[0] = outNode
	return Applied(subGraph)
}
