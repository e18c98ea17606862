package boxing

import (
	"github.com/gomlx/boxing/taskgraph"
)

// OneToOne handles boxings where each out parallel id needs exactly the blob held by the same in parallel id:
// same parallel num and same sbp, or a single device on each side, and the same region of the blob at each
// parallel id.
//
// When the devices also match, the in nodes are returned as they are, without creating any node.
type OneToOne struct{}

// Name implements Strategy.
func (OneToOne) Name() string { return "OneToOne" }

// Build implements Strategy.
func (s OneToOne) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	num := req.InDesc.ParallelNum()
	if num != req.OutDesc.ParallelNum() {
		return NotApplicable(s.Name(), "parallel num differs (%d vs %d)", num, req.OutDesc.ParallelNum())
	}
	if num != 1 && !req.InSbp.Equal(req.OutSbp) {
		return NotApplicable(s.Name(), "sbp differs (%s vs %s)", req.InSbp, req.OutSbp)
	}
	for id := range num {
		if inView, outView := req.InView(id), req.OutView(id); !inView.Equal(outView) {
			return NotApplicable(s.Name(), "parallel id %d holds %s, but %s is needed", id, inView, outView)
		}
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}
	subGraph := newSubGraph(s.Name(), "", num)
	moved := 0
	for id, inNode := range req.InNodes {
		outNode, err := moveTo(g, inNode, req.OutDesc.Device(id), id, req)
		if err != nil {
			return Failed(err)
		}
		if outNode != inNode {
			moved++
		}
		subGraph.OutNodes[id] = outNode
	}
	if moved == 0 {
		subGraph.Status.Comment = "identity"
	}
	return Applied(subGraph)
}
