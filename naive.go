package boxing

import (
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/taskgraph"
)

// NaiveB2B handles B to B boxings between any placements: each out device gets a copy of its nearest in node.
type NaiveB2B struct{}

// Name implements Strategy.
func (NaiveB2B) Name() string { return "NaiveB2B" }

// Build implements Strategy.
func (s NaiveB2B) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	if !req.InSbp.IsBroadcast() || !req.OutSbp.IsBroadcast() {
		return NotApplicable(s.Name(), "%s -> %s is not B -> B", req.InSbp, req.OutSbp)
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}
	outNum := req.OutDesc.ParallelNum()
	subGraph := newSubGraph(s.Name(), "", outNum)
	for id := range outNum {
		device := req.OutDesc.Device(id)
		outNode, err := moveTo(g, nearestInNode(req.InNodes, device, id), device, id, req)
		if err != nil {
			return Failed(err)
		}
		subGraph.OutNodes[id] = outNode
	}
	return Applied(subGraph)
}

// NaiveB2P handles B to P boxings: the first out parallel id gets a copy of the blob, and all others get zeros,
// so the partial values sum to the logical value.
//
// The zeros nodes run after their nearest in node, so they're produced at the same step as the blob.
type NaiveB2P struct{}

// Name implements Strategy.
func (NaiveB2P) Name() string { return "NaiveB2P" }

// Build implements Strategy.
func (s NaiveB2P) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	if !req.InSbp.IsBroadcast() || !req.OutSbp.IsPartialSum() {
		return NotApplicable(s.Name(), "%s -> %s is not B -> P", req.InSbp, req.OutSbp)
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}
	outNum := req.OutDesc.ParallelNum()
	subGraph := newSubGraph(s.Name(), "", outNum)
	for id := range outNum {
		device := req.OutDesc.Device(id)
		nearest := nearestInNode(req.InNodes, device, id)
		if id == 0 {
			outNode, err := moveTo(g, nearest, device, id, req)
			if err != nil {
				return Failed(err)
			}
			subGraph.OutNodes[id] = outNode
			continue
		}
		zeros, err := g.AddNode(&taskgraph.TaskNode{
			OpType:     optypes.Zeros,
			Device:     device,
			ParallelID: id,
			Lbi:        req.Lbi,
			Shape:      req.BlobDesc.Shape.Clone(),
			TimeShape:  req.TimeShape,
			CtrlInputs: []*taskgraph.TaskNode{nearest},
		})
		if err != nil {
			return Failed(err)
		}
		subGraph.OutNodes[id] = zeros
		subGraph.CtrlNodes[id] = append(subGraph.CtrlNodes[id], nearest)
	}
	return Applied(subGraph)
}
