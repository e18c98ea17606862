package boxing

import (
	"slices"

	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/shapeinference"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/pkg/errors"
)

// SliceBoxing is the general strategy: for each out device it takes the regions of the in blobs that overlap
// its out view, slicing them on their source device, copies them over and assembles them.
//
// It handles S, B or P in, and S or B out, except B -> B (left to NaiveB2B). Regions of P inputs are summed
// (SliceBoxingAdd), others are copied into place (SliceBoxingCopy).
type SliceBoxing struct{}

// Name implements Strategy.
func (SliceBoxing) Name() string { return "SliceBoxing" }

// piece is a region of the logical blob held by a node.
type piece struct {
	node *taskgraph.TaskNode
	view shapes.SliceView
}

// Build implements Strategy.
func (s SliceBoxing) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	in, out := req.InSbp, req.OutSbp
	logical := req.BlobDesc.Shape
	if out.IsPartialSum() {
		return NotApplicable(s.Name(), "out sbp is P")
	}
	if in.IsBroadcast() && out.IsBroadcast() {
		return NotApplicable(s.Name(), "B -> B is left to naive boxing")
	}
	if !splitAxisInRange(in, logical) || !splitAxisInRange(out, logical) {
		return NotApplicable(s.Name(), "split axes of %s -> %s out of range for %s", in, out, logical)
	}
	if err := checkInNodes(req); err != nil {
		return Failed(err)
	}

	inNum, outNum := req.InDesc.ParallelNum(), req.OutDesc.ParallelNum()
	inPieces := make([]piece, inNum)
	for id, node := range req.InNodes {
		inPieces[id] = piece{node: node, view: req.InView(id)}
	}
	opType, comment := optypes.SliceBoxingCopy, "copy"
	if in.IsPartialSum() {
		opType, comment = optypes.SliceBoxingAdd, "add"
	}

	subGraph := newSubGraph(s.Name(), comment, outNum)
	for outID := range outNum {
		device := req.OutDesc.Device(outID)
		outView := req.OutView(outID)

		// Select the in pieces overlapping outView: all of them for S and P, only the nearest for B.
		var sources []piece
		switch {
		case in.IsBroadcast():
			nearest := nearestInNode(req.InNodes, device, outID)
			sources = []piece{inPieces[slices.Index(req.InNodes, nearest)]}
		default:
			sources = inPieces
		}

		var moved []piece
		for _, source := range sources {
			region := source.view.Intersect(outView)
			if region.IsEmpty() {
				continue
			}
			node := source.node
			if !region.Equal(source.view) {
				var err error
				node, err = s.addSlice(g, req, source, region)
				if err != nil {
					return Failed(err)
				}
			}
			node, err := moveTo(g, node, device, outID, req)
			if err != nil {
				return Failed(err)
			}
			moved = append(moved, piece{node: node, view: region})
		}

		// A single piece covering the whole out view needs no assembly, unless it must be summed.
		if len(moved) == 1 && moved[0].view.Equal(outView) && opType == optypes.SliceBoxingCopy {
			subGraph.OutNodes[outID] = moved[0].node
			continue
		}
		node, err := s.addAssembly(g, req, opType, outID, outView, moved)
		if err != nil {
			return Failed(err)
		}
		if len(moved) == 0 {
			// Empty view: it holds no data, but it must still run at the pace of the in blob.
			nearest := nearestInNode(req.InNodes, device, outID)
			if err := g.AddCtrlEdge(nearest, node); err != nil {
				return Failed(err)
			}
			subGraph.CtrlNodes[outID] = append(subGraph.CtrlNodes[outID], nearest)
		}
		subGraph.OutNodes[outID] = node
	}
	return Applied(subGraph)
}

// addSlice adds a Slice node extracting region from the source, on the source's device.
func (s SliceBoxing) addSlice(g *taskgraph.Graph, req *AxisRequest, source piece, region shapes.SliceView) (*taskgraph.TaskNode, error) {
	shape, err := shapeinference.SliceView(source.node.Shape, source.view, region)
	if err != nil {
		return nil, errors.WithMessagef(err, "slicing %s", source.node)
	}
	return g.AddNode(&taskgraph.TaskNode{
		OpType:     optypes.Slice,
		Device:     source.node.Device,
		ParallelID: source.node.ParallelID,
		Lbi:        req.Lbi,
		Shape:      shape,
		TimeShape:  req.TimeShape,
		Inputs:     []*taskgraph.TaskNode{source.node},
		Attributes: map[string]any{
			AttrInView: source.view,
			AttrView:   region,
		},
	})
}

// addAssembly adds the node building outView from the pieces, on the out device.
func (s SliceBoxing) addAssembly(g *taskgraph.Graph, req *AxisRequest, opType optypes.OpType, outID int,
	outView shapes.SliceView, pieces []piece) (*taskgraph.TaskNode, error) {
	dtype := req.BlobDesc.Shape.DType
	shape := outView.Shape(dtype)
	inputs := make([]*taskgraph.TaskNode, len(pieces))
	inViews := make([]shapes.SliceView, len(pieces))
	inShapes := make([]shapes.Shape, len(pieces))
	for i, p := range pieces {
		inputs[i], inViews[i], inShapes[i] = p.node, p.view, p.node.Shape
	}
	if len(pieces) > 0 {
		var err error
		shape, err = shapeinference.SliceBoxing(inShapes, inViews, outView)
		if err != nil {
			return nil, err
		}
	}
	return g.AddNode(&taskgraph.TaskNode{
		OpType:     opType,
		Device:     req.OutDesc.Device(outID),
		ParallelID: outID,
		Lbi:        req.Lbi,
		Shape:      shape,
		TimeShape:  req.TimeShape,
		Inputs:     inputs,
		Attributes: map[string]any{
			AttrInViews: inViews,
			AttrView:    outView,
		},
	})
}
