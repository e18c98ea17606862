package boxing

import (
	"testing"

	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildWith builds a single-axis boxing with the default chain, returning the sub-graph and the number of
// nodes it added to the graph.
func buildWith(t *testing.T, inDesc, outDesc *placement.ParallelDesc, in, out sbp.SbpParallel, dims ...int) (*SubGraph, *Request, int) {
	g := taskgraph.New(t.Name())
	req := newRequest(g, inDesc, outDesc, dist(in), dist(out), dims...)
	numNodes := g.NumNodes()
	subGraph, err := defaultBuilder(Config{}).Build(g, req)
	require.NoError(t, err)
	require.Len(t, subGraph.OutNodes, outDesc.ParallelNum())
	require.Len(t, subGraph.CtrlNodes, outDesc.ParallelNum())
	_, err = g.TopologicalOrder()
	require.NoError(t, err)
	return subGraph, req, g.NumNodes() - numNodes
}

func TestPhysicalView(t *testing.T) {
	logical := shapes.Make(dtypes.Float32, 5, 4)
	assert.Equal(t, "[0:5, 0:4]", PhysicalView(logical, B(), 1, 2).String())
	assert.Equal(t, "[0:5, 0:4]", PhysicalView(logical, P(), 1, 2).String())
	assert.Equal(t, "[0:3, 0:4]", PhysicalView(logical, S(0), 0, 2).String())
	assert.Equal(t, "[3:5, 0:4]", PhysicalView(logical, S(0), 1, 2).String())
	assert.Equal(t, "[0:5, 3:4]", PhysicalView(logical, S(1), 3, 4).String())
}

func TestDistributionView(t *testing.T) {
	logical := shapes.Make(dtypes.Float32, 4, 6)
	desc := cpuDesc(2, 2)
	assert.Equal(t, "[2:4, 3:6]", DistributionView(logical, desc, dist(S(0), S(1)), 3).String())
	assert.Equal(t, "[0:2, 0:6]", DistributionView(logical, desc, dist(S(0), B()), 1).String())
	// Nested splits of the same axis.
	assert.Equal(t, "[1:2, 0:6]", DistributionView(logical, desc, dist(S(0), S(0)), 1).String())
	assert.Equal(t, "[3:4, 0:6]", DistributionView(logical, desc, dist(S(0), S(0)), 3).String())

	g := taskgraph.New("sources")
	nodes := must.M1(NewSourceNodes(g, testLbi, desc, dist(S(0), S(1)), logical))
	require.Len(t, nodes, 4)
	for id, node := range nodes {
		assert.Equal(t, optypes.Source, node.OpType)
		assert.Equal(t, desc.Device(id), node.Device)
		assert.Equal(t, []int{2, 3}, node.Shape.Dimensions)
	}
}

func TestAxisRequestViews(t *testing.T) {
	logical := shapes.Make(dtypes.Float32, 10, 4)
	req := &AxisRequest{
		InDesc: cpuDesc(2, 3), OutDesc: cpuDesc(6),
		BlobDesc: taskgraph.BlobDesc{Shape: logical},
		InSbp:    S(0), OutSbp: S(0),
	}
	// Without the original distributions, a flat split.
	assert.Equal(t, "[4:6, 0:4]", req.InView(2).String())
	assert.Equal(t, "[4:6, 0:4]", req.OutView(2).String())

	// Nested splits of the merged axis.
	req.InDist, req.OutDist = dist(S(0), S(0)), dist(S(0))
	assert.Equal(t, "[4:5, 0:4]", req.InView(2).String())
	assert.Equal(t, "[5:7, 0:4]", req.InView(3).String())
	assert.Equal(t, "[4:6, 0:4]", req.OutView(2).String())
}

func TestNearestInNode(t *testing.T) {
	g := taskgraph.New("nearest")
	in := cpuDesc(8) // Machines 0 and 1, 4 devices each.
	nodes := must.M1(NewSourceNodes(g, testLbi, in, dist(B()), shapes.Make(dtypes.Float32, 3)))
	assert.Same(t, nodes[6], nearestInNode(nodes, in.Device(6), 0))
	assert.Same(t, nodes[4], nearestInNode(nodes, placement.Device{Type: types.CPU, MachineID: 1, DeviceID: 7}, 0))
	assert.Same(t, nodes[3], nearestInNode(nodes, placement.Device{Type: types.CPU, MachineID: 5, DeviceID: 0}, 11))
}

func TestB21(t *testing.T) {
	in := cpuDesc(4)
	out := placement.MustNewParallelDesc(placement.ParallelConf{DeviceTag: "cpu", DeviceNames: []string{"1:2"}})
	subGraph, req, added := buildWith(t, in, out, B(), B(), 8, 4)
	assert.Equal(t, "B21", subGraph.Status.Builder)
	assert.Equal(t, 1, added)
	copyNode := subGraph.OutNodes[0]
	assert.Equal(t, optypes.Copy, copyNode.OpType)
	assert.Equal(t, out.Device(0), copyNode.Device)
	assert.Equal(t, "inter_machine", copyNode.Attributes[AttrCopyKind])
	assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[0]}, copyNode.Inputs)

	// Already on the device: no node is created.
	out = placement.MustNewParallelDesc(placement.ParallelConf{DeviceTag: "cpu", DeviceNames: []string{"0:2"}})
	subGraph, req, added = buildWith(t, in, out, B(), S(0), 8, 4)
	assert.Equal(t, "B21", subGraph.Status.Builder)
	assert.Equal(t, 0, added)
	assert.Same(t, req.InNodes[2], subGraph.OutNodes[0])
}

func TestOneToOneMoves(t *testing.T) {
	in := cpuDesc(2)
	out := placement.MustNewParallelDesc(placement.ParallelConf{DeviceTag: "cpu", DeviceNames: []string{"0:0", "0:3"}})
	subGraph, req, added := buildWith(t, in, out, S(1), S(1), 8, 4)
	assert.Equal(t, "OneToOne", subGraph.Status.Builder)
	assert.Empty(t, subGraph.Status.Comment)
	assert.Equal(t, 1, added)
	assert.Same(t, req.InNodes[0], subGraph.OutNodes[0])
	assert.Equal(t, optypes.Copy, subGraph.OutNodes[1].OpType)
	assert.Equal(t, "intra_machine", subGraph.OutNodes[1].Attributes[AttrCopyKind])
	assert.Equal(t, []int{8, 2}, subGraph.OutNodes[1].Shape.Dimensions)
}

func TestNaiveB2P(t *testing.T) {
	desc := cpuDesc(3)
	subGraph, req, added := buildWith(t, desc, desc, B(), P(), 8, 4)
	assert.Equal(t, "NaiveB2P", subGraph.Status.Builder)
	assert.Equal(t, 2, added)
	assert.Same(t, req.InNodes[0], subGraph.OutNodes[0])
	assert.Empty(t, subGraph.CtrlNodes[0])
	for id := 1; id < 3; id++ {
		zeros := subGraph.OutNodes[id]
		assert.Equal(t, optypes.Zeros, zeros.OpType)
		assert.Equal(t, []int{8, 4}, zeros.Shape.Dimensions)
		assert.Empty(t, zeros.Inputs)
		assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[id]}, zeros.CtrlInputs)
		assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[id]}, subGraph.CtrlNodes[id])
	}
}

func TestCollectiveBoxing(t *testing.T) {
	desc := cudaDesc(4)
	tests := []struct {
		name     string
		in, out  sbp.SbpParallel
		op       optypes.OpType
		outShape []int
	}{
		{"P->B", P(), B(), optypes.AllReduce, []int{8, 4}},
		{"P->S(0)", P(), S(0), optypes.ReduceScatter, []int{2, 4}},
		{"S(0)->B", S(0), B(), optypes.AllGather, []int{8, 4}},
		{"S(0)->S(1)", S(0), S(1), optypes.AllToAll, []int{8, 1}},
		{"S(1)->S(0)", S(1), S(0), optypes.AllToAll, []int{2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subGraph, req, added := buildWith(t, desc, desc, tt.in, tt.out, 8, 4)
			assert.Equal(t, "CollectiveBoxing", subGraph.Status.Builder)
			assert.Equal(t, tt.op.String(), subGraph.Status.Comment)
			assert.Equal(t, 4, added)
			var shared *collective.Request
			for id, node := range subGraph.OutNodes {
				assert.Equal(t, tt.op, node.OpType)
				assert.Equal(t, tt.outShape, node.Shape.Dimensions)
				assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[id]}, node.Inputs)
				collectiveReq, ok := taskgraph.Attribute[*collective.Request](node, AttrCollective)
				require.True(t, ok)
				if shared == nil {
					shared = collectiveReq
				}
				assert.Same(t, shared, collectiveReq, "all ranks share the same request")
			}
			assert.Equal(t, [][]int{{0, 1, 2, 3}}, shared.ReplicaGroups)
		})
	}

	// Not divisible, or split on another axis than 0: left to SliceBoxing.
	subGraph, _, _ := buildWith(t, desc, desc, S(0), B(), 6, 4)
	assert.Equal(t, "SliceBoxing", subGraph.Status.Builder)
	subGraph, _, _ = buildWith(t, desc, desc, P(), S(1), 8, 4)
	assert.Equal(t, "SliceBoxing(add)", subGraph.Status.String())
}

func TestSliceBoxingSplitToSplit(t *testing.T) {
	subGraph, req, added := buildWith(t, cpuDesc(2), cpuDesc(3), S(0), S(1), 4, 6)
	assert.Equal(t, "SliceBoxing(copy)", subGraph.Status.String())
	// 6 slices, 4 copies and 3 assemblies.
	assert.Equal(t, 13, added)
	for id, node := range subGraph.OutNodes {
		assert.Equal(t, optypes.SliceBoxingCopy, node.OpType)
		assert.Equal(t, []int{4, 2}, node.Shape.Dimensions)
		require.Len(t, node.Inputs, 2)
		inViews, ok := taskgraph.Attribute[[]shapes.SliceView](node, AttrInViews)
		require.True(t, ok)
		assert.Equal(t, PhysicalView(req.BlobDesc.Shape, S(1), id, 3).String(),
			node.Attributes[AttrView].(shapes.SliceView).String())
		for i, input := range node.Inputs {
			assert.Equal(t, node.Device, input.Device)
			assert.Equal(t, []int{2, 2}, input.Shape.Dimensions)
			assert.Equal(t, inViews[i].Dimensions(), input.Shape.Dimensions)
		}
	}
}

func TestSliceBoxingPartialToSplit(t *testing.T) {
	desc := cpuDesc(2)
	subGraph, _, added := buildWith(t, desc, desc, P(), S(0), 4, 2)
	assert.Equal(t, "SliceBoxing(add)", subGraph.Status.String())
	// 4 slices, 2 copies and 2 assemblies.
	assert.Equal(t, 8, added)
	for id, node := range subGraph.OutNodes {
		assert.Equal(t, optypes.SliceBoxingAdd, node.OpType)
		assert.Equal(t, desc.Device(id), node.Device)
		assert.Equal(t, []int{2, 2}, node.Shape.Dimensions)
		assert.Len(t, node.Inputs, 2)
	}
}

func TestSliceBoxingEmptyView(t *testing.T) {
	subGraph, req, added := buildWith(t, cpuDesc(1), cpuDesc(3), B(), S(0), 2, 3)
	assert.Equal(t, "SliceBoxing", subGraph.Status.Builder)
	// 2 slices, 1 copy, and the empty assembly.
	assert.Equal(t, 4, added)
	assert.Equal(t, optypes.Slice, subGraph.OutNodes[0].OpType)
	assert.Equal(t, optypes.Copy, subGraph.OutNodes[1].OpType)

	empty := subGraph.OutNodes[2]
	assert.Equal(t, optypes.SliceBoxingCopy, empty.OpType)
	assert.Equal(t, []int{0, 3}, empty.Shape.Dimensions)
	assert.Empty(t, empty.Inputs)
	assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[0]}, empty.CtrlInputs)
	assert.Equal(t, []*taskgraph.TaskNode{req.InNodes[0]}, subGraph.CtrlNodes[2])
}

func TestSliceBoxingRejections(t *testing.T) {
	req := &AxisRequest{InSbp: B(), OutSbp: P()}
	assert.Equal(t, OutcomeNotApplicable, SliceBoxing{}.Build(nil, req).Outcome)
	req = &AxisRequest{InSbp: B(), OutSbp: B()}
	result := SliceBoxing{}.Build(nil, req)
	assert.Equal(t, OutcomeNotApplicable, result.Outcome)
	require.Len(t, result.Rejections, 1)
	assert.Equal(t, "SliceBoxing", result.Rejections[0].Strategy)
}

func TestDefaultStrategies(t *testing.T) {
	names := func(strategies []Strategy) (names []string) {
		for _, s := range strategies {
			names = append(names, s.Name())
		}
		return
	}
	assert.Equal(t, []string{"OneToOne", "B21", "CollectiveBoxing", "SliceBoxing", "NaiveB2B", "NaiveB2P"},
		names(must.M1(DefaultStrategies(Config{}))))
	assert.Equal(t, []string{"OneToOne", "B21", "SliceBoxing", "NaiveB2B", "NaiveB2P"},
		names(must.M1(DefaultStrategies(Config{CollectiveOnComputeStream: true}))))
	assert.Equal(t, []string{"B21", "CollectiveBoxing", "SliceBoxing", "NaiveB2P"},
		names(must.M1(DefaultStrategies(Config{DisabledStrategies: []string{"NaiveB2B", "OneToOne"}}))))

	builder := defaultBuilder(Config{})
	chain, ok := builder.Chain().(*Chain)
	require.True(t, ok)
	assert.Len(t, chain.Strategies(), 6)
}
