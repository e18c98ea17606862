package main

import (
	"bytes"
	"testing"

	"github.com/gomlx/boxing"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gatherRequest = `
lbi: {op_name: matmul, blob_name: out}
dtype: Float32
dims: [8, 4]
in:
  placement: {device_tag: cuda, device_name: ["0:0-3"]}
  distribution: [S(0)]
out:
  placement: {device_tag: cuda, device_name: ["0:0-3"]}
  distribution: [B]
`

const unevenRequest = `
lbi: {op_name: embedding, blob_name: out}
dtype: Int32
dims: [10, 3]
in:
  placement: {device_tag: cpu, device_name: ["0:0-5"], hierarchy: [2, 3]}
  distribution: [S(0), S(0)]
out:
  placement: {device_tag: cpu, device_name: ["0:0-3"]}
  distribution: [S(1)]
`

func TestPlan(t *testing.T) {
	req, err := parseRequest([]byte(gatherRequest))
	require.NoError(t, err)
	assert.Equal(t, "matmul/out", req.Lbi.String())

	var out bytes.Buffer
	g := taskgraph.New("test")
	boxingReq, subGraph, err := plan(&out, g, req, boxing.Config{}, true)
	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, "Strategy: CollectiveBoxing(AllGather)")
	assert.Contains(t, text, `"stablehlo.all_gather"`)
	assert.Contains(t, text, "4 nodes, 512 B")

	out.Reset()
	require.NoError(t, run(&out, g, boxingReq, subGraph))
	assert.Contains(t, out.String(), "Executed 4 tasks")
	assert.Contains(t, out.String(), "Checked 4 outputs")

	// Without collectives.
	out.Reset()
	g = taskgraph.New("test")
	boxingReq, subGraph, err = plan(&out, g, req, boxing.Config{DisabledStrategies: []string{"CollectiveBoxing"}}, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Strategy: SliceBoxing(copy)")
	require.NoError(t, run(&out, g, boxingReq, subGraph))
	assert.Contains(t, out.String(), "Checked 4 outputs")
}

func TestRunUnevenHierarchy(t *testing.T) {
	req, err := parseRequest([]byte(unevenRequest))
	require.NoError(t, err)
	var out bytes.Buffer
	g := taskgraph.New("uneven")
	boxingReq, subGraph, err := plan(&out, g, req, boxing.Config{}, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Strategy: SliceBoxing(copy)")
	require.NoError(t, run(&out, g, boxingReq, subGraph))
	assert.Contains(t, out.String(), "Checked 4 outputs")

	// Partial-sum outputs are computed but not checked.
	req.Out.Distribution = sbp.ParallelDistribution{sbp.PartialSum()}
	req.Out.Placement = req.In.Placement
	req.Out.Placement.Hierarchy = nil
	req.In.Distribution = sbp.ParallelDistribution{sbp.Broadcast(), sbp.Broadcast()}
	out.Reset()
	g = taskgraph.New("partial")
	boxingReq, subGraph, err = plan(&out, g, req, boxing.Config{}, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Strategy: NaiveB2P")
	require.NoError(t, run(&out, g, boxingReq, subGraph))
	assert.NotContains(t, out.String(), "Checked")
}

func TestBadRequests(t *testing.T) {
	_, err := parseRequest([]byte("lbi: {op_name: a}\nunknown: 1\n"))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	req, err := parseRequest([]byte(gatherRequest))
	require.NoError(t, err)
	req.DType = "Float128"
	_, err = req.build(taskgraph.New("test"))
	assert.ErrorIs(t, err, types.ErrConfiguration)

	req, err = parseRequest([]byte(gatherRequest))
	require.NoError(t, err)
	req.In.Distribution = append(req.In.Distribution, req.In.Distribution[0])
	_, err = req.build(taskgraph.New("test"))
	assert.ErrorIs(t, err, types.ErrConfiguration)
}
