package main

import (
	"bytes"
	"os"

	"github.com/gomlx/boxing"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/sbp"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// side of a boxing in the request file.
type side struct {
	Placement    placement.ParallelConf   `yaml:"placement"`
	Distribution sbp.ParallelDistribution `yaml:"distribution"`
}

// planRequest is the request file format. Example:
//
//	lbi: {op_name: matmul, blob_name: out}
//	dtype: Float32
//	dims: [1024, 512]
//	in:
//	  placement: {device_tag: cuda, device_name: ["0:0-3", "1:0-3"], hierarchy: [2, 4]}
//	  distribution: [S(0), S(0)]
//	out:
//	  placement: {device_tag: cuda, device_name: ["0:0-3", "1:0-3"]}
//	  distribution: [B]
type planRequest struct {
	Lbi   taskgraph.LogicalBlobId `yaml:"lbi"`
	DType string                  `yaml:"dtype"`
	Dims  []int                   `yaml:"dims"`
	In    side                    `yaml:"in"`
	Out   side                    `yaml:"out"`
}

func parseRequest(data []byte) (*planRequest, error) {
	var req planRequest
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&req); err != nil {
		return nil, errors.Wrapf(types.ErrConfiguration, "parsing boxing request: %v", err)
	}
	return &req, nil
}

func loadRequest(path string) (*planRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading boxing request from %q", path)
	}
	return parseRequest(data)
}

// build creates the source nodes of the request in g, and returns the boxing.Request for them.
func (r *planRequest) build(g *taskgraph.Graph) (*boxing.Request, error) {
	dtype, err := dtypes.DTypeString(r.DType)
	if err != nil {
		return nil, errors.Wrapf(types.ErrConfiguration, "request dtype: %v", err)
	}
	for _, dim := range r.Dims {
		if dim < 0 {
			return nil, errors.Wrapf(types.ErrConfiguration, "request dims %v has negative dimension", r.Dims)
		}
	}
	logical := shapes.Make(dtype, r.Dims...)
	inDesc, err := placement.NewParallelDesc(r.In.Placement)
	if err != nil {
		return nil, errors.WithMessage(err, "in placement")
	}
	outDesc, err := placement.NewParallelDesc(r.Out.Placement)
	if err != nil {
		return nil, errors.WithMessage(err, "out placement")
	}
	if err := r.In.Distribution.Validate(inDesc, logical); err != nil {
		return nil, errors.WithMessage(err, "in distribution")
	}
	inNodes, err := boxing.NewSourceNodes(g, r.Lbi, inDesc, r.In.Distribution, logical)
	if err != nil {
		return nil, err
	}
	return &boxing.Request{
		InNodes:   inNodes,
		InDesc:    inDesc,
		OutDesc:   outDesc,
		Lbi:       r.Lbi,
		BlobDesc:  taskgraph.BlobDesc{Shape: logical},
		InDist:    r.In.Distribution,
		OutDist:   r.Out.Distribution,
		TimeShape: []int{1},
	}, nil
}
