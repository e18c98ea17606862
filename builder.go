package boxing

import (
	"context"

	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// HierarchicalBuilder builds the boxing sub-graphs: it reduces the hierarchies, and delegates single-axis
// boxings to its chain of strategies.
//
// It holds no mutable state, and can build several boxings concurrently.
type HierarchicalBuilder struct {
	chain             Strategy
	maxParallelBuilds int
}

// NewHierarchicalBuilder creates a HierarchicalBuilder with the chain of DefaultStrategies(cfg).
func NewHierarchicalBuilder(cfg Config) (*HierarchicalBuilder, error) {
	strategies, err := DefaultStrategies(cfg)
	if err != nil {
		return nil, err
	}
	return &HierarchicalBuilder{chain: NewChain(strategies...), maxParallelBuilds: cfg.MaxParallelBuilds}, nil
}

// NewHierarchicalBuilderWithChain creates a HierarchicalBuilder with the given strategy, usually a Chain.
func NewHierarchicalBuilderWithChain(chain Strategy) *HierarchicalBuilder {
	return &HierarchicalBuilder{chain: chain}
}

// Chain returns the strategy used for single-axis boxings.
func (b *HierarchicalBuilder) Chain() Strategy { return b.chain }

// validate checks the request is consistent: in nodes on the in devices, distributions matching the
// hierarchies and the blob shape.
func validate(req *Request) error {
	if req.InDesc == nil || req.OutDesc == nil {
		return errors.Wrapf(types.ErrConfiguration, "boxing %s: missing ParallelDesc", req.Lbi)
	}
	shape := req.BlobDesc.Shape
	if !shape.Ok() {
		return errors.Wrapf(types.ErrConfiguration, "boxing %s: invalid blob shape %s", req.Lbi, shape)
	}
	if err := req.InDist.Validate(req.InDesc, shape); err != nil {
		return errors.WithMessagef(err, "boxing %s, in distribution", req.Lbi)
	}
	if err := req.OutDist.Validate(req.OutDesc, shape); err != nil {
		return errors.WithMessagef(err, "boxing %s, out distribution", req.Lbi)
	}
	if len(req.InNodes) != req.InDesc.ParallelNum() {
		return errors.Wrapf(types.ErrConfiguration, "boxing %s: %d in nodes given for %s",
			req.Lbi, len(req.InNodes), req.InDesc)
	}
	for id, node := range req.InNodes {
		if node == nil || node.Device != req.InDesc.Device(id) {
			return errors.Wrapf(types.ErrConfiguration, "boxing %s: in node #%d (%v) is not on device %s",
				req.Lbi, id, node, req.InDesc.Device(id))
		}
	}
	return nil
}

// Build the sub-graph converting req.InNodes to req.OutDist on req.OutDesc, adding the nodes to g.
//
// Errors:
//
//   - types.ErrConfiguration: the request is inconsistent.
//   - *UnsupportedError (types.ErrUnsupportedTransformation): the reduced hierarchies are multi-axis, or no
//     strategy applies.
//   - *StrategyError (types.ErrStrategyInternal): a strategy failed while building the sub-graph.
func (b *HierarchicalBuilder) Build(g *taskgraph.Graph, req *Request) (*SubGraph, error) {
	if err := validate(req); err != nil {
		return nil, err
	}
	reduced, err := ReduceInOutParallelAxes(req.InDesc, req.OutDesc, req.InDist, req.OutDist)
	if err != nil {
		return nil, err
	}
	inRank, outRank := reduced.Rank()
	klog.V(2).Infof("boxing %s: %s%v -> %s%v reduced to %s%v -> %s%v", req.Lbi,
		req.InDist, req.InDesc.Hierarchy(), req.OutDist, req.OutDesc.Hierarchy(),
		reduced.InDist, reduced.InDesc.Hierarchy(), reduced.OutDist, reduced.OutDesc.Hierarchy())
	if inRank != 1 || outRank != 1 {
		return nil, &UnsupportedError{
			Stage:        StageReduce,
			Lbi:          req.Lbi,
			InHierarchy:  reduced.InDesc.Hierarchy(),
			OutHierarchy: reduced.OutDesc.Hierarchy(),
			InDist:       reduced.InDist,
			OutDist:      reduced.OutDist,
		}
	}

	// Devices come from the original descs, only the sbp is reduced.
	axisReq := &AxisRequest{
		InNodes:   req.InNodes,
		InDesc:    req.InDesc,
		OutDesc:   req.OutDesc,
		Lbi:       req.Lbi,
		BlobDesc:  req.BlobDesc,
		InSbp:     reduced.InDist[0],
		OutSbp:    reduced.OutDist[0],
		TimeShape: req.TimeShape,
		InDist:    req.InDist,
		OutDist:   req.OutDist,
	}
	result := b.chain.Build(g, axisReq)
	switch result.Outcome {
	case OutcomeApplied:
		return result.SubGraph, nil
	case OutcomeFailed:
		return nil, result.Err
	default:
		return nil, &UnsupportedError{
			Stage:        StageChain,
			Lbi:          req.Lbi,
			InHierarchy:  reduced.InDesc.Hierarchy(),
			OutHierarchy: reduced.OutDesc.Hierarchy(),
			InDist:       reduced.InDist,
			OutDist:      reduced.OutDist,
			Rejections:   result.Rejections,
		}
	}
}

// BuildAll builds the sub-graphs of independent boxings concurrently, all in g. The results are in the
// order of reqs.
//
// It returns the first error encountered; remaining builds are skipped once ctx is cancelled or a build fails.
func (b *HierarchicalBuilder) BuildAll(ctx context.Context, g *taskgraph.Graph, reqs []*Request) ([]*SubGraph, error) {
	subGraphs := make([]*SubGraph, len(reqs))
	eg, ctx := errgroup.WithContext(ctx)
	if b.maxParallelBuilds > 0 {
		eg.SetLimit(b.maxParallelBuilds)
	}
	for i, req := range reqs {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			subGraph, err := b.Build(g, req)
			if err != nil {
				return err
			}
			subGraphs[i] = subGraph
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return subGraphs, nil
}
