package boxing

import (
	"github.com/gomlx/boxing/taskgraph"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Chain tries its strategies in order. It is itself a Strategy.
type Chain struct {
	strategies []Strategy
}

var _ Strategy = (*Chain)(nil)

// NewChain creates a Chain trying the strategies in the given order.
func NewChain(strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies}
}

// Name implements Strategy.
func (c *Chain) Name() string { return "Chain" }

// Strategies returns the strategies of the chain, in priority order.
func (c *Chain) Strategies() []Strategy {
	return append([]Strategy(nil), c.strategies...)
}

// Build implements Strategy. It returns the result of the first strategy that applies. If a strategy fails,
// its error is returned as a StrategyError, and the following strategies are not tried.
// If none applies, the result is NotApplicable with the rejections of all of them.
func (c *Chain) Build(g *taskgraph.Graph, req *AxisRequest) Result {
	var rejections []Rejection
	for _, strategy := range c.strategies {
		result := strategy.Build(g, req)
		switch result.Outcome {
		case OutcomeApplied:
			klog.V(1).Infof("boxing %s: built with %s", req, result.SubGraph.Status)
			return result
		case OutcomeFailed:
			var strategyErr *StrategyError
			if !errors.As(result.Err, &strategyErr) {
				result.Err = &StrategyError{
					Strategy: strategy.Name(),
					Lbi:      req.Lbi,
					InSbp:    req.InSbp,
					OutSbp:   req.OutSbp,
					Err:      result.Err,
				}
			}
			klog.Warningf("boxing %s: %v", req, result.Err)
			return result
		default:
			for _, r := range result.Rejections {
				klog.V(2).Infof("boxing %s: %s", req, r)
			}
			rejections = append(rejections, result.Rejections...)
		}
	}
	return Result{Outcome: OutcomeNotApplicable, Rejections: rejections}
}
