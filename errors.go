package boxing

import (
	"fmt"
	"strings"

	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/sbp"
)

// Stage of the HierarchicalBuilder that rejected a boxing.
type Stage string

const (
	// StageReduce rejects boxings whose hierarchies are still multi-axis after reduction.
	StageReduce Stage = "reduce"

	// StageChain rejects boxings for which no strategy of the chain applies.
	StageChain Stage = "chain"
)

// UnsupportedError is returned by HierarchicalBuilder.Build for boxings it has no strategy for.
// It matches types.ErrUnsupportedTransformation with errors.Is.
type UnsupportedError struct {
	Stage Stage
	Lbi   taskgraph.LogicalBlobId

	// InHierarchy and OutHierarchy are the reduced hierarchies, with their reduced distributions.
	InHierarchy, OutHierarchy []int
	InDist, OutDist           sbp.ParallelDistribution

	// Rejections, for StageChain, lists why each strategy didn't apply.
	Rejections []Rejection
}

// Error implements error.
func (e *UnsupportedError) Error() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%s: boxing of %s from %s%v to %s%v rejected at stage %s",
		types.ErrUnsupportedTransformation, e.Lbi, e.InDist, e.InHierarchy, e.OutDist, e.OutHierarchy, e.Stage)
	switch e.Stage {
	case StageReduce:
		sb.WriteString(": hierarchies are still multi-axis after reduction")
	case StageChain:
		sb.WriteString(": no boxing strategy available")
		for _, r := range e.Rejections {
			sb.WriteString("\n\t")
			sb.WriteString(r.String())
		}
	}
	return sb.String()
}

// Is implements the interface used by errors.Is.
func (e *UnsupportedError) Is(target error) bool {
	return target == types.ErrUnsupportedTransformation
}

// StrategyError is returned when a strategy claimed a boxing but failed building it.
// It matches types.ErrStrategyInternal with errors.Is, and unwraps to the strategy's error.
type StrategyError struct {
	Strategy      string
	Lbi           taskgraph.LogicalBlobId
	InSbp, OutSbp sbp.SbpParallel
	Err           error
}

// Error implements error.
func (e *StrategyError) Error() string {
	return fmt.Sprintf("%s: strategy %s failed boxing %s from %s to %s: %v",
		types.ErrStrategyInternal, e.Strategy, e.Lbi, e.InSbp, e.OutSbp, e.Err)
}

// Unwrap returns the strategy's error.
func (e *StrategyError) Unwrap() error {
	return e.Err
}

// Is implements the interface used by errors.Is.
func (e *StrategyError) Is(target error) bool {
	return target == types.ErrStrategyInternal
}
