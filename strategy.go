package boxing

import (
	"fmt"

	"github.com/gomlx/boxing/taskgraph"
)

// Strategy builds the sub-graph of one class of single-axis boxing.
//
// Build must not change the graph before deciding whether it applies: a NotApplicable result leaves the
// graph untouched, so the next strategy can try.
type Strategy interface {
	// Name of the strategy, as used in Status.Builder and Config.DisabledStrategies.
	Name() string

	// Build tries to build the sub-graph for req in g.
	Build(g *taskgraph.Graph, req *AxisRequest) Result
}

// Outcome of a Strategy.Build.
type Outcome int

const (
	// OutcomeApplied means the strategy built the sub-graph.
	OutcomeApplied Outcome = iota

	// OutcomeNotApplicable means the strategy doesn't handle this boxing, and the next one should be tried.
	OutcomeNotApplicable

	// OutcomeFailed means the strategy handles this boxing but failed while building it.
	OutcomeFailed
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "Applied"
	case OutcomeNotApplicable:
		return "NotApplicable"
	case OutcomeFailed:
		return "Failed"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Rejection records why a strategy didn't apply.
type Rejection struct {
	Strategy, Reason string
}

// String implements fmt.Stringer.
func (r Rejection) String() string {
	return r.Strategy + ": " + r.Reason
}

// Result of Strategy.Build. Use Applied, NotApplicable or Failed to create one.
type Result struct {
	Outcome Outcome

	// SubGraph is set if Outcome is OutcomeApplied.
	SubGraph *SubGraph

	// Rejections lists why strategies didn't apply, if Outcome is OutcomeNotApplicable.
	Rejections []Rejection

	// Err is set if Outcome is OutcomeFailed.
	Err error
}

// Applied returns the Result of a successful Build.
func Applied(subGraph *SubGraph) Result {
	return Result{Outcome: OutcomeApplied, SubGraph: subGraph}
}

// NotApplicable returns the Result of a strategy that doesn't handle the request.
func NotApplicable(strategy, format string, args ...any) Result {
	return Result{Outcome: OutcomeNotApplicable, Rejections: []Rejection{{Strategy: strategy, Reason: fmt.Sprintf(format, args...)}}}
}

// Failed returns the Result of a strategy that applies, but failed building the sub-graph.
func Failed(err error) Result {
	return Result{Outcome: OutcomeFailed, Err: err}
}
