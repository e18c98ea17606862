// Package collective describes the collective operations delegated by boxing to a collective-communication
// runtime, and defines the Executor interface such a runtime implements.
//
// HostExecutor is an in-process implementation, used to run boxing graphs on host memory.
package collective

import (
	"fmt"
	"strings"

	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/shapeinference"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Request is one collective operation, shared by all the task nodes (one per rank) that take part in it.
//
// Ranks are parallel ids in the ParallelDesc of the boxing, and ReplicaGroups partition them in the groups
// that communicate together.
type Request struct {
	// ID is shared by all ranks of the same collective.
	ID uuid.UUID

	// Op is one of optypes.AllGather, AllReduce, ReduceScatter or AllToAll.
	Op optypes.OpType

	ReplicaGroups [][]int

	// Operand and Output are the per-rank shapes.
	Operand, Output shapes.Shape

	// Dim is the all_gather_dim or the scatter_dimension.
	Dim int

	// SplitDim and ConcatDim are only used by AllToAll.
	SplitDim, ConcatDim int
}

// NewAllGather returns a request to concatenate the operand of each rank along dim.
func NewAllGather(operand shapes.Shape, replicaGroups [][]int, dim int) (*Request, error) {
	output, err := shapeinference.AllGather(operand, replicaGroups, dim)
	if err != nil {
		return nil, err
	}
	return &Request{ID: uuid.New(), Op: optypes.AllGather, ReplicaGroups: replicaGroups,
		Operand: operand, Output: output, Dim: dim}, nil
}

// NewAllReduce returns a request to sum the operands of all ranks, each rank receiving the sum.
func NewAllReduce(operand shapes.Shape, replicaGroups [][]int) (*Request, error) {
	output, err := shapeinference.AllReduce(operand, replicaGroups)
	if err != nil {
		return nil, err
	}
	return &Request{ID: uuid.New(), Op: optypes.AllReduce, ReplicaGroups: replicaGroups,
		Operand: operand, Output: output}, nil
}

// NewReduceScatter returns a request to sum the operands of all ranks, each rank receiving its slice of the sum
// along dim.
func NewReduceScatter(operand shapes.Shape, replicaGroups [][]int, dim int) (*Request, error) {
	output, err := shapeinference.ReduceScatter(operand, replicaGroups, dim)
	if err != nil {
		return nil, err
	}
	return &Request{ID: uuid.New(), Op: optypes.ReduceScatter, ReplicaGroups: replicaGroups,
		Operand: operand, Output: output, Dim: dim}, nil
}

// NewAllToAll returns a request where each rank splits its operand along splitDim, sends the i-th part to
// the i-th rank of its group, and concatenates what it receives along concatDim.
func NewAllToAll(operand shapes.Shape, replicaGroups [][]int, splitDim, concatDim int) (*Request, error) {
	if len(replicaGroups) == 0 {
		return nil, errors.New("AllToAll: replica_groups cannot be empty")
	}
	output, err := shapeinference.AllToAll(operand, replicaGroups, splitDim, concatDim, len(replicaGroups[0]))
	if err != nil {
		return nil, err
	}
	return &Request{ID: uuid.New(), Op: optypes.AllToAll, ReplicaGroups: replicaGroups,
		Operand: operand, Output: output, SplitDim: splitDim, ConcatDim: concatDim}, nil
}

// GroupOf returns the replica group the rank belongs to, and its position in it.
func (r *Request) GroupOf(rank int) (groupIdx, position int, err error) {
	for groupIdx, group := range r.ReplicaGroups {
		for position, member := range group {
			if member == rank {
				return groupIdx, position, nil
			}
		}
	}
	return -1, -1, errors.Errorf("collective %s: rank %d is not part of replica groups %v", r.Op, rank, r.ReplicaGroups)
}

// formatReplicaGroups converts a 2D Go slice into the StableHLO dense tensor literal format.
// Example: [[0, 1], [2, 3]] -> "dense<[[0, 1], [2, 3]]> : tensor<2x2xi64>"
func formatReplicaGroups(groups [][]int) string {
	if len(groups) == 0 {
		return "dense<[]> : tensor<0x0xi64>"
	}

	var sb strings.Builder
	sb.WriteString("dense<[")
	for i, group := range groups {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("[")
		for j, replica := range group {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%d", replica))
		}
		sb.WriteString("]")
	}
	sb.WriteString("]>")
	sb.WriteString(fmt.Sprintf(" : tensor<%dx%dxi64>", len(groups), len(groups[0])))
	return sb.String()
}

// ToStableHLO renders the request as the equivalent StableHLO statement, with %operand as its input.
func (r *Request) ToStableHLO() string {
	var attrs []string
	switch r.Op {
	case optypes.AllGather:
		attrs = append(attrs, fmt.Sprintf("all_gather_dim = %d : i64", r.Dim))
	case optypes.ReduceScatter:
		attrs = append(attrs, fmt.Sprintf("scatter_dimension = %d : i64", r.Dim))
	case optypes.AllToAll:
		attrs = append(attrs,
			fmt.Sprintf("concat_dimension = %d : i64", r.ConcatDim),
			fmt.Sprintf("split_count = %d : i64", len(r.ReplicaGroups[0])),
			fmt.Sprintf("split_dimension = %d : i64", r.SplitDim))
	}
	attrs = append(attrs, "replica_groups = "+formatReplicaGroups(r.ReplicaGroups))
	return fmt.Sprintf("%q(%%operand) {%s} : (%s) -> %s", r.Op.ToStableHLO(), strings.Join(attrs, ", "),
		r.Operand.ToStableHLO(), r.Output.ToStableHLO())
}

// String implements fmt.Stringer.
func (r *Request) String() string {
	return fmt.Sprintf("%s(%s, groups=%v)#%s", r.Op, r.Operand, r.ReplicaGroups, r.ID.String()[:8])
}
