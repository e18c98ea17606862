// Package optypes defines OpType and lists the operations a boxing task graph can hold.
package optypes

import (
	"fmt"

	"github.com/gomlx/boxing/internal/utils"
)

// OpType is an enum of the operations of the nodes in a task graph.
type OpType int

//go:generate go tool enumer -type=OpType optypes.go

const (
	Invalid OpType = iota

	// Source is a node produced outside boxing: the producer of the input blob on one device.
	Source

	// Copy moves a blob unchanged to another device.
	Copy

	// Slice extracts a region of a blob, on the device holding it.
	Slice

	// SliceBoxingCopy assembles an output region by copying regions of its inputs.
	SliceBoxingCopy

	// SliceBoxingAdd assembles an output region by summing regions of its inputs.
	SliceBoxingAdd

	// Zeros produces a blob filled with zeros.
	Zeros

	AllGather
	AllReduce
	ReduceScatter
	AllToAll

	// Last should always be kept the last, it is used as a counter/marker for .
	Last
)

var (
	// stableHLOMappings maps OpType to the corresponding StableHLO name, when the default
	// "snake case" doesn't work.
	stableHLOMappings = map[OpType]string{
		Copy:  "stablehlo.collective_permute",
		Zeros: "stablehlo.constant",
	}
)

// ToStableHLO returns the StableHLO name of the operation.
func (op OpType) ToStableHLO() string {
	name, ok := stableHLOMappings[op]
	if !ok {
		name = fmt.Sprintf("stablehlo.%s", utils.ToSnakeCase(op.String()))
	}
	return name
}

// IsCollective returns whether the operation is a collective over a group of devices.
func (op OpType) IsCollective() bool {
	switch op {
	case AllGather, AllReduce, ReduceScatter, AllToAll:
		return true
	}
	return false
}
