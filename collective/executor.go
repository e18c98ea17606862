package collective

import (
	"context"
	"sync"

	"github.com/gomlx/boxing/internal/buffers"
	"github.com/gomlx/boxing/internal/latches"
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/gomlx/pkg/support/xsync"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Executor runs the part of a collective request of one rank.
//
// Execute blocks until the operation completes for this rank: operand is read, and output is written with the
// Output shape of the request. All ranks of a replica group must call Execute for the same request.
type Executor interface {
	Execute(ctx context.Context, req *Request, rank int, operand, output []byte) error
}

// ReduceFn accumulates src into dst (dst += src), both flat buffers of the given dtype.
type ReduceFn func(dtype dtypes.DType, dst, src []byte) error

// HostExecutor implements Executor for ranks running in the same process, on host memory.
//
// The last rank of a group to arrive computes the outputs of all the group's ranks. It can be reused for
// any number of executions of the same requests, as long as all ranks of an execution arrive before any
// of them starts the next one.
type HostExecutor struct {
	reduce ReduceFn

	mu           sync.Mutex
	rendezvouses map[rendezvousKey]*rendezvous
}

type rendezvousKey struct {
	id    uuid.UUID
	group int
}

type rendezvous struct {
	operands, outputs [][]byte
	arrived           int
	done              *xsync.Latch
	err               error
}

var _ Executor = (*HostExecutor)(nil)

// NewHostExecutor creates a HostExecutor using reduce for the sums of AllReduce and ReduceScatter.
func NewHostExecutor(reduce ReduceFn) *HostExecutor {
	return &HostExecutor{
		reduce:       reduce,
		rendezvouses: make(map[rendezvousKey]*rendezvous),
	}
}

// Execute implements Executor.
func (e *HostExecutor) Execute(ctx context.Context, req *Request, rank int, operand, output []byte) error {
	groupIdx, position, err := req.GroupOf(rank)
	if err != nil {
		return err
	}
	if want := int(req.Operand.Memory()); len(operand) != want {
		return errors.Errorf("collective %s, rank %d: operand has %d bytes, %d expected", req, rank, len(operand), want)
	}
	if want := int(req.Output.Memory()); len(output) != want {
		return errors.Errorf("collective %s, rank %d: output has %d bytes, %d expected", req, rank, len(output), want)
	}
	group := req.ReplicaGroups[groupIdx]
	key := rendezvousKey{id: req.ID, group: groupIdx}

	e.mu.Lock()
	r, found := e.rendezvouses[key]
	if !found {
		r = &rendezvous{
			operands: make([][]byte, len(group)),
			outputs:  make([][]byte, len(group)),
			done:     xsync.NewLatch(),
		}
		e.rendezvouses[key] = r
	}
	if r.operands[position] != nil {
		e.mu.Unlock()
		return errors.Errorf("collective %s: rank %d arrived twice", req, rank)
	}
	r.operands[position], r.outputs[position] = operand, output
	r.arrived++
	last := r.arrived == len(group)
	if last {
		delete(e.rendezvouses, key)
	}
	e.mu.Unlock()

	if last {
		klog.V(3).Infof("collective %s: group #%d complete, executing", req, groupIdx)
		r.err = e.run(req, r.operands, r.outputs)
		r.done.Trigger()
	}
	if err := latches.Wait(ctx, r.done); err != nil {
		e.mu.Lock()
		if e.rendezvouses[key] == r {
			// Withdraw, so the rank can arrive again in a later attempt.
			r.operands[position], r.outputs[position] = nil, nil
			r.arrived--
			if r.arrived == 0 {
				delete(e.rendezvouses, key)
			}
		}
		e.mu.Unlock()
		return errors.Wrapf(err, "collective %s, rank %d: waiting for the other ranks", req, rank)
	}
	return r.err
}

// run executes the collective for one group, given the operands and outputs in group order.
func (e *HostExecutor) run(req *Request, operands, outputs [][]byte) error {
	dtype := req.Operand.DType
	elemSize := dtype.Size()
	n := len(operands)
	switch req.Op {
	case optypes.AllGather:
		for _, output := range outputs {
			if err := buffers.Concat(output, operands, req.Operand.Dimensions, req.Dim, elemSize); err != nil {
				return err
			}
		}
		return nil

	case optypes.AllReduce:
		sum, err := e.sum(dtype, operands)
		if err != nil {
			return err
		}
		for _, output := range outputs {
			copy(output, sum)
		}
		return nil

	case optypes.ReduceScatter:
		sum, err := e.sum(dtype, operands)
		if err != nil {
			return err
		}
		parts, err := buffers.Split(sum, req.Operand.Dimensions, req.Dim, n, elemSize)
		if err != nil {
			return err
		}
		for i, output := range outputs {
			copy(output, parts[i])
		}
		return nil

	case optypes.AllToAll:
		// pieces[i][j] is the part of rank i's operand sent to rank j.
		pieces := make([][][]byte, n)
		for i, operand := range operands {
			var err error
			pieces[i], err = buffers.Split(operand, req.Operand.Dimensions, req.SplitDim, n, elemSize)
			if err != nil {
				return err
			}
		}
		pieceDims := append([]int(nil), req.Operand.Dimensions...)
		pieceDims[req.SplitDim] /= n
		for j, output := range outputs {
			received := make([][]byte, n)
			for i := range received {
				received[i] = pieces[i][j]
			}
			if err := buffers.Concat(output, received, pieceDims, req.ConcatDim, elemSize); err != nil {
				return err
			}
		}
		return nil
	}
	return errors.Errorf("HostExecutor: %s is not a collective operation", req.Op)
}

func (e *HostExecutor) sum(dtype dtypes.DType, operands [][]byte) ([]byte, error) {
	if e.reduce == nil {
		return nil, errors.New("HostExecutor: no reduce function configured")
	}
	sum := append([]byte(nil), operands[0]...)
	for _, operand := range operands[1:] {
		if err := e.reduce(dtype, sum, operand); err != nil {
			return nil, err
		}
	}
	return sum, nil
}
