// Package kernels implements host reference kernels for the operations of boxing sub-graphs.
//
// Kernels work on host memory, with blobs laid out row-major. They are used to execute and verify boxing
// plans in-process, see package hostexec.
package kernels

import (
	"context"
	"fmt"

	"github.com/gomlx/boxing"
	"github.com/gomlx/boxing/actor"
	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/internal/buffers"
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/pkg/errors"
)

// OutPort is the port of the output blob of every kernel.
const OutPort = "out"

// InPort returns the name of the port of the i-th input of a node.
func InPort(i int) string {
	return fmt.Sprintf("in_%d", i)
}

// New creates the kernel executing the node. Collective nodes use executor, which can be nil otherwise.
//
// The kernel's input ports are bound to the output blobs of node.Inputs, by their Lbn.
func New(node *taskgraph.TaskNode, executor collective.Executor) (actor.Kernel, error) {
	b := base{node: node, lbns: make(map[string]string, len(node.Inputs)+1)}
	for i, input := range node.Inputs {
		port := InPort(i)
		b.ports = append(b.ports, port)
		b.lbns[port] = input.Lbn()
	}
	b.ports = append(b.ports, OutPort)
	b.lbns[OutPort] = node.Lbn()

	numInputs := func(n int) error {
		if len(node.Inputs) != n {
			return errors.Errorf("kernels.New(%s): %s takes %d inputs, got %d", node, node.OpType, n, len(node.Inputs))
		}
		return nil
	}
	switch node.OpType {
	case optypes.Copy:
		if err := numInputs(1); err != nil {
			return nil, err
		}
		return &copyKernel{base: b}, nil

	case optypes.Slice:
		if err := numInputs(1); err != nil {
			return nil, err
		}
		inView, ok1 := taskgraph.Attribute[shapes.SliceView](node, boxing.AttrInView)
		view, ok2 := taskgraph.Attribute[shapes.SliceView](node, boxing.AttrView)
		if !ok1 || !ok2 {
			return nil, errors.Errorf("kernels.New(%s): missing in_view or view attribute", node)
		}
		return &sliceKernel{base: b, inView: inView, view: view}, nil

	case optypes.SliceBoxingCopy, optypes.SliceBoxingAdd:
		inViews, ok1 := taskgraph.Attribute[[]shapes.SliceView](node, boxing.AttrInViews)
		view, ok2 := taskgraph.Attribute[shapes.SliceView](node, boxing.AttrView)
		if !ok1 || !ok2 {
			return nil, errors.Errorf("kernels.New(%s): missing in_views or view attribute", node)
		}
		if err := numInputs(len(inViews)); err != nil {
			return nil, err
		}
		return &sliceBoxingKernel{base: b, add: node.OpType == optypes.SliceBoxingAdd, inViews: inViews, view: view}, nil

	case optypes.Zeros:
		return &zerosKernel{base: b}, nil

	case optypes.AllGather, optypes.AllReduce, optypes.ReduceScatter, optypes.AllToAll:
		if err := numInputs(1); err != nil {
			return nil, err
		}
		req, ok := taskgraph.Attribute[*collective.Request](node, boxing.AttrCollective)
		if !ok {
			return nil, errors.Errorf("kernels.New(%s): missing collective attribute", node)
		}
		if executor == nil {
			return nil, errors.Errorf("kernels.New(%s): no collective executor", node)
		}
		return &collectiveKernel{base: b, req: req, executor: executor}, nil
	}
	return nil, errors.Errorf("kernels.New(%s): no host kernel for %s", node, node.OpType)
}

// base implements the port contract shared by all kernels.
type base struct {
	node  *taskgraph.TaskNode
	ports []string
	lbns  map[string]string
}

func (b *base) Ports() []string { return b.ports }

func (b *base) LogicalBlobName(port string) string { return b.lbns[port] }

func (b *base) Backward(actor.Blobs) error {
	return errors.Errorf("%s: boxing kernels have no backward", b.node)
}

// inOut returns the i-th input blob and the output blob, checking their sizes against the node's shapes.
func (b *base) inOut(blobs actor.Blobs, i int) (in, out *actor.Blob, err error) {
	if i >= 0 {
		in, err = blobs.Get(InPort(i))
		if err != nil {
			return nil, nil, errors.WithMessagef(err, "%s", b.node)
		}
		if want := int(b.node.Inputs[i].Shape.Memory()); len(in.Data) != want {
			return nil, nil, errors.Errorf("%s: input #%d has %d bytes, %d expected for %s",
				b.node, i, len(in.Data), want, b.node.Inputs[i].Shape)
		}
	}
	out, err = blobs.Get(OutPort)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "%s", b.node)
	}
	if want := int(b.node.Shape.Memory()); len(out.Data) != want {
		return nil, nil, errors.Errorf("%s: output has %d bytes, %d expected for %s", b.node, len(out.Data), want, b.node.Shape)
	}
	return in, out, nil
}

type copyKernel struct{ base }

func (k *copyKernel) Forward(blobs actor.Blobs) error {
	in, out, err := k.inOut(blobs, 0)
	if err != nil {
		return err
	}
	copy(out.Data, in.Data)
	return nil
}

type zerosKernel struct{ base }

func (k *zerosKernel) Forward(blobs actor.Blobs) error {
	_, out, err := k.inOut(blobs, -1)
	if err != nil {
		return err
	}
	clear(out.Data)
	return nil
}

// sliceKernel extracts view from an input holding inView.
type sliceKernel struct {
	base
	inView, view shapes.SliceView
}

func (k *sliceKernel) Forward(blobs actor.Blobs) error {
	in, out, err := k.inOut(blobs, 0)
	if err != nil {
		return err
	}
	dims := k.view.Dimensions()
	buffers.CopyRegion(out.Data, dims, make([]int, len(dims)),
		in.Data, k.inView.Dimensions(), offset(k.view, k.inView), dims, k.node.Shape.DType.Size())
	return nil
}

// sliceBoxingKernel assembles view from inputs holding inViews, copying or summing them into place.
type sliceBoxingKernel struct {
	base
	add     bool
	inViews []shapes.SliceView
	view    shapes.SliceView
}

func (k *sliceBoxingKernel) Forward(blobs actor.Blobs) error {
	_, out, err := k.inOut(blobs, -1)
	if err != nil {
		return err
	}
	dtype := k.node.Shape.DType
	elemSize := dtype.Size()
	outDims := k.view.Dimensions()
	if k.add {
		clear(out.Data)
	}
	for i, inView := range k.inViews {
		in, _, err := k.inOut(blobs, i)
		if err != nil {
			return err
		}
		inDims := inView.Dimensions()
		start := offset(inView, k.view)
		if !k.add {
			buffers.CopyRegion(out.Data, outDims, start, in.Data, inDims, make([]int, len(inDims)), inDims, elemSize)
			continue
		}
		var rowErr error
		buffers.ForEachRow(out.Data, outDims, start, in.Data, inDims, make([]int, len(inDims)), inDims, elemSize,
			func(dstRow, srcRow []byte) {
				if rowErr == nil {
					rowErr = Accumulate(dtype, dstRow, srcRow)
				}
			})
		if rowErr != nil {
			return errors.WithMessagef(rowErr, "%s: input #%d", k.node, i)
		}
	}
	return nil
}

// offset returns the position of the region view within the region outer.
func offset(view, outer shapes.SliceView) []int {
	start := make([]int, view.Rank())
	for axis, r := range view.Ranges {
		start[axis] = r.Begin - outer.Ranges[axis].Begin
	}
	return start
}

// collectiveKernel runs the node's rank of a collective request.
type collectiveKernel struct {
	base
	req      *collective.Request
	executor collective.Executor
}

func (k *collectiveKernel) Forward(blobs actor.Blobs) error {
	in, out, err := k.inOut(blobs, 0)
	if err != nil {
		return err
	}
	return k.executor.Execute(context.Background(), k.req, k.node.ParallelID, in.Data, out.Data)
}
