// Package hostexec runs task graphs on host memory: each node becomes an actor with its host kernel, and
// actors run concurrently, each once its producers are done.
package hostexec

import (
	"context"
	"sync"

	"github.com/gomlx/boxing"
	"github.com/gomlx/boxing/actor"
	"github.com/gomlx/boxing/collective"
	"github.com/gomlx/boxing/internal/latches"
	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/kernels"
	"github.com/gomlx/boxing/taskgraph"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/gomlx/gomlx/pkg/support/xsync"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// Plan is a compiled task graph, ready to run.
//
// The register descriptor of a node output is the node ID.
type Plan struct {
	graph    *taskgraph.Graph
	order    []*taskgraph.TaskNode
	tasks    []*actor.TaskProto
	actors   map[int64]*actor.Actor
	executor *runExecutor

	// muRun serializes runs: an actor is never invoked concurrently.
	muRun sync.Mutex
}

// Compile creates one task, with its actor, per non-source node of g. Source nodes are the inputs of Plan.Run.
func Compile(g *taskgraph.Graph) (*Plan, error) {
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, err
	}
	p := &Plan{
		graph:    g,
		order:    order,
		actors:   make(map[int64]*actor.Actor),
		executor: &runExecutor{host: collective.NewHostExecutor(kernels.Accumulate)},
	}
	registry := actor.NewKernelRegistry()
	for _, node := range order {
		if node.OpType == optypes.Source {
			continue
		}
		kernel, err := kernels.New(node, p.executor)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(node.Name, kernel); err != nil {
			return nil, err
		}
		portToRegst := map[string]int64{kernels.OutPort: node.ID}
		for i, input := range node.Inputs {
			portToRegst[kernels.InPort(i)] = input.ID
		}
		task := &actor.TaskProto{
			ID:        node.ID,
			IsForward: true,
			ExecSequence: []actor.ExecNodeProto{
				{OpName: node.Name, PortToRegstDescID: portToRegst},
			},
		}
		a, err := actor.New(task, registry)
		if err != nil {
			return nil, err
		}
		p.tasks = append(p.tasks, task)
		p.actors[node.ID] = a
	}
	klog.V(1).Infof("hostexec: compiled graph %q: %d actors", g.Name, len(p.actors))
	return p, nil
}

// Tasks returns the tasks of the plan, in topological order.
func (p *Plan) Tasks() []*actor.TaskProto {
	return p.tasks
}

// Run executes the plan once. inputs maps the ID of each source node to its data, row-major with the
// node's shape. It returns the output blob of every node, by node ID.
//
// It returns the first error of an actor. Actors not started yet are then skipped, and running collectives
// are cancelled.
func (p *Plan) Run(ctx context.Context, inputs map[int64][]byte) (map[int64]*actor.Blob, error) {
	p.muRun.Lock()
	defer p.muRun.Unlock()

	registers := make(map[int64]*kernels.HostRegister, len(p.order))
	done := make(map[int64]*xsync.Latch, len(p.order))
	outputs := make(map[int64]*actor.Blob, len(p.order))
	for _, node := range p.order {
		register := kernels.NewHostRegister()
		registers[node.ID] = register
		done[node.ID] = xsync.NewLatch()
		if node.OpType != optypes.Source {
			outputs[node.ID] = register.Alloc(node.Lbn(), node.Shape)
			continue
		}
		data, found := inputs[node.ID]
		if !found {
			return nil, errors.Errorf("hostexec: no input for source node %s", node)
		}
		if want := int(node.Shape.Memory()); len(data) != want {
			return nil, errors.Errorf("hostexec: input of %s has %d bytes, %d expected for %s", node, len(data), want, node.Shape)
		}
		blob := &actor.Blob{Shape: node.Shape, Data: data}
		register.Set(node.Lbn(), blob)
		outputs[node.ID] = blob
		done[node.ID].Trigger()
	}
	resolve := func(regstDescID int64) actor.Register {
		if register, found := registers[regstDescID]; found {
			return register
		}
		return nil
	}

	eg, ctx := errgroup.WithContext(ctx)
	p.executor.bind(ctx)
	defer p.executor.bind(nil)
	for _, node := range p.order {
		a, found := p.actors[node.ID]
		if !found {
			continue
		}
		producers := make([]*xsync.Latch, 0, len(node.Inputs)+len(node.CtrlInputs))
		for _, input := range node.Inputs {
			producers = append(producers, done[input.ID])
		}
		for _, input := range node.CtrlInputs {
			producers = append(producers, done[input.ID])
		}
		eg.Go(func() error {
			if err := latches.WaitAll(ctx, producers...); err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := a.Invoke(resolve); err != nil {
				return err
			}
			done[node.ID].Trigger()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return outputs, nil
}

// SourceInputs returns the inputs of Plan.Run for the source nodes of g, each holding the region of the
// logical blob given by its boxing.AttrView attribute, as created by boxing.NewSourceNodes.
func SourceInputs(g *taskgraph.Graph, logical *actor.Blob) (map[int64][]byte, error) {
	full := shapes.FullView(logical.Shape)
	inputs := make(map[int64][]byte)
	for _, node := range g.Nodes() {
		if node.OpType != optypes.Source {
			continue
		}
		view, found := taskgraph.Attribute[shapes.SliceView](node, boxing.AttrView)
		if !found {
			return nil, errors.Errorf("hostexec: source node %s has no %q attribute", node, boxing.AttrView)
		}
		region, err := kernels.Region(logical, full, view)
		if err != nil {
			return nil, errors.WithMessagef(err, "hostexec: input of %s", node)
		}
		inputs[node.ID] = region.Data
	}
	return inputs, nil
}

// runExecutor runs collectives on the host, with the context of the current run. Kernels have no context of
// their own.
type runExecutor struct {
	host *collective.HostExecutor

	mu  sync.Mutex
	ctx context.Context
}

var _ collective.Executor = (*runExecutor)(nil)

func (e *runExecutor) bind(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ctx = ctx
}

// Execute implements collective.Executor.
func (e *runExecutor) Execute(ctx context.Context, req *collective.Request, rank int, operand, output []byte) error {
	e.mu.Lock()
	if e.ctx != nil {
		ctx = e.ctx
	}
	e.mu.Unlock()
	return e.host.Execute(ctx, req, rank, operand, output)
}
