// Package taskgraph holds the physical execution graph built by boxing: TaskNodes bound to one device each,
// connected by data edges (a node consumes its inputs' output blobs) and control edges (ordering only).
//
// Nodes are created during graph construction and never mutated afterwards: the runtime only reads them.
package taskgraph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gomlx/boxing/internal/optypes"
	"github.com/gomlx/boxing/internal/utils"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/unixpickle/essentials"
)

// LogicalBlobId identifies a logical tensor: the producing op and its output slot.
type LogicalBlobId struct {
	OpName   string `yaml:"op_name"`
	BlobName string `yaml:"blob_name"`
}

// String implements fmt.Stringer, in the "op/blob" form.
func (l LogicalBlobId) String() string {
	return l.OpName + "/" + l.BlobName
}

// BlobDesc is the logical shape and dtype of the tensor identified by a LogicalBlobId.
type BlobDesc struct {
	Shape shapes.Shape
}

// TaskNode is one node of the physical graph.
type TaskNode struct {
	// ID is unique within the graph, assigned by AddNode in creation order.
	ID int64

	// Name of the node, unique within the graph. It defaults to "<op_type>_<id>".
	// Characters other than letters, digits and underscores are replaced by underscores.
	Name string

	OpType optypes.OpType

	// Device the node runs on, and its index in the ParallelDesc of the distribution it's part of.
	Device     placement.Device
	ParallelID int

	// Lbi is the logical blob this node holds a physical shard of.
	Lbi LogicalBlobId

	// Shape of the physical shard output by this node.
	Shape shapes.Shape

	// TimeShape is the execution time shape: how many times the node runs per step, possibly nested.
	TimeShape []int

	// Inputs are the data producers, in the order the op consumes them.
	Inputs []*TaskNode

	// CtrlInputs must run before this node, but their outputs are not consumed.
	CtrlInputs []*TaskNode

	// Attributes of the operation, e.g.: the views of a slice.
	Attributes map[string]any
}

// Lbn is the name of the physical output blob of the node, as registered in its output register.
func (n *TaskNode) Lbn() string {
	return n.Name + "/out"
}

// String implements fmt.Stringer.
func (n *TaskNode) String() string {
	return fmt.Sprintf("%s@%s", n.Name, n.Device)
}

// Attribute returns the attribute with the given key, or the zero value if it is not set or has a different type.
func Attribute[T any](n *TaskNode, key string) (value T, found bool) {
	v, ok := n.Attributes[key]
	if !ok {
		return
	}
	value, found = v.(T)
	return
}

// Graph is a physical execution graph.
//
// It is safe to add nodes concurrently: boxing builds the sub-graphs of independent blobs in parallel.
type Graph struct {
	// ID uniquely identifies the graph.
	ID uuid.UUID

	// Name of the graph, only informative.
	Name string

	mu    sync.Mutex
	nodes []*TaskNode
	byID  map[int64]*TaskNode
	names map[string]bool
}

// New creates a new empty graph.
func New(name string) *Graph {
	return &Graph{
		ID:    uuid.New(),
		Name:  name,
		byID:  make(map[int64]*TaskNode),
		names: make(map[string]bool),
	}
}

// NewSourceNode adds a node produced outside boxing: the holder of one shard of the input blob.
func (g *Graph) NewSourceNode(lbi LogicalBlobId, device placement.Device, parallelID int, shape shapes.Shape) *TaskNode {
	node, err := g.AddNode(&TaskNode{
		OpType:     optypes.Source,
		Device:     device,
		ParallelID: parallelID,
		Lbi:        lbi,
		Shape:      shape,
	})
	if err != nil {
		// A source node has no inputs and an automatic name, it can't fail.
		panic(err)
	}
	return node
}

// AddNode adds the node to the graph, assigning its ID (and Name, if empty).
// All its inputs must already be part of the graph.
func (g *Graph) AddNode(node *TaskNode) (*TaskNode, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node.OpType == optypes.Invalid {
		return nil, errors.Errorf("Graph.AddNode(%q): node with invalid op type", node.Name)
	}
	for ii, input := range slices.Concat(node.Inputs, node.CtrlInputs) {
		if input == nil || g.byID[input.ID] != input {
			return nil, errors.Errorf("Graph.AddNode(%s): input #%d (%v) is not part of the graph %q",
				node.OpType, ii, input, g.Name)
		}
	}
	node.ID = int64(len(g.nodes))
	node.Name = utils.NormalizeIdentifier(node.Name)
	if node.Name == "" {
		node.Name = fmt.Sprintf("%s_%d", utils.ToSnakeCase(node.OpType.String()), node.ID)
	}
	if g.names[node.Name] {
		return nil, errors.Errorf("Graph.AddNode(%s): duplicate node name %q", node.OpType, node.Name)
	}
	if node.Attributes == nil {
		node.Attributes = make(map[string]any)
	}
	g.names[node.Name] = true
	g.nodes = append(g.nodes, node)
	g.byID[node.ID] = node
	return node, nil
}

// AddCtrlEdge makes to run only after from has run.
func (g *Graph) AddCtrlEdge(from, to *TaskNode) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.byID[from.ID] != from || g.byID[to.ID] != to {
		return errors.Errorf("Graph.AddCtrlEdge(%s -> %s): nodes are not part of the graph %q", from, to, g.Name)
	}
	if from == to {
		return errors.Errorf("Graph.AddCtrlEdge(%s): self edge", from)
	}
	if essentials.Contains(to.CtrlInputs, from) {
		return nil
	}
	to.CtrlInputs = append(to.CtrlInputs, from)
	return nil
}

// Nodes returns the nodes of the graph in creation order.
func (g *Graph) Nodes() []*TaskNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Clone(g.nodes)
}

// Node returns the node with the given id, or nil.
func (g *Graph) Node(id int64) *TaskNode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.byID[id]
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.nodes)
}

// Consumers returns, for each node id, the nodes that take it as a data or control input.
func (g *Graph) Consumers() map[int64][]*TaskNode {
	consumers := make(map[int64][]*TaskNode)
	for _, node := range g.Nodes() {
		for _, input := range slices.Concat(node.Inputs, node.CtrlInputs) {
			consumers[input.ID] = append(consumers[input.ID], node)
		}
	}
	return consumers
}

// TopologicalOrder returns the nodes ordered such that every node comes after its data and control inputs.
// Among ready nodes, the creation order is kept.
//
// It returns an error if control edges formed a cycle.
func (g *Graph) TopologicalOrder() ([]*TaskNode, error) {
	nodes := g.Nodes()
	consumers := g.Consumers()
	pending := make(map[int64]int, len(nodes))
	var queue []*TaskNode
	for _, node := range nodes {
		pending[node.ID] = len(node.Inputs) + len(node.CtrlInputs)
		if pending[node.ID] == 0 {
			queue = append(queue, node)
		}
	}
	order := make([]*TaskNode, 0, len(nodes))
	for len(queue) > 0 {
		node := queue[0]
		essentials.OrderedDelete(&queue, 0)
		order = append(order, node)
		for _, consumer := range consumers[node.ID] {
			pending[consumer.ID]--
			if pending[consumer.ID] == 0 {
				queue = append(queue, consumer)
			}
		}
	}
	if len(order) != len(nodes) {
		return nil, errors.Errorf("graph %q has a cycle: only %d of %d nodes could be ordered",
			g.Name, len(order), len(nodes))
	}
	return order, nil
}
