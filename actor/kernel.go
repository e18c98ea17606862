package actor

import (
	"sync"

	"github.com/gomlx/boxing/types/shapes"
	"github.com/pkg/errors"
)

// Blob is the physical buffer of one shard of a logical blob, with its shape. Data is row-major.
type Blob struct {
	Shape shapes.Shape
	Data  []byte
}

// Blobs maps the port names of a kernel to the blobs bound to them for one invocation.
type Blobs map[string]*Blob

// Get returns the blob bound to port, or an error if there is none.
func (b Blobs) Get(port string) (*Blob, error) {
	blob, found := b[port]
	if !found || blob == nil {
		return nil, errors.Errorf("no blob bound to port %q", port)
	}
	return blob, nil
}

// Kernel is a compute step with a stable port contract.
//
// Forward and Backward read and write the blobs bound to the ports returned by Ports. They must not retain
// the blobs after returning.
type Kernel interface {
	// Ports declared by the kernel, inputs and outputs.
	Ports() []string

	// LogicalBlobName of the blob bound to port: the key used to find its buffer within a Register.
	LogicalBlobName(port string) string

	Forward(blobs Blobs) error
	Backward(blobs Blobs) error
}

// Register is a buffer slot holding the blobs produced by a task.
type Register interface {
	// Blob returns the blob with the logical blob name lbn, or nil if the register doesn't hold it.
	Blob(lbn string) *Blob
}

// RegisterResolver returns the current register of a register descriptor id, or nil if there is none.
type RegisterResolver func(regstDescID int64) Register

// KernelProvider returns the kernel of an operation name.
type KernelProvider interface {
	Kernel(opName string) (Kernel, error)
}

// KernelRegistry is a KernelProvider of registered kernels. It is safe for concurrent use.
type KernelRegistry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

var _ KernelProvider = (*KernelRegistry)(nil)

// NewKernelRegistry returns an empty KernelRegistry.
func NewKernelRegistry() *KernelRegistry {
	return &KernelRegistry{kernels: make(map[string]Kernel)}
}

// Register the kernel of opName. Registering the same opName twice is an error.
func (r *KernelRegistry) Register(opName string, kernel Kernel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, found := r.kernels[opName]; found {
		return errors.Errorf("KernelRegistry: kernel for op %q already registered", opName)
	}
	r.kernels[opName] = kernel
	return nil
}

// Kernel implements KernelProvider.
func (r *KernelRegistry) Kernel(opName string) (Kernel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kernel, found := r.kernels[opName]
	if !found {
		return nil, errors.Errorf("KernelRegistry: no kernel registered for op %q", opName)
	}
	return kernel, nil
}

// Len returns the number of registered kernels.
func (r *KernelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kernels)
}
