// Package actor implements the runtime unit bound to one task: an ordered pipeline of kernels whose ports are
// resolved to register buffers on each invocation.
package actor

import (
	"fmt"

	"github.com/gomlx/boxing/types"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ExecNodeProto describes one kernel invocation of a task.
type ExecNodeProto struct {
	OpName string `yaml:"op_name"`

	// PortToRegstDescID maps the kernel's ports to the register descriptor supplying them.
	PortToRegstDescID map[string]int64 `yaml:"port_to_regst_desc_id"`
}

// TaskProto describes a task: its kernels, in execution order.
type TaskProto struct {
	ID           int64           `yaml:"id"`
	IsForward    bool            `yaml:"is_forward"`
	ExecSequence []ExecNodeProto `yaml:"exec_sequence"`
}

//go:generate go tool enumer -type=Direction -trimprefix=Direction -output=gen_direction_enumer.go actor.go

// Direction of the kernel entry point called by an actor.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// binding of a kernel to the registers supplying its ports.
type binding struct {
	opName      string
	kernel      Kernel
	portToRegst map[string]int64

	// blobs is reused across invocations.
	blobs Blobs
}

// Actor drives the repeated invocations of the kernels of one task.
//
// An Actor is not safe for concurrent use: it must be invoked by a single goroutine at a time.
type Actor struct {
	id        int64
	direction Direction
	entry     func(Kernel, Blobs) error
	bindings  []binding
}

// New creates the Actor of the task, with the kernels given by provider for each operation.
//
// Ports of a kernel without a register mapping are only reported with a warning: invoking the actor will fail
// with a DispatchError.
func New(task *TaskProto, provider KernelProvider) (*Actor, error) {
	a := &Actor{
		id:        task.ID,
		direction: DirectionBackward,
		entry:     Kernel.Backward,
	}
	if task.IsForward {
		a.direction, a.entry = DirectionForward, Kernel.Forward
	}
	a.bindings = make([]binding, 0, len(task.ExecSequence))
	for ii, exec := range task.ExecSequence {
		kernel, err := provider.Kernel(exec.OpName)
		if err != nil {
			return nil, errors.WithMessagef(err, "actor #%d, exec node #%d", task.ID, ii)
		}
		for _, port := range kernel.Ports() {
			if _, found := exec.PortToRegstDescID[port]; !found {
				klog.Warningf("actor #%d: op %q port %q has no register mapping", task.ID, exec.OpName, port)
			}
		}
		a.bindings = append(a.bindings, binding{
			opName:      exec.OpName,
			kernel:      kernel,
			portToRegst: exec.PortToRegstDescID,
			blobs:       make(Blobs, len(kernel.Ports())),
		})
	}
	klog.V(2).Infof("actor #%d: created with %d kernels, direction %s", a.id, len(a.bindings), a.direction)
	return a, nil
}

// ID of the task of the actor.
func (a *Actor) ID() int64 { return a.id }

// Direction of the kernel entry points called by Invoke.
func (a *Actor) Direction() Direction { return a.direction }

// NumKernels returns the number of kernels invoked by the actor.
func (a *Actor) NumKernels() int { return len(a.bindings) }

// Invoke runs each kernel in order, with its ports bound to the blobs of the registers returned by resolve.
//
// It stops at the first error: a port that can't be resolved to a blob returns a *DispatchError, and a kernel
// error is returned wrapped. Kernels after the failing one are not run.
// resolve must only return registers whose producers have finished writing them.
func (a *Actor) Invoke(resolve RegisterResolver) error {
	for ii := range a.bindings {
		b := &a.bindings[ii]
		for _, port := range b.kernel.Ports() {
			blob, err := a.resolvePort(b, port, resolve)
			if err != nil {
				return err
			}
			b.blobs[port] = blob
		}
		if klog.V(3).Enabled() {
			klog.Infof("actor #%d: %s %q", a.id, a.direction, b.opName)
		}
		if err := a.entry(b.kernel, b.blobs); err != nil {
			return errors.Wrapf(err, "actor #%d: %s of op %q", a.id, a.direction, b.opName)
		}
	}
	return nil
}

func (a *Actor) resolvePort(b *binding, port string, resolve RegisterResolver) (*Blob, error) {
	dispatchErr := func(regstDescID int64, reason string) error {
		return &DispatchError{ActorID: a.id, OpName: b.opName, Port: port, RegstDescID: regstDescID, Reason: reason}
	}
	regstDescID, found := b.portToRegst[port]
	if !found {
		return nil, dispatchErr(-1, "no register mapping")
	}
	regst := resolve(regstDescID)
	if regst == nil {
		return nil, dispatchErr(regstDescID, "no register")
	}
	lbn := b.kernel.LogicalBlobName(port)
	blob := regst.Blob(lbn)
	if blob == nil {
		return nil, dispatchErr(regstDescID, fmt.Sprintf("register has no blob %q", lbn))
	}
	return blob, nil
}

// DispatchError is returned by Actor.Invoke when a port can't be resolved to a blob.
// It matches types.ErrDispatchResolution with errors.Is.
type DispatchError struct {
	ActorID int64
	OpName  string
	Port    string

	// RegstDescID is -1 if the port has no register mapping.
	RegstDescID int64
	Reason      string
}

// Error implements error.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("%s: actor #%d, op %q, port %q (register %d): %s",
		types.ErrDispatchResolution, e.ActorID, e.OpName, e.Port, e.RegstDescID, e.Reason)
}

// Is implements the interface used by errors.Is.
func (e *DispatchError) Is(target error) bool {
	return target == types.ErrDispatchResolution
}
