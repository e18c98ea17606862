// Package placement defines ParallelDesc: the ordered device hierarchy and placement over which a logical blob is
// distributed.
//
// A ParallelDesc is built from a ParallelConf, its wire shape. Devices are listed in parallel id order, and the
// hierarchy arranges them (row-major) into one or more axes.
//
// Example:
//
//	desc, err := placement.NewParallelDesc(placement.ParallelConf{
//		DeviceTag:   "cuda",
//		DeviceNames: []string{"0:0-3", "1:0-3"},
//		Hierarchy:   []int{2, 4},
//	})
package placement

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/boxing/internal/utils"
	"github.com/gomlx/boxing/types"
	"github.com/pkg/errors"
)

// ParallelConf is the serialized shape of a ParallelDesc.
type ParallelConf struct {
	// DeviceTag is "cpu" or "cuda".
	DeviceTag string `yaml:"device_tag"`

	// DeviceNames lists devices as "<machine>:<device>" or "<machine>:<first>-<last>".
	DeviceNames []string `yaml:"device_name"`

	// Hierarchy is the number of devices along each axis. Empty means a single axis with all devices.
	Hierarchy []int `yaml:"hierarchy,omitempty"`
}

// Device is one physical device.
type Device struct {
	Type      types.DeviceType
	MachineID int
	DeviceID  int
}

// String implements fmt.Stringer. E.g.: "cuda@0:3".
func (d Device) String() string {
	return fmt.Sprintf("%s@%d:%d", d.Type, d.MachineID, d.DeviceID)
}

// ParallelDesc is an immutable device hierarchy plus placement.
type ParallelDesc struct {
	deviceType types.DeviceType

	// hierarchy defines the number of devices along each axis.
	hierarchy []int

	// devices in parallel id order.
	devices []Device

	// deviceToParallelID maps devices back to their index.
	deviceToParallelID map[Device]int
}

// NewParallelDesc validates conf and creates the corresponding ParallelDesc.
//
// It returns an error matching types.ErrConfiguration if a device name can't be parsed, a device is duplicated,
// a hierarchy dimension is not positive, or the product of the hierarchy doesn't match the number of devices.
func NewParallelDesc(conf ParallelConf) (*ParallelDesc, error) {
	deviceType, err := types.ParseDeviceType(conf.DeviceTag)
	if err != nil {
		return nil, err
	}
	var devices []Device
	for _, name := range conf.DeviceNames {
		parsed, err := parseDeviceName(deviceType, name)
		if err != nil {
			return nil, err
		}
		devices = append(devices, parsed...)
	}
	if len(devices) == 0 {
		return nil, errors.Wrapf(types.ErrConfiguration, "ParallelDesc has no devices")
	}
	hierarchy := slices.Clone(conf.Hierarchy)
	if len(hierarchy) == 0 {
		hierarchy = []int{len(devices)}
	}
	return newParallelDesc(deviceType, hierarchy, devices)
}

// MustNewParallelDesc is like NewParallelDesc, but panics on error. Meant for tests and static tables.
func MustNewParallelDesc(conf ParallelConf) *ParallelDesc {
	desc, err := NewParallelDesc(conf)
	if err != nil {
		panic(err)
	}
	return desc
}

func newParallelDesc(deviceType types.DeviceType, hierarchy []int, devices []Device) (*ParallelDesc, error) {
	numDevices := 1
	for axis, dim := range hierarchy {
		if dim <= 0 {
			return nil, errors.Wrapf(types.ErrConfiguration,
				"ParallelDesc hierarchy %v has non-positive dimension %d at axis %d", hierarchy, dim, axis)
		}
		numDevices *= dim
	}
	if numDevices != len(devices) {
		return nil, errors.Wrapf(types.ErrConfiguration,
			"ParallelDesc hierarchy %v holds %d devices, but %d devices were given", hierarchy, numDevices, len(devices))
	}
	seen := utils.MakeSet[Device](len(devices))
	deviceToParallelID := make(map[Device]int, len(devices))
	for parallelID, device := range devices {
		if seen.Has(device) {
			return nil, errors.Wrapf(types.ErrConfiguration, "device %s is duplicated in ParallelDesc", device)
		}
		seen.Insert(device)
		deviceToParallelID[device] = parallelID
	}
	return &ParallelDesc{
		deviceType:         deviceType,
		hierarchy:          hierarchy,
		devices:            devices,
		deviceToParallelID: deviceToParallelID,
	}, nil
}

// parseDeviceName parses "<machine>:<device>" or "<machine>:<first>-<last>".
func parseDeviceName(deviceType types.DeviceType, name string) ([]Device, error) {
	machineStr, devicesStr, found := strings.Cut(strings.TrimSpace(name), ":")
	if !found {
		return nil, errors.Wrapf(types.ErrConfiguration, "device name %q must have the form <machine>:<devices>", name)
	}
	machineID, err := strconv.Atoi(machineStr)
	if err != nil || machineID < 0 {
		return nil, errors.Wrapf(types.ErrConfiguration, "device name %q has invalid machine id", name)
	}
	firstStr, lastStr, isRange := strings.Cut(devicesStr, "-")
	first, err := strconv.Atoi(firstStr)
	if err != nil || first < 0 {
		return nil, errors.Wrapf(types.ErrConfiguration, "device name %q has invalid device id", name)
	}
	last := first
	if isRange {
		last, err = strconv.Atoi(lastStr)
		if err != nil || last < first {
			return nil, errors.Wrapf(types.ErrConfiguration, "device name %q has invalid device range", name)
		}
	}
	devices := make([]Device, 0, last-first+1)
	for deviceID := first; deviceID <= last; deviceID++ {
		devices = append(devices, Device{Type: deviceType, MachineID: machineID, DeviceID: deviceID})
	}
	return devices, nil
}

// DeviceType of all devices in the placement.
func (p *ParallelDesc) DeviceType() types.DeviceType {
	return p.deviceType
}

// ParallelNum returns the total number of devices.
func (p *ParallelDesc) ParallelNum() int {
	return len(p.devices)
}

// Rank returns the number of axes in the hierarchy.
func (p *ParallelDesc) Rank() int {
	return len(p.hierarchy)
}

// Hierarchy returns a copy of the hierarchy.
func (p *ParallelDesc) Hierarchy() []int {
	return slices.Clone(p.hierarchy)
}

// Device returns the device with the given parallel id.
func (p *ParallelDesc) Device(parallelID int) Device {
	return p.devices[parallelID]
}

// Devices returns a copy of the devices, in parallel id order.
func (p *ParallelDesc) Devices() []Device {
	return slices.Clone(p.devices)
}

// ParallelIDOf returns the parallel id of device, if it is part of the placement.
func (p *ParallelDesc) ParallelIDOf(device Device) (int, bool) {
	parallelID, found := p.deviceToParallelID[device]
	return parallelID, found
}

// HasMachine returns whether any device of the placement is on the given machine.
func (p *ParallelDesc) HasMachine(machineID int) bool {
	for _, device := range p.devices {
		if device.MachineID == machineID {
			return true
		}
	}
	return false
}

// EqualPlacement returns whether both descs use the same devices in the same order, regardless of the hierarchy.
func (p *ParallelDesc) EqualPlacement(other *ParallelDesc) bool {
	return p.deviceType == other.deviceType && slices.Equal(p.devices, other.devices)
}

// Equal returns whether both descs are interchangeable: same placement and same hierarchy.
func (p *ParallelDesc) Equal(other *ParallelDesc) bool {
	return p.EqualPlacement(other) && slices.Equal(p.hierarchy, other.hierarchy)
}

// WithHierarchy returns a ParallelDesc with the same placement arranged in a different hierarchy.
// The product of the new hierarchy must match ParallelNum.
func (p *ParallelDesc) WithHierarchy(hierarchy []int) (*ParallelDesc, error) {
	return newParallelDesc(p.deviceType, slices.Clone(hierarchy), p.devices)
}

// ParallelConf returns the serialized form of the desc.
// Devices are listed one per entry.
func (p *ParallelDesc) ParallelConf() ParallelConf {
	names := make([]string, len(p.devices))
	for i, device := range p.devices {
		names[i] = fmt.Sprintf("%d:%d", device.MachineID, device.DeviceID)
	}
	return ParallelConf{
		DeviceTag:   p.deviceType.String(),
		DeviceNames: names,
		Hierarchy:   slices.Clone(p.hierarchy),
	}
}

// String implements the fmt.Stringer interface.
func (p *ParallelDesc) String() string {
	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "ParallelDesc(%s, hierarchy=%v, devices={", p.deviceType, p.hierarchy)
	for i, device := range p.devices {
		if i > 0 {
			sb.WriteString(", ")
		}
		_, _ = fmt.Fprintf(&sb, "%d:%d", device.MachineID, device.DeviceID)
	}
	sb.WriteString("})")
	return sb.String()
}

// ComputeReplicaGroups returns the groups of parallel ids participating in some collective operation performed
// along the given hierarchy axes.
//
// Each group includes the parallel ids that differ only in the given axes. The other axes are split into
// different groups.
//
// Example:
//
//	desc with hierarchy [2, 2]
//	desc.ComputeReplicaGroups([]int{0})     // -> [][]int{{0, 2}, {1, 3}}
//	desc.ComputeReplicaGroups([]int{1})     // -> [][]int{{0, 1}, {2, 3}}
//	desc.ComputeReplicaGroups([]int{0, 1})  // -> [][]int{{0, 1, 2, 3}}
func (p *ParallelDesc) ComputeReplicaGroups(axes []int) ([][]int, error) {
	axisSet := utils.MakeSet[int](len(axes))
	for _, axis := range axes {
		if axis < 0 || axis >= len(p.hierarchy) {
			return nil, errors.Errorf("axis %d out of range for hierarchy %v", axis, p.hierarchy)
		}
		if axisSet.Has(axis) {
			return nil, errors.Errorf("axis %d is duplicated: each axis can only appear once", axis)
		}
		axisSet.Insert(axis)
	}
	var nonAxes []int
	for axis := range p.hierarchy {
		if !axisSet.Has(axis) {
			nonAxes = append(nonAxes, axis)
		}
	}

	groupSize := 1
	for _, axis := range axes {
		groupSize *= p.hierarchy[axis]
	}
	numDevices := len(p.devices)
	groups := make([][]int, numDevices/groupSize)
	for i := range groups {
		groups[i] = make([]int, groupSize)
	}

	indices := make([]int, len(p.hierarchy))
	for flatIdx := 0; flatIdx < numDevices; flatIdx++ {
		remaining := flatIdx
		for axis := len(p.hierarchy) - 1; axis >= 0; axis-- {
			indices[axis] = remaining % p.hierarchy[axis]
			remaining /= p.hierarchy[axis]
		}
		groupIdx, multiplier := 0, 1
		for i := len(nonAxes) - 1; i >= 0; i-- {
			groupIdx += indices[nonAxes[i]] * multiplier
			multiplier *= p.hierarchy[nonAxes[i]]
		}
		posInGroup := 0
		multiplier = 1
		for i := len(axes) - 1; i >= 0; i-- {
			posInGroup += indices[axes[i]] * multiplier
			multiplier *= p.hierarchy[axes[i]]
		}
		groups[groupIdx][posInGroup] = flatIdx
	}
	return groups, nil
}
