// Package types defines the small enums and error kinds shared by the boxing planner and the actor runtime.
package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// DeviceType is the kind of device a task node is placed on.
type DeviceType int

const (
	InvalidDevice DeviceType = iota
	CPU
	CUDA
)

// String returns the device tag, as used in ParallelConf.
func (t DeviceType) String() string {
	switch t {
	case CPU:
		return "cpu"
	case CUDA:
		return "cuda"
	}
	return fmt.Sprintf("DeviceType(%d)", int(t))
}

// ParseDeviceType converts a device tag ("cpu", "cuda", "gpu") to a DeviceType.
func ParseDeviceType(tag string) (DeviceType, error) {
	switch strings.ToLower(strings.TrimSpace(tag)) {
	case "cpu":
		return CPU, nil
	case "cuda", "gpu":
		return CUDA, nil
	}
	return InvalidDevice, errors.Wrapf(ErrConfiguration, "unknown device tag %q", tag)
}
