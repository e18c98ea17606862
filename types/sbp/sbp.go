// Package sbp defines how a logical blob is laid out along each axis of a device hierarchy.
//
// Along one hierarchy axis, a blob is either:
//
//   - Split(axis): partitioned along logical dimension axis, each device holding a contiguous slice;
//   - Broadcast: each device holds a full copy;
//   - PartialSum: each device holds a partial value, and the logical value is the sum of all of them.
//
// A ParallelDistribution holds one SbpParallel per axis of the ParallelDesc hierarchy.
package sbp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gomlx/boxing/types"
	"github.com/gomlx/boxing/types/placement"
	"github.com/gomlx/boxing/types/shapes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Kind of per-axis distribution.
type Kind int

const (
	InvalidKind Kind = iota
	SplitKind
	BroadcastKind
	PartialSumKind
)

// SbpParallel is the distribution of a blob along one hierarchy axis.
// Axis is only meaningful for SplitKind.
type SbpParallel struct {
	Kind Kind
	Axis int
}

// Split returns the SbpParallel for a blob partitioned along the logical axis.
func Split(axis int) SbpParallel { return SbpParallel{Kind: SplitKind, Axis: axis} }

// Broadcast returns the SbpParallel for a blob replicated on every device.
func Broadcast() SbpParallel { return SbpParallel{Kind: BroadcastKind} }

// PartialSum returns the SbpParallel for a blob whose logical value is the sum of the devices' values.
func PartialSum() SbpParallel { return SbpParallel{Kind: PartialSumKind} }

func (s SbpParallel) IsSplit() bool      { return s.Kind == SplitKind }
func (s SbpParallel) IsBroadcast() bool  { return s.Kind == BroadcastKind }
func (s SbpParallel) IsPartialSum() bool { return s.Kind == PartialSumKind }

// Equal returns whether both describe the same distribution.
func (s SbpParallel) Equal(s2 SbpParallel) bool {
	if s.Kind != s2.Kind {
		return false
	}
	return s.Kind != SplitKind || s.Axis == s2.Axis
}

// String implements fmt.Stringer: "S(<axis>)", "B" or "P".
func (s SbpParallel) String() string {
	switch s.Kind {
	case SplitKind:
		return fmt.Sprintf("S(%d)", s.Axis)
	case BroadcastKind:
		return "B"
	case PartialSumKind:
		return "P"
	}
	return "Invalid"
}

// Parse converts the String form back to an SbpParallel.
func Parse(str string) (SbpParallel, error) {
	str = strings.TrimSpace(str)
	switch str {
	case "B":
		return Broadcast(), nil
	case "P":
		return PartialSum(), nil
	}
	if strings.HasPrefix(str, "S(") && strings.HasSuffix(str, ")") {
		axis, err := strconv.Atoi(str[2 : len(str)-1])
		if err == nil && axis >= 0 {
			return Split(axis), nil
		}
	}
	return SbpParallel{}, errors.Wrapf(types.ErrConfiguration, "cannot parse sbp %q, expected S(<axis>), B or P", str)
}

// UnmarshalYAML implements yaml.Unmarshaler, using the String form.
func (s *SbpParallel) UnmarshalYAML(node *yaml.Node) error {
	var str string
	if err := node.Decode(&str); err != nil {
		return err
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler, using the String form.
func (s SbpParallel) MarshalYAML() (any, error) {
	return s.String(), nil
}

// ParallelDistribution holds one SbpParallel per hierarchy axis.
type ParallelDistribution []SbpParallel

// Equal returns whether both distributions are equal axis by axis.
func (d ParallelDistribution) Equal(d2 ParallelDistribution) bool {
	if len(d) != len(d2) {
		return false
	}
	for i := range d {
		if !d[i].Equal(d2[i]) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the distribution.
func (d ParallelDistribution) Clone() ParallelDistribution {
	return append(ParallelDistribution(nil), d...)
}

// String implements fmt.Stringer. E.g.: "(S(0), B)".
func (d ParallelDistribution) String() string {
	parts := make([]string, len(d))
	for i, s := range d {
		parts[i] = s.String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// ParseDistribution parses a comma-separated list of SbpParallel, optionally in parenthesis: "S(0), B".
func ParseDistribution(str string) (ParallelDistribution, error) {
	str = strings.TrimSpace(str)
	if enclosedInParenthesis(str) {
		str = str[1 : len(str)-1]
	}
	var dist ParallelDistribution
	depth, start := 0, 0
	for i, r := range str {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				s, err := Parse(str[start:i])
				if err != nil {
					return nil, err
				}
				dist = append(dist, s)
				start = i + 1
			}
		}
	}
	s, err := Parse(str[start:])
	if err != nil {
		return nil, err
	}
	return append(dist, s), nil
}

// enclosedInParenthesis returns whether the first '(' of str matches its last character.
func enclosedInParenthesis(str string) bool {
	if !strings.HasPrefix(str, "(") {
		return false
	}
	depth := 0
	for i, r := range str {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i == len(str)-1
			}
		}
	}
	return false
}

// Validate checks that the distribution fits the hierarchy of desc and, if shape is valid, that split axes are
// within the blob's rank.
func (d ParallelDistribution) Validate(desc *placement.ParallelDesc, shape shapes.Shape) error {
	if len(d) != desc.Rank() {
		return errors.Wrapf(types.ErrConfiguration,
			"distribution %s has %d axes, but the hierarchy %v has rank %d", d, len(d), desc.Hierarchy(), desc.Rank())
	}
	for i, s := range d {
		switch s.Kind {
		case SplitKind:
			if s.Axis < 0 || (shape.Ok() && s.Axis >= shape.Rank()) {
				return errors.Wrapf(types.ErrConfiguration,
					"distribution %s axis #%d splits logical axis %d of blob shape %s", d, i, s.Axis, shape)
			}
		case BroadcastKind, PartialSumKind:
		default:
			return errors.Wrapf(types.ErrConfiguration, "distribution %s axis #%d is invalid", d, i)
		}
	}
	return nil
}
