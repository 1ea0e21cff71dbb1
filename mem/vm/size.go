package vm

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Defines the units of memory size.
const (
	B   uint64 = 1
	KiB uint64 = 1 << 10
	MiB uint64 = 1 << 20
	GiB uint64 = 1 << 30
)

var sizeUnits = map[string]uint64{
	"":      B,
	"b":     B,
	"bytes": B,
	"kib":   KiB,
	"mib":   MiB,
	"gib":   GiB,
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d*)?)\s*([a-z]*)$`)

// ParseSize converts strings like "4KiB", "0.5 MiB" or "4096" into a number
// of bytes. Units are case-insensitive. A fraction of a byte is truncated.
func ParseSize(s string) (uint64, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))

	match := sizePattern.FindStringSubmatch(normalized)
	if match == nil {
		return 0, fmt.Errorf("%w: unrecognized size format %q", ErrInvalidSize, s)
	}

	unit, ok := sizeUnits[match[2]]
	if !ok {
		return 0, fmt.Errorf("%w: unknown unit %q in %q", ErrInvalidSize,
			match[2], s)
	}

	if !strings.Contains(match[1], ".") {
		value, err := strconv.ParseUint(match[1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSize, s, err)
		}

		if value > ^uint64(0)/unit {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
		}

		return value * unit, nil
	}

	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrInvalidSize, s, err)
	}

	bytes := value * float64(unit)
	if bytes >= float64(1<<63) {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSize, s)
	}

	return uint64(bytes), nil
}
