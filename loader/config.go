// Package loader reads the text files that describe a simulation: the
// address-space configuration, the initial page table, and the list of
// virtual addresses to resolve.
package loader

import (
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sarchlab/pagesim/mem/vm"
)

// Keys of the address-space configuration file.
const (
	KeyPageSize         = "page_size"
	KeyFrameCount       = "frame_count"
	KeyVirtualPageCount = "virtual_page_count"
	KeyPhysicalMemory   = "physical_memory"
	KeyVirtualMemory    = "virtual_memory"
)

var knownKeys = map[string]bool{
	KeyPageSize:         true,
	KeyFrameCount:       true,
	KeyVirtualPageCount: true,
	KeyPhysicalMemory:   true,
	KeyVirtualMemory:    true,
}

// LoadAddressSpace reads a KEY=VALUE configuration file and builds the
// address space it describes.
func LoadAddressSpace(path string) (vm.AddressSpace, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return vm.AddressSpace{}, fmt.Errorf("reading %s: %w", path, err)
	}

	return buildAddressSpace(values)
}

// ParseAddressSpace is LoadAddressSpace for configurations that are not
// stored in a file.
func ParseAddressSpace(r io.Reader) (vm.AddressSpace, error) {
	values, err := godotenv.Parse(r)
	if err != nil {
		return vm.AddressSpace{}, err
	}

	return buildAddressSpace(values)
}

func buildAddressSpace(raw map[string]string) (vm.AddressSpace, error) {
	values := make(map[string]string)

	for key, value := range raw {
		key = strings.ToLower(strings.TrimSpace(key))
		if !knownKeys[key] {
			log.Printf("ignoring unknown configuration key %q", key)
			continue
		}

		value = strings.TrimSpace(value)
		if value == "" || strings.EqualFold(value, "none") {
			continue
		}

		values[key] = value
	}

	b := vm.MakeAddressSpaceBuilder()

	if v, ok := values[KeyPageSize]; ok {
		b = b.WithPageSize(v)
	}

	if v, ok := values[KeyPhysicalMemory]; ok {
		b = b.WithPhysicalMemory(v)
	}

	if v, ok := values[KeyVirtualMemory]; ok {
		b = b.WithVirtualMemory(v)
	}

	if v, ok := values[KeyFrameCount]; ok {
		n, err := parseCount(KeyFrameCount, v)
		if err != nil {
			return vm.AddressSpace{}, err
		}

		b = b.WithFrameCount(n)
	}

	if v, ok := values[KeyVirtualPageCount]; ok {
		n, err := parseCount(KeyVirtualPageCount, v)
		if err != nil {
			return vm.AddressSpace{}, err
		}

		b = b.WithVirtualPageCount(n)
	}

	return b.Build()
}

func parseCount(key, value string) (uint64, error) {
	n, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer (got %q)",
			vm.ErrInvalidConfiguration, key, value)
	}

	return n, nil
}

func openFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	return f, nil
}
