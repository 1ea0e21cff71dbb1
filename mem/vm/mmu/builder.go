package mmu

import (
	"fmt"

	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/frames"
	"github.com/sarchlab/pagesim/mem/vm/translator"
	"github.com/sarchlab/pagesim/sim"
)

// A Builder can build MMU component
type Builder struct {
	space     *vm.AddressSpace
	pageTable vm.PageTable
	hooks     []sim.Hook
}

// MakeBuilder creates a new builder
func MakeBuilder() Builder {
	return Builder{}
}

// WithAddressSpace sets the geometry of the simulated memory.
func (b Builder) WithAddressSpace(space vm.AddressSpace) Builder {
	b.space = &space
	return b
}

// WithPageTable sets the page table that the MMU uses. Pages present in the
// table are resident from the start. Without a table, the MMU starts with an
// empty one.
func (b Builder) WithPageTable(pageTable vm.PageTable) Builder {
	b.pageTable = pageTable
	return b
}

// WithHook registers a hook on the MMU. The hook also receives the events of
// the frame manager.
func (b Builder) WithHook(hook sim.Hook) Builder {
	b.hooks = append(b.hooks, hook)
	return b
}

// Build returns a newly created MMU component
func (b Builder) Build(name string) (*Comp, error) {
	if b.space == nil {
		return nil, fmt.Errorf("%w: mmu %s has no address space",
			vm.ErrInvalidConfiguration, name)
	}

	c := &Comp{
		HookableBase: sim.NewHookableBase(),
		name:         name,
		space:        *b.space,
		pageTable:    b.pageTable,
		translator:   translator.New(*b.space),
	}

	if c.pageTable == nil {
		c.pageTable = vm.NewPageTable()
	}

	frameManager, err := frames.NewLRUFrameManager(c.space, c.pageTable)
	if err != nil {
		return nil, err
	}

	c.frames = frameManager
	c.frames.AcceptHook(sim.HookFunc(func(ctx sim.HookCtx) {
		c.InvokeHook(ctx)
	}))

	for _, h := range b.hooks {
		c.AcceptHook(h)
	}

	return c, nil
}
