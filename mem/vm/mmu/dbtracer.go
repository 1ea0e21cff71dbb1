package mmu

import (
	"fmt"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/sim"
)

// AccessTableName is the table that DBTracer writes to.
const AccessTableName = "mmu_access"

type accessEntry struct {
	ID         string
	Component  string
	VAddr      string
	VPN        int64
	Outcome    string
	Frame      int64
	PAddr      int64
	EvictedVPN int64
}

// DBTracer records every completed access as a row of a DataRecorder table.
// Virtual addresses are stored as hexadecimal strings. Columns that do not
// apply to an access hold -1.
type DBTracer struct {
	recorder datarecording.DataRecorder
}

// NewDBTracer creates a DBTracer and the table it writes to.
func NewDBTracer(recorder datarecording.DataRecorder) *DBTracer {
	recorder.CreateTable(AccessTableName, accessEntry{})

	return &DBTracer{recorder: recorder}
}

// Func records the access.
func (t *DBTracer) Func(ctx sim.HookCtx) {
	if ctx.Pos != HookPosAccessEnd {
		return
	}

	info := ctx.Item.(*AccessInfo)
	entry := accessEntry{
		ID:         info.ID,
		VAddr:      fmt.Sprintf("%#x", info.VAddr),
		VPN:        -1,
		Outcome:    string(info.Outcome),
		Frame:      -1,
		PAddr:      -1,
		EvictedVPN: -1,
	}

	if named, ok := ctx.Domain.(sim.Named); ok {
		entry.Component = named.Name()
	}

	if info.Outcome != OutcomeOutOfRange {
		entry.VPN = int64(info.VPN)
	}

	if info.Outcome == OutcomeHit || info.Outcome == OutcomeFault {
		entry.Frame = int64(info.Result.Frame)
		entry.PAddr = int64(info.Result.PhysicalAddress)
	}

	if info.Eviction != nil {
		entry.EvictedVPN = int64(info.Eviction.VPN)
	}

	t.recorder.InsertData(AccessTableName, entry)
}
