package datarecording

import (
	"os"
	"strings"
	"time"
)

// ExecTableName is the table that an ExecRecorder writes to.
const ExecTableName = "exec_info"

const execTimeFormat = "2006-01-02 15:04:05.000000000"

type execInfo struct {
	Property string
	Value    string
}

// ExecRecorder records how a recording was produced: the command line, the
// working directory, and when the program started and ended.
type ExecRecorder struct {
	recorder DataRecorder
	entries  []execInfo
	now      func() time.Time
}

// NewExecRecorder creates an ExecRecorder and the table it writes to.
func NewExecRecorder(recorder DataRecorder) *ExecRecorder {
	recorder.CreateTable(ExecTableName, execInfo{})

	return &ExecRecorder{
		recorder: recorder,
		now:      time.Now,
	}
}

// Start remembers the start time and the command line.
func (e *ExecRecorder) Start() {
	e.entries = append(e.entries,
		execInfo{"Start Time", e.now().Format(execTimeFormat)},
		execInfo{"Command", strings.Join(os.Args, " ")},
	)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = err.Error()
	}

	e.entries = append(e.entries, execInfo{"Working Directory", cwd})
}

// End writes the remembered entries and the end time, and flushes the
// recorder.
func (e *ExecRecorder) End() {
	for _, entry := range e.entries {
		e.recorder.InsertData(ExecTableName, entry)
	}

	e.recorder.InsertData(ExecTableName,
		execInfo{"End Time", e.now().Format(execTimeFormat)})

	e.entries = nil

	e.recorder.Flush()
}
