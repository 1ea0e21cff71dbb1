package sim

import (
	"io"
	"log"
)

// A LogHook is a hook that is resonsible for recording information from the
// simulation
type LogHook interface {
	Hook
}

// LogHookBase proovides the common logic for all LogHooks
type LogHookBase struct {
	*log.Logger
}

// NewLogHookBase creates a LogHookBase that writes to w with the given line
// prefix.
func NewLogHookBase(w io.Writer, prefix string) LogHookBase {
	return LogHookBase{
		Logger: log.New(w, prefix, 0),
	}
}
