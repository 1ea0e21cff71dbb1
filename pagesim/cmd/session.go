package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/loader"
	"github.com/sarchlab/pagesim/mem/vm"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/sarchlab/pagesim/sim"
	"github.com/tebeka/atexit"
)

type session struct {
	mmu    *mmu.Comp
	report *reporter
}

func newSession(out io.Writer) (*session, error) {
	space, err := loader.LoadAddressSpace(configPath)
	if err != nil {
		return nil, err
	}

	table := vm.NewPageTable()
	if tablePath != "" {
		table, err = loader.LoadPageTable(tablePath, space.ControlBitCodec())
		if err != nil {
			return nil, err
		}
	}

	s := &session{
		report: newReporter(out, space),
	}

	b := mmu.MakeBuilder().
		WithAddressSpace(space).
		WithPageTable(table)

	if verbose {
		b = b.WithHook(mmu.NewLogHook(os.Stderr))
	}

	if recordPath != "" {
		tracer, err := newRecordingTracer(recordPath)
		if err != nil {
			return nil, err
		}

		b = b.WithHook(tracer)
	}

	s.mmu, err = b.Build("MMU")
	if err != nil {
		return nil, err
	}

	return s, nil
}

func newRecordingTracer(path string) (*mmu.DBTracer, error) {
	filename := path + ".sqlite3"
	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("recording file %s already exists", filename)
	}

	sim.UseParallelIDGenerator()

	recorder := datarecording.New(path)

	exec := datarecording.NewExecRecorder(recorder)
	exec.Start()
	atexit.Register(exec.End)

	return mmu.NewDBTracer(recorder), nil
}

// run resolves every address read from in. Lines that cannot be parsed are
// reported and skipped. bar may be nil.
func (s *session) run(
	in io.Reader,
	bar *monitoring.ProgressBar,
	prompt func(),
) error {
	scanner := loader.NewAddressScanner(in)

	for step := 1; ; step++ {
		if prompt != nil {
			prompt()
		}

		addr, err := scanner.Next()

		var lineErr *loader.LineError
		switch {
		case errors.Is(err, io.EOF):
			return nil
		case errors.As(err, &lineErr):
			s.report.lineError(lineErr)
			if bar != nil {
				bar.IncrementFailed(1)
			}

			continue
		case err != nil:
			return err
		}

		info, err := s.mmu.ResolveWithInfo(addr.Value)
		s.report.access(step, addr, info)

		if bar != nil {
			if err != nil {
				bar.IncrementFailed(1)
			} else {
				bar.IncrementFinished(1)
			}
		}
	}
}
