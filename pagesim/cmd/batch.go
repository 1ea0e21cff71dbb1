package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [address-file]",
	Short: "Resolve the addresses listed in a file.",
	Long: "Resolve the addresses listed in a file, one \"<address> " +
		"<hex|dec|bin>\" per line. The file defaults to " +
		"virtual_addresses.txt; \"-\" reads from stdin.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "virtual_addresses.txt"
		if len(args) == 1 {
			path = args[0]
		}

		s, err := newSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		in, err := openAddresses(cmd, path)
		if err != nil {
			return err
		}
		defer in.Close()

		s.report.header(s.mmu.Snapshot())

		err = s.run(in, nil, nil)
		if err != nil {
			return err
		}

		s.report.stats(s.mmu.Stats())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}

func openAddresses(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}

	return os.Open(path)
}
