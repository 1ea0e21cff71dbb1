package cmd

import (
	"fmt"
	"sort"

	"github.com/sarchlab/pagesim/datarecording"
	"github.com/sarchlab/pagesim/mem/vm/mmu"
	"github.com/spf13/cobra"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <recording.sqlite3>",
	Short: "Summarize the accesses stored by --record.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		reader, err := datarecording.NewReader(args[0])
		if err != nil {
			return err
		}
		defer reader.Close()

		for _, column := range []string{"Component", "Outcome"} {
			counts, err := reader.CountBy(
				cmd.Context(), mmu.AccessTableName, column)
			if err != nil {
				return err
			}

			printCounts(cmd, column, counts)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func printCounts(cmd *cobra.Command, column string, counts map[string]int) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Fprintf(cmd.OutOrStdout(), "%s:\n", column)
	for _, k := range keys {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %d\n", k, counts[k])
	}
}
