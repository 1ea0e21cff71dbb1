// Package cmd provides the command-line interface of pagesim.
package cmd

import (
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	configPath string
	tablePath  string
	recordPath string
	verbose    bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pagesim",
	Short: "pagesim translates virtual addresses with an LRU-paged MMU.",
	Long: `pagesim translates virtual addresses into physical addresses ` +
		`using a single-level page table. Pages that are not in memory are ` +
		`loaded on demand, evicting the least recently used page when ` +
		`physical memory is full.`,
	SilenceUsage: true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "config.txt",
		"address-space configuration file")
	flags.StringVar(&tablePath, "table", "page_table.txt",
		"initial page table; empty to start with an empty table")
	flags.StringVar(&recordPath, "record", "",
		"record every access into <record>.sqlite3")
	flags.BoolVarP(&verbose, "verbose", "v", false,
		"log faults, evictions and loads to stderr")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Recorders are flushed before the process exits.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
