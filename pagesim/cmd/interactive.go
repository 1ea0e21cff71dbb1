package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Resolve addresses typed on stdin.",
	Long: "Resolve addresses typed on stdin as \"<address> <hex|dec|bin>\", " +
		"for example \"FA0 hex\". Type exit or quit to leave.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := newSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		s.report.header(s.mmu.Snapshot())

		prompt := func() {
			fmt.Fprint(cmd.OutOrStdout(), "\naddress> ")
		}

		err = s.run(cmd.InOrStdin(), nil, prompt)
		if err != nil {
			return err
		}

		s.report.stats(s.mmu.Stats())

		return nil
	},
}

func init() {
	rootCmd.AddCommand(interactiveCmd)
}
