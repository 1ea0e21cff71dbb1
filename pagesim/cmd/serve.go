package cmd

import (
	"log"
	"os"
	"os/signal"

	"github.com/pkg/browser"
	"github.com/sarchlab/pagesim/monitoring"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the MMU state over HTTP.",
	Long: "Start a web server that shows the page table and the LRU order, " +
		"and resolves addresses on request. Addresses given with " +
		"--addresses are resolved in the background with a progress bar.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		port, _ := cmd.Flags().GetInt("port")
		open, _ := cmd.Flags().GetBool("open")
		addresses, _ := cmd.Flags().GetString("addresses")

		s, err := newSession(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		monitor := monitoring.NewMonitor().
			WithPortNumber(port).
			RegisterMMU(s.mmu)
		url := monitor.StartServer()

		if open {
			if err := browser.OpenURL(url); err != nil {
				log.Printf("cannot open browser: %v", err)
			}
		}

		if addresses != "" {
			in, err := openAddresses(cmd, addresses)
			if err != nil {
				return err
			}
			defer in.Close()

			bar := monitor.CreateProgressBar(addresses, 0)
			go func() {
				if err := s.run(in, bar, nil); err != nil {
					log.Printf("reading %s: %v", addresses, err)
				}
			}()
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		<-ctx.Done()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "port of the web server; 0 picks one")
	serveCmd.Flags().Bool("open", false, "open the monitor in a browser")
	serveCmd.Flags().String("addresses", "",
		"file of addresses to resolve while serving")
}
