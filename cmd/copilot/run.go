package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [page-url]",
	Short: "Run the copilot once over a page",
	Long: `Opens the page, collects and classifies the profiles linked from it,
decorates the page and prints a report. The page defaults to page_url, then
to the feed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOnce,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := a.openSession(ctx, a.pageURL(args), nil)
	if err != nil {
		return err
	}
	defer s.close()

	report, err := s.copilot.Run(ctx)
	if err != nil {
		return err
	}
	a.printer.PrintReport(report)
	return nil
}
