package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <text>...",
	Short: "Classify profile text with the configured models",
	Long: `Embeds the given text and runs the classifier over it, the same way a
scraped profile's titles and posts are classified during a run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassify,
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := a.newLLM(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	dispatcher := a.newDispatcher(client)
	bg := a.startBackground(ctx, nil, dispatcher)
	defer bg.stop()

	resp, err := messaging.Classify(ctx, bg.bus, strings.Join(args, " "))
	if err != nil {
		if loadErr := dispatcher.Err(); loadErr != nil {
			return fmt.Errorf("classification failed: %w", loadErr)
		}
		return fmt.Errorf("classification failed: %w", err)
	}
	a.printer.PrintClassification(resp.Result())
	return nil
}
