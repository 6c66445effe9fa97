package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/feed-copilot/internal/fetch"
	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/parsing"
	"github.com/jonathan/feed-copilot/internal/types"
	"github.com/spf13/cobra"
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape <profile-url>",
	Short: "Scrape one profile in a hidden tab and print it",
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
}

func runScrape(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, err := fetch.NewBrowser(ctx, a.browserOptions(), a.logger.Named("browser"))
	if err != nil {
		return err
	}
	defer browser.Close()

	bg := a.startBackground(ctx, browser, nil)
	defer bg.stop()

	link := types.ProfileLink(args[0])
	resp, err := messaging.Scrape(ctx, bg.bus, link)
	if err != nil {
		return err
	}
	if resp.Failed {
		return fmt.Errorf("scrape of %s failed", link)
	}

	profile := parsing.NewExtractor(fetch.DefaultSelectors()).Extract(resp.Markup)
	if !profile.Valid() {
		return fmt.Errorf("no profile found at %s", link)
	}
	linked := profile.WithLink(link)
	a.printer.PrintProfile(&linked)
	return nil
}
