package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonathan/feed-copilot/internal/messaging"
	"github.com/jonathan/feed-copilot/internal/pipeline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var watchCmd = &cobra.Command{
	Use:   "watch [page-url]",
	Short: "Keep the page open and rerun the copilot on demand",
	Long: `Opens the page and runs the copilot once. Every Enter on the terminal, and
every tick of watch.schedule when set, asks for another run. Type q to quit.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	onComplete := func(report *pipeline.Report, err error) {
		if err != nil {
			return
		}
		a.printer.PrintReport(report)
	}

	s, err := a.openSession(ctx, a.pageURL(args), onComplete)
	if err != nil {
		return err
	}
	defer s.close()

	fg := messaging.NewBus("foreground", 4, a.logger.Named("foreground"))
	defer fg.Close()
	go func() {
		if err := fg.Serve(ctx, s.copilot); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("foreground bus stopped", zap.Error(err))
		}
	}()

	trigger := func(reason string) {
		resp, err := messaging.Run(ctx, fg, reason)
		if err != nil {
			a.logger.Warn("run request failed", zap.String("reason", reason), zap.Error(err))
			return
		}
		a.logger.Debug("run acknowledged", zap.String("reason", reason), zap.String("farewell", resp.Farewell))
	}

	if a.cfg.Watch.Schedule != "" {
		c, err := startSchedule(a.cfg.Watch.Schedule, trigger, a.logger)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	trigger(reasonStartup)

	input := make(chan error, 1)
	go func() { input <- scanTriggers(ctx, os.Stdin, trigger) }()

	select {
	case <-ctx.Done():
	case err := <-input:
		if errors.Is(err, io.EOF) {
			// No terminal; keep serving scheduled runs until interrupted.
			<-ctx.Done()
		} else if err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Warn("terminal input failed", zap.Error(err))
		}
	}
	stop()
	return nil
}
