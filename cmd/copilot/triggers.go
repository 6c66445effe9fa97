package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Trigger reasons sent with RunRequest.
const (
	reasonStartup  = "startup"
	reasonTerminal = "terminal"
	reasonSchedule = "schedule"
)

// scanTriggers calls trigger once per input line. It returns nil when a line
// reads "q" or "quit" and io.EOF when r is exhausted.
func scanTriggers(ctx context.Context, r io.Reader, trigger func(reason string)) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		switch strings.ToLower(strings.TrimSpace(scanner.Text())) {
		case "q", "quit":
			return nil
		default:
			trigger(reasonTerminal)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// startSchedule runs trigger on a standard cron spec. The caller stops the
// returned scheduler.
func startSchedule(spec string, trigger func(reason string), logger *zap.Logger) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(spec, func() { trigger(reasonSchedule) }); err != nil {
		return nil, fmt.Errorf("failed to add cron job: %w", err)
	}
	c.Start()
	logger.Info("scheduled runs enabled", zap.String("schedule", spec))
	return c, nil
}
