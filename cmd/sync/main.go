// Package main provides the Lambda handler entry point for moodlebridge.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/edusync/moodlebridge/internal/sync"
)

// event is the invocation payload. Scheduled rules invoke FULL and
// INCREMENTAL, operators invoke UNLOCK, and the monitor invokes HEALTH.
type event struct {
	Type string `json:"type"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	lambda.Start(handler)
}

func handler(ctx context.Context, evt event) error {
	svc, err := buildService(ctx, slog.Default())
	if err != nil {
		return fmt.Errorf("building service: %w", err)
	}

	if err := svc.Startup(ctx); err != nil {
		return fmt.Errorf("running startup sweeps: %w", err)
	}

	switch strings.ToUpper(evt.Type) {
	case "HEALTH":
		return reportHealth(ctx, svc)
	case string(sync.TypeFull), string(sync.TypeIncremental), string(sync.TypeUnlock):
		_, err := svc.Synchronize(ctx, sync.Type(strings.ToUpper(evt.Type)))
		return err
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
}

func reportHealth(ctx context.Context, svc *sync.Service) error {
	health, err := svc.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking health: %w", err)
	}

	slog.InfoContext(ctx, "health check",
		"healthy", health.Healthy,
		"latest_completed", health.LatestCompleted,
		"latest_type", health.LatestType,
		"latest_status", health.LatestStatus)

	if !health.Healthy {
		return fmt.Errorf("no synchronization run completed since %s", health.LatestCompleted)
	}
	return nil
}
