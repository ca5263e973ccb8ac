// Command cleanup is the eviction sweeper entrypoint, grounded on
// original_source/src/bin/cleanup.rs. It is intended to be invoked by an
// external scheduler (e.g. cron); it performs exactly one sweep pass and
// exits.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/app"
	"github.com/ipfs/ipfs-cache-gateway/internal/sweep"
	"github.com/ipfs/ipfs-cache-gateway/internal/telemetry"
)

var log = logging.Logger("cmd/cleanup")

func main() {
	cliApp := &cli.App{
		Name:  "cleanup",
		Usage: "delete cache records and files whose last access is older than delete_after_days",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "."},
			&cli.StringFlag{Name: "environment", Value: os.Getenv("APP_ENVIRONMENT")},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalw("cleanup exited with error", "error", err)
	}
}

func run(c *cli.Context) error {
	if err := telemetry.Init(c.String("log-level")); err != nil {
		return err
	}

	ctx := context.Background()
	a, err := app.Build(ctx, c.String("config-dir"), c.String("environment"))
	if err != nil {
		return fmt.Errorf("building app context: %w", err)
	}
	defer a.Close()

	sweeper := sweep.New(sweep.Config{
		CacheRoot:   a.Config.IPFSCacheDirectory,
		DeleteAfter: a.Config.DeleteAfter(),
	}, a.Store)

	result, err := sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	log.Infow("sweep complete", "deleted", result.Deleted, "cache_delete_failures", result.Failed)
	return nil
}
