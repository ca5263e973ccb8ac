// Command migrate applies the Object Store's schema, grounded on
// original_source/src/bin/migrate.rs.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/app"
	"github.com/ipfs/ipfs-cache-gateway/internal/store"
	"github.com/ipfs/ipfs-cache-gateway/internal/telemetry"
)

var log = logging.Logger("cmd/migrate")

func main() {
	cliApp := &cli.App{
		Name:  "migrate",
		Usage: "apply the object store schema",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: "."},
			&cli.StringFlag{Name: "environment", Value: os.Getenv("APP_ENVIRONMENT")},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalw("migrate exited with error", "error", err)
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

	if err := store.Migrate(ctx, a.Store); err != nil {
		return fmt.Errorf("migrating object store: %w", err)
	}

	log.Infow("migration applied")
	return nil
}
