// Command httpd is the gateway's HTTP server entrypoint, grounded on
// original_source/src/bin/httpd.rs.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/app"
	"github.com/ipfs/ipfs-cache-gateway/internal/httpapi"
	"github.com/ipfs/ipfs-cache-gateway/internal/telemetry"
)

var log = logging.Logger("cmd/httpd")

func main() {
	cliApp := &cli.App{
		Name:  "httpd",
		Usage: "serve ipfs:// content over HTTP, caching as it goes",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config-dir", Value: ".", Usage: "directory holding base/environment/local config files"},
			&cli.StringFlag{Name: "environment", Value: os.Getenv("APP_ENVIRONMENT"), Usage: "environment config layer name"},
			&cli.StringFlag{Name: "log-level", Value: "info"},
			&cli.StringFlag{Name: "static-dir", Value: "", Usage: "optional directory served at /static/"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalw("httpd exited with error", "error", err)
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

	_, router := httpapi.New(a.Pool, a.Transcoder, c.String("static-dir"))

	addr := fmt.Sprintf("0.0.0.0:%d", a.Config.ServerPort)
	log.Infow("listening", "addr", addr)
	return http.ListenAndServe(addr, router)
}
