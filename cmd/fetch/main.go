// Command fetch is the bulk-prefetch entrypoint: it reads one ipfs:// URL
// per line from a file and fetches each with bounded concurrency, grounded
// on original_source/src/bin/fetch.rs's semaphore-gated spawn loop.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/app"
	"github.com/ipfs/ipfs-cache-gateway/internal/fetch"
	"github.com/ipfs/ipfs-cache-gateway/internal/telemetry"
)

var log = logging.Logger("cmd/fetch")

func main() {
	cliApp := &cli.App{
		Name:  "fetch",
		Usage: "fetch every ipfs:// url from a file, one url per line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Required: true},
			&cli.IntFlag{Name: "threads-count", Aliases: []string{"t"}, Value: 50},
			&cli.StringFlag{Name: "config-dir", Value: "."},
			&cli.StringFlag{Name: "environment", Value: os.Getenv("APP_ENVIRONMENT")},
			&cli.StringFlag{Name: "log-level", Value: "info"},
		},
		Action: run,
	}

	if err := cliApp.Run(os.Args); err != nil {
		log.Fatalw("fetch exited with error", "error", err)
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

	urls, err := readLines(c.String("file"))
	if err != nil {
		return fmt.Errorf("reading url file: %w", err)
	}

	log.Infow("fetching urls", "count", len(urls), "concurrency", c.Int("threads-count"))

	var failures int
	a.Pool.FetchMany(ctx, urls, c.Int("threads-count"), func(url string, _ *fetch.Data, err error) {
		if err != nil {
			failures++
			log.Errorw("fetch failed", "url", url, "error", err)
			return
		}
		log.Infow("fetched", "url", url)
	})

	if failures > 0 {
		return fmt.Errorf("%d of %d urls failed to fetch", failures, len(urls))
	}
	return nil
}

func readLines(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}
