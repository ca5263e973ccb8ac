// Package app wires the gateway's components from a loaded configuration:
// the Object Store, the Gateway Pool / Fetch Coordinator, and the
// Transcoder. It is the Go analogue of the original's AppContext
// builder, shared by every cmd/ entrypoint so they don't each duplicate
// the wiring.
package app

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/config"
	"github.com/ipfs/ipfs-cache-gateway/internal/fetch"
	"github.com/ipfs/ipfs-cache-gateway/internal/store"
	"github.com/ipfs/ipfs-cache-gateway/internal/transcode"
)

var log = logging.Logger("app")

// Context bundles the wired components shared by every entrypoint.
type Context struct {
	Config     *config.Config
	Store      *store.Store
	Pool       *fetch.Pool
	Transcoder *transcode.Transcoder
}

// Build loads configuration from configDir/environment, opens (but does not
// migrate) the Object Store, and constructs the Gateway Pool and Transcoder.
func Build(ctx context.Context, configDir, environment string) (*Context, error) {
	cfg, err := config.Load(configDir, environment)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	dsn := cfg.DatabaseURL
	if dsn == "" {
		dsn = cfg.IPFSCacheDirectory + "/objects.sqlite"
	}

	s, err := store.Open(ctx, dsn, cfg.DBMinConnections, cfg.DBMaxConnections)
	if err != nil {
		return nil, fmt.Errorf("opening object store: %w", err)
	}

	pool := fetch.NewPool(fetch.Config{
		Gateways:            cfg.IPFSGateways,
		CacheRoot:           cfg.IPFSCacheDirectory,
		UserAgent:           cfg.UserAgent,
		ConnectTimeout:      cfg.ConnectTimeout(),
		PauseGatewaySeconds: cfg.PauseGateway(),
		MaxContentLength:    cfg.MaxContentLength,
		IPFSEnabled:         cfg.IPFS.Enabled,
		IPFSBinaryPath:      cfg.IPFS.BinaryPath,
	}, s)

	var dims []transcode.Dimension
	for _, d := range cfg.PermittedResizeDimensions {
		dims = append(dims, transcode.Dimension{Width: d.Width, Height: d.Height})
	}

	return &Context{
		Config:     cfg,
		Store:      s,
		Pool:       pool,
		Transcoder: transcode.New(dims),
	}, nil
}

// Close releases the Context's held resources.
func (c *Context) Close() error {
	return c.Store.Close()
}
