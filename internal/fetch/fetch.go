// Package fetch implements the Gateway Pool and Fetch Coordinator: the
// gateway-racing, rate-limit-aware, size-capped core of the gateway.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	logging "github.com/ipfs/go-log/v2"

	"github.com/ipfs/ipfs-cache-gateway/internal/cache"
	"github.com/ipfs/ipfs-cache-gateway/internal/ipfsurl"
)

var log = logging.Logger("fetch")

// ErrAllGatewaysFailed is returned when every candidate gateway failed to
// produce an HTTP 200 for a URL.
var ErrAllGatewaysFailed = errors.New("all gateways failed")

// ErrSizeExceeded is returned when a response's declared or observed size
// exceeds the configured maximum.
var ErrSizeExceeded = errors.New("content length exceeds maximum allowed")

// ObjectStore is the subset of internal/store.Store the Fetch Coordinator
// needs: recording a hit/fetch, and looking up the recorded content type for
// a cache read.
type ObjectStore interface {
	Upsert(ctx context.Context, url, contentType string, size int64) error
	ContentType(ctx context.Context, url string) (string, bool)
}

// Data identifies the now-cached file for a successfully fetched or
// read-through URL.
type Data struct {
	ContentType string
	Filename    string
}

// Config bundles the Fetch Coordinator's tunables, all sourced from
// spec.md §6.
type Config struct {
	Gateways            []string
	CacheRoot           string
	UserAgent           string
	ConnectTimeout      time.Duration
	PauseGatewaySeconds time.Duration
	MaxContentLength    int64

	IPFSEnabled    bool
	IPFSBinaryPath string
}

// Pool holds the configured gateways and the process-wide GatewayBlock map.
type Pool struct {
	cfg   Config
	store ObjectStore

	mu      sync.Mutex
	blocked map[string]time.Time
}

// NewPool constructs a Pool. The GatewayBlock map starts empty; it is reset
// only on process restart (spec.md §9).
func NewPool(cfg Config, store ObjectStore) *Pool {
	return &Pool{
		cfg:     cfg,
		store:   store,
		blocked: make(map[string]time.Time),
	}
}

// Fetch implements the read-through + gateway-race protocol of spec.md
// §4.5.
func (p *Pool) Fetch(ctx context.Context, url string) (*Data, error) {
	baseURI, err := ipfsurl.Validate(url)
	if err != nil {
		return nil, err
	}

	if data := p.readThrough(ctx, url); data != nil {
		return data, nil
	}

	if p.cfg.IPFSEnabled && p.cfg.IPFSBinaryPath != "" {
		data, err := p.tryLocalListing(ctx, url, baseURI)
		if err != nil {
			log.Warnw("local ipfs listing failed", "url", url, "error", err)
		} else if data != nil {
			return data, nil
		}
	}

	return p.race(ctx, url, baseURI)
}

// readThrough probes Cache I/O; on a hit it schedules a fire-and-forget
// last_accessed_at refresh and returns immediately.
func (p *Pool) readThrough(ctx context.Context, url string) *Data {
	result, err := cache.Read(p.cfg.CacheRoot, url, func(u string) (string, bool) {
		return p.store.ContentType(ctx, u)
	})
	if err != nil {
		log.Warnw("cache read error, treating as miss", "url", url, "error", err)
		return nil
	}
	if result == nil {
		return nil
	}

	// Fire-and-forget: the HTTP response must not wait on this write. The
	// spawned goroutine holds its own context, independent of the request
	// context, so it outlives the caller (spec.md §9).
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.store.Upsert(bgCtx, url, result.ContentType, int64(len(result.Content))); err != nil {
			log.Warnw("failed to refresh last_accessed_at on hit", "url", url, "error", err)
		}
	}()

	return &Data{ContentType: result.ContentType, Filename: result.Filename}
}

// candidateURLs returns the not-currently-blocked gateways' request URLs for
// baseURI.
func (p *Pool) candidateURLs(baseURI string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	urls := make([]string, 0, len(p.cfg.Gateways))
	for _, gw := range p.cfg.Gateways {
		if blockedAt, ok := p.blocked[gw]; ok {
			if time.Since(blockedAt) < p.cfg.PauseGatewaySeconds {
				continue
			}
		}
		urls = append(urls, strings.TrimSuffix(gw, "/")+"/"+baseURI)
	}
	return urls
}

// block records that gw returned 429 just now.
func (p *Pool) block(gw string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.blocked[gw] = time.Now()
}

type raceResult struct {
	url  string
	resp *http.Response
	err  error
}

// race dispatches one request per candidate gateway in parallel and returns
// the first HTTP 200, streaming its body into the cache. Losing responses
// are cancelled once a winner completes its cache write. A response over
// MaxContentLength ends the race with ErrSizeExceeded.
func (p *Pool) race(ctx context.Context, url, baseURI string) (*Data, error) {
	candidates := p.candidateURLs(baseURI)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no gateways available (all blocked or none configured)", ErrAllGatewaysFailed)
	}

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(candidates))

	for _, candidate := range candidates {
		go func(reqURL string) {
			req, err := http.NewRequestWithContext(raceCtx, http.MethodGet, reqURL, nil)
			if err != nil {
				results <- raceResult{url: reqURL, err: err}
				return
			}
			req.Header.Set("User-Agent", p.cfg.UserAgent)
			resp, err := p.newClient().Do(req)
			results <- raceResult{url: reqURL, resp: resp, err: err}
		}(candidate)
	}

	var attempted []string
	var errs *multierror.Error

	for i := 0; i < len(candidates); i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case r := <-results:
			attempted = append(attempted, r.url)

			if r.err != nil {
				log.Debugw("gateway transport error", "url", r.url, "error", r.err)
				errs = multierror.Append(errs, fmt.Errorf("%s: %w", r.url, r.err))
				continue
			}

			data, done, err := p.disposition(ctx, url, r)
			if errors.Is(err, ErrSizeExceeded) {
				return nil, err
			}
			if err != nil {
				errs = multierror.Append(errs, err)
				continue
			}
			if done {
				cancel() // best-effort cancellation of remaining in-flight requests
				return data, nil
			}
		}
	}

	if errs != nil {
		return nil, fmt.Errorf("%w: %v: %s", ErrAllGatewaysFailed, attempted, errs)
	}
	return nil, fmt.Errorf("%w: %v", ErrAllGatewaysFailed, attempted)
}

// disposition handles one arrived response per spec.md §4.5 step 6. done is
// true only on a successful HTTP 200 cache population.
func (p *Pool) disposition(ctx context.Context, url string, r raceResult) (*Data, bool, error) {
	resp := r.resp
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return p.handleOK(ctx, url, resp)

	case http.StatusTooManyRequests:
		host := resp.Request.URL.Host
		for _, gw := range p.cfg.Gateways {
			if strings.Contains(gw, host) {
				log.Warnw("gateway rate limited us, blocking", "gateway", gw)
				p.block(gw)
			}
		}
		return nil, false, fmt.Errorf("%s: 429 too many requests", r.url)

	default:
		log.Debugw("gateway returned non-200", "url", r.url, "status", resp.StatusCode)
		return nil, false, fmt.Errorf("%s: status %d", r.url, resp.StatusCode)
	}
}

func (p *Pool) handleOK(ctx context.Context, url string, resp *http.Response) (*Data, bool, error) {
	if p.cfg.MaxContentLength > 0 && resp.ContentLength > p.cfg.MaxContentLength {
		return nil, false, fmt.Errorf("%w: File is %d bytes, maximum allowed is %d",
			ErrSizeExceeded, resp.ContentLength, p.cfg.MaxContentLength)
	}

	contentType := resp.Header.Get("Content-Type")

	body := io.Reader(resp.Body)
	if p.cfg.MaxContentLength > 0 {
		body = io.LimitReader(resp.Body, p.cfg.MaxContentLength+1)
	}

	filename, err := cache.StreamWrite(p.cfg.CacheRoot, url, contentType, body)
	if err != nil {
		return nil, false, fmt.Errorf("streaming %s to cache: %w", url, err)
	}

	size, err := fileSize(filename)
	if err != nil {
		return nil, false, fmt.Errorf("stat after stream write: %w", err)
	}

	if p.cfg.MaxContentLength > 0 && size > p.cfg.MaxContentLength {
		_ = cache.Delete(p.cfg.CacheRoot, url)
		return nil, false, fmt.Errorf("%w: File is %d bytes, maximum allowed is %d",
			ErrSizeExceeded, size, p.cfg.MaxContentLength)
	}

	if err := p.store.Upsert(ctx, url, contentType, size); err != nil {
		// ObjectStoreError on upsert-after-fetch is returned; the cache file
		// remains valid (spec.md §7).
		return nil, false, fmt.Errorf("upserting after fetch: %w", err)
	}

	log.Debugw("fetched and cached", "url", url, "size", humanize.Bytes(uint64(size)))
	return &Data{ContentType: contentType, Filename: filename}, true, nil
}

func (p *Pool) newClient() *http.Client {
	return &http.Client{
		Timeout: p.cfg.ConnectTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: p.cfg.ConnectTimeout,
			}).DialContext,
		},
	}
}

func fileSize(filename string) (int64, error) {
	info, err := os.Stat(filename)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
