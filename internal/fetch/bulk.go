package fetch

import (
	"context"
	"sync"
)

// FetchMany fetches every url in urls with at most concurrency in-flight
// requests at a time. It is the Bulk Prefetch collaborator's engine
// (spec.md §5, "a counting semaphore of configurable width, default 50"),
// grounded on original_source/src/bin/fetch.rs's semaphore-gated spawn loop
// — replacing that file's manual join-handle polling with a sync.WaitGroup,
// the idiomatic Go equivalent.
func (p *Pool) FetchMany(ctx context.Context, urls []string, concurrency int, onResult func(url string, data *Data, err error)) {
	if concurrency <= 0 {
		concurrency = 50
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for _, url := range urls {
		url := url
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			data, err := p.Fetch(ctx, url)
			if onResult != nil {
				onResult(url, data, err)
			}
		}()
	}

	wg.Wait()
}
