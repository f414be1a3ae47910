package regraft

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// checkFilesParallel analyzes paths on a bounded worker pool. Analysis is
// CPU-bound and safe to run concurrently; SQLite writes go through a single
// collector goroutine so the store sees one writer.
func (e *Engine) checkFilesParallel(ctx context.Context, paths []string) ([]FileResult, error) {
	workers := e.workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(paths) && len(paths) > 0 {
		workers = len(paths)
	}

	outcomes := make(chan *fileOutcome, workers)

	g, gctx := errgroup.WithContext(ctx)
	workErr := make(chan error, 1)
	go func() {
		defer close(outcomes)
		g.SetLimit(workers)
		for _, path := range paths {
			path := path
			g.Go(func() error {
				out, err := e.analyzeFile(gctx, path)
				if err != nil {
					return fmt.Errorf("check %s: %w", path, err)
				}
				if out != nil {
					select {
					case outcomes <- out:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}
		workErr <- g.Wait()
	}()

	var results []FileResult
	for out := range outcomes {
		if !out.res.Skipped {
			if err := e.persist(out); err != nil {
				// Drain so the workers can finish before reporting.
				for range outcomes {
				}
				<-workErr
				return nil, err
			}
		}
		results = append(results, *out.res)
	}
	if err := <-workErr; err != nil {
		return nil, err
	}
	return results, nil
}
