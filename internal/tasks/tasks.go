// Package tasks runs best-effort side effects after a primary mutation has
// committed. Failures are logged to the obs side channel and never reach,
// block, or unwind the caller.
package tasks

import (
	"fmt"
	"sync"

	"chariotek.org/internal/obs"
)

// Runner executes post-commit tasks in the background.
type Runner struct {
	wg sync.WaitGroup
}

// NewRunner constructs a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Go schedules fn in the background. Errors and panics are logged, not
// propagated; the task is never retried.
func (r *Runner) Go(name string, fn func() error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				obs.Warn("post-commit task panicked", map[string]any{
					"task":  name,
					"panic": fmt.Sprintf("%v", rec),
				})
			}
		}()
		if err := fn(); err != nil {
			obs.Warn("post-commit task failed", map[string]any{
				"task":  name,
				"error": err.Error(),
			})
		}
	}()
}

// Wait blocks until all scheduled tasks finish. Used on shutdown and by
// tests that assert on task effects.
func (r *Runner) Wait() {
	r.wg.Wait()
}
