// Package workpool caps the number of outstanding subprocesses/extractions
// the orchestrator runs at once (spec.md §5: "one outstanding subprocess per
// task", capped at a reasonable default of NumCPU). It is a small
// goroutine+channel pool in the same hand-rolled style the teacher uses for
// its own concurrent tool execution, rather than pulling in a new
// concurrency library the pack does not otherwise depend on.
package workpool

import "sync"

// Pool runs tasks with at most `limit` running concurrently.
type Pool struct {
	sem chan struct{}
}

// New creates a pool allowing up to limit concurrent tasks. A limit <= 0
// is treated as 1.
func New(limit int) *Pool {
	if limit <= 0 {
		limit = 1
	}
	return &Pool{sem: make(chan struct{}, limit)}
}

// Task is a unit of work that may fail.
type Task func() error

// Run executes every task, each gated by the pool's concurrency limit, and
// returns the first error encountered (if any) after all tasks complete.
// Other tasks are not cancelled when one fails; callers that need
// fail-fast cancellation should check a context themselves inside Task.
func (p *Pool) Run(tasks []Task) error {
	var wg sync.WaitGroup
	errs := make([]error, len(tasks))

	for i, task := range tasks {
		wg.Add(1)
		p.sem <- struct{}{}
		go func(i int, task Task) {
			defer wg.Done()
			defer func() { <-p.sem }()
			errs[i] = task()
		}(i, task)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
