package sync

import "sync"

// runParallel executes tasks on a bounded pool of workers and blocks until
// every task has finished. Results keep the order of their tasks. Bounded
// fan-out keeps the load on external systems within their rate limits.
func runParallel[R any](workerCount int, tasks []func() R) []R {
	if workerCount < 1 {
		workerCount = 1
	}
	if workerCount > len(tasks) {
		workerCount = len(tasks)
	}

	results := make([]R, len(tasks))
	indexes := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = tasks[i]()
			}
		}()
	}

	for i := range tasks {
		indexes <- i
	}
	close(indexes)
	wg.Wait()

	return results
}
