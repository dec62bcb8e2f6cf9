package engine

import (
	"context"
	"sync"

	"github.com/ggoodman/lsp-server-go/lspservice"
	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency bounds how many Concurrent messages run at once.
const DefaultConcurrency = 8

type job struct {
	mode lspservice.DispatchMode
	run  func()
}

// scheduler starts queued messages in arrival order. An Ordered message waits
// for everything before it to finish and holds back everything after it;
// Concurrent messages overlap, up to the semaphore's weight.
type scheduler struct {
	barrier sync.RWMutex
	sem     *semaphore.Weighted

	mu    sync.Mutex
	queue []job
	ready chan struct{}

	wg sync.WaitGroup
}

func newScheduler(concurrency int) *scheduler {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &scheduler{
		sem:   semaphore.NewWeighted(int64(concurrency)),
		ready: make(chan struct{}, 1),
	}
}

func (s *scheduler) enqueue(mode lspservice.DispatchMode, run func()) {
	s.mu.Lock()
	s.queue = append(s.queue, job{mode: mode, run: run})
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *scheduler) next(ctx context.Context) (job, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			j := s.queue[0]
			s.queue[0] = job{}
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return j, true
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return job{}, false
		}
	}
}

// run starts jobs until ctx ends, then waits for the running ones.
func (s *scheduler) run(ctx context.Context) error {
	defer s.wg.Wait()

	for {
		j, ok := s.next(ctx)
		if !ok {
			return ctx.Err()
		}

		if j.mode == lspservice.Ordered {
			s.barrier.Lock()
			j.run()
			s.barrier.Unlock()
			continue
		}

		if err := s.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		s.barrier.RLock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			defer s.barrier.RUnlock()
			j.run()
		}()
	}
}

// pending returns the number of queued jobs not yet started.
func (s *scheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
