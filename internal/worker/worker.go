package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/williampepple1/site-scraper/pkg/models"
)

// Task extracts fields from one URL.
type Task func(ctx context.Context, url string) (models.ExtractionResult, error)

// Result is the outcome of one Task.
type Result struct {
	URL    string
	Fields models.ExtractionResult
	Err    error
}

// Pool manages a pool of worker goroutines
type Pool struct {
	Workers   int
	Delay     time.Duration
	Task      Task
	Jobs      chan string
	Results   chan Result
	WaitGroup *sync.WaitGroup
	logger    *slog.Logger
}

// NewPool creates a new worker pool. Each worker waits delay between its
// own tasks.
func NewPool(workers int, delay time.Duration, task Task, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		Workers:   workers,
		Delay:     delay,
		Task:      task,
		Jobs:      make(chan string, workers),
		Results:   make(chan Result, workers),
		WaitGroup: &sync.WaitGroup{},
		logger:    logger,
	}
}

// Start starts the worker pool
func (p *Pool) Start(ctx context.Context) {
	for w := 1; w <= p.Workers; w++ {
		p.WaitGroup.Add(1)
		go p.worker(ctx, w)
	}

	// Close the results channel when all workers are done
	go func() {
		p.WaitGroup.Wait()
		close(p.Results)
	}()
}

// worker processes URLs from the jobs channel and sends results to the results channel
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.WaitGroup.Done()

	limiter := NewLimiter(p.Delay)

	for url := range p.Jobs {
		if err := Pace(ctx, limiter); err != nil {
			p.Results <- Result{URL: url, Err: err}
			continue
		}
		p.logger.Debug("worker processing url", "worker", id, "url", url)
		fields, err := p.Task(ctx, url)
		p.Results <- Result{URL: url, Fields: fields, Err: err}
	}
}

// AddJobs adds URLs to the jobs channel and closes it. Remaining URLs are
// dropped once ctx is done.
func (p *Pool) AddJobs(ctx context.Context, urls []string) {
	defer close(p.Jobs)
	for _, url := range urls {
		select {
		case p.Jobs <- url:
		case <-ctx.Done():
			return
		}
	}
}

// Run processes urls and collects the successful results by URL. Failures
// are logged and left out. Duplicate URLs are processed once.
func (p *Pool) Run(ctx context.Context, urls []string) (map[string]models.ExtractionResult, error) {
	seen := make(map[string]bool, len(urls))
	unique := make([]string, 0, len(urls))
	for _, u := range urls {
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}

	p.Start(ctx)
	go p.AddJobs(ctx, unique)

	out := make(map[string]models.ExtractionResult, len(unique))
	for res := range p.Results {
		if res.Err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("extraction failed, skipping", "url", res.URL, "error", res.Err)
			}
			continue
		}
		out[res.URL] = res.Fields
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
