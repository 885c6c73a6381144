package crawler

import (
	"sync"

	"github.com/williampepple1/site-scraper/pkg/models"
)

// frontier is the shared state of one crawl. Every URL is in at most one
// of pending, inFlight, visited or failed, and all four are guarded by mu
// so membership tests and insertion happen atomically.
type frontier struct {
	mu   sync.Mutex
	cond *sync.Cond

	pending  map[string]struct{}
	inFlight map[string]struct{}
	visited  map[string]models.CrawlRecord
	failed   map[string]struct{}

	budget  int
	stopped bool
}

func newFrontier(seed string, budget int) *frontier {
	f := &frontier{
		pending:  map[string]struct{}{seed: {}},
		inFlight: map[string]struct{}{},
		visited:  map[string]models.CrawlRecord{},
		failed:   map[string]struct{}{},
		budget:   budget,
	}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// next claims a pending URL and a page slot. It blocks while all slots are
// reserved by in-flight fetches or the pool is empty but other workers may
// still add to it. It returns false once the crawl is over.
func (f *frontier) next() (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for {
		if f.stopped {
			return "", false
		}
		full := len(f.visited)+len(f.inFlight) >= f.budget
		if !full {
			// Map iteration order is unspecified; no traversal order is promised.
			for u := range f.pending {
				delete(f.pending, u)
				f.inFlight[u] = struct{}{}
				return u, true
			}
		}
		if len(f.inFlight) == 0 {
			f.stopLocked()
			return "", false
		}
		f.cond.Wait()
	}
}

// complete marks u visited with rec and queues the links not seen before.
func (f *frontier) complete(u string, rec models.CrawlRecord, links []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, u)
	f.visited[u] = rec
	for _, l := range links {
		if f.knownLocked(l) {
			continue
		}
		f.pending[l] = struct{}{}
	}
	f.cond.Broadcast()
}

// fail releases u's page slot. Failed URLs are never queued again.
func (f *frontier) fail(u string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.inFlight, u)
	f.failed[u] = struct{}{}
	f.cond.Broadcast()
}

// stop wakes every waiting worker and ends the crawl.
func (f *frontier) stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *frontier) stopLocked() {
	f.stopped = true
	f.cond.Broadcast()
}

func (f *frontier) knownLocked(u string) bool {
	if _, ok := f.pending[u]; ok {
		return true
	}
	if _, ok := f.inFlight[u]; ok {
		return true
	}
	if _, ok := f.visited[u]; ok {
		return true
	}
	_, ok := f.failed[u]
	return ok
}

// pages returns a copy of the visited records.
func (f *frontier) pages() map[string]models.CrawlRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.CrawlRecord, len(f.visited))
	for u, rec := range f.visited {
		out[u] = rec
	}
	return out
}
