// Package search produces track suggestions for queries before they are
// handed to the relay, merging YouTube Music and plain YouTube results.
package search

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/quaverbot/quaver/sys"
)

const (
	maxResults    = 25
	searchTimeout = 2600 * time.Millisecond
	resultBudget  = 2300 * time.Millisecond

	cacheTTL        = time.Hour
	cacheGCInterval = 10 * time.Minute
)

type Result struct {
	URL   string
	Title string
}

type cachedItem struct {
	results   []Result
	expiresAt time.Time
}

// Searcher queries both sources concurrently and caches merged results.
type Searcher struct {
	mu    sync.RWMutex
	items map[string]cachedItem

	done chan struct{}
	once sync.Once
}

func NewSearcher() *Searcher {
	s := &Searcher{
		items: make(map[string]cachedItem),
		done:  make(chan struct{}),
	}
	go s.gcLoop()
	return s
}

func (s *Searcher) Close() {
	s.once.Do(func() { close(s.done) })
}

// Search returns up to 25 suggestions. A "yt:" prefix prioritizes plain
// YouTube results over YouTube Music.
func (s *Searcher) Search(q string) ([]Result, error) {
	s.mu.RLock()
	if item, ok := s.items[q]; ok && time.Now().Before(item.expiresAt) {
		s.mu.RUnlock()
		return item.results, nil
	}
	s.mu.RUnlock()

	src, query := splitSource(q)

	ctx, cancel := context.WithTimeout(context.Background(), searchTimeout)
	defer cancel()

	resMu := sync.Mutex{}
	var ytm, yt []Result
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(2)
	go func() {
		defer wg.Done()
		search := ytmusic.TrackSearch(query)
		r, _ := search.Next()
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			title := v.Title
			if len(v.Artists) > 0 {
				title += " - " + v.Artists[0].Name
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, Result{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: title})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, _ := c.Search(ctx, query)
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, Result{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: v.Title})
			}
			resMu.Unlock()
		}
	}()

	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(resultBudget):
	}

	resMu.Lock()
	defer resMu.Unlock()
	fin := mergeResults(src, ytm, yt)

	if len(fin) > 0 {
		s.mu.Lock()
		s.items[q] = cachedItem{results: fin, expiresAt: time.Now().Add(cacheTTL)}
		s.mu.Unlock()
	}

	return fin, nil
}

// splitSource strips an explicit source prefix from the query.
func splitSource(q string) (src, query string) {
	if strings.HasPrefix(strings.ToLower(q), "yt:") {
		return "youtube", strings.TrimSpace(q[3:])
	}
	return "ytmusic", q
}

// mergeResults puts the preferred source first and caps the suggestion
// count.
func mergeResults(src string, ytm, yt []Result) []Result {
	var fin []Result
	if src == "youtube" {
		fin = append(yt, ytm...)
	} else {
		fin = append(ytm, yt...)
	}
	if len(fin) > maxResults {
		fin = fin[:maxResults]
	}
	return fin
}

func (s *Searcher) gcLoop() {
	ticker := time.NewTicker(cacheGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			now := time.Now()
			removed := 0
			for q, item := range s.items {
				if now.After(item.expiresAt) {
					delete(s.items, q)
					removed++
				}
			}
			s.mu.Unlock()
			if removed > 0 {
				sys.LogSearch("Evicted %d expired search cache entries", removed)
			}
		}
	}
}
