package search

import (
	"fmt"
	"testing"
	"time"
)

func TestSplitSource(t *testing.T) {
	for _, tc := range []struct {
		in, src, query string
	}{
		{"never gonna give you up", "ytmusic", "never gonna give you up"},
		{"yt:never gonna give you up", "youtube", "never gonna give you up"},
		{"YT: spaced out", "youtube", "spaced out"},
		{"yt:", "youtube", ""},
		{"python tutorial", "ytmusic", "python tutorial"},
	} {
		src, query := splitSource(tc.in)
		if src != tc.src || query != tc.query {
			t.Fatalf("splitSource(%q) = (%q, %q), want (%q, %q)", tc.in, src, query, tc.src, tc.query)
		}
	}
}

func TestMergeResultsOrdering(t *testing.T) {
	ytm := []Result{{URL: "m1", Title: "music one"}, {URL: "m2", Title: "music two"}}
	yt := []Result{{URL: "v1", Title: "video one"}}

	got := mergeResults("ytmusic", ytm, yt)
	if len(got) != 3 || got[0].URL != "m1" || got[2].URL != "v1" {
		t.Fatalf("ytmusic-first merge got %+v", got)
	}

	got = mergeResults("youtube", ytm, yt)
	if len(got) != 3 || got[0].URL != "v1" || got[1].URL != "m1" {
		t.Fatalf("youtube-first merge got %+v", got)
	}
}

func TestMergeResultsCapped(t *testing.T) {
	var ytm []Result
	for i := 0; i < 20; i++ {
		ytm = append(ytm, Result{URL: fmt.Sprintf("m%d", i)})
	}
	var yt []Result
	for i := 0; i < 20; i++ {
		yt = append(yt, Result{URL: fmt.Sprintf("v%d", i)})
	}

	got := mergeResults("ytmusic", ytm, yt)
	if len(got) != maxResults {
		t.Fatalf("got %d results, want cap %d", len(got), maxResults)
	}
	if got[0].URL != "m0" || got[len(got)-1].URL != "v4" {
		t.Fatalf("cap kept wrong window: first %q last %q", got[0].URL, got[len(got)-1].URL)
	}
}

func TestSearchServesCachedResults(t *testing.T) {
	s := NewSearcher()
	defer s.Close()

	want := []Result{{URL: "https://music.youtube.com/watch?v=abc", Title: "cached hit"}}
	s.mu.Lock()
	s.items["rick"] = cachedItem{results: want, expiresAt: time.Now().Add(time.Minute)}
	s.mu.Unlock()

	got, err := s.Search("rick")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want cached %+v", got, want)
	}
}
