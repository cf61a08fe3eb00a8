package player

import (
	"context"
	"encoding/json"
	"regexp"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

// cleanTitleRegex strips trailing parenthesized noise markers such as
// "(Official Video)" or "[Lyrics]" from display titles.
var cleanTitleRegex = regexp.MustCompile(`(?i)\s*[(\[](?:official .+?|lyrics?)[)\]]`)

// CleanTitle removes noise markers from a track title.
func CleanTitle(title string) string {
	return cleanTitleRegex.ReplaceAllString(title, "")
}

// AudioTrack is one queueable song. It starts as just a resolver query and
// a display title; playable metadata is filled in lazily by Resolve.
type AudioTrack struct {
	Query         string
	RequesterID   snowflake.ID
	Title         string
	OriginalTitle string
	FromPlaylist  bool

	mu          sync.Mutex
	resolved    bool
	resolveOK   bool
	hasDuration bool
	durationMS  int64
	info        TrackInfo
}

// NewTrack creates an unresolved track. The title is cleaned immediately;
// the query-derived title and the relay-resolved title can differ, so
// cleaning happens again at resolution.
func NewTrack(query, title string, requester snowflake.ID) *AudioTrack {
	return &AudioTrack{
		Query:         query,
		RequesterID:   requester,
		Title:         CleanTitle(title),
		OriginalTitle: title,
		resolveOK:     true,
	}
}

// SetKnownDuration records a duration known before resolution, e.g. from a
// playlist listing.
func (t *AudioTrack) SetKnownDuration(ms int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.durationMS = ms
	t.hasDuration = true
}

// Resolved reports whether a resolution attempt has completed.
func (t *AudioTrack) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// ResolveOK reports whether the last resolution attempt produced playable
// metadata. True for never-resolved tracks, which may yet succeed.
func (t *AudioTrack) ResolveOK() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolveOK
}

// Playable reports whether the track has been resolved successfully.
func (t *AudioTrack) Playable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved && t.resolveOK
}

// Info returns the resolved metadata, or ErrNotResolved before a
// successful resolution. There is deliberately no zero-value fallback.
func (t *AudioTrack) Info() (TrackInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.resolved || !t.resolveOK {
		return TrackInfo{}, ErrNotResolved
	}
	return t.info, nil
}

// Handle returns the relay playback token for the track.
func (t *AudioTrack) Handle() (string, error) {
	info, err := t.Info()
	if err != nil {
		return "", err
	}
	return info.Handle, nil
}

// Duration returns the track length in milliseconds and whether it is
// known. Unlike the playable handle, a duration may be known before
// resolution.
func (t *AudioTrack) Duration() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved && t.resolveOK {
		return t.info.Duration, true
	}
	return t.durationMS, t.hasDuration
}

// Resolve queries the resolver for playable metadata. It is idempotent:
// the per-track lock means concurrent callers perform the underlying
// lookup exactly once, and later calls are no-ops. Failures are absorbed;
// callers check ResolveOK.
func (t *AudioTrack) Resolve(ctx context.Context, r Resolver) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.resolved {
		return
	}

	result, err := r.Resolve(ctx, t.Query)
	t.resolved = true
	if err != nil {
		logQueueWarn("Fetching track failed for %q: %v", t.Query, err)
		t.resolveOK = false
		return
	}
	if result == nil || result.Failed || len(result.Tracks) == 0 {
		logQueueWarn("Fetching track failed for %q: no results", t.Query)
		t.resolveOK = false
		return
	}

	t.info = result.Tracks[0]
	t.info.Title = CleanTitle(t.info.Title)
	t.Title = t.info.Title
	t.durationMS = t.info.Duration
	t.hasDuration = true
	t.resolveOK = true
}

// TrackDump is the serialized form of an AudioTrack.
type TrackDump struct {
	Query         string       `json:"query"`
	Requester     snowflake.ID `json:"requester"`
	Title         string       `json:"title"`
	OriginalTitle string       `json:"og_title"`
	FromPlaylist  bool         `json:"from_playlist"`
	Resolved      bool         `json:"resolved"`
	ResolveOK     bool         `json:"resolve_ok"`
	HasDuration   bool         `json:"has_duration"`
	Duration      int64        `json:"duration"`

	Handle     string `json:"handle,omitempty"`
	Identifier string `json:"identifier,omitempty"`
	Author     string `json:"author,omitempty"`
	URI        string `json:"uri,omitempty"`
	Seekable   bool   `json:"is_seekable,omitempty"`
	Stream     bool   `json:"is_stream,omitempty"`
}

// Dump serializes the track, including its resolution state, so a session
// snapshot can be restored without eagerly re-resolving anything.
func (t *AudioTrack) Dump() TrackDump {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackDump{
		Query:         t.Query,
		Requester:     t.RequesterID,
		Title:         t.Title,
		OriginalTitle: t.OriginalTitle,
		FromPlaylist:  t.FromPlaylist,
		Resolved:      t.resolved,
		ResolveOK:     t.resolveOK,
		HasDuration:   t.hasDuration,
		Duration:      t.durationMS,
		Handle:        t.info.Handle,
		Identifier:    t.info.Identifier,
		Author:        t.info.Author,
		URI:           t.info.URI,
		Seekable:      t.info.Seekable,
		Stream:        t.info.Stream,
	}
}

// LoadTrackDump rebuilds a track from its dump. A never-resolved dump
// stays unresolved and will be re-resolved lazily on next use.
func LoadTrackDump(d TrackDump) *AudioTrack {
	t := &AudioTrack{
		Query:         d.Query,
		RequesterID:   d.Requester,
		Title:         d.Title,
		OriginalTitle: d.OriginalTitle,
		FromPlaylist:  d.FromPlaylist,
		resolved:      d.Resolved,
		resolveOK:     d.ResolveOK,
		hasDuration:   d.HasDuration,
		durationMS:    d.Duration,
	}
	if d.Resolved && d.ResolveOK {
		t.info = TrackInfo{
			Handle:     d.Handle,
			Identifier: d.Identifier,
			Title:      d.Title,
			Author:     d.Author,
			URI:        d.URI,
			Duration:   d.Duration,
			Seekable:   d.Seekable,
			Stream:     d.Stream,
		}
	}
	return t
}

// MarshalJSON implements json.Marshaler via the dump form.
func (t *AudioTrack) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Dump())
}

// UnmarshalJSON implements json.Unmarshaler via the dump form.
func (t *AudioTrack) UnmarshalJSON(data []byte) error {
	var d TrackDump
	if err := json.Unmarshal(data, &d); err != nil {
		return err
	}
	loaded := LoadTrackDump(d)
	t.Query = loaded.Query
	t.RequesterID = loaded.RequesterID
	t.Title = loaded.Title
	t.OriginalTitle = loaded.OriginalTitle
	t.FromPlaylist = loaded.FromPlaylist
	t.resolved = loaded.resolved
	t.resolveOK = loaded.resolveOK
	t.hasDuration = loaded.hasDuration
	t.durationMS = loaded.durationMS
	t.info = loaded.info
	return nil
}
