package player

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// RepeatMode controls how the queue advances at track boundaries.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatTrack
	RepeatQueue
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatTrack:
		return "track"
	case RepeatQueue:
		return "queue"
	}
	return "off"
}

// RepeatModeFromString parses the dump form of a repeat mode.
func RepeatModeFromString(s string) RepeatMode {
	switch s {
	case "track":
		return RepeatTrack
	case "queue":
		return RepeatQueue
	}
	return RepeatOff
}

const (
	// driftTolerance is how much unexplained skew between the local
	// position estimate and a relay position update is logged about.
	driftTolerance = 15 * time.Millisecond

	// preloadCount is how many upcoming tracks are resolved ahead of time.
	preloadCount = 5
)

// Queue is the ordered playback sequence for one session. It is owned by a
// Player and relies on the player serializing access; it takes no locks of
// its own.
type Queue struct {
	owner *Player

	tracks  []*AudioTrack
	cursor  int
	repeat  RepeatMode
	stopped bool
	current *AudioTrack

	lastPosition int64     // ms
	lastUpdate   time.Time // zero means no anchor

	// Pluggable fuzzy selector matching.
	match       MatchFunc
	matchCutoff float64

	// Backpressure policy while the relay fleet has no available nodes.
	nodeWaitMax  time.Duration
	nodeWaitPoll time.Duration
}

func newQueue(owner *Player) *Queue {
	return &Queue{
		owner:        owner,
		stopped:      true,
		match:        Similarity,
		matchCutoff:  DefaultMatchCutoff,
		nodeWaitMax:  5 * time.Minute,
		nodeWaitPoll: 2 * time.Second,
	}
}

// Len returns the number of queued tracks.
func (q *Queue) Len() int {
	return len(q.tracks)
}

// Tracks returns a copy of the queued tracks in order.
func (q *Queue) Tracks() []*AudioTrack {
	out := make([]*AudioTrack, len(q.tracks))
	copy(out, q.tracks)
	return out
}

// Cursor returns the index of the current/next-to-play track.
func (q *Queue) Cursor() int {
	return q.cursor
}

// Repeat returns the active repeat mode.
func (q *Queue) Repeat() RepeatMode {
	return q.repeat
}

// SetRepeat changes the repeat mode.
func (q *Queue) SetRepeat(m RepeatMode) {
	q.repeat = m
}

// Current returns the current track, or nil when nothing is active.
func (q *Queue) Current() *AudioTrack {
	return q.current
}

// Stopped reports whether nothing is actively playing.
func (q *Queue) Stopped() bool {
	return q.stopped
}

// IsPlayingTrack reports whether a track is actively loaded for playback
// (it may still be paused at the player level).
func (q *Queue) IsPlayingTrack() bool {
	return !q.stopped && q.current != nil
}

// CanPlayNext reports whether another PlayNext would find a candidate slot
// under the current repeat policy.
func (q *Queue) CanPlayNext() bool {
	cursor := q.cursor
	if q.current != nil && q.repeat != RepeatTrack {
		cursor++
	}
	if cursor >= len(q.tracks) {
		return q.repeat == RepeatQueue && len(q.tracks) > 0
	}
	return true
}

// Add appends tracks to the end of the queue.
func (q *Queue) Add(tracks ...*AudioTrack) {
	q.tracks = append(q.tracks, tracks...)
}

// RemoveByIdentity removes the given track instance if present.
func (q *Queue) RemoveByIdentity(track *AudioTrack) {
	for i, t := range q.tracks {
		if t == track {
			q.tracks = append(q.tracks[:i], q.tracks[i+1:]...)
			return
		}
	}
}

// Clear empties the queue and stops playback.
func (q *Queue) Clear(ctx context.Context) {
	q.cursor = 0
	q.tracks = nil
	if q.repeat == RepeatTrack {
		q.repeat = RepeatOff
	}
	q.current = nil
	q.Stop(ctx)
}

// Stop halts playback at the relay and resets position tracking. It is
// best-effort: a dead relay connection only gets a warning.
func (q *Queue) Stop(ctx context.Context) {
	if q.stopped {
		return
	}
	q.resetStats()
	q.stopped = true
	if q.owner.relay.HasAvailableNodes() {
		if err := q.owner.relay.Stop(ctx, q.owner.GuildID); err != nil {
			logQueueWarn("Failed to send stop for guild %s: %v", q.owner.GuildID, err)
		}
	} else {
		logQueueWarn("No relay node available to send stop for guild %s", q.owner.GuildID)
	}
}

func (q *Queue) resetStats() {
	q.lastPosition = 0
	q.lastUpdate = time.Time{}
}

// Position estimates the playhead in milliseconds without polling the
// relay: frozen while paused, extrapolated from the last anchor while
// playing, always clamped to the track duration.
func (q *Queue) Position() int64 {
	if !q.IsPlayingTrack() {
		return 0
	}
	dur, known := q.current.Duration()
	pos := q.lastPosition
	if !q.owner.paused && !q.lastUpdate.IsZero() {
		pos += time.Since(q.lastUpdate).Milliseconds()
	}
	if known && pos > dur {
		pos = dur
	}
	if pos < 0 {
		pos = 0
	}
	return pos
}

// Remaining returns milliseconds left on the current track, or -1 when
// nothing is playing or the duration is unknown.
func (q *Queue) Remaining() int64 {
	if !q.IsPlayingTrack() {
		return -1
	}
	dur, known := q.current.Duration()
	if !known {
		return -1
	}
	return dur - q.Position()
}

// UpdateState ingests a periodic position report from the relay and
// re-anchors the local estimate. Skew beyond the drift tolerance is only
// logged; the relay's report always wins.
func (q *Queue) UpdateState(position int64) {
	if q.IsPlayingTrack() && !q.lastUpdate.IsZero() && !q.owner.paused {
		predicted := q.lastPosition + time.Since(q.lastUpdate).Milliseconds()
		skew := predicted - position
		if skew < 0 {
			skew = -skew
		}
		if skew > driftTolerance.Milliseconds() {
			logQueueDebug("Position drift of %dms on guild %s", skew, q.owner.GuildID)
		}
	}
	q.lastPosition = position
	q.lastUpdate = time.Now()
}

// anchor freezes the current extrapolated position into lastPosition so a
// pause holds an exact playhead.
func (q *Queue) anchor() {
	q.lastPosition = q.Position()
	q.lastUpdate = time.Now()
}

// play issues the transport command for the track at the cursor. The track
// must already be resolved; PlayNext and friends guarantee that.
func (q *Queue) play(ctx context.Context, opts PlayOptions) (*AudioTrack, error) {
	track := q.tracks[q.cursor]
	info, err := track.Info()
	if err != nil {
		return nil, fmt.Errorf("track at cursor %d not resolved: %w", q.cursor, err)
	}

	dur, durKnown := track.Duration()
	if opts.StartTime != 0 && (opts.StartTime < 0 || (durKnown && opts.StartTime > dur)) {
		return nil, newQueueError("Start time can't be less than 0 or longer than the track's duration!")
	}
	if opts.EndTime != 0 && (opts.EndTime < 0 || (durKnown && opts.EndTime > dur)) {
		return nil, newQueueError("End time can't be less than 0 or longer than the track's duration!")
	}

	q.stopped = false
	q.current = track
	q.lastPosition = opts.StartTime
	q.lastUpdate = time.Now()
	q.preloadAsync()

	if !q.owner.relay.HasAvailableNodes() {
		logQueueDebug("No available relay nodes for guild %s, waiting...", q.owner.GuildID)
		q.owner.notify(ctx, "Music API is currently down, will try to re-connect for the next few minutes...")
		if !q.waitForNode(ctx) {
			logQueueWarn("No relay node came back for guild %s, giving up", q.owner.GuildID)
			return nil, ErrEndOfQueue
		}
	}

	q.owner.paused = false
	if err := q.owner.relay.Play(ctx, q.owner.GuildID, info.Handle, opts); err != nil {
		return nil, fmt.Errorf("send play op: %w", err)
	}
	q.owner.onTrackStart(ctx, track)
	return track, nil
}

// waitForNode polls node availability for up to nodeWaitMax. Returns true
// once a node is available.
func (q *Queue) waitForNode(ctx context.Context) bool {
	deadline := time.Now().Add(q.nodeWaitMax)
	ticker := time.NewTicker(q.nodeWaitPoll)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			if q.owner.relay.HasAvailableNodes() {
				return true
			}
		}
	}
	return q.owner.relay.HasAvailableNodes()
}

// preloadAsync resolves the next few tracks (and the head of the queue) in
// the background so upcoming transitions don't stall on the network.
func (q *Queue) preloadAsync() {
	cursor := q.cursor
	if q.current != nil && q.repeat != RepeatTrack {
		cursor++
	}
	var candidates []*AudioTrack
	for i := cursor; i < len(q.tracks) && len(candidates) < preloadCount; i++ {
		candidates = append(candidates, q.tracks[i])
	}
	for i := 0; i < len(q.tracks) && i < 3; i++ {
		candidates = append(candidates, q.tracks[i])
	}
	if len(candidates) == 0 {
		return
	}
	resolver := q.owner.resolver
	ctx := q.owner.ctx
	go func() {
		for _, t := range candidates {
			if ctx.Err() != nil {
				return
			}
			if !t.Resolved() {
				t.Resolve(ctx, resolver)
			}
		}
	}()
}

// PlayNext advances the cursor per the repeat policy and starts the next
// playable track. Unresolvable tracks are evicted (with a best-effort
// notice) rather than skipped, and the search continues from the same
// position. ErrEndOfQueue is the sole exhaustion signal.
func (q *Queue) PlayNext(ctx context.Context, opts PlayOptions, force bool) (*AudioTrack, error) {
	q.resetStats()
	cursor := q.cursor
	// force only overrides the repeat-track hold; with nothing playing the
	// cursor slot itself is still the next track to start.
	if q.current != nil && (q.repeat != RepeatTrack || force) {
		cursor++
	}

	for {
		if len(q.tracks) == 0 {
			logQueueDebug("Queue exhausted for guild %s", q.owner.GuildID)
			q.owner.onQueueEnd(ctx)
			return nil, ErrEndOfQueue
		}
		if cursor >= len(q.tracks) {
			if q.repeat != RepeatQueue {
				logQueueDebug("Queue exhausted for guild %s at cursor %d", q.owner.GuildID, cursor)
				q.owner.onQueueEnd(ctx)
				return nil, ErrEndOfQueue
			}
			cursor = 0
		}

		candidate := q.tracks[cursor]
		if !candidate.Resolved() {
			candidate.Resolve(ctx, q.owner.resolver)
		}
		if candidate.Playable() {
			break
		}
		q.owner.notify(ctx, fmt.Sprintf("Failed to load track **%s**, skipping...", candidate.Title))
		logQueueDebug("Evicting unplayable track %q from guild %s", candidate.Title, q.owner.GuildID)
		q.tracks = append(q.tracks[:cursor], q.tracks[cursor+1:]...)
	}

	q.cursor = cursor
	return q.play(ctx, opts)
}

// PlayPrevious steps the cursor back (clamped at 0) and plays, with the
// same eviction policy as PlayNext but no repeat-queue wraparound.
func (q *Queue) PlayPrevious(ctx context.Context, opts PlayOptions) (*AudioTrack, error) {
	if q.cursor > 0 && !q.stopped {
		q.cursor--
	}
	for {
		if len(q.tracks) == 0 {
			q.owner.onQueueEnd(ctx)
			return nil, ErrEndOfQueue
		}
		if q.cursor >= len(q.tracks) {
			q.cursor = len(q.tracks) - 1
		}

		candidate := q.tracks[q.cursor]
		if !candidate.Resolved() {
			candidate.Resolve(ctx, q.owner.resolver)
		}
		if candidate.Playable() {
			break
		}
		q.owner.notify(ctx, fmt.Sprintf("Failed to load track **%s**, skipping...", candidate.Title))
		q.tracks = append(q.tracks[:q.cursor], q.tracks[q.cursor+1:]...)
	}

	return q.play(ctx, opts)
}

// PlayCurrent restarts playback at the existing cursor slot. This is how
// session restore and transport migrations resume a track.
func (q *Queue) PlayCurrent(ctx context.Context, opts PlayOptions) (*AudioTrack, error) {
	q.current = nil
	return q.PlayNext(ctx, opts, false)
}

// Shuffle permutes the whole queue, resets the cursor to 0 and restarts
// playback there, preserving the pause state. Repeat-track is demoted to
// off: shuffling implies the user wants variety.
func (q *Queue) Shuffle(ctx context.Context) error {
	rand.Shuffle(len(q.tracks), func(i, j int) {
		q.tracks[i], q.tracks[j] = q.tracks[j], q.tracks[i]
	})
	q.cursor = 0
	paused := q.owner.paused
	if q.repeat == RepeatTrack {
		q.repeat = RepeatOff
	}
	if _, err := q.PlayCurrent(ctx, PlayOptions{}); err != nil {
		return err
	}
	if paused {
		return q.owner.setPause(ctx, true)
	}
	return nil
}

// matchPos fuzzy-matches free text against every track's title and the
// payload of its resolver query, returning the best-scoring position.
func (q *Queue) matchPos(name string) (int, bool) {
	if len(q.tracks) == 0 {
		return 0, false
	}
	candidates := make([]string, 0, len(q.tracks)*2)
	positions := make([]int, 0, len(q.tracks)*2)
	for pos, track := range q.tracks {
		query := track.Query
		if idx := strings.Index(query, ":"); idx >= 0 {
			query = query[idx+1:]
		}
		candidates = append(candidates, query, track.Title)
		positions = append(positions, pos, pos)
	}
	idx, ok := bestMatch(name, candidates, q.match, q.matchCutoff)
	if !ok {
		return 0, false
	}
	return positions[idx], true
}

// resolveSelector turns a 1-based position or free text into a 0-based
// queue index. The returned message is non-empty when nothing matched.
func (q *Queue) resolveSelector(selector string) (int, string) {
	trimmed := strings.TrimSpace(selector)
	if _, err := strconv.Atoi(trimmed); err == nil {
		pos, _ := strconv.Atoi(trimmed)
		return pos - 1, ""
	}
	pos, ok := q.matchPos(strings.ToLower(selector))
	if !ok {
		return 0, fmt.Sprintf("No track matches your search **%s**, use the position number instead!", selector)
	}
	return pos, ""
}

// Move relocates a track (by position or fuzzy title) to newPos (1-based),
// rebasing the cursor. Moving the current slot restarts whatever now
// occupies it. The returned message, when non-empty, is the user-facing
// outcome and no move happened.
func (q *Queue) Move(ctx context.Context, selector string, newPos int) (*AudioTrack, int, string) {
	newPos--
	if newPos >= len(q.tracks) {
		newPos = len(q.tracks) - 1
	}

	pos, msg := q.resolveSelector(selector)
	if msg != "" {
		return nil, 0, msg
	}
	if pos < 0 || pos >= len(q.tracks) {
		return nil, 0, fmt.Sprintf("There's no track at position **%d** in queue!", pos+1)
	}
	if pos == newPos {
		return nil, 0, fmt.Sprintf("**%s** is already at position **%d**!", q.tracks[pos].Title, pos+1)
	}

	track := q.tracks[pos]
	q.tracks = append(q.tracks[:pos], q.tracks[pos+1:]...)
	q.tracks = append(q.tracks[:newPos], append([]*AudioTrack{track}, q.tracks[newPos:]...)...)

	switch {
	case q.cursor == pos:
		paused := q.owner.paused
		if _, err := q.PlayCurrent(ctx, PlayOptions{}); err != nil && !errors.Is(err, ErrEndOfQueue) {
			logQueueWarn("Failed to restart cursor slot after move: %v", err)
		} else if paused {
			_ = q.owner.setPause(ctx, true)
		}
	case pos < q.cursor && q.cursor <= newPos:
		q.cursor--
	case pos > q.cursor && q.cursor >= newPos:
		q.cursor++
	}

	return q.tracks[newPos], newPos + 1, ""
}

// Jump moves the cursor to the selected track and plays it, preserving the
// pause state.
func (q *Queue) Jump(ctx context.Context, selector string) (*AudioTrack, int, string) {
	pos, msg := q.resolveSelector(selector)
	if msg != "" {
		return nil, 0, msg
	}
	if pos < 0 || pos >= len(q.tracks) {
		return nil, 0, fmt.Sprintf("There's no track at position **%d** in queue!", pos+1)
	}
	if pos == q.cursor && q.IsPlayingTrack() {
		return nil, 0, fmt.Sprintf("I'm already playing **%s** at position **%d**!", q.tracks[pos].Title, pos+1)
	}
	q.cursor = pos
	paused := q.owner.paused
	if _, err := q.PlayCurrent(ctx, PlayOptions{}); err != nil && !errors.Is(err, ErrEndOfQueue) {
		logQueueWarn("Failed to play jumped track: %v", err)
	} else if paused {
		_ = q.owner.setPause(ctx, true)
	}
	return q.tracks[pos], pos + 1, ""
}

// RemoveResult is the outcome of a RemoveTrack call. A non-empty Message
// means the user-facing result of an invalid or range removal; Count is
// set for range removals, Track/Pos for single removals.
type RemoveResult struct {
	Track   *AudioTrack
	Pos     int
	Count   int
	Message string
}

// RemoveRange deletes the contiguous block [start, end) (0-based) and
// rebases the cursor. Removing the cursor slot restarts playback of the
// new occupant, or stops when the queue ran out.
func (q *Queue) RemoveRange(ctx context.Context, start, end int) (int, string) {
	if start < 0 || start >= end || end > len(q.tracks) {
		return 0, "Invalid start / end range!"
	}
	q.tracks = append(q.tracks[:start:start], q.tracks[end:]...)

	diff := q.cursor - start
	if diff > end-start {
		diff = end - start
	}
	if diff < 0 {
		diff = 0
	}
	removedCurrent := start <= q.cursor && q.cursor < end
	q.cursor -= diff

	if removedCurrent {
		paused := q.owner.paused
		if _, err := q.PlayCurrent(ctx, PlayOptions{}); err != nil {
			if errors.Is(err, ErrEndOfQueue) {
				q.Stop(ctx)
				q.cursor = max(len(q.tracks)-1, 0)
			} else {
				logQueueWarn("Failed to restart cursor slot after range removal: %v", err)
			}
		} else if paused {
			_ = q.owner.setPause(ctx, true)
		}
	}
	return end - start, ""
}

// RemoveTrack removes by 1-based position, fuzzy title, or "start-end"
// range syntax.
func (q *Queue) RemoveTrack(ctx context.Context, selector string) RemoveResult {
	if before, after, found := strings.Cut(selector, "-"); found {
		start, err1 := strconv.Atoi(strings.TrimSpace(before))
		end, err2 := strconv.Atoi(strings.TrimSpace(after))
		if err1 == nil && err2 == nil {
			count, msg := q.RemoveRange(ctx, start-1, end)
			return RemoveResult{Count: count, Message: msg}
		}
	}

	pos, msg := q.resolveSelector(selector)
	if msg != "" {
		return RemoveResult{Message: msg}
	}
	if pos < 0 || pos >= len(q.tracks) {
		return RemoveResult{Message: fmt.Sprintf("There's no track at position **%d** in queue!", pos+1)}
	}

	removed := q.tracks[pos]
	q.tracks = append(q.tracks[:pos], q.tracks[pos+1:]...)
	logQueueDebug("Removing track %q at %d, cursor %d", removed.Title, pos, q.cursor)

	if pos == q.cursor {
		paused := q.owner.paused
		if _, err := q.PlayCurrent(ctx, PlayOptions{}); err != nil {
			if errors.Is(err, ErrEndOfQueue) {
				q.Stop(ctx)
				q.cursor = max(len(q.tracks)-1, 0)
			} else {
				logQueueWarn("Failed to restart cursor slot after removal: %v", err)
			}
		} else if paused {
			_ = q.owner.setPause(ctx, true)
		}
	} else if pos < q.cursor {
		q.cursor--
	}
	return RemoveResult{Track: removed, Pos: pos + 1}
}

// QueueDump is the serialized form of a Queue.
type QueueDump struct {
	Tracks     []TrackDump `json:"tracks"`
	Cursor     int         `json:"cursor"`
	Repeat     string      `json:"repeat"`
	HasCurrent bool        `json:"has_current"`
	Stopped    bool        `json:"stopped"`
	Position   int64       `json:"position"`
}

// Dump serializes the queue for a session snapshot.
func (q *Queue) Dump() QueueDump {
	tracks := make([]TrackDump, len(q.tracks))
	for i, t := range q.tracks {
		tracks[i] = t.Dump()
	}
	return QueueDump{
		Tracks:     tracks,
		Cursor:     q.cursor,
		Repeat:     q.repeat.String(),
		HasCurrent: q.current != nil,
		Stopped:    q.stopped,
		Position:   q.Position(),
	}
}

func loadQueueDump(owner *Player, d QueueDump) *Queue {
	q := newQueue(owner)
	q.cursor = d.Cursor
	q.repeat = RepeatModeFromString(d.Repeat)
	q.tracks = make([]*AudioTrack, len(d.Tracks))
	for i, td := range d.Tracks {
		q.tracks[i] = LoadTrackDump(td)
	}
	if d.HasCurrent && d.Cursor >= 0 && d.Cursor < len(q.tracks) {
		q.current = q.tracks[d.Cursor]
	}
	q.stopped = d.Stopped
	q.lastPosition = d.Position
	q.lastUpdate = time.Now()
	return q
}
