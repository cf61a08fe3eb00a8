package player

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPlayNextAdvancesInOrder(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))

	track, err := q.PlayNext(context.Background(), PlayOptions{}, false)
	if err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if track.Title != "alpha" || q.Cursor() != 0 {
		t.Fatalf("got %q at cursor %d, want alpha at 0", track.Title, q.Cursor())
	}

	track, err = q.PlayNext(context.Background(), PlayOptions{}, false)
	if err != nil {
		t.Fatalf("PlayNext: %v", err)
	}
	if track.Title != "beta" || q.Cursor() != 1 {
		t.Fatalf("got %q at cursor %d, want beta at 1", track.Title, q.Cursor())
	}
	if got := s.relay.played(); len(got) != 2 {
		t.Fatalf("relay saw %d play ops, want 2", len(got))
	}
}

func TestPlayNextRepeatTrack(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))
	q.SetRepeat(RepeatTrack)

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	track, err := q.PlayNext(context.Background(), PlayOptions{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "alpha" {
		t.Fatalf("repeat-track replayed %q, want alpha", track.Title)
	}

	// force overrides repeat-track
	track, err = q.PlayNext(context.Background(), PlayOptions{}, true)
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "beta" {
		t.Fatalf("forced advance played %q, want beta", track.Title)
	}
}

func TestPlayNextForceFromIdleStartsAtCursor(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000), s.queuedTrack("gamma", 60_000))

	// nothing is playing yet, so a forced advance still starts the track
	// at the cursor slot instead of skipping it
	for i, want := range []string{"alpha", "beta", "gamma"} {
		track, err := q.PlayNext(context.Background(), PlayOptions{}, true)
		if err != nil {
			t.Fatalf("forced PlayNext %d: %v", i+1, err)
		}
		if track.Title != want || q.Cursor() != i {
			t.Fatalf("forced PlayNext %d played %q at cursor %d, want %q at %d",
				i+1, track.Title, q.Cursor(), want, i)
		}
	}

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, true); !errors.Is(err, ErrEndOfQueue) {
		t.Fatalf("fourth forced PlayNext: got %v, want ErrEndOfQueue", err)
	}
}

func TestPlayNextRepeatQueueWraps(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))
	q.SetRepeat(RepeatQueue)

	for i := 0; i < 2; i++ {
		if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
			t.Fatal(err)
		}
	}
	track, err := q.PlayNext(context.Background(), PlayOptions{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "alpha" || q.Cursor() != 0 {
		t.Fatalf("wraparound played %q at %d, want alpha at 0", track.Title, q.Cursor())
	}
}

func TestPlayNextExhaustion(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); !errors.Is(err, ErrEndOfQueue) {
		t.Fatalf("empty queue: got %v, want ErrEndOfQueue", err)
	}

	q.Add(s.queuedTrack("alpha", 60_000))
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); !errors.Is(err, ErrEndOfQueue) {
		t.Fatalf("exhausted queue: got %v, want ErrEndOfQueue", err)
	}
}

func TestPlayNextEvictsUnresolvable(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.brokenTrack("ghost"))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); !errors.Is(err, ErrEndOfQueue) {
		t.Fatalf("got %v, want ErrEndOfQueue", err)
	}
	if q.Len() != 0 {
		t.Fatalf("broken track not evicted, len %d", q.Len())
	}

	var noticed bool
	for _, msg := range s.replies.messages() {
		if strings.Contains(msg, "Failed to load track") {
			noticed = true
		}
	}
	if !noticed {
		t.Fatal("no eviction notice was sent")
	}
}

func TestPlayNextSkipsBrokenTrackInMiddle(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.brokenTrack("ghost"), s.queuedTrack("gamma", 60_000))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	track, err := q.PlayNext(context.Background(), PlayOptions{}, false)
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "gamma" {
		t.Fatalf("played %q, want gamma", track.Title)
	}
	if q.Len() != 2 || q.Cursor() != 1 {
		t.Fatalf("len %d cursor %d, want 2 and 1", q.Len(), q.Cursor())
	}
}

func TestPlayPrevious(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))

	for i := 0; i < 2; i++ {
		if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
			t.Fatal(err)
		}
	}
	track, err := q.PlayPrevious(context.Background(), PlayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "alpha" || q.Cursor() != 0 {
		t.Fatalf("got %q at %d, want alpha at 0", track.Title, q.Cursor())
	}

	// already at the head, replays the first slot
	track, err = q.PlayPrevious(context.Background(), PlayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if track.Title != "alpha" {
		t.Fatalf("got %q, want alpha", track.Title)
	}
}

func TestNodeWaitGivesUp(t *testing.T) {
	s := newTestSession()
	s.relay.setNodesDown(true)
	q := s.player.Queue()
	q.nodeWaitMax = 50 * time.Millisecond
	q.nodeWaitPoll = 10 * time.Millisecond
	q.Add(s.queuedTrack("alpha", 60_000))

	// the track resolves from cache-free catalog even with nodes "down"
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); !errors.Is(err, ErrEndOfQueue) {
		t.Fatalf("got %v, want ErrEndOfQueue", err)
	}

	var noticed int
	for _, msg := range s.replies.messages() {
		if strings.Contains(msg, "Music API is currently down") {
			noticed++
		}
	}
	if noticed != 1 {
		t.Fatalf("downtime notice sent %d times, want once", noticed)
	}
}

func TestPositionExtrapolation(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 3_000))

	if got := q.Position(); got != 0 {
		t.Fatalf("stopped position %d, want 0", got)
	}

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}

	// clamped to the track duration
	q.lastPosition = 1_000
	q.lastUpdate = time.Now().Add(-5 * time.Second)
	if got := q.Position(); got != 3_000 {
		t.Fatalf("position %d, want clamp at 3000", got)
	}

	// frozen while paused
	s.player.paused = true
	q.lastPosition = 1_500
	if got := q.Position(); got != 1_500 {
		t.Fatalf("paused position %d, want 1500", got)
	}
}

func TestUpdateStateAnchors(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000))
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}

	q.UpdateState(5_000)
	got := q.Position()
	if got < 5_000 || got > 5_100 {
		t.Fatalf("position %d, want ~5000", got)
	}
	if q.Remaining() > 55_000 {
		t.Fatalf("remaining %d, want <= 55000", q.Remaining())
	}
}

func TestShuffleResetsCursorAndDemotesRepeatTrack(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000), s.queuedTrack("gamma", 60_000))
	q.SetRepeat(RepeatTrack)

	for i := 0; i < 2; i++ {
		if _, err := q.PlayNext(context.Background(), PlayOptions{}, true); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Shuffle(context.Background()); err != nil {
		t.Fatal(err)
	}
	if q.Cursor() != 0 {
		t.Fatalf("cursor %d after shuffle, want 0", q.Cursor())
	}
	if q.Repeat() != RepeatOff {
		t.Fatalf("repeat %v after shuffle, want off", q.Repeat())
	}
	if q.Stopped() {
		t.Fatal("queue stopped after shuffle")
	}
}

func TestMoveRebasesCursor(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000),
		s.queuedTrack("gamma", 60_000), s.queuedTrack("delta", 60_000))

	for i := 0; i < 2; i++ {
		if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
			t.Fatal(err)
		}
	}

	// move a track from before the cursor to after it
	track, newPos, msg := q.Move(context.Background(), "1", 3)
	if msg != "" {
		t.Fatalf("unexpected message %q", msg)
	}
	if track.Title != "alpha" || newPos != 3 {
		t.Fatalf("moved %q to %d, want alpha to 3", track.Title, newPos)
	}
	if q.Cursor() != 0 {
		t.Fatalf("cursor %d, want rebase to 0", q.Cursor())
	}
	if got := q.Tracks()[0].Title; got != "beta" {
		t.Fatalf("head is %q, want beta", got)
	}
}

func TestMoveCurrentSlotRestartsPlayback(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000), s.queuedTrack("gamma", 60_000))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	if _, _, msg := q.Move(context.Background(), "1", 3); msg != "" {
		t.Fatalf("unexpected message %q", msg)
	}
	if got := s.relay.lastPlayed(); got != "handle-beta" {
		t.Fatalf("restarted with %q, want handle-beta", got)
	}
	if q.Cursor() != 0 {
		t.Fatalf("cursor %d, want 0", q.Cursor())
	}
}

func TestJumpByFuzzyName(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("banana smoothie", 60_000))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	track, pos, msg := q.Jump(context.Background(), "banana smothie")
	if msg != "" {
		t.Fatalf("unexpected message %q", msg)
	}
	if track.Title != "banana smoothie" || pos != 2 {
		t.Fatalf("jumped to %q at %d, want banana smoothie at 2", track.Title, pos)
	}
}

func TestJumpNoMatch(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000))

	if _, _, msg := q.Jump(context.Background(), "completely unrelated text qqqq"); msg == "" {
		t.Fatal("expected a no-match message")
	}
}

func TestRemoveTrackAtCursorRestarts(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	res := q.RemoveTrack(context.Background(), "1")
	if res.Message != "" || res.Track.Title != "alpha" {
		t.Fatalf("remove result %+v", res)
	}
	if got := s.relay.lastPlayed(); got != "handle-beta" {
		t.Fatalf("restarted with %q, want handle-beta", got)
	}
	if q.Len() != 1 || q.Cursor() != 0 {
		t.Fatalf("len %d cursor %d, want 1 and 0", q.Len(), q.Cursor())
	}
}

func TestRemoveLastTrackStops(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000))

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	res := q.RemoveTrack(context.Background(), "1")
	if res.Message != "" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if !q.Stopped() {
		t.Fatal("queue should stop when the only track is removed")
	}
}

func TestRemoveBeforeCursorShiftsCursor(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))

	for i := 0; i < 2; i++ {
		if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
			t.Fatal(err)
		}
	}
	res := q.RemoveTrack(context.Background(), "1")
	if res.Message != "" {
		t.Fatalf("unexpected message %q", res.Message)
	}
	if q.Cursor() != 0 || q.Current().Title != "beta" {
		t.Fatalf("cursor %d current %q, want 0 and beta", q.Cursor(), q.Current().Title)
	}
}

func TestRemoveRangeSyntax(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000),
		s.queuedTrack("gamma", 60_000), s.queuedTrack("delta", 60_000))

	res := q.RemoveTrack(context.Background(), "2-3")
	if res.Message != "" || res.Count != 2 {
		t.Fatalf("remove result %+v, want 2 removed", res)
	}
	if q.Len() != 2 {
		t.Fatalf("len %d, want 2", q.Len())
	}
	if got := q.Tracks()[1].Title; got != "delta" {
		t.Fatalf("second track is %q, want delta", got)
	}

	if _, msg := q.RemoveRange(context.Background(), 5, 9); msg == "" {
		t.Fatal("out-of-range removal should be rejected")
	}
}

func TestCanPlayNext(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	if q.CanPlayNext() {
		t.Fatal("empty queue reports a next track")
	}

	q.Add(s.queuedTrack("alpha", 60_000))
	if !q.CanPlayNext() {
		t.Fatal("non-empty queue should have a next track")
	}

	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}
	if q.CanPlayNext() {
		t.Fatal("exhausted queue reports a next track")
	}

	q.SetRepeat(RepeatQueue)
	if !q.CanPlayNext() {
		t.Fatal("repeat-queue should always have a next track")
	}
	q.SetRepeat(RepeatTrack)
	if !q.CanPlayNext() {
		t.Fatal("repeat-track should replay the current track")
	}
}

func TestClearStopsAndDemotesRepeatTrack(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000))
	q.SetRepeat(RepeatTrack)
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}

	q.Clear(context.Background())
	if q.Len() != 0 || !q.Stopped() || q.Current() != nil {
		t.Fatalf("clear left len %d stopped %v current %v", q.Len(), q.Stopped(), q.Current())
	}
	if q.Repeat() != RepeatOff {
		t.Fatalf("repeat %v after clear, want off", q.Repeat())
	}
}

func TestQueueDumpRoundTrip(t *testing.T) {
	s := newTestSession()
	q := s.player.Queue()
	q.Add(s.queuedTrack("alpha", 60_000), s.queuedTrack("beta", 60_000))
	q.SetRepeat(RepeatQueue)
	if _, err := q.PlayNext(context.Background(), PlayOptions{}, false); err != nil {
		t.Fatal(err)
	}

	dump := q.Dump()
	restored := loadQueueDump(s.player, dump)

	if restored.Len() != 2 || restored.Cursor() != 0 {
		t.Fatalf("restored len %d cursor %d", restored.Len(), restored.Cursor())
	}
	if restored.Repeat() != RepeatQueue {
		t.Fatalf("restored repeat %v, want queue", restored.Repeat())
	}
	if restored.Current() == nil || restored.Current().Title != "alpha" {
		t.Fatal("restored queue lost its current track")
	}
	if !restored.Current().Playable() {
		t.Fatal("restored current track lost its resolution")
	}
}
