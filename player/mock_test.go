package player

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
)

const testGuildID = snowflake.ID(81384788765712384)

// fakeRelay is an in-memory RelayClient whose catalog maps queries to
// canned load results and which records every transport op.
type fakeRelay struct {
	mu sync.Mutex

	catalog      map[string]*LoadResult
	resolveCalls map[string]int
	resolveErr   error

	playedHandles []string
	lastPlayOpts  PlayOptions
	stopCalls     int
	pauseCalls    []bool
	volumeCalls   []int
	seekCalls     []int64
	eqCalls       [][]float64
	destroyCalls  int

	nodesDown bool
	pingErr   error
	node      string
}

func newFakeRelay() *fakeRelay {
	return &fakeRelay{
		catalog:      make(map[string]*LoadResult),
		resolveCalls: make(map[string]int),
		node:         "node-test",
	}
}

func (r *fakeRelay) addTrack(query, handle, title string, durationMS int64) {
	r.catalog[query] = &LoadResult{Tracks: []TrackInfo{{
		Handle:     handle,
		Identifier: handle,
		Title:      title,
		Author:     "tester",
		Duration:   durationMS,
		Seekable:   true,
	}}}
}

func (r *fakeRelay) addFailure(query string) {
	r.catalog[query] = &LoadResult{Failed: true}
}

func (r *fakeRelay) Resolve(_ context.Context, query string) (*LoadResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveCalls[query]++
	if r.resolveErr != nil {
		return nil, r.resolveErr
	}
	if result, ok := r.catalog[query]; ok {
		return result, nil
	}
	return &LoadResult{}, nil
}

func (r *fakeRelay) Play(_ context.Context, _ snowflake.ID, handle string, opts PlayOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.playedHandles = append(r.playedHandles, handle)
	r.lastPlayOpts = opts
	return nil
}

func (r *fakeRelay) Stop(context.Context, snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopCalls++
	return nil
}

func (r *fakeRelay) SetPause(_ context.Context, _ snowflake.ID, pause bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauseCalls = append(r.pauseCalls, pause)
	return nil
}

func (r *fakeRelay) SetVolume(_ context.Context, _ snowflake.ID, volume int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volumeCalls = append(r.volumeCalls, volume)
	return nil
}

func (r *fakeRelay) Seek(_ context.Context, _ snowflake.ID, positionMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seekCalls = append(r.seekCalls, positionMS)
	return nil
}

func (r *fakeRelay) SetEqualizer(_ context.Context, _ snowflake.ID, bands []float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eqCalls = append(r.eqCalls, bands)
	return nil
}

func (r *fakeRelay) Destroy(context.Context, snowflake.ID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyCalls++
	return nil
}

func (r *fakeRelay) HasAvailableNodes() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.nodesDown
}

func (r *fakeRelay) Ping(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pingErr
}

func (r *fakeRelay) NodeName() string { return r.node }

func (r *fakeRelay) played() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.playedHandles))
	copy(out, r.playedHandles)
	return out
}

func (r *fakeRelay) lastPlayed() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.playedHandles) == 0 {
		return ""
	}
	return r.playedHandles[len(r.playedHandles)-1]
}

func (r *fakeRelay) setNodesDown(down bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodesDown = down
}

type fakeTransport struct {
	mu          sync.Mutex
	connects    []snowflake.ID
	disconnects int
	connectErr  error
}

func (t *fakeTransport) Connect(_ context.Context, _ snowflake.ID, channelID snowflake.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connects = append(t.connects, channelID)
	return nil
}

func (t *fakeTransport) Disconnect(context.Context, snowflake.ID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	return nil
}

func (t *fakeTransport) WaitReady(context.Context, snowflake.ID) error { return nil }

type fakeReplies struct {
	mu      sync.Mutex
	sent    []string
	deleted []snowflake.ID
	nextID  snowflake.ID
}

func (s *fakeReplies) Send(_ context.Context, content string) (snowflake.ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, content)
	s.nextID++
	return s.nextID, nil
}

func (s *fakeReplies) Delete(_ context.Context, id snowflake.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeReplies) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

type fakePresence struct {
	mu     sync.Mutex
	humans int
}

func (p *fakePresence) ListenerCount(snowflake.ID, snowflake.ID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.humans
}

type fakeStore struct {
	mu   sync.Mutex
	data map[string][]Snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]Snapshot)}
}

func (s *fakeStore) Save(_ context.Context, node string, snapshots []Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[node] = append(s.data[node], snapshots...)
	return nil
}

func (s *fakeStore) Load(_ context.Context, node string) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[node], nil
}

func (s *fakeStore) Delete(_ context.Context, node string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, node)
	return nil
}

type testSession struct {
	player    *Player
	relay     *fakeRelay
	transport *fakeTransport
	replies   *fakeReplies
	presence  *fakePresence
}

func newTestSession() *testSession {
	relay := newFakeRelay()
	transport := &fakeTransport{}
	replies := &fakeReplies{}
	presence := &fakePresence{humans: 1}
	p := NewPlayer(testGuildID, Deps{
		Relay:     relay,
		Transport: transport,
		Replies:   replies,
		Presence:  presence,
	})
	return &testSession{
		player:    p,
		relay:     relay,
		transport: transport,
		replies:   replies,
		presence:  presence,
	}
}

// queuedTrack registers a resolvable query on the relay and returns an
// unresolved track for it.
func (s *testSession) queuedTrack(name string, durationMS int64) *AudioTrack {
	query := "ytsearch:" + name
	s.relay.addTrack(query, "handle-"+name, name, durationMS)
	return NewTrack(query, name, snowflake.ID(1))
}

// brokenTrack registers a query that always fails to load.
func (s *testSession) brokenTrack(name string) *AudioTrack {
	query := "ytsearch:" + name
	s.relay.addFailure(query)
	return NewTrack(query, name, snowflake.ID(1))
}
