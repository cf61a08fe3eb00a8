package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const (
	// disconnectDelay is how long an idle session lingers before the
	// scheduled disconnect fires.
	disconnectDelay = 10 * time.Minute

	// moveResyncDelay is the pause window used to resync audio after a
	// forced channel move.
	moveResyncDelay = 500 * time.Millisecond

	minUserVolume = 1
	maxUserVolume = 200

	defaultUserVolume = 100
)

// Deps are the collaborators a session needs. Resolver defaults to the
// relay client when nil; Replies and Presence may be nil (notices and
// listener counts degrade to no-ops).
type Deps struct {
	Relay     RelayClient
	Resolver  Resolver
	Transport VoiceTransport
	Replies   ReplySink
	Presence  Presence
}

// Player is one guild's playback session: a queue plus the transport and
// relay state around it. All exported methods are safe for concurrent use;
// a single mutex serializes the session.
type Player struct {
	GuildID snowflake.ID

	mu sync.Mutex

	relay     RelayClient
	resolver  Resolver
	transport VoiceTransport
	replies   ReplySink
	presence  Presence

	// ctx spans the session lifetime; background preloads hang off it.
	ctx    context.Context
	cancel context.CancelFunc

	queue *Queue

	connected  bool
	channelID  snowflake.ID
	paused     bool
	userVolume int
	equalizer  []float64

	playingMsgID    snowflake.ID
	disconnectTimer *time.Timer
}

// NewPlayer creates a session for one guild.
func NewPlayer(guildID snowflake.ID, deps Deps) *Player {
	resolver := deps.Resolver
	if resolver == nil {
		resolver = deps.Relay
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Player{
		GuildID:    guildID,
		relay:      deps.Relay,
		resolver:   resolver,
		transport:  deps.Transport,
		replies:    deps.Replies,
		presence:   deps.Presence,
		ctx:        ctx,
		cancel:     cancel,
		userVolume: defaultUserVolume,
	}
	p.queue = newQueue(p)
	return p
}

// Queue exposes the session's queue. Callers outside this package should
// prefer the Player wrappers, which hold the session lock.
func (p *Player) Queue() *Queue {
	return p.queue
}

// Connected reports whether the voice transport is up.
func (p *Player) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// ChannelID returns the connected voice channel, zero when disconnected.
func (p *Player) ChannelID() snowflake.ID {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

// Connect opens the voice transport to the given channel and waits for the
// handshake.
func (p *Player) Connect(ctx context.Context, channelID snowflake.ID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected && p.channelID == channelID {
		return nil
	}
	if err := p.transport.Connect(ctx, p.GuildID, channelID); err != nil {
		return fmt.Errorf("connect voice: %w", err)
	}
	if err := p.transport.WaitReady(ctx, p.GuildID); err != nil {
		return fmt.Errorf("voice handshake: %w", err)
	}
	p.connected = true
	p.channelID = channelID
	logPlayer("Connected to channel %s in guild %s", channelID, p.GuildID)
	return nil
}

// Disconnect tears the session down. It is refused while a track is
// playing to an audience of humans, so a stray leave command can't cut a
// listening channel off. Use ForceDisconnect when the session must go.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.queue.IsPlayingTrack() && p.listenerCount() > 0 {
		return newQueueError("Somebody else is still listening to music, not leaving!")
	}
	return p.disconnect(ctx)
}

// ForceDisconnect tears the session down unconditionally, e.g. after the
// bot was removed from the channel or during process shutdown.
func (p *Player) ForceDisconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnect(ctx)
}

// disconnect resets the whole session: queue cleared, repeat off, volume
// and equalizer back to defaults, relay session destroyed, transport
// closed. The player struct stays reusable for a later Connect.
func (p *Player) disconnect(ctx context.Context) error {
	p.cancelDisconnectTimer()
	p.queue.Clear(ctx)
	p.queue.SetRepeat(RepeatOff)
	p.clearPlayingMsg(ctx)
	if err := p.relay.Destroy(ctx, p.GuildID); err != nil {
		logPlayerWarn("Failed to destroy relay session for guild %s: %v", p.GuildID, err)
	}
	if p.connected {
		if err := p.transport.Disconnect(ctx, p.GuildID); err != nil {
			return fmt.Errorf("disconnect voice: %w", err)
		}
	}
	p.connected = false
	p.channelID = 0
	p.paused = false
	p.userVolume = defaultUserVolume
	p.equalizer = nil
	logPlayer("Disconnected from guild %s", p.GuildID)
	return nil
}

// Shutdown releases the session permanently.
func (p *Player) Shutdown(ctx context.Context) error {
	err := p.ForceDisconnect(ctx)
	p.cancel()
	return err
}

// DisconnectSoon schedules a disconnect after the idle delay. Scheduling
// is idempotent; starting a track cancels the timer.
func (p *Player) DisconnectSoon() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disconnectTimer != nil {
		return
	}
	logPlayer("Scheduling disconnect for guild %s", p.GuildID)
	p.disconnectTimer = time.AfterFunc(disconnectDelay, func() {
		p.mu.Lock()
		if p.disconnectTimer == nil {
			p.mu.Unlock()
			return
		}
		p.disconnectTimer = nil
		if p.queue.IsPlayingTrack() {
			p.mu.Unlock()
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := p.disconnect(ctx); err != nil {
			logPlayerWarn("Scheduled disconnect failed for guild %s: %v", p.GuildID, err)
		}
		p.mu.Unlock()
	})
}

func (p *Player) cancelDisconnectTimer() {
	if p.disconnectTimer != nil {
		p.disconnectTimer.Stop()
		p.disconnectTimer = nil
	}
}

// Enqueue appends tracks and starts playback when nothing is playing.
func (p *Player) Enqueue(ctx context.Context, tracks ...*AudioTrack) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Add(tracks...)
	if !p.queue.IsPlayingTrack() {
		return p.advance(ctx, func() (*AudioTrack, error) {
			return p.queue.PlayNext(ctx, PlayOptions{}, false)
		})
	}
	return nil
}

// PlayNext skips to the next track per the repeat policy.
func (p *Player) PlayNext(ctx context.Context, force bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayNext(ctx, PlayOptions{}, force)
	})
}

// PlayPrevious steps back one queue slot.
func (p *Player) PlayPrevious(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayPrevious(ctx, PlayOptions{})
	})
}

// PlayCurrent (re)starts the track at the cursor, optionally at an offset.
func (p *Player) PlayCurrent(ctx context.Context, opts PlayOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayCurrent(ctx, opts)
	})
}

// advance runs a queue playback call and translates exhaustion into a
// stopped session. ErrEndOfQueue still surfaces so callers can tell "moved
// on" from "ran out".
func (p *Player) advance(ctx context.Context, playFn func() (*AudioTrack, error)) error {
	_, err := playFn()
	if errors.Is(err, ErrEndOfQueue) {
		p.queue.Stop(ctx)
		return err
	}
	return err
}

// Stop halts playback without touching the queue contents.
func (p *Player) Stop(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Stop(ctx)
}

// Clear empties the queue and stops.
func (p *Player) Clear(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.Clear(ctx)
}

// PlayState is the session's playback state. Pause only exists while a
// track is loaded, so StatePaused implies a current track.
type PlayState int

const (
	StateIdle PlayState = iota
	StatePlaying
	StatePaused
)

func (s PlayState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "idle"
}

// State reports the session's playback state.
func (p *Player) State() PlayState {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case !p.queue.IsPlayingTrack():
		return StateIdle
	case p.paused:
		return StatePaused
	}
	return StatePlaying
}

// Paused reports the pause state.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// SetPause pauses or resumes playback. The playhead estimate is anchored
// first so a paused position reads back exactly.
func (p *Player) SetPause(ctx context.Context, pause bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setPause(ctx, pause)
}

func (p *Player) setPause(ctx context.Context, pause bool) error {
	if pause == p.paused {
		return nil
	}
	p.queue.anchor()
	if err := p.relay.SetPause(ctx, p.GuildID, pause); err != nil {
		return fmt.Errorf("send pause op: %w", err)
	}
	p.paused = pause
	return nil
}

// UserVolumeToRelay maps the user volume scale (1-200) onto the relay's
// 0-1000 scale: identity up to 100, then twice as steep so the upper half
// of the dial has audible headroom.
func UserVolumeToRelay(v int) int {
	if v <= 100 {
		return v
	}
	return 100 + (v-100)*2
}

// Volume returns the user-scale volume.
func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.userVolume
}

// SetVolume applies a user-scale volume (1-200).
func (p *Player) SetVolume(ctx context.Context, v int) error {
	if v < minUserVolume || v > maxUserVolume {
		return newQueueError(fmt.Sprintf("Volume must be between %d and %d!", minUserVolume, maxUserVolume))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.relay.SetVolume(ctx, p.GuildID, UserVolumeToRelay(v)); err != nil {
		return fmt.Errorf("send volume op: %w", err)
	}
	p.userVolume = v
	return nil
}

// Equalizer returns the applied band gains, nil when flat.
func (p *Player) Equalizer() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.equalizer == nil {
		return nil
	}
	out := make([]float64, len(p.equalizer))
	copy(out, p.equalizer)
	return out
}

// SetEqualizer applies band gains. An empty slice resets to flat.
func (p *Player) SetEqualizer(ctx context.Context, bands []float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.relay.SetEqualizer(ctx, p.GuildID, bands); err != nil {
		return fmt.Errorf("send equalizer op: %w", err)
	}
	if len(bands) == 0 {
		p.equalizer = nil
	} else {
		p.equalizer = make([]float64, len(bands))
		copy(p.equalizer, bands)
	}
	return nil
}

// Position returns the estimated playhead in milliseconds.
func (p *Player) Position() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Position()
}

// Seek moves the playhead of the current track.
func (p *Player) Seek(ctx context.Context, positionMS int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seek(ctx, positionMS)
}

func (p *Player) seek(ctx context.Context, positionMS int64) error {
	current := p.queue.Current()
	if current == nil || p.queue.Stopped() {
		return newQueueError("Nothing is playing right now!")
	}
	info, err := current.Info()
	if err != nil {
		return err
	}
	if !info.Seekable {
		return newQueueError(fmt.Sprintf("**%s** is not seekable!", current.Title))
	}
	if positionMS < 0 {
		positionMS = 0
	}
	if dur, known := current.Duration(); known && positionMS > dur {
		positionMS = dur
	}
	if err := p.relay.Seek(ctx, p.GuildID, positionMS); err != nil {
		return fmt.Errorf("send seek op: %w", err)
	}
	p.queue.lastPosition = positionMS
	p.queue.lastUpdate = time.Now()
	return nil
}

// FastForward jumps the playhead forward. Seeking past the end advances to
// the next track instead.
func (p *Player) FastForward(ctx context.Context, deltaMS int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.queue.Current()
	if current == nil || p.queue.Stopped() {
		return newQueueError("Nothing is playing right now!")
	}
	target := p.queue.Position() + deltaMS
	if dur, known := current.Duration(); known && target >= dur {
		return p.advance(ctx, func() (*AudioTrack, error) {
			return p.queue.PlayNext(ctx, PlayOptions{}, false)
		})
	}
	return p.seek(ctx, target)
}

// Rewind jumps the playhead backwards, clamped at the track start.
func (p *Player) Rewind(ctx context.Context, deltaMS int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	target := p.queue.Position() - deltaMS
	if target < 0 {
		target = 0
	}
	return p.seek(ctx, target)
}

// Shuffle permutes the queue and restarts playback at the top.
func (p *Player) Shuffle(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Shuffle(ctx)
}

// Move relocates a track by selector to a 1-based position.
func (p *Player) Move(ctx context.Context, selector string, newPos int) (*AudioTrack, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Move(ctx, selector, newPos)
}

// Jump plays the selected track.
func (p *Player) Jump(ctx context.Context, selector string) (*AudioTrack, int, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Jump(ctx, selector)
}

// RemoveTrack removes by selector or "start-end" range.
func (p *Player) RemoveTrack(ctx context.Context, selector string) RemoveResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.RemoveTrack(ctx, selector)
}

// SetRepeat changes the repeat mode.
func (p *Player) SetRepeat(m RepeatMode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue.SetRepeat(m)
}

// Repeat returns the active repeat mode.
func (p *Player) Repeat() RepeatMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Repeat()
}

// Current returns the active track, or nil when nothing is playing.
func (p *Player) Current() *AudioTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Current()
}

// RenderQueue returns the queue pages and the index of the page holding
// the current track.
func (p *Player) RenderQueue() ([]string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Rendered()
}

// HumanListeners counts non-bot members sharing the voice channel.
func (p *Player) HumanListeners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.listenerCount()
}

func (p *Player) listenerCount() int {
	if p.presence == nil || !p.connected {
		return 0
	}
	return p.presence.ListenerCount(p.GuildID, p.channelID)
}

// HandleEvent ingests one relay event for this session. Events about a
// track other than the current one are stale replays and get dropped.
// Every failure path ends with an attempt to move on; a broken track never
// wedges the session.
func (p *Player) HandleEvent(ctx context.Context, ev Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.queue.Current()
	if ev.TrackHandle != "" && ev.Kind != EventQueueEnd {
		handle := ""
		if current != nil {
			handle, _ = current.Handle()
		}
		if handle != ev.TrackHandle {
			logPlayerDebug("Ignoring stale %s event for guild %s", ev.Kind, p.GuildID)
			return
		}
	}

	switch ev.Kind {
	case EventTrackStart:
		logPlayerDebug("Relay confirmed track start for guild %s", p.GuildID)

	case EventTrackStuck:
		logPlayerWarn("Track stuck for %dms in guild %s, skipping", ev.Threshold, p.GuildID)
		if current != nil {
			p.notify(ctx, fmt.Sprintf("**%s** got stuck, skipping...", current.Title))
		}
		p.advanceAfterFailure(ctx)

	case EventTrackException:
		p.handleTrackException(ctx, ev, current)

	case EventTrackEnd:
		if ev.Reason.MayStartNext() {
			err := p.advance(ctx, func() (*AudioTrack, error) {
				return p.queue.PlayNext(ctx, PlayOptions{}, ev.Reason == EndReasonLoadFailed)
			})
			if err != nil && !errors.Is(err, ErrEndOfQueue) {
				logPlayerWarn("Failed to advance after track end in guild %s: %v", p.GuildID, err)
			}
		}

	case EventQueueEnd:
		p.queue.Stop(ctx)
		p.clearPlayingMsg(ctx)
	}
}

// handleTrackException decides between "the relay node died" and "this
// track is broken". A dead node means the track itself is probably fine:
// the session restarts it at the saved position once a node is back. A
// live node means the track failed, so repeat-track is demoted and the
// session moves on.
func (p *Player) handleTrackException(ctx context.Context, ev Event, current *AudioTrack) {
	logPlayerWarn("Track exception in guild %s: %s", p.GuildID, ev.Error)

	nodeDead := !p.relay.HasAvailableNodes()
	if !nodeDead {
		if err := p.relay.Ping(ctx); err != nil {
			nodeDead = true
		}
	}

	if nodeDead {
		logPlayerWarn("Relay node appears down for guild %s, restarting current track", p.GuildID)
		position := p.queue.Position()
		err := p.advance(ctx, func() (*AudioTrack, error) {
			return p.queue.PlayCurrent(ctx, PlayOptions{StartTime: position})
		})
		if err != nil && !errors.Is(err, ErrEndOfQueue) {
			logPlayerWarn("Failed to restart track in guild %s: %v", p.GuildID, err)
		}
		return
	}

	if current != nil {
		p.notify(ctx, fmt.Sprintf("Failed to play **%s**: %s", current.Title, ev.Error))
	}
	if p.queue.Repeat() == RepeatTrack {
		p.queue.SetRepeat(RepeatOff)
	}
	p.advanceAfterFailure(ctx)
}

func (p *Player) advanceAfterFailure(ctx context.Context) {
	err := p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayNext(ctx, PlayOptions{}, true)
	})
	if err != nil && !errors.Is(err, ErrEndOfQueue) {
		logPlayerWarn("Failed to advance past failure in guild %s: %v", p.GuildID, err)
	}
}

// NotifyChannelMove records a forced move to another voice channel and
// briefly pauses to let the transport resync.
func (p *Player) NotifyChannelMove(ctx context.Context, newChannelID snowflake.ID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	logPlayer("Moved to channel %s in guild %s", newChannelID, p.GuildID)
	p.channelID = newChannelID
	if !p.queue.IsPlayingTrack() {
		return
	}
	wasPaused := p.paused
	if err := p.setPause(ctx, true); err != nil {
		logPlayerWarn("Failed to pause after channel move: %v", err)
		return
	}
	time.Sleep(moveResyncDelay)
	if !wasPaused {
		if err := p.setPause(ctx, false); err != nil {
			logPlayerWarn("Failed to resume after channel move: %v", err)
		}
	}
}

// NotifyRegionChange restarts the current track at its position after the
// voice server migrated to another region.
func (p *Player) NotifyRegionChange(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.queue.IsPlayingTrack() {
		return
	}
	logPlayer("Voice region changed for guild %s, replaying current track", p.GuildID)
	wasPaused := p.paused
	position := p.queue.Position()
	err := p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayCurrent(ctx, PlayOptions{StartTime: position})
	})
	if err != nil && !errors.Is(err, ErrEndOfQueue) {
		logPlayerWarn("Failed to replay track after region change: %v", err)
		return
	}
	if wasPaused {
		_ = p.setPause(ctx, true)
	}
}

// onTrackStart runs under the session lock when a play op was accepted.
func (p *Player) onTrackStart(ctx context.Context, track *AudioTrack) {
	p.cancelDisconnectTimer()
	logPlayer("Started playing %q in guild %s", track.Title, p.GuildID)
	p.clearPlayingMsg(ctx)
	if id, err := p.sendNotice(ctx, fmt.Sprintf("Started playing **%s**!", track.Title)); err == nil {
		p.playingMsgID = id
	}
}

// onQueueEnd runs under the session lock when the queue ran out.
func (p *Player) onQueueEnd(ctx context.Context) {
	logPlayer("Queue ended for guild %s", p.GuildID)
	p.clearPlayingMsg(ctx)
}

func (p *Player) clearPlayingMsg(ctx context.Context) {
	if p.playingMsgID == 0 || p.replies == nil {
		return
	}
	if err := p.replies.Delete(ctx, p.playingMsgID); err != nil {
		logPlayerDebug("Failed to delete playing notice: %v", err)
	}
	p.playingMsgID = 0
}

func (p *Player) sendNotice(ctx context.Context, msg string) (snowflake.ID, error) {
	if p.replies == nil {
		return 0, nil
	}
	id, err := p.replies.Send(ctx, msg)
	if err != nil {
		logPlayerWarn("Failed to send notice for guild %s: %v", p.GuildID, err)
	}
	return id, err
}

// notify sends a best-effort user notice.
func (p *Player) notify(ctx context.Context, msg string) {
	_, _ = p.sendNotice(ctx, msg)
}

// PlayerDump is the serialized form of a session.
type PlayerDump struct {
	GuildID   snowflake.ID `json:"guild_id"`
	ChannelID snowflake.ID `json:"channel_id"`
	Paused    bool         `json:"paused"`
	Volume    int          `json:"volume"`
	Equalizer []float64    `json:"equalizer,omitempty"`
	Queue     QueueDump    `json:"queue"`
}

// Dump captures the session so it can survive a process restart.
func (p *Player) Dump() PlayerDump {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PlayerDump{
		GuildID:   p.GuildID,
		ChannelID: p.channelID,
		Paused:    p.paused,
		Volume:    p.userVolume,
		Equalizer: p.equalizer,
		Queue:     p.queue.Dump(),
	}
}

// LoadPlayerDump rebuilds a session from its dump without touching the
// network; Restore performs the reconnect.
func LoadPlayerDump(d PlayerDump, deps Deps) *Player {
	p := NewPlayer(d.GuildID, deps)
	p.channelID = d.ChannelID
	p.paused = d.Paused
	p.userVolume = d.Volume
	p.equalizer = d.Equalizer
	p.queue = loadQueueDump(p, d.Queue)
	return p
}

// Restore reconnects a loaded session and resumes playback where the dump
// left off: same channel, same track, same position, pause, volume and
// equalizer reapplied.
func (p *Player) Restore(ctx context.Context, d PlayerDump) error {
	if d.ChannelID == 0 {
		return nil
	}
	if err := p.Connect(ctx, d.ChannelID); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.userVolume != defaultUserVolume {
		if err := p.relay.SetVolume(ctx, p.GuildID, UserVolumeToRelay(p.userVolume)); err != nil {
			logPlayerWarn("Failed to restore volume for guild %s: %v", p.GuildID, err)
		}
	}
	if len(p.equalizer) > 0 {
		if err := p.relay.SetEqualizer(ctx, p.GuildID, p.equalizer); err != nil {
			logPlayerWarn("Failed to restore equalizer for guild %s: %v", p.GuildID, err)
		}
	}

	if d.Queue.Stopped || !d.Queue.HasCurrent {
		return nil
	}
	wasPaused := p.paused
	p.paused = false
	err := p.advance(ctx, func() (*AudioTrack, error) {
		return p.queue.PlayCurrent(ctx, PlayOptions{StartTime: d.Queue.Position})
	})
	if err != nil {
		if errors.Is(err, ErrEndOfQueue) {
			return nil
		}
		return err
	}
	if wasPaused {
		return p.setPause(ctx, true)
	}
	return nil
}
