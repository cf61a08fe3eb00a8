// Package relay speaks the audio relay node protocol: track resolution
// over REST and transport ops plus event delivery over a websocket.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"

	"github.com/quaverbot/quaver/player"
	"github.com/quaverbot/quaver/sys"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Handler receives asynchronous node traffic, already translated into the
// session engine's event model.
type Handler interface {
	OnEvent(guildID snowflake.ID, ev player.Event)
	OnPlayerUpdate(guildID snowflake.ID, positionMS int64)
}

type Config struct {
	Host     string // host:port
	Password string
	NodeName string
	Secure   bool
	UserID   snowflake.ID
}

// Client is a connection to one relay node. It implements
// player.RelayClient.
type Client struct {
	cfg     Config
	http    *http.Client
	handler Handler

	mu   sync.Mutex
	conn *websocket.Conn

	available atomic.Bool
	closed    atomic.Bool
	done      chan struct{}

	// Voice credentials arrive in two separate gateway events; the
	// forward to the node happens once both halves are known.
	voiceMu sync.Mutex
	voice   map[snowflake.ID]*voiceCredentials
}

type voiceCredentials struct {
	SessionID string
	Token     string
	Endpoint  string
}

var _ player.RelayClient = (*Client)(nil)

func NewClient(cfg Config, handler Handler) *Client {
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: 10 * time.Second},
		handler: handler,
		done:    make(chan struct{}),
		voice:   make(map[snowflake.ID]*voiceCredentials),
	}
}

func (c *Client) wsURL() string {
	scheme := "ws"
	if c.cfg.Secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s", scheme, c.cfg.Host)
}

func (c *Client) restURL(path string) string {
	scheme := "http"
	if c.cfg.Secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s", scheme, c.cfg.Host, path)
}

// Open dials the node websocket and starts the read loop. The client
// reconnects on its own until Close is called.
func (c *Client) Open(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.readLoop()
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", c.cfg.Password)
	header.Set("User-Id", c.cfg.UserID.String())
	header.Set("Client-Name", "quaver")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL(), header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("dial node %s: %w", c.cfg.NodeName, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.available.Store(true)
	sys.LogRelay("Connected to node %s at %s", c.cfg.NodeName, c.cfg.Host)
	return nil
}

// Close shuts the connection down for good.
func (c *Client) Close() {
	if c.closed.Swap(true) {
		return
	}
	close(c.done)
	c.available.Store(false)
	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			c.available.Store(false)
			if c.closed.Load() {
				return
			}
			sys.LogRelay("Lost connection to node %s: %v", c.cfg.NodeName, err)
			if !c.reconnect() {
				return
			}
			continue
		}
		c.dispatch(data)
	}
}

func (c *Client) reconnect() bool {
	delay := reconnectBaseDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.resendVoiceUpdates()
			return true
		}
		sys.LogRelay("Reconnect to node %s failed: %v", c.cfg.NodeName, err)
		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}
	}
}

// resendVoiceUpdates replays the known voice credentials so the node can
// re-attach its players after a reconnect.
func (c *Client) resendVoiceUpdates() {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	for guildID, creds := range c.voice {
		if creds.SessionID != "" && creds.Token != "" {
			c.sendVoiceUpdate(guildID, creds)
		}
	}
}

func (c *Client) send(payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("node %s is not connected", c.cfg.NodeName)
	}
	return c.conn.WriteJSON(payload)
}

// --- player.RelayClient ---

func (c *Client) Resolve(ctx context.Context, query string) (*player.LoadResult, error) {
	endpoint := c.restURL("/loadtracks?identifier=" + url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.cfg.Password)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("loadtracks: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("loadtracks: node returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return parseLoadResult(data)
}

func (c *Client) Play(_ context.Context, guildID snowflake.ID, handle string, opts player.PlayOptions) error {
	payload := map[string]any{
		"op":      "play",
		"guildId": guildID.String(),
		"track":   handle,
	}
	if opts.StartTime > 0 {
		payload["startTime"] = opts.StartTime
	}
	if opts.EndTime > 0 {
		payload["endTime"] = opts.EndTime
	}
	if opts.NoReplace {
		payload["noReplace"] = true
	}
	return c.send(payload)
}

func (c *Client) Stop(_ context.Context, guildID snowflake.ID) error {
	return c.send(map[string]any{"op": "stop", "guildId": guildID.String()})
}

func (c *Client) SetPause(_ context.Context, guildID snowflake.ID, pause bool) error {
	return c.send(map[string]any{"op": "pause", "guildId": guildID.String(), "pause": pause})
}

func (c *Client) SetVolume(_ context.Context, guildID snowflake.ID, volume int) error {
	return c.send(map[string]any{"op": "volume", "guildId": guildID.String(), "volume": volume})
}

func (c *Client) Seek(_ context.Context, guildID snowflake.ID, positionMS int64) error {
	return c.send(map[string]any{"op": "seek", "guildId": guildID.String(), "position": positionMS})
}

func (c *Client) SetEqualizer(_ context.Context, guildID snowflake.ID, gains []float64) error {
	bands := make([]map[string]any, len(gains))
	for i, gain := range gains {
		bands[i] = map[string]any{"band": i, "gain": gain}
	}
	return c.send(map[string]any{"op": "equalizer", "guildId": guildID.String(), "bands": bands})
}

func (c *Client) Destroy(_ context.Context, guildID snowflake.ID) error {
	c.voiceMu.Lock()
	delete(c.voice, guildID)
	c.voiceMu.Unlock()
	return c.send(map[string]any{"op": "destroy", "guildId": guildID.String()})
}

func (c *Client) HasAvailableNodes() bool {
	return c.available.Load()
}

func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.restURL("/version"), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.cfg.Password)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node returned %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) NodeName() string {
	return c.cfg.NodeName
}

// --- voice credential forwarding ---

// HandleVoiceStateUpdate records the gateway session for a guild and
// forwards credentials once complete.
func (c *Client) HandleVoiceStateUpdate(guildID snowflake.ID, sessionID string) {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	creds := c.voice[guildID]
	if creds == nil {
		creds = &voiceCredentials{}
		c.voice[guildID] = creds
	}
	creds.SessionID = sessionID
	if creds.Token != "" {
		c.sendVoiceUpdate(guildID, creds)
	}
}

// HandleVoiceServerUpdate records the voice server token for a guild and
// forwards credentials once complete.
func (c *Client) HandleVoiceServerUpdate(guildID snowflake.ID, token, endpoint string) {
	c.voiceMu.Lock()
	defer c.voiceMu.Unlock()
	creds := c.voice[guildID]
	if creds == nil {
		creds = &voiceCredentials{}
		c.voice[guildID] = creds
	}
	creds.Token = token
	creds.Endpoint = endpoint
	if creds.SessionID != "" {
		c.sendVoiceUpdate(guildID, creds)
	}
}

func (c *Client) sendVoiceUpdate(guildID snowflake.ID, creds *voiceCredentials) {
	err := c.send(map[string]any{
		"op":        "voiceUpdate",
		"guildId":   guildID.String(),
		"sessionId": creds.SessionID,
		"event": map[string]any{
			"token":    creds.Token,
			"endpoint": creds.Endpoint,
			"guild_id": guildID.String(),
		},
	})
	if err != nil {
		sys.LogRelay("Failed to forward voice update for guild %s: %v", guildID, err)
	}
}

// --- incoming traffic ---

type inboundMessage struct {
	Op      string          `json:"op"`
	Type    string          `json:"type"`
	GuildID string          `json:"guildId"`
	State   *playerState    `json:"state"`
	Track   string          `json:"track"`
	Reason  string          `json:"reason"`
	Error   string          `json:"error"`
	Stuck   int64           `json:"thresholdMs"`
	Raw     json.RawMessage `json:"-"`
}

type playerState struct {
	Time      int64 `json:"time"`
	Position  int64 `json:"position"`
	Connected bool  `json:"connected"`
}

func (c *Client) dispatch(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		sys.LogRelay("Undecodable message from node %s: %v", c.cfg.NodeName, err)
		return
	}

	switch msg.Op {
	case "playerUpdate":
		guildID, err := snowflake.Parse(msg.GuildID)
		if err != nil || msg.State == nil {
			return
		}
		c.handler.OnPlayerUpdate(guildID, msg.State.Position)

	case "event":
		guildID, err := snowflake.Parse(msg.GuildID)
		if err != nil {
			return
		}
		if ev, ok := translateEvent(msg); ok {
			c.handler.OnEvent(guildID, ev)
		}

	case "stats":
		// node load statistics, nothing to route
	}
}

func translateEvent(msg inboundMessage) (player.Event, bool) {
	switch msg.Type {
	case "TrackStartEvent":
		return player.Event{Kind: player.EventTrackStart, TrackHandle: msg.Track}, true
	case "TrackEndEvent":
		return player.Event{
			Kind:        player.EventTrackEnd,
			TrackHandle: msg.Track,
			Reason:      player.TrackEndReason(msg.Reason),
		}, true
	case "TrackExceptionEvent":
		return player.Event{
			Kind:        player.EventTrackException,
			TrackHandle: msg.Track,
			Error:       msg.Error,
		}, true
	case "TrackStuckEvent":
		return player.Event{
			Kind:        player.EventTrackStuck,
			TrackHandle: msg.Track,
			Threshold:   msg.Stuck,
		}, true
	case "WebSocketClosedEvent":
		sys.LogRelay("Voice websocket closed for guild %s", msg.GuildID)
		return player.Event{}, false
	}
	return player.Event{}, false
}

// --- REST payloads ---

type loadTracksResponse struct {
	LoadType string `json:"loadType"`
	Tracks   []struct {
		Track string `json:"track"`
		Info  struct {
			Identifier string `json:"identifier"`
			IsSeekable bool   `json:"isSeekable"`
			Author     string `json:"author"`
			Length     int64  `json:"length"`
			IsStream   bool   `json:"isStream"`
			Title      string `json:"title"`
			URI        string `json:"uri"`
		} `json:"info"`
	} `json:"tracks"`
}

func parseLoadResult(data []byte) (*player.LoadResult, error) {
	var resp loadTracksResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode loadtracks response: %w", err)
	}

	result := &player.LoadResult{
		Failed: resp.LoadType == "LOAD_FAILED",
	}
	for _, t := range resp.Tracks {
		result.Tracks = append(result.Tracks, player.TrackInfo{
			Handle:     t.Track,
			Identifier: t.Info.Identifier,
			Title:      t.Info.Title,
			Author:     t.Info.Author,
			URI:        t.Info.URI,
			Duration:   t.Info.Length,
			Seekable:   t.Info.IsSeekable,
			Stream:     t.Info.IsStream,
		})
	}
	return result, nil
}
