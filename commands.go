package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/quaverbot/quaver/player"
	"github.com/quaverbot/quaver/sys"
)

var musicCommand = discord.SlashCommandCreate{
	Name:        "music",
	Description: "Music playback",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "play",
			Description: "Play a song or add it to the queue",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:         "query",
					Description:  "Song name or URL (prefix with yt: for plain YouTube)",
					Required:     true,
					Autocomplete: true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "skip",
			Description: "Skip to the next track",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "previous",
			Description: "Go back to the previous track",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "pause",
			Description: "Pause or resume playback",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "queue",
			Description: "Show the queue",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "page",
					Description: "Page to show",
					Required:    false,
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "volume",
			Description: "Set the playback volume",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "level",
					Description: "Volume percentage (1-200, 100 is normal)",
					Required:    true,
					MinValue:    intPtr(1),
					MaxValue:    intPtr(200),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "loop",
			Description: "Set the repeat mode",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "mode",
					Description: "What to repeat",
					Required:    true,
					Choices: []discord.ApplicationCommandOptionChoiceString{
						{Name: "Off", Value: "off"},
						{Name: "Current track", Value: "track"},
						{Name: "Whole queue", Value: "queue"},
					},
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "shuffle",
			Description: "Shuffle the queue",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "seek",
			Description: "Seek to a position in the current track",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "position",
					Description: "Position (e.g. 1:23, 45, 2m10s)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "forward",
			Description: "Skip forward in the current track",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "duration",
					Description: "How far to skip (e.g. 10s, 1m)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "rewind",
			Description: "Skip backward in the current track",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "duration",
					Description: "How far to go back (e.g. 10s, 1m)",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "remove",
			Description: "Remove a track from the queue",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "track",
					Description: "Position number, range (2-5) or part of the title",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "move",
			Description: "Move a track to another position",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "track",
					Description: "Position number or part of the title",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "position",
					Description: "New position (1-based)",
					Required:    true,
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "jump",
			Description: "Jump to a track in the queue",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "track",
					Description: "Position number or part of the title",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "nowplaying",
			Description: "Show the current track",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "stop",
			Description: "Stop playback and clear the current track",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "clear",
			Description: "Clear the whole queue",
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "leave",
			Description: "Stop and leave the voice channel",
		},
	},
}

func registerCommands(client *bot.Client) error {
	commands := []discord.ApplicationCommandCreate{musicCommand}
	if sys.GlobalConfig.GuildID != "" {
		guildID, err := snowflake.Parse(sys.GlobalConfig.GuildID)
		if err != nil {
			return fmt.Errorf("invalid GUILD_ID: %w", err)
		}
		_, err = client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands)
		return err
	}
	_, err := client.Rest.SetGlobalCommands(client.ApplicationID, commands)
	return err
}

// onApplicationCommandInteraction routes music subcommands to their handlers.
func onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.CommandName() != "music" || data.SubCommandName == nil {
		return
	}

	if guildID := event.GuildID(); guildID != nil {
		notifierFor(event.Client(), *guildID).SetChannel(event.Channel().ID())
	}

	switch *data.SubCommandName {
	case "play":
		handleMusicPlay(event, data)
	case "skip":
		handleMusicSkip(event)
	case "previous":
		handleMusicPrevious(event)
	case "pause":
		handleMusicPause(event)
	case "queue":
		handleMusicQueue(event, data)
	case "volume":
		handleMusicVolume(event, data)
	case "loop":
		handleMusicLoop(event, data)
	case "shuffle":
		handleMusicShuffle(event)
	case "seek":
		handleMusicSeekTo(event, data)
	case "forward":
		handleMusicSeekBy(event, data, 1)
	case "rewind":
		handleMusicSeekBy(event, data, -1)
	case "remove":
		handleMusicRemove(event, data)
	case "move":
		handleMusicMove(event, data)
	case "jump":
		handleMusicJump(event, data)
	case "nowplaying":
		handleMusicNowPlaying(event)
	case "stop":
		handleMusicStop(event)
	case "clear":
		handleMusicClear(event)
	case "leave":
		handleMusicLeave(event)
	}
}

// sessionFor resolves the guild's running session, replying directly when
// there is none. Handlers that defer must not use it.
func sessionFor(event *events.ApplicationCommandInteractionCreate) (*player.Player, bool) {
	guildID := event.GuildID()
	if guildID == nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Not in a guild."})
		return nil, false
	}
	p, ok := manager.Get(*guildID)
	if !ok {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Not playing anything."})
		return nil, false
	}
	return p, true
}

func handleMusicPlay(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	guildID := event.GuildID()
	if guildID == nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Not in a guild."})
		return
	}
	vs, ok := event.Client().Caches.VoiceState(*guildID, event.User().ID)
	if !ok || vs.ChannelID == nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "You need to be in a voice channel!"})
		return
	}
	rawQuery := strings.TrimSpace(data.String("query"))
	if rawQuery == "" {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Give me something to play!"})
		return
	}

	_ = event.DeferCreateMessage(false)
	p := manager.GetOrCreate(*guildID)
	channelID := *vs.ChannelID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		defer cancel()

		if !p.Connected() || p.ChannelID() != channelID {
			if err := p.Connect(ctx, channelID); err != nil {
				sys.LogWarn("Voice connect failed in guild %s: %v", *guildID, err)
				editResponse(event, "Failed to join your voice channel!")
				return
			}
		}

		track := player.NewTrack(relayQuery(rawQuery), rawQuery, event.User().ID)
		wasIdle := p.Current() == nil
		if err := p.Enqueue(ctx, track); err != nil {
			editResponse(event, fmt.Sprintf("Failed to play **%s**!", track.Title))
			return
		}
		if wasIdle {
			editResponse(event, fmt.Sprintf("Started playing **%s**!", track.Title))
		} else {
			editResponse(event, fmt.Sprintf("Added **%s** to the queue!", track.Title))
		}
	}()
}

func handleMusicSkip(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.PlayNext(ctx, true); err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Nothing left to skip to."})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: "Skipped!"})
}

func handleMusicPrevious(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.PlayPrevious(ctx); err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Could not go back."})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: "Playing the previous track."})
}

func handleMusicPause(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	pause := !p.Paused()
	if err := p.SetPause(ctx, pause); err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Pause failed, try again."})
		return
	}
	if pause {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Paused. Use the same command to resume."})
	} else {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Resumed!"})
	}
}

func handleMusicQueue(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	pages, currentPage := p.RenderQueue()
	page := currentPage
	if n, pageOK := data.OptInt("page"); pageOK {
		page = n - 1
	}
	if page < 0 {
		page = 0
	}
	if page >= len(pages) {
		page = len(pages) - 1
	}
	content := pages[page]
	if len(pages) > 1 {
		content += fmt.Sprintf("\nPage %d/%d", page+1, len(pages))
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: content})
}

func handleMusicVolume(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	level := data.Int("level")
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.SetVolume(ctx, level); err != nil {
		var qe *player.QueueError
		if errors.As(err, &qe) {
			_ = event.CreateMessage(discord.MessageCreate{Content: qe.Error()})
		} else {
			_ = event.CreateMessage(discord.MessageCreate{Content: "Failed to set the volume, try again."})
		}
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Volume set to **%d%%**.", level)})
}

func handleMusicLoop(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	mode := player.RepeatModeFromString(data.String("mode"))
	p.SetRepeat(mode)
	switch mode {
	case player.RepeatTrack:
		_ = event.CreateMessage(discord.MessageCreate{Content: "Looping the current track."})
	case player.RepeatQueue:
		_ = event.CreateMessage(discord.MessageCreate{Content: "Looping the whole queue."})
	default:
		_ = event.CreateMessage(discord.MessageCreate{Content: "Looping disabled."})
	}
}

func handleMusicShuffle(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.Shuffle(ctx); err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Shuffle failed, try again."})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: "Queue shuffled!"})
}

func handleMusicSeekTo(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	posMS, err := parseTimestamp(data.String("position"))
	if err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Invalid position, use forms like 1:23, 45 or 2m10s."})
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.Seek(ctx, posMS); err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: seekErrorText(err)})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Seeked to **%s**.", player.FormatTrackTime(posMS))})
}

func handleMusicSeekBy(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData, factor int) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	d, err := time.ParseDuration(data.String("duration"))
	if err != nil || d <= 0 {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Invalid duration format (use 10s, 1m etc)."})
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	deltaMS := d.Milliseconds()
	if factor < 0 {
		err = p.Rewind(ctx, deltaMS)
	} else {
		err = p.FastForward(ctx, deltaMS)
	}
	if err != nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: seekErrorText(err)})
		return
	}
	action := "Forwarded"
	if factor < 0 {
		action = "Rewound"
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("%s by **%v**, now at **%s**.", action, d, player.FormatTrackTime(p.Position()))})
}

func handleMusicRemove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	res := p.RemoveTrack(ctx, data.String("track"))
	switch {
	case res.Message != "":
		_ = event.CreateMessage(discord.MessageCreate{Content: res.Message})
	case res.Count > 0:
		_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Removed **%d** tracks from the queue.", res.Count)})
	case res.Track != nil:
		_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Removed **%s** from the queue.", res.Track.Title)})
	default:
		_ = event.CreateMessage(discord.MessageCreate{Content: "Nothing was removed."})
	}
}

func handleMusicMove(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	track, pos, errMsg := p.Move(ctx, data.String("track"), data.Int("position"))
	if errMsg != "" {
		_ = event.CreateMessage(discord.MessageCreate{Content: errMsg})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Moved **%s** to position **%d**.", track.Title, pos)})
}

func handleMusicJump(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	track, pos, errMsg := p.Jump(ctx, data.String("track"))
	if errMsg != "" {
		_ = event.CreateMessage(discord.MessageCreate{Content: errMsg})
		return
	}
	_ = event.CreateMessage(discord.MessageCreate{Content: fmt.Sprintf("Jumped to **%s** at position **%d**.", track.Title, pos)})
}

func handleMusicNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	track := p.Current()
	if track == nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Nothing is playing right now."})
		return
	}
	pos := player.FormatTrackTime(p.Position())
	total := "live"
	if ms, known := track.Duration(); known {
		total = player.FormatTrackTime(ms)
	}
	state := ""
	if p.State() == player.StatePaused {
		state = " (paused)"
	}
	_ = event.CreateMessage(discord.MessageCreate{
		Content: fmt.Sprintf("Now playing **%s** [%s / %s]%s", track.Title, pos, total, state),
	})
}

func handleMusicStop(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	p.Stop(ctx)
	_ = event.CreateMessage(discord.MessageCreate{Content: "Playback stopped."})
}

func handleMusicClear(event *events.ApplicationCommandInteractionCreate) {
	p, ok := sessionFor(event)
	if !ok {
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	p.Clear(ctx)
	_ = event.CreateMessage(discord.MessageCreate{Content: "Queue cleared."})
}

func handleMusicLeave(event *events.ApplicationCommandInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Not in a guild."})
		return
	}
	p, ok := manager.Get(*guildID)
	if !ok {
		_ = event.CreateMessage(discord.MessageCreate{Content: "Not connected to a voice channel."})
		return
	}
	ctx, cancel := commandContext()
	defer cancel()
	if err := p.Disconnect(ctx); err != nil {
		var qe *player.QueueError
		if errors.As(err, &qe) {
			_ = event.CreateMessage(discord.MessageCreate{Content: qe.Error()})
			return
		}
		_ = event.CreateMessage(discord.MessageCreate{Content: "Failed to leave, try again."})
		return
	}
	manager.Remove(ctx, *guildID)
	_ = event.CreateMessage(discord.MessageCreate{Content: "See you next time!"})
}

// onAutocompleteInteraction serves search suggestions for the play query.
func onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	if event.Data.CommandName != "music" {
		return
	}
	f := event.Data.Focused()
	if f.Name != "query" {
		return
	}
	q := strings.TrimSpace(f.String())
	if q == "" || strings.Contains(q, "http") {
		_ = event.AutocompleteResult(nil)
		return
	}
	rs, err := searcher.Search(q)
	if err != nil {
		_ = event.AutocompleteResult(nil)
		return
	}
	var cs []discord.AutocompleteChoice
	for i, r := range rs {
		if i >= 25 {
			break
		}
		n := r.Title
		if len(n) > 100 {
			n = n[:97] + "..."
		}
		v := r.URL
		if len(v) > 100 {
			v = n
		}
		cs = append(cs, discord.AutocompleteChoiceString{Name: n, Value: v})
	}
	_ = event.AutocompleteResult(cs)
}

// relayQuery maps user input to a relay identifier. URLs pass through,
// anything else becomes a YouTube search.
func relayQuery(q string) string {
	if strings.HasPrefix(q, "http://") || strings.HasPrefix(q, "https://") {
		return q
	}
	return "ytsearch:" + q
}

// parseTimestamp accepts h:mm:ss / m:ss clock forms, plain seconds, and Go
// duration strings.
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty position")
	}
	if strings.Contains(s, ":") {
		parts := strings.Split(s, ":")
		if len(parts) > 3 {
			return 0, fmt.Errorf("too many segments in %q", s)
		}
		var total int64
		for _, part := range parts {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil || n < 0 {
				return 0, fmt.Errorf("bad segment in %q", s)
			}
			total = total*60 + int64(n)
		}
		return total * 1000, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("negative position")
		}
		return int64(n) * 1000, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("bad position %q", s)
	}
	return d.Milliseconds(), nil
}

// seekErrorText keeps user-facing queue errors intact and hides internal
// relay failures.
func seekErrorText(err error) string {
	var qe *player.QueueError
	if errors.As(err, &qe) {
		return qe.Error()
	}
	return "Seek failed, try again."
}

func editResponse(event *events.ApplicationCommandInteractionCreate, content string) {
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.MessageUpdate{Content: strPtr(content)})
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }
