package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"log/slog"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/quaverbot/quaver/bridge"
	"github.com/quaverbot/quaver/player"
	"github.com/quaverbot/quaver/relay"
	"github.com/quaverbot/quaver/search"
	"github.com/quaverbot/quaver/sys"
)

var (
	relayNode   *relay.Client
	manager     *player.Manager
	searcher    *search.Searcher
	voiceBridge *bridge.VoiceBridge
	roster      *bridge.Roster
	resolver    *player.CachedResolver

	notifierMu sync.Mutex
	notifiers  = make(map[snowflake.ID]*bridge.ChannelNotifier)
)

func main() {
	silent := flag.Bool("silent", false, "Disable all log output")
	flag.Parse()

	if *silent {
		sys.SetSilentMode(true)
	}

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	if err := run(sc); err != nil {
		sys.LogFatal("%v", err)
	}
}

func run(shutdownChan <-chan os.Signal) error {
	cfg, err := sys.LoadConfig()
	if err != nil {
		return fmt.Errorf(sys.MsgConfigFailedToLoad, err)
	}

	ctx := context.Background()
	if err := sys.InitDatabase(ctx, cfg.DatabasePath); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer sys.CloseDatabase()

	searcher = search.NewSearcher()
	defer searcher.Close()

	client, err := createClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	relayNode = relay.NewClient(relay.Config{
		Host:     cfg.RelayHost,
		Password: cfg.RelayPassword,
		NodeName: cfg.RelayNodeName,
		Secure:   cfg.RelaySecure,
		UserID:   client.ApplicationID,
	}, &relayRouter{})

	resolver = player.NewCachedResolver(relayNode, rate.NewLimiter(rate.Limit(cfg.SearchRatePerSec), 1))
	defer resolver.Close()

	voiceBridge = bridge.NewVoiceBridge(client)
	roster = bridge.NewRoster(client)

	manager = player.NewManager(relayNode, sys.NewStateStore(sys.DB), func(guildID snowflake.ID) player.Deps {
		return player.Deps{
			Relay:     relayNode,
			Resolver:  resolver,
			Transport: voiceBridge,
			Replies:   notifierFor(client, guildID),
			Presence:  roster,
		}
	})

	sys.LogInfo(sys.MsgBotStarting, "quaver")
	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to open gateway: %w", err)
	}

	<-shutdownChan
	sys.LogInfo(sys.MsgBotShutdown, "quaver")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		sys.LogWarn("Session shutdown failed: %v", err)
	}
	relayNode.Close()
	client.Close(shutdownCtx)
	return nil
}

func createClient(cfg *sys.Config) (*bot.Client, error) {
	return disgo.New(cfg.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagMembers, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithEventListenerFunc(onReady),
		bot.WithEventListenerFunc(onApplicationCommandInteraction),
		bot.WithEventListenerFunc(onAutocompleteInteraction),
		bot.WithEventListenerFunc(onVoiceStateUpdate),
		bot.WithEventListenerFunc(onVoiceServerUpdate),
		bot.WithLogger(slog.Default()),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
			}),
		),
	)
}

func notifierFor(client *bot.Client, guildID snowflake.ID) *bridge.ChannelNotifier {
	notifierMu.Lock()
	defer notifierMu.Unlock()
	n, ok := notifiers[guildID]
	if !ok {
		n = bridge.NewChannelNotifier(client, 0)
		notifiers[guildID] = n
	}
	return n
}

// relayRouter feeds node traffic into the session registry.
type relayRouter struct{}

func (relayRouter) OnEvent(guildID snowflake.ID, ev player.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	manager.HandleEvent(ctx, guildID, ev)
}

func (relayRouter) OnPlayerUpdate(guildID snowflake.ID, positionMS int64) {
	manager.UpdateState(guildID, positionMS)
}

func onReady(event *events.Ready) {
	client := event.Client()
	sys.LogInfo(sys.MsgBotReady, "quaver", client.ApplicationID, os.Getpid())

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := relayNode.Open(ctx); err != nil {
			sys.LogError("Failed to connect to relay node: %v", err)
			return
		}
		if err := manager.RestoreNode(ctx); err != nil {
			sys.LogWarn("Session restore failed: %v", err)
		}
		manager.Start()
	}()

	if err := registerCommands(client); err != nil {
		sys.LogError("Command registration failed: %v", err)
	}
}

func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID != event.Client().ID() {
		return
	}
	guildID := event.VoiceState.GuildID
	relayNode.HandleVoiceStateUpdate(guildID, event.VoiceState.SessionID)

	p, ok := manager.Get(guildID)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if event.VoiceState.ChannelID == nil {
		// kicked from the channel by a moderator or the server
		if err := p.ForceDisconnect(ctx); err != nil {
			sys.LogWarn("Cleanup after forced disconnect failed: %v", err)
		}
		return
	}
	if *event.VoiceState.ChannelID != p.ChannelID() {
		p.NotifyChannelMove(ctx, *event.VoiceState.ChannelID)
	}
}

func onVoiceServerUpdate(event *events.VoiceServerUpdate) {
	endpoint := ""
	if event.Endpoint != nil {
		endpoint = *event.Endpoint
	}
	relayNode.HandleVoiceServerUpdate(event.GuildID, event.Token, endpoint)

	if p, ok := manager.Get(event.GuildID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		p.NotifyRegionChange(ctx)
	}
}
