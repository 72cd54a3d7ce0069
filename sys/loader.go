package sys

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/godave/golibdave"
	"github.com/disgoorg/snowflake/v2"
)

const (
	MsgLoaderSyncCommands   = "Syncing %s commands..."
	MsgLoaderCleanup        = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderDevStarting    = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered  = "[DEV] Registered: %s"
	MsgLoaderDevFail        = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear = "[DEV] Clearing global commands..."
	MsgLoaderProdStarting   = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered = "[PROD] Registered: %s"
	MsgLoaderProdFail       = "[PROD] Global registration failed: %w"
	MsgLoaderPanicRecovered = "Panic recovered in handler: %v"
	MsgLoaderUpToDate       = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderInvalidGuildID = "invalid GUILD_ID: %w"
	MsgDaemonStarting       = "Starting..."
	MsgBotReady             = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"

	botConfigLastMode  = "last_reg_mode"
	botConfigLastGuild = "last_guild_id"
	botConfigLastHash  = "last_cmd_hash"
)

var (
	AppContext  = context.Background()
	StartupTime = time.Now()

	commands                 = []discord.ApplicationCommandCreate{}
	commandHandlers          = map[string]func(event *events.ApplicationCommandInteractionCreate){}
	autocompleteHandlers     = map[string]func(event *events.AutocompleteInteractionCreate){}
	voiceStateUpdateHandlers []func(event *events.GuildVoiceStateUpdate)
	onClientReadyCallbacks   []func(ctx context.Context, client *bot.Client)

	daemonsOnce sync.Once
)

func SetAppContext(ctx context.Context) {
	AppContext = ctx
}

// CreateClient builds the disgo client with the intents, caches and voice manager the player needs.
func CreateClient(ctx context.Context, cfg *Config) (*bot.Client, error) {
	return disgo.New(cfg.Token,
		bot.WithLogger(slog.Default()),
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildVoiceStates,
			),
			gateway.WithPresenceOpts(
				gateway.WithListeningActivity("/music play"),
				gateway.WithOnlineStatus(discord.OnlineStatusOnline),
			),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagVoiceStates),
		),
		bot.WithVoiceManagerConfigOpts(
			voice.WithDaveSessionCreateFunc(golibdave.NewSession),
		),
		bot.WithRestClientConfigOpts(
			rest.WithHTTPClient(&http.Client{
				Timeout: 60 * time.Second,
			}),
		),
		bot.WithEventListenerFunc(onApplicationCommandInteraction),
		bot.WithEventListenerFunc(onAutocompleteInteraction),
		bot.WithEventListenerFunc(onVoiceStateUpdate),
		bot.WithEventListenerFunc(onReady),
	)
}

func RegisterCommand(cmd discord.ApplicationCommandCreate, handler func(event *events.ApplicationCommandInteractionCreate)) {
	commands = append(commands, cmd)
	switch c := cmd.(type) {
	case discord.SlashCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.UserCommandCreate:
		commandHandlers[c.CommandName()] = handler
	case discord.MessageCommandCreate:
		commandHandlers[c.CommandName()] = handler
	}
}

func RegisterAutocompleteHandler(cmdName string, handler func(event *events.AutocompleteInteractionCreate)) {
	autocompleteHandlers[cmdName] = handler
}

func RegisterVoiceStateUpdateHandler(handler func(event *events.GuildVoiceStateUpdate)) {
	voiceStateUpdateHandlers = append(voiceStateUpdateHandlers, handler)
}

func OnClientReady(cb func(ctx context.Context, client *bot.Client)) {
	onClientReadyCallbacks = append(onClientReadyCallbacks, cb)
}

func calculateCommandHash(cmds []discord.ApplicationCommandCreate) string {
	data, err := json.Marshal(cmds)
	if err != nil {
		return ""
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// RegisterCommands syncs the registered commands, globally when guildIDStr is empty.
// The last registered hash is kept in bot_config so restarts skip the REST round trip.
func RegisterCommands(client *bot.Client, guildIDStr string, force bool) error {
	ctx := context.Background()

	isProduction := guildIDStr == ""
	currentMode := "guild"
	if isProduction {
		currentMode = "global"
	}

	LogInfo(MsgLoaderSyncCommands, strings.ToUpper(currentMode))

	currentHash := calculateCommandHash(commands)
	lastHash, _ := GetBotConfig(ctx, botConfigLastHash)
	lastMode, _ := GetBotConfig(ctx, botConfigLastMode)
	lastGuildID, _ := GetBotConfig(ctx, botConfigLastGuild)

	if currentHash != "" && currentHash == lastHash && currentMode == lastMode && lastGuildID == guildIDStr && !force {
		LogInfo(MsgLoaderUpToDate, currentHash[:8])
		return nil
	}

	if isProduction {
		LogInfo(MsgLoaderProdStarting)
		created, err := client.Rest.SetGlobalCommands(client.ApplicationID, commands)
		if err != nil {
			return fmt.Errorf(MsgLoaderProdFail, err)
		}
		for _, cmd := range created {
			LogInfo(MsgLoaderProdRegistered, cmd.Name())
		}
	} else {
		guildID, err := snowflake.Parse(guildIDStr)
		if err != nil {
			return fmt.Errorf(MsgLoaderInvalidGuildID, err)
		}

		LogInfo(MsgLoaderDevStarting, guildIDStr)
		created, err := client.Rest.SetGuildCommands(client.ApplicationID, guildID, commands)
		if err != nil {
			LogWarn(MsgLoaderDevFail, err)
		} else {
			for _, cmd := range created {
				LogInfo(MsgLoaderDevRegistered, cmd.Name())
			}
		}

		if lastMode != currentMode || force {
			if cmds, err := client.Rest.GetGlobalCommands(client.ApplicationID, false); err == nil && len(cmds) > 0 {
				LogInfo(MsgLoaderDevGlobalClear)
				_, _ = client.Rest.SetGlobalCommands(client.ApplicationID, []discord.ApplicationCommandCreate{})
			}
		}
	}

	if lastGuildID != "" && lastGuildID != guildIDStr {
		if oldID, err := snowflake.Parse(lastGuildID); err == nil {
			if cmds, err := client.Rest.GetGuildCommands(client.ApplicationID, oldID, false); err == nil && len(cmds) > 0 {
				LogInfo(MsgLoaderCleanup, lastGuildID)
				_, _ = client.Rest.SetGuildCommands(client.ApplicationID, oldID, []discord.ApplicationCommandCreate{})
			}
		}
	}

	_ = SetBotConfig(ctx, botConfigLastMode, currentMode)
	_ = SetBotConfig(ctx, botConfigLastGuild, guildIDStr)
	if currentHash != "" {
		_ = SetBotConfig(ctx, botConfigLastHash, currentHash)
	}
	return nil
}

func onReady(event *events.Ready) {
	client := event.Client()
	LogInfo(MsgBotReady, GetProjectName(), event.User.ID.String(), os.Getpid(), time.Since(StartupTime).Milliseconds())

	for _, cb := range onClientReadyCallbacks {
		cb(AppContext, client)
	}
	StartDaemons(AppContext)
}

func onApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	if h, ok := commandHandlers[event.Data.CommandName()]; ok {
		SafeGo(func() { h(event) })
	}
}

func onAutocompleteInteraction(event *events.AutocompleteInteractionCreate) {
	if h, ok := autocompleteHandlers[event.Data.CommandName]; ok {
		SafeGo(func() { h(event) })
	}
}

func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	for _, h := range voiceStateUpdateHandlers {
		SafeGo(func() { h(event) })
	}
}

type daemonEntry struct {
	starter func(ctx context.Context) (bool, func(), func())
	logger  func(format string, v ...any)
}

var (
	registeredDaemons   []daemonEntry
	activeShutdownHooks []func()
	activeShutdownMu    sync.Mutex
)

// RegisterDaemon adds a background component. starter reports whether it should run
// and returns its run loop and an optional shutdown hook.
func RegisterDaemon(logger func(format string, v ...any), starter func(ctx context.Context) (bool, func(), func())) {
	registeredDaemons = append(registeredDaemons, daemonEntry{starter: starter, logger: logger})
}

func StartDaemons(ctx context.Context) {
	daemonsOnce.Do(func() {
		for _, daemon := range registeredDaemons {
			ok, run, shutdown := daemon.starter(ctx)
			if !ok {
				continue
			}
			if shutdown != nil {
				activeShutdownMu.Lock()
				activeShutdownHooks = append(activeShutdownHooks, shutdown)
				activeShutdownMu.Unlock()
			}
			daemon.logger(MsgDaemonStarting)
			if run != nil {
				SafeGo(run)
			}
		}
	})
}

func ShutdownDaemons() {
	activeShutdownMu.Lock()
	defer activeShutdownMu.Unlock()

	var wg sync.WaitGroup
	for _, shutdown := range activeShutdownHooks {
		wg.Add(1)
		SafeGo(func() {
			defer wg.Done()
			shutdown()
		})
	}
	wg.Wait()
	activeShutdownHooks = nil
}

// SafeGo runs f on a new goroutine and logs instead of crashing on panic.
func SafeGo(f func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				LogError(MsgLoaderPanicRecovered, r)
				fmt.Fprintf(os.Stderr, "%s\n", debug.Stack())
			}
		}()
		f()
	}()
}
