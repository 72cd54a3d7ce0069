package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/jukebox/home"
	"github.com/leeineian/jukebox/proc/player"
	"github.com/leeineian/jukebox/proc/source"
	"github.com/leeineian/jukebox/proc/voice"
	"github.com/leeineian/jukebox/sys"
)

const (
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgBotStarting         = "Starting %s..."
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotStubbornOld      = "Old process %d is stubborn. Sending SIGKILL..."
	MsgBotKillResistant    = "Process %d still exists after SIGKILL"
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotClientCreateFail = "failed to create Discord client after %d attempts: %w"
	MsgBotClientRetry      = "Failed to create Discord client (attempt %d/%d): %v. Retrying in 5s..."
	MsgBotSkipReg          = "Skipping command registration as requested."
	MsgBotGatewayFail      = "failed to open gateway: %w"
	MsgGenericError        = "%v"
	MsgInitializing        = "Initializing %s..."
	MsgDatabaseInitFail    = "Failed to initialize database: %v"
	MsgPIDOpenFail         = "Failed to open PID file: %v"
	MsgPIDLockFail         = "Failed to lock PID file: %v"
	MsgDaemonShutdown      = "Shutting down all daemons..."
	MsgHistoryWriteFail    = "Failed to record history for guild %s: %v"
	MsgPanicFatal          = "\n[FATAL] %s\n"

	BotPIDFile        = ".bot.pid"
	clientAttempts    = 5
	shutdownTimeout   = 15 * time.Second
	historyTimeout    = 5 * time.Second
	providerHTTPLimit = 30 * time.Second
)

func main() {
	// LogFatal panics with a string so deferred cleanup runs first.
	defer func() {
		if r := recover(); r != nil {
			if msg, ok := r.(string); ok {
				fmt.Fprintf(os.Stderr, MsgPanicFatal, msg)
				os.Exit(1)
			}
			panic(r)
		}
	}()

	silent := flag.Bool("silent", false, "Disable all log output")
	skipReg := flag.Bool("skip-reg", false, "Skip command registration")
	clearAll := flag.Bool("clear-all", false, "Force clear guild commands (scan all guilds)")
	flag.Parse()

	cfg, err := sys.LoadConfig()
	if err != nil {
		sys.LogFatal(MsgConfigFailedToLoad, err)
	}

	logName := sys.InitLogger(*silent || cfg.Silent, true)
	botName := sys.GetProjectName()
	sys.LogInfo(MsgBotStarting, botName)

	sys.LogInfo(MsgInitializing, filepath.Base(cfg.DatabasePath))
	if logName != "" {
		sys.LogInfo(MsgInitializing, filepath.Base(logName))
	}
	if err := sys.InitDatabase(context.Background(), cfg.DatabasePath); err != nil {
		sys.LogFatal(MsgDatabaseInitFail, err)
	}
	defer sys.CloseDatabase()

	unlock := acquirePIDLock()
	defer unlock()

	if err := run(cfg, *silent, *skipReg, *clearAll); err != nil {
		sys.LogFatal(MsgGenericError, err)
	}
}

// acquirePIDLock takes an exclusive lock on the PID file, terminating a
// running instance that holds it.
func acquirePIDLock() func() {
	f, err := os.OpenFile(BotPIDFile, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		sys.LogFatal(MsgPIDOpenFail, err)
	}

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
		if err == nil {
			break
		}
		if err != syscall.EWOULDBLOCK {
			sys.LogFatal(MsgPIDLockFail, err)
		}

		var oldPid int
		_, _ = f.Seek(0, 0)
		if _, scanErr := fmt.Fscanf(f, "%d", &oldPid); scanErr != nil {
			_ = f.Close()
			<-ticker.C
			if f, err = os.OpenFile(BotPIDFile, os.O_RDWR|os.O_CREATE, 0644); err != nil {
				sys.LogFatal(MsgPIDOpenFail, err)
			}
			continue
		}
		if oldPid == os.Getpid() {
			break
		}
		process, procErr := os.FindProcess(oldPid)
		if procErr != nil {
			<-ticker.C
			continue
		}

		sys.LogInfo(MsgBotKillingOld, oldPid)
		_ = process.Signal(syscall.SIGTERM)
		if !waitForExit(process, ticker, 5*time.Second) {
			sys.LogWarn(MsgBotStubbornOld, oldPid)
			_ = process.Signal(syscall.SIGKILL)
			if !waitForExit(process, ticker, 2*time.Second) {
				sys.LogWarn(MsgBotKillResistant, oldPid)
			}
		}
		sys.LogInfo(MsgBotOldTerminated)
	}

	_ = f.Truncate(0)
	_, _ = f.Seek(0, 0)
	_, _ = fmt.Fprintf(f, "%d", os.Getpid())
	_ = f.Sync()

	return func() {
		_ = syscall.Flock(int(f.Fd()), syscall.LOCK_UN)
		_ = f.Close()
		_ = os.Remove(BotPIDFile)
	}
}

func waitForExit(process *os.Process, ticker *time.Ticker, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case <-ticker.C:
			if err := process.Signal(syscall.Signal(0)); err != nil {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func run(cfg *sys.Config, silent, skipReg, clearAll bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	defer stop()
	sys.SetAppContext(ctx)

	var client *bot.Client
	var err error
	for i := 1; i <= clientAttempts; i++ {
		client, err = sys.CreateClient(ctx, cfg)
		if err == nil {
			break
		}
		if i == clientAttempts {
			return fmt.Errorf(MsgBotClientCreateFail, i, err)
		}
		sys.LogWarn(MsgBotClientRetry, i, clientAttempts, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
	defer client.Close(context.Background())

	registry := newRegistry(ctx, cfg, client)
	home.Register(&home.Music{
		Registry: registry,
		Suggester: &source.Suggester{
			YoutubePrefix: cfg.YoutubePrefix,
			YTMusicPrefix: cfg.YTMusicPrefix,
		},
		HistoryLimit: cfg.HistoryLimit,
	})

	if !skipReg {
		if err := sys.RegisterCommands(client, cfg.GuildID, clearAll); err != nil {
			sys.LogError(MsgBotRegisterFail, err)
		}
	} else {
		sys.LogInfo(MsgBotSkipReg)
	}

	if err := client.OpenGateway(ctx); err != nil {
		return fmt.Errorf(MsgBotGatewayFail, err)
	}

	<-ctx.Done()
	if !silent {
		fmt.Println()
	}

	sys.LogInfo(MsgDaemonShutdown)
	sys.ShutdownDaemons()

	sys.LogInfo(MsgBotShutdown, sys.GetProjectName())
	return nil
}

// newRegistry wires the provider chain, the audio source factory and the
// voice transport into a session registry that records every played track.
func newRegistry(ctx context.Context, cfg *sys.Config, client *bot.Client) *player.Registry {
	httpClient := &http.Client{Timeout: providerHTTPLimit}

	ytdlp := &source.Ytdlp{Executable: cfg.YtdlpPath}
	youtube := source.NewYouTube(httpClient)
	ytmusic := &source.YTMusic{Ytdlp: ytdlp, YouTube: youtube}
	chain := source.NewChain(ytmusic, ytdlp, youtube, cfg.ProviderTimeout, cfg.ProviderRate)

	factory := &player.Factory{Transcoder: &player.FFmpeg{Path: cfg.FFmpegPath}}
	registry := player.NewRegistry(ctx, chain, factory, voice.NewConnector(client))
	registry.OnTrackStart = func(guildID snowflake.ID, t *source.Track) {
		hctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
		defer cancel()
		err := sys.AddTrackHistory(hctx, &sys.HistoryEntry{
			GuildID:       guildID,
			URL:           t.URL,
			Title:         t.DisplayTitle(),
			Artist:        t.Artist,
			RequesterID:   t.Requester.ID,
			RequesterName: t.Requester.Username,
		})
		if err != nil {
			sys.LogWarn(MsgHistoryWriteFail, guildID, err)
		}
	}

	sys.RegisterDaemon(sys.LogPlayer, func(ctx context.Context) (bool, func(), func()) {
		return true, nil, func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			registry.Shutdown(sctx)
		}
	})
	return registry
}
