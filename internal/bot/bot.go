package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/hfcRed/Agent-8s-sub001/internal/announce"
	"github.com/hfcRed/Agent-8s-sub001/internal/config"
	"github.com/hfcRed/Agent-8s-sub001/internal/lifecycle"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform"
	"github.com/hfcRed/Agent-8s-sub001/internal/platform/discord"
	"github.com/hfcRed/Agent-8s-sub001/internal/session"
	"github.com/hfcRed/Agent-8s-sub001/internal/storage"
	"github.com/hfcRed/Agent-8s-sub001/internal/sweeper"
	"github.com/hfcRed/Agent-8s-sub001/internal/teardown"
	"github.com/hfcRed/Agent-8s-sub001/internal/telemetry"
)

const telemetryBuffer = 256

// Bot represents the Discord bot instance
type Bot struct {
	config   *config.Config
	session  *discordgo.Session
	repo     *storage.Repository
	platform platform.Platform
	settings *guildSettings

	store      *session.Store
	engine     *lifecycle.Engine
	renderer   *announce.Renderer
	refresher  *announce.Refresher
	dispatcher *telemetry.Dispatcher
	sweeper    *sweeper.Sweeper
	metrics    *prometheus.Registry

	commands []*discordgo.ApplicationCommand
	log      *slog.Logger
}

// New creates a new Bot instance
func New(cfg *config.Config) (*Bot, error) {
	log := slog.Default()

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Voice states are needed to disconnect members from session rooms
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	// Initialize storage
	repo, err := storage.NewRepository(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Telemetry fans out to the log, sqlite and prometheus
	metrics := prometheus.NewRegistry()
	metrics.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatcher := telemetry.NewDispatcher(telemetryBuffer, log)
	dispatcher.Register(telemetry.NewLogSink(log))
	dispatcher.Register(telemetry.NewMetricsSink(metrics))
	dispatcher.Register(repo)

	plat := platform.WithRetries(discord.New(dg), platform.NewRetrier(cfg.PlatformRetries, log))

	store := session.NewStore(
		session.WithCapacity(cfg.Capacity),
		session.WithProcessingTimeout(cfg.ProcessingTimeout),
		session.WithLogger(log),
	)
	renderer := announce.NewRenderer(cfg.Capacity)
	refresher := announce.NewRefresher(store, plat, renderer, cfg.RefreshInterval, log)
	orchestrator := teardown.New(store, plat, refresher, dispatcher, log).
		WithShutdownAttempts(cfg.ShutdownRetries)
	settings := newGuildSettings(repo, cfg, log)

	engine := lifecycle.New(lifecycle.Deps{
		Store:     store,
		Platform:  plat,
		Announcer: refresher,
		Teardown:  orchestrator,
		Notifier:  dispatcher,
		Settings:  settings,
		Logger:    log,
	}, lifecycle.Config{
		MinParticipants: cfg.MinParticipants,
		VoiceRooms:      cfg.VoiceRooms,
		RepingCooldown:  cfg.RepingCooldown,
	})

	b := &Bot{
		config:     cfg,
		session:    dg,
		repo:       repo,
		platform:   plat,
		settings:   settings,
		store:      store,
		engine:     engine,
		renderer:   renderer,
		refresher:  refresher,
		dispatcher: dispatcher,
		sweeper:    sweeper.New(store, engine, cfg.SweepInterval, cfg.Expiry, log).WithVenue(plat),
		metrics:    metrics,
		log:        log.With("component", "bot"),
	}

	// Register command handlers
	b.registerHandlers()

	return b, nil
}

// Start opens the Discord connection and registers slash commands
func (b *Bot) Start(ctx context.Context) error {
	b.dispatcher.Start(ctx)

	// Open Discord connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	b.log.Info("Connected to Discord", "user", b.session.State.User.Username)

	// Register slash commands
	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	return nil
}

// Run drives the background workers until ctx is cancelled
func (b *Bot) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		b.refresher.Start(gctx)
		return nil
	})
	g.Go(func() error {
		b.sweeper.Start(gctx)
		return nil
	})

	if b.config.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(b.metrics, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              b.config.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			b.log.Info("Serving metrics", "addr", b.config.MetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Shutdown tears down every live session. It must run before the background
// workers are stopped so the final announcements and events go out.
func (b *Bot) Shutdown() int {
	ctx, cancel := context.WithTimeout(context.Background(), b.config.ShutdownTimeout)
	defer cancel()

	n := b.engine.Shutdown(ctx)
	b.refresher.Flush(ctx)
	return n
}

// Stop gracefully shuts down the bot
func (b *Bot) Stop() error {
	b.sweeper.Stop()
	b.refresher.Stop()
	b.dispatcher.Stop()

	// Close storage
	if b.repo != nil {
		if err := b.repo.Close(); err != nil {
			b.log.Error("Failed to close storage", "error", err)
		}
	}

	// Close Discord session
	if b.session != nil {
		return b.session.Close()
	}

	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		b.log.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands and button presses
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != commandName || len(data.Options) == 0 {
			b.log.Warn("Unknown command", "command", data.Name)
			return
		}
		b.log.Debug("Received command", "command", data.Options[0].Name, "guild", i.GuildID)
		b.handleCommand(s, i, data.Options[0])
	case discordgo.InteractionMessageComponent:
		b.handleButton(s, i)
	}
}
