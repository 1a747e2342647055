package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/SentientStory/internal/api"
	"github.com/AaronLay10/SentientStory/internal/config"
	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/logging"
	"github.com/AaronLay10/SentientStory/internal/mqtt"
	"github.com/AaronLay10/SentientStory/internal/orchestrator"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
	"github.com/AaronLay10/SentientStory/internal/story"
	"github.com/AaronLay10/SentientStory/internal/version"
)

func main() {
	settings, err := config.LoadSettings()
	if err != nil {
		log.Fatalf("failed to read environment: %v", err)
	}

	logger, err := logging.New(settings.LogLevel, settings.LogEncoding)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, settings, logger); err != nil {
		logger.Fatal("Server failed", zap.Error(err))
	}
}

func run(ctx context.Context, settings *config.Settings, logger *zap.Logger) error {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}

	gameCfg, err := config.LoadGameConfig(settings.ConfigPath)
	if err != nil {
		return fmt.Errorf("load %s: %w", settings.ConfigPath, err)
	}
	gameID := gameCfg.Game.ID

	graph, err := loadStory(gameCfg, filepath.Dir(settings.ConfigPath))
	if err != nil {
		return err
	}
	if ids := graph.Unreachable(); len(ids) > 0 {
		logger.Warn("Story has unreachable scenes", zap.Strings("scenes", ids))
	}
	logger.Info("Story loaded",
		zap.String("story", graph.Meta().ID),
		zap.Int("scenes", graph.Len()),
		zap.String("version", version.Version),
	)

	reg := registry.New(gameCfg.RegistryCapacity())
	manager := orchestrator.NewManager(graph, reg, gameCfg.IdleTimeout())
	manager.SetMaxSessions(gameCfg.Sessions.MaxActive)

	opts := api.Options{
		Manager: manager,
		Auth:    api.NewAuth(secrets.Admin, secrets.Operator),
		Logger:  logger,
		GameID:  gameID,
	}
	if !opts.Auth.Enabled() {
		logger.Warn("Operator auth disabled: STORY_ADMIN_USER/STORY_ADMIN_PASS not set")
	}

	var journal *postgres.Client
	if settings.PostgresEnabled {
		journal, err = postgres.New(postgres.Options{
			Host:     settings.PGHost,
			Port:     settings.PGPort,
			User:     settings.PGUser,
			Password: secrets.PGPassword,
			Database: settings.PGDatabase,
			GameID:   gameID,
		})
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer journal.Close()
		events.SetJournal(journal)
		opts.Journal = journal
	}

	server := api.NewServer(opts)
	if journal != nil {
		server.Readiness().SetPostgres(func() bool { return journal.Ping() == nil }, true)
	}

	if settings.MQTTEnabled {
		client := mqtt.NewClient(settings.MQTTURL, "sentient-story-"+gameID, logger)
		bridge := mqtt.NewBridge(manager, client, gameCfg.TopicPrefix(), logger)
		if !client.StartWithRetry(bridge.InputTopic(), bridge.Handler()) {
			logger.Warn("MQTT not connected yet, retrying in background", zap.String("broker", settings.MQTTURL))
		}
		defer client.Disconnect()

		if monitor := mqtt.NewMonitor(bridge, gameCfg.IdleTimeout()); monitor.Enabled() {
			monitor.Start(time.Minute)
			defer monitor.Stop()
		}

		server.Readiness().SetMQTT(client.IsConnected, true)
	}

	alerter := api.NewAlerter(api.AlertConfig{
		WebhookURL:          settings.AlertWebhookURL,
		Game:                gameID,
		MQTTDisconnectDelay: settings.MQTTAlertDelay,
	}, logger)
	go alerter.Run(ctx, server.Readiness(), 5*time.Second)

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "story server starting", map[string]interface{}{
		"game":     gameID,
		"story":    graph.Meta().ID,
		"version":  version.Version,
		"hostname": hostname,
		"pid":      os.Getpid(),
	})

	err = server.Serve(ctx, gameCfg.HTTPPort(), api.NewTLSConfig(settings.TLSCert, settings.TLSKey))

	events.Emit("info", "system.shutdown", "story server stopping", map[string]interface{}{
		"game":     gameID,
		"sessions": manager.Len(),
	})
	return err
}

// loadStory reads the configured story file, resolved against the config
// directory, or falls back to the builtin story.
func loadStory(cfg *config.GameConfig, configDir string) (*story.Graph, error) {
	if cfg.Story.Path == "" {
		return story.Builtin(cfg.StoryBuiltin())
	}
	path := cfg.Story.Path
	if !filepath.IsAbs(path) {
		path = filepath.Join(configDir, path)
	}
	return story.Load(path)
}
