// Package main provides the server entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/storybox/internal/api"
	"github.com/osa030/storybox/internal/app/carousel"
	"github.com/osa030/storybox/internal/app/playback"
	"github.com/osa030/storybox/internal/app/session"
	"github.com/osa030/storybox/internal/domain/story"
	"github.com/osa030/storybox/internal/infra/catalog"
	"github.com/osa030/storybox/internal/infra/config"
	"github.com/osa030/storybox/internal/infra/logger"
	"github.com/osa030/storybox/internal/infra/natsbus"
)

var (
	app        = kingpin.New("storybox-server", "storybox story session server")
	configPath = app.Flag("config", "Path to config file").Default("config/server.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (overrides config)").String()

	// check-catalog command
	checkCatalogCmd = app.Command("check-catalog", "Validate the story catalog and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the server (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Bootstrap logger until the config is loaded
	if _, err := logger.Init(logConfig(config.LogConfig{Output: "stdout", Level: "info"})); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	closer, err := logger.Init(logConfig(cfg.Log))
	if err != nil {
		zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
	}
	defer closer.Close()

	if command == checkCatalogCmd.FullCommand() {
		if err := checkCatalog(cfg, os.Stdout); err != nil {
			zlog.Error().Msgf("Catalog check failed: %v", err)
			closer.Close()
			os.Exit(1)
		}
		return
	}

	// Run server
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Server error: %v", err)
		closer.Close()
		os.Exit(1)
	}
}

// logConfig applies command-line overrides to the configured log section.
func logConfig(c config.LogConfig) logger.Config {
	lc := logger.Config{Output: c.Output, Level: c.Level, File: c.File}
	if *verbose {
		lc.Level = "debug"
	}
	if *logfile != "" {
		lc.Output = "file"
		lc.File = *logfile
	}
	return lc
}

func loadCatalog(cfg *config.Config) ([]story.Group, error) {
	return catalog.Load(cfg.Catalog.Path, catalog.Options{DefaultPageDuration: cfg.DefaultPageDuration()})
}

// checkCatalog prints a summary of the catalog in its carousel order.
func checkCatalog(cfg *config.Config, w io.Writer) error {
	groups, err := loadCatalog(cfg)
	if err != nil {
		return err
	}
	groups = story.SortForCarousel(groups)

	fmt.Fprintf(w, "Catalog %s: %d groups\n", cfg.Catalog.Path, len(groups))
	for _, g := range groups {
		var total time.Duration
		for _, p := range g.Pages {
			total += p.Duration
		}
		fmt.Fprintf(w, "  %-20s %2d pages  %6s  %s\n", g.ID, len(g.Pages), total, g.Title)
	}
	return nil
}

// run executes the main server logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	groups, err := loadCatalog(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to load catalog")
	}

	publisher, err := natsbus.New(cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
	if err != nil {
		return errors.Wrap(err, "failed to create event publisher")
	}
	defer publisher.Close()

	// Create session manager
	sessionMgr := session.NewManager(groups, session.Config{
		Playback: playback.Config{
			DefaultPageDuration: cfg.DefaultPageDuration(),
			UnmarkOnPrevious:    cfg.Playback.UnmarkOnPrevious,
		},
		Carousel:     carousel.Config{ResortDelay: cfg.ResortDelay()},
		TickInterval: cfg.TickInterval(),
	}, publisher)
	if err := sessionMgr.Start(); err != nil {
		return errors.Wrap(err, "failed to start session")
	}

	// Create router
	router := api.NewRouter(sessionMgr, api.Options{
		APIToken:       cfg.Server.APIToken,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	// Create server with h2c (HTTP/2 cleartext) support
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to capture server startup errors
	serverErrCh := make(chan error, 1)

	// Start server
	go func() {
		zlog.Info().Msgf("Starting server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Wait for shutdown signal or server error, reloading the catalog on SIGHUP
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

wait:
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				reloadCatalog(cfg, sessionMgr)
				continue
			}
			zlog.Info().Msg("Received shutdown signal...")
			break wait
		case <-sessionMgr.Done():
			zlog.Info().Msg("Session ended, shutting down...")
			break wait
		case err := <-serverErrCh:
			sessionMgr.Close()
			return errors.Wrap(err, "server error")
		}
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close session manager first to terminate active streams
	sessionMgr.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}

	zlog.Info().Msg("Server stopped")
	return nil
}

func reloadCatalog(cfg *config.Config, sessionMgr *session.Manager) {
	groups, err := loadCatalog(cfg)
	if err != nil {
		zlog.Error().Msgf("Failed to reload catalog, keeping current one: %v", err)
		return
	}
	sessionMgr.ReloadCatalog(groups)
}
