// Command modmail runs the mod-mail bot: the Discord gateway, the
// scheduled-action sweeper and the transcript/attachment web server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/tbourn/go-modmail/internal/attachments"
	"github.com/tbourn/go-modmail/internal/bot"
	"github.com/tbourn/go-modmail/internal/config"
	"github.com/tbourn/go-modmail/internal/hooks"
	httpapi "github.com/tbourn/go-modmail/internal/http"
	"github.com/tbourn/go-modmail/internal/http/handlers"
	"github.com/tbourn/go-modmail/internal/observability"
	"github.com/tbourn/go-modmail/internal/platform"
	"github.com/tbourn/go-modmail/internal/platform/discord"
	"github.com/tbourn/go-modmail/internal/queue"
	"github.com/tbourn/go-modmail/internal/repo"
	"github.com/tbourn/go-modmail/internal/services"
	"github.com/tbourn/go-modmail/internal/sweeper"
	"github.com/tbourn/go-modmail/internal/sysutil"
)

var version = "dev"

const (
	shutdownTimeout = 15 * time.Second
	drainTimeout    = 30 * time.Second
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to a YAML config file")
		logLevel    = pflag.String("log-level", "", "override the configured log level")
		migrateOnly = pflag.Bool("migrate-only", false, "migrate the database and exit")
	)
	pflag.Parse()

	if err := run(*configPath, *logLevel, *migrateOnly); err != nil {
		log.Error().Err(err).Msg("modmail exited")
		os.Exit(1)
	}
}

func run(configPath, logLevel string, migrateOnly bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sysutil.SetupLogger(cfg.LogPretty, os.Stderr)
	sysutil.SetLogLevel(sysutil.FirstNonEmpty(logLevel, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info().Str("driver", cfg.DB.Driver).Msg("store ready")
	if migrateOnly {
		return nil
	}

	session, err := discord.NewSession(cfg.Token)
	if err != nil {
		return err
	}
	client := discord.NewClient(session)

	fetcher := attachments.NewFetcher(nil, cfg.Attachments.Attempts)
	backend, local, err := attachmentBackend(ctx, cfg, client, fetcher)
	if err != nil {
		return err
	}
	store := attachments.NewStore(backend, fetcher)

	threads := services.NewThreadService(db, client, store, hooks.New(), cfg)
	snippets := services.NewSnippetService(db)
	blocks := services.NewBlockService(db)

	// Queued tasks outlive the signal so that shutdown can drain them.
	q := queue.New(queue.Options{
		Timeout:     cfg.Threads.QueueTimeout,
		BaseContext: context.WithoutCancel(ctx),
	})
	b := bot.New(threads, snippets, blocks, q)
	gw := discord.NewGateway(ctx, session, b)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := gw.Open(); err != nil {
			return err
		}
		log.Info().Str("version", version).Msg("modmail started")
		<-gctx.Done()
		return gw.Close()
	})

	g.Go(func() error {
		return sweeper.New(threads, blocks, cfg.Threads.SweepInterval).Run(gctx)
	})

	if cfg.HTTP.Enabled {
		srv := newHTTPServer(cfg, threads, local)
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("http listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err = g.Wait()

	dctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if werr := q.Wait(dctx); werr != nil {
		log.Warn().Err(werr).Int("pending", q.Len()).Msg("dispatch queue not drained")
	}
	log.Info().Msg("modmail stopped")
	return err
}

// attachmentBackend builds the configured backend. local is non-nil only
// for the local-disk backend, whose files the web server serves.
func attachmentBackend(ctx context.Context, cfg config.Config, client platform.Client, fetcher *attachments.Fetcher) (attachments.Backend, *attachments.Local, error) {
	switch cfg.Attachments.Storage {
	case "local", "":
		if err := os.MkdirAll(cfg.Attachments.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("attachments dir: %w", err)
		}
		l := attachments.NewLocal(cfg.Attachments.Dir, cfg.HTTP.URL, fetcher)
		return l, l, nil
	case "discord":
		return attachments.NewChannel(client, cfg.Attachments.StorageChannelID, cfg.Attachments.MaxUploadBytes, fetcher), nil, nil
	case "gcs":
		gc, err := attachments.NewGCSClient(ctx, cfg.Attachments.GCSCredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return attachments.NewGCS(gc, cfg.Attachments.GCSBucket, cfg.Attachments.GCSPublicBaseURL, fetcher), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown attachment storage %q", cfg.Attachments.Storage)
	}
}

func newHTTPServer(cfg config.Config, threads *services.ThreadService, local *attachments.Local) *http.Server {
	gin.SetMode(cfg.HTTP.GinMode)
	r := gin.New()

	// A nil *Local must stay a nil interface.
	var files handlers.FileResolver
	if local != nil {
		files = local
	}
	httpapi.RegisterRoutes(r, threads, files, cfg)

	return &http.Server{
		Addr:              net.JoinHostPort("", cfg.HTTP.Port),
		Handler:           r,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
}
