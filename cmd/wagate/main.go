package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/memohai/wagate/internal/boot"
	"github.com/memohai/wagate/internal/config"
	"github.com/memohai/wagate/internal/handlers"
	"github.com/memohai/wagate/internal/janitor"
	"github.com/memohai/wagate/internal/logger"
	"github.com/memohai/wagate/internal/media"
	"github.com/memohai/wagate/internal/message"
	"github.com/memohai/wagate/internal/message/event"
	"github.com/memohai/wagate/internal/metrics"
	"github.com/memohai/wagate/internal/relay"
	"github.com/memohai/wagate/internal/server"
	"github.com/memohai/wagate/internal/session"
	"github.com/memohai/wagate/internal/storage"
	"github.com/memohai/wagate/internal/transcode"
	"github.com/memohai/wagate/internal/version"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideMetrics() (*metrics.Collector, error) {
	return metrics.NewCollector(prometheus.DefaultRegisterer)
}

func provideFSStore(log *slog.Logger, rc *boot.RuntimeConfig) (*storage.FSStore, error) {
	store := storage.NewFSStore(log, map[storage.Namespace]string{
		storage.NamespaceMessages: rc.MessageDir,
		storage.NamespacePhotos:   rc.PhotoDir,
	})
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("init media store: %w", err)
	}
	return store, nil
}

func provideStore(fsStore *storage.FSStore, cfg config.Config) (storage.Store, error) {
	return storage.NewCachedStore(fsStore, cfg.Media.RecordCacheSize)
}

func provideSessionClient(log *slog.Logger, rc *boot.RuntimeConfig) (*session.Client, error) {
	return session.NewClient(log, session.Options{
		BaseURL: rc.SessionBaseURL,
		Token:   rc.SessionToken,
	})
}

func provideConnection(log *slog.Logger, client *session.Client, rc *boot.RuntimeConfig) *session.Connection {
	return session.NewConnection(log, client, rc.PollInterval)
}

func provideFileService(log *slog.Logger, store storage.Store, client *session.Client, collector *metrics.Collector, rc *boot.RuntimeConfig) *media.FileService {
	return media.NewFileService(log, store, client, collector, rc.FetchTimeout)
}

func providePhotoService(log *slog.Logger, store storage.Store, client *session.Client, collector *metrics.Collector, rc *boot.RuntimeConfig) (*media.PhotoService, error) {
	placeholder, err := media.EnsurePlaceholder(rc.PlaceholderPath)
	if err != nil {
		return nil, err
	}
	return media.NewPhotoService(log, store, client, collector, placeholder, rc.PhotoTimeout), nil
}

func provideTranscoder(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, collector *metrics.Collector) *transcode.FFmpeg {
	return transcode.NewFFmpeg(log, transcode.Options{
		Path:          rc.FFmpegPath,
		MaxConcurrent: cfg.Transcoder.MaxConcurrent,
		Timeout:       rc.TranscodeTimeout,
	}, collector)
}

func provideMessageService(log *slog.Logger, client *session.Client, conn *session.Connection, ffmpeg *transcode.FFmpeg) *message.Service {
	return message.NewService(log, client, conn, ffmpeg, handlers.APIPrefix+"/chat")
}

func provideRelay(log *slog.Logger, client *session.Client, hub *event.Hub) *relay.Relay {
	return relay.New(log, client, hub)
}

func provideJanitor(log *slog.Logger, store storage.Store, cfg config.Config, rc *boot.RuntimeConfig) (*janitor.Janitor, error) {
	return janitor.New(log, store, janitor.Options{
		MaxAge:   rc.MaxAge,
		Schedule: cfg.Media.PruneSchedule,
	})
}

func provideMetricsHandler() *handlers.MetricsHandler {
	return handlers.NewMetricsHandler(prometheus.DefaultGatherer)
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			boot.ProvideRuntimeConfig,
			provideLogger,
			provideMetrics,

			// storage
			provideFSStore,
			provideStore,

			// session gateway
			provideSessionClient,
			provideConnection,
			event.NewHub,
			provideRelay,

			provideFileService,
			providePhotoService,
			provideTranscoder,
			provideMessageService,
			provideJanitor,

			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewStatusHandler),
			provideServerHandler(handlers.NewMessageHandler),
			provideServerHandler(handlers.NewMediaHandler),
			provideServerHandler(handlers.NewEventsHandler),
			provideServerHandler(provideMetricsHandler),

			provideServer,
		),
		fx.Invoke(
			startConnection,
			startRelay,
			startJanitor,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, server.Options{
		Addr:       params.RuntimeConfig.ServerAddr,
		CORSOrigin: params.Config.Server.CORSOrigin,
		BodyLimit:  params.Config.Server.BodyLimit,
		RateLimit:  params.Config.Server.RateLimit,
	}, params.ServerHandlers...)
}

func startConnection(lc fx.Lifecycle, conn *session.Connection, rc *boot.RuntimeConfig, logger *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			conn.Start(context.Background())
			if rc.ReadyTimeout <= 0 {
				return nil
			}
			waitCtx, cancel := context.WithTimeout(ctx, rc.ReadyTimeout)
			defer cancel()
			if err := conn.AwaitReady(waitCtx); err != nil {
				logger.Warn("session not ready at startup, serving anyway",
					slog.Duration("waited", rc.ReadyTimeout), slog.Any("error", err))
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			conn.Stop()
			return nil
		},
	})
}

func startRelay(lc fx.Lifecycle, r *relay.Relay) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			r.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			r.Stop()
			return nil
		},
	})
}

func startJanitor(lc fx.Lifecycle, j *janitor.Janitor) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return j.Start()
		},
		OnStop: func(ctx context.Context) error {
			return j.Stop(ctx)
		},
	})
}

func startServer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	srv *server.Server,
	shutdowner fx.Shutdowner,
) {
	fmt.Printf("Starting wagate %s\n", version.GetInfo())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			if err := srv.Stop(stopCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
