package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/qr"
	"live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"
)

type questionSetCache interface {
	app.QuestionSetRepository
	Invalidate(ctx context.Context, setID string) error
}

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8000"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			return err
		}
		defer redisClient.Close()
	}

	sample := memory.SampleQuestionSet()
	static := memory.NewStaticQuestionSetLoader(sample)
	var (
		loader memory.QuestionSetLoader = static
		bank   transport.QuestionBank   = static
	)
	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, logger); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		pgLoader := postgres.NewQuestionSetLoader(pool)
		loader = pgLoader
		bank = pgLoader
	}

	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
	var sets questionSetCache
	var snapshots app.SnapshotStore
	if redisClient != nil {
		sets = redis.NewQuestionSetRepository(redisClient, loader, cacheTTL, logger)
		snapshots = redis.NewSnapshotStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	} else {
		sets = memory.NewQuestionSetRepository(loader, cacheTTL)
		snapshots = memory.NewSnapshotStore()
	}

	// The seed overwrites the bank copy; a Redis cache may still hold an older one.
	if err := bank.SaveQuestionSet(ctx, sample); err != nil {
		logger.Warn("seed sample question set", zap.Error(err))
	} else if err := sets.Invalidate(ctx, sample.ID); err != nil {
		logger.Warn("invalidate cached sample set", zap.Error(err))
	}

	gateway := transport.NewGateway(cfg.Quiz.OutboxLimit, logger.Named("gateway"))
	session := app.NewSession(gateway, app.Options{
		TickInterval:       config.TTLDuration(cfg.Quiz.TickInterval, time.Second),
		FinishOnLastExpiry: cfg.Quiz.FinishOnLastExpiry,
		Logger:             logger.Named("session"),
	})
	service := app.NewQuizService(session, sets, logger)

	joinQR := qr.NewProvider(cfg.Server.PublicURL, cfg.Server.JoinPort, cfg.Server.JoinPath)
	rest := transport.NewRESTHandler(service, bank, joinQR, sample.Questions, logger.Named("rest"))
	ws := transport.NewWSHandler(session, gateway, logger.Named("ws"))

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Bind, finalPort),
		Handler:      transport.NewRouter(ws, rest, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return session.Run(gctx) })
	g.Go(func() error { return service.MirrorSnapshots(gctx, snapshots, 5*time.Second) })

	if cfg.Quiz.DefaultSet != "" {
		if _, err := service.LoadSet(gctx, cfg.Quiz.DefaultSet); err != nil {
			logger.Warn("load default question set", zap.String("set_id", cfg.Quiz.DefaultSet), zap.Error(err))
		}
	}

	g.Go(func() error {
		url, _ := joinQR.JoinURL()
		logger.Info("starting quiz service", zap.String("addr", server.Addr), zap.String("join_url", url))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
