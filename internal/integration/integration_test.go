package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	pgbank "live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

func TestLiveSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateBank(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	bank := pgbank.NewQuestionSetLoader(pool)
	if err := bank.SaveQuestionSet(ctx, memory.SampleQuestionSet()); err != nil {
		t.Fatalf("seed bank: %v", err)
	}
	listing, err := bank.ListQuestionSets(ctx)
	if err != nil || len(listing) != 1 || listing[0].Count != 3 {
		t.Fatalf("unexpected bank listing %+v (%v)", listing, err)
	}

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	sets := infraredis.NewQuestionSetRepository(redisClient, bank, 5*time.Minute, nil)
	snapshots := infraredis.NewSnapshotStore(redisClient, 5*time.Minute)

	session := app.NewSession(app.PublisherFunc(func(app.Event) {}), app.Options{})
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() { _ = session.Run(runCtx) }()
	service := app.NewQuizService(session, sets, nil)
	go func() { _ = service.MirrorSnapshots(runCtx, snapshots, 5*time.Second) }()

	if _, err := service.LoadSet(ctx, "sample"); err != nil {
		t.Fatalf("load set: %v", err)
	}
	if _, err := service.LoadSet(ctx, "missing"); err == nil {
		t.Fatalf("expected unknown set to fail")
	}

	alice, err := session.Join(ctx, "c1", "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := session.Join(ctx, "c2", "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := session.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	fb, err := session.Submit(ctx, bob.ID, "Q1", "C")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !fb.Correct || fb.Awarded != 10 || fb.Score != 10 {
		t.Fatalf("expected 10 points for bob, got %+v", fb)
	}
	if fb, err := session.Submit(ctx, alice.ID, "Q1", "A"); err != nil || fb.Correct {
		t.Fatalf("expected wrong answer for alice, got %+v (%v)", fb, err)
	}

	want := session.LastSnapshot().Version
	deadline := time.Now().Add(5 * time.Second)
	for {
		snap, err := snapshots.Latest(ctx)
		if err == nil && snap.Version >= want {
			if snap.Status != domain.StatusActive || len(snap.Leaderboard) != 2 || snap.Leaderboard[0].PlayerID != bob.ID {
				t.Fatalf("unexpected mirrored snapshot %+v", snap)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("mirror never reached version %d (last err %v)", want, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateBank(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
