package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
)

// NewStatusCmd prints the session snapshot mirrored to Redis by a running server.
func NewStatusCmd(configPath *string) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live session as mirrored to Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Redis.Addr == "" {
				return fmt.Errorf("redis addr not configured; status needs the snapshot mirror")
			}
			logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
			if err != nil {
				return err
			}
			defer client.Close()

			store := redis.NewSnapshotStore(client, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
			out := cmd.OutOrStdout()
			snap, err := store.Latest(ctx)
			if err != nil {
				return err
			}
			printSnapshot(out, snap)
			if !watch {
				return nil
			}
			return store.Watch(ctx, func(s domain.Snapshot) { printSnapshot(out, s) })
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep printing snapshots as they change")
	return cmd
}

func printSnapshot(w io.Writer, snap domain.Snapshot) {
	fmt.Fprintf(w, "session %s v%d: %s, question %d/%d, %ds left, %d players\n",
		snap.SessionID, snap.Version, snap.Status,
		snap.CurrentQuestion, snap.TotalQuestions, snap.Remaining, len(snap.Players))
	for _, e := range snap.Leaderboard {
		fmt.Fprintf(w, "  %2d. %-20s %d\n", e.Rank, e.Name, e.Score)
	}
	if snap.Question != nil {
		raw, _ := json.Marshal(snap.Question.Options)
		fmt.Fprintf(w, "  now: %s %s\n", snap.Question.Prompt, raw)
	}
}
