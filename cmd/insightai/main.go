package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/insightai/internal/handler"
	"github.com/xxxsen/insightai/internal/job"
	"github.com/xxxsen/insightai/internal/middleware"
	"github.com/xxxsen/insightai/internal/pkg/jwt"
	"github.com/xxxsen/insightai/internal/schedule"
)

func main() {
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:          "insightai",
		Short:        "news research assistant",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run insightai server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(a)
		},
	}

	rebuildCmd := &cobra.Command{
		Use:   "rebuild",
		Short: "run one index rebuild cycle",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			out := a.manager.RunCycle(cmd.Context())
			raw, _ := json.MarshalIndent(out, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(raw))
			if !out.OK() {
				return fmt.Errorf("rebuild %s at %s: %s", out.Status, out.Stage, out.Error)
			}
			return nil
		},
	}

	var topK int
	askCmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "answer one question from the persisted index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			if _, err := a.manager.Restore(cmd.Context()); err != nil {
				return fmt.Errorf("restore index: %w", err)
			}
			res, err := a.ragService.Ask(cmd.Context(), strings.Join(args, " "), topK)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Answer)
			return nil
		},
	}
	askCmd.Flags().IntVar(&topK, "k", 0, "number of chunks to retrieve")

	var operator string
	var ttl time.Duration
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "issue an operator token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			token, err := jwt.GenerateToken(operator, []byte(cfg.JWTSecret), ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&operator, "operator", "admin", "operator name")
	tokenCmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")

	rootCmd.AddCommand(runCmd, rebuildCmd, askCmd, tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("rebuild_schedule", cfg.Schedule.Rebuild),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.restore(ctx)

	scheduler := schedule.NewCronScheduler()
	rebuildJob := job.NewIndexRebuildJob(a.manager)
	if err := scheduler.AddJob(rebuildJob, cfg.Schedule.Rebuild); err != nil {
		return fmt.Errorf("schedule rebuild: %w", err)
	}
	if a.cacheRepo != nil {
		cleanupJob := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Database.CacheMaxAgeDays)
		if err := scheduler.AddJob(cleanupJob, cfg.Schedule.CacheCleanup); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	if cfg.Schedule.RunOnStart {
		go func() {
			if err := rebuildJob.Run(ctx); err != nil {
				logutil.GetLogger(ctx).Error("startup rebuild failed", zap.Error(err))
			}
		}()
	}

	deps := handler.RouterDeps{
		Index: handler.NewIndexHandler(a.manager, cfg.Fetch, func() (time.Time, bool) {
			return scheduler.Next(rebuildJob.Name())
		}),
		Ask:           handler.NewAskHandler(a.ragService),
		JWTSecret:     []byte(cfg.JWTSecret),
		AskRateWindow: time.Duration(cfg.Query.RateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/",
		fmt.Sprintf("0.0.0.0:%d", cfg.Port),
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(context.Background()).Info("http server listening", zap.String("addr", fmt.Sprintf("0.0.0.0:%d", cfg.Port)))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
