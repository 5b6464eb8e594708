package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/proposal/internal/ai"
	"github.com/xxxsen/proposal/internal/config"
	"github.com/xxxsen/proposal/internal/db"
	"github.com/xxxsen/proposal/internal/embedcache"
	"github.com/xxxsen/proposal/internal/filestore"
	"github.com/xxxsen/proposal/internal/handler"
	"github.com/xxxsen/proposal/internal/job"
	"github.com/xxxsen/proposal/internal/middleware"
	"github.com/xxxsen/proposal/internal/pipeline"
	"github.com/xxxsen/proposal/internal/repo"
	"github.com/xxxsen/proposal/internal/schedule"
	"github.com/xxxsen/proposal/internal/service"
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	profiles  *service.ProfileService
	library   *service.LibraryService
	proposals *service.ProposalService
	cacheRepo *repo.EmbeddingCacheRepo
}

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "proposal",
		Short: "freelance proposal writer",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run proposal server",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			return runServer(a)
		},
	}

	reembedCmd := &cobra.Command{
		Use:   "reembed",
		Short: "re-embed profiles stored under a different embedding model",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			n, err := a.profiles.ReembedStale(cmd.Context(), a.cfg.Jobs.ProfileReembedBatch)
			if err != nil {
				return err
			}
			logutil.GetLogger(cmd.Context()).Info("profiles re-embedded", zap.Int("count", n))
			return nil
		},
	}

	var (
		userID       string
		jobFile      string
		feedback     string
		previousFile string
		withScore    bool
	)
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "generate a proposal for a job description",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			owner, err := a.userOrDefault(userID)
			if err != nil {
				return err
			}
			jobText, err := os.ReadFile(jobFile)
			if err != nil {
				return fmt.Errorf("read job file: %w", err)
			}
			req := &service.GenerateRequest{
				UserID:         owner,
				JobDescription: string(jobText),
				UserFeedback:   feedback,
			}
			if previousFile != "" {
				prev, err := os.ReadFile(previousFile)
				if err != nil {
					return fmt.Errorf("read previous proposal: %w", err)
				}
				req.PreviousProposal = string(prev)
			}
			if withScore {
				res, err := a.proposals.Evaluate(cmd.Context(), req)
				if err != nil {
					return err
				}
				return printJSON(res)
			}
			res, err := a.proposals.GenerateProposal(cmd.Context(), req)
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	generateCmd.Flags().StringVar(&userID, "user", "", "owner id, defaults to demo_user_id")
	generateCmd.Flags().StringVar(&jobFile, "job", "", "file holding the job description")
	generateCmd.Flags().StringVar(&feedback, "feedback", "", "feedback for the regenerated proposal")
	generateCmd.Flags().StringVar(&previousFile, "previous", "", "file holding the previous proposal")
	generateCmd.Flags().BoolVar(&withScore, "score", false, "also compute the match score")
	_ = generateCmd.MarkFlagRequired("job")

	scoreCmd := &cobra.Command{
		Use:   "score",
		Short: "score how well the stored CV matches a job description",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(configPath)
			if err != nil {
				return err
			}
			defer a.db.Close()
			owner, err := a.userOrDefault(userID)
			if err != nil {
				return err
			}
			jobText, err := os.ReadFile(jobFile)
			if err != nil {
				return fmt.Errorf("read job file: %w", err)
			}
			res, err := a.proposals.CalculateMatchScore(cmd.Context(), owner, string(jobText))
			if err != nil {
				return err
			}
			return printJSON(res)
		},
	}
	scoreCmd.Flags().StringVar(&userID, "user", "", "owner id, defaults to demo_user_id")
	scoreCmd.Flags().StringVar(&jobFile, "job", "", "file holding the job description")
	_ = scoreCmd.MarkFlagRequired("job")

	rootCmd.AddCommand(runCmd, reembedCmd, generateCmd, scoreCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func setup(configPath string) (*app, error) {
	if configPath == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(
		cfg.LogConfig.File,
		cfg.LogConfig.Level,
		int(cfg.LogConfig.FileCount),
		int(cfg.LogConfig.FileSize),
		int(cfg.LogConfig.KeepDays),
		cfg.LogConfig.Console,
	)
	logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))

	conn, err := db.Open(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.ApplyMigrations(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	a, err := build(cfg, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return a, nil
}

func build(cfg *config.Config, conn *sql.DB) (*app, error) {
	gen, embedder, err := ai.Build(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("init ai: %w", err)
	}
	cacheRepo := repo.NewEmbeddingCacheRepo(conn)
	if cfg.EmbedCache.EnableDB {
		embedder = embedcache.WithStore(embedder, cacheRepo)
	}
	if cfg.EmbedCache.LRUSize > 0 {
		embedder = embedcache.WithMemory(embedder, cfg.EmbedCache.LRUSize, time.Duration(cfg.EmbedCache.LRUTTLSeconds)*time.Second)
	}

	store, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	profileRepo := repo.NewProfileRepo(conn)
	libraryRepo := repo.NewSuccessfulProposalRepo(conn)

	profiles := service.NewProfileService(profileRepo, embedder, store)
	library := service.NewLibraryService(libraryRepo, embedder)
	p := pipeline.New(gen, pipeline.Config{
		Timeout:             cfg.AI.Timeout,
		MaxInputChars:       cfg.AI.MaxInputChars,
		CreativeTemperature: cfg.AI.CreativeTemperature,
		ExperienceChars:     cfg.AI.ExperienceChars,
	})
	proposals := service.NewProposalService(pipeline.NewRetriever(embedder, profileRepo), p, library)

	logutil.GetLogger(context.Background()).Info(
		"ai stack ready",
		zap.String("chat", gen.ModelName()),
		zap.String("embed", embedder.ModelName()),
		zap.String("file_store", store.Type()),
	)
	return &app{
		cfg:       cfg,
		db:        conn,
		profiles:  profiles,
		library:   library,
		proposals: proposals,
		cacheRepo: cacheRepo,
	}, nil
}

func (a *app) userOrDefault(userID string) (string, error) {
	if userID == "" {
		userID = a.cfg.DemoUserID
	}
	if !middleware.ValidUserID(userID) {
		return "", fmt.Errorf("invalid user id %q", userID)
	}
	return userID, nil
}

func runServer(a *app) error {
	cfg := a.cfg
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
	)

	deps := handler.RouterDeps{
		Profiles:   handler.NewProfileHandler(a.profiles, cfg.Validation),
		Proposals:  handler.NewProposalHandler(a.proposals, cfg.Validation),
		Library:    handler.NewLibraryHandler(a.library),
		Health:     handler.NewHealthHandler(a.db),
		DemoUserID: cfg.DemoUserID,
		RateLimit:  time.Duration(cfg.RateLimitSeconds) * time.Second,
	}

	engine, err := webapi.NewEngine(
		"/api/v1",
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Jobs.EmbeddingCacheMaxAgeDays), cfg.Jobs.EmbeddingCacheCleanup); err != nil {
		return fmt.Errorf("schedule cache cleanup: %w", err)
	}
	if err := scheduler.AddJob(job.NewProfileReembedJob(a.profiles, cfg.Jobs.ProfileReembedBatch), cfg.Jobs.ProfileReembed); err != nil {
		return fmt.Errorf("schedule profile reembed: %w", err)
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()
	logutil.GetLogger(ctx).Info("scheduler started", zap.Strings("jobs", scheduler.Jobs()))

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

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
