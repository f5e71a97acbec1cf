package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkobayashi/screenflow/internal/config"
	"github.com/mkobayashi/screenflow/internal/engine"
	"github.com/mkobayashi/screenflow/internal/flow"
	"github.com/mkobayashi/screenflow/internal/knowledge"
	"github.com/mkobayashi/screenflow/internal/llm"
	"github.com/mkobayashi/screenflow/internal/server"
	"github.com/mkobayashi/screenflow/internal/store"
)

var (
	servePort   int
	serveConfig string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that exposes REST endpoints for processing candidate messages.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default 8080)")
	serveCmd.Flags().StringVar(&serveConfig, "config", "", "Path to JSON config file")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := config.FromEnv()
	if serveConfig != "" {
		fileCfg, err := config.LoadConfig(serveConfig)
		if err != nil {
			return err
		}
		merged := cfg.MergeWithDefaults(*fileCfg)
		cfg = &merged
	} else {
		merged := cfg.MergeWithDefaults(config.Config{})
		cfg = &merged
	}
	if servePort != 0 {
		cfg.Port = servePort
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	modelCfg := llm.DefaultConfig()
	if cfg.ModelLite != "" {
		modelCfg = modelCfg.WithModel(llm.TierLite, cfg.ModelLite)
	}
	if cfg.ModelStandard != "" {
		modelCfg = modelCfg.WithModel(llm.TierStandard, cfg.ModelStandard)
	}
	if cfg.ModelAdvanced != "" {
		modelCfg = modelCfg.WithModel(llm.TierAdvanced, cfg.ModelAdvanced)
	}

	client, err := llm.NewClient(ctx, modelCfg, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create model client: %w", err)
	}

	registry, err := llm.NewRegistry(llm.DefaultScenes())
	if err != nil {
		return fmt.Errorf("failed to compile scenes: %w", err)
	}
	scenes := llm.NewCaller(client, registry)

	db, err := store.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}

	search := knowledge.NewPGSearcher(db.Pool())
	exec := flow.NewExecutor(logger)
	nodeSet := engine.NewNodeSet(scenes, db, search)
	orchestrator := engine.NewOrchestrator(exec, nodeSet, db, logger)

	srv, err := server.New(server.Config{
		Port:         cfg.Port,
		Store:        db,
		Orchestrator: orchestrator,
		Logger:       logger,
		CloseStore: func() {
			db.Close()
			_ = client.Close()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
