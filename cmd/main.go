package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"document-qa/internal/config"
	"document-qa/internal/helper"
	"document-qa/internal/models"
	"document-qa/internal/rag"
	"document-qa/internal/server"
)

const configFilePath = "./configs/config.yaml"

var (
	cfgPath string
	files   []string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "docqa",
	Short: "Question answering over uploaded documents",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig(cfgPath)
		if err != nil {
			return err
		}
		setupLogger(&cfg.Log)
		log.Debug().Interface("config", cfg.RAG).Msg("Loaded config")
		return nil
	},
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Index the given files and answer one question",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Index the given files and summarize them",
	Args:  cobra.NoArgs,
	RunE:  runSummarize,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", configFilePath, "path to the config file")
	for _, c := range []*cobra.Command{askCmd, summarizeCmd} {
		c.Flags().StringSliceVarP(&files, "file", "f", nil, "document to index (repeatable)")
		_ = c.MarkFlagRequired("file")
	}
	rootCmd.AddCommand(serveCmd, askCmd, summarizeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogger(lc *config.LogConfig) {
	level, err := zerolog.ParseLevel(lc.Level)
	if err != nil || lc.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if lc.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	}
}

// newService stops the process when a provider cannot be built.
func newService(ctx context.Context) (*rag.RAG, func() error) {
	svc, closeFn, err := rag.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing service")
	}
	return svc, closeFn
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, closeFn := newService(ctx)
	defer closeFn()

	srv := server.NewServer(&cfg.Server, svc)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, closeFn := newService(ctx)
	defer closeFn()

	if err := uploadFiles(ctx, svc); err != nil {
		return err
	}
	ans, err := svc.Query(ctx, args[0])
	if err != nil {
		return err
	}
	helper.PrettyPrint(ans)
	return nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	svc, closeFn := newService(ctx)
	defer closeFn()

	if err := uploadFiles(ctx, svc); err != nil {
		return err
	}
	helper.PrettyPrint(svc.Summarize(ctx))
	return nil
}

func uploadFiles(ctx context.Context, svc *rag.RAG) error {
	uploads := make([]models.Upload, 0, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		uploads = append(uploads, models.Upload{Filename: filepath.Base(path), Data: data})
	}

	report, err := svc.Upload(ctx, uploads)
	if err != nil {
		return err
	}
	var failed []error
	for _, f := range report.Files {
		if f.Error != "" {
			failed = append(failed, fmt.Errorf("%s: %s", f.Filename, f.Error))
		}
	}
	if len(failed) == len(report.Files) {
		return fmt.Errorf("no file could be indexed: %w", errors.Join(failed...))
	}
	for _, err := range failed {
		log.Warn().Err(err).Msg("file not indexed")
	}
	return nil
}
