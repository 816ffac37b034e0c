package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"packt-downloader/auth"
	"packt-downloader/catalog"
	"packt-downloader/config"
	"packt-downloader/downloader"
	"packt-downloader/model"
	"packt-downloader/progress"
	"packt-downloader/transfer"
	"packt-downloader/utils"
)

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "Download every owned book in the requested formats",
	Long: `Download every owned book in the requested formats.

The list of owned books is cached in books.cache after the first listing;
remove it with "packtdl cache clear" to pick up new purchases. Files that
already exist are skipped, so an interrupted run can simply be restarted.`,
	Args: cobra.NoArgs,
	RunE: runDownload,
}

type downloadArgs struct {
	email     string
	password  string
	directory string
	books     string
	separate  bool
	workers   int
	cache     string
	state     string
}

var dArgs downloadArgs

func init() {
	downloadCmd.Flags().StringVarP(&dArgs.email, "email", "e", "", "account email")
	downloadCmd.Flags().StringVarP(&dArgs.password, "password", "p", "", "account password")
	downloadCmd.Flags().StringVarP(&dArgs.directory, "directory", "d", "media", "output directory")
	downloadCmd.Flags().StringVarP(&dArgs.books, "books", "b", "pdf,mobi,epub,code", "comma separated formats to download")
	downloadCmd.Flags().BoolVarP(&dArgs.separate, "separate", "s", false, "put the files of every book in their own folder")
	downloadCmd.Flags().IntVarP(&dArgs.workers, "workers", "w", downloader.DefaultWorkers, "books processed at once")
	downloadCmd.Flags().StringVar(&dArgs.cache, "cache", "", "catalog cache file or bucket URL (default books.cache)")
	downloadCmd.Flags().StringVar(&dArgs.state, "state", "", "state database (default state.db)")

	RootCmd.AddCommand(downloadCmd)
}

// downloadConfig applies the flags the user actually set on top of cfg.
func downloadConfig(cmd *cobra.Command, cfg config.Config) config.Config {
	flags := cmd.Flags()
	override := config.Config{
		Email:     dArgs.email,
		Password:  dArgs.password,
		Separate:  dArgs.separate,
		CacheURL:  dArgs.cache,
		StatePath: dArgs.state,
	}
	if flags.Changed("directory") {
		override.Directory = dArgs.directory
	}
	if flags.Changed("books") {
		override.Formats = model.ParseFormats(dArgs.books)
		if len(override.Formats) == 0 {
			// Keep the empty list so validation rejects it.
			cfg.Formats = nil
		}
	}
	if flags.Changed("workers") {
		override.Workers = dArgs.workers
		if dArgs.workers <= 0 {
			cfg.Workers = dArgs.workers
		}
	}
	return cfg.Merge(override)
}

func runDownload(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = downloadConfig(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return &UsageError{Err: err}
	}

	ctx := cmd.Context()
	logger := slog.Default()

	cache, err := openCache(ctx, cfg.CacheURL)
	if err != nil {
		return err
	}
	defer cache.Close()

	status, err := openStatus(ctx, cfg.StatePath)
	if err != nil {
		return err
	}
	defer status.Close()

	apiClient := utils.NewRestyClient(utils.ClientOptions{
		Timeout:    cfg.HTTPTimeout,
		RetryCount: 3,
		Logger:     logger,
	})
	fileClient := utils.NewRestyClient(utils.ClientOptions{Logger: logger})

	manager := auth.NewManager(apiClient, cfg.API.BaseURL, auth.Credential{Email: cfg.Email, Password: cfg.Password}, logger)
	if err := manager.Login(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &model.SetupError{Op: "login", Err: err}
	}
	logger.Info("logged in", "email", cfg.Email)

	bars := progress.New(cmd.ErrOrStderr(), progress.Options{
		Quiet:   cfg.Quiet,
		PerFile: cfg.Workers == 1,
	})
	client := catalog.NewClient(apiClient, manager, catalog.Options{
		BaseURL:  cfg.API.BaseURL,
		PageSize: cfg.PageSize,
		OnPage:   bars.Pages,
		Logger:   logger,
	})

	items, fromCache, err := downloader.LoadCatalog(ctx, cache, client)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	logger.Info("catalog loaded", "books", len(items), "cached", fromCache)

	run, err := status.BeginRun(ctx)
	if err != nil {
		return &model.SetupError{Op: "start run", Err: err}
	}

	engine := transfer.NewEngine(fileClient, manager, transfer.Options{
		Attempts:   cfg.Retry.Attempts,
		Backoff:    cfg.Retry.Backoff,
		MaxBackoff: cfg.Retry.MaxBackoff,
		Progress:   bars,
		Logger:     logger,
	})
	d := downloader.New(client, engine, downloader.Options{
		OutputDir: cfg.Directory,
		Formats:   cfg.Formats,
		Separate:  cfg.Separate,
		Workers:   cfg.Workers,
		RunID:     run.ID,
		Status:    status,
		Progress:  bars,
		Logger:    logger,
	})

	summary, runErr := d.Run(ctx, items)
	if summary == nil {
		return runErr
	}

	run.Complete, run.Skipped, run.Failed = summary.Complete, summary.Skipped, summary.Failed
	run.Cancelled = summary.Cancelled
	if err := status.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}

	if errors.Is(runErr, context.Canceled) {
		logger.Warn("interrupted", "summary", summary.String())
		return runErr
	}
	if runErr != nil {
		return runErr
	}

	if err := summary.Err(); err != nil {
		logger.Warn("some downloads failed, run again to retry them", "failed", summary.Failed)
		logger.Debug("failures", "error", err)
	}
	logger.Info("done", "summary", summary.String())
	return nil
}
