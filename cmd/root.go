package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"packt-downloader/config"
	"packt-downloader/logging"
	"packt-downloader/model"
	"packt-downloader/store"
)

// UsageError is a bad command line or configuration.
type UsageError struct {
	Err error
}

func (e *UsageError) Error() string {
	return e.Err.Error()
}

func (e *UsageError) Unwrap() error {
	return e.Err
}

var RootCmd = &cobra.Command{
	Use:           "packtdl",
	Short:         "Download the books and extras of a Packt account",
	Long:          "Download the books, code bundles and videos of a Packt account, skipping what is already on disk.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

type rootArgs struct {
	configPath string
	verbose    bool
	quiet      bool
}

var rArgs rootArgs

func init() {
	RootCmd.PersistentFlags().StringVar(&rArgs.configPath, "config", "", "config file (.yaml, .yml or .toml)")
	RootCmd.PersistentFlags().BoolVarP(&rArgs.verbose, "verbose", "v", false, "show debug output")
	RootCmd.PersistentFlags().BoolVarP(&rArgs.quiet, "quiet", "q", false, "only show warnings and errors")

	RootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Err: err}
	})
}

// loadConfig layers defaults, the config file, PACKTDL_* variables and
// the root flags.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if rArgs.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(rArgs.configPath)
		if err != nil {
			return config.Config{}, &UsageError{Err: err}
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, &UsageError{Err: err}
	}

	cfg = cfg.Merge(config.Config{Verbose: rArgs.verbose, Quiet: rArgs.quiet})
	if cfg.Verbose && cfg.Quiet {
		return config.Config{}, &UsageError{Err: errors.New("--verbose and --quiet cannot be used together")}
	}
	logging.New(RootCmd.ErrOrStderr(), cfg.Verbose, cfg.Quiet)
	return cfg, nil
}

// openCache opens the catalog checkpoint. A location containing "://" is a
// bucket URL, anything else a file path.
func openCache(ctx context.Context, location string) (*store.CatalogCache, error) {
	var (
		cache *store.CatalogCache
		err   error
	)
	switch {
	case location == "":
		cache, err = store.OpenCatalogCacheFile(store.CatalogKey)
	case strings.Contains(location, "://"):
		cache, err = store.OpenCatalogCache(ctx, location)
	default:
		cache, err = store.OpenCatalogCacheFile(location)
	}
	if err != nil {
		return nil, &model.SetupError{Op: "open catalog cache", Err: err}
	}
	return cache, nil
}

func openStatus(ctx context.Context, path string) (*store.StatusStore, error) {
	status, err := store.OpenStatusStore(ctx, path)
	if err != nil {
		return nil, &model.SetupError{Op: "open state database", Err: err}
	}
	return status, nil
}

// ExitCode maps the result of Execute to the process exit status: 0 for
// success or interrupt, 2 for usage and setup errors, 1 otherwise.
func ExitCode(err error) int {
	var (
		usageErr *UsageError
		setupErr *model.SetupError
	)
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.As(err, &usageErr), errors.As(err, &setupErr):
		return 2
	case strings.HasPrefix(err.Error(), "unknown command"):
		return 2
	default:
		return 1
	}
}

func printErr(err error) {
	fmt.Fprintln(RootCmd.ErrOrStderr(), "Error:", err)
}

// Execute runs the command line and returns the exit status.
func Execute(ctx context.Context) int {
	err := RootCmd.ExecuteContext(ctx)
	code := ExitCode(err)
	if err != nil && code != 0 {
		printErr(err)
	}
	return code
}
