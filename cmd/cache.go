package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cacheLocation string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or drop the cached book list",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the cached books",
	Args:  cobra.NoArgs,
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached book list so the next download lists the account again",
	Args:  cobra.NoArgs,
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheLocation, "cache", "", "catalog cache file or bucket URL (default books.cache)")

	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	RootCmd.AddCommand(cacheCmd)
}

func cacheLocationFor(cmd *cobra.Command, configured string) string {
	if cmd.Flags().Changed("cache") {
		return cacheLocation
	}
	return configured
}

func runCacheShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cache, err := openCache(cmd.Context(), cacheLocationFor(cmd, cfg.CacheURL))
	if err != nil {
		return err
	}
	defer cache.Close()

	items, ok, err := cache.Load(cmd.Context())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if !ok {
		fmt.Fprintln(out, "no cached book list")
		return nil
	}
	for _, item := range items {
		fmt.Fprintf(out, "%s\t%s\n", item.ProductID, item.ProductName)
	}
	fmt.Fprintf(out, "%d books\n", len(items))
	return nil
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cache, err := openCache(cmd.Context(), cacheLocationFor(cmd, cfg.CacheURL))
	if err != nil {
		return err
	}
	defer cache.Close()

	if err := cache.Clear(cmd.Context()); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "book list cache cleared")
	return nil
}
