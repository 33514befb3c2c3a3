package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/company-search/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the result cache",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached entry in a shared cache (not the memory backend)",
	Long: `Delete every cached search, similar and summary entry in a shared cache.
The memory backend lives inside each running process, so a separate CLI
invocation cannot reach it; restart the server to empty it instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSharedBackend(cfg.Cache.Backend, "clear"); err != nil {
			return err
		}
		env, err := initApp(cmd.Context(), cfg, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Cache.Clear(cmd.Context()); err != nil {
			return err
		}
		zap.L().Info("cache cleared", zap.String("backend", cfg.Cache.Backend))
		fmt.Fprintln(cmd.OutOrStdout(), "cache cleared") //nolint:errcheck
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Purge expired entries from a shared cache (not the memory backend)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := requireSharedBackend(cfg.Cache.Backend, "sweep"); err != nil {
			return err
		}
		env, err := initApp(cmd.Context(), cfg, "cache")
		if err != nil {
			return err
		}
		defer env.Close()

		n, err := env.Cache.Sweep(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired entries\n", n) //nolint:errcheck
		return nil
	},
}

// requireSharedBackend rejects cache maintenance against the per-process
// memory backend, where it would act on a throwaway store.
func requireSharedBackend(backend, op string) error {
	if backend == "" || backend == cache.BackendMemory {
		return eris.Errorf("cache %s: backend %q is per-process; nothing outside the server can %s it",
			op, cache.BackendMemory, op)
	}
	return nil
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd, cacheSweepCmd)
	rootCmd.AddCommand(cacheCmd)
}
