package main

import (
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/odyssey-admin/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-admin/internal/app"
	"github.com/odyssey-erp/odyssey-admin/internal/auth"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-admin/internal/platform/db"
	"github.com/odyssey-erp/odyssey-admin/internal/rbac"
	"github.com/odyssey-erp/odyssey-admin/jobs"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func redisOpts(cfg *app.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

func newJobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger maintenance tasks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "trigger [task]",
		Short:     "Enqueue a maintenance task",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskRefreshSweep, jobs.TaskCatalogCheck},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			if !slices.Contains(cfg.WorkerTasks(), args[0]) {
				return fmt.Errorf("no worker handles %s with TOKEN_STORE=%s", args[0], cfg.TokenStore)
			}
			c, err := cli.NewJobsCLI(redisOpts(cfg))
			if err != nil {
				return err
			}
			defer c.Close()
			info, err := c.Trigger(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s as %s\n", info.Type, info.ID)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			c, err := cli.NewJobsCLI(redisOpts(cfg))
			if err != nil {
				return err
			}
			defer c.Close()
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	})
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			size, _ := cmd.Flags().GetInt("size")
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			c, err := cli.NewJobsCLI(redisOpts(cfg))
			if err != nil {
				return err
			}
			defer c.Close()
			tasks, err := c.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			for _, t := range tasks {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format(time.RFC3339))
			}
			return nil
		},
	}
	scheduled.Flags().Int("size", 10, "page size")
	cmd.AddCommand(scheduled)
	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Permission catalog tooling",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Build the permission tree and report its shape",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			pool, err := db.New(cmd.Context(), cfg.PGDSN, db.PoolOptions{MaxConns: 1, ConnectTimeout: 5 * time.Second})
			if err != nil {
				return err
			}
			defer pool.Close()
			report, err := cli.CheckCatalog(cmd.Context(), rbac.NewRepository(pool))
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	})
	return cmd
}

func newTokensCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Refresh token administration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "revoke [user-id]",
		Short: "Drop the live refresh token of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || userID <= 0 {
				return fmt.Errorf("invalid user id %q", args[0])
			}
			cfg, err := app.LoadConfig()
			if err != nil {
				return err
			}
			var store auth.RefreshStore
			switch cfg.TokenStore {
			case app.StoreRedis:
				client, err := cache.New(cmd.Context(), cache.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
				if err != nil {
					return err
				}
				defer client.Close()
				store = auth.NewRedisRefreshStore(client)
			case app.StorePostgres:
				pool, err := db.New(cmd.Context(), cfg.PGDSN, db.PoolOptions{MaxConns: 1, ConnectTimeout: 5 * time.Second})
				if err != nil {
					return err
				}
				defer pool.Close()
				store = auth.NewPGRefreshStore(pool)
			default:
				return fmt.Errorf("token store %q lives inside the API process", cfg.TokenStore)
			}
			if err := store.Delete(cmd.Context(), userID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "revoked refresh token of user %d\n", userID)
			return nil
		},
	})
	return cmd
}
