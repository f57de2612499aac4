package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/prospectai/internal/cache"
	"github.com/ignite/prospectai/internal/config"
	"github.com/ignite/prospectai/internal/llm"
	"github.com/ignite/prospectai/internal/store"
)

func newValidateConfigCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Validate the config file and smoke-test every external connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv(*configPath)
			if err != nil {
				return newExitError(exitConfigInvalid, "load config: %v", err)
			}
			if errs := cfg.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Println("config error:", e)
				}
				return newExitError(exitConfigInvalid, "%d config errors", len(errs))
			}
			fmt.Println("config: OK")

			ctx := context.Background()
			failed := 0

			redisClient := redis.NewClient(&redis.Options{Addr: redisAddr(cfg.Redis.URL)})
			if err := redisClient.Ping(ctx).Err(); err != nil {
				fmt.Println("redis: FAILED -", err)
				failed++
			} else {
				fmt.Println("redis: OK")
			}

			registry := llm.NewRegistry(cfg)
			if provider, err := registry.Active(); err != nil {
				fmt.Println("llm:", cfg.LLM.Backend, "FAILED -", err)
				failed++
			} else {
				test := provider.TestConnection(ctx)
				if test.OK {
					fmt.Println("llm:", cfg.LLM.Backend, "OK -", test.Detail)
				} else {
					fmt.Println("llm:", cfg.LLM.Backend, "FAILED -", test.Detail)
					failed++
				}
			}

			appCache, err := cache.NewFromConfig(ctx, cfg.Cache)
			if err != nil {
				fmt.Println("cache:", cfg.Cache.PersistentBackend, "FAILED -", err)
				failed++
			} else {
				fmt.Println("cache:", cfg.Cache.PersistentBackend, "OK")
			}

			if appCache != nil {
				st := store.New(cfg.Store, appCache)
				if _, err := st.GetProcessedCompanies(ctx); err != nil {
					fmt.Println("store: FAILED -", err)
					failed++
				} else {
					fmt.Println("store: OK")
				}
			}

			if failed > 0 {
				return newExitError(exitConfigInvalid, "%d connection checks failed", failed)
			}
			return nil
		},
	}
}
