package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/entity-screening/backend/internal/app"
	"github.com/entity-screening/backend/internal/middleware/validation"
	"github.com/entity-screening/backend/internal/screening"
	"github.com/entity-screening/backend/pkg/config"
	"github.com/entity-screening/backend/pkg/logger"
)

func screenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "screen [entity]",
		Short: "Run one screening against the configured search provider and store the results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("config")
			category, _ := cmd.Flags().GetString("category")
			maxQueries, _ := cmd.Flags().GetInt("max")
			numResults, _ := cmd.Flags().GetInt("results")
			score, _ := cmd.Flags().GetBool("score")

			cfg, err := loadConfig(path)
			if err != nil {
				return err
			}
			if err := logger.Init(cfg.Logging.Level, "console", "stderr"); err != nil {
				return err
			}
			defer logger.Sync()

			rules := validation.Rules{
				DefaultMaxQueries: cfg.Screening.DefaultMaxQueries,
				DefaultNumResults: cfg.Screening.DefaultNumResults,
				MaxEntityLength:   cfg.Screening.MaxEntityLength,
			}
			req, err := screenRequest(rules, args[0], category, maxQueries, numResults, score)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Scoring needs a consumer outside this process.
			if score && cfg.Messaging.Backend != "kafka" {
				return fmt.Errorf("--score requires the kafka messaging backend")
			}

			svc, err := app.New(ctx, cfg, app.Components{Screening: true})
			if err != nil {
				return err
			}
			defer svc.Close()

			resp, err := svc.Orchestrator.Run(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd, resp)
		},
	}

	cmd.Flags().StringP("category", "c", "all", "keyword category")
	cmd.Flags().IntP("max", "n", 5, "maximum number of queries")
	cmd.Flags().IntP("results", "r", 3, "results per query")
	cmd.Flags().Bool("score", false, "publish the results for risk scoring")

	return cmd
}

// screenRequest puts the flag values through the same validation as the HTTP API.
func screenRequest(rules validation.Rules, entity, category string, maxQueries, numResults int, score bool) (screening.Request, error) {
	body, err := json.Marshal(map[string]interface{}{
		"entity_name":           entity,
		"category":              category,
		"max_queries":           maxQueries,
		"num_results_per_query": numResults,
		"enable_scoring":        score,
	})
	if err != nil {
		return screening.Request{}, err
	}
	return rules.Validate(body)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}
