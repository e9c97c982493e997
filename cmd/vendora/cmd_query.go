package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"vendora/internal/cache"
	"vendora/internal/config"
	"vendora/internal/dispatch"
	"vendora/internal/engine"
	"vendora/internal/insight"
	"vendora/internal/logging"
	"vendora/internal/model"
	"vendora/internal/specialist"
	"vendora/internal/taskstore"
	"vendora/internal/validator"
	"vendora/internal/warehouse"
)

var flagShowMetrics bool

var queryCmd = &cobra.Command{
	Use:   "query \"<question>\"",
	Short: "Run one analytical question through the pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().BoolVar(&flagShowMetrics, "show-metrics", false, "print engine metrics after the query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	if flagTenant == "" {
		return fmt.Errorf("--tenant is required")
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := logging.Initialize(cfg.Logging.Level); err != nil {
		return err
	}

	ctx := cmd.Context()
	eng, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	resp, err := eng.Process(ctx, engine.Request{
		Query:    strings.TrimSpace(args[0]),
		TenantID: flagTenant,
	})
	if err != nil {
		return renderFailure(err)
	}

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	if flagShowMetrics {
		snap, err := json.MarshalIndent(eng.Metrics(), "", "  ")
		if err == nil {
			fmt.Fprintln(os.Stderr, string(snap))
		}
	}
	return nil
}

// buildEngine wires config into the collaborator graph.
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func(), error) {
	completer, err := model.NewGeminiCompleter(ctx, cfg.Model.APIKey, cfg.Model.ModelName)
	if err != nil {
		return nil, nil, err
	}
	modelClient := model.NewClient(completer, model.Options{
		CallTimeout: cfg.Model.CallTimeout.Std(),
		MaxAttempts: cfg.Model.MaxAttempts,
		BackoffBase: cfg.Model.BackoffBase.Std(),
		BackoffMax:  cfg.Model.BackoffMax.Std(),
	})

	backend, err := warehouse.NewSQLiteBackend(cfg.Warehouse.DSN)
	if err != nil {
		return nil, nil, err
	}
	wh := warehouse.NewClient(backend, warehouse.Options{
		CallTimeout: cfg.Warehouse.CallTimeout.Std(),
		MaxRows:     cfg.Warehouse.MaxRows,
		MaxBytes:    cfg.Warehouse.MaxBytes,
	})

	specOpts := specialist.Options{MaxRowsInPrompt: cfg.Flow.MaxRowsInPrompt}

	eng := engine.New(cfg.Flow, cfg.Cache, engine.Deps{
		Store:      taskstore.New(cfg.Flow.MaxRevisions),
		Cache:      cache.New(cfg.Cache.Capacity, cfg.Cache.TTL.Std()),
		Dispatcher: dispatch.New(modelClient),
		Standard:   specialist.NewStandard(modelClient, wh, specOpts),
		Senior:     specialist.NewSenior(modelClient, wh, specOpts),
		Validator: validator.New(modelClient, validator.Options{
			Thresholds:   cfg.Flow.Thresholds,
			MinAxisScore: cfg.Flow.MinAxisScore,
			MaxRevisions: cfg.Flow.MaxRevisions,
		}),
	})

	cleanup := func() {
		eng.Close()
		backend.Close()
	}
	return eng, cleanup, nil
}

// renderFailure prints the typed failure shape and keeps the non-zero exit.
func renderFailure(err error) error {
	typed := insight.AsError(err)
	if typed == nil {
		return err
	}

	payload := map[string]any{"error": string(typed.Kind)}
	if typed.TaskID != "" {
		payload["task_id"] = typed.TaskID
	}
	switch typed.Kind {
	case insight.KindQualityRejected:
		payload["last_feedback"] = typed.LastFeedback
		payload["revisions_used"] = typed.RevisionsUsed
	case insight.KindTimedOut:
		payload["elapsed_ms"] = typed.ElapsedMs
	case insight.KindOverloaded:
		payload["retry_after_ms"] = typed.RetryAfterMs
	case insight.KindInvalidRequest:
		payload["detail"] = typed.Message
	}

	out, merr := json.MarshalIndent(payload, "", "  ")
	if merr != nil {
		return err
	}
	fmt.Fprintln(os.Stderr, string(out))
	return err
}
