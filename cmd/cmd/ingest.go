package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"smartrouter/internal/core"
	"smartrouter/internal/logger"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [batch-file]",
	Short: "Route every entry of a captured batch through the SmartRouter pipeline",
	Long: `Read a JSON batch file (one core.Batch document) and route each entry
through validation, distillation, embedding, and folder placement.

Example:
  smartrouter ingest captures/2026-07-30.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(cmd.Context(), args[0])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read batch file: %w", err)
	}

	var batch core.Batch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return fmt.Errorf("failed to parse batch file: %w", err)
	}

	p, err := buildPipeline(cfgFile)
	if err != nil {
		return err
	}
	defer p.Close()

	logger.Info("ingesting batch", "batch_id", batch.BatchID, "entries", len(batch.Entries))

	var routed, failed int
	for i, entry := range batch.Entries {
		cand, err := p.validator.Create(batch.BatchID, i, entry.Text, core.Source("batch"))
		if err != nil {
			logger.Warn("skipped entry", "index", i, "error", err.Error())
			failed++
			continue
		}

		decision, err := p.router.Route(ctx, cand)
		if err != nil {
			logger.Error("routing failed", err, "candidate_id", cand.CandidateID)
			failed++
			continue
		}

		fmt.Printf("[%d] %s -> %s\n", i, cand.CandidateID, decision.Action)
		routed++
	}

	fmt.Printf("\ningested %d entries: %d routed, %d failed\n", len(batch.Entries), routed, failed)
	return nil
}
