package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"smartrouter/internal/reviewtui"
)

var reviewLimit int

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Run due spaced-repetition reviews interactively",
	Long:  `Launch an interactive queue of every concept due for review, letting you self-assess recall quality one concept at a time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cfgFile)
		if err != nil {
			return err
		}
		defer p.Close()

		if err := reviewtui.StartQueue(p.sched, reviewLimit); err != nil {
			return fmt.Errorf("review session failed: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.Flags().IntVar(&reviewLimit, "limit", 0, "maximum number of due concepts to review (0 = no limit)")
}
