package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"smartrouter/internal/core"
)

var routeText string

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Route a single text snippet through the SmartRouter pipeline",
	Long: `Route one snippet and print the resulting decision as JSON. The text
comes from --text, or from stdin if --text is omitted.

Example:
  smartrouter route --text "The eigenvalues of A satisfy Av = lambda v"
  echo "Mitosis has four phases" | smartrouter route`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text := routeText
		if text == "" {
			data, err := io.ReadAll(bufio.NewReader(os.Stdin))
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			text = strings.TrimSpace(string(data))
		}
		if text == "" {
			return fmt.Errorf("no text provided: pass --text or pipe content on stdin")
		}

		p, err := buildPipeline(cfgFile)
		if err != nil {
			return err
		}
		defer p.Close()

		batchID := "manual-" + uuid.New().String()
		cand, err := p.validator.Create(batchID, 0, text, core.Source("cli"))
		if err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}

		decision, err := p.router.Route(cmd.Context(), cand)
		if err != nil {
			return fmt.Errorf("routing failed: %w", err)
		}

		out, err := json.MarshalIndent(decision, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode decision: %w", err)
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.Flags().StringVar(&routeText, "text", "", "snippet text to route (reads stdin if omitted)")
}
