package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "Inspect folder centroids and quality",
	Long:  `List every folder the vector index knows about, along with its member count and centroid quality metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := buildPipeline(cfgFile)
		if err != nil {
			return err
		}
		defer p.Close()

		ctx := cmd.Context()
		ids, err := p.idx.GetAllFolderIDs(ctx)
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}

		if len(ids) == 0 {
			fmt.Println("no folders yet")
			return nil
		}

		for _, id := range ids {
			fc, err := p.centroids.GetFolderCentroid(ctx, id)
			if err != nil {
				fmt.Printf("%s: error reading centroid: %v\n", id, err)
				continue
			}
			fmt.Printf("%s  members=%d  cohesion=%.2f  separation=%.2f  stability=%.2f  overall=%.2f\n",
				id, fc.MemberCount, fc.Quality.Cohesion, fc.Quality.Separation, fc.Quality.Stability, fc.Quality.Overall)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(foldersCmd)
}
