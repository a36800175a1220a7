package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vdengine/internal/model"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate engine statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats model.GlobalStats
		if err := doJSON("GET", "/v1/stats", nil, &stats); err != nil {
			return err
		}
		fmt.Printf("total: %d  active: %d  completed: %d  failed: %d  cancelled: %d\n",
			stats.TotalTasks, stats.ActiveDownloads, stats.CompletedTasks, stats.FailedTasks, stats.CancelledTasks)
		fmt.Printf("downloaded: %d bytes  average speed: %.1f KB/s\n", stats.TotalDownloaded, stats.AverageSpeed/1024)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
