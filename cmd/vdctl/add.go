package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vdengine/internal/model"
)

var (
	addOutputDir string
	addPriority  int
	addStart     bool
)

var addCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Queue a new download on the running daemon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var task model.Task
		err := doJSON("POST", "/v1/tasks", map[string]interface{}{
			"url":        args[0],
			"output_dir": addOutputDir,
			"priority":   addPriority,
			"auto_start": addStart,
		}, &task)
		if err != nil {
			return err
		}
		fmt.Printf("queued %s -> %s (id %s)\n", task.URL, task.FilePath, task.ID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().StringVarP(&addOutputDir, "output", "o", ".", "output directory")
	addCmd.Flags().IntVarP(&addPriority, "priority", "p", 5, "task priority, higher runs first")
	addCmd.Flags().BoolVarP(&addStart, "start", "s", true, "start the download immediately")
}
