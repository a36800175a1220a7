package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var addBatchOutputDir string

var addBatchCmd = &cobra.Command{
	Use:   "add-batch [url...]",
	Short: "Queue several downloads in one request",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		entries := make([]map[string]interface{}, len(args))
		for i, u := range args {
			entries[i] = map[string]interface{}{"url": u, "output_dir": addBatchOutputDir}
		}

		var resp struct {
			Tasks []struct {
				ID  string `json:"id"`
				URL string `json:"url"`
			} `json:"tasks"`
			Errors []string `json:"errors"`
		}
		if err := doJSON("POST", "/v1/tasks/batch", map[string]interface{}{"entries": entries}, &resp); err != nil {
			return err
		}

		for _, t := range resp.Tasks {
			fmt.Printf("queued %s (id %s)\n", t.URL, t.ID)
		}
		for _, e := range resp.Errors {
			fmt.Printf("skipped: %s\n", e)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addBatchCmd)
	addBatchCmd.Flags().StringVarP(&addBatchOutputDir, "output", "o", ".", "output directory")
}
