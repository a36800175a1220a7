package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"vdengine/internal/model"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every task known to the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		var tasks []model.Task
		if err := doJSON("GET", "/v1/tasks", nil, &tasks); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tSTATUS\tPROGRESS\tSPEED\tURL")
		for _, t := range tasks {
			fmt.Fprintf(tw, "%s\t%s\t%.1f%%\t%.1f KB/s\t%s\n",
				t.ID, t.Status, t.Progress*100, t.Speed/1024, t.URL)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(lsCmd)
}
