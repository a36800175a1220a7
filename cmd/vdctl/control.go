package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newControlCmd(use, short, action string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [task-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := doJSON("POST", "/v1/tasks/"+args[0]+"/control", map[string]string{"action": action}, nil); err != nil {
				return err
			}
			fmt.Printf("%s: %s\n", action, args[0])
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newControlCmd("pause", "Pause a downloading task", "pause"))
	rootCmd.AddCommand(newControlCmd("resume", "Resume a paused task", "resume"))
	rootCmd.AddCommand(newControlCmd("cancel", "Cancel a task", "cancel"))
	rootCmd.AddCommand(newControlCmd("rm", "Remove a non-active task from the registry", "remove"))
}
