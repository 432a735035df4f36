package cmd

import (
	"strings"

	"github.com/spf13/cobra"
)

var proposeCmd = &cobra.Command{
	Use:   "propose <patch-file|->",
	Short: "Validate a patch and store it as a proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPropose(cmd.Context(), newClient(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0])
	},
}

var applyCmd = &cobra.Command{
	Use:   "apply <id> <hash>",
	Short: "Apply a stored proposal and print the resulting diff",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runApply(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0], args[1])
	},
}

var commitCmd = &cobra.Command{
	Use:   "commit <message>",
	Short: "Commit all working-tree changes",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCommit(cmd.Context(), newClient(), cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push the current branch",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPush(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

var landCmd = &cobra.Command{
	Use:   "land <patch-file|-> <message>",
	Short: "Propose, apply, commit and push a patch in one step",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLand(cmd.Context(), newClient(), cmd.InOrStdin(), cmd.OutOrStdout(), args[0], strings.Join(args[1:], " "))
	},
}

var autoCmd = &cobra.Command{
	Use:   "auto <instruction>",
	Short: "Ask the configured model for a patch and land it",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAuto(cmd.Context(), newClient(), cmd.OutOrStdout(), strings.Join(args, " "))
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored proposals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runList(cmd.Context(), newClient(), cmd.OutOrStdout())
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a stored proposal's patch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShow(cmd.Context(), newClient(), cmd.OutOrStdout(), args[0])
	},
}
