package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/Nyukimin/patchgate/pkg/adminclient"
)

var errExit = errors.New("exit")

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive session against the admin server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rl, err := readline.NewEx(&readline.Config{
			Prompt:          "patchgate> ",
			HistoryFile:     historyPath(),
			InterruptPrompt: "^C",
			EOFPrompt:       "exit",
			AutoComplete: readline.NewPrefixCompleter(
				readline.PcItem("propose"),
				readline.PcItem("apply"),
				readline.PcItem("commit"),
				readline.PcItem("push"),
				readline.PcItem("land"),
				readline.PcItem("auto"),
				readline.PcItem("list"),
				readline.PcItem("show"),
				readline.PcItem("help"),
				readline.PcItem("exit"),
			),
		})
		if err != nil {
			return fmt.Errorf("failed to start shell: %w", err)
		}
		defer rl.Close()

		client := newClient()
		out := rl.Stdout()
		for {
			line, err := rl.Readline()
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			if err := runShellLine(cmd.Context(), client, out, line); err != nil {
				if errors.Is(err, errExit) {
					return nil
				}
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
	},
}

func historyPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".patchctl_history")
}

const shellHelp = `commands:
  propose <patch-file>            validate and store a patch
  apply <id> <hash>               apply a stored proposal
  commit <message>                commit all changes
  push                            push the current branch
  land <patch-file> <message>     propose, apply, commit and push
  auto <instruction>              generate a patch and land it
  list                            list stored proposals
  show <id>                       print a stored patch
  exit                            leave the shell
`

// runShellLine executes one shell command. Patch files cannot be read from stdin here.
func runShellLine(ctx context.Context, c *adminclient.Client, out io.Writer, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]
	rest := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), name))

	switch name {
	case "help", "?":
		fmt.Fprint(out, shellHelp)
		return nil
	case "exit", "quit":
		return errExit
	case "propose":
		if len(args) != 1 || args[0] == "-" {
			return errors.New("usage: propose <patch-file>")
		}
		return runPropose(ctx, c, nil, out, args[0])
	case "apply":
		if len(args) != 2 {
			return errors.New("usage: apply <id> <hash>")
		}
		return runApply(ctx, c, out, args[0], args[1])
	case "commit":
		if rest == "" {
			return errors.New("usage: commit <message>")
		}
		return runCommit(ctx, c, out, rest)
	case "push":
		return runPush(ctx, c, out)
	case "land":
		if len(args) < 2 || args[0] == "-" {
			return errors.New("usage: land <patch-file> <message>")
		}
		message := strings.TrimSpace(strings.TrimPrefix(rest, args[0]))
		return runLand(ctx, c, nil, out, args[0], message)
	case "auto":
		if rest == "" {
			return errors.New("usage: auto <instruction>")
		}
		return runAuto(ctx, c, out, rest)
	case "list", "ls":
		return runList(ctx, c, out)
	case "show":
		if len(args) != 1 {
			return errors.New("usage: show <id>")
		}
		return runShow(ctx, c, out, args[0])
	default:
		return fmt.Errorf("unknown command %q (try help)", name)
	}
}
