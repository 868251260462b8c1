package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keygate/keygate/internal/console"
)

func newConsoleCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "console",
		Short: "Open the interactive admin console",
		Long: `Run admin commands one line at a time: generate, info, list, ban, nuke,
confirm, cancel and help. Lines can also be piped in, one command per line.`,
		Example: `  keygate console --actor alice
  echo "generate week" | keygate console`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd.Context(), actor)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Operator name recorded for bans and nukes (default: admin.actor)")

	return cmd
}

func runConsole(ctx context.Context, actor string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.console(a.adminService())
	if err != nil {
		return err
	}
	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	if interactive {
		fmt.Printf("keygate console %s. Type `help` for commands, `exit` to leave.\n", versionString())
	}
	return repl(ctx, c, a.actor(actor), os.Stdin, os.Stdout, interactive)
}

// repl reads command lines from in until EOF or exit.
func repl(ctx context.Context, c *console.Console, actor string, in io.Reader, out io.Writer, prompt bool) error {
	scanner := bufio.NewScanner(in)
	for {
		if prompt {
			fmt.Fprint(out, "keygate> ")
		}
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		}
		fmt.Fprint(out, c.Execute(ctx, actor, line).Text())
	}
	return scanner.Err()
}
