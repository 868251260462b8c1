package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/keygate/keygate/internal/console"
	"github.com/keygate/keygate/internal/service"
)

func newKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage license keys",
		Long:  "Generate, inspect, list, ban and purge license keys in the configured key store.",
	}

	cmd.AddCommand(newKeyGenerateCmd())
	cmd.AddCommand(newKeyInfoCmd())
	cmd.AddCommand(newKeyListCmd())
	cmd.AddCommand(newKeyBanCmd())
	cmd.AddCommand(newKeyNukeCmd())

	return cmd
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printReply renders a console reply, or fails with its message when the
// command was rejected.
func printReply(r console.Reply) error {
	fmt.Print(r.Text())
	if r.Failed {
		return errors.New(strings.ToLower(r.Title))
	}
	return nil
}

// ---------- key generate ----------

func newKeyGenerateCmd() *cobra.Command {
	var (
		duration   string
		count      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a new key",
		Example: `  keygate key generate --duration week
  keygate key generate --count 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyGenerate(cmd.Context(), duration, count, jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&duration, "duration", "d", "lifetime", "Validity: day, week or lifetime")
	cmd.Flags().IntVarP(&count, "count", "n", 1, "Number of keys to generate")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyGenerate(ctx context.Context, duration string, count int, jsonOutput bool) error {
	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	admin := a.adminService()

	keys := make([]string, 0, count)
	for i := 0; i < count; i++ {
		k, err := admin.Generate(ctx, duration, a.actor(""))
		if err != nil {
			return err
		}
		if jsonOutput {
			keys = append(keys, k.KeyString)
			continue
		}
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.UTC().Format(time.RFC3339)
		}
		fmt.Printf("%s  expires %s\n", k.KeyString, expires)
	}
	if jsonOutput {
		return printJSON(keys)
	}
	return nil
}

// ---------- key info ----------

func newKeyInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info <key>",
		Short: "Show every stored field of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyInfo(cmd.Context(), args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyInfo(ctx context.Context, key string, jsonOutput bool) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	admin := a.adminService()

	if jsonOutput {
		info, err := admin.Info(ctx, key)
		if err != nil {
			return err
		}
		return printJSON(info)
	}
	c, err := a.console(admin)
	if err != nil {
		return err
	}
	return printReply(c.Run(ctx, a.actor(""), "info", []string{key}))
}

// ---------- key list ----------

func newKeyListCmd() *cobra.Command {
	var (
		limit      int
		offset     int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List keys, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyList(cmd.Context(), limit, offset, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", service.DefaultListLimit, "Maximum keys to show")
	cmd.Flags().IntVar(&offset, "offset", 0, "Keys to skip")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runKeyList(ctx context.Context, limit, offset int, jsonOutput bool) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	keys, err := a.adminService().List(ctx, service.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(keys)
	}

	if len(keys) == 0 {
		fmt.Println("No keys found. Use 'keygate key generate' to create one.")
		return nil
	}

	fmt.Printf("%-40s %-18s %-20s %-20s\n", "KEY", "STATUS", "EXPIRES (UTC)", "REDEEMED BY")
	fmt.Printf("%-40s %-18s %-20s %-20s\n", "---", "------", "-------------", "-----------")
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = k.ExpiresAt.UTC().Format("2006-01-02 15:04:05")
		}
		by := ""
		if k.RedeemedBy != nil {
			by = *k.RedeemedBy
		}
		fmt.Printf("%-40s %-18s %-20s %-20s\n", k.KeyString, k.Status, expires, by)
	}
	return nil
}

// ---------- key ban ----------

func newKeyBanCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "ban <key>",
		Short: "Permanently deactivate a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyBan(cmd.Context(), args[0], actor)
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Operator recorded as the deactivating party (default: admin.actor)")

	return cmd
}

func runKeyBan(ctx context.Context, key, actor string) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	c, err := a.console(a.adminService())
	if err != nil {
		return err
	}
	return printReply(c.Run(ctx, a.actor(actor), "ban", []string{key}))
}

// ---------- key nuke ----------

func newKeyNukeCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "nuke",
		Short: "Delete every key",
		Long: `Delete every key in the store. You are asked to confirm by typing "yes"
within the confirmation window (admin.nuke_window); anything else, or no answer
in time, leaves the store untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeyNuke(cmd.Context(), yes)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Skip the interactive confirmation")

	return cmd
}

func runKeyNuke(ctx context.Context, yes bool) error {
	if !yes && !term.IsTerminal(int(os.Stdin.Fd())) {
		return fmt.Errorf("refusing to nuke without an interactive terminal; pass --yes to confirm")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	admin := a.adminService()
	actor := a.actor("")

	total, err := admin.Count(ctx)
	if err != nil {
		return err
	}
	ticket, err := admin.RequestNuke(ctx, actor)
	if err != nil {
		return err
	}

	if !yes {
		fmt.Printf("This will permanently delete all %d keys.\n", total)
		fmt.Printf("Type \"yes\" within %s to confirm: ", admin.NukeWindow())

		answer := make(chan string, 1)
		go func() {
			line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
			answer <- strings.TrimSpace(line)
		}()

		select {
		case reply := <-answer:
			if !strings.EqualFold(reply, "yes") {
				if err := admin.CancelNuke(ctx, ticket.ID, actor); err != nil {
					return err
				}
				fmt.Println("Nuke cancelled. No keys were deleted.")
				return nil
			}
		case <-time.After(time.Until(ticket.Deadline)):
			fmt.Println()
			final, err := admin.AwaitNuke(ctx, ticket.ID)
			if err != nil {
				return err
			}
			return fmt.Errorf("nuke %s: no confirmation received; no keys were deleted", final.State)
		}
	}

	n, err := admin.ConfirmNuke(ctx, ticket.ID, actor)
	if err != nil {
		return err
	}
	fmt.Printf("Deleted %d keys.\n", n)
	return nil
}
