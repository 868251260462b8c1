// Package console implements the chat-style administrative command set.
// Commands are parsed from a single line, dispatched through a static table
// and answered with a structured Reply that chat clients, the REPL and the
// MCP tools all render.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/keygate/keygate/internal/lifecycle"
	"github.com/keygate/keygate/internal/model"
	"github.com/keygate/keygate/internal/service"
)

// Admin is the subset of service.AdminService the console drives.
type Admin interface {
	Generate(ctx context.Context, duration, actor string) (*model.Key, error)
	Info(ctx context.Context, key string) (*service.KeyInfo, error)
	List(ctx context.Context, opts service.ListOptions) ([]service.KeyInfo, error)
	Count(ctx context.Context) (int64, error)
	Ban(ctx context.Context, key, actor string) (service.BanResult, error)
	RequestNuke(ctx context.Context, actor string) (*service.NukeTicket, error)
	ConfirmNuke(ctx context.Context, ticketID, actor string) (int64, error)
	CancelNuke(ctx context.Context, ticketID, actor string) error
	NukeWindow() time.Duration
}

// Handler runs one command. args excludes the command name and has already
// been checked against the command's arity.
type Handler func(ctx context.Context, c *Console, actor string, args []string) (Reply, error)

// Command describes one console command.
type Command struct {
	Name        string
	Usage       string
	Description string
	MinArgs     int
	MaxArgs     int
	Run         Handler
}

// Console dispatches command lines to the admin service.
type Console struct {
	admin    Admin
	commands map[string]Command
	logger   *slog.Logger
}

// Option configures a Console.
type Option func(*Console)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Console) { c.logger = l } }

// New builds a console over the built-in command table.
func New(admin Admin, opts ...Option) (*Console, error) {
	return NewWithCommands(admin, builtins(), opts...)
}

// NewWithCommands builds a console over an explicit command table. The table
// is validated here so a broken entry fails at startup, not on first use.
func NewWithCommands(admin Admin, cmds []Command, opts ...Option) (*Console, error) {
	if admin == nil {
		return nil, errors.New("console: admin service is required")
	}
	table, err := buildTable(cmds)
	if err != nil {
		return nil, err
	}
	c := &Console{
		admin:    admin,
		commands: table,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func buildTable(cmds []Command) (map[string]Command, error) {
	if len(cmds) == 0 {
		return nil, errors.New("console: empty command table")
	}
	table := make(map[string]Command, len(cmds))
	var errs []error
	for i, cmd := range cmds {
		name := strings.ToLower(strings.TrimSpace(cmd.Name))
		switch {
		case name == "" || strings.ContainsAny(name, " \t/"):
			errs = append(errs, fmt.Errorf("command %d: invalid name %q", i, cmd.Name))
			continue
		case cmd.Run == nil:
			errs = append(errs, fmt.Errorf("command %q: no handler", name))
		case cmd.MinArgs < 0 || cmd.MaxArgs < cmd.MinArgs:
			errs = append(errs, fmt.Errorf("command %q: bad arity %d..%d", name, cmd.MinArgs, cmd.MaxArgs))
		}
		if _, dup := table[name]; dup {
			errs = append(errs, fmt.Errorf("command %q: defined twice", name))
		}
		cmd.Name = name
		table[name] = cmd
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("console: invalid command table: %w", err)
	}
	return table, nil
}

// Commands returns the command table sorted by name.
func (c *Console) Commands() []Command {
	out := make([]Command, 0, len(c.commands))
	for _, cmd := range c.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Lookup returns the named command.
func (c *Console) Lookup(name string) (Command, bool) {
	cmd, ok := c.commands[strings.ToLower(strings.TrimPrefix(name, "/"))]
	return cmd, ok
}

// Execute parses and runs one command line on behalf of actor. Errors are
// folded into the returned Reply.
func (c *Console) Execute(ctx context.Context, actor, line string) Reply {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return c.usageReply("Empty Command", "Type `help` to list commands.")
	}
	return c.Run(ctx, actor, fields[0], fields[1:])
}

// Run dispatches an already tokenised command.
func (c *Console) Run(ctx context.Context, actor, name string, args []string) Reply {
	cmd, ok := c.Lookup(name)
	if !ok {
		return c.usageReply("Unknown Command", fmt.Sprintf("`%s` is not a command. Type `help` to list commands.", name))
	}
	if len(args) < cmd.MinArgs || len(args) > cmd.MaxArgs {
		return c.usageReply("Usage", cmd.Usage)
	}

	reply, err := cmd.Run(ctx, c, actor, args)
	if err != nil {
		c.logger.Debug("console command failed", "command", cmd.Name, "actor", actor, "error", err)
		reply = errorReply(err)
		reply.Failed = true
	}
	return reply
}

func (c *Console) usageReply(title, msg string) Reply {
	return Reply{Title: title, Tone: ToneWarning, Message: msg, Failed: true}
}

// errorReply maps service errors to replies. Storage details never reach
// the operator's chat window; they are already logged by the service.
func errorReply(err error) Reply {
	var (
		verr *service.ValidationError
		nerr *service.NotFoundError
		serr *service.TicketStateError
		ferr *service.StorageFault
	)
	switch {
	case errors.As(err, &nerr):
		title := "Key Not Found"
		if nerr.Kind != "key" {
			title = "Not Found"
		}
		return Reply{Title: title, Tone: ToneDanger, Message: nerr.Error()}
	case errors.As(err, &verr):
		return Reply{Title: "Invalid Input", Tone: ToneWarning, Message: verr.Message}
	case errors.As(err, &serr):
		return Reply{Title: "Nuke Not Performed", Tone: ToneWarning, Message: serr.Error()}
	case errors.Is(err, service.ErrNotTicketOwner):
		return Reply{Title: "Nuke Not Performed", Tone: ToneDanger, Message: err.Error()}
	case errors.As(err, &ferr):
		return Reply{Title: "Server Error", Tone: ToneDanger, Message: service.MsgFault}
	default:
		return Reply{Title: "Error", Tone: ToneDanger, Message: err.Error()}
	}
}

const timeLayout = "2006-01-02 15:04:05"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func builtins() []Command {
	return []Command{
		{
			Name:        "generate",
			Usage:       "generate [day|week|lifetime]",
			Description: "Generate a new access key.",
			MaxArgs:     1,
			Run:         runGenerate,
		},
		{
			Name:        "info",
			Usage:       "info <key>",
			Description: "Get detailed information about a specific key.",
			MinArgs:     1,
			MaxArgs:     1,
			Run:         runInfo,
		},
		{
			Name:        "list",
			Usage:       "list [limit] [offset]",
			Description: "List keys, newest first.",
			MaxArgs:     2,
			Run:         runList,
		},
		{
			Name:        "ban",
			Usage:       "ban <key>",
			Description: "Permanently deactivate a key.",
			MinArgs:     1,
			MaxArgs:     1,
			Run:         runBan,
		},
		{
			Name:        "nuke",
			Usage:       "nuke",
			Description: "Delete every key (requires confirmation).",
			Run:         runNuke,
		},
		{
			Name:        "confirm",
			Usage:       "confirm <ticket>",
			Description: "Confirm a pending nuke.",
			MinArgs:     1,
			MaxArgs:     1,
			Run:         runConfirm,
		},
		{
			Name:        "cancel",
			Usage:       "cancel <ticket>",
			Description: "Cancel a pending nuke.",
			MinArgs:     1,
			MaxArgs:     1,
			Run:         runCancel,
		},
		{
			Name:        "help",
			Usage:       "help",
			Description: "List commands.",
			Run:         runHelp,
		},
	}
}

func runGenerate(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	duration := ""
	if len(args) > 0 {
		duration = args[0]
	}
	k, err := c.admin.Generate(ctx, duration, actor)
	if err != nil {
		return Reply{}, err
	}
	d, _ := lifecycle.ParseDuration(duration)
	r := Reply{Title: fmt.Sprintf("Key Generated (%s)", d.Label()), Tone: ToneSuccess}
	r.add("Key", k.KeyString, false)
	if k.ExpiresAt != nil {
		r.add("Expires At (UTC)", formatTime(*k.ExpiresAt), true)
	} else {
		r.add("Expires", "Never (Lifetime)", true)
	}
	return r, nil
}

func runInfo(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	info, err := c.admin.Info(ctx, args[0])
	if err != nil {
		return Reply{}, err
	}
	return infoReply(info), nil
}

func infoReply(info *service.KeyInfo) Reply {
	r := Reply{Title: "Key Information", Tone: statusTone(info.Status)}
	r.add("Key String", info.KeyString, false)
	r.add("Status", string(info.Status), true)
	if info.ExpiresAt != nil {
		r.add("Expires At (UTC)", formatTime(*info.ExpiresAt), true)
	} else {
		r.add("Expires", "Never (Lifetime)", true)
	}
	if info.RedeemedBy != nil {
		if info.DeactivatedByAdmin {
			r.add("Deactivated By", *info.RedeemedBy, false)
		} else {
			r.add("Redeemed By", *info.RedeemedBy, false)
		}
	}
	if info.RedeemedAt != nil {
		r.add("Redeemed At (UTC)", formatTime(*info.RedeemedAt), false)
	}
	if info.HardwareID != nil {
		r.add("Hardware ID", *info.HardwareID, false)
	}
	r.Footer = fmt.Sprintf("Key created at %s UTC", formatTime(info.CreatedAt))
	return r
}

func statusTone(s lifecycle.DisplayStatus) Tone {
	switch s {
	case lifecycle.DisplayActive:
		return ToneSuccess
	case lifecycle.DisplayExpired:
		return ToneWarning
	default:
		return ToneDanger
	}
}

func runList(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	var opts service.ListOptions
	for i, dst := range []*int{&opts.Limit, &opts.Offset} {
		if i >= len(args) {
			break
		}
		n, err := strconv.Atoi(args[i])
		if err != nil || n < 0 {
			return Reply{}, &service.ValidationError{Field: "list", Message: fmt.Sprintf("%q is not a non-negative number", args[i])}
		}
		*dst = n
	}

	keys, err := c.admin.List(ctx, opts)
	if err != nil {
		return Reply{}, err
	}
	total, err := c.admin.Count(ctx)
	if err != nil {
		return Reply{}, err
	}

	r := Reply{Title: fmt.Sprintf("Keys (%d of %d)", len(keys), total), Tone: ToneInfo}
	if len(keys) == 0 {
		r.Message = "No keys found."
		return r, nil
	}
	for _, k := range keys {
		expires := "never"
		if k.ExpiresAt != nil {
			expires = formatTime(*k.ExpiresAt)
		}
		r.add(k.KeyString, fmt.Sprintf("%s, expires %s", k.Status, expires), false)
	}
	return r, nil
}

func runBan(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	res, err := c.admin.Ban(ctx, args[0], actor)
	if err != nil {
		return Reply{}, err
	}
	if res == service.BanAlreadyInactive {
		return Reply{
			Title:   "Key Already Inactive",
			Tone:    ToneWarning,
			Message: fmt.Sprintf("%s was already redeemed or banned; nothing changed.", args[0]),
		}, nil
	}
	return Reply{
		Title:   "Key Banned",
		Tone:    ToneSuccess,
		Message: fmt.Sprintf("%s has been deactivated.", args[0]),
	}, nil
}

func runNuke(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	t, err := c.admin.RequestNuke(ctx, actor)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{
		Title:   "Confirm Nuke",
		Tone:    ToneDanger,
		Message: "This will permanently delete every key.",
		Ticket:  t.ID,
	}
	r.add("Ticket", t.ID, false)
	r.add("Expires At (UTC)", formatTime(t.Deadline), true)
	r.Footer = fmt.Sprintf("Send `confirm %s` within %s, or `cancel %s`.", t.ID, c.admin.NukeWindow(), t.ID)
	return r, nil
}

func runConfirm(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	n, err := c.admin.ConfirmNuke(ctx, args[0], actor)
	if err != nil {
		return Reply{}, err
	}
	r := Reply{Title: "Keys Nuked", Tone: ToneSuccess, Message: fmt.Sprintf("Deleted %d keys.", n)}
	r.add("Deleted", strconv.FormatInt(n, 10), true)
	return r, nil
}

func runCancel(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	if err := c.admin.CancelNuke(ctx, args[0], actor); err != nil {
		return Reply{}, err
	}
	return Reply{Title: "Nuke Cancelled", Tone: ToneInfo, Message: "No keys were deleted."}, nil
}

func runHelp(ctx context.Context, c *Console, actor string, args []string) (Reply, error) {
	r := Reply{Title: "Commands", Tone: ToneInfo}
	for _, cmd := range c.Commands() {
		r.add(cmd.Usage, cmd.Description, false)
	}
	return r, nil
}
