// Package commands implements the prefix command table. Every handler receives
// an explicit Invocation; permission and scope are checked by Dispatch before
// the handler runs.
package commands

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknown    = errors.New("unknown command")
	ErrGuildOnly  = errors.New("command can only be used in a server")
	ErrPermission = errors.New("permission denied")
	ErrUsage      = errors.New("bad command usage")
)

const (
	PermissionText = "You lack permission to do this! Please make sure you are an administrator."
	GuildOnlyText  = "This command can only be used in a server."
)

// Permission is the minimum standing needed to run a command.
type Permission int

const (
	Everyone Permission = iota
	// GuildAdmin is a server administrator or a bot admin.
	GuildAdmin
	// Bootstrap is the single configured owner identity.
	Bootstrap
)

// Scope restricts where a command may run.
type Scope int

const (
	AnyScope Scope = iota
	GuildScope
)

// Invocation is everything a handler may know about one command call.
type Invocation struct {
	GuildID         string
	ChannelID       string
	AuthorID        string
	Args            []string
	ChannelMentions []string
	UserMentions    []string
	// IsGuildAdmin is the gateway's view of the author's server permissions.
	IsGuildAdmin bool
}

// Handler runs a command and returns the reply text.
type Handler func(ctx context.Context, inv Invocation) (string, error)

type Command struct {
	Name        string
	Usage       string
	Description string
	Permission  Permission
	Scope       Scope
	Handler     Handler
}

// AdminChecker reports bot-level admin flags.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Table maps command names to commands.
type Table struct {
	commands  map[string]Command
	admins    AdminChecker
	bootstrap string
}

func NewTable(admins AdminChecker, bootstrapID string) *Table {
	return &Table{commands: map[string]Command{}, admins: admins, bootstrap: bootstrapID}
}

// Register adds cmd, replacing any command with the same name.
func (t *Table) Register(cmd Command) {
	t.commands[strings.ToLower(cmd.Name)] = cmd
}

// Lookup returns the named command.
func (t *Table) Lookup(name string) (Command, bool) {
	cmd, ok := t.commands[strings.ToLower(name)]
	return cmd, ok
}

// Commands lists the table sorted by name.
func (t *Table) Commands() []Command {
	out := make([]Command, 0, len(t.commands))
	for _, c := range t.commands {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch checks scope and permission, then runs the handler.
func (t *Table) Dispatch(ctx context.Context, name string, inv Invocation) (string, error) {
	cmd, ok := t.Lookup(name)
	if !ok {
		return "", ErrUnknown
	}
	if cmd.Scope == GuildScope && inv.GuildID == "" {
		return "", ErrGuildOnly
	}
	allowed, err := t.allowed(ctx, cmd.Permission, inv)
	if err != nil {
		return "", fmt.Errorf("check permission for %s: %w", cmd.Name, err)
	}
	if !allowed {
		return "", ErrPermission
	}

	reply, err := cmd.Handler(ctx, inv)
	if errors.Is(err, ErrUsage) {
		return "", &UsageError{Usage: cmd.Usage}
	}
	return reply, err
}

func (t *Table) allowed(ctx context.Context, p Permission, inv Invocation) (bool, error) {
	switch p {
	case Everyone:
		return true, nil
	case GuildAdmin:
		if inv.IsGuildAdmin {
			return true, nil
		}
		if t.admins == nil {
			return false, nil
		}
		return t.admins.IsAdmin(ctx, inv.AuthorID)
	case Bootstrap:
		return t.bootstrap != "" && inv.AuthorID == t.bootstrap, nil
	default:
		return false, nil
	}
}

// UsageError carries the usage line of the command that was misused.
type UsageError struct {
	Usage string
}

func (e *UsageError) Error() string { return "usage: " + e.Usage }

func (e *UsageError) Is(target error) bool { return target == ErrUsage }

// ErrorText turns a dispatch error into the text shown to the caller. It
// returns "" for errors that should stay silent or be logged instead.
func ErrorText(err error) string {
	var usage *UsageError
	switch {
	case err == nil, errors.Is(err, ErrUnknown):
		return ""
	case errors.Is(err, ErrPermission):
		return PermissionText
	case errors.Is(err, ErrGuildOnly):
		return GuildOnlyText
	case errors.As(err, &usage):
		return "Usage: `" + usage.Usage + "`"
	default:
		return ""
	}
}

// Parse splits a message into a command name and arguments when it starts
// with prefix.
func Parse(content, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(content, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
