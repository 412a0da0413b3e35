package router

import (
	"context"
	"strings"
	"unicode"
)

// CommandHandler produces the replies for a slash command.
type CommandHandler func(ctx context.Context, msg InboundMessage, args string) []Action

// Command describes a registered slash command.
type Command struct {
	Name        string
	Description string
}

// CommandRegistry maps command names (without the leading slash) to handlers.
type CommandRegistry struct {
	handlers map[string]CommandHandler
	commands []Command
}

// NewCommandRegistry creates an empty registry.
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		handlers: make(map[string]CommandHandler),
	}
}

// Register adds a command handler. Names are matched case-sensitively.
// Registering a name again replaces its handler and description.
func (r *CommandRegistry) Register(command, description string, handler CommandHandler) {
	name := strings.TrimPrefix(command, "/")
	if _, exists := r.handlers[name]; exists {
		for i := range r.commands {
			if r.commands[i].Name == name {
				r.commands[i].Description = description
			}
		}
	} else {
		r.commands = append(r.commands, Command{Name: name, Description: description})
	}
	r.handlers[name] = handler
}

// Lookup returns the handler for command, if any.
func (r *CommandRegistry) Lookup(command string) (CommandHandler, bool) {
	h, ok := r.handlers[command]
	return h, ok
}

// Commands returns the registered commands in registration order.
func (r *CommandRegistry) Commands() []Command {
	return append([]Command(nil), r.commands...)
}

// parseCommand splits "/cmd@bot args" into its parts. ok is false when text
// is not a slash command. The command name keeps its case.
func parseCommand(text string) (cmd, mention, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) == 1 {
		return "", "", "", false
	}

	text = text[1:]
	if i := strings.IndexFunc(text, unicode.IsSpace); i != -1 {
		cmd, args = text[:i], strings.TrimSpace(text[i:])
	} else {
		cmd = text
	}

	if at := strings.Index(cmd, "@"); at != -1 {
		cmd, mention = cmd[:at], cmd[at+1:]
	}

	if cmd == "" {
		return "", "", "", false
	}
	return cmd, mention, args, true
}
