package router

import (
	"strings"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
)

// Filter decides whether a route is eligible for a message. Filters must be
// pure. A nil Filter matches every message.
type Filter func(msg *message.Message) bool

// Any matches every message. Catch-all routes go last in their router.
func Any(*message.Message) bool { return true }

// TextEquals matches messages whose text is exactly text.
func TextEquals(text string) Filter {
	return func(msg *message.Message) bool {
		return msg.Text == text
	}
}

// HasPrefix matches messages whose text starts with prefix.
func HasPrefix(prefix string) Filter {
	return func(msg *message.Message) bool {
		return strings.HasPrefix(msg.Text, prefix)
	}
}

// Command matches "/name", "/name args" and "/name@bot args".
// name is given without the leading slash.
func Command(name string) Filter {
	return func(msg *message.Message) bool {
		cmd, _, ok := ParseCommand(msg.Text)
		return ok && cmd == name
	}
}

// And matches when every filter matches.
func And(filters ...Filter) Filter {
	return func(msg *message.Message) bool {
		for _, f := range filters {
			if f != nil && !f(msg) {
				return false
			}
		}
		return true
	}
}

// Or matches when at least one filter matches.
func Or(filters ...Filter) Filter {
	return func(msg *message.Message) bool {
		for _, f := range filters {
			if f == nil || f(msg) {
				return true
			}
		}
		return false
	}
}

// Not inverts a filter.
func Not(f Filter) Filter {
	return func(msg *message.Message) bool {
		return f != nil && !f(msg)
	}
}

// ParseCommand splits "/cmd@bot args" into ("cmd", "args", true).
func ParseCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return "", "", false
	}

	head, rest, _ := strings.Cut(text[1:], " ")
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}

// CommandArgs returns the arguments of a command message.
func CommandArgs(msg *message.Message) string {
	_, args, _ := ParseCommand(msg.Text)
	return args
}
