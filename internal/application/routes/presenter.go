package routes

import (
	"fmt"
	"strings"
	"time"

	"github.com/jarvis-hub/jarvis/internal/domain/link"
	"github.com/jarvis-hub/jarvis/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESENTER
// Форматирует ответы бота. Разметка не используется: Telegram получает
// обычный текст.
// ══════════════════════════════════════════════════════════════════════════════

const (
	TextStart = "Hello, %s. I am Jarvis, I keep your links.\n" +
		"Send /add <url> [description] to save a link, /find <query> to search.\n" +
		"/help lists every command."

	TextHelp = "Commands:\n" +
		"/add <url> [description] - save a link\n" +
		"/find <query> - search your links by meaning\n" +
		"/list - your recent links\n" +
		"/edit <id> <description> - change a link description\n" +
		"/delete <id> - remove a link\n" +
		"Anything else goes to the assistant."

	TextAddUsage     = "Usage: /add <url> [description]"
	TextFindUsage    = "Usage: /find <query>"
	TextDeleteUsage  = "Usage: /delete <id>"
	TextEditUsage    = "Usage: /edit <id> <description>"
	TextInvalidURL   = "That does not look like a link. Only http and https URLs are accepted."
	TextDuplicate    = "You have already saved this link."
	TextNothing      = "Nothing found."
	TextNoLinks      = "You have no links yet."
	TextLinkNotFound = "Link #%d not found."
	TextDeleted      = "Link #%d deleted."
	TextUpdated      = "Link #%d updated."
	TextSaved        = "Saved #%d: %s"
)

// formatLink - одна строка списка ссылок.
func formatLink(l *link.Link) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "#%d %s", l.ID, l.URL)

	label := l.Title
	if label == "" {
		label = l.Description
	}
	if label != "" {
		fmt.Fprintf(&sb, "\n    %s", label)
	}
	return sb.String()
}

// formatLinks форматирует список ссылок с заголовком.
func formatLinks(header string, links []*link.Link) string {
	var sb strings.Builder
	sb.WriteString(header)
	for _, l := range links {
		sb.WriteString("\n")
		sb.WriteString(formatLink(l))
	}
	return sb.String()
}

// formatRecent - список /list с возрастом каждой ссылки.
func formatRecent(links []*link.Link, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("Your recent links:")
	for _, l := range links {
		sb.WriteString("\n")
		sb.WriteString(formatLink(l))
		fmt.Fprintf(&sb, "\n    saved %s", timeutil.Relative(l.CreatedAt, now))
	}
	return sb.String()
}
